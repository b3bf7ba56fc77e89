package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// CacheMeta identifies a cache operation for telemetry purposes.
type CacheMeta struct {
	Cache   string // Cache instance name, e.g. "internal" or "external" (required)
	Source  string // Backend source of the key, e.g. "pubmed" (optional)
	KeyHash string // Fingerprint of the canonical key, never the raw query (optional)
}

// SpanName returns the deterministic span name for fetches on this cache.
// Format: searchcache.fetch.<cache>
func (m CacheMeta) SpanName() string {
	return "searchcache.fetch." + m.Cache
}

// Validate reports whether the metadata is usable.
func (m CacheMeta) Validate() error {
	if m.Cache == "" {
		return ErrMissingCacheName
	}
	return nil
}

func (m CacheMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("cache.name", m.Cache)}
	if m.Source != "" {
		attrs = append(attrs, attribute.String("cache.source", m.Source))
	}
	if m.KeyHash != "" {
		attrs = append(attrs, attribute.String("cache.key_hash", m.KeyHash))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing with cache-specific span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a span for a cache fetch.
	StartSpan(ctx context.Context, meta CacheMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer. A nil tracer yields a no-op Tracer.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		return NoopTracer()
	}
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta CacheMeta) (context.Context, trace.Span) {
	attrs := append(meta.attributes(), attribute.Bool("cache.fetch.error", false))
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("cache.fetch.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

// NoopTracer returns a Tracer that records nothing.
func NoopTracer() Tracer {
	return &noopTracer{noop: tracenoop.NewTracerProvider().Tracer("noop")}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta CacheMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
