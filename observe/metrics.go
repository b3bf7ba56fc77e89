package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Lookup results.
const (
	ResultHit  = "hit"
	ResultMiss = "miss"
)

// Eviction reasons.
const (
	ReasonTTL      = "ttl"
	ReasonCapacity = "capacity"
	ReasonMemory   = "memory"
)

// Skip reasons.
const (
	ReasonOversized   = "oversized"
	ReasonUnencodable = "unencodable"
	ReasonMalformed   = "malformed_key"
)

// Metrics records cache metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly; callers may hold cache locks.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordLookup records a Get outcome (ResultHit or ResultMiss).
	RecordLookup(ctx context.Context, cache, result string)

	// RecordEviction records n entries removed for reason.
	RecordEviction(ctx context.Context, cache, reason string, n int)

	// RecordSkip records a value that was not cached.
	RecordSkip(ctx context.Context, cache, reason string)

	// RecordFetch records a backend fetch with duration and error status.
	RecordFetch(ctx context.Context, meta CacheMeta, duration time.Duration, err error)

	// RecordShared records a caller that joined an in-flight fetch.
	RecordShared(ctx context.Context, cache string)
}

// StatsSnapshot is the subset of cache statistics exported as gauges.
type StatsSnapshot struct {
	Entries      int
	MemoryUsedMB float64
	HitRate      float64
}

type metricsImpl struct {
	lookups      metric.Int64Counter
	evictions    metric.Int64Counter
	skipped      metric.Int64Counter
	fetchTotal   metric.Int64Counter
	fetchErrors  metric.Int64Counter
	fetchShared  metric.Int64Counter
	fetchLatency metric.Float64Histogram
}

// NewMetrics creates cache instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	m := &metricsImpl{}
	var err error

	if m.lookups, err = meter.Int64Counter(
		"searchcache.lookups",
		metric.WithDescription("Cache lookups by result"),
		metric.WithUnit("{lookup}"),
	); err != nil {
		return nil, err
	}

	if m.evictions, err = meter.Int64Counter(
		"searchcache.evictions",
		metric.WithDescription("Entries removed by expiry or eviction"),
		metric.WithUnit("{entry}"),
	); err != nil {
		return nil, err
	}

	if m.skipped, err = meter.Int64Counter(
		"searchcache.skipped",
		metric.WithDescription("Values or keys skipped by the cache"),
		metric.WithUnit("{entry}"),
	); err != nil {
		return nil, err
	}

	if m.fetchTotal, err = meter.Int64Counter(
		"searchcache.fetch.total",
		metric.WithDescription("Backend fetches issued on cache miss"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}

	if m.fetchErrors, err = meter.Int64Counter(
		"searchcache.fetch.errors",
		metric.WithDescription("Backend fetches that failed"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}

	if m.fetchShared, err = meter.Int64Counter(
		"searchcache.fetch.shared",
		metric.WithDescription("Callers served by an in-flight fetch"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}

	if m.fetchLatency, err = meter.Float64Histogram(
		"searchcache.fetch.duration_ms",
		metric.WithDescription("Backend fetch duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *metricsImpl) RecordLookup(ctx context.Context, cache, result string) {
	m.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.name", cache),
		attribute.String("result", result),
	))
}

func (m *metricsImpl) RecordEviction(ctx context.Context, cache, reason string, n int) {
	if n <= 0 {
		return
	}
	m.evictions.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("cache.name", cache),
		attribute.String("reason", reason),
	))
}

func (m *metricsImpl) RecordSkip(ctx context.Context, cache, reason string) {
	m.skipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.name", cache),
		attribute.String("reason", reason),
	))
}

func (m *metricsImpl) RecordFetch(ctx context.Context, meta CacheMeta, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{attribute.String("cache.name", meta.Cache)}
	if meta.Source != "" {
		attrs = append(attrs, attribute.String("cache.source", meta.Source))
	}
	opt := metric.WithAttributes(attrs...)

	m.fetchTotal.Add(ctx, 1, opt)
	if err != nil {
		m.fetchErrors.Add(ctx, 1, opt)
	}
	m.fetchLatency.Record(ctx, float64(duration.Microseconds())/1000, opt)
}

func (m *metricsImpl) RecordShared(ctx context.Context, cache string) {
	m.fetchShared.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.name", cache)))
}

// RegisterStatsGauges exports entries, memory and hit rate for one cache as
// observable gauges. The returned registration must be unregistered when the
// cache is discarded.
func RegisterStatsGauges(meter metric.Meter, cache string, snapshot func() StatsSnapshot) (metric.Registration, error) {
	entries, err := meter.Int64ObservableGauge(
		"searchcache.entries",
		metric.WithDescription("Entries currently held"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	memory, err := meter.Float64ObservableGauge(
		"searchcache.memory_mb",
		metric.WithDescription("Estimated memory held by entries"),
		metric.WithUnit("MiBy"),
	)
	if err != nil {
		return nil, err
	}

	hitRate, err := meter.Float64ObservableGauge(
		"searchcache.hit_rate",
		metric.WithDescription("Hits over total lookups"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	opt := metric.WithAttributes(attribute.String("cache.name", cache))
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := snapshot()
		o.ObserveInt64(entries, int64(s.Entries), opt)
		o.ObserveFloat64(memory, s.MemoryUsedMB, opt)
		o.ObserveFloat64(hitRate, s.HitRate, opt)
		return nil
	}, entries, memory, hitRate)
}

type noopMetrics struct{}

// NoopMetrics returns a Metrics that records nothing.
func NoopMetrics() Metrics {
	return noopMetrics{}
}

func (noopMetrics) RecordLookup(context.Context, string, string)                 {}
func (noopMetrics) RecordEviction(context.Context, string, string, int)          {}
func (noopMetrics) RecordSkip(context.Context, string, string)                   {}
func (noopMetrics) RecordFetch(context.Context, CacheMeta, time.Duration, error) {}
func (noopMetrics) RecordShared(context.Context, string)                         {}
