package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/pharmaconsult/searchcache/observe/exporters"
)

// instrumentationName scopes every tracer and meter created here.
const instrumentationName = "github.com/pharmaconsult/searchcache"

// Observer hands out the telemetry primitives of one process.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Context: Shutdown honors ctx deadlines while flushing exporters.
//   - Errors: Shutdown is idempotent and returns the first result on
//     every call.
type Observer interface {
	Tracer() trace.Tracer
	Meter() metric.Meter
	Logger() Logger

	// Shutdown flushes and stops every exporter.
	Shutdown(ctx context.Context) error
}

type observer struct {
	tracer trace.Tracer
	meter  metric.Meter
	logger Logger

	// closers run in order on Shutdown.
	closers []namedCloser

	once sync.Once
	err  error
}

type namedCloser struct {
	name  string
	close func(context.Context) error
}

// NewObserver builds the pipelines enabled in cfg. Disabled pipelines get
// no-op implementations, so callers never check for nil.
func NewObserver(ctx context.Context, cfg Config) (Observer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	instanceID := uuid.NewString()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
			semconv.ServiceInstanceID(instanceID),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	o := &observer{
		tracer: tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meter:  metricnoop.NewMeterProvider().Meter(instrumentationName),
		logger: NopLogger(),
	}

	if cfg.Tracing.Enabled {
		tp, err := newTracerProvider(ctx, cfg.Tracing, res)
		if err != nil {
			return nil, fmt.Errorf("observe: tracing: %w", err)
		}
		o.tracer = tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(cfg.Version))
		o.closers = append(o.closers, namedCloser{"tracer provider", tp.Shutdown})
		if cfg.RegisterGlobal {
			otel.SetTracerProvider(tp)
		}
	}

	if cfg.Metrics.Enabled {
		mp, err := newMeterProvider(ctx, cfg.Metrics, res)
		if err != nil {
			// Tracing may already hold an exporter connection.
			return nil, errors.Join(fmt.Errorf("observe: metrics: %w", err), o.Shutdown(ctx))
		}
		o.meter = mp.Meter(instrumentationName, metric.WithInstrumentationVersion(cfg.Version))
		o.closers = append(o.closers, namedCloser{"meter provider", mp.Shutdown})
		if cfg.RegisterGlobal {
			otel.SetMeterProvider(mp)
		}
	}

	if cfg.Logging.Enabled {
		o.logger = NewLogger(cfg.Logging.Level).With(
			Field{Key: "service", Value: cfg.ServiceName},
			Field{Key: "instance", Value: instanceID},
		)
	}

	return o, nil
}

func newTracerProvider(ctx context.Context, cfg TracingConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exp, err := exporters.NewTracingExporter(ctx, cfg.Exporter)
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(cfg.SamplePct))),
	}
	if exp != nil {
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

// sampler maps a sample fraction to the cheapest equivalent sampler.
func sampler(pct float64) sdktrace.Sampler {
	switch {
	case pct >= 1:
		return sdktrace.AlwaysSample()
	case pct <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(pct)
	}
}

func newMeterProvider(ctx context.Context, cfg MetricsConfig, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	reader, err := exporters.NewMetricsReader(ctx, cfg.Exporter)
	if err != nil {
		return nil, err
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if reader != nil {
		opts = append(opts, sdkmetric.WithReader(reader))
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}

func (o *observer) Tracer() trace.Tracer { return o.tracer }
func (o *observer) Meter() metric.Meter  { return o.meter }
func (o *observer) Logger() Logger       { return o.logger }

func (o *observer) Shutdown(ctx context.Context) error {
	o.once.Do(func() {
		var errs []error
		for _, c := range o.closers {
			if err := c.close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s shutdown: %w", c.name, err))
			}
		}
		o.err = errors.Join(errs...)
	})
	return o.err
}
