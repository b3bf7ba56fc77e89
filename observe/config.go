package observe

import (
	"errors"
	"fmt"
)

// Config selects the telemetry pipelines of one searchcache process.
type Config struct {
	ServiceName string `koanf:"service_name"`
	Version     string `koanf:"version"`

	// RegisterGlobal installs the providers as the otel globals, so that
	// instrumented HTTP clients used by backends join the same traces.
	RegisterGlobal bool `koanf:"register_global"`

	Tracing TracingConfig `koanf:"tracing"`
	Metrics MetricsConfig `koanf:"metrics"`
	Logging LoggingConfig `koanf:"logging"`
}

// TracingConfig configures span export for backend fetches.
type TracingConfig struct {
	Enabled bool `koanf:"enabled"`

	// Exporter is one of otlp, jaeger, stdout or none.
	Exporter string `koanf:"exporter"`

	// SamplePct is the fraction of root fetches traced, 0.0 to 1.0.
	SamplePct float64 `koanf:"sample_pct"`
}

// MetricsConfig configures cache metric export.
type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`

	// Exporter is one of otlp, prometheus, stdout or none.
	Exporter string `koanf:"exporter"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Enabled bool   `koanf:"enabled"`
	Level   string `koanf:"level"`
}

var (
	tracingExporters = map[string]bool{"otlp": true, "jaeger": true, "stdout": true, "none": true, "": true}
	metricsExporters = map[string]bool{"otlp": true, "prometheus": true, "stdout": true, "none": true, "": true}
	logLevels        = map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
)

// Validate reports every invalid setting. Settings of a disabled pipeline
// are not checked.
func (c *Config) Validate() error {
	var errs []error

	if c.ServiceName == "" {
		errs = append(errs, ErrMissingServiceName)
	}

	if c.Tracing.Enabled {
		if !tracingExporters[c.Tracing.Exporter] {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidTracingExporter, c.Tracing.Exporter))
		}
		if c.Tracing.SamplePct < 0 || c.Tracing.SamplePct > 1 {
			errs = append(errs, fmt.Errorf("%w, got: %g", ErrInvalidSamplePct, c.Tracing.SamplePct))
		}
	}

	if c.Metrics.Enabled && !metricsExporters[c.Metrics.Exporter] {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidMetricsExporter, c.Metrics.Exporter))
	}

	if c.Logging.Enabled && !logLevels[c.Logging.Level] {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level))
	}

	return errors.Join(errs...)
}
