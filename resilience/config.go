package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/pharmaconsult/searchcache/observe"
)

// Config describes the protection for one backend. A zero field disables
// the pattern it controls.
type Config struct {
	// Timeout bounds each attempt.
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`

	// MaxAttempts enables retries when greater than 1.
	MaxAttempts int `koanf:"max_attempts" yaml:"max_attempts"`

	// RetryDelay is the first backoff delay. Default: 100ms
	RetryDelay time.Duration `koanf:"retry_delay" yaml:"retry_delay"`

	// MaxFailures enables the circuit breaker.
	MaxFailures int `koanf:"max_failures" yaml:"max_failures"`

	// ResetTimeout is how long an open circuit waits. Default: 30s
	ResetTimeout time.Duration `koanf:"reset_timeout" yaml:"reset_timeout"`

	// RatePerSecond enables rate limiting. Callers wait up to one second
	// for a token.
	RatePerSecond float64 `koanf:"rate_per_second" yaml:"rate_per_second"`

	// Burst is the rate limiter bucket size. Default: 1
	Burst int `koanf:"burst" yaml:"burst"`

	// MaxConcurrent enables the bulkhead.
	MaxConcurrent int `koanf:"max_concurrent" yaml:"max_concurrent"`
}

// Config errors.
var (
	ErrInvalidConfig = errors.New("resilience: invalid config")
)

// Validate rejects negative settings.
func (c Config) Validate() error {
	var errs []error
	check := func(bad bool, field string) {
		if bad {
			errs = append(errs, errors.New(field+" must not be negative"))
		}
	}
	check(c.Timeout < 0, "timeout")
	check(c.MaxAttempts < 0, "max_attempts")
	check(c.RetryDelay < 0, "retry_delay")
	check(c.MaxFailures < 0, "max_failures")
	check(c.ResetTimeout < 0, "reset_timeout")
	check(c.RatePerSecond < 0, "rate_per_second")
	check(c.Burst < 0, "burst")
	check(c.MaxConcurrent < 0, "max_concurrent")

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
}

// NewExecutorFromConfig builds the executor for one backend. opts are applied
// first, so a WithLogger option also covers the breaker and retry logs.
func NewExecutorFromConfig(name string, cfg Config, opts ...ExecutorOption) *Executor {
	e := NewExecutor(append([]ExecutorOption{WithName(name)}, opts...)...)
	log := e.logger.With(observe.Field{Key: "backend", Value: name})

	if cfg.Timeout > 0 {
		e.timeout = NewTimeout(TimeoutConfig{Timeout: cfg.Timeout})
	}

	if cfg.MaxAttempts > 1 {
		e.retry = NewRetry(RetryConfig{
			MaxAttempts:  cfg.MaxAttempts,
			InitialDelay: cfg.RetryDelay,
			Jitter:       true,
			OnRetry: func(attempt int, err error, delay time.Duration) {
				log.Debug(context.Background(), "retrying backend call",
					observe.Field{Key: "attempt", Value: attempt},
					observe.Field{Key: "delay", Value: delay},
					observe.Field{Key: "error", Value: err},
				)
			},
		})
	}

	if cfg.MaxFailures > 0 {
		e.circuitBreaker = NewCircuitBreaker(CircuitBreakerConfig{
			Name:         name,
			MaxFailures:  cfg.MaxFailures,
			ResetTimeout: cfg.ResetTimeout,
			OnStateChange: func(_ string, from, to State) {
				log.Warn(context.Background(), "circuit state changed",
					observe.Field{Key: "from", Value: from.String()},
					observe.Field{Key: "to", Value: to.String()},
				)
			},
		})
	}

	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		e.rateLimiter = NewRateLimiter(RateLimiterConfig{
			Rate:        cfg.RatePerSecond,
			Burst:       burst,
			WaitOnLimit: true,
		})
	}

	if cfg.MaxConcurrent > 0 {
		e.bulkhead = NewBulkhead(BulkheadConfig{
			MaxConcurrent: cfg.MaxConcurrent,
			MaxWait:       cfg.Timeout,
		})
	}

	return e
}
