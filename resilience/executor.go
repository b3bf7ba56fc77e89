package resilience

import (
	"context"
	"time"

	"github.com/pharmaconsult/searchcache/observe"
)

// Executor composes resilience patterns around one backend.
//
// Contract:
//   - Concurrency: safe for concurrent use once built.
//   - Errors: the outermost pattern's error is returned; sentinels from this
//     package and errors from the operation are both visible to errors.Is.
type Executor struct {
	name           string
	logger         observe.Logger
	circuitBreaker *CircuitBreaker
	retry          *Retry
	rateLimiter    *RateLimiter
	bulkhead       *Bulkhead
	timeout        *Timeout
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates an executor. Without options it runs the operation
// unchanged.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{logger: observe.NopLogger()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithName labels the executor, usually with the backend source.
func WithName(name string) ExecutorOption {
	return func(e *Executor) {
		e.name = name
	}
}

// WithLogger logs circuit state changes and retries.
// Default: the no-op logger.
func WithLogger(l observe.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithCircuitBreaker adds a circuit breaker.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) {
		e.circuitBreaker = cb
	}
}

// WithRetry adds retries.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) {
		e.retry = r
	}
}

// WithRateLimiter adds rate limiting.
func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) {
		e.rateLimiter = rl
	}
}

// WithBulkhead adds a concurrency cap.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) {
		e.bulkhead = b
	}
}

// WithTimeout bounds each attempt.
func WithTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = NewTimeout(TimeoutConfig{Timeout: timeout})
	}
}

// WithTimeoutConfig bounds each attempt with a prepared Timeout.
func WithTimeoutConfig(t *Timeout) ExecutorOption {
	return func(e *Executor) {
		e.timeout = t
	}
}

// Name returns the executor label.
func (e *Executor) Name() string {
	return e.name
}

// CircuitBreaker returns the breaker, or nil if none is configured.
func (e *Executor) CircuitBreaker() *CircuitBreaker {
	return e.circuitBreaker
}

// Execute runs op through every configured pattern. From the outside in:
// rate limiter, bulkhead, circuit breaker, retry, timeout. The breaker sees
// one result per call after retries, and each retry gets a fresh timeout.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	execute := op

	if e.timeout != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.timeout.Execute(ctx, inner)
		}
	}

	if e.retry != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.retry.Execute(ctx, inner)
		}
	}

	if e.circuitBreaker != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.circuitBreaker.Execute(ctx, inner)
		}
	}

	if e.bulkhead != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.bulkhead.Execute(ctx, inner)
		}
	}

	if e.rateLimiter != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.rateLimiter.Execute(ctx, inner)
		}
	}

	return execute(ctx)
}
