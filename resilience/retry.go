package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy selects how the wait grows between attempts.
type BackoffStrategy int

const (
	// BackoffExponential multiplies the wait by Multiplier per attempt.
	BackoffExponential BackoffStrategy = iota
	// BackoffLinear adds InitialDelay per attempt.
	BackoffLinear
	// BackoffConstant waits InitialDelay every time.
	BackoffConstant
)

// Retry defaults.
const (
	defaultRetryAttempts   = 3
	defaultRetryDelay      = 100 * time.Millisecond
	defaultRetryMaxDelay   = 30 * time.Second
	defaultRetryMultiplier = 2.0
	jitterFraction         = 0.25
)

// RetryConfig controls how often a failed backend call is repeated.
type RetryConfig struct {
	// MaxAttempts counts the first call. Default: 3
	MaxAttempts int

	// InitialDelay is the wait after the first failure. Default: 100ms
	InitialDelay time.Duration

	// MaxDelay bounds any single wait. Default: 30s
	MaxDelay time.Duration

	// Multiplier grows exponential waits. Default: 2
	Multiplier float64

	Strategy BackoffStrategy

	// Jitter adds up to 25% random delay so callers do not retry in step.
	Jitter bool

	// RetryIf decides whether an error is worth another attempt.
	// Default: Retryable.
	RetryIf func(err error) bool

	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultRetryAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = defaultRetryDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultRetryMaxDelay
	}
	if c.Multiplier <= 0 {
		c.Multiplier = defaultRetryMultiplier
	}
	if c.RetryIf == nil {
		c.RetryIf = Retryable
	}
	return c
}

// Retry repeats failed calls with backoff.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a Retry. Zero fields take their defaults.
func NewRetry(config RetryConfig) *Retry {
	return &Retry{config: config.withDefaults()}
}

// Retryable is the default RetryIf. Attempt timeouts are retried; Permanent
// errors, caller cancellation and open circuits are not.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case IsPermanent(err):
		return false
	case errors.Is(err, ErrTimeout):
		return true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrCircuitOpen):
		return false
	}
	return true
}

// Execute runs the operation until it succeeds, returns a non-retryable
// error, runs out of attempts or ctx ends. The last error is returned.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.config.RetryIf(err) || attempt == r.config.MaxAttempts {
			break
		}

		delay := r.delay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

func (r *Retry) delay(attempt int) time.Duration {
	var d time.Duration

	switch r.config.Strategy {
	case BackoffConstant:
		d = r.config.InitialDelay
	case BackoffLinear:
		d = r.config.InitialDelay * time.Duration(attempt)
	default:
		d = time.Duration(float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1)))
	}

	if d > r.config.MaxDelay {
		d = r.config.MaxDelay
	}

	if r.config.Jitter && d >= 4 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		d += time.Duration(rand.Int64N(int64(float64(d) * jitterFraction)))
	}

	return d
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}
