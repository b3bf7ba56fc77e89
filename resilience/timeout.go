package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutConfig configures the timeout wrapper.
type TimeoutConfig struct {
	// Timeout bounds a single attempt.
	// Default: 30 seconds
	Timeout time.Duration
}

// Timeout bounds how long one backend call may take.
type Timeout struct {
	config TimeoutConfig
}

// NewTimeout creates a new timeout wrapper.
func NewTimeout(config TimeoutConfig) *Timeout {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Timeout{config: config}
}

// Execute runs op with a deadline. When the deadline passes first it returns
// an error wrapping both ErrTimeout and context.DeadlineExceeded; op keeps its
// cancelled context and is expected to return on its own.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	tctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(tctx)
	}()

	select {
	case err := <-done:
		if err != nil && t.expired(ctx, tctx) {
			return t.timeoutErr()
		}
		return err
	case <-tctx.Done():
		if t.expired(ctx, tctx) {
			return t.timeoutErr()
		}
		return ctx.Err()
	}
}

// expired reports whether tctx hit its own deadline while ctx is still live.
func (t *Timeout) expired(ctx, tctx context.Context) bool {
	return ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded)
}

func (t *Timeout) timeoutErr() error {
	return fmt.Errorf("%w after %s: %w", ErrTimeout, t.config.Timeout, context.DeadlineExceeded)
}

// Config returns the timeout configuration.
func (t *Timeout) Config() TimeoutConfig {
	return t.config
}

// ExecuteWithTimeout runs op once with the given timeout.
func ExecuteWithTimeout(ctx context.Context, timeout time.Duration, op func(context.Context) error) error {
	return NewTimeout(TimeoutConfig{Timeout: timeout}).Execute(ctx, op)
}
