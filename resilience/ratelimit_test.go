package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{})
	cfg := rl.Config()

	if cfg.Rate != 100 || cfg.Burst != 10 || cfg.MaxWait != time.Second {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestRateLimiter_AllowBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 3})

	for i := 0; i < 3; i++ {
		if !rl.Allow() {
			t.Fatalf("Allow() #%d = false, want true", i+1)
		}
	}
	if rl.Allow() {
		t.Error("Allow() after burst = true, want false")
	}
}

func TestRateLimiter_AllowN(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 5})

	if !rl.AllowN(4) {
		t.Fatal("AllowN(4) = false, want true")
	}
	if rl.AllowN(2) {
		t.Error("AllowN(2) with one token left = true, want false")
	}
}

func TestRateLimiter_Refill(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 100, Burst: 1})

	if !rl.Allow() {
		t.Fatal("first Allow() = false")
	}
	time.Sleep(20 * time.Millisecond)
	if !rl.Allow() {
		t.Error("Allow() after refill = false, want true")
	}
}

func TestRateLimiter_Wait(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 50, Burst: 1})
	ctx := context.Background()

	_ = rl.Allow()

	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("Wait() returned after %v, want about 20ms", elapsed)
	}
}

func TestRateLimiter_WaitExceedsMaxWait(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 0.1, Burst: 1, MaxWait: 10 * time.Millisecond})
	_ = rl.Allow()

	start := time.Now()
	err := rl.Wait(context.Background())
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("Wait() error = %v, want ErrRateLimitExceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Wait() slept instead of failing fast")
	}
}

func TestRateLimiter_WaitCancelled(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := rl.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}

func TestRateLimiter_Execute(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 1})
	ctx := context.Background()

	var calls int
	op := func(context.Context) error {
		calls++
		return nil
	}

	if err := rl.Execute(ctx, op); err != nil {
		t.Fatalf("first Execute() error = %v", err)
	}
	if err := rl.Execute(ctx, op); !errors.Is(err, ErrRateLimitExceeded) {
		t.Errorf("second Execute() error = %v, want ErrRateLimitExceeded", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRateLimiter_ExecuteWaitOnLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 100, Burst: 1, WaitOnLimit: true})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := rl.Execute(ctx, succeed); err != nil {
			t.Fatalf("Execute() #%d error = %v", i+1, err)
		}
	}
}

func TestRateLimiter_Tokens(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 4})

	if got := rl.Tokens(); got < 3.99 {
		t.Errorf("Tokens() = %v, want 4", got)
	}
	_ = rl.AllowN(3)
	if got := rl.Tokens(); got > 1.5 {
		t.Errorf("Tokens() after AllowN(3) = %v, want about 1", got)
	}
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 0.001, Burst: 10})

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow() {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 10 {
		t.Errorf("allowed = %d, want 10", got)
	}
}
