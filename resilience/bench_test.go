package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func BenchmarkCircuitBreaker_Execute_Closed(b *testing.B) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cb.Execute(ctx, succeed)
	}
}

func BenchmarkCircuitBreaker_Execute_Open(b *testing.B) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	ctx := context.Background()
	_ = cb.Execute(ctx, fail)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cb.Execute(ctx, succeed)
	}
}

func BenchmarkRetry_NoRetries(b *testing.B) {
	r := NewRetry(RetryConfig{})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.Execute(ctx, succeed)
	}
}

func BenchmarkRateLimiter_Allow(b *testing.B) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1e9, Burst: 1 << 20})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = rl.Allow()
	}
}

func BenchmarkBulkhead_Execute(b *testing.B) {
	bh := NewBulkhead(BulkheadConfig{MaxConcurrent: 100})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = bh.Execute(ctx, succeed)
	}
}

func BenchmarkBulkhead_Concurrent(b *testing.B) {
	bh := NewBulkhead(BulkheadConfig{MaxConcurrent: 8, MaxWait: time.Second})
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = bh.Execute(ctx, succeed)
		}
	})
}

func BenchmarkTimeout_Execute_Fast(b *testing.B) {
	tm := NewTimeout(TimeoutConfig{Timeout: time.Second})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tm.Execute(ctx, succeed)
	}
}

func BenchmarkExecutor_FromConfig(b *testing.B) {
	e := NewExecutorFromConfig("bench", Config{
		Timeout:       time.Second,
		MaxAttempts:   3,
		MaxFailures:   5,
		RatePerSecond: 1e9,
		Burst:         1 << 20,
		MaxConcurrent: 64,
	})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = e.Execute(ctx, succeed)
	}
}

func BenchmarkRetryable(b *testing.B) {
	err := Permanent(errors.New("bad request"))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Retryable(err)
	}
}
