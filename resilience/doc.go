// Package resilience protects calls to search backends.
//
// A cache miss ends in a call to PubMed, ClinicalTrials.gov, openFDA or an
// internal index. Those calls are slow, rate limited by their providers and
// occasionally down. This package wraps them with the usual patterns:
//
//   - CircuitBreaker stops calling a backend after repeated failures
//     (github.com/sony/gobreaker/v2).
//   - Retry retries transient failures with exponential, linear or constant
//     backoff. Errors marked with Permanent are never retried.
//   - RateLimiter keeps request rate under a provider quota
//     (golang.org/x/time/rate).
//   - Bulkhead caps concurrent calls per backend (golang.org/x/sync/semaphore).
//   - Timeout bounds a single attempt.
//
// # Usage
//
// Executors are usually built from configuration, one per backend:
//
//	exec := resilience.NewExecutorFromConfig("pubmed", resilience.Config{
//	    Timeout:       5 * time.Second,
//	    MaxAttempts:   3,
//	    RetryDelay:    200 * time.Millisecond,
//	    MaxFailures:   5,
//	    ResetTimeout:  30 * time.Second,
//	    RatePerSecond: 3,
//	    Burst:         3,
//	    MaxConcurrent: 4,
//	})
//
//	err := exec.Execute(ctx, func(ctx context.Context) error {
//	    return queryPubMed(ctx)
//	})
//
// *Executor satisfies cache.Executor, so it can be handed to
// cache.WithExecutor or cache.Protect directly.
package resilience
