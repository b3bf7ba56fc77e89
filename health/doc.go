// Package health reports whether the search cache and its backends are fit
// to serve.
//
// A Checker reports a Result with a Status of Healthy, Degraded or Unhealthy.
// Two checkers are specific to this module:
//
//   - PressureChecker watches a cache's entry count and memory against its
//     limits. A cache that is evicting to stay within bounds is Degraded.
//   - CircuitChecker watches a backend's circuit breaker. An open circuit
//     means searches against that source fail fast.
//
// An Aggregator runs many checkers concurrently under one deadline and folds
// their results into a Report:
//
//	agg := health.NewAggregator()
//	agg.Register("cache.external", health.NewPressureChecker("external", usageFn, health.PressureCheckerConfig{}))
//	agg.Register("backend.pubmed", health.NewCircuitChecker("pubmed", breaker))
//
//	report := agg.Report(ctx)
//	if report.Status == health.StatusUnhealthy {
//	    // shed load
//	}
package health
