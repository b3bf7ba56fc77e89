// Package observe provides observability primitives for search-result caches.
//
// It is a pure instrumentation library: no caching, no transport, no I/O
// beyond exporter setup. The cache and service packages consume the Logger,
// Metrics and Tracer defined here; everything defaults to a no-op so a cache
// can be built without any telemetry wiring.
package observe
