// Package cache provides an in-process, memory-bounded cache for search
// results from slow backends.
//
// A Store holds entries keyed by a canonical form of the request, so
// "Covid Treatment" against "PubMed" and "treatment covid" against "pubmed"
// share one entry. Entries expire by TTL (resolved per source by a Policy)
// and are evicted by a hit-weighted LRU score when the store nears its entry
// or memory ceiling.
//
// A Coordinator wraps a Store and guarantees a single outstanding backend
// fetch per key across concurrent callers. A Prewarmer populates a store
// ahead of traffic, and a Debouncer drops superseded search-as-you-type
// requests before they reach the Coordinator.
//
// Every type is safe for concurrent use. Stores share nothing with each other.
package cache
