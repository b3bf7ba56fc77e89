// Package service hosts the search-result caches for one process.
//
// A Service owns two cache tiers. The internal tier holds results from the
// internal knowledge base and from aggregated searches; the external tier
// holds results from public literature and regulatory sources. Each search
// backend is registered by source name and runs under its own resilience
// executor, so a failing registry trips its breaker without affecting the
// others.
//
// Usage:
//
//	cfg, err := config.Load("")
//	if err != nil {
//		return err
//	}
//	svc, err := service.New[[]Hit](ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer svc.Shutdown(context.Background())
//
//	svc.Register("pubmed", searchPubMed)
//	hits, err := svc.Search(ctx, cache.KeyComponents{Query: q, Source: "pubmed"})
package service
