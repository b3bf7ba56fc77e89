package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pharmaconsult/searchcache/cache"
	"github.com/pharmaconsult/searchcache/observe"
)

// PrewarmReport summarizes one warming run.
type PrewarmReport struct {
	RunID    string
	Internal cache.PrewarmResult
	External cache.PrewarmResult
}

// Success returns the keys warmed across both tiers.
func (r PrewarmReport) Success() int {
	return r.Internal.Success + r.External.Success
}

// Failed returns the keys that could not be warmed across both tiers.
func (r PrewarmReport) Failed() int {
	return r.Internal.Failed + r.External.Failed
}

// Prewarm fetches every key through its tier. Keys whose source has no
// backend count as failed.
func (s *Service[V]) Prewarm(ctx context.Context, keys []cache.KeyComponents) (PrewarmReport, error) {
	if s.closed.Load() {
		return PrewarmReport{}, ErrClosed
	}

	report := PrewarmReport{RunID: uuid.NewString()}
	log := s.logger.With(observe.Field{Key: "prewarm_run", Value: report.RunID})

	var internal, external []cache.KeyComponents
	for _, k := range keys {
		if IsInternalSource(k.Source) {
			internal = append(internal, k)
		} else {
			external = append(external, k)
		}
	}

	fetcherFor := func(k cache.KeyComponents) cache.FetchFunc[V] {
		fetch, err := s.fetcher(k)
		if err != nil {
			return nil
		}
		return fetch
	}

	warm := func(t *tier[V], keys []cache.KeyComponents) cache.PrewarmResult {
		if len(keys) == 0 {
			return cache.PrewarmResult{}
		}
		p := cache.NewPrewarmer(t.coord,
			cache.WithConcurrency(s.cfg.Prewarm.Concurrency),
			cache.WithPrewarmLogger(log),
		)
		return p.Prewarm(ctx, keys, fetcherFor)
	}

	report.Internal = warm(s.internal, internal)
	report.External = warm(s.external, external)

	log.Info(ctx, "prewarm finished",
		observe.Field{Key: "success", Value: report.Success()},
		observe.Field{Key: "failed", Value: report.Failed()},
	)
	return report, nil
}

// PrewarmFile warms the keys listed in a YAML prewarm set.
func (s *Service[V]) PrewarmFile(ctx context.Context, path string) (PrewarmReport, error) {
	keys, err := cache.LoadPrewarmSet(path)
	if err != nil {
		return PrewarmReport{}, fmt.Errorf("service: prewarm set: %w", err)
	}
	return s.Prewarm(ctx, keys)
}

// Start warms the caches from the configured prewarm file when
// prewarm.on_start is set. Call it after registering backends.
func (s *Service[V]) Start(ctx context.Context) error {
	if !s.cfg.Prewarm.OnStart || s.cfg.Prewarm.File == "" {
		return nil
	}
	_, err := s.PrewarmFile(ctx, s.cfg.Prewarm.File)
	return err
}
