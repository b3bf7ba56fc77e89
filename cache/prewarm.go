package cache

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/pharmaconsult/searchcache/observe"
)

// PrewarmResult counts the outcome of a Prewarm run.
type PrewarmResult struct {
	Success int
	Failed  int
}

// PrewarmOption configures a Prewarmer.
type PrewarmOption func(*prewarmOptions)

type prewarmOptions struct {
	concurrency int
	logger      observe.Logger
}

// WithConcurrency bounds how many keys are fetched at once.
// Default: 1 (sequential)
func WithConcurrency(n int) PrewarmOption {
	return func(o *prewarmOptions) {
		o.concurrency = n
	}
}

// WithPrewarmLogger sets the logger. Default: the no-op logger.
func WithPrewarmLogger(l observe.Logger) PrewarmOption {
	return func(o *prewarmOptions) {
		o.logger = l
	}
}

// Prewarmer populates a cache ahead of traffic.
type Prewarmer[V any] struct {
	coord       *Coordinator[V]
	concurrency int
	logger      observe.Logger
}

// NewPrewarmer creates a Prewarmer that fetches through coord.
func NewPrewarmer[V any](coord *Coordinator[V], opts ...PrewarmOption) *Prewarmer[V] {
	o := prewarmOptions{concurrency: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}
	if o.logger == nil {
		o.logger = observe.NopLogger()
	}
	return &Prewarmer[V]{
		coord:       coord,
		concurrency: o.concurrency,
		logger:      o.logger,
	}
}

// Prewarm fetches every key through the Coordinator, so keys already cached
// or in flight cost nothing. Individual failures are logged and counted;
// the run always covers the whole list. Once ctx is done the remaining keys
// count as failed.
func (p *Prewarmer[V]) Prewarm(ctx context.Context, keys []KeyComponents, fetcherFor func(KeyComponents) FetchFunc[V]) PrewarmResult {
	var success, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for i, k := range keys {
		if ctx.Err() != nil {
			failed.Add(int64(len(keys) - i))
			break
		}
		g.Go(func() error {
			if err := p.warm(ctx, k, fetcherFor); err != nil {
				failed.Add(1)
				p.logger.Warn(ctx, "prewarm fetch failed",
					observe.Field{Key: "source", Value: NormalizeSource(k.Source)},
					observe.Field{Key: "key_hash", Value: Fingerprint(CanonicalKey(k))},
					observe.Field{Key: "error", Value: err},
				)
				return nil
			}
			success.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	res := PrewarmResult{Success: int(success.Load()), Failed: int(failed.Load())}
	p.logger.Info(ctx, "prewarm completed",
		observe.Field{Key: "success", Value: res.Success},
		observe.Field{Key: "failed", Value: res.Failed},
	)
	return res
}

func (p *Prewarmer[V]) warm(ctx context.Context, k KeyComponents, fetcherFor func(KeyComponents) FetchFunc[V]) error {
	if fetcherFor == nil {
		return ErrNilFetcher
	}
	fetch := fetcherFor(k)
	if fetch == nil {
		return ErrNilFetcher
	}
	_, err := p.coord.Fetch(ctx, k, fetch)
	return err
}
