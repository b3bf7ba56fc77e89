package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/metric"

	"github.com/pharmaconsult/searchcache/cache"
	"github.com/pharmaconsult/searchcache/config"
	"github.com/pharmaconsult/searchcache/health"
	"github.com/pharmaconsult/searchcache/observe"
	"github.com/pharmaconsult/searchcache/resilience"
)

// Tier names.
const (
	TierInternal = "internal"
	TierExternal = "external"
)

// Backend runs one search against a source. It receives the canonical
// components of the request.
type Backend[V any] func(ctx context.Context, k cache.KeyComponents) (V, error)

// Option configures a Service.
type Option func(*options)

type options struct {
	observer  observe.Observer
	clock     clock.Clock
	storeOpts []cache.Option
}

// WithObserver uses obs instead of building one from the configuration.
// The caller keeps ownership: Shutdown does not shut obs down.
func WithObserver(obs observe.Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithClock sets the clock used by both tiers.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithStoreOptions appends options applied to both tier stores, after the
// service's own.
func WithStoreOptions(opts ...cache.Option) Option {
	return func(o *options) {
		o.storeOpts = append(o.storeOpts, opts...)
	}
}

type tier[V any] struct {
	store     *cache.Store[V]
	coord     *cache.Coordinator[V]
	debouncer *cache.Debouncer[V]
}

// Service owns the cache tiers, the backend registry and their telemetry.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Lifecycle: after Shutdown every search returns ErrClosed.
type Service[V any] struct {
	cfg          config.Config
	obs          observe.Observer
	ownsObserver bool
	logger       observe.Logger

	internal *tier[V]
	external *tier[V]

	executors map[string]*resilience.Executor
	health    *health.Aggregator
	gauges    []metric.Registration

	mu       sync.RWMutex
	backends map[string]Backend[V]

	closed       atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// New builds a Service from cfg. cfg is validated first.
func New[V any](ctx context.Context, cfg config.Config, opts ...Option) (*Service[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Service[V]{
		cfg:       cfg,
		obs:       o.observer,
		executors: make(map[string]*resilience.Executor, len(cfg.Backends)),
		backends:  make(map[string]Backend[V]),
	}

	if s.obs == nil {
		obs, err := observe.NewObserver(ctx, cfg.Observe)
		if err != nil {
			return nil, fmt.Errorf("service: observer: %w", err)
		}
		s.obs = obs
		s.ownsObserver = true
	}
	s.logger = s.obs.Logger()

	mw, err := observe.MiddlewareFromObserver(s.obs)
	if err != nil {
		return nil, s.abort(ctx, fmt.Errorf("service: middleware: %w", err))
	}

	policy := cfg.Policy.CachePolicy()
	s.internal = s.newTier(TierInternal, cfg.Internal, policy, mw, o)
	s.external = s.newTier(TierExternal, cfg.External, policy, mw, o)

	for _, t := range []*tier[V]{s.internal, s.external} {
		store := t.store
		reg, err := observe.RegisterStatsGauges(s.obs.Meter(), store.Name(), func() observe.StatsSnapshot {
			return store.Stats().Snapshot()
		})
		if err != nil {
			return nil, s.abort(ctx, fmt.Errorf("service: gauges for %s: %w", store.Name(), err))
		}
		s.gauges = append(s.gauges, reg)
	}

	for name, bc := range cfg.Backends {
		source := cache.NormalizeSource(name)
		s.executors[source] = resilience.NewExecutorFromConfig(source, bc, resilience.WithLogger(s.logger))
	}

	s.health = s.newHealth()

	s.logger.Info(ctx, "search cache service started",
		observe.Field{Key: "backends_configured", Value: len(s.executors)},
		observe.Field{Key: "debounce", Value: cfg.Debounce},
	)
	return s, nil
}

func (s *Service[V]) newTier(name string, cfg cache.Config, policy cache.Policy, mw *observe.Middleware, o options) *tier[V] {
	storeOpts := []cache.Option{
		cache.WithName(name),
		cache.WithPolicy(policy),
		cache.WithLogger(s.logger),
		cache.WithMetrics(mw.Metrics()),
	}
	if o.clock != nil {
		storeOpts = append(storeOpts, cache.WithClock(o.clock))
	}
	storeOpts = append(storeOpts, o.storeOpts...)

	store := cache.NewStore[V](cfg, storeOpts...)
	coord := cache.NewCoordinator(store,
		cache.WithCoordinatorLogger(s.logger),
		cache.WithMiddleware(mw),
	)

	t := &tier[V]{store: store, coord: coord}
	if s.cfg.Debounce > 0 {
		t.debouncer = cache.NewDebouncer(coord, s.cfg.Debounce)
	}
	return t
}

func (s *Service[V]) newHealth() *health.Aggregator {
	agg := health.NewAggregator(health.AggregatorConfig{Timeout: s.cfg.Health.Timeout})
	pressure := health.PressureCheckerConfig{WarningThreshold: s.cfg.Health.PressureWarning}

	for _, t := range []*tier[V]{s.internal, s.external} {
		store := t.store
		name := "cache." + store.Name()
		agg.Register(name, health.NewPressureChecker(name, func() health.Usage {
			st, cfg := store.Stats(), store.Config()
			return health.Usage{
				Entries:     st.Entries,
				MaxEntries:  cfg.MaxEntries,
				MemoryMB:    st.MemoryUsedMB,
				MaxMemoryMB: cfg.MaxMemoryMB,
				HitRate:     st.HitRate,
			}
		}, pressure))
	}

	for _, source := range sortedKeys(s.executors) {
		if cb := s.executors[source].CircuitBreaker(); cb != nil {
			name := "backend." + source
			agg.Register(name, health.NewCircuitChecker(name, cb))
		}
	}
	return agg
}

// abort releases what New built so far.
func (s *Service[V]) abort(ctx context.Context, err error) error {
	return errors.Join(err, s.release(ctx))
}

// Store returns the store for a tier name, or nil.
func (s *Service[V]) Store(tierName string) *cache.Store[V] {
	switch tierName {
	case TierInternal:
		return s.internal.store
	case TierExternal:
		return s.external.store
	}
	return nil
}

// Stats returns the statistics of both tiers keyed by tier name.
func (s *Service[V]) Stats() map[string]cache.Stats {
	return map[string]cache.Stats{
		TierInternal: s.internal.store.Stats(),
		TierExternal: s.external.store.Stats(),
	}
}

// Health runs every health check.
func (s *Service[V]) Health(ctx context.Context) health.Report {
	return s.health.Report(ctx)
}

// ClearSource drops every entry for source from both tiers and returns the
// number removed.
func (s *Service[V]) ClearSource(ctx context.Context, source string) int {
	return s.internal.store.ClearSource(ctx, source) + s.external.store.ClearSource(ctx, source)
}

// Shutdown stops accepting searches and releases telemetry. It is safe to
// call more than once; later calls return the first result.
func (s *Service[V]) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.closed.Store(true)
		s.logger.Info(ctx, "search cache service stopping")
		s.shutdownErr = s.release(ctx)
	})
	return s.shutdownErr
}

func (s *Service[V]) release(ctx context.Context) error {
	var errs []error
	for _, reg := range s.gauges {
		if err := reg.Unregister(); err != nil {
			errs = append(errs, fmt.Errorf("service: unregister gauges: %w", err))
		}
	}
	s.gauges = nil

	if s.ownsObserver && s.obs != nil {
		if err := s.obs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("service: observer shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
