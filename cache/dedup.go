package cache

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/pharmaconsult/searchcache/observe"
)

// FetchFunc loads a value from a backend on a cache miss.
type FetchFunc[V any] func(ctx context.Context) (V, error)

// Executor runs an operation under resilience policies.
// *resilience.Executor satisfies it.
type Executor interface {
	Execute(ctx context.Context, op func(context.Context) error) error
}

// Protect runs fetch through exec. A nil exec returns fetch unchanged.
//
// Executors may abandon an attempt at its deadline and start another, so the
// abandoned attempt can still be running when exec returns. Each attempt is
// numbered and only the most recent one may publish its value; nothing is
// published once exec has returned.
func Protect[V any](exec Executor, fetch FetchFunc[V]) FetchFunc[V] {
	if exec == nil {
		return fetch
	}
	return func(ctx context.Context) (V, error) {
		var (
			mu       sync.Mutex
			attempts int
			sealed   bool
			out      V
		)
		err := exec.Execute(ctx, func(ctx context.Context) error {
			mu.Lock()
			attempts++
			attempt := attempts
			mu.Unlock()

			v, err := fetch(ctx)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			if !sealed && attempt == attempts {
				out = v
			}
			return nil
		})

		mu.Lock()
		defer mu.Unlock()
		sealed = true
		if err != nil {
			var zero V
			return zero, err
		}
		return out, nil
	}
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*coordinatorOptions)

type coordinatorOptions struct {
	logger     observe.Logger
	middleware *observe.Middleware
	executor   Executor
}

// WithCoordinatorLogger sets the logger. Default: the no-op logger.
func WithCoordinatorLogger(l observe.Logger) CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.logger = l
	}
}

// WithMiddleware instruments every backend fetch.
func WithMiddleware(m *observe.Middleware) CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.middleware = m
	}
}

// WithExecutor runs every backend fetch through exec.
func WithExecutor(exec Executor) CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.executor = exec
	}
}

// flight tracks the callers waiting on one shared fetch.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Coordinator serves reads from a Store and collapses concurrent misses for
// the same key into a single backend fetch.
//
// Contract:
//   - Concurrency: safe for concurrent use. Lock order is Coordinator then
//     Store; fetches run outside both locks.
//   - Errors: a fetch error reaches every waiter unchanged and is never cached.
//     A panic anywhere in the shared fetch becomes ErrFetchPanicked.
//   - Context: each caller stops waiting when its own ctx is done. The fetch
//     is cancelled only when no caller is left waiting.
type Coordinator[V any] struct {
	store      *Store[V]
	logger     observe.Logger
	middleware *observe.Middleware
	executor   Executor

	group singleflight.Group

	// mu guards flights. A key is in flights exactly while group holds a
	// call for it that new callers may join.
	mu      sync.Mutex
	flights map[string]*flight
}

// NewCoordinator creates a Coordinator over store.
func NewCoordinator[V any](store *Store[V], opts ...CoordinatorOption) *Coordinator[V] {
	var o coordinatorOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = observe.NopLogger()
	}

	name := ""
	if store != nil {
		name = store.Name()
	}

	return &Coordinator[V]{
		store:      store,
		logger:     o.logger.WithCache(observe.CacheMeta{Cache: name}),
		middleware: o.middleware,
		executor:   o.executor,
		flights:    make(map[string]*flight),
	}
}

// Store returns the underlying store.
func (c *Coordinator[V]) Store() *Store[V] {
	return c.store
}

// InFlight returns the number of fetches currently running.
func (c *Coordinator[V]) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.flights)
}

// Fetch returns the cached value for k, or runs fetch once for all
// concurrent callers of the same key and caches its result.
func (c *Coordinator[V]) Fetch(ctx context.Context, k KeyComponents, fetch FetchFunc[V]) (V, error) {
	var zero V
	if c.store == nil {
		return zero, ErrNilStore
	}
	if fetch == nil {
		return zero, ErrNilFetcher
	}

	key := c.store.Key(k)

	c.mu.Lock()
	f, shared := c.flights[key]
	if shared {
		f.waiters++
	} else {
		if v, ok := c.store.get(ctx, key); ok {
			c.mu.Unlock()
			return v, nil
		}
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel, waiters: 1}
		c.flights[key] = f
	}
	ch := c.group.DoChan(key, func() (any, error) {
		return c.run(key, k.Source, f, fetch)
	})
	c.mu.Unlock()

	if shared {
		c.store.metrics.RecordShared(ctx, c.store.name)
	}
	return c.wait(ctx, key, f, ch)
}

// run is the shared fetch. It always unregisters its flight, and a panic in
// the fetch path or in caching the result is returned as an error.
func (c *Coordinator[V]) run(key, source string, f *flight, fetch FetchFunc[V]) (val any, err error) {
	defer f.cancel()
	defer c.finish(key, f)
	defer func() {
		if r := recover(); r != nil {
			val, err = nil, fmt.Errorf("%w: %v", ErrFetchPanicked, r)
			c.logger.Error(f.ctx, "fetch panicked",
				observe.Field{Key: "key_hash", Value: Fingerprint(key)},
				observe.Field{Key: "panic", Value: fmt.Sprint(r)},
			)
		}
	}()

	v, err := c.invoke(f.ctx, key, source, fetch)
	if err != nil {
		return nil, err
	}
	c.store.set(f.ctx, key, source, v, 0)
	return v, nil
}

// finish unregisters f if it is still the current flight for key.
func (c *Coordinator[V]) finish(key string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flights[key] == f {
		delete(c.flights, key)
		c.group.Forget(key)
	}
}

func (c *Coordinator[V]) wait(ctx context.Context, key string, f *flight, ch <-chan singleflight.Result) (V, error) {
	select {
	case res := <-ch:
		return c.result(res)
	case <-ctx.Done():
	}

	select {
	case res := <-ch:
		return c.result(res)
	default:
	}

	c.leave(ctx, key, f)
	var zero V
	return zero, ctx.Err()
}

func (c *Coordinator[V]) result(res singleflight.Result) (V, error) {
	var zero V
	if res.Err != nil {
		return zero, res.Err
	}
	if res.Val == nil {
		return zero, nil
	}
	v, ok := res.Val.(V)
	if !ok {
		return zero, fmt.Errorf("%w: %T", ErrUnexpectedType, res.Val)
	}
	return v, nil
}

// leave drops one waiter. The last waiter out cancels the fetch and
// unregisters it so the next caller starts fresh.
func (c *Coordinator[V]) leave(ctx context.Context, key string, f *flight) {
	c.mu.Lock()
	f.waiters--
	last := f.waiters == 0
	if last && c.flights[key] == f {
		delete(c.flights, key)
		c.group.Forget(key)
	}
	c.mu.Unlock()

	if last {
		f.cancel()
		c.logger.Debug(ctx, "fetch abandoned by all callers",
			observe.Field{Key: "key_hash", Value: Fingerprint(key)},
		)
	}
}

func (c *Coordinator[V]) invoke(ctx context.Context, key, source string, fetch FetchFunc[V]) (V, error) {
	op := Protect(c.executor, func(ctx context.Context) (V, error) {
		return c.safeCall(ctx, key, fetch)
	})

	if c.middleware == nil {
		return op(ctx)
	}

	meta := observe.CacheMeta{
		Cache:   c.store.name,
		Source:  NormalizeSource(source),
		KeyHash: Fingerprint(key),
	}
	res, err := c.middleware.Wrap(meta, func(ctx context.Context) (any, error) {
		v, err := op(ctx)
		return v, err
	})(ctx)

	var zero V
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(V)
	if !ok {
		return zero, fmt.Errorf("%w: %T", ErrUnexpectedType, res)
	}
	return v, nil
}

func (c *Coordinator[V]) safeCall(ctx context.Context, key string, fetch FetchFunc[V]) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero V
			v, err = zero, fmt.Errorf("%w: %v", ErrFetchPanicked, r)
			c.logger.Error(ctx, "fetch panicked",
				observe.Field{Key: "key_hash", Value: Fingerprint(key)},
				observe.Field{Key: "panic", Value: fmt.Sprint(r)},
			)
		}
	}()
	return fetch(ctx)
}
