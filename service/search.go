package service

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/pharmaconsult/searchcache/cache"
	"github.com/pharmaconsult/searchcache/observe"
)

// internalSources are served from the internal tier. Everything else is an
// external source.
var internalSources = map[string]bool{
	"internal":   true,
	"aggregated": true,
	"all":        true,
}

// IsInternalSource reports whether source is cached in the internal tier.
func IsInternalSource(source string) bool {
	return internalSources[cache.NormalizeSource(source)]
}

// Register installs the backend for source, replacing any earlier one.
func (s *Service[V]) Register(source string, backend Backend[V]) error {
	if backend == nil {
		return ErrNilBackend
	}
	source = cache.NormalizeSource(source)

	s.mu.Lock()
	s.backends[source] = backend
	s.mu.Unlock()

	s.logger.Debug(context.Background(), "backend registered",
		observe.Field{Key: "source", Value: source},
		observe.Field{Key: "resilient", Value: s.executors[source] != nil},
	)
	return nil
}

// Sources returns the registered source names in sorted order.
func (s *Service[V]) Sources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.backends)
}

// Search returns the cached result for k or runs the registered backend once
// for all concurrent callers of the same request.
func (s *Service[V]) Search(ctx context.Context, k cache.KeyComponents) (V, error) {
	t, fetch, err := s.route(k)
	if err != nil {
		var zero V
		return zero, err
	}
	return t.coord.Fetch(ctx, k, fetch)
}

// SearchDebounced is Search for search-as-you-type callers. Within scope,
// typically a session ID, a call superseded by a newer one before the
// debounce delay elapses returns cache.ErrSuperseded. Without a configured
// delay it behaves like Search.
func (s *Service[V]) SearchDebounced(ctx context.Context, scope string, k cache.KeyComponents) (V, error) {
	t, fetch, err := s.route(k)
	if err != nil {
		var zero V
		return zero, err
	}
	if t.debouncer == nil {
		return t.coord.Fetch(ctx, k, fetch)
	}
	return t.debouncer.Fetch(ctx, scope, k, fetch)
}

func (s *Service[V]) route(k cache.KeyComponents) (*tier[V], cache.FetchFunc[V], error) {
	if s.closed.Load() {
		return nil, nil, ErrClosed
	}
	fetch, err := s.fetcher(k)
	if err != nil {
		return nil, nil, err
	}
	return s.tierFor(k.Source), fetch, nil
}

func (s *Service[V]) tierFor(source string) *tier[V] {
	if IsInternalSource(source) {
		return s.internal
	}
	return s.external
}

// fetcher binds the backend for k's source to k and wraps it in the
// source's executor.
func (s *Service[V]) fetcher(k cache.KeyComponents) (cache.FetchFunc[V], error) {
	source := cache.NormalizeSource(k.Source)

	s.mu.RLock()
	backend, ok := s.backends[source]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, source)
	}

	canonical := cache.Canonicalize(k)
	fetch := func(ctx context.Context) (v V, err error) {
		// The executor may run the call on its own goroutine.
		defer func() {
			if r := recover(); r != nil {
				var zero V
				v, err = zero, fmt.Errorf("%w: %v", cache.ErrFetchPanicked, r)
			}
		}()
		return backend(ctx, canonical)
	}

	if exec, ok := s.executors[source]; ok {
		return cache.Protect(exec, fetch), nil
	}
	return fetch, nil
}

func sortedKeys[M ~map[string]E, E any](m M) []string {
	return slices.Sorted(maps.Keys(m))
}
