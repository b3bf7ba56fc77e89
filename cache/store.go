package cache

import (
	"cmp"
	"context"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pharmaconsult/searchcache/observe"
)

// hitWeight is how much later each hit makes an entry look for eviction.
const hitWeight = time.Minute

type entry[V any] struct {
	data      V
	createdAt time.Time
	ttl       time.Duration
	hitCount  uint64
	sizeBytes int64
}

func (e *entry[V]) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// score orders entries for eviction, lowest first.
func (e *entry[V]) score() int64 {
	return e.createdAt.UnixMilli() + int64(e.hitCount)*hitWeight.Milliseconds()
}

// Store is a bounded, TTL-expiring cache of search results.
//
// Contract:
//   - Concurrency: safe for concurrent use; one mutex guards all state.
//   - Errors: Get reports a miss as (zero, false); Set never fails and skips
//     values it cannot size or that are too large.
//   - Bounds: Len never exceeds Config.MaxEntries.
type Store[V any] struct {
	cfg         Config
	name        string
	policy      Policy
	keyer       Keyer
	sizer       Sizer[V]
	logger      observe.Logger
	metrics     observe.Metrics
	clock       clock.Clock
	onMalformed MalformedKeyHandler

	mu       sync.Mutex
	entries  map[string]*entry[V]
	memBytes int64
	counters counters
}

// NewStore creates a Store that sizes values with DefaultSizer. Zero Config
// fields take their defaults.
func NewStore[V any](cfg Config, opts ...Option) *Store[V] {
	return NewSizedStore[V](cfg, nil, opts...)
}

// NewSizedStore creates a Store that sizes values with sizer. A nil sizer
// means DefaultSizer.
func NewSizedStore[V any](cfg Config, sizer Sizer[V], opts ...Option) *Store[V] {
	o := options{name: "default"}
	for _, opt := range opts {
		opt(&o)
	}

	cfg = cfg.withDefaults()
	if sizer == nil {
		sizer = DefaultSizer[V]
	}

	s := &Store[V]{
		cfg:         cfg,
		name:        o.name,
		keyer:       o.keyer,
		sizer:       sizer,
		logger:      o.logger,
		metrics:     o.metrics,
		clock:       o.clock,
		onMalformed: o.onMalformed,
		entries:     make(map[string]*entry[V]),
	}

	if s.keyer == nil {
		s.keyer = DefaultKeyer{}
	}
	if s.logger == nil {
		s.logger = observe.NopLogger()
	}
	s.logger = s.logger.WithCache(observe.CacheMeta{Cache: s.name})
	if s.metrics == nil {
		s.metrics = observe.NoopMetrics()
	}
	if s.clock == nil {
		s.clock = clock.New()
	}

	if o.policy != nil {
		s.policy = o.policy.withDefault(cfg.DefaultTTL)
	} else {
		s.policy = Policy{Presets: DefaultPresets()}.withDefault(cfg.DefaultTTL)
	}

	return s
}

// Name returns the store name.
func (s *Store[V]) Name() string { return s.name }

// Config returns the effective configuration.
func (s *Store[V]) Config() Config { return s.cfg }

// Policy returns the effective TTL policy.
func (s *Store[V]) Policy() Policy { return s.policy }

// Key returns the canonical key for k.
func (s *Store[V]) Key(k KeyComponents) string { return s.keyer.Key(k) }

// Len returns the number of entries, including expired ones not yet removed.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Get returns the cached value for k. Expired entries are removed and
// reported as a miss.
func (s *Store[V]) Get(ctx context.Context, k KeyComponents) (V, bool) {
	return s.get(ctx, s.keyer.Key(k))
}

func (s *Store[V]) get(ctx context.Context, key string) (V, bool) {
	var zero V
	now := s.clock.Now()

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.countLocked(func(c *counters) { c.misses++ })
		s.mu.Unlock()
		s.metrics.RecordLookup(ctx, s.name, observe.ResultMiss)
		return zero, false
	}

	if e.expired(now) {
		s.removeLocked(key, e)
		s.countLocked(func(c *counters) {
			c.misses++
			c.expirations++
		})
		s.mu.Unlock()
		s.metrics.RecordLookup(ctx, s.name, observe.ResultMiss)
		s.metrics.RecordEviction(ctx, s.name, observe.ReasonTTL, 1)
		return zero, false
	}

	e.hitCount++
	v := e.data
	s.countLocked(func(c *counters) { c.hits++ })
	s.mu.Unlock()

	s.metrics.RecordLookup(ctx, s.name, observe.ResultHit)
	return v, true
}

// Set caches v under k with the TTL the policy resolves for k.Source.
func (s *Store[V]) Set(ctx context.Context, k KeyComponents, v V) {
	s.SetWithTTL(ctx, k, v, 0)
}

// SetWithTTL caches v under k. A ttl <= 0 defers to the policy. If the
// resolved TTL is not positive the value is not cached.
func (s *Store[V]) SetWithTTL(ctx context.Context, k KeyComponents, v V, ttl time.Duration) {
	s.set(ctx, s.keyer.Key(k), k.Source, v, ttl)
}

type evictions struct {
	ttl      int
	capacity int
	memory   int
}

func (s *Store[V]) set(ctx context.Context, key, source string, v V, override time.Duration) {
	ttl := s.policy.EffectiveTTL(override, source)
	if ttl <= 0 {
		s.logger.Debug(ctx, "value not cached: policy disables caching",
			observe.Field{Key: "key_hash", Value: Fingerprint(key)},
		)
		return
	}

	size, err := measure(s.sizer, v)
	if err != nil {
		s.skip(ctx, observe.ReasonUnencodable)
		s.logger.Warn(ctx, "value not cached: size estimation failed",
			observe.Field{Key: "key_hash", Value: Fingerprint(key)},
			observe.Field{Key: "error", Value: err},
		)
		return
	}
	if limit := s.cfg.maxEntryBytes(); size > limit {
		s.skip(ctx, observe.ReasonOversized)
		s.logger.Warn(ctx, "value not cached: exceeds per-entry size limit",
			observe.Field{Key: "key_hash", Value: Fingerprint(key)},
			observe.Field{Key: "size_bytes", Value: size},
			observe.Field{Key: "limit_bytes", Value: limit},
		)
		return
	}

	now := s.clock.Now()
	var ev evictions

	s.mu.Lock()
	if s.underPressureLocked() {
		ev.ttl = s.sweepExpiredLocked(now)
		if _, replacing := s.entries[key]; !replacing && len(s.entries) >= s.cfg.MaxEntries {
			n := max(1, int(math.Ceil(float64(len(s.entries))*evictFraction)))
			ev.capacity = s.evictLocked(key, func(removed int) bool { return removed >= n })
		}
	}

	var oldSize int64
	if old, ok := s.entries[key]; ok {
		oldSize = old.sizeBytes
	}
	maxBytes := s.cfg.maxBytes()
	if s.memBytes-oldSize+size > maxBytes {
		ev.memory = s.evictLocked(key, func(int) bool { return s.memBytes-oldSize+size <= maxBytes })
	}

	if old, ok := s.entries[key]; ok {
		s.memBytes -= old.sizeBytes
	}
	s.entries[key] = &entry[V]{
		data:      v,
		createdAt: now,
		ttl:       ttl,
		sizeBytes: size,
	}
	s.memBytes += size

	s.countLocked(func(c *counters) {
		c.expirations += uint64(ev.ttl)
		c.evictions += uint64(ev.capacity + ev.memory)
	})
	entries := len(s.entries)
	s.mu.Unlock()

	s.metrics.RecordEviction(ctx, s.name, observe.ReasonTTL, ev.ttl)
	s.metrics.RecordEviction(ctx, s.name, observe.ReasonCapacity, ev.capacity)
	s.metrics.RecordEviction(ctx, s.name, observe.ReasonMemory, ev.memory)
	if ev.capacity+ev.memory > 0 {
		s.logger.Debug(ctx, "evicted entries under pressure",
			observe.Field{Key: "expired", Value: ev.ttl},
			observe.Field{Key: "capacity", Value: ev.capacity},
			observe.Field{Key: "memory", Value: ev.memory},
			observe.Field{Key: "entries", Value: entries},
		)
	}
}

// Delete removes k and reports whether it was present.
func (s *Store[V]) Delete(ctx context.Context, k KeyComponents) bool {
	key := s.keyer.Key(k)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if ok {
		s.removeLocked(key, e)
	}
	return ok
}

// Clear drops every entry and resets the counters.
func (s *Store[V]) Clear(ctx context.Context) {
	s.mu.Lock()
	n := len(s.entries)
	s.entries = make(map[string]*entry[V])
	s.memBytes = 0
	s.counters = counters{}
	s.mu.Unlock()

	s.logger.Info(ctx, "cache cleared", observe.Field{Key: "removed", Value: n})
}

type malformedKey struct {
	key string
	err error
}

// ClearSource removes every entry whose key has the given source, compared
// case-insensitively, and returns how many were removed. Keys the Keyer
// cannot parse are left in place and reported to the malformed-key handler.
func (s *Store[V]) ClearSource(ctx context.Context, source string) int {
	target := NormalizeSource(source)
	var bad []malformedKey
	removed := 0

	s.mu.Lock()
	for key, e := range s.entries {
		k, err := s.keyer.Parse(key)
		if err != nil {
			bad = append(bad, malformedKey{key: key, err: err})
			continue
		}
		if NormalizeSource(k.Source) == target {
			s.removeLocked(key, e)
			removed++
		}
	}
	if len(bad) > 0 {
		s.countLocked(func(c *counters) { c.skipped += uint64(len(bad)) })
	}
	s.mu.Unlock()

	for _, m := range bad {
		s.metrics.RecordSkip(ctx, s.name, observe.ReasonMalformed)
		if s.onMalformed != nil {
			s.onMalformed(ctx, m.key, m.err)
			continue
		}
		// The parse error may quote the key, so only the fingerprint is logged.
		s.logger.Warn(ctx, "clear source skipped entry with malformed key",
			observe.Field{Key: "key_hash", Value: Fingerprint(m.key)},
		)
	}

	s.logger.Info(ctx, "cleared source",
		observe.Field{Key: "source", Value: target},
		observe.Field{Key: "removed", Value: removed},
		observe.Field{Key: "malformed", Value: len(bad)},
	)
	return removed
}

// Stats returns a freshly computed snapshot.
func (s *Store[V]) Stats() Stats {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	return computeStats(s.entries, s.memBytes, s.counters, now)
}

// Entries describes every entry, sorted by key.
func (s *Store[V]) Entries() []EntryInfo {
	now := s.clock.Now()

	s.mu.Lock()
	out := make([]EntryInfo, 0, len(s.entries))
	for key, e := range s.entries {
		out = append(out, EntryInfo{
			Key:       key,
			Hits:      e.hitCount,
			Age:       now.Sub(e.createdAt),
			SizeBytes: e.sizeBytes,
		})
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b EntryInfo) int { return cmp.Compare(a.Key, b.Key) })
	return out
}

func (s *Store[V]) underPressureLocked() bool {
	return s.memBytes > s.cfg.pressureBytes() || len(s.entries) >= s.cfg.MaxEntries
}

func (s *Store[V]) sweepExpiredLocked(now time.Time) int {
	n := 0
	for key, e := range s.entries {
		if e.expired(now) {
			s.removeLocked(key, e)
			n++
		}
	}
	return n
}

// evictLocked removes entries other than keep in ascending score order until
// done reports true, and returns how many it removed.
func (s *Store[V]) evictLocked(keep string, done func(removed int) bool) int {
	type candidate struct {
		key   string
		score int64
	}

	candidates := make([]candidate, 0, len(s.entries))
	for key, e := range s.entries {
		if key != keep {
			candidates = append(candidates, candidate{key: key, score: e.score()})
		}
	}
	slices.SortFunc(candidates, func(a, b candidate) int {
		if c := cmp.Compare(a.score, b.score); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})

	removed := 0
	for _, c := range candidates {
		if done(removed) {
			break
		}
		s.removeLocked(c.key, s.entries[c.key])
		removed++
	}
	return removed
}

func (s *Store[V]) removeLocked(key string, e *entry[V]) {
	delete(s.entries, key)
	s.memBytes -= e.sizeBytes
}

func (s *Store[V]) countLocked(fn func(*counters)) {
	if s.cfg.EnableStats {
		fn(&s.counters)
	}
}

func (s *Store[V]) skip(ctx context.Context, reason string) {
	s.mu.Lock()
	s.countLocked(func(c *counters) { c.skipped++ })
	s.mu.Unlock()
	s.metrics.RecordSkip(ctx, s.name, reason)
}
