package cache

import (
	"time"

	"github.com/pharmaconsult/searchcache/observe"
)

// Stats is a point-in-time view of a Store, recomputed on every call.
type Stats struct {
	Entries             int
	Hits                uint64
	Misses              uint64
	HitRate             float64
	MemoryUsedMB        float64
	AverageHitsPerEntry float64
	OldestEntryAge      time.Duration
	Evictions           uint64
	Expirations         uint64
	Skipped             uint64
}

// Snapshot returns the fields exported as gauges.
func (s Stats) Snapshot() observe.StatsSnapshot {
	return observe.StatsSnapshot{
		Entries:      s.Entries,
		MemoryUsedMB: s.MemoryUsedMB,
		HitRate:      s.HitRate,
	}
}

// EntryInfo describes one entry for diagnostics.
type EntryInfo struct {
	Key       string
	Hits      uint64
	Age       time.Duration
	SizeBytes int64
}

// counters are maintained only when Config.EnableStats is set.
type counters struct {
	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64
	skipped     uint64
}

func computeStats[V any](entries map[string]*entry[V], memBytes int64, c counters, now time.Time) Stats {
	s := Stats{
		Entries:      len(entries),
		Hits:         c.hits,
		Misses:       c.misses,
		MemoryUsedMB: float64(memBytes) / bytesPerMB,
		Evictions:    c.evictions,
		Expirations:  c.expirations,
		Skipped:      c.skipped,
	}

	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}

	if len(entries) == 0 {
		return s
	}

	var hitSum uint64
	var oldest time.Time
	for _, e := range entries {
		hitSum += e.hitCount
		if oldest.IsZero() || e.createdAt.Before(oldest) {
			oldest = e.createdAt
		}
	}
	s.AverageHitsPerEntry = float64(hitSum) / float64(len(entries))
	s.OldestEntryAge = now.Sub(oldest)

	return s
}
