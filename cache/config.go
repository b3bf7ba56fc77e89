package cache

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the limits of one Store. It is copied at construction and
// never changes afterwards.
type Config struct {
	// MaxEntries is the entry-count ceiling.
	// Default: 1000
	MaxEntries int `koanf:"max_entries"`

	// DefaultTTL applies when neither an override nor a Policy preset does.
	// Default: 5m
	DefaultTTL time.Duration `koanf:"default_ttl"`

	// MaxMemoryMB is the soft memory ceiling in MiB. A single entry larger
	// than 20% of it is never cached.
	// Default: 100
	MaxMemoryMB float64 `koanf:"max_memory_mb"`

	// EnableStats toggles hit, miss, eviction and skip counters.
	EnableStats bool `koanf:"enable_stats"`
}

// Store limits and thresholds.
const (
	defaultMaxEntries  = 1000
	defaultTTL         = 5 * time.Minute
	defaultMaxMemoryMB = 100

	// pressureRatio of MaxMemoryMB marks the store as under memory pressure.
	pressureRatio = 0.9

	// maxEntryRatio of MaxMemoryMB is the largest single entry accepted.
	maxEntryRatio = 0.2

	// evictFraction of entries is dropped when the entry ceiling is reached.
	evictFraction = 0.1

	bytesPerMB = 1 << 20
)

var (
	// ErrInvalidMaxEntries indicates a negative MaxEntries.
	ErrInvalidMaxEntries = errors.New("cache: max entries must not be negative")

	// ErrInvalidMaxMemory indicates a negative MaxMemoryMB.
	ErrInvalidMaxMemory = errors.New("cache: max memory must not be negative")

	// ErrInvalidTTL indicates a negative DefaultTTL.
	ErrInvalidTTL = errors.New("cache: default ttl must not be negative")
)

// DefaultConfig returns a Config with every default applied and stats on.
func DefaultConfig() Config {
	return Config{
		MaxEntries:  defaultMaxEntries,
		DefaultTTL:  defaultTTL,
		MaxMemoryMB: defaultMaxMemoryMB,
		EnableStats: true,
	}
}

// Validate reports negative limits. Zero values are valid and mean "default".
func (c Config) Validate() error {
	var errs []error
	if c.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidMaxEntries, c.MaxEntries))
	}
	if c.MaxMemoryMB < 0 {
		errs = append(errs, fmt.Errorf("%w: %g", ErrInvalidMaxMemory, c.MaxMemoryMB))
	}
	if c.DefaultTTL < 0 {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidTTL, c.DefaultTTL))
	}
	return errors.Join(errs...)
}

func (c Config) withDefaults() Config {
	if c.MaxEntries <= 0 {
		c.MaxEntries = defaultMaxEntries
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = defaultTTL
	}
	if c.MaxMemoryMB <= 0 {
		c.MaxMemoryMB = defaultMaxMemoryMB
	}
	return c
}

func (c Config) maxBytes() int64 {
	return int64(c.MaxMemoryMB * bytesPerMB)
}

func (c Config) maxEntryBytes() int64 {
	return int64(c.MaxMemoryMB * maxEntryRatio * bytesPerMB)
}

func (c Config) pressureBytes() int64 {
	return int64(c.MaxMemoryMB * pressureRatio * bytesPerMB)
}
