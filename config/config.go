package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/pharmaconsult/searchcache/cache"
	"github.com/pharmaconsult/searchcache/observe"
	"github.com/pharmaconsult/searchcache/resilience"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the full searchcache configuration.
type Config struct {
	Observe observe.Config `koanf:"observe"`

	// Internal caches results from the internal knowledge base and
	// aggregated searches.
	Internal cache.Config `koanf:"internal"`

	// External caches results from public literature and regulatory sources.
	External cache.Config `koanf:"external"`

	Policy PolicyConfig `koanf:"policy"`

	// Backends holds resilience settings per normalized source name.
	Backends map[string]resilience.Config `koanf:"backends"`

	Prewarm PrewarmConfig `koanf:"prewarm"`
	Health  HealthConfig  `koanf:"health"`

	// Debounce delays typed-ahead searches per session. Zero disables it.
	Debounce time.Duration `koanf:"debounce"`
}

// PolicyConfig configures TTLs per source.
type PolicyConfig struct {
	// MaxTTL caps explicit TTL overrides.
	MaxTTL time.Duration `koanf:"max_ttl"`

	// Presets maps a source name to its TTL.
	Presets map[string]time.Duration `koanf:"presets"`
}

// CachePolicy converts the settings into a cache.Policy. The default TTL is
// left to each Store's Config.
func (p PolicyConfig) CachePolicy() cache.Policy {
	return cache.Policy{
		MaxTTL:  p.MaxTTL,
		Presets: maps.Clone(p.Presets),
	}
}

// PrewarmConfig configures cache warming.
type PrewarmConfig struct {
	// File is a YAML prewarm set. Empty disables warming on start.
	File string `koanf:"file"`

	// Concurrency bounds parallel fetches per tier.
	Concurrency int `koanf:"concurrency"`

	// OnStart warms both tiers while the service starts.
	OnStart bool `koanf:"on_start"`
}

// HealthConfig configures health reporting.
type HealthConfig struct {
	// Timeout bounds one round of checks.
	Timeout time.Duration `koanf:"timeout"`

	// PressureWarning is the cache fill ratio reported as degraded.
	PressureWarning float64 `koanf:"pressure_warning"`
}

// Default returns the built-in configuration.
func Default() Config {
	internal := cache.DefaultConfig()
	external := cache.DefaultConfig()
	external.MaxEntries = 5000
	external.MaxMemoryMB = 256

	return Config{
		Observe: observe.Config{
			ServiceName: "searchcache",
			Tracing:     observe.TracingConfig{Exporter: "none", SamplePct: 0.1},
			Metrics:     observe.MetricsConfig{Exporter: "none"},
			Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
		},
		Internal: internal,
		External: external,
		Policy: PolicyConfig{
			MaxTTL:  cache.DefaultPolicy().MaxTTL,
			Presets: cache.DefaultPresets(),
		},
		Backends: map[string]resilience.Config{
			"pubmed": {
				Timeout: 10 * time.Second, MaxAttempts: 3, RetryDelay: 250 * time.Millisecond,
				MaxFailures: 5, ResetTimeout: 30 * time.Second,
				RatePerSecond: 3, Burst: 3, MaxConcurrent: 4,
			},
			"clinicaltrials": {
				Timeout: 15 * time.Second, MaxAttempts: 3, RetryDelay: 500 * time.Millisecond,
				MaxFailures: 5, ResetTimeout: time.Minute,
				MaxConcurrent: 4,
			},
			"fda": {
				Timeout: 10 * time.Second, MaxAttempts: 3, RetryDelay: 250 * time.Millisecond,
				MaxFailures: 5, ResetTimeout: 30 * time.Second,
				RatePerSecond: 4, Burst: 4, MaxConcurrent: 4,
			},
			"internal": {
				Timeout: 5 * time.Second, MaxAttempts: 2, RetryDelay: 100 * time.Millisecond,
				MaxConcurrent: 16,
			},
		},
		Prewarm: PrewarmConfig{Concurrency: 4},
		Health:  HealthConfig{Timeout: 5 * time.Second, PressureWarning: 0.9},
	}
}

// Validate checks every section and reports all problems at once.
func (c Config) Validate() error {
	var errs []error
	add := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}

	add("observe", c.Observe.Validate())
	add("internal", c.Internal.Validate())
	add("external", c.External.Validate())

	if c.Policy.MaxTTL < 0 {
		add("policy", errors.New("max_ttl must not be negative"))
	}
	for _, source := range slices.Sorted(maps.Keys(c.Policy.Presets)) {
		if c.Policy.Presets[source] < 0 {
			add("policy", fmt.Errorf("preset %q must not be negative", source))
		}
	}

	for _, name := range slices.Sorted(maps.Keys(c.Backends)) {
		add("backends."+name, c.Backends[name].Validate())
	}

	if c.Prewarm.Concurrency < 0 {
		add("prewarm", errors.New("concurrency must not be negative"))
	}
	if c.Health.Timeout < 0 {
		add("health", errors.New("timeout must not be negative"))
	}
	if c.Health.PressureWarning < 0 || c.Health.PressureWarning > 1 {
		add("health", errors.New("pressure_warning must be between 0 and 1"))
	}
	if c.Debounce < 0 {
		add("debounce", errors.New("must not be negative"))
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
}
