package cache

import (
	"maps"
	"strings"
	"time"
)

// Policy resolves how long results from each source stay fresh.
type Policy struct {
	// DefaultTTL applies to sources without a preset.
	// If zero, the owning Store's Config.DefaultTTL is used.
	DefaultTTL time.Duration

	// MaxTTL is the maximum allowed TTL. Resolved TTLs are clamped to this.
	// If zero, no maximum is enforced.
	MaxTTL time.Duration

	// Presets maps a lowercase source identifier to its TTL.
	Presets map[string]time.Duration

	// Disabled turns caching off: every resolved TTL is zero.
	Disabled bool
}

// DefaultPresets returns the per-source TTLs used by DefaultPolicy.
// Aggregated results refresh often; regulatory filings and trial registries
// change slowly.
func DefaultPresets() map[string]time.Duration {
	return map[string]time.Duration{
		"internal":       5 * time.Minute,
		"pubmed":         30 * time.Minute,
		"clinicaltrials": time.Hour,
		"fda":            time.Hour,
		"aggregated":     10 * time.Minute,
	}
}

// DefaultPolicy returns the default caching policy.
// DefaultTTL: 5 minutes, MaxTTL: 24 hours, Presets: DefaultPresets()
func DefaultPolicy() Policy {
	return Policy{
		DefaultTTL: 5 * time.Minute,
		MaxTTL:     24 * time.Hour,
		Presets:    DefaultPresets(),
	}
}

// NoCachePolicy returns a policy that disables caching entirely.
func NoCachePolicy() Policy {
	return Policy{Disabled: true}
}

// ShouldCache returns true if caching is enabled by this policy.
func (p Policy) ShouldCache() bool {
	return !p.Disabled
}

// Resolve returns the TTL for source. Lookup is case-insensitive; unknown
// sources get DefaultTTL.
func (p Policy) Resolve(source string) time.Duration {
	if p.Disabled {
		return 0
	}
	if ttl, ok := p.Presets[strings.ToLower(strings.TrimSpace(source))]; ok {
		return ttl
	}
	return p.DefaultTTL
}

// EffectiveTTL returns the TTL to use, applying the source preset when no
// positive override is given and clamping to MaxTTL.
func (p Policy) EffectiveTTL(override time.Duration, source string) time.Duration {
	if p.Disabled {
		return 0
	}

	ttl := override
	if ttl <= 0 {
		ttl = p.Resolve(source)
	}

	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}

	return ttl
}

// withDefault returns a copy of p that falls back to ttl when DefaultTTL is
// unset. Presets are copied so later mutation by the caller has no effect.
func (p Policy) withDefault(ttl time.Duration) Policy {
	if p.DefaultTTL == 0 {
		p.DefaultTTL = ttl
	}
	p.Presets = maps.Clone(p.Presets)
	return p
}
