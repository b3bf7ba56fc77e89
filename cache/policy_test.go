package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPresets(t *testing.T) {
	p := DefaultPresets()
	assert.Equal(t, 5*time.Minute, p["internal"])
	assert.Equal(t, 30*time.Minute, p["pubmed"])
	assert.Equal(t, time.Hour, p["clinicaltrials"])
	assert.Equal(t, time.Hour, p["fda"])
	assert.Equal(t, 10*time.Minute, p["aggregated"])
}

func TestPolicy_Resolve(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		source string
		want   time.Duration
	}{
		{"pubmed", 30 * time.Minute},
		{"PubMed", 30 * time.Minute},
		{" FDA ", time.Hour},
		{"aggregated", 10 * time.Minute},
		{"unknown-registry", p.DefaultTTL},
		{"", p.DefaultTTL},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Resolve(tt.source), "source %q", tt.source)
	}
}

func TestPolicy_EffectiveTTL(t *testing.T) {
	p := Policy{
		DefaultTTL: 5 * time.Minute,
		MaxTTL:     time.Hour,
		Presets:    map[string]time.Duration{"fda": 2 * time.Hour},
	}

	assert.Equal(t, 5*time.Minute, p.EffectiveTTL(0, "internal"), "default")
	assert.Equal(t, 10*time.Second, p.EffectiveTTL(10*time.Second, "fda"), "override wins")
	assert.Equal(t, 5*time.Minute, p.EffectiveTTL(-time.Second, "other"), "negative override ignored")
	assert.Equal(t, time.Hour, p.EffectiveTTL(0, "fda"), "preset clamped")
	assert.Equal(t, time.Hour, p.EffectiveTTL(48*time.Hour, "other"), "override clamped")

	p.MaxTTL = 0
	assert.Equal(t, 2*time.Hour, p.EffectiveTTL(0, "fda"), "no clamp")
}

func TestNoCachePolicy(t *testing.T) {
	p := NoCachePolicy()
	assert.False(t, p.ShouldCache())
	assert.Zero(t, p.Resolve("pubmed"))
	assert.Zero(t, p.EffectiveTTL(time.Hour, "pubmed"))
	assert.True(t, DefaultPolicy().ShouldCache())
}

func TestPolicy_WithDefault(t *testing.T) {
	presets := map[string]time.Duration{"pubmed": time.Minute}
	p := Policy{Presets: presets}.withDefault(3 * time.Minute)

	assert.Equal(t, 3*time.Minute, p.Resolve("other"))

	presets["pubmed"] = time.Hour
	assert.Equal(t, time.Minute, p.Resolve("pubmed"), "presets are copied")

	kept := Policy{DefaultTTL: time.Second}.withDefault(time.Hour)
	assert.Equal(t, time.Second, kept.DefaultTTL)
}
