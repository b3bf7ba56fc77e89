package health

import (
	"context"
	"fmt"
)

// Usage is a point-in-time view of a cache against its limits.
type Usage struct {
	Entries     int
	MaxEntries  int
	MemoryMB    float64
	MaxMemoryMB float64
	HitRate     float64
}

// PressureCheckerConfig configures the cache pressure checker.
type PressureCheckerConfig struct {
	// WarningThreshold is the fill ratio, of entries or memory, at which the
	// cache reports Degraded. Default: 0.9, where eviction starts.
	WarningThreshold float64

	// CriticalThreshold is the memory fill ratio at which the cache reports
	// Unhealthy. A full entry table only degrades, because eviction always
	// makes room. Default: 1.0
	CriticalThreshold float64
}

// PressureChecker reports how close a cache is to its entry and memory limits.
type PressureChecker struct {
	name   string
	usage  func() Usage
	config PressureCheckerConfig
}

// NewPressureChecker creates a checker that samples usage on every check.
func NewPressureChecker(name string, usage func() Usage, config PressureCheckerConfig) *PressureChecker {
	if config.WarningThreshold <= 0 || config.WarningThreshold > 1 {
		config.WarningThreshold = 0.9
	}
	if config.CriticalThreshold <= 0 || config.CriticalThreshold > 1 {
		config.CriticalThreshold = 1.0
	}
	if config.CriticalThreshold < config.WarningThreshold {
		config.CriticalThreshold = config.WarningThreshold
	}
	return &PressureChecker{name: name, usage: usage, config: config}
}

// Name returns the cache name.
func (p *PressureChecker) Name() string {
	return p.name
}

// Check samples usage and grades it.
func (p *PressureChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}

	u := p.usage()
	entryRatio := ratio(float64(u.Entries), float64(u.MaxEntries))
	memoryRatio := ratio(u.MemoryMB, u.MaxMemoryMB)

	details := map[string]any{
		"entries":       u.Entries,
		"max_entries":   u.MaxEntries,
		"memory_mb":     u.MemoryMB,
		"max_memory_mb": u.MaxMemoryMB,
		"entry_ratio":   entryRatio,
		"memory_ratio":  memoryRatio,
		"hit_rate":      u.HitRate,
	}

	switch {
	case memoryRatio >= p.config.CriticalThreshold:
		return Unhealthy(
			fmt.Sprintf("cache memory at limit: %.1f%%", memoryRatio*100),
			ErrCheckFailed,
		).WithDetails(details)
	case memoryRatio >= p.config.WarningThreshold:
		return Degraded(fmt.Sprintf("cache memory high: %.1f%%", memoryRatio*100)).WithDetails(details)
	case entryRatio >= p.config.WarningThreshold:
		return Degraded(fmt.Sprintf("cache entries high: %.1f%%", entryRatio*100)).WithDetails(details)
	}
	return Healthy(fmt.Sprintf("cache usage normal: %.1f%% memory", memoryRatio*100)).WithDetails(details)
}

func ratio(used, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return used / limit
}
