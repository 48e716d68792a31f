package config

import "sync/atomic"

// Settings is the runtime-mutable cache configuration. A snapshot is read
// by the eviction engine and download coordinator at the start of every
// relevant operation, so a swap mid-operation is never observed torn.
type Settings struct {
	MaxSizeGB          float64
	CleanupThreshold   float64
	MinFreeSpaceGB     float64
	FavoriteProtection bool
	PlatformPriority   map[string]int
}

// MaxBytes returns the cache size limit in bytes.
func (s *Settings) MaxBytes() int64 {
	return int64(s.MaxSizeGB * float64(1<<30))
}

// PlatformWeight returns the configured weight for a platform, or 0.
func (s *Settings) PlatformWeight(platform string) int {
	return s.PlatformPriority[platform]
}

// Runtime holds the current Settings behind an atomic pointer. Mutation is
// a whole-value swap, never field-by-field assignment.
type Runtime struct {
	current atomic.Pointer[Settings]
}

// NewRuntime creates a Runtime seeded from the loaded cache config.
func NewRuntime(cc CacheConfig) *Runtime {
	r := &Runtime{}
	r.Swap(Settings{
		MaxSizeGB:          cc.MaxSizeGB,
		CleanupThreshold:   cc.CleanupThreshold,
		MinFreeSpaceGB:     cc.MinFreeSpaceGB,
		FavoriteProtection: cc.FavoriteProtection,
		PlatformPriority:   cc.PlatformPriority,
	})
	return r
}

// Snapshot returns the current settings. Callers must treat the returned
// value as read-only.
func (r *Runtime) Snapshot() *Settings {
	return r.current.Load()
}

// Swap atomically replaces the current settings.
func (r *Runtime) Swap(s Settings) {
	if s.PlatformPriority == nil {
		s.PlatformPriority = DefaultPlatformPriority()
	}
	r.current.Store(&s)
}
