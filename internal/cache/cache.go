// Package cache implements C1 Cache: a two-tier cache (process-local TTL
// map, plus a shared Redis tier reached through C2) with dependency-based
// invalidation, generalized from the teacher's pkg/cache.Cache
// (NewRedis/Close/Set/Get/Delete/Exists/SetNX/Increment/Expire) into the
// richer shape spec.md §4.1 calls for.
package cache

import (
	"context"
	"time"
)

// DefaultTTL and MaxTTL bound L1 entries per spec.md §4.1 ("typically
// 60s, capped at 300s").
const (
	DefaultTTL = 60 * time.Second
	MaxTTL     = 300 * time.Second
)

// Loader produces a value on a full cache miss; its result is written to
// both tiers with the requested ttl.
type Loader func(ctx context.Context) (interface{}, error)

// Stats mirrors spec.md §4.1's reported counters.
type Stats struct {
	Hits          int64
	Misses        int64
	Sets          int64
	Invalidations int64
	Warmups       int64
}

func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is C1's public surface.
type Cache interface {
	// Get consults L1, then L2 via C2, then loader (if supplied),
	// writing any loaded value back to both tiers with ttl.
	Get(ctx context.Context, key string, ttl time.Duration, loader Loader) (interface{}, error)
	// Set writes value to both tiers and records deps as reverse
	// dependencies: invalidating any entry in deps transitively
	// invalidates key.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration, deps ...string) error
	// Invalidate removes key (and, if cascade, every key depending on it,
	// transitively) from both tiers.
	Invalidate(ctx context.Context, key string, cascade bool)
	// InvalidatePattern removes every L1 key matching a "*"-suffixed
	// glob and issues the equivalent pattern delete against L2.
	InvalidatePattern(ctx context.Context, glob string)
	Stats() Stats
}
