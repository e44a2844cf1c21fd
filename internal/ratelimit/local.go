package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// bucket pairs a token bucket with the block state spec.md §4.3 layers on
// top: once depleted, the identifier is blocked for the class's full
// blockPeriod regardless of how quickly the bucket refills.
type bucket struct {
	limiter      *rate.Limiter
	blockedUntil time.Time
}

// Local is the in-process C3 tier, used when Redis is disabled or C2 has
// tripped the distributed tier open. Buckets are keyed by (class, id) and
// never expire — a long-lived server accumulates one bucket per remote
// address it has seen, matching the teacher's InMemoryRateLimiter shape.
type Local struct {
	mu      sync.Mutex
	buckets map[Class]map[string]*bucket
}

func NewLocal() *Local {
	return &Local{buckets: make(map[Class]map[string]*bucket)}
}

func (l *Local) Check(ctx context.Context, id string, class Class) Result {
	cfg, known := classConfigs[class]
	if !known {
		return Result{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	byID, ok := l.buckets[class]
	if !ok {
		byID = make(map[string]*bucket)
		l.buckets[class] = byID
	}

	b, ok := byID[id]
	if !ok {
		refillRate := rate.Every(cfg.refillPeriod / time.Duration(cfg.points))
		b = &bucket{limiter: rate.NewLimiter(refillRate, cfg.points)}
		byID[id] = b
	}

	now := time.Now()
	if now.Before(b.blockedUntil) {
		return Result{
			Allowed:           false,
			RetryAfterSeconds: int(b.blockedUntil.Sub(now).Seconds()) + 1,
			Remaining:         0,
		}
	}

	if !b.limiter.AllowN(now, 1) {
		b.blockedUntil = now.Add(cfg.blockPeriod)
		return Result{
			Allowed:           false,
			RetryAfterSeconds: int(cfg.blockPeriod.Seconds()),
			Remaining:         0,
		}
	}

	return Result{
		Allowed:   true,
		Remaining: int(b.limiter.Tokens()),
	}
}
