package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/relaychat/server/internal/breaker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Distributed is the Redis-backed C3 tier: a sliding-window
// ZADD/ZREMRANGEBYSCORE/ZCARD pipeline per (class, id), generalized from
// the teacher's RedisRateLimiter. A separate block key with a TTL of the
// class's blockPeriod enforces the post-depletion block window. Every
// check runs through a C2 breaker; a tripped breaker (or any Redis error)
// degrades to fallback, matching C6's "core never branches on bus==nil"
// idiom for C3's distributed tier.
type Distributed struct {
	client   *redis.Client
	br       *breaker.Breaker
	fallback Limiter
}

func NewDistributed(client *redis.Client, logger *zap.Logger, fallback Limiter) *Distributed {
	return &Distributed{
		client:   client,
		br:       breaker.New("ratelimit-redis", logger),
		fallback: fallback,
	}
}

func (d *Distributed) Check(ctx context.Context, id string, class Class) Result {
	cfg, known := classConfigs[class]
	if !known {
		return Result{Allowed: true}
	}

	var result Result
	err := d.br.Execute(ctx, func(ctx context.Context) error {
		r, err := d.checkRedis(ctx, id, class, cfg)
		if err != nil {
			return err
		}
		result = r
		return nil
	}, func(ctx context.Context) error {
		result = d.fallback.Check(ctx, id, class)
		return nil
	})
	if err != nil {
		// Breaker open with no usable fallback result: fail safe by
		// deferring to the in-process tier directly.
		return d.fallback.Check(ctx, id, class)
	}
	return result
}

func (d *Distributed) checkRedis(ctx context.Context, id string, class Class, cfg classConfig) (Result, error) {
	blockKey := fmt.Sprintf("ratelimit:block:%s:%s", class, id)
	blocked, err := d.client.Exists(ctx, blockKey).Result()
	if err != nil {
		return Result{}, err
	}
	if blocked > 0 {
		ttl, err := d.client.TTL(ctx, blockKey).Result()
		if err != nil {
			return Result{}, err
		}
		return Result{Allowed: false, RetryAfterSeconds: int(ttl.Seconds()) + 1}, nil
	}

	windowKey := fmt.Sprintf("ratelimit:window:%s:%s", class, id)
	now := time.Now().UnixNano()
	windowStart := now - cfg.refillPeriod.Nanoseconds()

	pipe := d.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, windowKey, "0", fmt.Sprintf("%d", windowStart))
	pipe.ZAdd(ctx, windowKey, redis.Z{Score: float64(now), Member: now})
	countCmd := pipe.ZCard(ctx, windowKey)
	pipe.Expire(ctx, windowKey, cfg.refillPeriod)

	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}

	count, err := countCmd.Result()
	if err != nil {
		return Result{}, err
	}

	if count > int64(cfg.points) {
		if err := d.client.Set(ctx, blockKey, 1, cfg.blockPeriod).Err(); err != nil {
			return Result{}, err
		}
		return Result{Allowed: false, RetryAfterSeconds: int(cfg.blockPeriod.Seconds())}, nil
	}

	return Result{Allowed: true, Remaining: cfg.points - int(count)}, nil
}

// BreakerStats exposes this tier's breaker health.
func (d *Distributed) BreakerStats() breaker.Stats {
	return d.br.Stats()
}
