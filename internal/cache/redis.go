package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/relaychat/server/internal/breaker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisTier is the L2 tier, reached exclusively through a C2 breaker —
// every call here degrades to "miss" rather than propagating a Redis
// outage to the caller, generalized from the teacher's pkg/cache.Cache.
type redisTier struct {
	client *redis.Client
	br     *breaker.Breaker
}

func newRedisTier(client *redis.Client, logger *zap.Logger) *redisTier {
	return &redisTier{client: client, br: breaker.New("cache-l2", logger)}
}

func (r *redisTier) get(ctx context.Context, key string, dest *string) bool {
	found := false
	_ = r.br.Execute(ctx, func(ctx context.Context) error {
		val, err := r.client.Get(ctx, key).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		*dest = val
		found = true
		return nil
	}, nil)
	return found
}

func (r *redisTier) set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = r.br.Execute(ctx, func(ctx context.Context) error {
		return r.client.Set(ctx, key, data, ttl).Err()
	}, nil)
}

func (r *redisTier) delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	_ = r.br.Execute(ctx, func(ctx context.Context) error {
		return r.client.Del(ctx, keys...).Err()
	}, nil)
}

func (r *redisTier) deletePattern(ctx context.Context, glob string) {
	_ = r.br.Execute(ctx, func(ctx context.Context) error {
		var cursor uint64
		for {
			keys, next, err := r.client.Scan(ctx, cursor, glob, 100).Result()
			if err != nil {
				return err
			}
			if len(keys) > 0 {
				if err := r.client.Del(ctx, keys...).Err(); err != nil {
					return err
				}
			}
			cursor = next
			if cursor == 0 {
				return nil
			}
		}
	}, nil)
}

func (r *redisTier) BreakerStats() breaker.Stats {
	return r.br.Stats()
}
