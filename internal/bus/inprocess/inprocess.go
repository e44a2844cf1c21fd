// Package inprocess is the same-process fan-out Bus implementation, used
// when Redis is absent (config.RedisConfig.Enabled == false); the choice
// is made once at startup. When C2 trips open on the Redis bus, redisbus
// delivers to its own local subscribers instead — the core never notices
// the difference between this and redisbus.
package inprocess

import (
	"context"
	"strings"
	"sync"

	"github.com/relaychat/server/internal/bus"
)

type subscription struct {
	id      uint64
	pattern string
	handler bus.Handler
}

// Bus fans published payloads out to local subscribers only; it provides
// no cross-instance delivery, matching spec.md §4.6's degraded mode.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscription
	nextID uint64
}

func New() *Bus {
	return &Bus{}
}

func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	matched := make([]bus.Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if matches(s.pattern, channel) {
			matched = append(matched, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range matched {
		h(payload)
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, channel string, handler bus.Handler) (func(), error) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	sub := &subscription{id: id, pattern: channel, handler: handler}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}, nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
	return nil
}

// matches supports an exact channel name or a "*"-suffixed prefix pattern,
// mirroring Redis PSUBSCRIBE's glob semantics for the subset this bus uses.
func matches(pattern, channel string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(channel, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == channel
}
