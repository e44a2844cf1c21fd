package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestTwoTier_GetMissWithoutLoaderReturnsNil(t *testing.T) {
	c := New(nil, zap.NewNop())
	v, err := c.Get(context.Background(), "missing", DefaultTTL, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != nil {
		t.Fatalf("expected nil value, got %v", v)
	}
	if c.Stats().Misses != 1 {
		t.Fatalf("expected 1 miss recorded, got %d", c.Stats().Misses)
	}
}

func TestTwoTier_GetLoaderPopulatesL1(t *testing.T) {
	c := New(nil, zap.NewNop())
	ctx := context.Background()

	calls := 0
	loader := func(ctx context.Context) (interface{}, error) {
		calls++
		return "loaded-value", nil
	}

	v1, err := c.Get(ctx, "key", DefaultTTL, loader)
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	if v1 != "loaded-value" {
		t.Fatalf("expected loaded-value, got %v", v1)
	}

	v2, err := c.Get(ctx, "key", DefaultTTL, loader)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if v2 != "loaded-value" {
		t.Fatalf("expected cached value, got %v", v2)
	}
	if calls != 1 {
		t.Fatalf("expected loader called once, got %d", calls)
	}
	if c.Stats().Hits != 1 {
		t.Fatalf("expected 1 hit, got %d", c.Stats().Hits)
	}
}

func TestTwoTier_LoaderErrorPropagates(t *testing.T) {
	c := New(nil, zap.NewNop())
	boom := errors.New("boom")
	_, err := c.Get(context.Background(), "key", DefaultTTL, func(context.Context) (interface{}, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected loader error to propagate, got %v", err)
	}
}

func TestTwoTier_InvalidateCascadesToDependents(t *testing.T) {
	c := New(nil, zap.NewNop())
	ctx := context.Background()

	if err := c.Set(ctx, "room:1", "room-data", DefaultTTL); err != nil {
		t.Fatalf("set room: %v", err)
	}
	if err := c.Set(ctx, "room:1:messages", "messages-data", DefaultTTL, "room:1"); err != nil {
		t.Fatalf("set messages: %v", err)
	}

	c.Invalidate(ctx, "room:1", true)

	if v, _ := c.Get(ctx, "room:1", DefaultTTL, nil); v != nil {
		t.Fatal("expected room:1 to be invalidated")
	}
	if v, _ := c.Get(ctx, "room:1:messages", DefaultTTL, nil); v != nil {
		t.Fatal("expected room:1:messages to cascade-invalidate")
	}
}

func TestTwoTier_InvalidatePatternRemovesMatchingKeys(t *testing.T) {
	c := New(nil, zap.NewNop())
	ctx := context.Background()

	_ = c.Set(ctx, "room:1:messages", "a", DefaultTTL)
	_ = c.Set(ctx, "room:2:messages", "b", DefaultTTL)
	_ = c.Set(ctx, "user:1", "c", DefaultTTL)

	c.InvalidatePattern(ctx, "room:*")

	if v, _ := c.Get(ctx, "room:1:messages", DefaultTTL, nil); v != nil {
		t.Fatal("expected room:1:messages removed")
	}
	if v, _ := c.Get(ctx, "room:2:messages", DefaultTTL, nil); v != nil {
		t.Fatal("expected room:2:messages removed")
	}
	if v, _ := c.Get(ctx, "user:1", DefaultTTL, nil); v == nil {
		t.Fatal("expected user:1 to survive the room:* pattern invalidation")
	}
}

func TestTwoTier_SetClampsOutOfRangeTTL(t *testing.T) {
	l := newLocal()
	l.set("k", "v", 0, nil)
	l.mu.Lock()
	ttlUsed := time.Until(l.entries["k"].expiresAt)
	l.mu.Unlock()
	if ttlUsed <= 0 || ttlUsed > DefaultTTL+time.Second {
		t.Fatalf("expected ttl to fall back to default, got %v", ttlUsed)
	}
}
