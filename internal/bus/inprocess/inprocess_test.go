package inprocess

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/relaychat/server/internal/bus"
)

func TestBus_PublishDeliversToExactChannelSubscriber(t *testing.T) {
	b := New()
	ctx := context.Background()

	received := make(chan []byte, 1)
	unsub, err := b.Subscribe(ctx, bus.GlobalBroadcast, func(payload []byte) {
		received <- payload
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	if err := b.Publish(ctx, bus.GlobalBroadcast, []byte("hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case payload := <-received:
		if string(payload) != "hello" {
			t.Fatalf("expected hello, got %s", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestBus_PublishMatchesWildcardPattern(t *testing.T) {
	b := New()
	ctx := context.Background()

	received := make(chan []byte, 1)
	unsub, err := b.Subscribe(ctx, "room:*", func(payload []byte) {
		received <- payload
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	if err := b.Publish(ctx, bus.RoomMessagesChannel("abc"), []byte("msg")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for wildcard delivery")
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	ctx := context.Background()

	var mu sync.Mutex
	count := 0
	unsub, err := b.Subscribe(ctx, bus.GlobalBroadcast, func(payload []byte) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	unsub()
	if err := b.Publish(ctx, bus.GlobalBroadcast, []byte("after unsubscribe")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Fatalf("expected no deliveries after unsubscribe, got %d", count)
	}
}

func TestBus_NoSubscribersIsNotAnError(t *testing.T) {
	b := New()
	if err := b.Publish(context.Background(), bus.RoomCreated, []byte("x")); err != nil {
		t.Fatalf("expected publish with no subscribers to succeed, got %v", err)
	}
}
