// Package bus defines C6 Bus: an interface with two implementations —
// shared (Redis) and in-process — selected at startup, so the core never
// branches on whether a shared bus is actually reachable.
package bus

import "context"

// Channel families from spec.md §4.6. RoomMessages/RoomEvents are
// parameterized by room ID via RoomMessagesChannel/RoomEventsChannel.
const (
	GlobalBroadcast = "global:broadcast"
	RoomCreated     = "room:created"
)

// RoomMessagesChannel is the per-room message channel, `room:{roomId}:messages`.
func RoomMessagesChannel(roomID string) string {
	return "room:" + roomID + ":messages"
}

// RoomEventsChannel is the per-room event channel, `room:{roomId}:events`.
func RoomEventsChannel(roomID string) string {
	return "room:" + roomID + ":events"
}

// Handler receives a published payload's raw bytes.
type Handler func(payload []byte)

// Bus is C6: best-effort publish, asynchronous subscribe. Publish must
// never block the caller on a slow or unreachable backend for longer than
// C2 allows — implementations wrap their own I/O in the circuit breaker.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe registers handler for channel (or a pattern ending in
	// "*" for room channels) and returns an unsubscribe func.
	Subscribe(ctx context.Context, channel string, handler Handler) (unsubscribe func(), err error)
	Close() error
}
