package cache

import (
	"context"
	"fmt"

	"github.com/relaychat/server/internal/store"
)

// Warm preloads the active-room list and the last N messages for the
// top-K active rooms (N=20, K=20). It does not preload user info.
const (
	warmMessageCount = 20
	warmRoomCount    = 20
)

// RoomListKey and RoomMessagesKey are the keys Warm fills. C9's history
// reads RoomMessagesKey, so warmed history gets hit; RoomListKey is
// written here only, since C8's room listing reads the store directly.
func RoomListKey() string { return "rooms:active" }

func RoomMessagesKey(roomID string) string { return fmt.Sprintf("room:%s:messages:recent", roomID) }

// Warm is C1's `warm()`: called once at startup (and optionally on a
// ticker) to populate L1/L2 before traffic arrives.
func (c *TwoTier) Warm(ctx context.Context, st store.Store) error {
	rooms, err := st.Rooms().List(ctx, warmRoomCount, 0)
	if err != nil {
		return fmt.Errorf("warm: list active rooms: %w", err)
	}

	if err := c.Set(ctx, RoomListKey(), rooms, DefaultTTL); err != nil {
		return err
	}
	c.recordWarmup()

	for _, room := range rooms {
		messages, err := st.Messages().History(ctx, room.ID, warmMessageCount, "")
		if err != nil {
			continue
		}
		dep := RoomListKey()
		if err := c.Set(ctx, RoomMessagesKey(room.ID), messages, DefaultTTL, dep); err != nil {
			continue
		}
		c.recordWarmup()
	}

	return nil
}
