// Package store defines C5 DurableStore: the capabilities the core needs
// from persistent storage, independent of backend. internal/store/postgres
// is the one concrete adapter; nothing outside it imports database/sql or
// sqlx directly.
package store

import (
	"context"
	"time"

	"github.com/relaychat/server/internal/model"
)

// Store is the full durable-storage surface, grouped by entity the way
// spec.md §3 groups them (Users, Rooms, Memberships, Messages).
type Store interface {
	Users() UserStore
	Rooms() RoomStore
	Memberships() MembershipStore
	Messages() MessageStore

	// Ping verifies the backend is reachable; it does not go through C2.
	Ping(ctx context.Context) error
	// Close releases backend resources. Safe to call once during shutdown.
	Close() error
}

// UserStore persists the User entity (spec.md §3) and its lifecycle.
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	UpdatePresence(ctx context.Context, userID string, online bool, currentRoom string) error
	IncrementMessageCount(ctx context.Context, userID string) error
	SetConnectionCount(ctx context.Context, userID string, delta int) error
	// PurgeInactive deletes users whose lastSeen predates the cutoff and
	// who are not currently online (housekeeping, SPEC_FULL.md).
	PurgeInactive(ctx context.Context, olderThan time.Duration) (int64, error)
}

// RoomStore persists the Room entity and its membership counters.
type RoomStore interface {
	// Create returns a *apperrors.ChatError with CodeRoomExists when the
	// room name is already taken (unique constraint on rooms.name).
	Create(ctx context.Context, room *model.Room) error
	GetByName(ctx context.Context, name string) (*model.Room, error)
	GetByID(ctx context.Context, id string) (*model.Room, error)
	List(ctx context.Context, limit, offset int) ([]*model.Room, error)
	Touch(ctx context.Context, roomID string) error
	// IncrementUserCount atomically applies delta (+1/-1) to
	// current_users, clamped at 0, bumps peak_users accordingly, and
	// flips is_active off when the new count is 0 — safe to call
	// concurrently from multiple server instances sharing a room
	// (spec.md §4.5 `incrementUserCount(roomId, ±1)`). Returns the new
	// current_users value.
	IncrementUserCount(ctx context.Context, roomID string, delta int) (int, error)
	IncrementMessageCount(ctx context.Context, roomID string) error
	// CleanupEmpty deactivates rooms with zero current users whose last
	// activity predates the cutoff (housekeeping, SPEC_FULL.md).
	CleanupEmpty(ctx context.Context, idleFor time.Duration) (int64, error)
}

// MembershipStore persists the Membership relation between users and rooms.
type MembershipStore interface {
	Join(ctx context.Context, m *model.Membership) error
	Leave(ctx context.Context, roomID, userID string) error
	GetActive(ctx context.Context, roomID, userID string) (*model.Membership, error)
	ListActiveByRoom(ctx context.Context, roomID string) ([]*model.Membership, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*model.Membership, error)
	RecordMessage(ctx context.Context, roomID, userID string) error
	// PurgeInactive deletes memberships left before the cutoff (housekeeping).
	PurgeInactive(ctx context.Context, olderThan time.Duration) (int64, error)
}

// MessageStore persists the Message entity, append-only per room.
type MessageStore interface {
	Create(ctx context.Context, msg *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	// History returns up to limit messages for roomID, oldest first,
	// optionally before beforeID for pagination (spec.md §6 `history`).
	History(ctx context.Context, roomID string, limit int, beforeID string) ([]*model.Message, error)
	// ByUser returns up to limit messages authored by userID across all
	// rooms, most recent first (spec.md §4.5 `byUser`).
	ByUser(ctx context.Context, userID string, limit int) ([]*model.Message, error)
	Stats(ctx context.Context, roomID string, hoursBack int) (*model.RoomStats, error)
	// Update rewrites a message's content and marks it edited (spec.md
	// §4.9's optional edit capability).
	Update(ctx context.Context, id, content string) (*model.Message, error)
	// Delete removes a message outright (spec.md §4.9's optional delete
	// capability).
	Delete(ctx context.Context, id string) error
	// PurgeExpired deletes messages older than the cutoff (housekeeping).
	PurgeExpired(ctx context.Context, olderThan time.Duration) (int64, error)
}
