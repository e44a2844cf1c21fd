package model

import (
	"database/sql"
	"time"
)

// Membership is the relation between a user and a room (spec.md §3).
// At most one active membership exists per (roomId, userId) pair.
type Membership struct {
	RoomID         string       `db:"room_id" json:"roomId"`
	UserID         string       `db:"user_id" json:"userId"`
	Username       string       `db:"username" json:"username"`
	JoinedAt       time.Time    `db:"joined_at" json:"joinedAt"`
	LeftAt         sql.NullTime `db:"left_at" json:"leftAt,omitempty"`
	IsActive       bool         `db:"is_active" json:"isActive"`
	MessagesInRoom int64        `db:"messages_in_room" json:"messagesInRoom"`
	JoinCount      int          `db:"join_count" json:"joinCount"`
	LastMessageAt  sql.NullTime `db:"last_message_at" json:"lastMessageAt,omitempty"`
}
