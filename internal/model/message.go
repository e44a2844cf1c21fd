package model

import (
	"database/sql"
	"time"
)

// Kind distinguishes user-authored content from server-generated frames.
type Kind string

const (
	KindUser         Kind = "user"
	KindSystem       Kind = "system"
	KindNotification Kind = "notification"
)

// Message is immutable once assigned a messageId; timestamp is
// server-assigned and monotonic per room (spec.md §3).
type Message struct {
	ID        string       `db:"id" json:"id"`
	RoomID    string       `db:"room_id" json:"roomId"`
	UserID    string       `db:"user_id" json:"userId"`
	Username  string       `db:"username" json:"username"`
	Content   string       `db:"content" json:"content"`
	Timestamp time.Time    `db:"timestamp" json:"timestamp"`
	Kind      Kind         `db:"kind" json:"type"`
	Edited    bool         `db:"edited" json:"edited"`
	EditedAt  sql.NullTime `db:"edited_at" json:"editedAt,omitempty"`
}

// MaxContentLength is the sanitized-content cap from spec.md §3.
const MaxContentLength = 4096

// RoomStats is the output of DurableStore.Messages.Stats (spec.md §4.5).
type RoomStats struct {
	RoomID        string `json:"roomId"`
	MessageCount  int64  `json:"messageCount"`
	UniqueSenders int    `json:"uniqueSenders"`
	HoursBack     int    `json:"hoursBack"`
}
