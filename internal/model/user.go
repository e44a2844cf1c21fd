package model

import (
	"database/sql"
	"time"
)

// User is the durable identity behind one or more connections sharing a
// username (spec.md §3: "policy: allow concurrent connections for same
// username — treated as reconnection/multi-device").
type User struct {
	ID              string         `db:"id" json:"userId"`
	Username        string         `db:"username" json:"username"`
	CreatedAt       time.Time      `db:"created_at" json:"createdAt"`
	LastSeen        time.Time      `db:"last_seen" json:"lastSeen"`
	IsOnline        bool           `db:"is_online" json:"isOnline"`
	CurrentRoomName sql.NullString `db:"current_room_name" json:"currentRoomName,omitempty"`
	TotalMessages   int64          `db:"total_messages" json:"totalMessages"`
	ConnectionCount int            `db:"connection_count" json:"connectionCount"`
	RoomsJoined     int            `db:"rooms_joined" json:"roomsJoined"`
}

// GetCurrentRoomName returns the room name or "" when the user isn't in one.
func (u *User) GetCurrentRoomName() string {
	if u.CurrentRoomName.Valid {
		return u.CurrentRoomName.String
	}
	return ""
}

// MaxRoomsJoined bounds the roomsJoined counter per spec.md §3.
const MaxRoomsJoined = 50
