package model

import "time"

// Room is a named multi-user broadcast domain with durable identity
// (spec.md §3). isActive tracks whether any membership is currently active.
type Room struct {
	ID               string    `db:"id" json:"roomId"`
	Name             string    `db:"name" json:"name"`
	CreatedBy        string    `db:"created_by" json:"createdBy"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
	LastActivity     time.Time `db:"last_activity" json:"lastActivity"`
	IsActive         bool      `db:"is_active" json:"isActive"`
	CurrentUsers     int       `db:"current_users" json:"currentUsers"`
	PeakUsers        int       `db:"peak_users" json:"peakUsers"`
	MessageCount     int64     `db:"message_count" json:"messageCount"`
	TotalUniqueUsers int       `db:"total_unique_users" json:"totalUniqueUsers"`
}

// RoomSummary is the shape returned by the `room_list` command (spec.md §6).
type RoomSummary struct {
	Name      string    `json:"name"`
	Users     int       `json:"users"`
	Messages  int64     `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r *Room) Summary() RoomSummary {
	return RoomSummary{
		Name:      r.Name,
		Users:     r.CurrentUsers,
		Messages:  r.MessageCount,
		CreatedAt: r.CreatedAt,
	}
}
