package roomregistry

// RoomCreatedEvent is published on bus.RoomCreated (global channel) and
// mirrors the `room_created` wire frame's `room` field (spec.md §6).
type RoomCreatedEvent struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
}

// EventType tags the room-events channel's union so a single subscriber
// can demultiplex user_joined/user_left/typing_update/message_edited/
// message_deleted without five separate channels.
type EventType string

const (
	EventUserJoined   EventType = "user_joined"
	EventUserLeft     EventType = "user_left"
	EventTypingUpdate EventType = "typing_update"
)

// UserJoinedEvent is published on a room's events channel and mirrors
// the `user_joined` wire frame.
type UserJoinedEvent struct {
	Type        EventType `json:"type"`
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	MemberCount int       `json:"memberCount"`
}

// UserLeftEvent mirrors the `user_left` wire frame.
type UserLeftEvent struct {
	Type        EventType `json:"type"`
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	MemberCount int       `json:"memberCount"`
}

// TypingUpdateEvent mirrors the `typing_update` wire frame.
type TypingUpdateEvent struct {
	Type        EventType `json:"type"`
	RoomID      string    `json:"roomId"`
	TypingUsers []string  `json:"typingUsers"`
}

// JoinResult is the direct (non-bus) response to the joining connection,
// shaping the `room_joined` wire frame.
type JoinResult struct {
	RoomID      string   `json:"roomId"`
	Name        string   `json:"name"`
	MemberCount int      `json:"memberCount"`
	Members     []string `json:"members"`
}
