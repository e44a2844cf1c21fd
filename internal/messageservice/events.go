package messageservice

import "github.com/relaychat/server/internal/model"

// MessageEnvelope is the payload published on a room's message channel,
// mirroring the `message` wire frame's `message` field (spec.md §6).
// SenderConnectionID is carried so C10's local fan-out can exclude the
// sending connection's own socket (spec.md §8's fan-out invariant excludes
// the sender) without excluding that user's other devices; it is never
// surfaced on the wire frame itself.
type MessageEnvelope struct {
	Message             *model.Message `json:"message"`
	SenderConnectionID  string         `json:"senderConnectionId,omitempty"`
}

// EventType tags message_edited/message_deleted on the room events channel.
type EventType string

const (
	EventMessageEdited  EventType = "message_edited"
	EventMessageDeleted EventType = "message_deleted"
)

// MessageEditedEvent is published on a room's events channel.
type MessageEditedEvent struct {
	Type    EventType      `json:"type"`
	Message *model.Message `json:"message"`
}

// MessageDeletedEvent is published on a room's events channel.
type MessageDeletedEvent struct {
	Type      EventType `json:"type"`
	MessageID string    `json:"messageId"`
	RoomID    string    `json:"roomId"`
}
