// Package router implements C11 Router: typed-envelope demultiplex from
// a connection's inbound frames to C7/C8/C9 and the command handler.
// Generalized from the teacher's Client.handleMessage switch
// (internal/ws/client.go) into an explicit type table per spec.md §9's
// "tagged-variant representation with exhaustive handling" design note —
// an unrecognized type falls to a default arm returning INVALID_MESSAGE
// instead of silently doing nothing.
package router

// Client-to-server envelope types (spec.md §6). Every field beyond Type
// is optional and only meaningful for the types that use it; this
// mirrors the wire protocol's flat per-type object shape rather than a
// nested "payload" envelope.
const (
	TypeAuth        = "auth"
	TypeCreateRoom  = "create_room"
	TypeJoinRoom    = "join_room"
	TypeLeaveRoom   = "leave_room"
	TypeSendMessage = "send_message"
	TypeTypingStart = "typing_start"
	TypeTypingStop  = "typing_stop"
	TypeCommand     = "command"
)

// ClientFrame is the generic shape of a client-to-server frame: every
// type-specific field a handler might read, left zero when unused.
type ClientFrame struct {
	Type         string   `json:"type"`
	Username     string   `json:"username,omitempty"`
	SessionToken string   `json:"sessionToken,omitempty"`
	RoomName     string   `json:"roomName,omitempty"`
	Content      string   `json:"content,omitempty"`
	Command      string   `json:"command,omitempty"`
	Args         []string `json:"args,omitempty"`
}
