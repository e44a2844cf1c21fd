package router

import (
	"time"

	"github.com/relaychat/server/internal/model"
)

// frameBase carries the two fields every server frame has: the type
// discriminator and an ISO-8601 timestamp (spec.md §6).
type frameBase struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func base(t string) frameBase {
	return frameBase{Type: t, Timestamp: time.Now()}
}

// UserView is the {userId, username} shape embedded in several frames.
type UserView struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// ErrorView is the {code, message, correlationId, retryAfter?} shape
// spec.md §6 requires on every error frame.
type ErrorView struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId"`
	RetryAfter    int    `json:"retryAfter,omitempty"`
}

type SystemFrame struct {
	frameBase
	Message string `json:"message"`
}

func NewSystemFrame(message string) SystemFrame {
	return SystemFrame{frameBase: base("system"), Message: message}
}

type AuthSuccessFrame struct {
	frameBase
	User UserView `json:"user"`
}

type AuthErrorFrame struct {
	frameBase
	Error ErrorView `json:"error"`
}

// RoomView is the {id, name} shape in room_created.
type RoomView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type RoomCreatedFrame struct {
	frameBase
	Room RoomView `json:"room"`
}

// RoomJoinedRoomView is room_joined's richer {id, name, memberCount} shape.
type RoomJoinedRoomView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"memberCount"`
}

type RoomJoinedFrame struct {
	frameBase
	Room    RoomJoinedRoomView `json:"room"`
	Members []string           `json:"members"`
}

type RoomLeftFrame struct {
	frameBase
	RoomName string `json:"roomName"`
}

// MessageView is the wire shape of model.Message (spec.md §6's `message`
// field): timestamp rendered as RFC3339 text rather than the model's
// time.Time, matching every other frame's ISO-8601 convention.
type MessageView struct {
	ID        string `json:"id"`
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Edited    bool   `json:"edited"`
}

func NewMessageView(m *model.Message) MessageView {
	if m == nil {
		return MessageView{}
	}
	return MessageView{
		ID:        m.ID,
		RoomID:    m.RoomID,
		UserID:    m.UserID,
		Username:  m.Username,
		Content:   m.Content,
		Timestamp: m.Timestamp.Format(time.RFC3339),
		Type:      string(m.Kind),
		Edited:    m.Edited,
	}
}

type MessageFrame struct {
	frameBase
	Message MessageView `json:"message"`
}

func NewMessageFrame(m *model.Message) MessageFrame {
	return MessageFrame{frameBase: base("message"), Message: NewMessageView(m)}
}

type MessageHistoryFrame struct {
	frameBase
	Messages []MessageView `json:"messages"`
}

func NewMessageHistoryFrame(messages []*model.Message) MessageHistoryFrame {
	views := make([]MessageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, NewMessageView(m))
	}
	return MessageHistoryFrame{frameBase: base("message_history"), Messages: views}
}

type UserJoinedFrame struct {
	frameBase
	User        UserView `json:"user"`
	MemberCount int      `json:"memberCount"`
}

// WithTimestamp stamps the frame's type/timestamp base. Callers that
// build these frames from bus events (rather than through a router
// handler) use this instead of duplicating base("user_joined") here.
func (f UserJoinedFrame) WithTimestamp() UserJoinedFrame {
	f.frameBase = base("user_joined")
	return f
}

type UserLeftFrame struct {
	frameBase
	User        UserView `json:"user"`
	MemberCount int      `json:"memberCount"`
}

func (f UserLeftFrame) WithTimestamp() UserLeftFrame {
	f.frameBase = base("user_left")
	return f
}

type TypingUpdateFrame struct {
	frameBase
	TypingUsers []string `json:"typingUsers"`
}

func (f TypingUpdateFrame) WithTimestamp() TypingUpdateFrame {
	f.frameBase = base("typing_update")
	return f
}

type RoomListFrame struct {
	frameBase
	Rooms []model.RoomSummary `json:"rooms"`
	Count int                 `json:"count"`
}

type UserListFrame struct {
	frameBase
	Room  string     `json:"room,omitempty"`
	Users []UserView `json:"users"`
	Count int        `json:"count"`
}

type ErrorFrame struct {
	frameBase
	Error ErrorView `json:"error"`
}

type NotificationFrame struct {
	frameBase
	Notification interface{} `json:"notification"`
}

// ClearScreenFrame answers the `clear` command. spec.md §6 lists this
// type in literal upper case alongside the otherwise-lowercase set.
type ClearScreenFrame struct {
	frameBase
}

func NewClearScreenFrame() ClearScreenFrame {
	return ClearScreenFrame{frameBase: base("CLEAR_SCREEN")}
}
