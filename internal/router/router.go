package router

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaychat/server/internal/apperrors"
	"github.com/relaychat/server/internal/messageservice"
	"github.com/relaychat/server/internal/model"
	"github.com/relaychat/server/internal/ratelimit"
	"github.com/relaychat/server/internal/roomregistry"
	"github.com/relaychat/server/internal/userregistry"
)

// defaultRoomListLimit bounds the `rooms` command when no limit arg is given.
const defaultRoomListLimit = 20

// defaultUserListLimit bounds the `users` command result.
const defaultUserListLimit = 200

// Router is the concrete C11: one handler per client-frame type, each
// wrapped so a panic becomes an ERROR frame carrying a fresh
// correlationId instead of taking the connection down (spec.md §4.11).
type Router struct {
	limiter  ratelimit.Limiter
	users    *userregistry.Registry
	rooms    *roomregistry.Registry
	messages *messageservice.Service
	logger   *zap.Logger
}

func New(limiter ratelimit.Limiter, users *userregistry.Registry, rooms *roomregistry.Registry, messages *messageservice.Service, logger *zap.Logger) *Router {
	return &Router{
		limiter:  limiter,
		users:    users,
		rooms:    rooms,
		messages: messages,
		logger:   logger,
	}
}

// classForType maps a client frame type to its C3 rate-limit class
// (spec.md §4.3); types not listed pass through unchecked.
func classForType(t string) ratelimit.Class {
	switch t {
	case TypeAuth:
		return ratelimit.ClassConnection
	case TypeCreateRoom:
		return ratelimit.ClassRoomCreate
	case TypeSendMessage:
		return ratelimit.ClassMessage
	case TypeCommand:
		return ratelimit.ClassCommand
	default:
		return ""
	}
}

// Dispatch parses raw as a JSON envelope, enforces the rate limit and
// auth precondition, and routes it to the one handler for its type
// (spec.md §4.10/§4.11). It never returns an error to the caller —
// every failure is surfaced to sender as a wire frame.
func (r *Router) Dispatch(ctx context.Context, state *ConnState, sender Sender, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("dispatch: recovered from panic", zap.Any("panic", rec), zap.String("connection_id", state.ConnectionID))
			r.sendError(sender, apperrors.New(apperrors.CodeInternal, "internal error"))
		}
	}()

	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		r.sendError(sender, apperrors.New(apperrors.CodeInvalidMessage, "malformed frame"))
		return
	}
	if frame.Type == "" {
		r.sendError(sender, apperrors.New(apperrors.CodeInvalidMessage, "missing type"))
		return
	}

	if class := classForType(frame.Type); class != "" {
		res := r.limiter.Check(ctx, state.RemoteAddr, class)
		if !res.Allowed {
			r.sendError(sender, apperrors.New(apperrors.CodeRateLimit, "rate limit exceeded").WithRetryAfter(res.RetryAfterSeconds))
			return
		}
	}

	if frame.Type != TypeAuth && !state.Authenticated {
		r.sendError(sender, apperrors.ErrUnauthorized)
		return
	}

	switch frame.Type {
	case TypeAuth:
		r.handleAuth(ctx, state, sender, frame)
	case TypeCreateRoom:
		r.handleCreateRoom(ctx, state, sender, frame)
	case TypeJoinRoom:
		r.handleJoinRoom(ctx, state, sender, frame)
	case TypeLeaveRoom:
		r.handleLeaveRoom(ctx, state, sender)
	case TypeSendMessage:
		r.handleSendMessage(ctx, state, sender, frame)
	case TypeTypingStart:
		r.handleTyping(ctx, state, sender, true)
	case TypeTypingStop:
		r.handleTyping(ctx, state, sender, false)
	case TypeCommand:
		r.handleCommand(ctx, state, sender, frame)
	default:
		r.sendError(sender, apperrors.ErrInvalidMessage)
	}
}

func (r *Router) handleAuth(ctx context.Context, state *ConnState, sender Sender, frame ClientFrame) {
	result, err := r.users.Authenticate(ctx, frame.Username, state.ConnectionID, frame.SessionToken)
	if err != nil {
		r.sendAuthError(sender, err)
		return
	}

	state.Authenticated = true
	state.UserID = result.User.ID
	state.Username = result.User.Username

	sender.Send(AuthSuccessFrame{
		frameBase: base("auth_success"),
		User:      UserView{UserID: result.User.ID, Username: result.User.Username},
	})
}

func (r *Router) handleCreateRoom(ctx context.Context, state *ConnState, sender Sender, frame ClientFrame) {
	room, err := r.rooms.Create(ctx, frame.RoomName, state.UserID)
	if err != nil {
		r.sendError(sender, err)
		return
	}

	sender.Send(RoomCreatedFrame{frameBase: base("room_created"), Room: RoomView{ID: room.ID, Name: room.Name}})

	r.joinRoom(ctx, state, sender, room.Name)
}

func (r *Router) handleJoinRoom(ctx context.Context, state *ConnState, sender Sender, frame ClientFrame) {
	r.joinRoom(ctx, state, sender, frame.RoomName)
}

// joinRoom is shared by create_room's auto-join and a bare join_room
// frame. A connection holds at most one room at a time (spec.md §4
// Connection.currentRoomId), so joining a new room leaves the old one.
func (r *Router) joinRoom(ctx context.Context, state *ConnState, sender Sender, roomName string) {
	if state.RoomID != "" && state.RoomName != roomName {
		if err := r.rooms.Leave(ctx, state.RoomID, state.UserID, state.Username); err != nil {
			r.logger.Warn("joinRoom: failed to leave previous room", zap.Error(err))
			r.sendError(sender, err)
			return
		}
		state.RoomID, state.RoomName = "", ""
	}

	joined, err := r.rooms.Join(ctx, roomName, state.UserID, state.Username)
	if err != nil {
		r.sendError(sender, err)
		return
	}

	state.RoomID = joined.RoomID
	state.RoomName = joined.Name

	sender.Send(RoomJoinedFrame{
		frameBase: base("room_joined"),
		Room:      RoomJoinedRoomView{ID: joined.RoomID, Name: joined.Name, MemberCount: joined.MemberCount},
		Members:   joined.Members,
	})

	history, err := r.messages.History(ctx, joined.RoomID, 0, "")
	if err != nil {
		r.logger.Warn("joinRoom: failed to load history", zap.Error(err))
		return
	}
	sender.Send(NewMessageHistoryFrame(history))
}

func (r *Router) handleLeaveRoom(ctx context.Context, state *ConnState, sender Sender) {
	if state.RoomID == "" {
		r.sendError(sender, apperrors.New(apperrors.CodeRoomNotFound, "not currently in a room"))
		return
	}

	roomName := state.RoomName
	if err := r.rooms.Leave(ctx, state.RoomID, state.UserID, state.Username); err != nil {
		r.sendError(sender, err)
		return
	}

	state.RoomID, state.RoomName = "", ""
	sender.Send(RoomLeftFrame{frameBase: base("room_left"), RoomName: roomName})
}

func (r *Router) handleSendMessage(ctx context.Context, state *ConnState, sender Sender, frame ClientFrame) {
	if state.RoomID == "" {
		r.sendError(sender, apperrors.New(apperrors.CodeRoomNotFound, "not currently in a room"))
		return
	}

	if _, err := r.messages.Send(ctx, state.RoomID, state.UserID, state.Username, state.ConnectionID, frame.Content); err != nil {
		r.sendError(sender, err)
	}
	// On success, the sender receives no direct frame: fan-out to the
	// room (excluding this connection) happens via C6/C10.
}

func (r *Router) handleTyping(ctx context.Context, state *ConnState, sender Sender, isTyping bool) {
	if state.RoomID == "" {
		return
	}
	r.rooms.Typing(ctx, state.RoomID, state.UserID, state.Username, isTyping)
}

func (r *Router) handleCommand(ctx context.Context, state *ConnState, sender Sender, frame ClientFrame) {
	switch frame.Command {
	case "rooms":
		r.commandRooms(ctx, sender, frame.Args)
	case "users":
		r.commandUsers(ctx, sender)
	case "help":
		sender.Send(NewSystemFrame(helpText))
	case "stats":
		r.commandStats(ctx, state, sender)
	case "me":
		r.commandMe(state, sender)
	case "clear":
		sender.Send(NewClearScreenFrame())
	default:
		r.sendError(sender, apperrors.New(apperrors.CodeInvalidMessage, "unknown command"))
	}
}

const helpText = "commands: rooms [limit], users, help, stats, me, clear"

func (r *Router) commandRooms(ctx context.Context, sender Sender, args []string) {
	limit := defaultRoomListLimit
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			limit = n
		}
	}

	rooms, err := r.rooms.List(ctx, limit, 0)
	if err != nil {
		r.sendError(sender, err)
		return
	}

	summaries := make([]model.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, room.Summary())
	}
	sender.Send(RoomListFrame{frameBase: base("room_list"), Rooms: summaries, Count: len(summaries)})
}

func (r *Router) commandUsers(ctx context.Context, sender Sender) {
	users, err := r.users.OnlineUsers(ctx, defaultUserListLimit, 0)
	if err != nil {
		r.sendError(sender, err)
		return
	}

	views := make([]UserView, 0, len(users))
	for _, u := range users {
		views = append(views, UserView{UserID: u.ID, Username: u.Username})
	}
	sender.Send(UserListFrame{frameBase: base("user_list"), Users: views, Count: len(views)})
}

func (r *Router) commandStats(ctx context.Context, state *ConnState, sender Sender) {
	stats := map[string]interface{}{
		"connectionId": state.ConnectionID,
		"room":         state.RoomName,
	}
	if state.RoomID != "" {
		if roomStats, err := r.messages.RoomStats(ctx, state.RoomID, 24); err == nil && roomStats != nil {
			stats["messageCount"] = roomStats.MessageCount
			stats["uniqueSenders"] = roomStats.UniqueSenders
		}
	}
	sender.Send(NotificationFrame{frameBase: base("notification"), Notification: stats})
}

func (r *Router) commandMe(state *ConnState, sender Sender) {
	sender.Send(NotificationFrame{
		frameBase: base("notification"),
		Notification: map[string]string{
			"userId":   state.UserID,
			"username": state.Username,
			"room":     state.RoomName,
		},
	})
}

func (r *Router) sendError(sender Sender, err error) {
	var ce *apperrors.ChatError
	code := apperrors.CodeOf(err)
	message := apperrors.MessageOf(err)
	retryAfter := 0
	if apperrors.As(err, &ce) {
		retryAfter = ce.RetryAfter
	}

	sender.Send(ErrorFrame{
		frameBase: base("error"),
		Error: ErrorView{
			Code:          string(code),
			Message:       message,
			CorrelationID: uuid.New().String(),
			RetryAfter:    retryAfter,
		},
	})
}

func (r *Router) sendAuthError(sender Sender, err error) {
	sender.Send(AuthErrorFrame{
		frameBase: base("auth_error"),
		Error: ErrorView{
			Code:          string(apperrors.CodeOf(err)),
			Message:       apperrors.MessageOf(err),
			CorrelationID: uuid.New().String(),
		},
	})
}
