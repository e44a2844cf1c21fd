// Package roomregistry implements C8 RoomRegistry: room creation,
// join/leave, typing indicators and member listing, generalized from
// the teacher's RoomService (internal/service/room_service.go) — same
// constructor-with-logger shape and look-up/mutate/log/return-DTO method
// bodies — retargeted at spec.md §4.8's single-room-per-connection model
// (no ownership, no invites, no roles — Non-goals).
package roomregistry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaychat/server/internal/apperrors"
	"github.com/relaychat/server/internal/bus"
	"github.com/relaychat/server/internal/cache"
	"github.com/relaychat/server/internal/model"
	"github.com/relaychat/server/internal/store"
	"github.com/relaychat/server/internal/validate"
)

const roomInfoTTL = 60 * time.Second

func roomByNameKey(name string) string { return "room:name:" + name }
func roomByIDKey(id string) string     { return "room:" + id + ":info" }

// Registry is the concrete C8 RoomRegistry.
type Registry struct {
	store  store.Store
	cache  cache.Cache
	bus    bus.Bus
	logger *zap.Logger

	creation *keyedMutex
	members  *memberSets
	typing   *typingSet
}

// New builds a Registry.
func New(st store.Store, c cache.Cache, b bus.Bus, logger *zap.Logger) *Registry {
	return &Registry{
		store:    st,
		cache:    c,
		bus:      b,
		logger:   logger,
		creation: newKeyedMutex(),
		members:  newMemberSets(),
		typing:   newTypingSet(),
	}
}

// Create implements spec.md §4.8's room creation: validate name → check
// local name-cache → check durable → allocate roomId → DurableStore.create
// → populate name-cache → publish room:created. The whole sequence is
// serialized per room name by the named-creation mutex so two concurrent
// creates of the same name can't both pass the pre-check.
func (r *Registry) Create(ctx context.Context, name, userID string) (*model.Room, error) {
	if !validate.RoomName(name) {
		return nil, apperrors.New(apperrors.CodeInvalidMessage, "invalid room name")
	}

	unlock := r.creation.lock(name)
	defer unlock()

	if v, _ := r.cache.Get(ctx, roomByNameKey(name), roomInfoTTL, nil); v != nil {
		return nil, apperrors.New(apperrors.CodeRoomExists, "a room with that name already exists")
	}

	existing, err := r.store.Rooms().GetByName(ctx, name)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "durable store is unavailable")
	}
	if existing != nil {
		r.cache.Set(ctx, roomByNameKey(name), existing, roomInfoTTL)
		return nil, apperrors.New(apperrors.CodeRoomExists, "a room with that name already exists")
	}

	room := &model.Room{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedBy: userID,
		CreatedAt: time.Now(),
		IsActive:  true,
	}
	if err := r.store.Rooms().Create(ctx, room); err != nil {
		var ce *apperrors.ChatError
		if apperrors.As(err, &ce) && ce.Code == apperrors.CodeRoomExists {
			return nil, err
		}
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "durable store is unavailable")
	}

	r.cache.Set(ctx, roomByNameKey(name), room, roomInfoTTL)
	r.cache.Set(ctx, roomByIDKey(room.ID), room, roomInfoTTL)

	r.publishRoomCreated(ctx, room)
	return room, nil
}

func (r *Registry) publishRoomCreated(ctx context.Context, room *model.Room) {
	payload, err := json.Marshal(RoomCreatedEvent{RoomID: room.ID, Name: room.Name})
	if err != nil {
		r.logger.Warn("create: failed to marshal room_created event", zap.Error(err))
		return
	}
	if err := r.bus.Publish(ctx, bus.RoomCreated, payload); err != nil {
		r.logger.Debug("create: room_created publish degraded", zap.Error(err))
	}
}

// Join implements spec.md §4.8's `join(roomId, userId, username)`.
func (r *Registry) Join(ctx context.Context, roomName, userID, username string) (*JoinResult, error) {
	room, err := r.store.Rooms().GetByName(ctx, roomName)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "durable store is unavailable")
	}
	if room == nil || !room.IsActive {
		return nil, apperrors.New(apperrors.CodeRoomNotFound, "room does not exist or is not active")
	}

	membership, err := r.store.Memberships().GetActive(ctx, room.ID, userID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "durable store is unavailable")
	}
	if membership == nil {
		membership = &model.Membership{
			RoomID:   room.ID,
			UserID:   userID,
			Username: username,
			JoinedAt: time.Now(),
			IsActive: true,
		}
		if err := r.store.Memberships().Join(ctx, membership); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "durable store is unavailable")
		}
	}

	if err := r.store.Users().UpdatePresence(ctx, userID, true, roomName); err != nil {
		r.logger.Warn("join: failed to stamp current room", zap.Error(err))
	}

	r.members.add(room.ID, userID, username)
	count, err := r.store.Rooms().IncrementUserCount(ctx, room.ID, 1)
	if err != nil {
		r.logger.Warn("join: failed to update room counts", zap.Error(err))
		count = len(r.memberUsernamesOrFallback(ctx, room.ID))
	}

	r.publishUserJoined(ctx, room.ID, userID, username, count)

	return &JoinResult{
		RoomID:      room.ID,
		Name:        room.Name,
		MemberCount: count,
		Members:     r.memberUsernamesOrFallback(ctx, room.ID),
	}, nil
}

func (r *Registry) publishUserJoined(ctx context.Context, roomID, userID, username string, count int) {
	payload, err := json.Marshal(UserJoinedEvent{Type: EventUserJoined, UserID: userID, Username: username, MemberCount: count})
	if err != nil {
		r.logger.Warn("join: failed to marshal user_joined event", zap.Error(err))
		return
	}
	if err := r.bus.Publish(ctx, bus.RoomEventsChannel(roomID), payload); err != nil {
		r.logger.Debug("join: user_joined publish degraded", zap.Error(err))
	}
}

// Leave implements spec.md §4.8's `leave(roomId, userId, username)`.
func (r *Registry) Leave(ctx context.Context, roomID, userID, username string) error {
	if err := r.store.Memberships().Leave(ctx, roomID, userID); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "durable store is unavailable")
	}

	if err := r.store.Users().UpdatePresence(ctx, userID, true, ""); err != nil {
		r.logger.Warn("leave: failed to clear current room", zap.Error(err))
	}

	r.members.remove(roomID, userID)
	r.typing.clear(roomID, userID)

	count, err := r.store.Rooms().IncrementUserCount(ctx, roomID, -1)
	if err != nil {
		r.logger.Warn("leave: failed to update room counts", zap.Error(err))
		count = len(r.memberUsernamesOrFallback(ctx, roomID))
	}

	r.publishUserLeft(ctx, roomID, userID, username, count)

	if count == 0 {
		r.deactivate(ctx, roomID)
	}
	return nil
}

func (r *Registry) publishUserLeft(ctx context.Context, roomID, userID, username string, count int) {
	payload, err := json.Marshal(UserLeftEvent{Type: EventUserLeft, UserID: userID, Username: username, MemberCount: count})
	if err != nil {
		r.logger.Warn("leave: failed to marshal user_left event", zap.Error(err))
		return
	}
	if err := r.bus.Publish(ctx, bus.RoomEventsChannel(roomID), payload); err != nil {
		r.logger.Debug("leave: user_left publish degraded", zap.Error(err))
	}
}

// deactivate drops an empty room's name, id and room-keyed cache
// entries. The room row itself was already marked inactive by
// IncrementUserCount when the count reached 0.
func (r *Registry) deactivate(ctx context.Context, roomID string) {
	room, err := r.store.Rooms().GetByID(ctx, roomID)
	if err != nil || room == nil {
		return
	}
	r.cache.Invalidate(ctx, roomByNameKey(room.Name), false)
	r.cache.Invalidate(ctx, roomByIDKey(room.ID), false)
	r.cache.InvalidatePattern(ctx, "room:"+roomID+":*")
}

// LeaveAll implements userregistry.RoomLeaver: leaves every active room
// for a disconnecting user, delegating each leave to C8 as usual.
func (r *Registry) LeaveAll(ctx context.Context, userID, username string) error {
	memberships, err := r.store.Memberships().ListActiveByUser(ctx, userID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "durable store is unavailable")
	}
	for _, m := range memberships {
		if err := r.Leave(ctx, m.RoomID, userID, username); err != nil {
			r.logger.Warn("leaveAll: failed to leave room", zap.String("room_id", m.RoomID), zap.Error(err))
		}
	}
	return nil
}

// Typing implements spec.md §4.8's `typing(roomId, userId, isTyping)`.
func (r *Registry) Typing(ctx context.Context, roomID, userID, username string, isTyping bool) {
	if isTyping {
		r.typing.start(roomID, userID, username)
	} else {
		r.typing.stop(roomID, userID)
	}

	payload, err := json.Marshal(TypingUpdateEvent{Type: EventTypingUpdate, RoomID: roomID, TypingUsers: r.typing.usernames(roomID)})
	if err != nil {
		r.logger.Warn("typing: failed to marshal typing_update event", zap.Error(err))
		return
	}
	if err := r.bus.Publish(ctx, bus.RoomEventsChannel(roomID), payload); err != nil {
		r.logger.Debug("typing: typing_update publish degraded", zap.Error(err))
	}
}

// MemberList implements spec.md §4.8's `memberList(roomId)`: prefer the
// shared set, fall back to active memberships.
func (r *Registry) MemberList(ctx context.Context, roomID string) ([]string, error) {
	return r.memberUsernamesOrFallback(ctx, roomID), nil
}

func (r *Registry) memberUsernamesOrFallback(ctx context.Context, roomID string) []string {
	if names := r.members.usernames(roomID); names != nil {
		return names
	}
	memberships, err := r.store.Memberships().ListActiveByRoom(ctx, roomID)
	if err != nil {
		r.logger.Warn("memberList: durable fallback failed", zap.Error(err))
		return []string{}
	}
	names := make([]string, 0, len(memberships))
	for _, m := range memberships {
		names = append(names, m.Username)
	}
	return names
}

// GetByName reads through C1 for room lookup by name.
func (r *Registry) GetByName(ctx context.Context, name string) (*model.Room, error) {
	v, err := r.cache.Get(ctx, roomByNameKey(name), roomInfoTTL, func(ctx context.Context) (interface{}, error) {
		return r.store.Rooms().GetByName(ctx, name)
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "durable store is unavailable")
	}
	return coerceRoom(v)
}

// List implements the `rooms` command and the `room_list` frame's data
// (spec.md §6). It reads the store directly, not through C1.
func (r *Registry) List(ctx context.Context, limit, offset int) ([]*model.Room, error) {
	rooms, err := r.store.Rooms().List(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "durable store is unavailable")
	}
	return rooms, nil
}

func coerceRoom(v interface{}) (*model.Room, error) {
	if v == nil {
		return nil, nil
	}
	if room, ok := v.(*model.Room); ok {
		return room, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var room model.Room
	if err := json.Unmarshal(raw, &room); err != nil {
		return nil, err
	}
	return &room, nil
}
