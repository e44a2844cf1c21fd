// Package messageservice implements C9 MessageService: message
// send/history/edit/delete and system broadcasts, generalized from the
// teacher's MessageService (internal/service/message_service.go) — same
// constructor-with-logger shape and look-up/mutate/log/return-DTO method
// bodies — retargeted at spec.md §4.9's operations (no reactions, no
// attachments, no reply-to — Non-goals).
package messageservice

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

// editWindow is the "only within a 5-minute window after send" rule
// spec.md §4.9 puts on edit/delete.
const editWindow = 5 * time.Minute

// historyDefaultLimit matches C1's warm() preload count (spec.md §4.1 N=20).
const historyDefaultLimit = 20

// TypingCanceler is the subset of C8 RoomRegistry that Send needs in
// order to cancel the sender's typing indicator (spec.md §4.9 step 7).
type TypingCanceler interface {
	Typing(ctx context.Context, roomID, userID, username string, isTyping bool)
}

// Service is the concrete C9 MessageService.
type Service struct {
	store  store.Store
	cache  cache.Cache
	bus    bus.Bus
	rooms  TypingCanceler
	logger *zap.Logger

	fingerprints *fingerprintRings
}

// New builds a Service.
func New(st store.Store, c cache.Cache, b bus.Bus, rooms TypingCanceler, logger *zap.Logger) *Service {
	return &Service{
		store:        st,
		cache:        c,
		bus:          b,
		rooms:        rooms,
		logger:       logger,
		fingerprints: newFingerprintRings(),
	}
}

// Send implements spec.md §4.9's `send(roomId, userId, username, rawContent)`.
// connectionID identifies the sending socket so C10 can exclude it from
// the room's local fan-out; it is never persisted or put on the wire.
func (s *Service) Send(ctx context.Context, roomID, userID, username, connectionID, rawContent string) (*model.Message, error) {
	if len(rawContent) == 0 {
		return nil, apperrors.New(apperrors.CodeInvalidMessage, "message content must not be empty")
	}

	sanitized, err := validate.Sanitize(rawContent)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeInvalidMessage, "message content rejected: "+err.Error())
	}
	if sanitized == "" || !validate.ContentLength(sanitized) {
		return nil, apperrors.New(apperrors.CodeInvalidMessage, "message content is empty or too long")
	}

	if score, isSpam := validate.SpamScore(sanitized, s.fingerprints.recent(roomID)); isSpam {
		s.logger.Info("send: message flagged as spam, rejecting",
			zap.String("room_id", roomID), zap.String("user_id", userID), zap.Int("score", score))
		return nil, apperrors.New(apperrors.CodeInvalidMessage, "message looks like spam")
	}

	msg := &model.Message{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		UserID:    userID,
		Username:  username,
		Content:   sanitized,
		Timestamp: time.Now(),
		Kind:      model.KindUser,
	}

	if err := s.store.Messages().Create(ctx, msg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "durable store is unavailable")
	}

	s.fingerprints.push(roomID, validate.Fingerprint256(sanitized))

	if err := s.store.Rooms().IncrementMessageCount(ctx, roomID); err != nil {
		s.logger.Warn("send: failed to increment room message count", zap.Error(err))
	}
	if err := s.store.Memberships().RecordMessage(ctx, roomID, userID); err != nil {
		s.logger.Warn("send: failed to record membership message", zap.Error(err))
	}
	if err := s.store.Users().IncrementMessageCount(ctx, userID); err != nil {
		s.logger.Warn("send: failed to increment user message count", zap.Error(err))
	}

	s.cache.Invalidate(ctx, cache.RoomMessagesKey(roomID), false)
	s.publish(ctx, msg, connectionID)

	if s.rooms != nil {
		s.rooms.Typing(ctx, roomID, userID, username, false)
	}

	return msg, nil
}

func (s *Service) publish(ctx context.Context, msg *model.Message, senderConnectionID string) {
	payload, err := json.Marshal(MessageEnvelope{Message: msg, SenderConnectionID: senderConnectionID})
	if err != nil {
		s.logger.Warn("publish: failed to marshal message envelope", zap.Error(err))
		return
	}
	if err := s.bus.Publish(ctx, bus.RoomMessagesChannel(msg.RoomID), payload); err != nil {
		s.logger.Debug("publish: message publish degraded", zap.Error(err))
	}
}

// History implements spec.md §4.9's `history(roomId, limit=20)`: a
// cache-read-through for the default page, direct store reads for any
// other page shape (custom limit or pagination via beforeID).
func (s *Service) History(ctx context.Context, roomID string, limit int, beforeID string) ([]*model.Message, error) {
	if limit <= 0 {
		limit = historyDefaultLimit
	}

	if beforeID != "" || limit != historyDefaultLimit {
		messages, err := s.store.Messages().History(ctx, roomID, limit, beforeID)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "durable store is unavailable")
		}
		return messages, nil
	}

	v, err := s.cache.Get(ctx, cache.RoomMessagesKey(roomID), cache.DefaultTTL, func(ctx context.Context) (interface{}, error) {
		return s.store.Messages().History(ctx, roomID, historyDefaultLimit, "")
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "durable store is unavailable")
	}
	return coerceMessages(v)
}

func coerceMessages(v interface{}) ([]*model.Message, error) {
	if v == nil {
		return []*model.Message{}, nil
	}
	if messages, ok := v.([]*model.Message); ok {
		return messages, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var messages []*model.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// RoomStats reports message volume for a room over the trailing
// hoursBack window, backing the `stats` command (spec.md §6).
func (s *Service) RoomStats(ctx context.Context, roomID string, hoursBack int) (*model.RoomStats, error) {
	stats, err := s.store.Messages().Stats(ctx, roomID, hoursBack)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "durable store is unavailable")
	}
	return stats, nil
}

// SystemBroadcast implements spec.md §4.9's `systemBroadcast(roomId,
// content, kind)`.
func (s *Service) SystemBroadcast(ctx context.Context, roomID, content string, kind model.Kind) (*model.Message, error) {
	msg := &model.Message{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		UserID:    "system",
		Username:  "System",
		Content:   content,
		Timestamp: time.Now(),
		Kind:      kind,
	}

	if kind == model.KindNotification {
		if err := s.store.Messages().Create(ctx, msg); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "durable store is unavailable")
		}
		s.cache.Invalidate(ctx, cache.RoomMessagesKey(roomID), false)
	}

	s.publish(ctx, msg, "")
	return msg, nil
}

// Edit implements spec.md §4.9's optional edit capability: owner-only,
// within a 5-minute window after send.
func (s *Service) Edit(ctx context.Context, messageID, userID, newContent string) (*model.Message, error) {
	original, err := s.store.Messages().GetByID(ctx, messageID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "durable store is unavailable")
	}
	if original == nil {
		return nil, apperrors.New(apperrors.CodeInvalidMessage, "message not found")
	}
	if original.UserID != userID {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "only the sender may edit this message")
	}
	if time.Since(original.Timestamp) > editWindow {
		return nil, apperrors.New(apperrors.CodeInvalidMessage, "edit window has expired")
	}

	sanitized, err := validate.Sanitize(newContent)
	if err != nil || sanitized == "" || !validate.ContentLength(sanitized) {
		return nil, apperrors.New(apperrors.CodeInvalidMessage, "message content is empty, too long, or rejected")
	}

	updated, err := s.store.Messages().Update(ctx, messageID, sanitized)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "durable store is unavailable")
	}

	s.cache.Invalidate(ctx, cache.RoomMessagesKey(updated.RoomID), false)
	s.publishEdited(ctx, updated)
	return updated, nil
}

func (s *Service) publishEdited(ctx context.Context, msg *model.Message) {
	payload, err := json.Marshal(MessageEditedEvent{Type: EventMessageEdited, Message: msg})
	if err != nil {
		s.logger.Warn("edit: failed to marshal message_edited event", zap.Error(err))
		return
	}
	if err := s.bus.Publish(ctx, bus.RoomEventsChannel(msg.RoomID), payload); err != nil {
		s.logger.Debug("edit: message_edited publish degraded", zap.Error(err))
	}
}

// Delete implements spec.md §4.9's optional delete capability:
// owner-only, within a 5-minute window after send.
func (s *Service) Delete(ctx context.Context, messageID, userID string) error {
	original, err := s.store.Messages().GetByID(ctx, messageID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "durable store is unavailable")
	}
	if original == nil {
		return apperrors.New(apperrors.CodeInvalidMessage, "message not found")
	}
	if original.UserID != userID {
		return apperrors.New(apperrors.CodeUnauthorized, "only the sender may delete this message")
	}
	if time.Since(original.Timestamp) > editWindow {
		return apperrors.New(apperrors.CodeInvalidMessage, "edit window has expired")
	}

	if err := s.store.Messages().Delete(ctx, messageID); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "durable store is unavailable")
	}

	s.cache.Invalidate(ctx, cache.RoomMessagesKey(original.RoomID), false)

	payload, err := json.Marshal(MessageDeletedEvent{Type: EventMessageDeleted, MessageID: messageID, RoomID: original.RoomID})
	if err != nil {
		s.logger.Warn("delete: failed to marshal message_deleted event", zap.Error(err))
		return nil
	}
	if err := s.bus.Publish(ctx, bus.RoomEventsChannel(original.RoomID), payload); err != nil {
		s.logger.Debug("delete: message_deleted publish degraded", zap.Error(err))
	}
	return nil
}
