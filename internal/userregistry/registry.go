// Package userregistry implements C7 UserRegistry: authentication,
// connection-to-user mapping, and presence, generalized from the
// teacher's UserService (internal/service/user_service.go) — same
// constructor-with-logger shape, same look-up/mutate/log/return-DTO
// method bodies — retargeted at spec.md §4.7's operations instead of
// the teacher's friendship/blocking surface (Non-goals).
package userregistry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaychat/server/internal/apperrors"
	"github.com/relaychat/server/internal/cache"
	"github.com/relaychat/server/internal/model"
	"github.com/relaychat/server/internal/store"
	"github.com/relaychat/server/internal/validate"
)

// userCacheTTL bounds how long a userInfo() read-through entry lives in
// C1 before the next read re-fetches from C5 (spec.md §4.7 step 3: "Write
// user-info cache entry").
const userCacheTTL = 60 * time.Second

func userCacheKey(userID string) string { return "user:" + userID + ":info" }

// AuthResult is the outcome of authenticate(), spec.md §4.7 step 2.
type AuthResult struct {
	User        *model.User
	IsNew       bool
	SessionToken string
}

// Registry is the concrete C7 UserRegistry.
type Registry struct {
	store  store.Store
	cache  cache.Cache
	tokens *sessionTokenManager
	logger *zap.Logger

	mu            sync.RWMutex
	connToUser    map[string]string            // connectionId -> userId
	userToConns   map[string]map[string]struct{} // userId -> set(connectionId)
}

// New builds a Registry. secret/ttl/issuer configure the session-
// resumption token (SessionConfig in internal/config).
func New(st store.Store, c cache.Cache, secret string, ttl time.Duration, issuer string, logger *zap.Logger) *Registry {
	return &Registry{
		store:       st,
		cache:       c,
		tokens:      newSessionTokenManager(secret, ttl, issuer),
		logger:      logger,
		connToUser:  make(map[string]string),
		userToConns: make(map[string]map[string]struct{}),
	}
}

// Authenticate implements spec.md §4.7's `authenticate(username,
// connectionId)`. sessionToken is the optional token carried on a
// reconnecting client's `auth` frame; an invalid or absent token falls
// back to the bare-username policy rather than failing the connection.
func (r *Registry) Authenticate(ctx context.Context, username, connectionID, sessionToken string) (*AuthResult, error) {
	if !validate.Username(username) {
		return nil, apperrors.New(apperrors.CodeInvalidMessage, "invalid username")
	}

	if sessionToken != "" {
		if userID, tokUsername, err := r.tokens.validate(sessionToken); err == nil && tokUsername == username {
			user, err := r.store.Users().GetByID(ctx, userID)
			if err == nil && user != nil && user.Username == username {
				return r.attachConnection(ctx, user, connectionID, false)
			}
		}
	}

	existing, err := r.store.Users().GetByUsername(ctx, username)
	if err != nil {
		r.logger.Error("authenticate: lookup by username failed", zap.Error(err))
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "durable store is unavailable")
	}

	if existing != nil && existing.IsOnline {
		// Policy: allow concurrent connections for the same username —
		// treated as reconnection/multi-device, not a collision.
		return r.attachConnection(ctx, existing, connectionID, false)
	}

	if existing != nil {
		if err := r.store.Users().UpdatePresence(ctx, existing.ID, true, ""); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "durable store is unavailable")
		}
		return r.attachConnection(ctx, existing, connectionID, false)
	}

	user := &model.User{
		ID:        uuid.New().String(),
		Username:  username,
		CreatedAt: time.Now(),
		LastSeen:  time.Now(),
		IsOnline:  true,
	}
	if err := r.store.Users().Create(ctx, user); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "durable store is unavailable")
	}
	return r.attachConnection(ctx, user, connectionID, true)
}

// attachConnection establishes the connectionId <-> userId mappings
// (spec.md §4.7 step 3), bumps the durable connection count, writes the
// user-info cache entry, and mints a fresh session-resumption token.
func (r *Registry) attachConnection(ctx context.Context, user *model.User, connectionID string, isNew bool) (*AuthResult, error) {
	r.mu.Lock()
	r.connToUser[connectionID] = user.ID
	if r.userToConns[user.ID] == nil {
		r.userToConns[user.ID] = make(map[string]struct{})
	}
	r.userToConns[user.ID][connectionID] = struct{}{}
	count := len(r.userToConns[user.ID])
	r.mu.Unlock()

	if err := r.store.Users().SetConnectionCount(ctx, user.ID, count); err != nil {
		r.logger.Warn("attachConnection: failed to persist connection count", zap.Error(err))
	}

	r.cache.Set(ctx, userCacheKey(user.ID), user, userCacheTTL)

	token, err := r.tokens.issue(user.ID, user.Username)
	if err != nil {
		r.logger.Warn("attachConnection: failed to issue session token", zap.Error(err))
	}

	return &AuthResult{User: user, IsNew: isNew, SessionToken: token}, nil
}

// RoomLeaver is the subset of C8 RoomRegistry that Disconnect needs to
// hand off room departures to, without userregistry importing roomregistry
// (roomregistry already imports userregistry's exported UserInfo type, so
// the dependency only goes one way).
type RoomLeaver interface {
	LeaveAll(ctx context.Context, userID, username string) error
}

// Disconnect implements spec.md §4.7's `disconnect(connectionId)`.
func (r *Registry) Disconnect(ctx context.Context, connectionID string, rooms RoomLeaver) error {
	r.mu.Lock()
	userID, ok := r.connToUser[connectionID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.connToUser, connectionID)
	remaining := 0
	if conns, ok := r.userToConns[userID]; ok {
		delete(conns, connectionID)
		remaining = len(conns)
		if remaining == 0 {
			delete(r.userToConns, userID)
		}
	}
	r.mu.Unlock()

	if err := r.store.Users().SetConnectionCount(ctx, userID, remaining); err != nil {
		r.logger.Warn("disconnect: failed to persist connection count", zap.Error(err))
	}

	if remaining > 0 {
		return nil
	}

	user, err := r.store.Users().GetByID(ctx, userID)
	if err != nil {
		r.logger.Error("disconnect: lookup failed", zap.Error(err))
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "durable store is unavailable")
	}
	if user == nil {
		return nil
	}

	if err := r.store.Users().UpdatePresence(ctx, userID, false, ""); err != nil {
		r.logger.Warn("disconnect: failed to clear presence", zap.Error(err))
	}

	if rooms != nil {
		if err := rooms.LeaveAll(ctx, userID, user.Username); err != nil {
			r.logger.Warn("disconnect: failed to leave rooms", zap.Error(err))
		}
	}

	r.cache.Invalidate(ctx, userCacheKey(userID), false)
	return nil
}

// UserIDForConnection resolves the authenticated user behind a
// connection, or "" if the connection hasn't authenticated.
func (r *Registry) UserIDForConnection(connectionID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connToUser[connectionID]
}

// OnlineUsers implements spec.md §4.7's `onlineUsers()` snapshot.
func (r *Registry) OnlineUsers(ctx context.Context, limit, offset int) ([]*model.User, error) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.userToConns))
	for id := range r.userToConns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	users := make([]*model.User, 0, len(ids))
	for _, id := range ids {
		u, err := r.UserInfo(ctx, id)
		if err != nil || u == nil {
			continue
		}
		users = append(users, u)
	}

	if offset >= len(users) {
		return []*model.User{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(users) {
		end = len(users)
	}
	return users[offset:end], nil
}

// UserInfo implements spec.md §4.7's `userInfo(id)`: read through C1.
func (r *Registry) UserInfo(ctx context.Context, userID string) (*model.User, error) {
	v, err := r.cache.Get(ctx, userCacheKey(userID), userCacheTTL, func(ctx context.Context) (interface{}, error) {
		return r.store.Users().GetByID(ctx, userID)
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "durable store is unavailable")
	}
	if v == nil {
		return nil, nil
	}
	return coerceUser(v)
}

// coerceUser handles the two shapes a cache lookup can return: the
// *model.User the L1-only/loader path produces directly, or the
// generic map[string]interface{} that surviving a JSON round trip
// through L2 produces.
func coerceUser(v interface{}) (*model.User, error) {
	if u, ok := v.(*model.User); ok {
		return u, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var u model.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ConnectionCount reports how many live connections a user currently holds.
func (r *Registry) ConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.userToConns[userID])
}
