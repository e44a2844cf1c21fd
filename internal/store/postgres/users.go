package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/relaychat/server/internal/apperrors"
	"github.com/relaychat/server/internal/breaker"
	"github.com/relaychat/server/internal/model"
	"github.com/jmoiron/sqlx"
)

type userStore struct {
	db      *sqlx.DB
	timeout time.Duration
	br      *breaker.Breaker
}

// run executes op under the operation timeout and the shared C2 breaker,
// with no fallback: a tripped breaker surfaces as breaker.ErrOpen, which
// the caller wraps as apperrors.CodeDatabaseError.
func (s *userStore) run(ctx context.Context, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.br.Execute(ctx, op, nil)
}

func (s *userStore) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (username, is_online)
		VALUES ($1, true)
		RETURNING id, created_at, last_seen`

	err := s.run(ctx, func(ctx context.Context) error {
		return s.db.QueryRowxContext(ctx, query, user.Username).
			Scan(&user.ID, &user.CreatedAt, &user.LastSeen)
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "create user failed")
	}
	return nil
}

func (s *userStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	query := `SELECT * FROM users WHERE id = $1`

	err := s.run(ctx, func(ctx context.Context) error {
		return s.db.GetContext(ctx, &u, query, id)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "get user by id failed")
	}
	return &u, nil
}

func (s *userStore) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	query := `SELECT * FROM users WHERE username = $1`

	err := s.run(ctx, func(ctx context.Context) error {
		return s.db.GetContext(ctx, &u, query, username)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "get user by username failed")
	}
	return &u, nil
}

func (s *userStore) UpdatePresence(ctx context.Context, userID string, online bool, currentRoom string) error {
	query := `
		UPDATE users
		SET is_online = $2, current_room_name = NULLIF($3, ''), last_seen = NOW()
		WHERE id = $1`

	err := s.run(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query, userID, online, currentRoom)
		return err
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "update presence failed")
	}
	return nil
}

func (s *userStore) IncrementMessageCount(ctx context.Context, userID string) error {
	query := `UPDATE users SET total_messages = total_messages + 1 WHERE id = $1`

	err := s.run(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query, userID)
		return err
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "increment message count failed")
	}
	return nil
}

func (s *userStore) SetConnectionCount(ctx context.Context, userID string, delta int) error {
	query := `
		UPDATE users
		SET connection_count = GREATEST(connection_count + $2, 0)
		WHERE id = $1`

	err := s.run(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query, userID, delta)
		return err
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "set connection count failed")
	}
	return nil
}

func (s *userStore) PurgeInactive(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `DELETE FROM users WHERE is_online = false AND last_seen < $1`
	cutoff := time.Now().Add(-olderThan)

	var n int64
	err := s.run(ctx, func(ctx context.Context) error {
		result, err := s.db.ExecContext(ctx, query, cutoff)
		if err != nil {
			return err
		}
		n, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("purge inactive users: %w", err)
	}
	return n, nil
}
