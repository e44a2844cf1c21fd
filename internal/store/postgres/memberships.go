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

type membershipStore struct {
	db      *sqlx.DB
	timeout time.Duration
	br      *breaker.Breaker
}

func (s *membershipStore) run(ctx context.Context, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.br.Execute(ctx, op, nil)
}

// Join records a new active membership, or reactivates a left one — a
// user may rejoin a room any number of times (join_count increments).
func (s *membershipStore) Join(ctx context.Context, m *model.Membership) error {
	query := `
		INSERT INTO memberships (room_id, user_id, username, is_active, join_count)
		VALUES ($1, $2, $3, true, 1)
		ON CONFLICT (room_id, user_id) DO UPDATE
		SET is_active = true, left_at = NULL, join_count = memberships.join_count + 1
		RETURNING joined_at, join_count`

	err := s.run(ctx, func(ctx context.Context) error {
		return s.db.QueryRowxContext(ctx, query, m.RoomID, m.UserID, m.Username).
			Scan(&m.JoinedAt, &m.JoinCount)
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "join room failed")
	}
	m.IsActive = true
	return nil
}

func (s *membershipStore) Leave(ctx context.Context, roomID, userID string) error {
	query := `
		UPDATE memberships
		SET is_active = false, left_at = NOW()
		WHERE room_id = $1 AND user_id = $2 AND is_active = true`

	err := s.run(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query, roomID, userID)
		return err
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "leave room failed")
	}
	return nil
}

func (s *membershipStore) GetActive(ctx context.Context, roomID, userID string) (*model.Membership, error) {
	var m model.Membership
	query := `SELECT * FROM memberships WHERE room_id = $1 AND user_id = $2 AND is_active = true`

	err := s.run(ctx, func(ctx context.Context) error {
		return s.db.GetContext(ctx, &m, query, roomID, userID)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "get membership failed")
	}
	return &m, nil
}

func (s *membershipStore) ListActiveByRoom(ctx context.Context, roomID string) ([]*model.Membership, error) {
	query := `SELECT * FROM memberships WHERE room_id = $1 AND is_active = true ORDER BY joined_at`

	var members []*model.Membership
	err := s.run(ctx, func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &members, query, roomID)
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "list room members failed")
	}
	return members, nil
}

func (s *membershipStore) ListActiveByUser(ctx context.Context, userID string) ([]*model.Membership, error) {
	query := `SELECT * FROM memberships WHERE user_id = $1 AND is_active = true ORDER BY joined_at`

	var members []*model.Membership
	err := s.run(ctx, func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &members, query, userID)
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "list user memberships failed")
	}
	return members, nil
}

func (s *membershipStore) RecordMessage(ctx context.Context, roomID, userID string) error {
	query := `
		UPDATE memberships
		SET messages_in_room = messages_in_room + 1, last_message_at = NOW()
		WHERE room_id = $1 AND user_id = $2 AND is_active = true`

	err := s.run(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query, roomID, userID)
		return err
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "record membership message failed")
	}
	return nil
}

func (s *membershipStore) PurgeInactive(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `DELETE FROM memberships WHERE is_active = false AND left_at < $1`
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
		return 0, fmt.Errorf("purge inactive memberships: %w", err)
	}
	return n, nil
}
