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
	"github.com/lib/pq"
)

// uniqueViolation is Postgres error code 23505, the way the teacher's
// RoomRepository.AddMember detects a duplicate room_members row.
const uniqueViolation = "23505"

type roomStore struct {
	db      *sqlx.DB
	timeout time.Duration
	br      *breaker.Breaker
}

func (s *roomStore) run(ctx context.Context, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.br.Execute(ctx, op, nil)
}

func (s *roomStore) Create(ctx context.Context, room *model.Room) error {
	query := `
		INSERT INTO rooms (name, created_by, is_active, current_users, peak_users)
		VALUES ($1, $2, true, 0, 0)
		RETURNING id, created_at, last_activity`

	// A unique-name conflict is a successful round trip to a healthy
	// database, not an infrastructure failure — don't count it against
	// the breaker. Captured outside op and re-raised after run() so the
	// breaker only ever sees nil here.
	var conflict error
	err := s.run(ctx, func(ctx context.Context) error {
		scanErr := s.db.QueryRowxContext(ctx, query, room.Name, room.CreatedBy).
			Scan(&room.ID, &room.CreatedAt, &room.LastActivity)

		var pqErr *pq.Error
		if errors.As(scanErr, &pqErr) && pqErr.Code == uniqueViolation {
			conflict = scanErr
			return nil
		}
		return scanErr
	})
	if conflict != nil {
		return apperrors.New(apperrors.CodeRoomExists, "a room with that name already exists")
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "create room failed")
	}
	return nil
}

func (s *roomStore) GetByName(ctx context.Context, name string) (*model.Room, error) {
	var r model.Room
	query := `SELECT * FROM rooms WHERE name = $1`

	err := s.run(ctx, func(ctx context.Context) error {
		return s.db.GetContext(ctx, &r, query, name)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "get room by name failed")
	}
	return &r, nil
}

func (s *roomStore) GetByID(ctx context.Context, id string) (*model.Room, error) {
	var r model.Room
	query := `SELECT * FROM rooms WHERE id = $1`

	err := s.run(ctx, func(ctx context.Context) error {
		return s.db.GetContext(ctx, &r, query, id)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "get room by id failed")
	}
	return &r, nil
}

func (s *roomStore) List(ctx context.Context, limit, offset int) ([]*model.Room, error) {
	query := `
		SELECT * FROM rooms
		WHERE is_active = true
		ORDER BY last_activity DESC
		LIMIT $1 OFFSET $2`

	var rooms []*model.Room
	err := s.run(ctx, func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &rooms, query, limit, offset)
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "list rooms failed")
	}
	return rooms, nil
}

func (s *roomStore) Touch(ctx context.Context, roomID string) error {
	query := `UPDATE rooms SET last_activity = NOW() WHERE id = $1`

	err := s.run(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query, roomID)
		return err
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "touch room failed")
	}
	return nil
}

func (s *roomStore) IncrementUserCount(ctx context.Context, roomID string, delta int) (int, error) {
	// Every SET expression reads current_users/peak_users from the
	// pre-update row, so this is a single atomic delta applied in place —
	// safe against concurrent increments from other server instances,
	// unlike an overwrite derived from a local membership count.
	query := `
		UPDATE rooms
		SET current_users = GREATEST(current_users + $2, 0),
		    peak_users = GREATEST(peak_users, current_users + $2, 0),
		    is_active = (current_users + $2) > 0,
		    last_activity = NOW()
		WHERE id = $1
		RETURNING current_users`

	var newCount int
	err := s.run(ctx, func(ctx context.Context) error {
		return s.db.QueryRowxContext(ctx, query, roomID, delta).Scan(&newCount)
	})
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeDatabaseError, "increment room user count failed")
	}
	return newCount, nil
}

func (s *roomStore) IncrementMessageCount(ctx context.Context, roomID string) error {
	query := `UPDATE rooms SET message_count = message_count + 1, last_activity = NOW() WHERE id = $1`

	err := s.run(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query, roomID)
		return err
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "increment room message count failed")
	}
	return nil
}

func (s *roomStore) CleanupEmpty(ctx context.Context, idleFor time.Duration) (int64, error) {
	query := `
		UPDATE rooms
		SET is_active = false
		WHERE is_active = true AND current_users = 0 AND last_activity < $1`
	cutoff := time.Now().Add(-idleFor)

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
		return 0, fmt.Errorf("cleanup empty rooms: %w", err)
	}
	return n, nil
}
