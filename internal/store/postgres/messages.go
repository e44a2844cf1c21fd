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

type messageStore struct {
	db      *sqlx.DB
	timeout time.Duration
	br      *breaker.Breaker
}

func (s *messageStore) run(ctx context.Context, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.br.Execute(ctx, op, nil)
}

func (s *messageStore) Create(ctx context.Context, msg *model.Message) error {
	query := `
		INSERT INTO messages (room_id, user_id, username, content, kind)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, timestamp`

	err := s.run(ctx, func(ctx context.Context) error {
		return s.db.QueryRowxContext(ctx, query,
			msg.RoomID, msg.UserID, msg.Username, msg.Content, msg.Kind,
		).Scan(&msg.ID, &msg.Timestamp)
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "create message failed")
	}
	return nil
}

func (s *messageStore) GetByID(ctx context.Context, id string) (*model.Message, error) {
	query := `SELECT * FROM messages WHERE id = $1`

	var msg model.Message
	var found bool
	err := s.run(ctx, func(ctx context.Context) error {
		err := s.db.GetContext(ctx, &msg, query, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "get message failed")
	}
	if !found {
		return nil, nil
	}
	return &msg, nil
}

// History returns up to limit messages oldest-first, optionally paging
// backward from beforeID (spec.md §6 `history` command).
func (s *messageStore) History(ctx context.Context, roomID string, limit int, beforeID string) ([]*model.Message, error) {
	var (
		query string
		args  []interface{}
	)
	if beforeID == "" {
		query = `
			SELECT * FROM (
				SELECT * FROM messages WHERE room_id = $1 ORDER BY timestamp DESC LIMIT $2
			) recent ORDER BY timestamp ASC`
		args = []interface{}{roomID, limit}
	} else {
		query = `
			SELECT * FROM (
				SELECT * FROM messages
				WHERE room_id = $1 AND timestamp < (SELECT timestamp FROM messages WHERE id = $2)
				ORDER BY timestamp DESC LIMIT $3
			) page ORDER BY timestamp ASC`
		args = []interface{}{roomID, beforeID, limit}
	}

	var messages []*model.Message
	err := s.run(ctx, func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &messages, query, args...)
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "fetch message history failed")
	}
	return messages, nil
}

func (s *messageStore) ByUser(ctx context.Context, userID string, limit int) ([]*model.Message, error) {
	query := `SELECT * FROM messages WHERE user_id = $1 ORDER BY timestamp DESC LIMIT $2`

	var messages []*model.Message
	err := s.run(ctx, func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &messages, query, userID, limit)
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "fetch messages by user failed")
	}
	return messages, nil
}

func (s *messageStore) Stats(ctx context.Context, roomID string, hoursBack int) (*model.RoomStats, error) {
	query := `
		SELECT COUNT(*) AS message_count, COUNT(DISTINCT user_id) AS unique_senders
		FROM messages
		WHERE room_id = $1 AND timestamp > NOW() - ($2 || ' hours')::interval`

	var row struct {
		MessageCount  int64 `db:"message_count"`
		UniqueSenders int   `db:"unique_senders"`
	}
	err := s.run(ctx, func(ctx context.Context) error {
		return s.db.GetContext(ctx, &row, query, roomID, hoursBack)
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "compute room stats failed")
	}

	return &model.RoomStats{
		RoomID:        roomID,
		MessageCount:  row.MessageCount,
		UniqueSenders: row.UniqueSenders,
		HoursBack:     hoursBack,
	}, nil
}

func (s *messageStore) Update(ctx context.Context, id, content string) (*model.Message, error) {
	query := `
		UPDATE messages
		SET content = $2, edited = true, edited_at = NOW()
		WHERE id = $1
		RETURNING id, room_id, user_id, username, content, timestamp, kind, edited, edited_at`

	var msg model.Message
	err := s.run(ctx, func(ctx context.Context) error {
		return s.db.QueryRowxContext(ctx, query, id, content).StructScan(&msg)
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "update message failed")
	}
	return &msg, nil
}

func (s *messageStore) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM messages WHERE id = $1`
	err := s.run(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query, id)
		return err
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "delete message failed")
	}
	return nil
}

func (s *messageStore) PurgeExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `DELETE FROM messages WHERE timestamp < $1`
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
		return 0, fmt.Errorf("purge expired messages: %w", err)
	}
	return n, nil
}
