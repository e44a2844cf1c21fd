package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/relaychat/server/internal/breaker"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const testDSN = "host=localhost port=5432 user=postgres password=postgres dbname=chat_test sslmode=disable"

// setupTestDB connects to the integration test database, skipping the
// test when it isn't reachable rather than failing the suite.
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	conn, err := sqlx.Connect("postgres", testDSN)
	if err != nil {
		t.Skipf("skipping, could not connect to test database: %v", err)
	}
	if err := conn.Ping(); err != nil {
		t.Skipf("skipping, test database unreachable: %v", err)
	}
	return conn
}

func cleanupTestDB(t *testing.T, conn *sqlx.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = conn.ExecContext(ctx, "TRUNCATE messages, memberships, rooms, users CASCADE")
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	conn := setupTestDB(t)
	timeout := 5 * time.Second
	br := breaker.New("postgres-test", zap.NewNop())
	return &DB{
		conn:        conn,
		logger:      zap.NewNop(),
		br:          br,
		users:       &userStore{db: conn, timeout: timeout, br: br},
		rooms:       &roomStore{db: conn, timeout: timeout, br: br},
		memberships: &membershipStore{db: conn, timeout: timeout, br: br},
		messages:    &messageStore{db: conn, timeout: timeout, br: br},
	}
}
