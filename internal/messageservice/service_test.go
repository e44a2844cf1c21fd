package messageservice

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/relaychat/server/internal/bus/inprocess"
	"github.com/relaychat/server/internal/cache"
	"github.com/relaychat/server/internal/config"
	"github.com/relaychat/server/internal/model"
	"github.com/relaychat/server/internal/roomregistry"
	"github.com/relaychat/server/internal/store"
	"github.com/relaychat/server/internal/store/postgres"
)

func testDatabaseConfig() *config.DatabaseConfig {
	return &config.DatabaseConfig{
		Host:             "localhost",
		Port:             5432,
		User:             "postgres",
		Password:         "postgres",
		DBName:           "chat_test",
		SSLMode:          "disable",
		MaxOpenConns:     5,
		MaxIdleConns:     2,
		ConnMaxLifetime:  time.Minute,
		SelectionTimeout: 2 * time.Second,
		OperationTimeout: 2 * time.Second,
	}
}

func setupTestService(t *testing.T) (*Service, store.Store, *model.Room) {
	t.Helper()

	db, err := postgres.Connect(testDatabaseConfig(), zap.NewNop())
	if err != nil {
		t.Skipf("skipping test, could not connect to test database: %v", err)
	}

	c := cache.New(nil, zap.NewNop())
	b := inprocess.New()
	rooms := roomregistry.New(db, c, b, zap.NewNop())

	ctx := context.Background()
	room, err := rooms.Create(ctx, "svc-test-room", "owner-1")
	if err != nil {
		t.Skipf("skipping test, could not set up room fixture: %v", err)
	}

	svc := New(db, c, b, rooms, zap.NewNop())
	return svc, db, room
}

func TestService_SendAndHistory(t *testing.T) {
	svc, st, room := setupTestService(t)
	defer st.Close()

	ctx := context.Background()
	msg, err := svc.Send(ctx, room.ID, "user-1", "alice", "conn-1", "hello, world")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Content != "hello, world" {
		t.Errorf("expected sanitized content unchanged, got %q", msg.Content)
	}

	history, err := svc.History(ctx, room.ID, 20, "")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].ID != msg.ID {
		t.Fatalf("expected history to contain the sent message, got %+v", history)
	}
}

func TestService_SendRejectsEmptyContent(t *testing.T) {
	svc, st, room := setupTestService(t)
	defer st.Close()

	ctx := context.Background()
	if _, err := svc.Send(ctx, room.ID, "user-1", "alice", "conn-1", ""); err == nil {
		t.Fatal("expected empty content to be rejected")
	}
}

func TestService_SendRejectsSQLShapedContent(t *testing.T) {
	svc, st, room := setupTestService(t)
	defer st.Close()

	ctx := context.Background()
	if _, err := svc.Send(ctx, room.ID, "user-1", "alice", "conn-1", "1' OR '1'='1"); err == nil {
		t.Fatal("expected SQL-shaped content to be rejected")
	}
}

func TestService_SystemBroadcastNotificationIsPersisted(t *testing.T) {
	svc, st, room := setupTestService(t)
	defer st.Close()

	ctx := context.Background()
	msg, err := svc.SystemBroadcast(ctx, room.ID, "server restarting soon", model.KindNotification)
	if err != nil {
		t.Fatalf("systemBroadcast: %v", err)
	}
	if msg.UserID != "system" || msg.Username != "System" {
		t.Errorf("expected system-authored message, got %+v", msg)
	}

	history, err := svc.History(ctx, room.ID, 20, "")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected notification to be persisted, got %d messages", len(history))
	}
}

func TestService_SystemBroadcastNonNotificationIsNotPersisted(t *testing.T) {
	svc, st, room := setupTestService(t)
	defer st.Close()

	ctx := context.Background()
	if _, err := svc.SystemBroadcast(ctx, room.ID, "welcome", model.KindSystem); err != nil {
		t.Fatalf("systemBroadcast: %v", err)
	}

	history, err := svc.History(ctx, room.ID, 20, "")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected non-notification system broadcast to not be persisted, got %d messages", len(history))
	}
}

func TestService_EditWithinWindowSucceeds(t *testing.T) {
	svc, st, room := setupTestService(t)
	defer st.Close()

	ctx := context.Background()
	msg, err := svc.Send(ctx, room.ID, "user-1", "alice", "conn-1", "original content")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	edited, err := svc.Edit(ctx, msg.ID, "user-1", "edited content")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.Content != "edited content" || !edited.Edited {
		t.Errorf("expected edited content and edited flag, got %+v", edited)
	}
}

func TestService_EditByNonOwnerFails(t *testing.T) {
	svc, st, room := setupTestService(t)
	defer st.Close()

	ctx := context.Background()
	msg, err := svc.Send(ctx, room.ID, "user-1", "alice", "conn-1", "original content")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, err := svc.Edit(ctx, msg.ID, "user-2", "hijacked content"); err == nil {
		t.Fatal("expected edit by non-owner to fail")
	}
}

func TestService_DeleteWithinWindowSucceeds(t *testing.T) {
	svc, st, room := setupTestService(t)
	defer st.Close()

	ctx := context.Background()
	msg, err := svc.Send(ctx, room.ID, "user-1", "alice", "conn-1", "to be deleted")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := svc.Delete(ctx, msg.ID, "user-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	history, err := svc.History(ctx, room.ID, 20, "")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for _, m := range history {
		if m.ID == msg.ID {
			t.Fatal("expected deleted message to be absent from history")
		}
	}
}
