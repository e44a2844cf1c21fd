package postgres

import (
	"context"
	"testing"

	"github.com/relaychat/server/internal/model"
)

func TestUserStore_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	defer cleanupTestDB(t, db.conn)
	cleanupTestDB(t, db.conn)
	ctx := context.Background()

	user := &model.User{Username: "alice"}
	if err := db.Users().Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.ID == "" {
		t.Fatal("expected id to be assigned")
	}

	got, err := db.Users().GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("get by username: %v", err)
	}
	if got == nil || got.ID != user.ID {
		t.Fatalf("expected to find alice, got %+v", got)
	}

	missing, err := db.Users().GetByUsername(ctx, "nobody")
	if err != nil {
		t.Fatalf("get by username (missing): %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown username, got %+v", missing)
	}
}

func TestUserStore_UpdatePresence(t *testing.T) {
	db := newTestDB(t)
	defer cleanupTestDB(t, db.conn)
	cleanupTestDB(t, db.conn)
	ctx := context.Background()

	user := &model.User{Username: "bob"}
	if err := db.Users().Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if err := db.Users().UpdatePresence(ctx, user.ID, false, ""); err != nil {
		t.Fatalf("update presence: %v", err)
	}

	got, err := db.Users().GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.IsOnline {
		t.Fatal("expected user to be offline")
	}
	if got.GetCurrentRoomName() != "" {
		t.Fatalf("expected empty current room, got %q", got.GetCurrentRoomName())
	}
}
