package postgres

import (
	"context"
	"testing"

	"github.com/relaychat/server/internal/model"
)

func TestMembershipStore_JoinIsIdempotentPerUserRoom(t *testing.T) {
	db := newTestDB(t)
	defer cleanupTestDB(t, db.conn)
	cleanupTestDB(t, db.conn)
	ctx := context.Background()

	user, room := seedRoomAndUser(t, db, ctx, "grace", "members-room")

	m := &model.Membership{RoomID: room.ID, UserID: user.ID, Username: user.Username}
	if err := db.Memberships().Join(ctx, m); err != nil {
		t.Fatalf("join: %v", err)
	}
	if m.JoinCount != 1 {
		t.Fatalf("expected join count 1, got %d", m.JoinCount)
	}

	if err := db.Memberships().Leave(ctx, room.ID, user.ID); err != nil {
		t.Fatalf("leave: %v", err)
	}

	rejoin := &model.Membership{RoomID: room.ID, UserID: user.ID, Username: user.Username}
	if err := db.Memberships().Join(ctx, rejoin); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if rejoin.JoinCount != 2 {
		t.Fatalf("expected join count 2 after rejoin, got %d", rejoin.JoinCount)
	}

	active, err := db.Memberships().GetActive(ctx, room.ID, user.ID)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if active == nil || !active.IsActive {
		t.Fatal("expected an active membership after rejoin")
	}
}

func TestMembershipStore_ListActiveByRoom(t *testing.T) {
	db := newTestDB(t)
	defer cleanupTestDB(t, db.conn)
	cleanupTestDB(t, db.conn)
	ctx := context.Background()

	user, room := seedRoomAndUser(t, db, ctx, "heidi", "list-room")

	m := &model.Membership{RoomID: room.ID, UserID: user.ID, Username: user.Username}
	if err := db.Memberships().Join(ctx, m); err != nil {
		t.Fatalf("join: %v", err)
	}

	members, err := db.Memberships().ListActiveByRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("list active by room: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected 1 active member, got %d", len(members))
	}
}
