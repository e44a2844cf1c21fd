package postgres

import (
	"context"
	"testing"

	"github.com/relaychat/server/internal/model"
)

func seedRoomAndUser(t *testing.T, db *DB, ctx context.Context, username, roomName string) (*model.User, *model.Room) {
	t.Helper()

	user := &model.User{Username: username}
	if err := db.Users().Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	room := &model.Room{Name: roomName, CreatedBy: user.ID}
	if err := db.Rooms().Create(ctx, room); err != nil {
		t.Fatalf("create room: %v", err)
	}
	return user, room
}

func TestMessageStore_HistoryReturnsOldestFirst(t *testing.T) {
	db := newTestDB(t)
	defer cleanupTestDB(t, db.conn)
	cleanupTestDB(t, db.conn)
	ctx := context.Background()

	user, room := seedRoomAndUser(t, db, ctx, "erin", "history-room")

	var ids []string
	for i := 0; i < 3; i++ {
		msg := &model.Message{
			RoomID:   room.ID,
			UserID:   user.ID,
			Username: user.Username,
			Content:  "message",
			Kind:     model.KindUser,
		}
		if err := db.Messages().Create(ctx, msg); err != nil {
			t.Fatalf("create message %d: %v", i, err)
		}
		ids = append(ids, msg.ID)
	}

	history, err := db.Messages().History(ctx, room.ID, 10, "")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(history))
	}
	for i, id := range ids {
		if history[i].ID != id {
			t.Fatalf("expected message %d to be %s, got %s", i, id, history[i].ID)
		}
	}
}

func TestMessageStore_ByUserReturnsNewestFirstAcrossRooms(t *testing.T) {
	db := newTestDB(t)
	defer cleanupTestDB(t, db.conn)
	cleanupTestDB(t, db.conn)
	ctx := context.Background()

	user, room1 := seedRoomAndUser(t, db, ctx, "gina", "by-user-room-1")
	room2 := &model.Room{Name: "by-user-room-2", CreatedBy: user.ID}
	if err := db.Rooms().Create(ctx, room2); err != nil {
		t.Fatalf("create room2: %v", err)
	}

	other := &model.User{Username: "other-poster"}
	if err := db.Users().Create(ctx, other); err != nil {
		t.Fatalf("create other user: %v", err)
	}

	var ids []string
	for _, room := range []*model.Room{room1, room2} {
		msg := &model.Message{RoomID: room.ID, UserID: user.ID, Username: user.Username, Content: "mine", Kind: model.KindUser}
		if err := db.Messages().Create(ctx, msg); err != nil {
			t.Fatalf("create message: %v", err)
		}
		ids = append(ids, msg.ID)
	}
	if err := db.Messages().Create(ctx, &model.Message{RoomID: room1.ID, UserID: other.ID, Username: other.Username, Content: "not mine", Kind: model.KindUser}); err != nil {
		t.Fatalf("create other message: %v", err)
	}

	byUser, err := db.Messages().ByUser(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("by user: %v", err)
	}
	if len(byUser) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(byUser))
	}
	if byUser[0].ID != ids[1] || byUser[1].ID != ids[0] {
		t.Fatalf("expected newest-first order %v, got [%s %s]", ids, byUser[0].ID, byUser[1].ID)
	}
}

func TestMessageStore_StatsCountsUniqueSenders(t *testing.T) {
	db := newTestDB(t)
	defer cleanupTestDB(t, db.conn)
	cleanupTestDB(t, db.conn)
	ctx := context.Background()

	user, room := seedRoomAndUser(t, db, ctx, "frank", "stats-room")

	for i := 0; i < 2; i++ {
		msg := &model.Message{RoomID: room.ID, UserID: user.ID, Username: user.Username, Content: "hi", Kind: model.KindUser}
		if err := db.Messages().Create(ctx, msg); err != nil {
			t.Fatalf("create message: %v", err)
		}
	}

	stats, err := db.Messages().Stats(ctx, room.ID, 24)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.MessageCount != 2 {
		t.Fatalf("expected message count 2, got %d", stats.MessageCount)
	}
	if stats.UniqueSenders != 1 {
		t.Fatalf("expected 1 unique sender, got %d", stats.UniqueSenders)
	}
}
