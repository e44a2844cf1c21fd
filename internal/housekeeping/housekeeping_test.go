package housekeeping

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/relaychat/server/internal/model"
	"github.com/relaychat/server/internal/store"
)

// fakeStore counts how many times each sweep method was invoked, without
// touching a real database.
type fakeStore struct {
	users       fakeUserStore
	rooms       fakeRoomStore
	memberships fakeMembershipStore
	messages    fakeMessageStore
}

func (f *fakeStore) Users() store.UserStore             { return &f.users }
func (f *fakeStore) Rooms() store.RoomStore             { return &f.rooms }
func (f *fakeStore) Memberships() store.MembershipStore { return &f.memberships }
func (f *fakeStore) Messages() store.MessageStore       { return &f.messages }
func (f *fakeStore) Ping(ctx context.Context) error     { return nil }
func (f *fakeStore) Close() error                       { return nil }

type fakeUserStore struct{ calls int32 }

func (f *fakeUserStore) Create(ctx context.Context, user *model.User) error { return nil }
func (f *fakeUserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	return nil, nil
}
func (f *fakeUserStore) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return nil, nil
}
func (f *fakeUserStore) UpdatePresence(ctx context.Context, userID string, online bool, currentRoom string) error {
	return nil
}
func (f *fakeUserStore) IncrementMessageCount(ctx context.Context, userID string) error { return nil }
func (f *fakeUserStore) SetConnectionCount(ctx context.Context, userID string, delta int) error {
	return nil
}
func (f *fakeUserStore) PurgeInactive(ctx context.Context, olderThan time.Duration) (int64, error) {
	atomic.AddInt32(&f.calls, 1)
	return 3, nil
}

type fakeRoomStore struct{ calls int32 }

func (f *fakeRoomStore) Create(ctx context.Context, room *model.Room) error { return nil }
func (f *fakeRoomStore) GetByName(ctx context.Context, name string) (*model.Room, error) {
	return nil, nil
}
func (f *fakeRoomStore) GetByID(ctx context.Context, id string) (*model.Room, error) {
	return nil, nil
}
func (f *fakeRoomStore) List(ctx context.Context, limit, offset int) ([]*model.Room, error) {
	return nil, nil
}
func (f *fakeRoomStore) Touch(ctx context.Context, roomID string) error { return nil }
func (f *fakeRoomStore) IncrementUserCount(ctx context.Context, roomID string, delta int) (int, error) {
	return 0, nil
}
func (f *fakeRoomStore) IncrementMessageCount(ctx context.Context, roomID string) error { return nil }
func (f *fakeRoomStore) CleanupEmpty(ctx context.Context, idleFor time.Duration) (int64, error) {
	atomic.AddInt32(&f.calls, 1)
	return 1, nil
}

type fakeMembershipStore struct{ calls int32 }

func (f *fakeMembershipStore) Join(ctx context.Context, m *model.Membership) error { return nil }
func (f *fakeMembershipStore) Leave(ctx context.Context, roomID, userID string) error {
	return nil
}
func (f *fakeMembershipStore) GetActive(ctx context.Context, roomID, userID string) (*model.Membership, error) {
	return nil, nil
}
func (f *fakeMembershipStore) ListActiveByRoom(ctx context.Context, roomID string) ([]*model.Membership, error) {
	return nil, nil
}
func (f *fakeMembershipStore) ListActiveByUser(ctx context.Context, userID string) ([]*model.Membership, error) {
	return nil, nil
}
func (f *fakeMembershipStore) RecordMessage(ctx context.Context, roomID, userID string) error {
	return nil
}
func (f *fakeMembershipStore) PurgeInactive(ctx context.Context, olderThan time.Duration) (int64, error) {
	atomic.AddInt32(&f.calls, 1)
	return 2, nil
}

type fakeMessageStore struct{ calls int32 }

func (f *fakeMessageStore) Create(ctx context.Context, msg *model.Message) error { return nil }
func (f *fakeMessageStore) GetByID(ctx context.Context, id string) (*model.Message, error) {
	return nil, nil
}
func (f *fakeMessageStore) History(ctx context.Context, roomID string, limit int, beforeID string) ([]*model.Message, error) {
	return nil, nil
}
func (f *fakeMessageStore) ByUser(ctx context.Context, userID string, limit int) ([]*model.Message, error) {
	return nil, nil
}
func (f *fakeMessageStore) Stats(ctx context.Context, roomID string, hoursBack int) (*model.RoomStats, error) {
	return nil, nil
}
func (f *fakeMessageStore) Update(ctx context.Context, id, content string) (*model.Message, error) {
	return nil, nil
}
func (f *fakeMessageStore) Delete(ctx context.Context, id string) error { return nil }
func (f *fakeMessageStore) PurgeExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	atomic.AddInt32(&f.calls, 1)
	return 5, nil
}

func TestRunner_SweepsAllFourEntitiesOnTheirOwnTickers(t *testing.T) {
	fs := &fakeStore{}
	intervals := Intervals{
		UserSweepEvery:       10 * time.Millisecond,
		RoomSweepEvery:       10 * time.Millisecond,
		MembershipSweepEvery: 10 * time.Millisecond,
		MessageSweepEvery:    10 * time.Millisecond,
	}

	r := New(fs, intervals, zap.NewNop())
	r.Start()
	defer r.Stop()

	deadline := time.After(2 * time.Second)
	for {
		if atomic.LoadInt32(&fs.users.calls) > 0 &&
			atomic.LoadInt32(&fs.rooms.calls) > 0 &&
			atomic.LoadInt32(&fs.memberships.calls) > 0 &&
			atomic.LoadInt32(&fs.messages.calls) > 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for all sweeps to run at least once: users=%d rooms=%d memberships=%d messages=%d",
				fs.users.calls, fs.rooms.calls, fs.memberships.calls, fs.messages.calls)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRunner_StopIsIdempotent(t *testing.T) {
	fs := &fakeStore{}
	r := New(fs, DefaultIntervals(), zap.NewNop())
	r.Start()

	r.Stop()
	r.Stop() // must not panic on a second call
}
