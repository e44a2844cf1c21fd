// Package housekeeping runs the background purge/cleanup sweeps spec.md
// §3's lifecycle rules state but never schedule: inactive users, empty
// idle rooms, stale memberships, and expired messages are each swept on
// their own ticker, grounded on the teacher's rate-limiter GC loop
// pattern (a ticker, a stop channel, a single goroutine).
package housekeeping

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/relaychat/server/internal/store"
)

// Intervals bounds how often each sweep runs and how old an entity must
// be before it is eligible. Defaults match spec.md §3's stated lifetimes.
type Intervals struct {
	UserSweepEvery        time.Duration
	UserInactiveAfter     time.Duration
	RoomSweepEvery        time.Duration
	RoomIdleAfter         time.Duration
	MembershipSweepEvery  time.Duration
	MembershipStaleAfter  time.Duration
	MessageSweepEvery     time.Duration
	MessageExpiresAfter   time.Duration
}

// DefaultIntervals matches spec.md §3: users inactive 30 days, rooms idle
// 1 hour with no members, memberships stale 30 days, messages retained 30
// days.
func DefaultIntervals() Intervals {
	return Intervals{
		UserSweepEvery:       time.Hour,
		UserInactiveAfter:    30 * 24 * time.Hour,
		RoomSweepEvery:       10 * time.Minute,
		RoomIdleAfter:        time.Hour,
		MembershipSweepEvery: time.Hour,
		MembershipStaleAfter: 30 * 24 * time.Hour,
		MessageSweepEvery:    6 * time.Hour,
		MessageExpiresAfter:  30 * 24 * time.Hour,
	}
}

// Runner owns the four independent sweep goroutines.
type Runner struct {
	store     store.Store
	intervals Intervals
	logger    *zap.Logger
	stop      chan struct{}
}

// New builds a Runner. Call Start to launch its goroutines, Stop to halt
// them.
func New(st store.Store, intervals Intervals, logger *zap.Logger) *Runner {
	return &Runner{
		store:     st,
		intervals: intervals,
		logger:    logger,
		stop:      make(chan struct{}),
	}
}

// Start launches one goroutine per sweep. Each runs independently so a
// slow or failing sweep never delays the others.
func (r *Runner) Start() {
	go r.sweepLoop("users", r.intervals.UserSweepEvery, func(ctx context.Context) (int64, error) {
		return r.store.Users().PurgeInactive(ctx, r.intervals.UserInactiveAfter)
	})
	go r.sweepLoop("rooms", r.intervals.RoomSweepEvery, func(ctx context.Context) (int64, error) {
		return r.store.Rooms().CleanupEmpty(ctx, r.intervals.RoomIdleAfter)
	})
	go r.sweepLoop("memberships", r.intervals.MembershipSweepEvery, func(ctx context.Context) (int64, error) {
		return r.store.Memberships().PurgeInactive(ctx, r.intervals.MembershipStaleAfter)
	})
	go r.sweepLoop("messages", r.intervals.MessageSweepEvery, func(ctx context.Context) (int64, error) {
		return r.store.Messages().PurgeExpired(ctx, r.intervals.MessageExpiresAfter)
	})
}

// Stop halts every sweep goroutine. A second call is a no-op.
func (r *Runner) Stop() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
}

func (r *Runner) sweepLoop(name string, every time.Duration, sweep func(ctx context.Context) (int64, error)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := sweep(ctx)
			cancel()
			if err != nil {
				r.logger.Warn("housekeeping: sweep failed", zap.String("sweep", name), zap.Error(err))
				continue
			}
			if n > 0 {
				r.logger.Info("housekeeping: sweep completed", zap.String("sweep", name), zap.Int64("affected", n))
			}
		}
	}
}
