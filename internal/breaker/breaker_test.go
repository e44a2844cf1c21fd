package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

var errBoom = errors.New("boom")

func failOp(context.Context) error { return errBoom }
func okOp(context.Context) error   { return nil }

func TestBreaker_OpensAfterThreeConsecutiveFailures(t *testing.T) {
	b := New("test", zap.NewNop())
	ctx := context.Background()

	for i := 0; i < failureThreshold; i++ {
		_ = b.Execute(ctx, failOp, nil)
	}

	if got := b.Stats().State; got != StateOpen {
		t.Fatalf("expected open after %d failures, got %s", failureThreshold, got)
	}
}

func TestBreaker_OpenShortCircuitsToFallback(t *testing.T) {
	b := New("test", zap.NewNop())
	ctx := context.Background()

	for i := 0; i < failureThreshold; i++ {
		_ = b.Execute(ctx, failOp, nil)
	}

	calledFallback := false
	err := b.Execute(ctx, okOp, func(context.Context) error {
		calledFallback = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if !calledFallback {
		t.Fatal("expected fallback to be invoked while open")
	}
}

func TestBreaker_OpenWithNoFallbackReturnsErrOpen(t *testing.T) {
	b := New("test", zap.NewNop())
	ctx := context.Background()

	for i := 0; i < failureThreshold; i++ {
		_ = b.Execute(ctx, failOp, nil)
	}

	if err := b.Execute(ctx, okOp, nil); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
}

func TestBreaker_HalfOpenClosesAfterThreeProbeSuccesses(t *testing.T) {
	b := New("test", zap.NewNop())
	ctx := context.Background()

	for i := 0; i < failureThreshold; i++ {
		_ = b.Execute(ctx, failOp, nil)
	}
	b.mu.Lock()
	b.openedAt = time.Now().Add(-coolOff - time.Millisecond)
	b.mu.Unlock()

	for i := 0; i < probeSuccessNeeded; i++ {
		if err := b.Execute(ctx, okOp, nil); err != nil {
			t.Fatalf("probe %d: unexpected error %v", i, err)
		}
	}

	if got := b.Stats().State; got != StateClosed {
		t.Fatalf("expected closed after %d probe successes, got %s", probeSuccessNeeded, got)
	}
}

func TestBreaker_HalfOpenReopensOnProbeFailure(t *testing.T) {
	b := New("test", zap.NewNop())
	ctx := context.Background()

	for i := 0; i < failureThreshold; i++ {
		_ = b.Execute(ctx, failOp, nil)
	}
	b.mu.Lock()
	b.openedAt = time.Now().Add(-coolOff - time.Millisecond)
	b.mu.Unlock()

	_ = b.Execute(ctx, failOp, nil)

	if got := b.Stats().State; got != StateOpen {
		t.Fatalf("expected reopen on probe failure, got %s", got)
	}
}

func TestBreaker_ClosedResetsFailureCountOnSuccess(t *testing.T) {
	b := New("test", zap.NewNop())
	ctx := context.Background()

	_ = b.Execute(ctx, failOp, nil)
	_ = b.Execute(ctx, failOp, nil)
	_ = b.Execute(ctx, okOp, nil)

	if got := b.Stats().FailureCount; got != 0 {
		t.Fatalf("expected failure count reset to 0, got %d", got)
	}
	if got := b.Stats().State; got != StateClosed {
		t.Fatalf("expected still closed, got %s", got)
	}
}

func TestBreaker_StatsHealthRatio(t *testing.T) {
	b := New("test", zap.NewNop())
	ctx := context.Background()

	_ = b.Execute(ctx, okOp, nil)
	_ = b.Execute(ctx, okOp, nil)
	_ = b.Execute(ctx, failOp, nil)

	stats := b.Stats()
	if stats.TotalCalls != 3 {
		t.Fatalf("expected 3 total calls, got %d", stats.TotalCalls)
	}
	want := 2.0 / 3.0
	if diff := stats.HealthRatio - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected health ratio %.4f, got %.4f", want, stats.HealthRatio)
	}
}
