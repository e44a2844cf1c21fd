// Package breaker implements C2 CircuitBreaker. No pack example ships a
// circuit-breaker library (neither the teacher nor any other example repo
// imports one), so this is a standard-library state machine built on
// sync.Mutex + time.Time, justified in DESIGN.md.
package breaker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

const (
	failureThreshold   = 3
	probeSuccessNeeded = 3
	coolOff            = 30 * time.Second
)

// Stats mirrors spec.md §4.2's reported shape.
type Stats struct {
	State          State   `json:"state"`
	FailureCount   int     `json:"failureCount"`
	SuccessCount   int     `json:"successCount"`
	TotalCalls     int64   `json:"totalCalls"`
	TotalFailures  int64   `json:"totalFailures"`
	HealthRatio    float64 `json:"healthRatio"`
}

// Breaker wraps a risky operation (a Postgres call, a Redis publish) and
// degrades to a fallback when the operation has been failing. One Breaker
// instance guards one logical dependency — callers share an instance
// across calls to the same backend, matching the teacher's
// connect/close-on-state-change logging idiom in pkg/cache/redis.go.
type Breaker struct {
	name   string
	logger *zap.Logger

	mu              sync.Mutex
	state           State
	consecutiveFail int
	probeSuccesses  int
	openedAt        time.Time

	totalCalls    int64
	totalFailures int64
}

func New(name string, logger *zap.Logger) *Breaker {
	return &Breaker{name: name, logger: logger, state: StateClosed}
}

// Execute runs op in Closed/Half-Open state. If op fails, or the breaker
// is Open, it runs fallback instead (when non-nil) and returns its result.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error, fallback func(context.Context) error) error {
	if !b.allow() {
		if fallback != nil {
			return fallback(ctx)
		}
		return ErrOpen
	}

	err := op(ctx)
	b.record(err == nil)

	if err != nil && fallback != nil {
		return fallback(ctx)
	}
	return err
}

// allow reports whether a call should be attempted, flipping Open→Half-Open
// once the cool-off has elapsed.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.openedAt) >= coolOff {
			b.transitionLocked(StateHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls++
	if !success {
		b.totalFailures++
	}

	switch b.state {
	case StateClosed:
		if success {
			b.consecutiveFail = 0
			return
		}
		b.consecutiveFail++
		if b.consecutiveFail >= failureThreshold {
			b.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		if !success {
			b.transitionLocked(StateOpen)
			return
		}
		b.probeSuccesses++
		if b.probeSuccesses >= probeSuccessNeeded {
			b.transitionLocked(StateClosed)
		}
	case StateOpen:
		// A call slipped through the race between allow() and record();
		// nothing to do, cool-off timer is unaffected.
	}
}

func (b *Breaker) transitionLocked(next State) {
	prev := b.state
	b.state = next
	b.consecutiveFail = 0
	b.probeSuccesses = 0

	switch next {
	case StateOpen:
		b.openedAt = time.Now()
		b.logger.Warn("circuit breaker open", zap.String("breaker", b.name), zap.String("from", string(prev)))
	case StateClosed:
		b.logger.Info("circuit breaker closed", zap.String("breaker", b.name), zap.String("from", string(prev)))
	case StateHalfOpen:
		b.logger.Info("circuit breaker half-open, probing", zap.String("breaker", b.name))
	}
}

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	ratio := 1.0
	if b.totalCalls > 0 {
		ratio = 1.0 - float64(b.totalFailures)/float64(b.totalCalls)
	}

	return Stats{
		State:         b.state,
		FailureCount:  b.consecutiveFail,
		SuccessCount:  b.probeSuccesses,
		TotalCalls:    b.totalCalls,
		TotalFailures: b.totalFailures,
		HealthRatio:   ratio,
	}
}
