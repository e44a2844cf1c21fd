// Package ratelimit implements C3 RateLimiter: per-identifier token
// buckets across the four classes from spec.md §4.3. The local tier uses
// golang.org/x/time/rate exactly like the teacher's InMemoryRateLimiter;
// when Redis is reachable it is backed by the sliding-window
// ZADD/ZREMRANGEBYSCORE/ZCARD pipeline style of the teacher's
// RedisRateLimiter, so multi-instance deployments share budget.
package ratelimit

import (
	"context"
	"time"
)

// Class names the four rate-limited operation families (spec.md §4.3).
// Any class not in this list passes through unchecked.
type Class string

const (
	ClassMessage    Class = "message"
	ClassRoomCreate Class = "room-create"
	ClassCommand    Class = "command"
	ClassConnection Class = "connection"
)

// classConfig is one row of spec.md §4.3's table.
type classConfig struct {
	points       int
	refillPeriod time.Duration
	blockPeriod  time.Duration
}

var classConfigs = map[Class]classConfig{
	ClassMessage:    {points: 10, refillPeriod: 1 * time.Second, blockPeriod: 60 * time.Second},
	ClassRoomCreate: {points: 5, refillPeriod: 3600 * time.Second, blockPeriod: 3600 * time.Second},
	ClassCommand:    {points: 10, refillPeriod: 60 * time.Second, blockPeriod: 60 * time.Second},
	ClassConnection: {points: 10, refillPeriod: 60 * time.Second, blockPeriod: 300 * time.Second},
}

// Result is the outcome of Check, mirroring spec.md §4.3's shape.
type Result struct {
	Allowed           bool
	RetryAfterSeconds int
	Remaining         int
}

// Limiter is C3: check(id, class) atomically consumes one point.
// Unknown classes pass through — Check returns {Allowed: true} for them.
type Limiter interface {
	Check(ctx context.Context, id string, class Class) Result
}
