// Package ratelimit implements the admission strategies from spec §4.8.
// The nanosecond-precision time accounting follows the teacher's
// internal/ratelimit.Throttle; because every strategy here must also report
// {remaining, resetAt} on denial (the throttle only reports a boolean), the
// lock-free CAS loop is replaced with a small mutex-guarded state struct,
// but the same clock-driven, no-goroutine-per-tick design carries over.
package ratelimit

import "time"

// Decision is the result of an admission check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter is a single admission strategy instance, unaware of scoping.
type Limiter interface {
	Allow() Decision
}

// Clock is the minimum interface a Limiter needs, letting tests substitute
// internal/clock.FakeClock.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
