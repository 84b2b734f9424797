package ratelimit

import (
	"sync"
	"time"
)

// FixedWindow admits up to rate calls per discrete tumbling window of the
// given duration, resetting the count whenever the current window changes.
type FixedWindow struct {
	mu          sync.Mutex
	window      time.Duration
	rate        int
	clock       Clock
	windowStart time.Time
	count       int
}

// NewFixedWindow constructs a FixedWindow.
func NewFixedWindow(window time.Duration, rate int, clock Clock) *FixedWindow {
	if clock == nil {
		clock = realClock{}
	}
	return &FixedWindow{window: window, rate: rate, clock: clock}
}

func (w *FixedWindow) currentBucket(now time.Time) time.Time {
	return now.Truncate(w.window)
}

// Allow admits the call iff fewer than rate calls have been admitted in the
// current bucket.
func (w *FixedWindow) Allow() Decision {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	bucket := w.currentBucket(now)
	if !bucket.Equal(w.windowStart) {
		w.windowStart = bucket
		w.count = 0
	}

	resetAt := w.windowStart.Add(w.window)
	if w.count >= w.rate {
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}
	w.count++
	return Decision{Allowed: true, Remaining: w.rate - w.count, ResetAt: resetAt}
}
