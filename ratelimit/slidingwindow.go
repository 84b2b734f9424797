package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindow admits iff the count of admitted calls within
// (now-window, now] is below maxRequests, recording a timestamp on admit.
type SlidingWindow struct {
	mu          sync.Mutex
	window      time.Duration
	maxRequests int
	clock       Clock
	hits        []time.Time
}

// NewSlidingWindow constructs a SlidingWindow.
func NewSlidingWindow(window time.Duration, maxRequests int, clock Clock) *SlidingWindow {
	if clock == nil {
		clock = realClock{}
	}
	return &SlidingWindow{window: window, maxRequests: maxRequests, clock: clock}
}

// Allow admits the call iff fewer than maxRequests hits fall within the
// trailing window.
func (w *SlidingWindow) Allow() Decision {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	cutoff := now.Add(-w.window)

	kept := w.hits[:0]
	for _, h := range w.hits {
		if h.After(cutoff) {
			kept = append(kept, h)
		}
	}
	w.hits = kept

	if len(w.hits) >= w.maxRequests {
		resetAt := w.hits[0].Add(w.window)
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}

	w.hits = append(w.hits, now)
	remaining := w.maxRequests - len(w.hits)
	var resetAt time.Time
	if len(w.hits) > 0 {
		resetAt = w.hits[0].Add(w.window)
	}
	return Decision{Allowed: true, Remaining: remaining, ResetAt: resetAt}
}
