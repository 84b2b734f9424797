package ratelimit

import (
	"sync"
	"time"
)

// LoadFn reports current system load as a fraction in [0, 1]; 0 is idle.
type LoadFn func() float64

// Adaptive wraps a TokenBucket-like admission decision where the effective
// rate is baseRate*(1-loadFn()), re-evaluated on every admission per
// spec §4.8.
type Adaptive struct {
	mu         sync.Mutex
	baseRate   float64
	loadFn     LoadFn
	clock      Clock
	tokens     float64
	capacity   float64
	lastRefill time.Time
}

// NewAdaptive constructs an Adaptive limiter. capacity bounds burst size the
// same way TokenBucket's capacity does.
func NewAdaptive(baseRate float64, capacity int, loadFn LoadFn, clock Clock) *Adaptive {
	if clock == nil {
		clock = realClock{}
	}
	return &Adaptive{
		baseRate:   baseRate,
		loadFn:     loadFn,
		clock:      clock,
		tokens:     float64(capacity),
		capacity:   float64(capacity),
		lastRefill: clock.Now(),
	}
}

// Allow admits the call against the load-adjusted effective rate.
func (a *Adaptive) Allow() Decision {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	load := 0.0
	if a.loadFn != nil {
		load = a.loadFn()
	}
	if load < 0 {
		load = 0
	}
	if load > 1 {
		load = 1
	}
	effectiveRate := a.baseRate * (1 - load)

	elapsed := now.Sub(a.lastRefill).Seconds()
	if elapsed > 0 {
		a.tokens += elapsed * effectiveRate
		if a.tokens > a.capacity {
			a.tokens = a.capacity
		}
		a.lastRefill = now
	}

	if a.tokens >= 1 {
		a.tokens--
		return Decision{Allowed: true, Remaining: int(a.tokens)}
	}
	return Decision{Allowed: false, Remaining: 0}
}
