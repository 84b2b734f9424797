package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket admits while at least one token is available, continuously
// refilling at refillPerSecond up to capacity.
type TokenBucket struct {
	mu              sync.Mutex
	capacity        float64
	refillPerSecond float64
	tokens          float64
	lastRefill      time.Time
	clock           Clock
}

// NewTokenBucket constructs a TokenBucket. A nil clock uses wall time.
func NewTokenBucket(capacity int, refillPerSecond float64, clock Clock) *TokenBucket {
	if clock == nil {
		clock = realClock{}
	}
	return &TokenBucket{
		capacity:        float64(capacity),
		refillPerSecond: refillPerSecond,
		tokens:          float64(capacity),
		lastRefill:      clock.Now(),
		clock:           clock,
	}
}

// Allow admits the call iff at least one token is available, consuming one.
func (b *TokenBucket) Allow() Decision {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillPerSecond
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.lastRefill = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return Decision{Allowed: true, Remaining: int(b.tokens), ResetAt: b.resetAtLocked(now)}
	}

	return Decision{Allowed: false, Remaining: 0, ResetAt: b.resetAtLocked(now)}
}

// resetAtLocked estimates when the next token becomes available (or, if
// already available, when the bucket would next be full). Callers hold mu.
func (b *TokenBucket) resetAtLocked(now time.Time) time.Time {
	if b.refillPerSecond <= 0 {
		return time.Time{}
	}
	deficit := 1 - b.tokens
	if deficit <= 0 {
		deficit = b.capacity - b.tokens
	}
	seconds := deficit / b.refillPerSecond
	return now.Add(time.Duration(seconds * float64(time.Second)))
}
