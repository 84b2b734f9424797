package backpressure

import (
	"sync"
	"time"
)

// Token is a linear handle to one unit of a Semaphore's budget. Exactly one
// Release call has effect per Token; subsequent calls are no-ops (spec §3,
// §8's idempotent-release law).
type Token struct {
	bytes    int64
	priority Priority
	acquired time.Time

	once sync.Once
	sem  *Semaphore
}

// Bytes returns the estimated byte cost this token reserved.
func (t *Token) Bytes() int64 { return t.bytes }

// Priority returns the priority at which this token was acquired.
func (t *Token) Priority() Priority { return t.priority }

// AcquiredAt returns when the token was granted.
func (t *Token) AcquiredAt() time.Time { return t.acquired }

// Release returns the token's permit and memory budget to the semaphore,
// waking any waiters that can now be satisfied. Safe to call multiple times
// or concurrently; only the first call has effect.
func (t *Token) Release() {
	t.once.Do(func() {
		t.sem.release(t)
	})
}
