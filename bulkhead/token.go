package bulkhead

import (
	"sync"
	"time"
)

// Token represents a held bulkhead permit. Release must be called exactly
// once; subsequent calls are no-ops, matching backpressure.Token's idiom.
type Token struct {
	once sync.Once

	owner        *Partition // where Release returns the permit
	borrowedFrom string     // lender partition name, empty if not borrowed
	wasBorrowed  bool
	wasQueued    bool
	queueTime    time.Duration
	acquiredAt   time.Time
}

// WasBorrowed reports whether this permit came from another partition.
func (t *Token) WasBorrowed() bool { return t.wasBorrowed }

// BorrowedFrom returns the lender partition's name, or "" if not borrowed.
func (t *Token) BorrowedFrom() string { return t.borrowedFrom }

// WasQueued reports whether the caller waited in the partition's queue.
func (t *Token) WasQueued() bool { return t.wasQueued }

// QueueTime returns how long the caller waited, zero if not queued.
func (t *Token) QueueTime() time.Duration { return t.queueTime }

// AcquiredAt returns when the permit was granted.
func (t *Token) AcquiredAt() time.Time { return t.acquiredAt }

// PartitionName returns the name of the partition that granted this permit,
// for middleware.partitioned_bulkhead_execution's partition property.
func (t *Token) PartitionName() string { return t.owner.Name }

// Release returns the permit to its owning partition.
func (t *Token) Release() {
	t.once.Do(func() {
		t.owner.Release()
	})
}
