package bulkhead

import (
	"context"
	"time"
)

// Bulkhead is a single, unpartitioned concurrency isolation budget.
type Bulkhead struct {
	partition *Partition
}

// Config configures a single Bulkhead.
type Config struct {
	Capacity     int
	QueueSize    int
	QueueTimeout time.Duration
}

// New constructs a Bulkhead.
func New(cfg Config) *Bulkhead {
	return &Bulkhead{partition: NewPartition("default", cfg.Capacity, cfg.QueueSize, cfg.QueueTimeout)}
}

// TryAcquire attempts a non-blocking permit grab.
func (b *Bulkhead) TryAcquire() (*Token, bool) {
	if b.partition.TryAcquire() {
		return &Token{owner: b.partition, acquiredAt: time.Now()}, true
	}
	return nil, false
}

// Acquire blocks, queuing if necessary, until a permit is granted or ctx is
// done.
func (b *Bulkhead) Acquire(ctx context.Context) (*Token, error) {
	if tok, ok := b.TryAcquire(); ok {
		return tok, nil
	}
	res, err := b.partition.AcquireQueued(ctx, 0)
	if err != nil {
		return nil, err
	}
	return &Token{owner: b.partition, wasQueued: res.wasQueued, queueTime: res.queueTime, acquiredAt: time.Now()}, nil
}

// Active returns the number of permits currently held.
func (b *Bulkhead) Active() int { return b.partition.Active() }

// QueuedCount returns the number of callers currently waiting.
func (b *Bulkhead) QueuedCount() int { return b.partition.QueuedCount() }
