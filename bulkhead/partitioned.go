package bulkhead

import (
	"context"
	"math"
	"sync"
	"time"

	"go.pipelinekit.dev/flowkit/pipelineerrors"
)

// KeyFunc extracts a partition key from a command. It must be pure: the
// same command always yields the same key.
type KeyFunc func(command interface{}) string

const defaultPartitionKey = "default"

// PartitionSpec configures one named partition of a PartitionedBulkhead.
type PartitionSpec struct {
	Name         string
	Capacity     int
	QueueSize    int
	QueueTimeout time.Duration
}

// PartitionedConfig configures a PartitionedBulkhead.
type PartitionedConfig struct {
	Partitions          []PartitionSpec
	KeyFunc             KeyFunc
	BorrowingEnabled    bool
	MaxBorrowPercentage float64 // e.g. 0.5; a lender must have at least ceil(capacity*pct) permits free to lend one
}

// PartitionedBulkhead isolates concurrency budgets across classes of
// traffic, selected per-command by a pure key function, with optional
// cross-partition borrowing (spec §4.5).
type PartitionedBulkhead struct {
	cfg     PartitionedConfig
	keyFunc KeyFunc

	mu         sync.RWMutex
	partitions map[string]*Partition
	order      []string // stable iteration order for borrow search
}

// NewPartitioned constructs a PartitionedBulkhead. An unknown key routed through
// KeyFunc falls back to a partition named "default"; if none is declared in
// cfg.Partitions, one is created with capacity 1.
func NewPartitioned(cfg PartitionedConfig) *PartitionedBulkhead {
	pb := &PartitionedBulkhead{cfg: cfg, keyFunc: cfg.KeyFunc, partitions: make(map[string]*Partition)}
	haveDefault := false
	for _, spec := range cfg.Partitions {
		pb.partitions[spec.Name] = NewPartition(spec.Name, spec.Capacity, spec.QueueSize, spec.QueueTimeout)
		pb.order = append(pb.order, spec.Name)
		if spec.Name == defaultPartitionKey {
			haveDefault = true
		}
	}
	if !haveDefault {
		pb.partitions[defaultPartitionKey] = NewPartition(defaultPartitionKey, 1, 0, 0)
		pb.order = append(pb.order, defaultPartitionKey)
	}
	return pb
}

func (pb *PartitionedBulkhead) partitionFor(key string) *Partition {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	if p, ok := pb.partitions[key]; ok {
		return p
	}
	return pb.partitions[defaultPartitionKey]
}

func borrowThreshold(capacity int, pct float64) int {
	return int(math.Ceil(float64(capacity) * pct))
}

// findLender scans partitions other than exclude for one with at least
// ceil(capacity * MaxBorrowPercentage) permits free, per spec §4.5 step 2.
func (pb *PartitionedBulkhead) findLender(exclude string) *Partition {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	for _, name := range pb.order {
		if name == exclude {
			continue
		}
		p := pb.partitions[name]
		if p.Headroom() >= borrowThreshold(p.Capacity(), pb.cfg.MaxBorrowPercentage) {
			return p
		}
	}
	return nil
}

// Acquire resolves command to a partition and acquires a permit from it,
// borrowing from another partition or queuing as spec §4.5 prescribes.
func (pb *PartitionedBulkhead) Acquire(ctx context.Context, command interface{}) (*Token, error) {
	key := defaultPartitionKey
	if pb.keyFunc != nil {
		if k := pb.keyFunc(command); k != "" {
			key = k
		}
	}
	p := pb.partitionFor(key)

	if p.TryAcquire() {
		return &Token{owner: p, acquiredAt: time.Now()}, nil
	}

	if pb.cfg.BorrowingEnabled {
		if lender := pb.findLender(p.Name); lender != nil {
			if lender.TryAcquire() {
				return &Token{owner: lender, wasBorrowed: true, borrowedFrom: lender.Name, acquiredAt: time.Now()}, nil
			}
		}
	}

	res, err := p.AcquireQueued(ctx, 0)
	if err != nil {
		if pe, ok := err.(*pipelineerrors.Error); ok {
			pe.WithInfo("partition", p.Name)
		}
		return nil, err
	}
	return &Token{owner: p, wasQueued: res.wasQueued, queueTime: res.queueTime, acquiredAt: time.Now()}, nil
}

// Partition exposes a named partition for introspection (Active,
// QueuedCount, Headroom). It returns nil if key is unknown.
func (pb *PartitionedBulkhead) Partition(key string) *Partition {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	return pb.partitions[key]
}
