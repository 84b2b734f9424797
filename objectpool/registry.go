package objectpool

import (
	"math"
	"sync"
)

// PoolRegistry is a process-wide collection of pools that opt in to
// registration, supporting a coordinated ShrinkAll under memory pressure.
type PoolRegistry struct {
	mu    sync.Mutex
	pools []*Pool
}

// NewPoolRegistry constructs an empty PoolRegistry.
func NewPoolRegistry() *PoolRegistry {
	return &PoolRegistry{}
}

// Register opts p into ShrinkAll calls on this registry.
func (r *PoolRegistry) Register(p *Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools = append(r.pools, p)
}

// ShrinkAll discards a percentage of each registered pool's idle entries.
// percentage is clamped to [0, 1]; NaN and +/-Inf are treated as 0 so a
// malformed caller never triggers an unbounded or negative shrink.
func (r *PoolRegistry) ShrinkAll(percentage float64) {
	if math.IsNaN(percentage) || math.IsInf(percentage, 0) {
		percentage = 0
	}
	if percentage < 0 {
		percentage = 0
	}
	if percentage > 1 {
		percentage = 1
	}

	r.mu.Lock()
	pools := make([]*Pool, len(r.pools))
	copy(pools, r.pools)
	r.mu.Unlock()

	for _, p := range pools {
		available := int(p.Stats().Available)
		count := int(float64(available) * percentage)
		if count > 0 {
			p.shrink(count)
		}
	}
}

// DefaultRegistry is the process-wide registry pools register into unless
// an application constructs its own.
var DefaultRegistry = NewPoolRegistry()
