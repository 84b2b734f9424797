// Package objectpool implements the bounded acquire/release object cache
// from spec §4.11. The idle free list is kept in an LRU cache
// (github.com/hashicorp/golang-lru) rather than a plain slice: its
// OnEvicted callback gives the eviction counter for free when Release
// pushes the idle set over capacity, and RemoveOldest gives Acquire a
// ready-made "take one, doesn't matter which" operation.
package objectpool

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/atomic"
)

// Constructor builds a new instance on an Acquire miss.
type Constructor func() interface{}

// Stats is a snapshot of a Pool's counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	ActiveInUse int64
	Available   int64
	PeakUsage   int64
}

// Pool is a bounded cache of reusable objects.
type Pool struct {
	Name        string
	constructor Constructor
	capacity    int

	mu   sync.Mutex
	idle *lru.Cache
	seq  int64

	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	activeInUse atomic.Int64
	peakUsage   atomic.Int64
}

// New constructs a Pool holding up to capacity idle objects, building new
// ones with constructor on a miss.
func New(name string, capacity int, constructor Constructor) *Pool {
	if capacity <= 0 {
		capacity = 1
	}
	p := &Pool{Name: name, constructor: constructor, capacity: capacity}
	cache, err := lru.NewWithEvict(capacity, func(key interface{}, value interface{}) {
		p.evictions.Inc()
	})
	if err != nil {
		// Only returns an error for a non-positive size, already guarded above.
		panic(err)
	}
	p.idle = cache
	return p
}

// Acquire returns an idle object if one is available, otherwise constructs
// a new one via Constructor.
func (p *Pool) Acquire() interface{} {
	p.mu.Lock()
	key, value, ok := p.idle.RemoveOldest()
	p.mu.Unlock()

	var obj interface{}
	if ok {
		_ = key
		obj = value
		p.hits.Inc()
	} else {
		obj = p.constructor()
		p.misses.Inc()
	}

	inUse := p.activeInUse.Inc()
	for {
		peak := p.peakUsage.Load()
		if inUse <= peak || p.peakUsage.CAS(peak, inUse) {
			break
		}
	}
	return obj
}

// Release returns obj to the idle set. If the idle set is already at
// capacity, the LRU cache's eviction callback fires and counts it.
func (p *Pool) Release(obj interface{}) {
	p.mu.Lock()
	p.seq++
	key := p.seq
	p.idle.Add(key, obj)
	p.mu.Unlock()

	p.activeInUse.Dec()
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	available := int64(p.idle.Len())
	p.mu.Unlock()

	return Stats{
		Hits:        p.hits.Load(),
		Misses:      p.misses.Load(),
		Evictions:   p.evictions.Load(),
		ActiveInUse: p.activeInUse.Load(),
		Available:   available,
		PeakUsage:   p.peakUsage.Load(),
	}
}

// shrink discards up to the given count of idle entries, used by
// PoolRegistry.ShrinkAll.
func (p *Pool) shrink(count int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < count; i++ {
		if _, _, ok := p.idle.RemoveOldest(); !ok {
			return
		}
	}
}
