// Package backpressure implements the back-pressure semaphore (spec §4.2):
// three independently-budgeted resources — concurrency, outstanding
// requests, and queued memory bytes — multiplexed behind a single
// priority-fair acquisition API. The design generalizes the waiter/wakeup
// channel pattern used by the teacher's peer list implementation
// (peer/abstractlist.List: a buffered "available" channel plus a mutex-
// guarded collection) to a priority heap. The fast path and the slow path
// both run under a single mutex that guards all three budgets.
package backpressure

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"go.pipelinekit.dev/flowkit/pipelineerrors"
)

// Config configures a Semaphore. Zero values for the budgets mean
// "unbounded" for MaxQueueMemory only; MaxConcurrency and MaxOutstanding
// must be positive.
type Config struct {
	MaxConcurrency int64
	MaxOutstanding int64
	MaxQueueMemory int64 // 0 disables the memory budget
	Strategy       Strategy
	Logger         *zap.Logger
}

// Semaphore is the back-pressure semaphore described in spec §4.2.
type Semaphore struct {
	maxConcurrency int64
	maxOutstanding int64
	maxQueueMemory int64
	strategy       Strategy
	logger         *zap.Logger

	mu        sync.Mutex
	held      int64
	heldBytes int64
	waiters   waiterHeap
	nextID    uint64
}

// New constructs a Semaphore. MaxConcurrency and MaxOutstanding must be
// positive; New panics otherwise, mirroring the teacher's fail-fast
// constructor-time validation style.
func New(cfg Config) *Semaphore {
	if cfg.MaxConcurrency <= 0 {
		panic("backpressure: MaxConcurrency must be positive")
	}
	if cfg.MaxOutstanding <= 0 {
		panic("backpressure: MaxOutstanding must be positive")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Semaphore{
		maxConcurrency: cfg.MaxConcurrency,
		maxOutstanding: cfg.MaxOutstanding,
		maxQueueMemory: cfg.MaxQueueMemory,
		strategy:       cfg.Strategy,
		logger:         logger,
		waiters:        make(waiterHeap, 0, 16),
	}
}

// Stats is a point-in-time snapshot of semaphore occupancy.
type Stats struct {
	Held              int64
	QueuedOperations  int64
	HeldBytes         int64
	MaxConcurrency    int64
	MaxOutstanding    int64
	MaxQueueMemory    int64
}

// Stats returns a snapshot of current occupancy.
func (s *Semaphore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Held:             s.held,
		QueuedOperations: int64(s.waiters.Len()),
		HeldBytes:        s.heldBytes,
		MaxConcurrency:   s.maxConcurrency,
		MaxOutstanding:   s.maxOutstanding,
		MaxQueueMemory:   s.maxQueueMemory,
	}
}

// Health reports a coarse utilization ratio in [0,1] for the most
// constrained budget, useful as an input to an Adaptive rate limiter or a
// health check.
func (s *Semaphore) Health() float64 {
	stats := s.Stats()
	util := float64(stats.Held) / float64(stats.MaxConcurrency)
	if stats.MaxOutstanding > 0 {
		u2 := float64(stats.Held+stats.QueuedOperations) / float64(stats.MaxOutstanding)
		if u2 > util {
			util = u2
		}
	}
	return util
}

// TryAcquire attempts the fast path only: if all three budgets permit
// immediately, it debits them and returns a Token. Otherwise it returns
// (nil, false) without blocking or queueing.
func (s *Semaphore) TryAcquire(bytes int64) (*Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fitsLocked(bytes, 0) {
		return nil, false
	}
	s.held++
	s.heldBytes += bytes
	return &Token{bytes: bytes, priority: Normal, acquired: time.Now(), sem: s}, true
}

// fitsLocked reports whether one more permit of the given byte cost can be
// admitted right now, given queuedDelta additional waiters already counted
// against maxOutstanding. Must be called with s.mu held.
func (s *Semaphore) fitsLocked(bytes int64, queuedDelta int64) bool {
	if s.held+1 > s.maxConcurrency {
		return false
	}
	if s.held+int64(s.waiters.Len())+queuedDelta+1 > s.maxOutstanding {
		return false
	}
	if s.maxQueueMemory > 0 && s.heldBytes+bytes > s.maxQueueMemory {
		return false
	}
	return true
}

// Acquire acquires bytes worth of budget at the given priority, suspending
// the caller according to the semaphore's configured Strategy if the fast
// path is unavailable. ctx cancellation always aborts the wait. A request
// larger than the whole memory budget fails at once with memoryPressure.
func (s *Semaphore) Acquire(ctx context.Context, bytes int64, priority Priority) (*Token, error) {
	return s.acquire(ctx, bytes, priority, noDeadline)
}

// AcquireWithTimeout behaves like Acquire but additionally bounds the wait
// to timeout, after which the caller receives a timeout error regardless of
// the semaphore's configured Strategy.
func (s *Semaphore) AcquireWithTimeout(ctx context.Context, bytes int64, timeout time.Duration, priority Priority) (*Token, error) {
	deadline := time.Now().Add(timeout)
	return s.acquire(ctx, bytes, priority, deadline)
}

func (s *Semaphore) acquire(ctx context.Context, bytes int64, priority Priority, deadline time.Time) (*Token, error) {
	s.mu.Lock()
	if s.fitsLocked(bytes, 0) {
		s.held++
		s.heldBytes += bytes
		s.mu.Unlock()
		return &Token{bytes: bytes, priority: priority, acquired: time.Now(), sem: s}, nil
	}

	if s.maxQueueMemory > 0 && bytes > s.maxQueueMemory {
		// No release can ever make room for more than the whole budget.
		s.mu.Unlock()
		return nil, pipelineerrors.Newf(pipelineerrors.CodeBackPressureMemoryPressure, "", "back-pressure: request of %d bytes exceeds the %d-byte memory budget", bytes, s.maxQueueMemory)
	}

	// Slow path: classify by strategy.
	strategy := s.strategy
	if !deadline.IsZero() && strategy != Error {
		// AcquireWithTimeout always behaves as a bounded Suspend/Error wait
		// regardless of the configured strategy, per spec §4.2's
		// acquire_with_timeout contract.
		strategy = Error
	}

	switch strategy {
	case DropNewest:
		s.mu.Unlock()
		return nil, pipelineerrors.Newf(pipelineerrors.CodeBackPressureQueueFull, "", "back-pressure: request dropped (DropNewest)")

	case DropOldest:
		// Evicting a queued waiter can only ever make room against the
		// outstanding-count budget (concurrency and memory are only
		// relieved by a Release). If the queue is already at the
		// outstanding ceiling, make room for this acquisition by evicting
		// the lowest-priority-oldest waiter; otherwise just enqueue.
		if s.held+int64(s.waiters.Len())+1 > s.maxOutstanding {
			if victim := s.evictLowestLocked(); victim != nil {
				victim.cancelled = true
				select {
				case victim.resume <- waitResult{err: pipelineerrors.Newf(pipelineerrors.CodeCancelled, "", "evicted by DropOldest")}:
				default:
				}
			}
		}
		w := s.enqueueLocked(bytes, priority, noDeadline)
		s.mu.Unlock()
		return s.wait(ctx, w)

	case Error:
		if s.held+int64(s.waiters.Len())+1 > s.maxOutstanding {
			memoryExceeded := s.maxQueueMemory > 0 && s.heldBytes+bytes > s.maxQueueMemory
			s.mu.Unlock()
			if memoryExceeded {
				return nil, pipelineerrors.Newf(pipelineerrors.CodeBackPressureMemoryPressure, "", "back-pressure: memory budget exceeded")
			}
			return nil, pipelineerrors.Newf(pipelineerrors.CodeBackPressureQueueFull, "", "back-pressure: queue full")
		}
		if deadline.IsZero() {
			s.mu.Unlock()
			return nil, pipelineerrors.Newf(pipelineerrors.CodeBackPressureQueueFull, "", "back-pressure: queue full")
		}
		w := s.enqueueLocked(bytes, priority, deadline)
		s.mu.Unlock()
		return s.waitWithDeadline(ctx, w, deadline)

	default: // Suspend
		w := s.enqueueLocked(bytes, priority, noDeadline)
		s.mu.Unlock()
		return s.wait(ctx, w)
	}
}

// enqueueLocked must be called with s.mu held.
func (s *Semaphore) enqueueLocked(bytes int64, priority Priority, deadline time.Time) *waiter {
	s.nextID++
	w := &waiter{
		id:             s.nextID,
		priority:       priority,
		estimatedBytes: bytes,
		enqueuedAt:     time.Now(),
		deadline:       deadline,
		resume:         make(chan waitResult, 1),
	}
	heap.Push(&s.waiters, w)
	return w
}

// evictLowestLocked removes and returns the lowest-priority-oldest waiter
// currently queued, or nil if the queue is empty. Must be called with
// s.mu held.
func (s *Semaphore) evictLowestLocked() *waiter {
	if s.waiters.Len() == 0 {
		return nil
	}
	worst := 0
	for i := 1; i < s.waiters.Len(); i++ {
		wi, ww := s.waiters[i], s.waiters[worst]
		if wi.priority < ww.priority {
			worst = i
			continue
		}
		if wi.priority == ww.priority && wi.enqueuedAt.Before(ww.enqueuedAt) {
			// equal priority: evict the older one
			worst = i
		}
	}
	w := heap.Remove(&s.waiters, worst).(*waiter)
	return w
}

// wait blocks until the waiter is granted a token, its context is
// cancelled, or (never in this path) a deadline expires.
func (s *Semaphore) wait(ctx context.Context, w *waiter) (*Token, error) {
	select {
	case res := <-w.resume:
		return res.token, res.err
	case <-ctx.Done():
		return s.abandon(w, pipelineerrors.Newf(pipelineerrors.CodeCancelled, "", "back-pressure: acquisition cancelled"))
	}
}

func (s *Semaphore) waitWithDeadline(ctx context.Context, w *waiter, deadline time.Time) (*Token, error) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case res := <-w.resume:
		return res.token, res.err
	case <-ctx.Done():
		return s.abandon(w, pipelineerrors.Newf(pipelineerrors.CodeCancelled, "", "back-pressure: acquisition cancelled"))
	case <-timer.C:
		err := pipelineerrors.Newf(pipelineerrors.CodeBackPressureTimeout, "", "back-pressure: acquisition timed out")
		return s.abandon(w, err)
	}
}

// abandon marks w cancelled and removes it from the queue if still present.
// If it had already been granted a token concurrently (a race with
// release), that token is released immediately so no permit leaks; per
// spec §5, cancellation of an in-flight acquisition frees no *additional*
// budget because none had been debited for a still-queued waiter.
func (s *Semaphore) abandon(w *waiter, failErr error) (*Token, error) {
	s.mu.Lock()
	w.cancelled = true
	if w.index >= 0 && w.index < len(s.waiters) && s.waiters[w.index] == w {
		heap.Remove(&s.waiters, w.index)
		s.mu.Unlock()
		return nil, failErr
	}
	s.mu.Unlock()

	// Already popped by a concurrent release; it may or may not have been
	// granted a token yet, so wait briefly for the outcome.
	res := <-w.resume
	if res.token != nil {
		res.token.Release()
	}
	return nil, failErr
}

// release is invoked by Token.Release. It credits the permit and memory
// budget, then wakes waiters in priority order while budgets allow, all
// under a single critical section (spec §4.2's release algorithm).
func (s *Semaphore) release(t *Token) {
	s.mu.Lock()
	s.held--
	s.heldBytes -= t.bytes
	s.wakeWaitersLocked()
	s.mu.Unlock()
}

func (s *Semaphore) wakeWaitersLocked() {
	var skipped []*waiter
	for s.waiters.Len() > 0 {
		w := heap.Pop(&s.waiters).(*waiter)
		if w.cancelled {
			continue
		}
		if s.held+1 > s.maxConcurrency {
			// Concurrency is a global ceiling independent of byte size;
			// nobody else can fit this pass either.
			heap.Push(&s.waiters, w)
			break
		}
		if s.maxQueueMemory > 0 && s.heldBytes+w.estimatedBytes > s.maxQueueMemory {
			// This waiter doesn't fit the memory budget; a smaller,
			// lower-priority waiter further back in the queue still might
			// (spec's size-fitting open question: best-effort packing).
			skipped = append(skipped, w)
			continue
		}
		s.held++
		s.heldBytes += w.estimatedBytes
		token := &Token{bytes: w.estimatedBytes, priority: w.priority, acquired: time.Now(), sem: s}
		w.resume <- waitResult{token: token}
	}
	for _, w := range skipped {
		heap.Push(&s.waiters, w)
	}
}
