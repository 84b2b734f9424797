package backpressure

import (
	"container/heap"
	"time"
)

// waiter is a suspended acquisition attempt (spec §3). resume delivers the
// outcome to the blocked goroutine exactly once.
type waiter struct {
	id            uint64
	priority      Priority
	estimatedBytes int64
	enqueuedAt    time.Time
	deadline      time.Time // zero means no per-waiter deadline
	cancelled     bool
	resume        chan waitResult
	index         int // heap index, maintained by container/heap
}

type waitResult struct {
	token *Token
	err   error
}

// waiterHeap orders waiters by (priority desc, enqueuedAt asc), satisfying
// spec §4.2 invariant 5 and the priority-fairness law in §8.
type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }

func (h waiterHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].enqueuedAt.Before(h[j].enqueuedAt)
}

func (h waiterHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *waiterHeap) Push(x interface{}) {
	w := x.(*waiter)
	w.index = len(*h)
	*h = append(*h, w)
}

func (h *waiterHeap) Pop() interface{} {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*h = old[:n-1]
	return w
}

var _ heap.Interface = (*waiterHeap)(nil)
