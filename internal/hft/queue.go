// Package hft implements the bounded-latency, priority-ordered pipeline
// through which intents and market signals flow: a max-heap priority
// queue, a bounded object pool, a batch loop, and a latency circuit
// breaker.
package hft

import (
	"container/heap"
	"errors"
	"sync"

	"github.com/aristath/brain/internal/domain"
)

// ErrQueueFull is returned when admission would exceed priorityQueueSize.
var ErrQueueFull = errors.New("hft: priority queue full")

// heapItem wraps a SignalEnvelope with the heap's bookkeeping. Cross-level,
// higher Priority always preempts lower; within a level the heap gives no
// FIFO guarantee (container/heap does not stabilize ties).
type heapItem struct {
	envelope *domain.SignalEnvelope
	index    int
}

type itemHeap []*heapItem

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	return h[i].envelope.Priority > h[j].envelope.Priority // max-heap
}
func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *itemHeap) Push(x any) {
	item := x.(*heapItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// PriorityQueue is a bounded max-heap ordered by domain.Priority.
type PriorityQueue struct {
	mu       sync.Mutex
	items    itemHeap
	capacity int
}

// NewPriorityQueue constructs a queue bounded to capacity items.
func NewPriorityQueue(capacity int) *PriorityQueue {
	q := &PriorityQueue{capacity: capacity}
	heap.Init(&q.items)
	return q
}

// Push admits an envelope, returning ErrQueueFull if at capacity.
func (q *PriorityQueue) Push(envelope *domain.SignalEnvelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		return ErrQueueFull
	}
	heap.Push(&q.items, &heapItem{envelope: envelope})
	return nil
}

// PopBatch drains up to n highest-priority envelopes.
func (q *PriorityQueue) PopBatch(n int) []*domain.SignalEnvelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.items) {
		n = len(q.items)
	}
	out := make([]*domain.SignalEnvelope, 0, n)
	for i := 0; i < n; i++ {
		item := heap.Pop(&q.items).(*heapItem)
		out = append(out, item.envelope)
	}
	return out
}

// Len returns the current queue depth.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes and returns every remaining envelope, used on shutdown once
// the grace period elapses.
func (q *PriorityQueue) Drain() []*domain.SignalEnvelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*domain.SignalEnvelope, 0, len(q.items))
	for len(q.items) > 0 {
		item := heap.Pop(&q.items).(*heapItem)
		out = append(out, item.envelope)
	}
	return out
}
