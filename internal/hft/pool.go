package hft

import (
	"sync"

	"github.com/aristath/brain/internal/domain"
)

// ObjectPool pre-allocates a fixed count of SignalEnvelopes and hands them
// out via Acquire/Release. Deliberately not sync.Pool: sync.Pool items are
// GC-reclaimable at any time, which cannot guarantee the exact
// preallocatedObjects count this pipeline bounds its allocation pressure
// against; this pool's backing slice is a stable, contiguous arena (§9).
type ObjectPool struct {
	mu    sync.Mutex
	free  []*domain.SignalEnvelope
	total int
}

// NewObjectPool pre-allocates count envelopes.
func NewObjectPool(count int) *ObjectPool {
	free := make([]*domain.SignalEnvelope, count)
	for i := range free {
		free[i] = &domain.SignalEnvelope{}
	}
	return &ObjectPool{free: free, total: count}
}

// Acquire returns a free envelope, or nil if the pool is exhausted —
// callers treat exhaustion as backpressure, not an error.
func (p *ObjectPool) Acquire() *domain.SignalEnvelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.free)
	if n == 0 {
		return nil
	}
	e := p.free[n-1]
	p.free = p.free[:n-1]
	return e
}

// Release resets and returns an envelope to the pool.
func (p *ObjectPool) Release(e *domain.SignalEnvelope) {
	*e = domain.SignalEnvelope{}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, e)
}

// Available returns the current number of free envelopes.
func (p *ObjectPool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Total returns the pool's fixed pre-allocated capacity.
func (p *ObjectPool) Total() int { return p.total }
