package hft

import (
	"sort"
	"sync"
	"time"
)

const latencyWindowSize = 1000

// LatencyMetrics tracks a rolling window of batch latencies and the
// signals/sec throughput rate since the last reset.
type LatencyMetrics struct {
	mu            sync.Mutex
	samples       []time.Duration
	next          int
	filled        bool
	totalProcessed int64
	since         time.Time
	clock         Clock
}

// NewLatencyMetrics constructs a metrics tracker.
func NewLatencyMetrics(clock Clock) *LatencyMetrics {
	if clock == nil {
		clock = SystemClock
	}
	return &LatencyMetrics{
		samples: make([]time.Duration, latencyWindowSize),
		since:   clock.Now(),
		clock:   clock,
	}
}

// Observe records one batch's latency and bumps the processed counter by n
// signals.
func (m *LatencyMetrics) Observe(latency time.Duration, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples[m.next] = latency
	m.next = (m.next + 1) % latencyWindowSize
	if m.next == 0 {
		m.filled = true
	}
	m.totalProcessed += int64(n)
}

// Snapshot is a point-in-time view of the rolling latency distribution.
type Snapshot struct {
	P50, P95, P99, Max time.Duration
	SignalsPerSec      float64
}

// Snapshot computes percentiles over the current window and the throughput
// rate since the last reset.
func (m *LatencyMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.next
	if m.filled {
		n = latencyWindowSize
	}
	if n == 0 {
		return Snapshot{}
	}

	sorted := make([]time.Duration, n)
	copy(sorted, m.samples[:n])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	elapsed := m.clock.Now().Sub(m.since).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(m.totalProcessed) / elapsed
	}

	return Snapshot{
		P50:           percentile(sorted, 0.50),
		P95:           percentile(sorted, 0.95),
		P99:           percentile(sorted, 0.99),
		Max:           sorted[len(sorted)-1],
		SignalsPerSec: rate,
	}
}

// ResetThroughput zeroes the signals/sec counter and restarts its window
// from now.
func (m *LatencyMetrics) ResetThroughput() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalProcessed = 0
	m.since = m.clock.Now()
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
