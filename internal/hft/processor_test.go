package hft

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/brain/internal/config"
	"github.com/aristath/brain/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)} }

func TestPriorityQueuePopsHighestPriorityFirst(t *testing.T) {
	q := NewPriorityQueue(10)
	require.NoError(t, q.Push(&domain.SignalEnvelope{Priority: domain.PriorityLow}))
	require.NoError(t, q.Push(&domain.SignalEnvelope{Priority: domain.PriorityCritical}))
	require.NoError(t, q.Push(&domain.SignalEnvelope{Priority: domain.PriorityNormal}))

	batch := q.PopBatch(3)
	require.Len(t, batch, 3)
	assert.Equal(t, domain.PriorityCritical, batch[0].Priority)
	assert.Equal(t, domain.PriorityNormal, batch[1].Priority)
	assert.Equal(t, domain.PriorityLow, batch[2].Priority)
}

func TestPriorityQueueRejectsPastCapacity(t *testing.T) {
	q := NewPriorityQueue(1)
	require.NoError(t, q.Push(&domain.SignalEnvelope{Priority: domain.PriorityNormal}))
	err := q.Push(&domain.SignalEnvelope{Priority: domain.PriorityNormal})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestObjectPoolExhaustionReturnsNil(t *testing.T) {
	p := NewObjectPool(2)
	a := p.Acquire()
	b := p.Acquire()
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Nil(t, p.Acquire())
	assert.Equal(t, 0, p.Available())

	p.Release(a)
	assert.Equal(t, 1, p.Available())
}

// TestS6BreakerTripsAfterFiveConsecutiveBreaches implements spec scenario
// S6: five consecutive batches each exceeding circuitBreakerThreshold=5ms,
// with the breaker opening after the fifth and rejecting admission until
// recoveryTimeMs elapses.
func TestS6BreakerTripsAfterFiveConsecutiveBreaches(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(5, 5*time.Millisecond, 30*time.Second, clock)

	for i := 0; i < 4; i++ {
		tripped := b.RecordBatchLatency(6 * time.Millisecond)
		assert.False(t, tripped, "breach %d should not trip yet", i+1)
		assert.Equal(t, domain.BreakerClosed, b.State())
	}

	tripped := b.RecordBatchLatency(6 * time.Millisecond)
	assert.True(t, tripped, "fifth consecutive breach should trip the breaker")
	assert.Equal(t, domain.BreakerOpen, b.State())

	assert.False(t, b.AllowAdmission(), "admissions must be rejected while open")

	clock.Advance(29 * time.Second)
	assert.False(t, b.AllowAdmission(), "must stay open before recoveryTime elapses")

	clock.Advance(2 * time.Second)
	assert.True(t, b.AllowAdmission(), "first admission after recoveryTime enters half-open")
	assert.Equal(t, domain.BreakerHalfOpen, b.State())

	tripped = b.RecordBatchLatency(1 * time.Millisecond)
	assert.False(t, tripped)
	assert.Equal(t, domain.BreakerClosed, b.State(), "success in half-open closes the breaker")
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(5, 5*time.Millisecond, 1*time.Second, clock)
	for i := 0; i < 5; i++ {
		b.RecordBatchLatency(10 * time.Millisecond)
	}
	require.Equal(t, domain.BreakerOpen, b.State())

	clock.Advance(2 * time.Second)
	require.True(t, b.AllowAdmission())
	require.Equal(t, domain.BreakerHalfOpen, b.State())

	tripped := b.RecordBatchLatency(10 * time.Millisecond)
	assert.True(t, tripped)
	assert.Equal(t, domain.BreakerOpen, b.State())
}

func TestProcessorSubmitRejectsWhileCircuitOpen(t *testing.T) {
	clock := newFakeClock()
	cfg := testHFTConfig()
	proc := New(cfg, nil, nil, clock, zerolog.Nop())

	for i := 0; i < cfg.FailureThreshold; i++ {
		proc.breaker.RecordBatchLatency(10 * time.Millisecond)
	}
	require.Equal(t, domain.BreakerOpen, proc.BreakerState())

	err := proc.Submit(&domain.IntentSignal{ID: "x"}, domain.PriorityNormal)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestProcessorRunBatchAppliesStagesAndSink(t *testing.T) {
	clock := newFakeClock()
	cfg := testHFTConfig()

	var sunk []*domain.SignalEnvelope
	var mu sync.Mutex
	dropEven := func(e *domain.SignalEnvelope) bool {
		return e.Intent.RequestedSize != 0
	}
	sink := func(batch []*domain.SignalEnvelope) {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range batch {
			c := *e // envelopes go back to the pool after the sink returns
			sunk = append(sunk, &c)
		}
	}

	proc := New(cfg, []Stage{dropEven}, sink, clock, zerolog.Nop())

	require.NoError(t, proc.Submit(&domain.IntentSignal{ID: "keep", RequestedSize: 1}, domain.PriorityHigh))
	require.NoError(t, proc.Submit(&domain.IntentSignal{ID: "drop", RequestedSize: 0}, domain.PriorityHigh))

	proc.runBatch()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sunk, 1)
	assert.Equal(t, "keep", sunk[0].Intent.ID)
}

func testHFTConfig() config.HFTConfig {
	return config.HFTConfig{
		MaxLatencyMicros:     5000,
		PriorityQueueSize:    100,
		BatchSize:            10,
		BatchTimeout:         time.Millisecond,
		PreallocatedObjects:  100,
		FailureThreshold:     5,
		CircuitBreakerBudget: 5 * time.Millisecond,
		RecoveryTime:         30 * time.Second,
		ShutdownGracePeriod:  100 * time.Millisecond,
	}
}
