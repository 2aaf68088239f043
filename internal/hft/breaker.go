package hft

import (
	"sync"
	"time"

	"github.com/aristath/brain/internal/domain"
)

// Breaker is the HFT pipeline's latency circuit breaker: closed -> open
// when failureThreshold consecutive batch latencies exceed
// circuitBreakerThreshold; open drops admissions until recoveryTime
// elapses, then half-open; one success closes it, one failure reopens it.
type Breaker struct {
	mu                  sync.Mutex
	state               domain.BreakerState
	consecutiveFailures int
	failureThreshold    int
	latencyThreshold    time.Duration
	recoveryTime        time.Duration
	openedAt            time.Time
	reason              string
	clock               Clock
}

// Clock abstracts wall-clock access for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock is the production Clock.
var SystemClock Clock = systemClock{}

// NewBreaker constructs a closed Breaker.
func NewBreaker(failureThreshold int, latencyThreshold, recoveryTime time.Duration, clock Clock) *Breaker {
	if clock == nil {
		clock = SystemClock
	}
	return &Breaker{
		state:            domain.BreakerClosed,
		failureThreshold: failureThreshold,
		latencyThreshold: latencyThreshold,
		recoveryTime:     recoveryTime,
		clock:            clock,
	}
}

// RestoreState sets the breaker's state directly, used when restoring from
// persistence or replay.
func (b *Breaker) RestoreState(state domain.BreakerState, consecutiveFailures int, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = state
	b.consecutiveFailures = consecutiveFailures
	b.reason = reason
	if state == domain.BreakerOpen {
		b.openedAt = b.clock.Now()
	}
}

// AllowAdmission reports whether a new batch may be admitted. An OPEN
// breaker transitions to HALF_OPEN once recoveryTime has elapsed; a
// HALF_OPEN breaker admits every request until the next recorded batch
// latency closes or reopens it.
func (b *Breaker) AllowAdmission() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case domain.BreakerClosed, domain.BreakerHalfOpen:
		return true
	case domain.BreakerOpen:
		if b.clock.Now().Sub(b.openedAt) >= b.recoveryTime {
			b.state = domain.BreakerHalfOpen
			return true
		}
		return false
	}
	return false
}

// State returns the breaker's current mode.
func (b *Breaker) State() domain.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RecordBatchLatency feeds one batch's measured latency into the breaker.
// Returns true if this observation tripped the breaker open.
func (b *Breaker) RecordBatchLatency(latency time.Duration) (tripped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	breach := latency > b.latencyThreshold

	switch b.state {
	case domain.BreakerHalfOpen:
		if breach {
			b.state = domain.BreakerOpen
			b.openedAt = b.clock.Now()
			b.reason = "half-open probe exceeded latency threshold"
			b.consecutiveFailures = b.failureThreshold
			return true
		}
		b.state = domain.BreakerClosed
		b.consecutiveFailures = 0
		return false

	default: // CLOSED
		if !breach {
			b.consecutiveFailures = 0
			return false
		}
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			b.state = domain.BreakerOpen
			b.openedAt = b.clock.Now()
			b.reason = "consecutive batch latency breaches exceeded threshold"
			return true
		}
		return false
	}
}

// Reset forces the breaker closed, used by the operator /breaker/reset
// endpoint. Only valid from OPEN or HALF_OPEN; returns false if the breaker
// was already closed.
func (b *Breaker) Reset() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != domain.BreakerOpen && b.state != domain.BreakerHalfOpen {
		return false
	}
	b.state = domain.BreakerClosed
	b.consecutiveFailures = 0
	b.reason = ""
	return true
}

// Reason returns the human-readable reason of the most recent trip. Reset
// clears it; a half-open probe that closes the breaker keeps it.
func (b *Breaker) Reason() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reason
}

// ConsecutiveFailures returns the current consecutive-failure count, for
// persistence.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}
