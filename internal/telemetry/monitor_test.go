package telemetry

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/brain/internal/domain"
)

type fakeBreaker struct {
	state domain.BreakerState
	depth int
}

func (f *fakeBreaker) BreakerState() domain.BreakerState { return f.state }
func (f *fakeBreaker) QueueDepth() int                   { return f.depth }

func TestMonitorDetectsBreakerStateTransition(t *testing.T) {
	breaker := &fakeBreaker{state: domain.BreakerClosed}
	reporter := NewReporter(zerolog.Nop())
	m := NewMonitor(reporter, breaker, zerolog.Nop())

	m.check()
	assert.Equal(t, domain.BreakerClosed, m.lastBreakerState)

	breaker.state = domain.BreakerOpen
	m.check()
	assert.Equal(t, domain.BreakerOpen, m.lastBreakerState)
}

func TestMonitorStartStopDoesNotPanic(t *testing.T) {
	breaker := &fakeBreaker{state: domain.BreakerClosed}
	reporter := NewReporter(zerolog.Nop())
	m := NewMonitor(reporter, breaker, zerolog.Nop())

	m.Start(5 * time.Millisecond)
	time.Sleep(15 * time.Millisecond)
	m.Stop()
}

func TestReporterSampleReturnsNonNegativeValues(t *testing.T) {
	r := NewReporter(zerolog.Nop())
	health := r.Sample()
	assert.GreaterOrEqual(t, health.CPUPercent, 0.0)
	assert.GreaterOrEqual(t, health.MemoryPercent, 0.0)
}
