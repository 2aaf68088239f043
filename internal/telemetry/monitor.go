package telemetry

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/brain/internal/domain"
)

// BreakerSource is the subset of hft.Processor the monitor polls.
type BreakerSource interface {
	BreakerState() domain.BreakerState
	QueueDepth() int
}

// Monitor periodically samples process health and the HFT breaker state,
// logging every breaker state transition: a trip to OPEN at warning level,
// any other transition at info level.
type Monitor struct {
	reporter *Reporter
	breaker  BreakerSource
	log      zerolog.Logger

	lastBreakerState domain.BreakerState
	stopCh           chan struct{}
}

// NewMonitor constructs a Monitor.
func NewMonitor(reporter *Reporter, breaker BreakerSource, log zerolog.Logger) *Monitor {
	return &Monitor{
		reporter: reporter,
		breaker:  breaker,
		log:      log.With().Str("component", "telemetry_monitor").Logger(),
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic monitoring on interval. Non-blocking.
func (m *Monitor) Start(interval time.Duration) {
	go m.run(interval)
}

// Stop halts the monitoring loop.
func (m *Monitor) Stop() {
	close(m.stopCh)
}

func (m *Monitor) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.check()
	for {
		select {
		case <-ticker.C:
			m.check()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) check() {
	health := m.reporter.Sample()
	m.log.Debug().
		Float64("cpu_percent", health.CPUPercent).
		Float64("memory_percent", health.MemoryPercent).
		Int32("open_fds", health.OpenFDs).
		Msg("process health sample")

	state := m.breaker.BreakerState()
	if state != m.lastBreakerState {
		if state == domain.BreakerOpen {
			m.log.Warn().
				Str("from", string(m.lastBreakerState)).
				Str("to", string(state)).
				Int("queue_depth", m.breaker.QueueDepth()).
				Msg("circuit breaker tripped")
		} else {
			m.log.Info().
				Str("from", string(m.lastBreakerState)).
				Str("to", string(state)).
				Msg("circuit breaker state changed")
		}
		m.lastBreakerState = state
	}
}
