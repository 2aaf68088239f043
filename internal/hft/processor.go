package hft

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/brain/internal/config"
	"github.com/aristath/brain/internal/domain"
)

// Stage is one processing-stage transform: signal -> signal | drop. Each
// stage sees a batch in arrival order and never reorders within it.
type Stage func(*domain.SignalEnvelope) (keep bool)

// Sink receives a batch of envelopes that survived every stage. The
// envelopes are reset and returned to the object pool once the sink returns.
type Sink func(batch []*domain.SignalEnvelope)

// Processor is the bounded-latency priority pipeline: admission through the
// PriorityQueue, draining through the batch loop's processing stages, with
// the ObjectPool bounding allocation pressure and the Breaker halting
// admission on sustained latency breaches.
type Processor struct {
	cfg     config.HFTConfig
	queue   *PriorityQueue
	pool    *ObjectPool
	breaker *Breaker
	metrics *LatencyMetrics
	stages  []Stage
	sink    Sink
	clock   Clock
	log     zerolog.Logger

	droppedOnShutdown int64
	mu                sync.Mutex

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Processor. stages run in order for every drained batch;
// sink receives whatever survives all stages.
func New(cfg config.HFTConfig, stages []Stage, sink Sink, clock Clock, log zerolog.Logger) *Processor {
	if clock == nil {
		clock = SystemClock
	}
	return &Processor{
		cfg:     cfg,
		queue:   NewPriorityQueue(cfg.PriorityQueueSize),
		pool:    NewObjectPool(cfg.PreallocatedObjects),
		breaker: NewBreaker(cfg.FailureThreshold, cfg.CircuitBreakerBudget, cfg.RecoveryTime, clock),
		metrics: NewLatencyMetrics(clock),
		stages:  stages,
		sink:    sink,
		clock:   clock,
		log:     log.With().Str("component", "hft_processor").Logger(),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Submit admits an intent at the given priority. Returns ErrCircuitOpen if
// the breaker has tripped, or ErrQueueFull if the queue is at capacity.
func (p *Processor) Submit(intent *domain.IntentSignal, priority domain.Priority) error {
	if !p.breaker.AllowAdmission() {
		return ErrCircuitOpen
	}

	envelope := p.pool.Acquire()
	if envelope == nil {
		return ErrPoolExhausted
	}
	envelope.Priority = priority
	envelope.Intent = intent
	envelope.EnqueuedAtMicros = p.clock.Now().UnixMicro()

	if err := p.queue.Push(envelope); err != nil {
		p.pool.Release(envelope)
		return err
	}
	return nil
}

// Run drains the queue every batchTimeoutMicros until ctx is canceled.
func (p *Processor) Run(ctx context.Context) {
	defer close(p.doneCh)
	ticker := time.NewTicker(p.cfg.BatchTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.shutdown()
			return
		case <-p.stopCh:
			p.shutdown()
			return
		case <-ticker.C:
			p.runBatch()
		}
	}
}

// Stop signals Run to exit and drain, then blocks until it has.
func (p *Processor) Stop() {
	close(p.stopCh)
	<-p.doneCh
}

func (p *Processor) runBatch() {
	batch := p.queue.PopBatch(p.cfg.BatchSize)
	if len(batch) == 0 {
		return
	}

	start := time.Now()
	survivors := make([]*domain.SignalEnvelope, 0, len(batch))
	for _, envelope := range batch {
		keep := true
		for _, stage := range p.stages {
			if !stage(envelope) {
				keep = false
				envelope.Dropped = true
				break
			}
		}
		if keep {
			survivors = append(survivors, envelope)
		}
	}
	latency := time.Since(start)

	p.metrics.Observe(latency, len(batch))
	tripped := p.breaker.RecordBatchLatency(latency)
	if tripped {
		p.log.Warn().Dur("latency", latency).Msg("hft circuit breaker tripped")
	}

	if p.sink != nil && len(survivors) > 0 {
		p.sink(survivors)
	}

	for _, envelope := range batch {
		p.pool.Release(envelope)
	}
}

func (p *Processor) shutdown() {
	deadline := time.After(p.cfg.ShutdownGracePeriod)
drain:
	for p.queue.Len() > 0 {
		select {
		case <-deadline:
			break drain
		default:
			p.runBatch()
		}
	}
	remaining := p.queue.Drain()
	if len(remaining) > 0 {
		p.mu.Lock()
		p.droppedOnShutdown += int64(len(remaining))
		p.mu.Unlock()
		for _, e := range remaining {
			p.pool.Release(e)
		}
		p.log.Warn().Int("dropped", len(remaining)).Msg("discarded queued signals at shutdown")
	}
}

// DroppedOnShutdown returns how many envelopes were discarded during the
// last shutdown's grace period.
func (p *Processor) DroppedOnShutdown() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.droppedOnShutdown
}

// Metrics returns the current rolling latency snapshot.
func (p *Processor) Metrics() Snapshot { return p.metrics.Snapshot() }

// BreakerState returns the circuit breaker's current mode.
func (p *Processor) BreakerState() domain.BreakerState { return p.breaker.State() }

// QueueDepth returns the current priority queue depth.
func (p *Processor) QueueDepth() int { return p.queue.Len() }

// BreakerConsecutiveFailures returns the breaker's current failure streak.
func (p *Processor) BreakerConsecutiveFailures() int { return p.breaker.ConsecutiveFailures() }

// BreakerReason returns the reason the breaker last tripped, empty if it
// never has or has since been manually reset.
func (p *Processor) BreakerReason() string { return p.breaker.Reason() }

// ResetBreaker forces the breaker closed via the operator /breaker/reset
// endpoint.
func (p *Processor) ResetBreaker() bool { return p.breaker.Reset() }

// RestoreBreakerState seeds the breaker's state machine from a persisted
// snapshot at startup, so a restart doesn't silently forget a trip.
func (p *Processor) RestoreBreakerState(state domain.BreakerState, consecutiveFailures int, reason string) {
	p.breaker.RestoreState(state, consecutiveFailures, reason)
}

var (
	// ErrCircuitOpen is returned by Submit while the latency breaker is open.
	ErrCircuitOpen = fmt.Errorf("hft: %s", domain.ReasonCircuitOpen)
	// ErrPoolExhausted is returned by Submit when the object pool has no
	// free envelopes; callers treat this as backpressure.
	ErrPoolExhausted = fmt.Errorf("hft: object pool exhausted")
)
