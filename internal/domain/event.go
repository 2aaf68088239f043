package domain

import "time"

// EventSubject namespaces an event-log entry's payload shape.
type EventSubject string

const (
	SubjectIntentReceived   EventSubject = "evt.intent.received"
	SubjectRiskDecision     EventSubject = "evt.risk.decision"
	SubjectAllocationUpdated EventSubject = "evt.allocation.updated"
	SubjectExecutionFill    EventSubject = "evt.execution.fill"
	SubjectTreasurySweep    EventSubject = "evt.treasury.sweep"
	SubjectBreakerTrip      EventSubject = "evt.breaker.trip"
	SubjectBreakerReset     EventSubject = "evt.breaker.reset"
	SubjectConfigOverride   EventSubject = "evt.config.override"
)

// EventLogEntry is one append-only fact in the system's source of truth. ID
// is assigned by the single event-log writer and is monotonically
// increasing; it is the system's global total order.
type EventLogEntry struct {
	ID        int64
	Timestamp time.Time
	Subject   EventSubject
	Payload   []byte // msgpack-encoded EventData variant
}

// Fill is the execution-side record of a partial or complete order fill.
type Fill struct {
	IntentID  string
	Symbol    string
	Side      Side
	Size      float64
	Price     float64
	PnL       float64
	Timestamp time.Time
}
