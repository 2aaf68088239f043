package events

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/brain/internal/domain"
)

// Encode serializes an EventData variant to its wire representation. The
// event log stores these bytes verbatim alongside the subject tag; decoding
// picks the concrete type back up from the subject, not from anything
// embedded in the payload.
func Encode(data EventData) ([]byte, error) {
	b, err := msgpack.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode event payload: %w", err)
	}
	return b, nil
}

// Decode deserializes payload bytes into the EventData variant matching
// subject. Returns an error for an unrecognized subject so a corrupt or
// forward-incompatible log entry fails loudly instead of silently.
func Decode(subject domain.EventSubject, payload []byte) (EventData, error) {
	var target EventData
	switch subject {
	case domain.SubjectIntentReceived:
		target = &IntentReceivedData{}
	case domain.SubjectRiskDecision:
		target = &RiskDecisionData{}
	case domain.SubjectAllocationUpdated:
		target = &AllocationUpdatedData{}
	case domain.SubjectExecutionFill:
		target = &ExecutionFillData{}
	case domain.SubjectTreasurySweep:
		target = &TreasurySweepData{}
	case domain.SubjectBreakerTrip:
		target = &BreakerTripData{}
	case domain.SubjectBreakerReset:
		target = &BreakerResetData{}
	case domain.SubjectConfigOverride:
		target = &ConfigOverrideData{}
	default:
		return nil, fmt.Errorf("decode event payload: unknown subject %q", subject)
	}

	if err := msgpack.Unmarshal(payload, target); err != nil {
		return nil, fmt.Errorf("decode event payload for %q: %w", subject, err)
	}

	// dereference back to the value variant the callers in this package
	// construct and pattern-match against.
	switch v := target.(type) {
	case *IntentReceivedData:
		return *v, nil
	case *RiskDecisionData:
		return *v, nil
	case *AllocationUpdatedData:
		return *v, nil
	case *ExecutionFillData:
		return *v, nil
	case *TreasurySweepData:
		return *v, nil
	case *BreakerTripData:
		return *v, nil
	case *BreakerResetData:
		return *v, nil
	case *ConfigOverrideData:
		return *v, nil
	default:
		return nil, fmt.Errorf("decode event payload: unreachable variant for %q", subject)
	}
}
