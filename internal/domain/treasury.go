package domain

import "time"

// TreasuryOperationType distinguishes an automated sweep from an operator
// initiated manual transfer.
type TreasuryOperationType string

const (
	TreasuryOpSweep          TreasuryOperationType = "SWEEP"
	TreasuryOpManualTransfer TreasuryOperationType = "MANUAL_TRANSFER"
)

// TreasuryOperation is an append-only record of a futures->spot transfer.
type TreasuryOperation struct {
	ID                  string
	Timestamp           time.Time
	Type                TreasuryOperationType
	Amount              float64
	FromWallet          string
	ToWallet            string
	Reason              string
	HighWatermarkAtTime float64
}

// SweepDecision is the result of evaluating the current treasury state
// against the sweep trigger conditions.
type SweepDecision struct {
	ShouldSweep bool
	Amount      float64
	Reason      string
}
