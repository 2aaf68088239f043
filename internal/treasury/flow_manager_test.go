package treasury

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/brain/internal/config"
	"github.com/aristath/brain/internal/domain"
)

type fakeWallet struct {
	futuresBalance float64
	transferErr    error
}

func (f *fakeWallet) GetFuturesBalance(ctx context.Context) (float64, error) { return f.futuresBalance, nil }
func (f *fakeWallet) GetSpotBalance(ctx context.Context) (float64, error)    { return 0, nil }
func (f *fakeWallet) TransferToSpot(ctx context.Context, amount float64) TransferResult {
	if f.transferErr != nil {
		return TransferResult{OK: false, Err: f.transferErr}
	}
	f.futuresBalance -= amount
	return TransferResult{OK: true, TxID: "tx1"}
}

type fakeTreasuryRepo struct {
	hw, swept float64
	ops       []domain.TreasuryOperation
}

func (f *fakeTreasuryRepo) SaveState(ctx context.Context, hw, swept float64) error {
	f.hw, f.swept = hw, swept
	return nil
}
func (f *fakeTreasuryRepo) LoadState(ctx context.Context) (float64, float64, error) {
	return f.hw, f.swept, nil
}
func (f *fakeTreasuryRepo) RecordOperation(ctx context.Context, op domain.TreasuryOperation) error {
	f.ops = append(f.ops, op)
	return nil
}
func (f *fakeTreasuryRepo) RecentOperations(ctx context.Context, limit int) ([]domain.TreasuryOperation, error) {
	return f.ops, nil
}

type fakeEventStore struct{ nextID int64 }

func (f *fakeEventStore) Append(ctx context.Context, subject domain.EventSubject, payload []byte) (domain.EventLogEntry, error) {
	f.nextID++
	return domain.EventLogEntry{ID: f.nextID, Subject: subject, Payload: payload}, nil
}
func (f *fakeEventStore) StreamFrom(ctx context.Context, fromID int64, limit int) ([]domain.EventLogEntry, error) {
	return nil, nil
}
func (f *fakeEventStore) LatestID(ctx context.Context) (int64, error) { return f.nextID, nil }

func testTreasuryConfig() config.TreasuryConfig {
	return config.TreasuryConfig{
		SweepThreshold:  1.2,
		ReserveLimit:    2000,
		MaxRetries:      5,
		RetryBaseDelay:  1 * time.Millisecond,
		InitialCapital:  1000,
		SweepTriggerPct: 0.10,
	}
}

func TestS4SweepAmountAndMonotonicity(t *testing.T) {
	wallet := &fakeWallet{futuresBalance: 13000}
	repo := &fakeTreasuryRepo{}
	mgr, err := New(testTreasuryConfig(), wallet, repo, &fakeEventStore{}, nil, nil, zerolog.Nop())
	require.NoError(t, err)
	mgr.SetTargetAllocation(10000)

	decision, err := mgr.CheckSweepConditions(context.Background())
	require.NoError(t, err)
	assert.True(t, decision.ShouldSweep)
	assert.InDelta(t, 1000, decision.Amount, 1e-9)

	err = mgr.ExecuteSweep(context.Background(), decision.Amount)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, mgr.TotalSwept())
	assert.Equal(t, 12000.0, wallet.futuresBalance)
}

func TestHighWatermarkNeverRegresses(t *testing.T) {
	mgr, err := New(testTreasuryConfig(), &fakeWallet{}, &fakeTreasuryRepo{}, &fakeEventStore{}, nil, nil, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, mgr.UpdateHighWatermark(context.Background(), 5000))
	assert.Equal(t, 5000.0, mgr.HighWatermark())

	require.NoError(t, mgr.UpdateHighWatermark(context.Background(), 3000))
	assert.Equal(t, 5000.0, mgr.HighWatermark(), "HW must not regress")
}

func TestSweepFailureLeavesStateUnmodified(t *testing.T) {
	wallet := &fakeWallet{futuresBalance: 13000, transferErr: assert.AnError}
	mgr, err := New(testTreasuryConfig(), wallet, &fakeTreasuryRepo{}, &fakeEventStore{}, nil, nil, zerolog.Nop())
	require.NoError(t, err)

	err = mgr.ExecuteSweep(context.Background(), 1000)
	assert.Error(t, err)
	assert.Equal(t, 0.0, mgr.TotalSwept())
	assert.Equal(t, 13000.0, wallet.futuresBalance)
}

func TestShouldTriggerSweepOnEquityIncrease(t *testing.T) {
	mgr, err := New(testTreasuryConfig(), &fakeWallet{}, &fakeTreasuryRepo{}, &fakeEventStore{}, nil, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, mgr.ShouldTriggerSweepOnEquityIncrease(1000, 1200))
	assert.False(t, mgr.ShouldTriggerSweepOnEquityIncrease(1000, 1050))
}
