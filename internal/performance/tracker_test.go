package performance

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

type fakeRepo struct {
	trades []domain.TradeRecord
}

func (f *fakeRepo) RecordTrade(ctx context.Context, t domain.TradeRecord) error {
	f.trades = append(f.trades, t)
	return nil
}

func (f *fakeRepo) TradesSince(ctx context.Context, phaseID domain.PhaseID, since int64) ([]domain.TradeRecord, error) {
	var out []domain.TradeRecord
	for _, t := range f.trades {
		if t.PhaseID == phaseID && t.Timestamp.UnixMilli() >= since {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeRepo) AllTrades(ctx context.Context, phaseID domain.PhaseID) ([]domain.TradeRecord, error) {
	return f.TradesSince(ctx, phaseID, 0)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestTracker() (*Tracker, *fakeRepo) {
	repo := &fakeRepo{}
	cfg := config.PerformanceConfig{
		WindowDays:      30,
		MinTradeCount:   3,
		MalusThreshold:  0,
		BonusThreshold:  1.5,
		MalusMultiplier: 0.5,
		BonusMultiplier: 1.2,
	}
	clock := fixedClock{t: time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)}
	return New(repo, cfg, clock, zerolog.Nop()), repo
}

func TestModifierUnderdeterminedBelowMinTradeCount(t *testing.T) {
	tracker, _ := newTestTracker()
	mod, err := tracker.Modifier(context.Background(), domain.PhaseScavenger)
	require.NoError(t, err)
	assert.Equal(t, 1.0, mod)
}

func TestModifierAppliesMalusBelowThreshold(t *testing.T) {
	tracker, _ := newTestTracker()
	ts := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	for _, pnl := range []float64{-10, -20, -15, -5} {
		require.NoError(t, tracker.RecordTrade(context.Background(), domain.PhaseScavenger, pnl, ts, "BTCUSDT", domain.SideSell))
	}
	mod, err := tracker.Modifier(context.Background(), domain.PhaseScavenger)
	require.NoError(t, err)
	assert.Equal(t, 0.5, mod)
}

func TestSharpeZeroUndetermined(t *testing.T) {
	tracker, _ := newTestTracker()
	s, err := tracker.Sharpe(context.Background(), domain.PhaseScavenger, 30)
	require.NoError(t, err)
	assert.Equal(t, 0.0, s)
}
