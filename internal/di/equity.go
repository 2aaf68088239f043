package di

import (
	"context"
	"fmt"
)

// walletBalances is the subset of the exchange wallet adapter this package
// needs to derive total account equity, kept narrow so tests can substitute
// a fake without constructing a real exchange client.
type walletBalances interface {
	GetFuturesBalance(ctx context.Context) (float64, error)
	GetSpotBalance(ctx context.Context) (float64, error)
}

// walletEquitySource sums the futures and spot wallet balances into the
// single equity figure the AllocationEngine, RiskGuardian, and
// HighWatermarkJob all scale against. It satisfies both the pipeline's
// equitySource and scheduler.EquitySource, which share the same shape.
type walletEquitySource struct {
	wallet walletBalances
}

func newWalletEquitySource(wallet walletBalances) *walletEquitySource {
	return &walletEquitySource{wallet: wallet}
}

// CurrentEquity returns the combined futures + spot balance.
func (w *walletEquitySource) CurrentEquity(ctx context.Context) (float64, error) {
	futuresBalance, err := w.wallet.GetFuturesBalance(ctx)
	if err != nil {
		return 0, fmt.Errorf("equity: futures balance: %w", err)
	}
	spotBalance, err := w.wallet.GetSpotBalance(ctx)
	if err != nil {
		return 0, fmt.Errorf("equity: spot balance: %w", err)
	}
	return futuresBalance + spotBalance, nil
}
