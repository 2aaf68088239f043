// Package exchange adapts a real venue's wallet API to the narrow
// collaborator interfaces the treasury and recovery layers depend on.
package exchange

import (
	"context"
	"fmt"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"

	"github.com/aristath/brain/internal/treasury"
)

// BinanceWallet implements treasury.ExchangeWalletAPI against a real spot
// and USDT-M futures account pair, the same wallet split the treasury
// sweep exists to drain.
type BinanceWallet struct {
	spot    *binance.Client
	futures *futures.Client
	asset   string
	log     zerolog.Logger
}

// NewBinanceWallet constructs a wallet adapter. asset is the settlement
// currency the futures and spot balances are denominated in (e.g. "USDT").
func NewBinanceWallet(apiKey, apiSecret, asset string, log zerolog.Logger) *BinanceWallet {
	return &BinanceWallet{
		spot:    binance.NewClient(apiKey, apiSecret),
		futures: futures.NewClient(apiKey, apiSecret),
		asset:   asset,
		log:     log.With().Str("component", "exchange_wallet").Logger(),
	}
}

// GetFuturesBalance returns the available balance of asset in the futures
// wallet.
func (w *BinanceWallet) GetFuturesBalance(ctx context.Context) (float64, error) {
	balances, err := w.futures.NewGetBalanceService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("exchange: get futures balance: %w", err)
	}
	for _, b := range balances {
		if b.Asset == w.asset {
			return parseFloatOrZero(b.AvailableBalance), nil
		}
	}
	return 0, fmt.Errorf("exchange: asset %q not found in futures wallet", w.asset)
}

// GetSpotBalance returns the free balance of asset in the spot wallet.
func (w *BinanceWallet) GetSpotBalance(ctx context.Context) (float64, error) {
	account, err := w.spot.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("exchange: get spot account: %w", err)
	}
	for _, b := range account.Balances {
		if b.Asset == w.asset {
			return parseFloatOrZero(b.Free), nil
		}
	}
	return 0, fmt.Errorf("exchange: asset %q not found in spot wallet", w.asset)
}

// TransferToSpot moves amount of asset from the futures wallet to the spot
// wallet via the futures account transfer endpoint (type 2).
func (w *BinanceWallet) TransferToSpot(ctx context.Context, amount float64) treasury.TransferResult {
	txID, err := w.spot.NewFuturesTransferService().
		Asset(w.asset).
		Amount(fmt.Sprintf("%.8f", amount)).
		Type(2). // 2 = USDT-margined futures account -> spot account
		Do(ctx)
	if err != nil {
		w.log.Error().Err(err).Float64("amount", amount).Msg("futures-to-spot transfer failed")
		return treasury.TransferResult{OK: false, Err: err}
	}
	return treasury.TransferResult{OK: true, TxID: fmt.Sprintf("%d", txID.TranID)}
}

func parseFloatOrZero(s string) float64 {
	var f float64
	if _, err := fmt.Sscanf(s, "%f", &f); err != nil {
		return 0
	}
	return f
}
