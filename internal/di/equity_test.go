package di

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWalletBalances struct {
	futures    float64
	spot       float64
	futuresErr error
	spotErr    error
}

func (f fakeWalletBalances) GetFuturesBalance(ctx context.Context) (float64, error) {
	return f.futures, f.futuresErr
}

func (f fakeWalletBalances) GetSpotBalance(ctx context.Context) (float64, error) {
	return f.spot, f.spotErr
}

func TestWalletEquitySourceSumsFuturesAndSpot(t *testing.T) {
	source := newWalletEquitySource(fakeWalletBalances{futures: 7000, spot: 300})

	equity, err := source.CurrentEquity(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 7300.0, equity)
}

func TestWalletEquitySourcePropagatesFuturesError(t *testing.T) {
	source := newWalletEquitySource(fakeWalletBalances{futuresErr: assertError("futures api down")})

	_, err := source.CurrentEquity(context.Background())

	assert.ErrorContains(t, err, "futures balance")
}

func TestWalletEquitySourcePropagatesSpotError(t *testing.T) {
	source := newWalletEquitySource(fakeWalletBalances{futures: 100, spotErr: assertError("spot api down")})

	_, err := source.CurrentEquity(context.Background())

	assert.ErrorContains(t, err, "spot balance")
}
