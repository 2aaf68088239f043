package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/brain/internal/domain"
)

func newTestFeed() *Feed {
	return New("ws://example.invalid", nil, zerolog.Nop())
}

func TestSnapshotMissesBeforeAnyTick(t *testing.T) {
	f := newTestFeed()
	_, ok := f.Snapshot(context.Background(), "BTCUSDT")
	assert.False(t, ok)
}

func TestHandleMessageCachesSnapshotAndFiresCallback(t *testing.T) {
	var captured domain.MarketSnapshot
	f := New("ws://example.invalid", func(s domain.MarketSnapshot) { captured = s }, zerolog.Nop())

	err := f.handleMessage([]byte(`{"symbol":"BTCUSDT","bid":99.5,"ask":100.5,"bidSize":10,"askSize":12,"volume":5000}`))
	require.NoError(t, err)

	snap, ok := f.Snapshot(context.Background(), "BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 99.5, snap.Bid)
	assert.Equal(t, 100.5, snap.Ask)
	assert.Equal(t, "BTCUSDT", captured.Symbol)
	assert.False(t, f.IsStale("BTCUSDT"))
}

func TestHandleMessageIgnoresEmptySymbol(t *testing.T) {
	f := newTestFeed()
	err := f.handleMessage([]byte(`{"bid":1,"ask":2}`))
	require.NoError(t, err)
	_, ok := f.Snapshot(context.Background(), "")
	assert.False(t, ok)
}

func TestIsStaleWhenUnknownSymbol(t *testing.T) {
	f := newTestFeed()
	assert.True(t, f.IsStale("UNKNOWN"))
}

func TestCalculateBackoffCapsAtMax(t *testing.T) {
	assert.Equal(t, baseReconnectDelay, calculateBackoff(1))
	assert.Less(t, calculateBackoff(2), maxReconnectDelay+time.Second)
	assert.Equal(t, maxReconnectDelay, calculateBackoff(20))
}
