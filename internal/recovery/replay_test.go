package recovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/brain/internal/config"
	"github.com/aristath/brain/internal/domain"
	"github.com/aristath/brain/internal/events"
)

type memEventStore struct {
	mu      sync.Mutex
	entries []domain.EventLogEntry
}

func (s *memEventStore) Append(ctx context.Context, subject domain.EventSubject, payload []byte) (domain.EventLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := domain.EventLogEntry{ID: int64(len(s.entries) + 1), Timestamp: time.Now().UTC(), Subject: subject, Payload: payload}
	s.entries = append(s.entries, e)
	return e, nil
}

func (s *memEventStore) StreamFrom(ctx context.Context, fromID int64, limit int) ([]domain.EventLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.EventLogEntry
	for _, e := range s.entries {
		if e.ID >= fromID {
			out = append(out, e)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memEventStore) LatestID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return 0, nil
	}
	return s.entries[len(s.entries)-1].ID, nil
}

func (s *memEventStore) append(t *testing.T, data events.EventData) {
	t.Helper()
	payload, err := events.Encode(data)
	require.NoError(t, err)
	_, err = s.Append(context.Background(), data.Subject(), payload)
	require.NoError(t, err)
}

type memAllocRepo struct {
	snapshot *domain.AllocationVector
}

func (r *memAllocRepo) SaveSnapshot(ctx context.Context, v domain.AllocationVector) error {
	r.snapshot = &v
	return nil
}
func (r *memAllocRepo) LoadSnapshot(ctx context.Context) (*domain.AllocationVector, error) {
	return r.snapshot, nil
}

type memTreasuryRepo struct {
	hw, swept float64
}

func (r *memTreasuryRepo) SaveState(ctx context.Context, hw, swept float64) error {
	r.hw, r.swept = hw, swept
	return nil
}
func (r *memTreasuryRepo) LoadState(ctx context.Context) (float64, float64, error) {
	return r.hw, r.swept, nil
}
func (r *memTreasuryRepo) RecordOperation(ctx context.Context, op domain.TreasuryOperation) error {
	return nil
}
func (r *memTreasuryRepo) RecentOperations(ctx context.Context, limit int) ([]domain.TreasuryOperation, error) {
	return nil, nil
}

type memPositionRepo struct {
	mu        sync.Mutex
	positions map[string]domain.Position
}

func newMemPositionRepo() *memPositionRepo {
	return &memPositionRepo{positions: make(map[string]domain.Position)}
}
func (r *memPositionRepo) SavePosition(ctx context.Context, p domain.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions[p.Symbol] = p
	return nil
}
func (r *memPositionRepo) DeletePosition(ctx context.Context, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.positions, symbol)
	return nil
}
func (r *memPositionRepo) AllPositions(ctx context.Context) ([]domain.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Position
	for _, p := range r.positions {
		out = append(out, p)
	}
	return out, nil
}

func testCfg() config.Config {
	return config.Config{Treasury: config.TreasuryConfig{InitialCapital: 10000}}
}

func newReplayer() (*Replayer, *memEventStore) {
	store := &memEventStore{}
	r := New(store, &memAllocRepo{}, &memTreasuryRepo{}, newMemPositionRepo(), testCfg(), zerolog.Nop())
	return r, store
}

// TestS5ReplayProducesExpectedState implements spec scenario S5: a log of
// intent, approve decision, a fill of size 100 with pnl +50, and a sweep of
// 500 replays from empty into positions{A:size=100}, totalSwept=500, and
// HW=initialCapital+50.
func TestS5ReplayProducesExpectedState(t *testing.T) {
	r, store := newReplayer()

	store.append(t, events.IntentReceivedData{Intent: domain.IntentSignal{ID: "A", Symbol: "BTCUSDT"}})
	store.append(t, events.RiskDecisionData{IntentID: "A", Decision: domain.RiskDecision{Approved: true, AdjustedSize: 100}})
	store.append(t, events.ExecutionFillData{Fill: domain.Fill{
		IntentID: "A", Symbol: "BTCUSDT", Side: domain.SideBuy, Size: 100, Price: 50000, PnL: 50,
	}})
	store.append(t, events.TreasurySweepData{Operation: domain.TreasuryOperation{
		Type: domain.TreasuryOpSweep, Amount: 500,
	}})

	state, err := r.Replay(context.Background(), 2)
	require.NoError(t, err)

	require.Contains(t, state.Positions, "BTCUSDT")
	assert.Equal(t, 100.0, state.Positions["BTCUSDT"].Size)
	assert.Equal(t, 500.0, state.TotalSwept)
	assert.Equal(t, 10050.0, state.HighWatermark)
}

func TestReplayDeterministic(t *testing.T) {
	r1, store := newReplayer()
	store.append(t, events.ExecutionFillData{Fill: domain.Fill{Symbol: "ETHUSDT", Side: domain.SideBuy, Size: 10, Price: 2000, PnL: 30}})
	store.append(t, events.ExecutionFillData{Fill: domain.Fill{Symbol: "ETHUSDT", Side: domain.SideBuy, Size: 5, Price: 2100, PnL: -10}})
	store.append(t, events.TreasurySweepData{Operation: domain.TreasuryOperation{Type: domain.TreasuryOpSweep, Amount: 20}})

	s1, err := r1.Replay(context.Background(), 1000)
	require.NoError(t, err)

	r2 := New(store, &memAllocRepo{}, &memTreasuryRepo{}, newMemPositionRepo(), testCfg(), zerolog.Nop())
	s2, err := r2.Replay(context.Background(), 1000)
	require.NoError(t, err)

	assert.Equal(t, s1.HighWatermark, s2.HighWatermark)
	assert.Equal(t, s1.TotalSwept, s2.TotalSwept)
	assert.Equal(t, s1.Positions, s2.Positions)
	assert.Equal(t, s1.Allocation, s2.Allocation)
}

func TestReplayEmptyLogInitializesDefaults(t *testing.T) {
	r, _ := newReplayer()
	state, err := r.Replay(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, state.HighWatermark)
	assert.Equal(t, 0.0, state.TotalSwept)
	assert.Empty(t, state.Positions)
}

func TestReplayPositionFlipOnOversizedOppositeFill(t *testing.T) {
	r, store := newReplayer()
	store.append(t, events.ExecutionFillData{Fill: domain.Fill{Symbol: "SOLUSDT", Side: domain.SideBuy, Size: 10, Price: 100}})
	store.append(t, events.ExecutionFillData{Fill: domain.Fill{Symbol: "SOLUSDT", Side: domain.SideSell, Size: 15, Price: 110}})

	state, err := r.Replay(context.Background(), 1000)
	require.NoError(t, err)

	pos := state.Positions["SOLUSDT"]
	assert.Equal(t, domain.PositionShort, pos.Side)
	assert.Equal(t, 5.0, pos.Size)
}
