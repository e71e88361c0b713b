package trading

import (
	"context"
	"testing"
	"time"

	"github.com/cardexhq/cardex/cardex/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler(store *fakeTradeStore, at time.Time) *ExpiryReconciler {
	r := NewExpiryReconciler(store, time.Hour)
	r.now = func() time.Time { return at }
	return r
}

func TestExpiryReconciler_Sweep(t *testing.T) {
	store := newFakeTradeStore()
	m := newTestManager(store, newFakeLedger(), newFakeUserDirectory("alice"))

	overdue, err := m.CreateTrade(context.Background(), "alice", cards("c1"), cards("c2"), testNow.Add(time.Minute))
	require.NoError(t, err)
	fresh, err := m.CreateTrade(context.Background(), "alice", cards("c3"), cards("c4"), testNow.Add(time.Hour))
	require.NoError(t, err)
	cancelled, err := m.CreateTrade(context.Background(), "alice", cards("c5"), cards("c6"), testNow.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, m.CancelTrade(context.Background(), cancelled.TradeID, "alice"))

	r := newTestReconciler(store, testNow.Add(5*time.Minute))

	swept, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), swept)

	assert.Equal(t, models.TradeExpired, store.status(overdue.TradeID))
	assert.Equal(t, models.TradeOpen, store.status(fresh.TradeID))
	// Terminal statuses are never revisited.
	assert.Equal(t, models.TradeCancelled, store.status(cancelled.TradeID))
}

func TestExpiryReconciler_SweepIdempotent(t *testing.T) {
	store := newFakeTradeStore()
	m := newTestManager(store, newFakeLedger(), newFakeUserDirectory("alice"))

	trade, err := m.CreateTrade(context.Background(), "alice", cards("c1"), cards("c2"), testNow.Add(time.Minute))
	require.NoError(t, err)

	r := newTestReconciler(store, testNow.Add(time.Hour))

	swept, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), swept)

	// A second sweep over the same window flips nothing.
	swept, err = r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), swept)
	assert.Equal(t, models.TradeExpired, store.status(trade.TradeID))
}

func TestExpiryReconciler_UnconfiguredIntervalFallsBack(t *testing.T) {
	// A missing sweep_interval decodes to zero; the constructor must not
	// hand that to time.NewTicker.
	var r *ExpiryReconciler
	require.NotPanics(t, func() {
		r = NewExpiryReconciler(newFakeTradeStore(), 0)
	})
	require.NotNil(t, r.sweepTicker)
	r.Shutdown()
}

func TestExpiryReconciler_SweepNothingDue(t *testing.T) {
	store := newFakeTradeStore()
	m := newTestManager(store, newFakeLedger(), newFakeUserDirectory("alice"))

	_, err := m.CreateTrade(context.Background(), "alice", cards("c1"), cards("c2"), testNow.Add(time.Hour))
	require.NoError(t, err)

	r := newTestReconciler(store, testNow)

	swept, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), swept)
}
