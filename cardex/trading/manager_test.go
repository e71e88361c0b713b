package trading

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cardexhq/cardex/cardex/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(store *fakeTradeStore, ledger *fakeLedger, users *fakeUserDirectory) *Manager {
	m := NewManager(store, ledger, users)
	m.now = func() time.Time { return testNow }
	return m
}

func cards(ids ...string) []models.TradeCard {
	out := make([]models.TradeCard, len(ids))
	for i, id := range ids {
		out[i] = models.TradeCard{CardID: id, Quantity: 1}
	}
	return out
}

func TestManager_CreateTrade_Validation(t *testing.T) {
	tests := []struct {
		name      string
		offerorID string
		offered   []models.TradeCard
		requested []models.TradeCard
		expireAt  time.Time
	}{
		{
			name:      "empty offered side",
			offerorID: "alice",
			offered:   nil,
			requested: cards("c2"),
			expireAt:  testNow.Add(time.Hour),
		},
		{
			name:      "empty requested side",
			offerorID: "alice",
			offered:   cards("c1"),
			requested: nil,
			expireAt:  testNow.Add(time.Hour),
		},
		{
			name:      "expiry in the past",
			offerorID: "alice",
			offered:   cards("c1"),
			requested: cards("c2"),
			expireAt:  testNow.Add(-time.Minute),
		},
		{
			name:      "expiry exactly now",
			offerorID: "alice",
			offered:   cards("c1"),
			requested: cards("c2"),
			expireAt:  testNow,
		},
		{
			name:      "empty offeror",
			offerorID: "",
			offered:   cards("c1"),
			requested: cards("c2"),
			expireAt:  testNow.Add(time.Hour),
		},
		{
			name:      "blank card id",
			offerorID: "alice",
			offered:   cards(""),
			requested: cards("c2"),
			expireAt:  testNow.Add(time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(newFakeTradeStore(), newFakeLedger(), newFakeUserDirectory("alice"))

			_, err := m.CreateTrade(context.Background(), tt.offerorID, tt.offered, tt.requested, tt.expireAt)
			assert.True(t, IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestManager_CreateTrade_UnknownOfferor(t *testing.T) {
	m := newTestManager(newFakeTradeStore(), newFakeLedger(), newFakeUserDirectory("alice"))

	_, err := m.CreateTrade(context.Background(), "ghost", cards("c1"), cards("c2"), testNow.Add(time.Hour))
	assert.True(t, IsNotFound(err), "expected not found error, got %v", err)
}

func TestManager_CreateTrade_Success(t *testing.T) {
	store := newFakeTradeStore()
	users := newFakeUserDirectory("alice")
	m := newTestManager(store, newFakeLedger(), users)

	offered := []models.TradeCard{{CardID: "c1", Quantity: 3}, {CardID: "c1", Quantity: 2}}
	requested := []models.TradeCard{{CardID: "c2", Quantity: 7}}

	trade, err := m.CreateTrade(context.Background(), "alice", offered, requested, testNow.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, models.TradeOpen, trade.Status)
	assert.True(t, strings.HasPrefix(trade.TradeID, "TR"))
	assert.Nil(t, trade.BuyerID)

	// Quantities are capped at one per entry; duplicate entries stay
	// distinct.
	require.Len(t, trade.OfferedCards, 2)
	for _, c := range trade.OfferedCards {
		assert.Equal(t, int64(1), c.Quantity)
	}
	require.Len(t, trade.RequestedCards, 1)
	assert.Equal(t, int64(1), trade.RequestedCards[0].Quantity)

	assert.Contains(t, users.trades["alice"], trade.TradeID)

	stored, err := store.GetByTradeID(context.Background(), trade.TradeID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeOpen, stored.Status)
}

func TestManager_AcceptTrade_Success(t *testing.T) {
	store := newFakeTradeStore()
	ledger := newFakeLedger()
	users := newFakeUserDirectory("alice", "bob")
	m := newTestManager(store, ledger, users)

	ledger.set("alice", "c1", 2)
	ledger.set("bob", "c2", 1)

	trade, err := m.CreateTrade(context.Background(), "alice", cards("c1"), cards("c2"), testNow.Add(time.Hour))
	require.NoError(t, err)

	totalC1 := ledger.total("c1")
	totalC2 := ledger.total("c2")

	completed, err := m.AcceptTrade(context.Background(), trade.TradeID, "bob")
	require.NoError(t, err)

	assert.Equal(t, models.TradeCompleted, completed.Status)
	require.NotNil(t, completed.BuyerID)
	assert.Equal(t, "bob", *completed.BuyerID)

	assert.Equal(t, int64(1), ledger.get("alice", "c1"))
	assert.Equal(t, int64(1), ledger.get("alice", "c2"))
	assert.Equal(t, int64(1), ledger.get("bob", "c1"))
	assert.Equal(t, int64(0), ledger.get("bob", "c2"))

	// No card is created or destroyed by settlement.
	assert.Equal(t, totalC1, ledger.total("c1"))
	assert.Equal(t, totalC2, ledger.total("c2"))

	// The buyer is written by the claim itself, so the stored record never
	// reads completed without one.
	require.NotNil(t, store.buyer(trade.TradeID))
	assert.Equal(t, "bob", *store.buyer(trade.TradeID))
}

func TestManager_AcceptTrade_OwnTrade(t *testing.T) {
	store := newFakeTradeStore()
	ledger := newFakeLedger()
	m := newTestManager(store, ledger, newFakeUserDirectory("alice"))

	ledger.set("alice", "c1", 1)
	trade, err := m.CreateTrade(context.Background(), "alice", cards("c1"), cards("c2"), testNow.Add(time.Hour))
	require.NoError(t, err)

	_, err = m.AcceptTrade(context.Background(), trade.TradeID, "alice")
	assert.True(t, IsConflict(err), "expected conflict error, got %v", err)
	assert.Equal(t, models.TradeOpen, store.status(trade.TradeID))
}

func TestManager_AcceptTrade_NotFound(t *testing.T) {
	m := newTestManager(newFakeTradeStore(), newFakeLedger(), newFakeUserDirectory())

	_, err := m.AcceptTrade(context.Background(), "TRMISSING000", "bob")
	assert.True(t, IsNotFound(err), "expected not found error, got %v", err)
}

func TestManager_AcceptTrade_Expired(t *testing.T) {
	store := newFakeTradeStore()
	ledger := newFakeLedger()
	m := newTestManager(store, ledger, newFakeUserDirectory("alice", "bob"))

	ledger.set("alice", "c1", 1)
	ledger.set("bob", "c2", 1)
	trade, err := m.CreateTrade(context.Background(), "alice", cards("c1"), cards("c2"), testNow.Add(time.Minute))
	require.NoError(t, err)

	// Advance past the expiry before accepting.
	m.now = func() time.Time { return testNow.Add(2 * time.Minute) }

	_, err = m.AcceptTrade(context.Background(), trade.TradeID, "bob")
	assert.True(t, IsConflict(err), "expected conflict error, got %v", err)

	// The accept path flips the trade itself instead of waiting for the
	// sweeper.
	assert.Equal(t, models.TradeExpired, store.status(trade.TradeID))
	assert.Equal(t, int64(1), ledger.get("alice", "c1"))
	assert.Equal(t, int64(1), ledger.get("bob", "c2"))
}

func TestManager_AcceptTrade_OfferorShort(t *testing.T) {
	store := newFakeTradeStore()
	ledger := newFakeLedger()
	m := newTestManager(store, ledger, newFakeUserDirectory("alice", "bob"))

	ledger.set("alice", "c1", 1)
	ledger.set("bob", "c2", 1)
	trade, err := m.CreateTrade(context.Background(), "alice", cards("c1"), cards("c2"), testNow.Add(time.Hour))
	require.NoError(t, err)

	// Alice spends her copy after listing; offers are not escrowed.
	ledger.set("alice", "c1", 0)

	_, err = m.AcceptTrade(context.Background(), trade.TradeID, "bob")
	require.True(t, IsConflict(err), "expected conflict error, got %v", err)
	assert.Contains(t, err.Error(), "c1")

	// The trade reopens with no buyer and nothing moved.
	assert.Equal(t, models.TradeOpen, store.status(trade.TradeID))
	assert.Nil(t, store.buyer(trade.TradeID))
	assert.Equal(t, int64(1), ledger.get("bob", "c2"))
}

func TestManager_AcceptTrade_BuyerShort(t *testing.T) {
	store := newFakeTradeStore()
	ledger := newFakeLedger()
	m := newTestManager(store, ledger, newFakeUserDirectory("alice", "bob"))

	ledger.set("alice", "c1", 1)

	trade, err := m.CreateTrade(context.Background(), "alice", cards("c1"), cards("c2"), testNow.Add(time.Hour))
	require.NoError(t, err)

	_, err = m.AcceptTrade(context.Background(), trade.TradeID, "bob")
	require.True(t, IsConflict(err), "expected conflict error, got %v", err)
	assert.Contains(t, err.Error(), "c2")

	assert.Equal(t, models.TradeOpen, store.status(trade.TradeID))
	assert.Equal(t, int64(1), ledger.get("alice", "c1"))
}

func TestManager_AcceptTrade_CompensatesOfferor(t *testing.T) {
	store := newFakeTradeStore()
	ledger := newFakeLedger()
	m := newTestManager(store, ledger, newFakeUserDirectory("alice", "bob"))

	ledger.set("alice", "c1", 1)
	ledger.set("bob", "c2", 1)

	trade, err := m.CreateTrade(context.Background(), "alice", cards("c1"), cards("c2"), testNow.Add(time.Hour))
	require.NoError(t, err)

	// Validation sees bob's holdings, but his adjustment then fails.
	// Quantities is unaffected so validation passes; only the write
	// path is broken.
	ledger.failFor["bob"] = &bufErr{"connection reset"}

	_, err = m.AcceptTrade(context.Background(), trade.TradeID, "bob")
	require.True(t, IsInternal(err), "expected internal error, got %v", err)

	// Alice's already-applied adjustment was reversed and the trade is
	// open again.
	assert.Equal(t, int64(1), ledger.get("alice", "c1"))
	assert.Equal(t, int64(0), ledger.get("alice", "c2"))
	assert.Equal(t, int64(1), ledger.get("bob", "c2"))
	assert.Equal(t, models.TradeOpen, store.status(trade.TradeID))
	assert.Nil(t, store.buyer(trade.TradeID))
}

type bufErr struct{ msg string }

func (e *bufErr) Error() string { return e.msg }

func TestManager_AcceptTrade_ConcurrentExactlyOneWins(t *testing.T) {
	store := newFakeTradeStore()
	ledger := newFakeLedger()

	const buyers = 16
	users := []string{"alice"}
	for i := 0; i < buyers; i++ {
		users = append(users, buyerName(i))
	}
	m := newTestManager(store, ledger, newFakeUserDirectory(users...))

	ledger.set("alice", "c1", 1)
	for i := 0; i < buyers; i++ {
		ledger.set(buyerName(i), "c2", 1)
	}

	trade, err := m.CreateTrade(context.Background(), "alice", cards("c1"), cards("c2"), testNow.Add(time.Hour))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = m.AcceptTrade(context.Background(), trade.TradeID, buyerName(i))
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case IsConflict(err):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, buyers-1, conflicts)

	// The single winner holds the card; conservation holds overall.
	assert.Equal(t, int64(0), ledger.get("alice", "c1"))
	assert.Equal(t, int64(1), ledger.total("c1"))
	assert.Equal(t, int64(buyers), ledger.total("c2"))
	assert.Equal(t, models.TradeCompleted, store.status(trade.TradeID))
}

func buyerName(i int) string {
	return "buyer" + string(rune('a'+i))
}

func TestManager_CancelTrade(t *testing.T) {
	newOpenTrade := func(t *testing.T) (*Manager, *fakeTradeStore, *models.Trade) {
		store := newFakeTradeStore()
		m := newTestManager(store, newFakeLedger(), newFakeUserDirectory("alice", "bob"))
		trade, err := m.CreateTrade(context.Background(), "alice", cards("c1"), cards("c2"), testNow.Add(time.Hour))
		require.NoError(t, err)
		return m, store, trade
	}

	t.Run("offeror cancels", func(t *testing.T) {
		m, store, trade := newOpenTrade(t)
		require.NoError(t, m.CancelTrade(context.Background(), trade.TradeID, "alice"))
		assert.Equal(t, models.TradeCancelled, store.status(trade.TradeID))
	})

	t.Run("non-offeror denied", func(t *testing.T) {
		m, store, trade := newOpenTrade(t)
		err := m.CancelTrade(context.Background(), trade.TradeID, "bob")
		assert.True(t, IsAuthorization(err), "expected authorization error, got %v", err)
		assert.Equal(t, models.TradeOpen, store.status(trade.TradeID))
	})

	t.Run("missing trade", func(t *testing.T) {
		m, _, _ := newOpenTrade(t)
		err := m.CancelTrade(context.Background(), "TRMISSING000", "alice")
		assert.True(t, IsNotFound(err), "expected not found error, got %v", err)
	})

	t.Run("already cancelled", func(t *testing.T) {
		m, _, trade := newOpenTrade(t)
		require.NoError(t, m.CancelTrade(context.Background(), trade.TradeID, "alice"))
		err := m.CancelTrade(context.Background(), trade.TradeID, "alice")
		assert.True(t, IsNotFound(err), "expected not found error, got %v", err)
	})

	t.Run("expired trade", func(t *testing.T) {
		m, store, trade := newOpenTrade(t)
		m.now = func() time.Time { return testNow.Add(2 * time.Hour) }
		err := m.CancelTrade(context.Background(), trade.TradeID, "alice")
		assert.True(t, IsNotFound(err), "expected not found error, got %v", err)
		assert.Equal(t, models.TradeExpired, store.status(trade.TradeID))
	})
}
