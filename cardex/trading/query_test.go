package trading

import (
	"context"
	"testing"
	"time"

	"github.com/cardexhq/cardex/cardex/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() *fakeCardResolver {
	return newFakeCardResolver(
		&models.Card{ID: "c1", Name: "Hermione Granger", AlternateNames: []string{"Brightest Witch"}},
		&models.Card{ID: "c2", Name: "Severus Snape"},
		&models.Card{ID: "c3", Name: "Luna Lovegood"},
	)
}

func newTestQueryService(store *fakeTradeStore, cards *fakeCardResolver) *QueryService {
	q := NewQueryService(store, cards)
	q.now = func() time.Time { return testNow }
	return q
}

func TestQueryService_ListOpenTrades(t *testing.T) {
	store := newFakeTradeStore()
	m := newTestManager(store, newFakeLedger(), newFakeUserDirectory("alice", "bob"))

	aliceTrade, err := m.CreateTrade(context.Background(), "alice", cards("c1"), cards("c2"), testNow.Add(2*time.Hour))
	require.NoError(t, err)
	_, err = m.CreateTrade(context.Background(), "bob", cards("c2"), cards("c3"), testNow.Add(2*time.Hour))
	require.NoError(t, err)
	_, err = m.CreateTrade(context.Background(), "alice", cards("c3"), cards("c1"), testNow.Add(30*time.Minute))
	require.NoError(t, err)

	q := newTestQueryService(store, testCatalog())

	// Bob browsing sees only alice's unexpired trades.
	q.now = func() time.Time { return testNow.Add(time.Hour) }
	listings, err := q.ListOpenTrades(context.Background(), "bob", SortNewest)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, aliceTrade.TradeID, listings[0].Trade.TradeID)
}

func TestQueryService_ListOpenTrades_Reputation(t *testing.T) {
	store := newFakeTradeStore()
	ledger := newFakeLedger()
	m := newTestManager(store, ledger, newFakeUserDirectory("alice", "bob"))

	ledger.set("alice", "c1", 2)
	ledger.set("bob", "c2", 1)

	// One completed and one still-open trade: reputation 1/2 * 5.
	done, err := m.CreateTrade(context.Background(), "alice", cards("c1"), cards("c2"), testNow.Add(time.Hour))
	require.NoError(t, err)
	_, err = m.AcceptTrade(context.Background(), done.TradeID, "bob")
	require.NoError(t, err)
	_, err = m.CreateTrade(context.Background(), "alice", cards("c1"), cards("c3"), testNow.Add(time.Hour))
	require.NoError(t, err)

	q := newTestQueryService(store, testCatalog())

	listings, err := q.ListOpenTrades(context.Background(), "bob", SortNewest)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.InDelta(t, 2.5, listings[0].Reputation, 0.0001)
}

func TestQueryService_Reputation_NoHistory(t *testing.T) {
	q := newTestQueryService(newFakeTradeStore(), testCatalog())

	rep, err := q.Reputation(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0.0, rep)
}

func TestQueryService_SearchTrades(t *testing.T) {
	store := newFakeTradeStore()
	m := newTestManager(store, newFakeLedger(), newFakeUserDirectory("alice"))

	hermione, err := m.CreateTrade(context.Background(), "alice", cards("c1"), cards("c2"), testNow.Add(time.Hour))
	require.NoError(t, err)
	luna, err := m.CreateTrade(context.Background(), "alice", cards("c3"), cards("c2"), testNow.Add(time.Hour))
	require.NoError(t, err)

	q := newTestQueryService(store, testCatalog())

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "substring on name", query: "hermio", want: []string{hermione.TradeID}},
		{name: "case insensitive", query: "LUNA", want: []string{luna.TradeID}},
		{name: "alternate name", query: "brightest", want: []string{hermione.TradeID}},
		{name: "requested side never matches", query: "snape", want: nil},
		{name: "inverted ignores requested side", query: "!snape", want: []string{hermione.TradeID, luna.TradeID}},
		{name: "inverted match", query: "!hermione", want: []string{luna.TradeID}},
		{name: "no match", query: "dumbledore", want: nil},
		{name: "inverted no match keeps all", query: "!dumbledore", want: []string{hermione.TradeID, luna.TradeID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listings, err := q.SearchTrades(context.Background(), "viewer", tt.query, SortNewest)
			require.NoError(t, err)

			var got []string
			for _, l := range listings {
				got = append(got, l.Trade.TradeID)
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestQueryService_SearchTrades_BlankQueryListsAll(t *testing.T) {
	store := newFakeTradeStore()
	m := newTestManager(store, newFakeLedger(), newFakeUserDirectory("alice"))

	_, err := m.CreateTrade(context.Background(), "alice", cards("c1"), cards("c2"), testNow.Add(time.Hour))
	require.NoError(t, err)

	q := newTestQueryService(store, testCatalog())

	listings, err := q.SearchTrades(context.Background(), "viewer", "   ", SortNewest)
	require.NoError(t, err)
	assert.Len(t, listings, 1)
}

func TestQueryService_SortOrders(t *testing.T) {
	store := newFakeTradeStore()
	m := newTestManager(store, newFakeLedger(), newFakeUserDirectory("alice"))

	soon, err := m.CreateTrade(context.Background(), "alice", cards("c1"), cards("c2"), testNow.Add(time.Hour))
	require.NoError(t, err)
	later, err := m.CreateTrade(context.Background(), "alice", cards("c3"), cards("c2"), testNow.Add(24*time.Hour))
	require.NoError(t, err)

	q := newTestQueryService(store, testCatalog())

	t.Run("expiring puts soonest first", func(t *testing.T) {
		listings, err := q.ListOpenTrades(context.Background(), "viewer", SortExpiring)
		require.NoError(t, err)
		require.Len(t, listings, 2)
		assert.Equal(t, soon.TradeID, listings[0].Trade.TradeID)
		assert.Equal(t, later.TradeID, listings[1].Trade.TradeID)
	})

	t.Run("recent puts furthest expiry first", func(t *testing.T) {
		listings, err := q.ListOpenTrades(context.Background(), "viewer", SortRecent)
		require.NoError(t, err)
		require.Len(t, listings, 2)
		assert.Equal(t, later.TradeID, listings[0].Trade.TradeID)
		assert.Equal(t, soon.TradeID, listings[1].Trade.TradeID)
	})
}

func TestQueryService_GetTrade(t *testing.T) {
	store := newFakeTradeStore()
	m := newTestManager(store, newFakeLedger(), newFakeUserDirectory("alice"))

	trade, err := m.CreateTrade(context.Background(), "alice", cards("c1"), cards("c2"), testNow.Add(time.Hour))
	require.NoError(t, err)

	q := newTestQueryService(store, testCatalog())

	got, err := q.GetTrade(context.Background(), trade.TradeID)
	require.NoError(t, err)
	assert.Equal(t, trade.TradeID, got.TradeID)

	_, err = q.GetTrade(context.Background(), "TRMISSING000")
	assert.True(t, IsNotFound(err), "expected not found error, got %v", err)
}
