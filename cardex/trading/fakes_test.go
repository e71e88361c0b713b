package trading

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cardexhq/cardex/cardex/database/models"
	"github.com/cardexhq/cardex/cardex/database/repositories"
)

// fakeTradeStore is an in-memory TradeStore/ListingStore/ExpiryStore with
// the same conditional-transition semantics as the SQL implementation.
type fakeTradeStore struct {
	mu     sync.Mutex
	trades map[string]*models.Trade

	failCreate bool
}

func newFakeTradeStore() *fakeTradeStore {
	return &fakeTradeStore{trades: make(map[string]*models.Trade)}
}

func (s *fakeTradeStore) Create(_ context.Context, trade *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return fmt.Errorf("store unavailable")
	}
	if _, ok := s.trades[trade.TradeID]; ok {
		return fmt.Errorf("duplicate trade id %s", trade.TradeID)
	}
	trade.Status = models.TradeOpen
	trade.CreatedAt = time.Now()
	copied := *trade
	s.trades[trade.TradeID] = &copied
	return nil
}

func (s *fakeTradeStore) GetByTradeID(_ context.Context, tradeID string) (*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trade, ok := s.trades[tradeID]
	if !ok {
		return nil, &repositories.NotFoundError{Entity: "trade", ID: tradeID}
	}
	copied := *trade
	return &copied, nil
}

func (s *fakeTradeStore) GetAllByOfferor(_ context.Context, offerorID string) ([]*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Trade
	for _, trade := range s.trades {
		if trade.OfferorID == offerorID {
			copied := *trade
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeTradeStore) ClaimOpen(_ context.Context, tradeID, buyerID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trade, ok := s.trades[tradeID]
	if !ok || trade.Status != models.TradeOpen || !trade.ExpireAt.After(now) || trade.OfferorID == buyerID {
		return false, nil
	}
	trade.Status = models.TradeCompleted
	trade.BuyerID = &buyerID
	return true, nil
}

func (s *fakeTradeStore) ReleaseClaim(_ context.Context, tradeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	trade, ok := s.trades[tradeID]
	if !ok || trade.Status != models.TradeCompleted {
		return fmt.Errorf("claim on trade %s could not be released", tradeID)
	}
	trade.Status = models.TradeOpen
	trade.BuyerID = nil
	return nil
}

func (s *fakeTradeStore) CasStatus(_ context.Context, tradeID string, from, to models.TradeStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trade, ok := s.trades[tradeID]
	if !ok || trade.Status != from {
		return false, nil
	}
	trade.Status = to
	return true, nil
}

func (s *fakeTradeStore) ExpireOpen(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, trade := range s.trades {
		if trade.Status == models.TradeOpen && !trade.ExpireAt.After(now) {
			trade.Status = models.TradeExpired
			n++
		}
	}
	return n, nil
}

func (s *fakeTradeStore) ListOpen(_ context.Context, excludingUserID string, now time.Time) ([]*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Trade
	for _, trade := range s.trades {
		if trade.Status == models.TradeOpen && trade.ExpireAt.After(now) && trade.OfferorID != excludingUserID {
			copied := *trade
			out = append(out, &copied)
		}
	}
	// Newest created first, matching the SQL ordering.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.After(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (s *fakeTradeStore) CountByOfferor(_ context.Context, offerorID string) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total, completed int64
	for _, trade := range s.trades {
		if trade.OfferorID == offerorID {
			total++
			if trade.Status == models.TradeCompleted {
				completed++
			}
		}
	}
	return total, completed, nil
}

func (s *fakeTradeStore) status(tradeID string) models.TradeStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trades[tradeID].Status
}

func (s *fakeTradeStore) buyer(tradeID string) *string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trades[tradeID].BuyerID
}

// fakeLedger is an in-memory Ledger. AdjustMany applies a user's deltas
// all-or-nothing under one lock, like the SQL transaction.
type fakeLedger struct {
	mu       sync.Mutex
	holdings map[string]map[string]int64

	failFor map[string]error // userID -> forced AdjustMany error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		holdings: make(map[string]map[string]int64),
		failFor:  make(map[string]error),
	}
}

func (l *fakeLedger) set(userID, cardID string, quantity int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holdings[userID] == nil {
		l.holdings[userID] = make(map[string]int64)
	}
	l.holdings[userID][cardID] = quantity
}

func (l *fakeLedger) get(userID, cardID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holdings[userID][cardID]
}

func (l *fakeLedger) AdjustMany(_ context.Context, userID string, deltas []repositories.CardDelta, allowCreate bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.failFor[userID]; err != nil {
		return err
	}

	cards := l.holdings[userID]
	if cards == nil {
		cards = make(map[string]int64)
		l.holdings[userID] = cards
	}

	for _, d := range deltas {
		current, held := cards[d.CardID]
		if !held && d.Delta > 0 && !allowCreate {
			return &repositories.NotFoundError{Entity: "user_card", ID: d.CardID}
		}
		if current+d.Delta < 0 {
			return &repositories.InsufficientQuantityError{UserID: userID, CardID: d.CardID}
		}
	}
	for _, d := range deltas {
		cards[d.CardID] += d.Delta
	}
	return nil
}

func (l *fakeLedger) Quantities(_ context.Context, userID string, cardIDs []string) (map[string]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int64, len(cardIDs))
	for _, id := range cardIDs {
		out[id] = l.holdings[userID][id]
	}
	return out, nil
}

func (l *fakeLedger) total(cardID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var sum int64
	for _, cards := range l.holdings {
		sum += cards[cardID]
	}
	return sum
}

// fakeUserDirectory is an in-memory UserDirectory.
type fakeUserDirectory struct {
	mu     sync.Mutex
	users  map[string]bool
	trades map[string][]string
}

func newFakeUserDirectory(ids ...string) *fakeUserDirectory {
	d := &fakeUserDirectory{
		users:  make(map[string]bool),
		trades: make(map[string][]string),
	}
	for _, id := range ids {
		d.users[id] = true
	}
	return d
}

func (d *fakeUserDirectory) Exists(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.users[id], nil
}

func (d *fakeUserDirectory) AppendTradeID(_ context.Context, userID, tradeID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.users[userID] {
		return &repositories.NotFoundError{Entity: "user", ID: userID}
	}
	d.trades[userID] = append(d.trades[userID], tradeID)
	return nil
}

// fakeCardResolver is an in-memory CardResolver.
type fakeCardResolver struct {
	cards map[string]*models.Card
}

func newFakeCardResolver(cards ...*models.Card) *fakeCardResolver {
	r := &fakeCardResolver{cards: make(map[string]*models.Card)}
	for _, c := range cards {
		r.cards[c.ID] = c
	}
	return r
}

func (r *fakeCardResolver) GetByIDs(_ context.Context, ids []string) ([]*models.Card, error) {
	var out []*models.Card
	for _, id := range ids {
		if c, ok := r.cards[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}
