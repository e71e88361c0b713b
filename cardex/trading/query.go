package trading

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cardexhq/cardex/cardex/database/models"
	"github.com/cardexhq/cardex/cardex/database/repositories"
)

// Sort orders accepted by the listing queries. Unknown values fall back to
// SortNewest.
const (
	SortNewest   = ""         // most recently created first
	SortRecent   = "recent"   // furthest expiry first
	SortExpiring = "expiring" // soonest expiry first
)

// ListingStore is the read side of the trade repository the query service
// consumes.
type ListingStore interface {
	GetByTradeID(ctx context.Context, tradeID string) (*models.Trade, error)
	GetAllByOfferor(ctx context.Context, offerorID string) ([]*models.Trade, error)
	ListOpen(ctx context.Context, excludingUserID string, now time.Time) ([]*models.Trade, error)
	CountByOfferor(ctx context.Context, offerorID string) (total int64, completed int64, err error)
}

// CardResolver resolves card ids to catalog entries for search matching.
type CardResolver interface {
	GetByIDs(ctx context.Context, ids []string) ([]*models.Card, error)
}

// TradeListing is one open trade as presented to a browsing user, with the
// offeror's reputation attached.
type TradeListing struct {
	Trade      *models.Trade
	Reputation float64
}

// QueryService serves the read-only browsing surface: open-trade listings,
// card-name search and per-trade detail. It never mutates state; expired
// trades are filtered at read time rather than transitioned.
type QueryService struct {
	trades ListingStore
	cards  CardResolver

	now func() time.Time
}

func NewQueryService(trades ListingStore, cards CardResolver) *QueryService {
	return &QueryService{
		trades: trades,
		cards:  cards,
		now:    time.Now,
	}
}

// GetTrade returns a single trade by its public id, regardless of status.
func (q *QueryService) GetTrade(ctx context.Context, tradeID string) (*models.Trade, error) {
	trade, err := q.trades.GetByTradeID(ctx, tradeID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, &NotFoundError{Entity: "trade", ID: tradeID}
		}
		return nil, &InternalError{Err: err}
	}
	return trade, nil
}

// GetUserTrades returns every trade a user has offered, newest first.
func (q *QueryService) GetUserTrades(ctx context.Context, userID string) ([]*models.Trade, error) {
	trades, err := q.trades.GetAllByOfferor(ctx, userID)
	if err != nil {
		return nil, &InternalError{Err: err}
	}
	return trades, nil
}

// ListOpenTrades returns every open, unexpired trade offered by someone
// other than viewerID, each annotated with its offeror's reputation.
func (q *QueryService) ListOpenTrades(ctx context.Context, viewerID, sortBy string) ([]TradeListing, error) {
	trades, err := q.trades.ListOpen(ctx, viewerID, q.now())
	if err != nil {
		return nil, &InternalError{Err: err}
	}

	listings, err := q.annotate(ctx, trades)
	if err != nil {
		return nil, err
	}
	sortListings(listings, sortBy)
	return listings, nil
}

// SearchTrades filters the open listings to those whose offered cards
// match the query by case-insensitive substring against card names and
// alternate names. What a trade asks for in return never matches. A
// leading "!" inverts the match, returning only trades offering no
// matching card.
func (q *QueryService) SearchTrades(ctx context.Context, viewerID, query, sortBy string) ([]TradeListing, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return q.ListOpenTrades(ctx, viewerID, sortBy)
	}

	inverted := false
	if strings.HasPrefix(query, "!") {
		inverted = true
		query = strings.TrimSpace(query[1:])
		if query == "" {
			return q.ListOpenTrades(ctx, viewerID, sortBy)
		}
	}
	needle := strings.ToLower(query)

	trades, err := q.trades.ListOpen(ctx, viewerID, q.now())
	if err != nil {
		return nil, &InternalError{Err: err}
	}

	names, err := q.cardNames(ctx, trades)
	if err != nil {
		return nil, err
	}

	matched := trades[:0]
	for _, trade := range trades {
		if tradeMatches(trade, names, needle) != inverted {
			matched = append(matched, trade)
		}
	}

	listings, err := q.annotate(ctx, matched)
	if err != nil {
		return nil, err
	}
	sortListings(listings, sortBy)
	return listings, nil
}

// Reputation scores a user's trading history on a 0-5 scale: the completed
// fraction of all trades they have offered, times five. A user with no
// trade history scores zero.
func (q *QueryService) Reputation(ctx context.Context, userID string) (float64, error) {
	total, completed, err := q.trades.CountByOfferor(ctx, userID)
	if err != nil {
		return 0, &InternalError{Err: err}
	}
	if total == 0 {
		return 0, nil
	}
	return float64(completed) / float64(total) * 5, nil
}

func (q *QueryService) annotate(ctx context.Context, trades []*models.Trade) ([]TradeListing, error) {
	// One reputation lookup per distinct offeror, not per trade.
	reputations := make(map[string]float64)
	listings := make([]TradeListing, 0, len(trades))

	for _, trade := range trades {
		rep, ok := reputations[trade.OfferorID]
		if !ok {
			var err error
			rep, err = q.Reputation(ctx, trade.OfferorID)
			if err != nil {
				return nil, err
			}
			reputations[trade.OfferorID] = rep
		}
		listings = append(listings, TradeListing{Trade: trade, Reputation: rep})
	}
	return listings, nil
}

// cardNames resolves every offered card id across the given trades to its
// searchable name set. Ids missing from the catalog resolve to nothing and
// simply never match.
func (q *QueryService) cardNames(ctx context.Context, trades []*models.Trade) (map[string][]string, error) {
	idSet := make(map[string]struct{})
	for _, trade := range trades {
		for _, c := range trade.OfferedCards {
			idSet[c.CardID] = struct{}{}
		}
	}

	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	cards, err := q.cards.GetByIDs(ctx, ids)
	if err != nil {
		return nil, &InternalError{Err: err}
	}

	names := make(map[string][]string, len(cards))
	for _, card := range cards {
		names[card.ID] = card.DisplayNames()
	}
	return names, nil
}

// tradeMatches reports whether any card on the trade's offered side
// matches the needle. The requested side is deliberately not searched: a
// query names what the browsing user wants to obtain.
func tradeMatches(trade *models.Trade, names map[string][]string, needle string) bool {
	for _, c := range trade.OfferedCards {
		for _, name := range names[c.CardID] {
			if strings.Contains(strings.ToLower(name), needle) {
				return true
			}
		}
	}
	return false
}

func sortListings(listings []TradeListing, sortBy string) {
	switch sortBy {
	case SortRecent:
		sort.SliceStable(listings, func(i, j int) bool {
			return listings[i].Trade.ExpireAt.After(listings[j].Trade.ExpireAt)
		})
	case SortExpiring:
		sort.SliceStable(listings, func(i, j int) bool {
			return listings[i].Trade.ExpireAt.Before(listings[j].Trade.ExpireAt)
		})
	default:
		// ListOpen already orders newest-created first.
	}
}
