package services

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/cardexhq/cardex/cardex/database/models"
	"github.com/cardexhq/cardex/cardex/database/repositories"
	"github.com/cardexhq/cardex/cardex/logger"
)

// StoreService covers the credit-side operations around the collection:
// selling cards for credits, buying credits and opening packs. Every
// mutation goes through the same conditional ledger primitives the trade
// settlement uses, so a card listed in an open trade can still be sold out
// from under it; acceptance-time re-validation catches that.
type StoreService struct {
	ledger   repositories.UserCardRepository
	users    repositories.UserRepository
	catalog  *CatalogService
	packSize int
	packCost int64
}

func NewStoreService(ledger repositories.UserCardRepository, users repositories.UserRepository, catalog *CatalogService, packSize int, packCost int64) *StoreService {
	return &StoreService{
		ledger:   ledger,
		users:    users,
		catalog:  catalog,
		packSize: packSize,
		packCost: packCost,
	}
}

// SellCards removes one copy of each given card from the user's holdings
// and credits their balance with the summed card values. All-or-nothing on
// the holdings side: a single card the user no longer holds fails the whole
// sale.
func (s *StoreService) SellCards(ctx context.Context, userID string, cardIDs []string) (int64, error) {
	if len(cardIDs) == 0 {
		return 0, fmt.Errorf("no cards to sell")
	}

	cards, err := s.catalog.GetCards(ctx, cardIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve cards: %w", err)
	}

	var credits int64
	amounts := make(map[string]int64)
	order := make([]string, 0, len(cardIDs))
	for _, id := range cardIDs {
		card, ok := cards[id]
		if !ok {
			return 0, &repositories.NotFoundError{Entity: "card", ID: id}
		}
		credits += card.Value
		if _, seen := amounts[id]; !seen {
			order = append(order, id)
		}
		amounts[id]--
	}

	deltas := make([]repositories.CardDelta, 0, len(order))
	for _, id := range order {
		deltas = append(deltas, repositories.CardDelta{CardID: id, Delta: amounts[id]})
	}

	if err := s.ledger.AdjustMany(ctx, userID, deltas, false); err != nil {
		return 0, err
	}

	if err := s.users.AdjustBalance(ctx, userID, credits); err != nil {
		// Return the cards rather than leave the sale half-applied.
		if compErr := s.ledger.AdjustMany(ctx, userID, invert(deltas), true); compErr != nil {
			logger.LogError("Sale compensation failed: holdings inconsistent", compErr,
				slog.String("user_id", userID))
		}
		return 0, err
	}

	logger.LogSystem("Cards sold",
		slog.String("user_id", userID),
		slog.Int("cards", len(cardIDs)),
		slog.Int64("credits", credits))
	return credits, nil
}

// BuyCredits adds purchased credits to the user's balance. Payment is
// handled upstream; this only books the result.
func (s *StoreService) BuyCredits(ctx context.Context, userID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive")
	}
	return s.users.AdjustBalance(ctx, userID, amount)
}

// OpenPack debits the pack cost and deals the user a fresh draw of random
// catalog cards. The balance guard rejects the purchase outright when the
// user cannot afford it.
func (s *StoreService) OpenPack(ctx context.Context, userID string) ([]*models.Card, error) {
	if err := s.users.AdjustBalance(ctx, userID, -s.packCost); err != nil {
		return nil, err
	}

	drawn, err := s.catalog.RandomCards(ctx, s.packSize)
	if err != nil {
		s.refund(ctx, userID)
		return nil, err
	}

	amounts := make(map[string]int64)
	order := make([]string, 0, len(drawn))
	for _, card := range drawn {
		if _, seen := amounts[card.ID]; !seen {
			order = append(order, card.ID)
		}
		amounts[card.ID]++
	}
	deltas := make([]repositories.CardDelta, 0, len(order))
	for _, id := range order {
		deltas = append(deltas, repositories.CardDelta{CardID: id, Delta: amounts[id]})
	}

	if err := s.ledger.AdjustMany(ctx, userID, deltas, true); err != nil {
		s.refund(ctx, userID)
		return nil, err
	}

	logger.LogSystem("Pack opened",
		slog.String("user_id", userID),
		slog.Int("cards", len(drawn)))
	return drawn, nil
}

func (s *StoreService) refund(ctx context.Context, userID string) {
	refundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.users.AdjustBalance(refundCtx, userID, s.packCost); err != nil {
		logger.LogError("Pack refund failed", err, slog.String("user_id", userID))
	}
}

// DoubleCards lists the catalog entries a user holds more than one copy of,
// the natural candidates for selling or trading away.
func (s *StoreService) DoubleCards(ctx context.Context, userID string) ([]*models.Card, error) {
	holdings, err := s.ledger.GetAllByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, h := range holdings {
		if h.Quantity >= 2 {
			ids = append(ids, h.CardID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cards, err := s.catalog.GetCards(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Card, 0, len(ids))
	for _, id := range ids {
		if card, ok := cards[id]; ok {
			out = append(out, card)
		}
	}
	return out, nil
}

// MissingCards lists the catalog entries the user holds no copy of.
func (s *StoreService) MissingCards(ctx context.Context, userID string) ([]*models.Card, error) {
	holdings, err := s.ledger.GetAllByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	held := make(map[string]struct{}, len(holdings))
	for _, h := range holdings {
		if h.Quantity > 0 {
			held[h.CardID] = struct{}{}
		}
	}

	all, err := s.catalog.Search(ctx, "")
	if err != nil {
		return nil, err
	}

	var missing []*models.Card
	for _, card := range all {
		if _, ok := held[card.ID]; !ok {
			missing = append(missing, card)
		}
	}
	return missing, nil
}

func invert(deltas []repositories.CardDelta) []repositories.CardDelta {
	out := make([]repositories.CardDelta, len(deltas))
	for i, d := range deltas {
		out[i] = repositories.CardDelta{CardID: d.CardID, Delta: -d.Delta}
	}
	return out
}
