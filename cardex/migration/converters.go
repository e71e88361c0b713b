package migration

import (
	"time"

	"github.com/cardexhq/cardex/cardex/database/models"
)

// convertUser maps a legacy user document to a users row plus its holdings.
// The Mongo object id hex becomes the stable user id. Legacy password
// hashes are carried over verbatim; they do not match the current hash
// format, so imported accounts go through a password reset on first login.
func convertUser(mu MongoUser) (*models.User, []*models.UserCard) {
	now := time.Now()
	userID := mu.ID.Hex()

	user := &models.User{
		ID:             userID,
		Username:       mu.Username,
		Email:          mu.Email,
		PasswordHash:   mu.Password,
		FavoriteWizard: mu.FavoriteWizard,
		Balance:        int64(mu.Credits),
		Trades:         mu.Trades,
		CreatedAt:      orNow(mu.CreatedAt, now),
		UpdatedAt:      now,
	}
	if user.Trades == nil {
		user.Trades = []string{}
	}

	holdings := make([]*models.UserCard, 0, len(mu.GameCards))
	seen := make(map[string]*models.UserCard)
	for _, gc := range mu.GameCards {
		if gc.CardID == "" || gc.Quantity <= 0 {
			continue
		}
		// Legacy data occasionally repeats a card; fold into one row.
		if existing, ok := seen[gc.CardID]; ok {
			existing.Quantity += int64(gc.Quantity)
			continue
		}
		holding := &models.UserCard{
			UserID:    userID,
			CardID:    gc.CardID,
			Quantity:  int64(gc.Quantity),
			Obtained:  orNow(gc.Obtained, now),
			CreatedAt: now,
			UpdatedAt: now,
		}
		seen[gc.CardID] = holding
		holdings = append(holdings, holding)
	}
	return user, holdings
}

// convertTrade maps a legacy trade document. Unknown statuses import as
// open; an overdue open trade is expired by the first sweep after boot.
func convertTrade(mt MongoTrade) *models.Trade {
	now := time.Now()

	trade := &models.Trade{
		TradeID:        mt.TradeID,
		OfferorID:      mt.Offeror,
		BuyerID:        mt.Buyer,
		OfferedCards:   convertTradeCards(mt.OfferedCards),
		RequestedCards: convertTradeCards(mt.RequestedCards),
		Status:         convertStatus(mt.Status),
		ExpireAt:       mt.ExpireAt,
		CreatedAt:      orNow(mt.CreatedAt, now),
		UpdatedAt:      now,
	}

	// Buyer only makes sense on a completed trade.
	if trade.Status != models.TradeCompleted {
		trade.BuyerID = nil
	}
	return trade
}

func convertTradeCards(cards []MongoTradeCard) []models.TradeCard {
	out := make([]models.TradeCard, 0, len(cards))
	for _, c := range cards {
		if c.CardID == "" {
			continue
		}
		qty := int64(c.Quantity)
		if qty <= 0 {
			qty = 1
		}
		out = append(out, models.TradeCard{CardID: c.CardID, Quantity: qty})
	}
	return out
}

func convertStatus(status string) models.TradeStatus {
	switch status {
	case "completed", "accepted":
		return models.TradeCompleted
	case "cancelled", "deleted":
		return models.TradeCancelled
	case "expired":
		return models.TradeExpired
	default:
		return models.TradeOpen
	}
}

func orNow(t time.Time, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t
}
