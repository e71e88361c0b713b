package trading

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/cardexhq/cardex/cardex/database/models"
	"github.com/cardexhq/cardex/cardex/database/repositories"
	"github.com/cardexhq/cardex/cardex/logger"
)

// TradeStore is the subset of the trade repository the lifecycle manager
// drives. Every transition it exposes is a single conditional write.
type TradeStore interface {
	Create(ctx context.Context, trade *models.Trade) error
	GetByTradeID(ctx context.Context, tradeID string) (*models.Trade, error)
	ClaimOpen(ctx context.Context, tradeID, buyerID string, now time.Time) (bool, error)
	ReleaseClaim(ctx context.Context, tradeID string) error
	CasStatus(ctx context.Context, tradeID string, from, to models.TradeStatus) (bool, error)
}

// Ledger is the inventory side of settlement: per-user atomic quantity
// adjustment plus the read used for acceptance-time re-validation.
type Ledger interface {
	AdjustMany(ctx context.Context, userID string, deltas []repositories.CardDelta, allowCreate bool) error
	Quantities(ctx context.Context, userID string, cardIDs []string) (map[string]int64, error)
}

// UserDirectory resolves and annotates users; provided by the user
// repository.
type UserDirectory interface {
	Exists(ctx context.Context, id string) (bool, error)
	AppendTradeID(ctx context.Context, userID, tradeID string) error
}

// Manager orchestrates the trade lifecycle: create, accept, cancel. It is
// the only component that mutates the ledger, and it never reads-then-
// blind-writes a trade status; every transition goes through the store's
// compare-and-set primitives.
type Manager struct {
	trades TradeStore
	ledger Ledger
	users  UserDirectory

	now func() time.Time
}

func NewManager(trades TradeStore, ledger Ledger, users UserDirectory) *Manager {
	return &Manager{
		trades: trades,
		ledger: ledger,
		users:  users,
		now:    time.Now,
	}
}

// CreateTrade validates and persists a new open trade offer. Offered cards
// are not escrowed: the offeror keeps full use of them until acceptance,
// which is why AcceptTrade re-validates holdings.
func (m *Manager) CreateTrade(ctx context.Context, offerorID string, offered, requested []models.TradeCard, expireAt time.Time) (*models.Trade, error) {
	start := time.Now()

	if offerorID == "" {
		return nil, &ValidationError{Field: "offeror", Reason: "must not be empty"}
	}
	if len(offered) == 0 {
		return nil, &ValidationError{Field: "offered cards", Reason: "must not be empty"}
	}
	if len(requested) == 0 {
		return nil, &ValidationError{Field: "requested cards", Reason: "must not be empty"}
	}
	now := m.now()
	if !expireAt.After(now) {
		return nil, &ValidationError{Field: "expire time", Reason: "must be in the future"}
	}
	for _, c := range append(append([]models.TradeCard{}, offered...), requested...) {
		if c.CardID == "" {
			return nil, &ValidationError{Field: "card id", Reason: "must not be empty"}
		}
	}

	exists, err := m.users.Exists(ctx, offerorID)
	if err != nil {
		return nil, &InternalError{Err: err}
	}
	if !exists {
		return nil, &NotFoundError{Entity: "user", ID: offerorID}
	}

	tradeID, err := m.generateTradeID(ctx)
	if err != nil {
		return nil, &InternalError{Err: err}
	}

	trade := &models.Trade{
		TradeID:        tradeID,
		OfferorID:      offerorID,
		OfferedCards:   normalizeCards(offered),
		RequestedCards: normalizeCards(requested),
		Status:         models.TradeOpen,
		ExpireAt:       expireAt,
	}

	if err := m.trades.Create(ctx, trade); err != nil {
		return nil, &InternalError{Err: err}
	}
	if err := m.users.AppendTradeID(ctx, offerorID, tradeID); err != nil {
		logger.LogError("Failed to append trade id to offeror", err,
			slog.String("trade_id", tradeID))
	}

	logger.LogTrade("create", tradeID, time.Since(start), nil)
	return trade, nil
}

// AcceptTrade settles an open trade into buyerID's favor. The open ->
// completed claim is the sole serialization point: of N concurrent accepts
// exactly one claim succeeds and the rest observe a non-open status.
func (m *Manager) AcceptTrade(ctx context.Context, tradeID, buyerID string) (*models.Trade, error) {
	start := time.Now()

	trade, err := m.trades.GetByTradeID(ctx, tradeID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, &NotFoundError{Entity: "trade", ID: tradeID}
		}
		return nil, &InternalError{Err: err}
	}

	now := m.now()
	if trade.Status == models.TradeOpen && trade.Expired(now) {
		// Lazy expiry: flip it ourselves rather than waiting for the
		// sweeper. A concurrent transition makes the CAS a no-op.
		if _, err := m.trades.CasStatus(ctx, tradeID, models.TradeOpen, models.TradeExpired); err != nil {
			return nil, &InternalError{Err: err}
		}
		return nil, &ConflictError{Reason: "trade not open"}
	}

	if trade.OfferorID == buyerID {
		return nil, &ConflictError{Reason: "cannot accept your own trade"}
	}

	// Step 1: atomically claim the trade. The claim records the buyer in
	// the same write, so the record never sits completed without one.
	claimed, err := m.trades.ClaimOpen(ctx, tradeID, buyerID, now)
	if err != nil {
		return nil, &InternalError{Err: err}
	}
	if !claimed {
		logger.LogTrade("accept", tradeID, time.Since(start), fmt.Errorf("claim lost"))
		return nil, &ConflictError{Reason: "trade not open"}
	}

	// Step 2: re-validate current holdings. Offers are not escrowed, so
	// either side may have spent cards since creation.
	if err := m.validateHoldings(ctx, trade, buyerID); err != nil {
		if relErr := m.trades.ReleaseClaim(ctx, tradeID); relErr != nil {
			logger.LogError("Failed to release claim after validation failure", relErr,
				slog.String("trade_id", tradeID))
			return nil, &InternalError{Err: relErr}
		}
		return nil, err
	}

	// Step 3: apply the transfer, one atomic adjustment set per user.
	offerorDeltas := settlementDeltas(trade.OfferedCards, trade.RequestedCards)
	buyerDeltas := settlementDeltas(trade.RequestedCards, trade.OfferedCards)

	if err := m.ledger.AdjustMany(ctx, trade.OfferorID, offerorDeltas, true); err != nil {
		if relErr := m.trades.ReleaseClaim(ctx, tradeID); relErr != nil {
			logger.LogError("Failed to release claim after offeror adjustment failure", relErr,
				slog.String("trade_id", tradeID))
			return nil, &InternalError{Err: relErr}
		}
		return nil, mapLedgerError(err)
	}

	if err := m.ledger.AdjustMany(ctx, buyerID, buyerDeltas, true); err != nil {
		// Compensate the offeror's already-applied adjustment, then
		// release the claim. Failure here leaves the conservation
		// invariant broken and needs operator attention.
		if compErr := m.ledger.AdjustMany(ctx, trade.OfferorID, invertDeltas(offerorDeltas), true); compErr != nil {
			logger.LogError("Settlement compensation failed: holdings inconsistent", compErr,
				slog.String("trade_id", tradeID),
				slog.String("offeror_id", trade.OfferorID),
				slog.String("buyer_id", buyerID))
			return nil, &InternalError{Err: compErr}
		}
		if relErr := m.trades.ReleaseClaim(ctx, tradeID); relErr != nil {
			logger.LogError("Failed to release claim after buyer adjustment failure", relErr,
				slog.String("trade_id", tradeID))
			return nil, &InternalError{Err: relErr}
		}
		return nil, mapLedgerError(err)
	}

	trade.Status = models.TradeCompleted
	trade.BuyerID = &buyerID

	logger.LogTrade("accept", tradeID, time.Since(start), nil)
	return trade, nil
}

// CancelTrade transitions an open trade to cancelled. Only the offeror may
// cancel.
func (m *Manager) CancelTrade(ctx context.Context, tradeID, requesterID string) error {
	start := time.Now()

	trade, err := m.trades.GetByTradeID(ctx, tradeID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return &NotFoundError{Entity: "trade", ID: tradeID}
		}
		return &InternalError{Err: err}
	}

	now := m.now()
	if trade.Status == models.TradeOpen && trade.Expired(now) {
		if _, err := m.trades.CasStatus(ctx, tradeID, models.TradeOpen, models.TradeExpired); err != nil {
			return &InternalError{Err: err}
		}
		return &NotFoundError{Entity: "open trade", ID: tradeID}
	}
	if trade.Status != models.TradeOpen {
		return &NotFoundError{Entity: "open trade", ID: tradeID}
	}
	if trade.OfferorID != requesterID {
		return &AuthorizationError{UserID: requesterID, Action: "cancel this trade"}
	}

	swapped, err := m.trades.CasStatus(ctx, tradeID, models.TradeOpen, models.TradeCancelled)
	if err != nil {
		return &InternalError{Err: err}
	}
	if !swapped {
		// An accept or sweep won the race.
		return &NotFoundError{Entity: "open trade", ID: tradeID}
	}

	logger.LogTrade("cancel", tradeID, time.Since(start), nil)
	return nil
}

// validateHoldings checks that the offeror still holds every offered card
// and the buyer every requested card. Fails with a ConflictError naming the
// first card that comes up short.
func (m *Manager) validateHoldings(ctx context.Context, trade *models.Trade, buyerID string) error {
	if err := m.validateSide(ctx, trade.OfferorID, trade.OfferedCards); err != nil {
		return err
	}
	return m.validateSide(ctx, buyerID, trade.RequestedCards)
}

func (m *Manager) validateSide(ctx context.Context, userID string, cards []models.TradeCard) error {
	required := make(map[string]int64)
	order := make([]string, 0, len(cards))
	for _, c := range cards {
		if _, seen := required[c.CardID]; !seen {
			order = append(order, c.CardID)
		}
		required[c.CardID] += c.Quantity
	}

	held, err := m.ledger.Quantities(ctx, userID, order)
	if err != nil {
		return &InternalError{Err: err}
	}

	for _, cardID := range order {
		if held[cardID] < required[cardID] {
			return &ConflictError{Reason: fmt.Sprintf("insufficient quantity for card %s", cardID)}
		}
	}
	return nil
}

// normalizeCards caps every entry at quantity 1, the domain rule of one
// copy of a given card type per trade side. Duplicate entries are kept
// distinct, matching how the offer was listed.
func normalizeCards(cards []models.TradeCard) []models.TradeCard {
	normalized := make([]models.TradeCard, len(cards))
	for i, c := range cards {
		normalized[i] = models.TradeCard{CardID: c.CardID, Quantity: 1}
	}
	return normalized
}

// settlementDeltas builds one user's adjustment set: minus what they give,
// plus what they receive. Entries for the same card id are merged so a card
// appearing on both sides nets out in a single delta.
func settlementDeltas(give, receive []models.TradeCard) []repositories.CardDelta {
	amounts := make(map[string]int64)
	order := make([]string, 0, len(give)+len(receive))

	add := func(cardID string, delta int64) {
		if _, seen := amounts[cardID]; !seen {
			order = append(order, cardID)
		}
		amounts[cardID] += delta
	}
	for _, c := range give {
		add(c.CardID, -c.Quantity)
	}
	for _, c := range receive {
		add(c.CardID, c.Quantity)
	}

	deltas := make([]repositories.CardDelta, 0, len(order))
	for _, cardID := range order {
		if amounts[cardID] != 0 {
			deltas = append(deltas, repositories.CardDelta{CardID: cardID, Delta: amounts[cardID]})
		}
	}
	return deltas
}

func invertDeltas(deltas []repositories.CardDelta) []repositories.CardDelta {
	inverted := make([]repositories.CardDelta, len(deltas))
	for i, d := range deltas {
		inverted[i] = repositories.CardDelta{CardID: d.CardID, Delta: -d.Delta}
	}
	return inverted
}

func mapLedgerError(err error) error {
	if repositories.IsInsufficientQuantity(err) {
		return &ConflictError{Reason: err.Error()}
	}
	return &InternalError{Err: err}
}
