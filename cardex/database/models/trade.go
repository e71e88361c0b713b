package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TradeStatus string

const (
	TradeOpen      TradeStatus = "open"
	TradeCompleted TradeStatus = "completed"
	TradeCancelled TradeStatus = "cancelled"
	TradeExpired   TradeStatus = "expired"
)

// Terminal reports whether no further transition is allowed out of s.
func (s TradeStatus) Terminal() bool {
	return s == TradeCompleted || s == TradeCancelled || s == TradeExpired
}

// TradeCard is one entry on a trade side. Quantity is always 1 after
// creation-time normalization; duplicate entries for the same card id are
// kept distinct as offered.
type TradeCard struct {
	CardID   string `json:"card_id"`
	Quantity int64  `json:"quantity"`
}

type Trade struct {
	bun.BaseModel `bun:"table:trades,alias:t"`

	ID        int64  `bun:"id,pk,autoincrement"`
	TradeID   string `bun:"trade_id,notnull,unique"`
	OfferorID string `bun:"offeror_id,notnull"`

	// BuyerID is set exactly once, when the trade completes.
	BuyerID *string `bun:"buyer_id"`

	OfferedCards   []TradeCard `bun:"offered_cards,type:jsonb,notnull"`
	RequestedCards []TradeCard `bun:"requested_cards,type:jsonb,notnull"`

	Status    TradeStatus `bun:"status,notnull"`
	CreatedAt time.Time   `bun:"created_at,notnull,default:current_timestamp"`
	ExpireAt  time.Time   `bun:"expire_at,notnull"`
	UpdatedAt time.Time   `bun:"updated_at,notnull,default:current_timestamp"`
}

// Expired reports whether the trade's expiry instant has passed at now.
func (t *Trade) Expired(now time.Time) bool {
	return !t.ExpireAt.After(now)
}
