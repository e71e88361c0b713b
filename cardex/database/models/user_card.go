// models/user_card.go
package models

import (
	"time"

	"github.com/uptrace/bun"
)

// UserCard is one holding: how many copies of a card a user owns.
// Quantity is never negative; the ledger enforces this on every adjustment.
type UserCard struct {
	bun.BaseModel `bun:"table:user_cards,alias:uc"`

	ID       int64     `bun:"id,pk,autoincrement"`
	UserID   string    `bun:"user_id,notnull"`
	CardID   string    `bun:"card_id,notnull"`
	Quantity int64     `bun:"quantity,notnull,default:0"`
	Obtained time.Time `bun:"obtained,notnull,default:current_timestamp"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}
