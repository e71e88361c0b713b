package models

import (
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID             string `bun:"id,pk"`
	Username       string `bun:"username,notnull,unique"`
	Email          string `bun:"email,notnull,unique"`
	PasswordHash   string `bun:"password_hash,notnull"`
	FavoriteWizard string `bun:"favorite_wizard"`
	Balance        int64  `bun:"balance,notnull,default:0"`

	// Trade ids this user has created, stored as JSONB.
	Trades []string `bun:"trades,type:jsonb"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}
