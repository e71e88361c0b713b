package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Card is a catalog entry. Identity is an opaque string id assigned by the
// upstream catalog source; the settlement engine never reads anything beyond
// the id, display names are only used by search.
type Card struct {
	bun.BaseModel `bun:"table:cards,alias:c"`

	ID             string   `bun:"id,pk"`
	Name           string   `bun:"name,notnull"`
	AlternateNames []string `bun:"alternate_names,type:jsonb"`
	Species        string   `bun:"species"`
	House          string   `bun:"house"`
	Actor          string   `bun:"actor"`
	ImageURL       string   `bun:"image_url"`
	Value          int64    `bun:"value,notnull,default:10"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// DisplayNames returns the primary name followed by all alternate names,
// the set search matching runs against.
func (c *Card) DisplayNames() []string {
	names := make([]string, 0, len(c.AlternateNames)+1)
	names = append(names, c.Name)
	names = append(names, c.AlternateNames...)
	return names
}
