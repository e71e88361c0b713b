package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cardexhq/cardex/cardex/database/models"
	"github.com/uptrace/bun"
)

type CardRepository interface {
	GetByID(ctx context.Context, id string) (*models.Card, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.Card, error)
	GetAll(ctx context.Context) ([]*models.Card, error)
	Upsert(ctx context.Context, card *models.Card) error
	BulkUpsert(ctx context.Context, cards []*models.Card) error
	GetCardCount(ctx context.Context) (int, error)
}

type cardRepository struct {
	db *bun.DB
}

func NewCardRepository(db *bun.DB) CardRepository {
	return &cardRepository{db: db}
}

func (r *cardRepository) GetByID(ctx context.Context, id string) (*models.Card, error) {
	card := new(models.Card)
	err := r.db.NewSelect().
		Model(card).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, HandleErrorWithID("get", "card", id, err)
	}
	return card, nil
}

func (r *cardRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.Card, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var cards []*models.Card
	err := r.db.NewSelect().
		Model(&cards).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get cards: %w", err)
	}
	return cards, nil
}

func (r *cardRepository) GetAll(ctx context.Context) ([]*models.Card, error) {
	var cards []*models.Card
	err := r.db.NewSelect().
		Model(&cards).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards: %w", err)
	}
	return cards, nil
}

func (r *cardRepository) Upsert(ctx context.Context, card *models.Card) error {
	card.UpdatedAt = time.Now()
	_, err := r.db.NewInsert().
		Model(card).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("alternate_names = EXCLUDED.alternate_names").
		Set("image_url = EXCLUDED.image_url").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert card %s: %w", card.ID, err)
	}
	return nil
}

func (r *cardRepository) BulkUpsert(ctx context.Context, cards []*models.Card) error {
	for _, card := range cards {
		if err := r.Upsert(ctx, card); err != nil {
			return err
		}
	}
	return nil
}

func (r *cardRepository) GetCardCount(ctx context.Context) (int, error) {
	count, err := r.db.NewSelect().
		Model((*models.Card)(nil)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get card count: %w", err)
	}
	return count, nil
}
