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

// CardDelta is one signed quantity adjustment against a holding.
type CardDelta struct {
	CardID string
	Delta  int64
}

// UserCardRepository is the inventory ledger: per-user card-quantity
// counters with conditional, atomic adjustment.
type UserCardRepository interface {
	Create(ctx context.Context, userCard *models.UserCard) error
	GetByUserIDAndCardID(ctx context.Context, userID, cardID string) (*models.UserCard, error)
	GetAllByUserID(ctx context.Context, userID string) ([]*models.UserCard, error)
	// AdjustMany applies every delta for a single user or none of them.
	// A resulting quantity below zero aborts the whole call with
	// InsufficientQuantityError naming the offending card. allowCreate
	// permits a positive delta against a card the user does not hold yet.
	AdjustMany(ctx context.Context, userID string, deltas []CardDelta, allowCreate bool) error
	// Quantities returns the current quantity for each requested card id,
	// zero for cards the user does not hold.
	Quantities(ctx context.Context, userID string, cardIDs []string) (map[string]int64, error)
}

type userCardRepository struct {
	db *bun.DB
}

func NewUserCardRepository(db *bun.DB) UserCardRepository {
	return &userCardRepository{db: db}
}

func (r *userCardRepository) Create(ctx context.Context, userCard *models.UserCard) error {
	userCard.CreatedAt = time.Now()
	userCard.UpdatedAt = time.Now()
	_, err := r.db.NewInsert().Model(userCard).Exec(ctx)
	return err
}

func (r *userCardRepository) GetByUserIDAndCardID(ctx context.Context, userID, cardID string) (*models.UserCard, error) {
	userCard := new(models.UserCard)
	err := r.db.NewSelect().
		Model(userCard).
		Where("user_id = ? AND card_id = ?", userID, cardID).
		Scan(ctx)
	if err != nil {
		return nil, HandleErrorWithID("get", "user card", cardID, err)
	}
	return userCard, nil
}

func (r *userCardRepository) GetAllByUserID(ctx context.Context, userID string) ([]*models.UserCard, error) {
	var userCards []*models.UserCard
	err := r.db.NewSelect().
		Model(&userCards).
		Where("user_id = ?", userID).
		Order("obtained DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get user cards: %w", err)
	}
	return userCards, nil
}

func (r *userCardRepository) AdjustMany(ctx context.Context, userID string, deltas []CardDelta, allowCreate bool) error {
	timeoutCtx, cancel := WithTimeout(ctx)
	defer cancel()

	return r.db.RunInTx(timeoutCtx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, d := range deltas {
			// Conditional in-place adjustment: the quantity guard makes
			// the non-negative invariant a property of the statement, not
			// of a read-then-write pair.
			result, err := tx.NewUpdate().
				Model((*models.UserCard)(nil)).
				Set("quantity = quantity + ?", d.Delta).
				Set("updated_at = ?", time.Now()).
				Where("user_id = ? AND card_id = ? AND quantity + ? >= 0", userID, d.CardID, d.Delta).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to adjust card %s for user %s: %w", d.CardID, userID, err)
			}

			affected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			if affected > 0 {
				continue
			}

			// No row matched: either the holding does not exist, or the
			// guard rejected a negative result.
			if d.Delta > 0 && allowCreate {
				_, err = tx.NewInsert().
					Model(&models.UserCard{
						UserID:    userID,
						CardID:    d.CardID,
						Quantity:  d.Delta,
						Obtained:  time.Now(),
						CreatedAt: time.Now(),
						UpdatedAt: time.Now(),
					}).
					Exec(ctx)
				if err != nil {
					return fmt.Errorf("failed to create holding for card %s: %w", d.CardID, err)
				}
				continue
			}

			return &InsufficientQuantityError{UserID: userID, CardID: d.CardID}
		}
		return nil
	})
}

func (r *userCardRepository) Quantities(ctx context.Context, userID string, cardIDs []string) (map[string]int64, error) {
	if len(cardIDs) == 0 {
		return map[string]int64{}, nil
	}

	var holdings []*models.UserCard
	err := r.db.NewSelect().
		Model(&holdings).
		Where("user_id = ? AND card_id IN (?)", userID, bun.In(cardIDs)).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get quantities for user %s: %w", userID, err)
	}

	quantities := make(map[string]int64, len(cardIDs))
	for _, id := range cardIDs {
		quantities[id] = 0
	}
	for _, h := range holdings {
		quantities[h.CardID] = h.Quantity
	}
	return quantities, nil
}
