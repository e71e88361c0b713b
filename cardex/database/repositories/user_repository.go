package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/cardexhq/cardex/cardex/database/models"
	"github.com/uptrace/bun"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Exists(ctx context.Context, id string) (bool, error)
	// AppendTradeID records a created trade against the user's trade list.
	AppendTradeID(ctx context.Context, userID, tradeID string) error
	// AdjustBalance adds delta to the user's credit balance; a negative
	// result aborts with InsufficientQuantityError keyed on "credits".
	AdjustBalance(ctx context.Context, userID string, delta int64) error
	GetUserCount(ctx context.Context) (int, error)
}

type userRepository struct {
	db *bun.DB
}

func NewUserRepository(db *bun.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	if user.Trades == nil {
		user.Trades = []string{}
	}
	_, err := r.db.NewInsert().Model(user).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, HandleErrorWithID("get", "user", id, err)
	}
	return user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("username = ?", username).
		Scan(ctx)
	if err != nil {
		return nil, HandleErrorWithID("get", "user", username, err)
	}
	return user, nil
}

func (r *userRepository) Exists(ctx context.Context, id string) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*models.User)(nil)).
		Where("id = ?", id).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

func (r *userRepository) AppendTradeID(ctx context.Context, userID, tradeID string) error {
	result, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("trades = coalesce(trades, '[]'::jsonb) || to_jsonb(?::text)", tradeID).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to append trade id: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &NotFoundError{Entity: "user", ID: userID}
	}
	return nil
}

func (r *userRepository) AdjustBalance(ctx context.Context, userID string, delta int64) error {
	result, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("balance = balance + ?", delta).
		Set("updated_at = ?", time.Now()).
		Where("id = ? AND balance + ? >= 0", userID, delta).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to adjust balance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &InsufficientQuantityError{UserID: userID, CardID: "credits"}
	}
	return nil
}

func (r *userRepository) GetUserCount(ctx context.Context) (int, error) {
	count, err := r.db.NewSelect().
		Model((*models.User)(nil)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get user count: %w", err)
	}
	return count, nil
}
