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

// TradeRepository owns the persisted representation of trade offers. All
// status transitions go through single conditional UPDATE statements; the
// WHERE clause on the current status is the serialization point that keeps
// racing accept/cancel/expire calls from both succeeding.
type TradeRepository interface {
	Create(ctx context.Context, trade *models.Trade) error
	GetByTradeID(ctx context.Context, tradeID string) (*models.Trade, error)
	GetAllByOfferor(ctx context.Context, offerorID string) ([]*models.Trade, error)

	// ClaimOpen atomically transitions open -> completed and records the
	// buyer, only while the trade is open, unexpired at now and not
	// offered by buyerID. Returns false when the condition did not hold.
	// Writing buyer_id in the same statement keeps "buyer set iff
	// completed" true at every instant.
	ClaimOpen(ctx context.Context, tradeID, buyerID string, now time.Time) (bool, error)
	// ReleaseClaim reverts completed -> open and clears the buyer after a
	// failed settlement.
	ReleaseClaim(ctx context.Context, tradeID string) error
	// CasStatus performs a generic conditional transition from -> to.
	CasStatus(ctx context.Context, tradeID string, from, to models.TradeStatus) (bool, error)

	// ExpireOpen flips every open trade whose expiry has passed at now to
	// expired and returns how many were flipped. Idempotent.
	ExpireOpen(ctx context.Context, now time.Time) (int64, error)

	ListOpen(ctx context.Context, excludingUserID string, now time.Time) ([]*models.Trade, error)
	// CountByOfferor returns total and completed trade counts for a user.
	CountByOfferor(ctx context.Context, offerorID string) (total int64, completed int64, err error)
}

type tradeRepository struct {
	db *bun.DB
}

func NewTradeRepository(db *bun.DB) TradeRepository {
	return &tradeRepository{db: db}
}

func (r *tradeRepository) Create(ctx context.Context, trade *models.Trade) error {
	trade.CreatedAt = time.Now()
	trade.UpdatedAt = time.Now()
	trade.Status = models.TradeOpen

	_, err := r.db.NewInsert().Model(trade).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}

func (r *tradeRepository) GetByTradeID(ctx context.Context, tradeID string) (*models.Trade, error) {
	trade := new(models.Trade)
	err := r.db.NewSelect().
		Model(trade).
		Where("trade_id = ?", tradeID).
		Scan(ctx)
	if err != nil {
		return nil, HandleErrorWithID("get", "trade", tradeID, err)
	}
	return trade, nil
}

func (r *tradeRepository) GetAllByOfferor(ctx context.Context, offerorID string) ([]*models.Trade, error) {
	var trades []*models.Trade
	err := r.db.NewSelect().
		Model(&trades).
		Where("offeror_id = ?", offerorID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get trades for offeror: %w", err)
	}
	return trades, nil
}

func (r *tradeRepository) ClaimOpen(ctx context.Context, tradeID, buyerID string, now time.Time) (bool, error) {
	result, err := r.db.NewUpdate().
		Model((*models.Trade)(nil)).
		Set("status = ?", models.TradeCompleted).
		Set("buyer_id = ?", buyerID).
		Set("updated_at = ?", time.Now()).
		Where("trade_id = ? AND status = ? AND expire_at > ? AND offeror_id <> ?",
			tradeID, models.TradeOpen, now, buyerID).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to claim trade %s: %w", tradeID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *tradeRepository) ReleaseClaim(ctx context.Context, tradeID string) error {
	result, err := r.db.NewUpdate().
		Model((*models.Trade)(nil)).
		Set("status = ?", models.TradeOpen).
		Set("buyer_id = NULL").
		Set("updated_at = ?", time.Now()).
		Where("trade_id = ? AND status = ?", tradeID, models.TradeCompleted).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to release claim on trade %s: %w", tradeID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("claim on trade %s could not be released", tradeID)
	}
	return nil
}

func (r *tradeRepository) CasStatus(ctx context.Context, tradeID string, from, to models.TradeStatus) (bool, error) {
	result, err := r.db.NewUpdate().
		Model((*models.Trade)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now()).
		Where("trade_id = ? AND status = ?", tradeID, from).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to transition trade %s: %w", tradeID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *tradeRepository) ExpireOpen(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.NewUpdate().
		Model((*models.Trade)(nil)).
		Set("status = ?", models.TradeExpired).
		Set("updated_at = ?", time.Now()).
		Where("status = ? AND expire_at <= ?", models.TradeOpen, now).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to expire open trades: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected, nil
}

func (r *tradeRepository) ListOpen(ctx context.Context, excludingUserID string, now time.Time) ([]*models.Trade, error) {
	var trades []*models.Trade
	err := r.db.NewSelect().
		Model(&trades).
		Where("status = ? AND expire_at > ? AND offeror_id <> ?",
			models.TradeOpen, now, excludingUserID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to list open trades: %w", err)
	}
	return trades, nil
}

func (r *tradeRepository) CountByOfferor(ctx context.Context, offerorID string) (int64, int64, error) {
	total, err := r.db.NewSelect().
		Model((*models.Trade)(nil)).
		Where("offeror_id = ?", offerorID).
		Count(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count trades: %w", err)
	}

	completed, err := r.db.NewSelect().
		Model((*models.Trade)(nil)).
		Where("offeror_id = ? AND status = ?", offerorID, models.TradeCompleted).
		Count(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count completed trades: %w", err)
	}

	return int64(total), int64(completed), nil
}
