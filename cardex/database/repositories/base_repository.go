package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const defaultQueryTimeout = 10 * time.Second

// RepositoryError represents a repository-level error
type RepositoryError struct {
	Operation string
	Entity    string
	Err       error
}

func (re *RepositoryError) Error() string {
	return fmt.Sprintf("repository error during %s for %s: %v", re.Operation, re.Entity, re.Err)
}

func (re *RepositoryError) Unwrap() error {
	return re.Err
}

// NotFoundError represents an entity not found error
type NotFoundError struct {
	Entity string
	ID     interface{}
}

func (nfe *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %v not found", nfe.Entity, nfe.ID)
}

// InsufficientQuantityError is returned by the ledger when an adjustment
// would drive a holding below zero. CardID names the first offending card;
// no deltas are applied when it is returned.
type InsufficientQuantityError struct {
	UserID string
	CardID string
}

func (iqe *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("insufficient quantity for card %s", iqe.CardID)
}

// WithTimeout creates a context bounded by the default query timeout.
func WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

// HandleErrorWithID standardizes error handling with a specific entity ID.
func HandleErrorWithID(operation, entity string, id interface{}, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return &NotFoundError{Entity: entity, ID: id}
	}

	return &RepositoryError{
		Operation: operation,
		Entity:    entity,
		Err:       err,
	}
}

// IsNotFound checks if an error is a NotFoundError
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// IsInsufficientQuantity checks if an error is an InsufficientQuantityError
func IsInsufficientQuantity(err error) bool {
	var iqe *InsufficientQuantityError
	return errors.As(err, &iqe)
}
