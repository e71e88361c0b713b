package trading

import (
	"errors"
	"fmt"
)

// ValidationError rejects malformed or missing input before any state is
// touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", ve.Field, ve.Reason)
}

// NotFoundError reports a missing trade or user.
type NotFoundError struct {
	Entity string
	ID     string
}

func (nfe *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", nfe.Entity, nfe.ID)
}

// AuthorizationError reports an actor not permitted to perform an operation.
type AuthorizationError struct {
	UserID string
	Action string
}

func (ae *AuthorizationError) Error() string {
	return fmt.Sprintf("user %s is not allowed to %s", ae.UserID, ae.Action)
}

// ConflictError reports a business-rule violation at the time of mutation:
// trade not open, insufficient quantity, self-trade. Losing a race for an
// open trade is the expected, non-exceptional outcome and surfaces as this
// type.
type ConflictError struct {
	Reason string
}

func (ce *ConflictError) Error() string {
	return ce.Reason
}

// InternalError wraps storage or transport failures surfaced after any
// attempted rollback.
type InternalError struct {
	Err error
}

func (ie *InternalError) Error() string {
	return fmt.Sprintf("internal error: %v", ie.Err)
}

func (ie *InternalError) Unwrap() error {
	return ie.Err
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

func IsAuthorization(err error) bool {
	var ae *AuthorizationError
	return errors.As(err, &ae)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func IsInternal(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie)
}
