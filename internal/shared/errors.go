package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrReasonRequired occurs when a reject is attempted without a reason.
	ErrReasonRequired = errors.New("reason required")
	// ErrInvalidState occurs when items are edited outside DRAFT.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidTransition occurs when an operation is attempted from a status
	// that is not one of its source states.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrEmptyRequest occurs when a request or transfer without items is advanced.
	ErrEmptyRequest = errors.New("empty request")
	// ErrSameLocation occurs when origin and destination are identical.
	ErrSameLocation = errors.New("origin and destination must differ")

	ErrQuantityExceedsRequested = errors.New("quantity exceeds requested")
	ErrQuantityExceedsApproved  = errors.New("quantity exceeds approved")
	ErrQuantityExceedsShipped   = errors.New("quantity exceeds shipped")

	// ErrInsufficientStock occurs when a ledger adjustment would drive a balance negative.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrApprovalLimitExceeded occurs when the approved value is above the actor's ceiling.
	ErrApprovalLimitExceeded = errors.New("approval limit exceeded")
	// ErrUnauthorized occurs when the authorization gate denies an action.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConcurrentModification occurs when the optimistic version check fails.
	// Callers should re-fetch and retry.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// TransitionError describes an operation attempted from a wrong status.
type TransitionError struct {
	Aggregate string
	ID        int64
	From      string
	Operation string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %d: cannot %s from status %s", e.Aggregate, e.ID, e.Operation, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// QuantityError reports a later-stage quantity above its prior-stage ceiling.
type QuantityError struct {
	ItemID    int64
	Requested decimal.Decimal
	Limit     decimal.Decimal
	Kind      error
}

func (e *QuantityError) Error() string {
	return fmt.Sprintf("item %d: %v (%s > %s)", e.ItemID, e.Kind, e.Requested.String(), e.Limit.String())
}

func (e *QuantityError) Unwrap() error { return e.Kind }

// InsufficientStockError carries the shortfall detail for a ledger line.
type InsufficientStockError struct {
	LocationID int64
	MaterialID int64
	ItemID     int64
	Available  decimal.Decimal
	Requested  decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock at location %d for material %d: available %s, requested %s",
		e.LocationID, e.MaterialID, e.Available.String(), e.Requested.String())
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// Shortfall returns requested minus available.
func (e *InsufficientStockError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

// ApprovalLimitError reports an approval whose value is above the role ceiling.
type ApprovalLimitError struct {
	Role    string
	Ceiling decimal.Decimal
	Amount  decimal.Decimal
}

func (e *ApprovalLimitError) Error() string {
	return fmt.Sprintf("approval of %s exceeds ceiling %s for role %s", e.Amount.String(), e.Ceiling.String(), e.Role)
}

func (e *ApprovalLimitError) Unwrap() error { return ErrApprovalLimitExceeded }

// Invalid wraps ErrValidation with a message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
