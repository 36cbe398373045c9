package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Sentinel errors, matched with errors.Is. The structured errors below unwrap to them.
var (
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPeriodConflict    = errors.New("period conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrPartialClose      = errors.New("partial period close")
	ErrNotFound          = errors.New("not found")
)

// ValidationError reports malformed or out-of-range input to a calculation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StockShortfall is one insufficient line of a bulk stock check.
type StockShortfall struct {
	ItemID    int             `json:"item_id"`
	ItemCode  string          `json:"item_code"`
	ItemName  string          `json:"item_name"`
	Unit      UnitOfMeasure   `json:"unit"`
	Requested decimal.Decimal `json:"requested"`
	Available decimal.Decimal `json:"available"`
	Shortfall decimal.Decimal `json:"shortfall"`
}

// InsufficientStockError carries every short item of a posting, not only the first.
type InsufficientStockError struct {
	LocationID int
	Items      []StockShortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		parts = append(parts, fmt.Sprintf("%s requested %s available %s",
			it.ItemCode, it.Requested.String(), it.Available.String()))
	}
	return fmt.Sprintf("insufficient stock at location %d: %s", e.LocationID, strings.Join(parts, "; "))
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// PeriodConflictError is returned when a second period would be OPEN, or when
// a document is posted against a period that does not accept postings.
type PeriodConflictError struct {
	PeriodID int
	Reason   string
}

func (e *PeriodConflictError) Error() string {
	if e.PeriodID == 0 {
		return "period conflict: " + e.Reason
	}
	return fmt.Sprintf("period %d conflict: %s", e.PeriodID, e.Reason)
}

func (e *PeriodConflictError) Unwrap() error { return ErrPeriodConflict }

// StateTransitionError is returned for a status change the entity's state machine forbids.
type StateTransitionError struct {
	Entity string
	ID     int
	From   string
	To     string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("%s %d cannot move from %s to %s", e.Entity, e.ID, e.From, e.To)
}

func (e *StateTransitionError) Unwrap() error { return ErrInvalidTransition }

// PartialCloseError aborts a period close that could not snapshot every location.
type PartialCloseError struct {
	PeriodID    int
	Expected    int
	Snapshotted int
	Cause       error
}

func (e *PartialCloseError) Error() string {
	msg := fmt.Sprintf("period %d close aborted: snapshotted %d of %d locations", e.PeriodID, e.Snapshotted, e.Expected)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *PartialCloseError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrPartialClose, e.Cause}
	}
	return []error{ErrPartialClose}
}

// notFound wraps ErrNotFound with the entity and key.
func notFound(entity string, id any) error {
	return fmt.Errorf("%s %v: %w", entity, id, ErrNotFound)
}

// IsBusinessError reports whether err is a rule rejection that should reach the
// actor with structured detail rather than as an internal failure.
func IsBusinessError(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrPeriodConflict) ||
		errors.Is(err, ErrInvalidTransition)
}
