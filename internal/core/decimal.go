package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// MoneyPlaces is the scale of every monetary total.
	MoneyPlaces int32 = 2
	// CostPlaces is the scale of unit costs (WAC, period prices).
	CostPlaces int32 = 4
	// QuantityPlaces is the scale of stored quantities.
	QuantityPlaces int32 = 4
)

// RoundMoney rounds a monetary amount to 2 decimal places, half away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// RoundCost rounds a unit cost to 4 decimal places, half away from zero.
func RoundCost(d decimal.Decimal) decimal.Decimal {
	return d.Round(CostPlaces)
}

// ParseAmount parses a decimal string supplied by a caller. Empty input,
// NaN/Infinity spellings and anything else decimal cannot represent fail with a
// ValidationError naming field.
func ParseAmount(field, raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, &ValidationError{Field: field, Reason: "is required"}
	}
	switch strings.ToLower(strings.TrimLeft(s, "+-")) {
	case "nan", "inf", "infinity":
		return decimal.Zero, &ValidationError{Field: field, Reason: "must be a finite number"}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: field, Reason: "must be a finite number"}
	}
	return d, nil
}

// requireNonNegative fails with a ValidationError when d < 0.
func requireNonNegative(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return &ValidationError{Field: field, Reason: "must be non-negative, got " + d.String()}
	}
	return nil
}

// requirePositive fails with a ValidationError when d <= 0.
func requirePositive(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return &ValidationError{Field: field, Reason: "must be greater than zero, got " + d.String()}
	}
	return nil
}

// requireQuantity fails with a ValidationError when d <= 0 or carries more
// decimal places than a stored quantity keeps.
func requireQuantity(field string, d decimal.Decimal) error {
	if err := requirePositive(field, d); err != nil {
		return err
	}
	if !d.Equal(d.Truncate(QuantityPlaces)) {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must have at most %d decimal places, got %s", QuantityPlaces, d.String())}
	}
	return nil
}

// lineValue is quantity × unit cost rounded to money scale.
func lineValue(qty, unitCost decimal.Decimal) decimal.Decimal {
	return RoundMoney(qty.Mul(unitCost))
}
