package app

import (
	"inventory-engine/internal/core"

	"github.com/shopspring/decimal"
)

// StockResult is returned by GetStockLevels.
type StockResult struct {
	LocationID int               `json:"location_id"`
	Levels     []core.StockLevel `json:"levels"`
	TotalValue decimal.Decimal   `json:"total_value"`
}

// StockValidationResult is returned by ValidateStock. Valid is true when every
// line can be covered.
type StockValidationResult struct {
	LocationID int                          `json:"location_id"`
	Valid      bool                         `json:"valid"`
	Items      []core.StockValidationResult `json:"items"`
}

// CopyPricesResult is returned by CopyPrices.
type CopyPricesResult struct {
	FromPeriodID int `json:"from_period_id"`
	ToPeriodID   int `json:"to_period_id"`
	Copied       int `json:"copied"`
}

// MandaysResult is returned by ListMandays.
type MandaysResult struct {
	PeriodID     int                `json:"period_id"`
	LocationID   int                `json:"location_id"`
	Entries      []core.MandayEntry `json:"entries"`
	TotalMandays int                `json:"total_mandays"`
}

// ReconciliationsResult is returned by GetReconciliations.
type ReconciliationsResult struct {
	Period          *core.Period          `json:"period"`
	Reconciliations []core.Reconciliation `json:"reconciliations"`
}
