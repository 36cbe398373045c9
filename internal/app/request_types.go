package app

import (
	"time"

	"inventory-engine/internal/core"

	"github.com/shopspring/decimal"
)

// CreateItemRequest is the input for creating a stock item.
type CreateItemRequest struct {
	Code     string
	Name     string
	Unit     core.UnitOfMeasure
	Category string
	MinStock *decimal.Decimal
	MaxStock *decimal.Decimal
}

// CreateLocationRequest is the input for creating a location.
type CreateLocationRequest struct {
	Code string
	Name string
	Type core.LocationType
}

// CreateSupplierRequest is the input for creating a supplier.
type CreateSupplierRequest struct {
	Code  string
	Name  string
	Email string
}

// CreatePeriodRequest is the input for creating a DRAFT period.
type CreatePeriodRequest struct {
	Name      string
	StartDate time.Time
	EndDate   time.Time
}

// SetPeriodPriceRequest locks one item price into a period.
type SetPeriodPriceRequest struct {
	PeriodID int
	ItemID   int
	Price    decimal.Decimal
}

// ValidateStockRequest asks whether a location can cover the given lines.
type ValidateStockRequest struct {
	LocationID int
	Lines      []core.StockRequest
}

// CreatePurchaseOrderRequest is the input for creating a purchase order.
type CreatePurchaseOrderRequest struct {
	SupplierID int
	PONumber   string
	Lines      []core.PurchaseOrderLineInput
}

// UpdateNCRStatusRequest moves an NCR along its lifecycle. FinancialImpact is
// required exactly when Status is RESOLVED.
type UpdateNCRStatusRequest struct {
	ID              int
	Status          core.NCRStatus
	FinancialImpact *core.FinancialImpact
}

// CalculateReconciliationRequest carries the figures for a what-if
// reconciliation.
type CalculateReconciliationRequest struct {
	Input        core.ReconciliationInput
	TotalMandays int
}
