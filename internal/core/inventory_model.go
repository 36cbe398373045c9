package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnitOfMeasure is the stocking unit of an item.
type UnitOfMeasure string

const (
	UnitKG   UnitOfMeasure = "KG"
	UnitEA   UnitOfMeasure = "EA"
	UnitLTR  UnitOfMeasure = "LTR"
	UnitBOX  UnitOfMeasure = "BOX"
	UnitCASE UnitOfMeasure = "CASE"
	UnitPACK UnitOfMeasure = "PACK"
)

// Valid reports whether u is one of the enumerated units.
func (u UnitOfMeasure) Valid() bool {
	switch u {
	case UnitKG, UnitEA, UnitLTR, UnitBOX, UnitCASE, UnitPACK:
		return true
	}
	return false
}

// LocationType classifies a location.
type LocationType string

const (
	LocationKitchen   LocationType = "KITCHEN"
	LocationStore     LocationType = "STORE"
	LocationCentral   LocationType = "CENTRAL"
	LocationWarehouse LocationType = "WAREHOUSE"
)

func (t LocationType) Valid() bool {
	switch t {
	case LocationKitchen, LocationStore, LocationCentral, LocationWarehouse:
		return true
	}
	return false
}

// Item is a stock-keeping item master record.
type Item struct {
	ID        int              `json:"id"`
	Code      string           `json:"code"`
	Name      string           `json:"name"`
	Unit      UnitOfMeasure    `json:"unit"`
	Category  string           `json:"category"`
	MinStock  *decimal.Decimal `json:"min_stock,omitempty"`
	MaxStock  *decimal.Decimal `json:"max_stock,omitempty"`
	IsActive  bool             `json:"is_active"`
	CreatedAt time.Time        `json:"created_at"`
}

// Location owns an independent stock ledger per item.
type Location struct {
	ID        int          `json:"id"`
	Code      string       `json:"code"`
	Name      string       `json:"name"`
	Type      LocationType `json:"type"`
	IsActive  bool         `json:"is_active"`
	CreatedAt time.Time    `json:"created_at"`
}

// Supplier is the counterparty on deliveries and purchase orders.
type Supplier struct {
	ID        int       `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// LocationStock is the present-tense truth for one (location, item) key.
// OnHand and WAC are never negative.
type LocationStock struct {
	LocationID int             `json:"location_id"`
	ItemID     int             `json:"item_id"`
	OnHand     decimal.Decimal `json:"on_hand"`
	WAC        decimal.Decimal `json:"wac"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Value is on-hand quantity at WAC, rounded to money scale.
func (s LocationStock) Value() decimal.Decimal {
	return lineValue(s.OnHand, s.WAC)
}

// StockLevel is a read view of location_stock joined with item master data.
type StockLevel struct {
	LocationID   int             `json:"location_id"`
	ItemID       int             `json:"item_id"`
	ItemCode     string          `json:"item_code"`
	ItemName     string          `json:"item_name"`
	Unit         UnitOfMeasure   `json:"unit"`
	OnHand       decimal.Decimal `json:"on_hand"`
	WAC          decimal.Decimal `json:"wac"`
	Value        decimal.Decimal `json:"value"`
	BelowMinimum bool            `json:"below_minimum"`
	AboveMaximum bool            `json:"above_maximum"`
}

// MovementType tags a row in stock_movements.
type MovementType string

const (
	MovementReceipt     MovementType = "RECEIPT"
	MovementIssue       MovementType = "ISSUE"
	MovementTransferIn  MovementType = "TRANSFER_IN"
	MovementTransferOut MovementType = "TRANSFER_OUT"
)

// StockRequest is one (item, quantity) pair submitted for a sufficiency check.
type StockRequest struct {
	ItemID   int             `json:"item_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

// StockValidationResult is the per-item outcome of a sufficiency check.
// Shortfall is zero when IsValid.
type StockValidationResult struct {
	ItemID            int             `json:"item_id"`
	ItemCode          string          `json:"item_code"`
	ItemName          string          `json:"item_name"`
	Unit              UnitOfMeasure   `json:"unit"`
	Requested         decimal.Decimal `json:"requested"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	Shortfall         decimal.Decimal `json:"shortfall"`
	IsValid           bool            `json:"is_valid"`
}

// ItemInput holds the fields required to create an item.
type ItemInput struct {
	Code     string
	Name     string
	Unit     UnitOfMeasure
	Category string
	MinStock *decimal.Decimal
	MaxStock *decimal.Decimal
}
