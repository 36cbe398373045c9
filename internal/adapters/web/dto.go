package web

import (
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// parseDate parses a field already checked by the datetime validator.
func parseDate(s string) time.Time {
	t, _ := time.Parse(dateLayout, s)
	return t
}

// ── Master data ───────────────────────────────────────────────────────────────

type createItemRequest struct {
	Code     string           `json:"code" validate:"required,max=32"`
	Name     string           `json:"name" validate:"required,max=200"`
	Unit     string           `json:"unit" validate:"required,oneof=KG EA LTR BOX CASE PACK"`
	Category string           `json:"category" validate:"max=64"`
	MinStock *decimal.Decimal `json:"min_stock"`
	MaxStock *decimal.Decimal `json:"max_stock"`
}

type createLocationRequest struct {
	Code string `json:"code" validate:"required,max=32"`
	Name string `json:"name" validate:"required,max=200"`
	Type string `json:"type" validate:"required,oneof=KITCHEN STORE CENTRAL WAREHOUSE"`
}

type createSupplierRequest struct {
	Code  string `json:"code" validate:"required,max=32"`
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"omitempty,email"`
}

// ── Periods ───────────────────────────────────────────────────────────────────

type createPeriodRequest struct {
	Name      string `json:"name" validate:"required,max=64"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

type setPeriodPriceRequest struct {
	ItemID int             `json:"item_id" validate:"required,gt=0"`
	Price  decimal.Decimal `json:"price" validate:"gte=0"`
}

type copyPricesRequest struct {
	FromPeriodID int `json:"from_period_id" validate:"required,gt=0"`
}

type recordMandaysRequest struct {
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	CrewCount  int    `json:"crew_count" validate:"gte=0"`
	ExtraCount int    `json:"extra_count" validate:"gte=0"`
}

type adjustmentsRequest struct {
	BackCharges   decimal.Decimal `json:"back_charges"`
	Credits       decimal.Decimal `json:"credits"`
	Condemnations decimal.Decimal `json:"condemnations"`
	General       decimal.Decimal `json:"general"`
}

// ── Stock and documents ───────────────────────────────────────────────────────

type stockLine struct {
	ItemID   int             `json:"item_id" validate:"required,gt=0"`
	Quantity decimal.Decimal `json:"quantity" validate:"gt=0"`
}

type validateStockRequest struct {
	Lines []stockLine `json:"lines" validate:"required,min=1,dive"`
}

type purchaseOrderLine struct {
	ItemID    int             `json:"item_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"gte=0"`
}

type createPurchaseOrderRequest struct {
	SupplierID int                 `json:"supplier_id" validate:"required,gt=0"`
	PONumber   string              `json:"po_number" validate:"required,max=64"`
	Lines      []purchaseOrderLine `json:"lines" validate:"required,min=1,dive"`
}

type deliveryLine struct {
	ItemID    int             `json:"item_id" validate:"required,gt=0"`
	POLineID  *int            `json:"po_line_id" validate:"omitempty,gt=0"`
	Quantity  decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"gte=0"`
}

type createDeliveryRequest struct {
	PeriodID        int            `json:"period_id" validate:"required,gt=0"`
	LocationID      int            `json:"location_id" validate:"required,gt=0"`
	SupplierID      int            `json:"supplier_id" validate:"required,gt=0"`
	PurchaseOrderID *int           `json:"purchase_order_id" validate:"omitempty,gt=0"`
	InvoiceNumber   string         `json:"invoice_number" validate:"max=64"`
	DeliveryDate    string         `json:"delivery_date" validate:"required,datetime=2006-01-02"`
	Lines           []deliveryLine `json:"lines" validate:"required,min=1,dive"`
}

type createIssueRequest struct {
	PeriodID   int         `json:"period_id" validate:"required,gt=0"`
	LocationID int         `json:"location_id" validate:"required,gt=0"`
	CostCentre string      `json:"cost_centre" validate:"required,oneof=FOOD CLEAN OTHER"`
	IssueDate  string      `json:"issue_date" validate:"required,datetime=2006-01-02"`
	Lines      []stockLine `json:"lines" validate:"required,min=1,dive"`
}

type createTransferRequest struct {
	PeriodID              int         `json:"period_id" validate:"required,gt=0"`
	SourceLocationID      int         `json:"source_location_id" validate:"required,gt=0"`
	DestinationLocationID int         `json:"destination_location_id" validate:"required,gt=0,nefield=SourceLocationID"`
	Lines                 []stockLine `json:"lines" validate:"required,min=1,dive"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// ── NCRs and reconciliation ───────────────────────────────────────────────────

type createNCRRequest struct {
	LocationID     int             `json:"location_id" validate:"required,gt=0"`
	DeliveryLineID *int            `json:"delivery_line_id" validate:"omitempty,gt=0"`
	Reason         string          `json:"reason" validate:"required,max=1000"`
	Value          decimal.Decimal `json:"value" validate:"gte=0"`
}

type updateNCRStatusRequest struct {
	Status          string  `json:"status" validate:"required,oneof=OPEN SENT CREDITED REJECTED RESOLVED"`
	FinancialImpact *string `json:"financial_impact" validate:"omitempty,oneof=CREDIT LOSS NONE"`
}

type calculateReconciliationRequest struct {
	OpeningStock       decimal.Decimal `json:"opening_stock"`
	Receipts           decimal.Decimal `json:"receipts"`
	TransfersIn        decimal.Decimal `json:"transfers_in"`
	TransfersOut       decimal.Decimal `json:"transfers_out"`
	ClosingStock       decimal.Decimal `json:"closing_stock"`
	BackCharges        decimal.Decimal `json:"back_charges"`
	Credits            decimal.Decimal `json:"credits"`
	Condemnations      decimal.Decimal `json:"condemnations"`
	GeneralAdjustments decimal.Decimal `json:"general_adjustments"`
	TotalMandays       int             `json:"total_mandays"`
}
