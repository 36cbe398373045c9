package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseOrder is the header a delivery may be received against.
type PurchaseOrder struct {
	ID           int                 `json:"id"`
	SupplierID   int                 `json:"supplier_id"`
	SupplierCode string              `json:"supplier_code"`
	PONumber     string              `json:"po_number"`
	CreatedAt    time.Time           `json:"created_at"`
	Lines        []PurchaseOrderLine `json:"lines"`
}

// PurchaseOrderLine is one ordered item. Remaining is Quantity minus the
// quantity of POSTED delivery lines received against it.
type PurchaseOrderLine struct {
	ID        int             `json:"id"`
	OrderID   int             `json:"order_id"`
	ItemID    int             `json:"item_id"`
	ItemCode  string          `json:"item_code"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Received  decimal.Decimal `json:"received"`
	Remaining decimal.Decimal `json:"remaining"`
}

// PurchaseOrderLineInput holds the fields required to create a purchase order line.
type PurchaseOrderLineInput struct {
	ItemID    int
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// DeliveryStatus progresses through:
//
//	DRAFT → POSTED
//	DRAFT → PENDING_APPROVAL → POSTED | REJECTED   (over-delivery)
//
// POSTED and REJECTED are terminal.
type DeliveryStatus string

const (
	DeliveryDraft           DeliveryStatus = "DRAFT"
	DeliveryPendingApproval DeliveryStatus = "PENDING_APPROVAL"
	DeliveryPosted          DeliveryStatus = "POSTED"
	DeliveryRejected        DeliveryStatus = "REJECTED"
)

// Delivery is a goods receipt into one location.
type Delivery struct {
	ID              int            `json:"id"`
	PeriodID        int            `json:"period_id"`
	LocationID      int            `json:"location_id"`
	SupplierID      int            `json:"supplier_id"`
	PurchaseOrderID *int           `json:"purchase_order_id,omitempty"`
	InvoiceNumber   string         `json:"invoice_number"`
	DeliveryDate    time.Time      `json:"delivery_date"`
	Status          DeliveryStatus `json:"status"`
	CreatedBy       string         `json:"created_by"`
	ApprovedBy      *string        `json:"approved_by,omitempty"`
	RejectionReason *string        `json:"rejection_reason,omitempty"`
	PostedAt        *time.Time     `json:"posted_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	Lines           []DeliveryLine `json:"lines"`
}

// TotalValue is the sum of the line values.
func (d *Delivery) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, l := range d.Lines {
		total = total.Add(l.LineValue)
	}
	return RoundMoney(total)
}

// DeliveryLine is one received item. PeriodPrice is captured at posting.
type DeliveryLine struct {
	ID          int              `json:"id"`
	DeliveryID  int              `json:"delivery_id"`
	ItemID      int              `json:"item_id"`
	ItemCode    string           `json:"item_code"`
	ItemName    string           `json:"item_name"`
	POLineID    *int             `json:"po_line_id,omitempty"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	PeriodPrice *decimal.Decimal `json:"period_price,omitempty"`
	LineValue   decimal.Decimal  `json:"line_value"`
}

// DeliveryInput is the input for creating a delivery.
type DeliveryInput struct {
	PeriodID        int
	LocationID      int
	SupplierID      int
	PurchaseOrderID *int
	InvoiceNumber   string
	DeliveryDate    time.Time
	CreatedBy       string
	Lines           []DeliveryLineInput
}

// DeliveryLineInput is a single line within a DeliveryInput.
type DeliveryLineInput struct {
	ItemID    int
	POLineID  *int
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// OverDeliveredLine reports a delivery line exceeding its PO line's remaining quantity.
type OverDeliveredLine struct {
	POLineID  int             `json:"po_line_id"`
	ItemID    int             `json:"item_id"`
	Requested decimal.Decimal `json:"requested"`
	Remaining decimal.Decimal `json:"remaining"`
}

// DeliveryPostResult is returned by delivery posting operations.
// When RequiresApproval is set the delivery was diverted to PENDING_APPROVAL
// instead of being posted.
type DeliveryPostResult struct {
	Delivery         *Delivery           `json:"delivery"`
	RequiresApproval bool                `json:"requires_approval"`
	OverDelivered    []OverDeliveredLine `json:"over_delivered,omitempty"`
	PriceVariances   []NCR               `json:"price_variances,omitempty"`
}
