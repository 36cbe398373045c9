package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// NCRType distinguishes manually raised reports from automatic price variances.
type NCRType string

const (
	NCRManual        NCRType = "MANUAL"
	NCRPriceVariance NCRType = "PRICE_VARIANCE"
)

// NCRStatus progresses through:
//
//	OPEN → SENT → CREDITED | REJECTED | RESOLVED
//	OPEN → RESOLVED
//
// CREDITED, REJECTED and RESOLVED are terminal.
type NCRStatus string

const (
	NCROpen     NCRStatus = "OPEN"
	NCRSent     NCRStatus = "SENT"
	NCRCredited NCRStatus = "CREDITED"
	NCRRejected NCRStatus = "REJECTED"
	NCRResolved NCRStatus = "RESOLVED"
)

// FinancialImpact is set exactly when an NCR is RESOLVED.
type FinancialImpact string

const (
	ImpactCredit FinancialImpact = "CREDIT"
	ImpactLoss   FinancialImpact = "LOSS"
	ImpactNone   FinancialImpact = "NONE"
)

// NCR is a non-conformance report.
type NCR struct {
	ID              int              `json:"id"`
	LocationID      int              `json:"location_id"`
	Type            NCRType          `json:"type"`
	Status          NCRStatus        `json:"status"`
	FinancialImpact *FinancialImpact `json:"financial_impact,omitempty"`
	Value           decimal.Decimal  `json:"value"`
	Reason          string           `json:"reason"`
	DeliveryID      *int             `json:"delivery_id,omitempty"`
	DeliveryLineID  *int             `json:"delivery_line_id,omitempty"`
	CreatedBy       string           `json:"created_by"`
	ResolvedAt      *time.Time       `json:"resolved_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// NCRInput is the input for raising a manual NCR.
type NCRInput struct {
	LocationID     int
	DeliveryLineID *int
	Reason         string
	Value          decimal.Decimal
	CreatedBy      string
}

// NCRSummaryItem is the typed projection of one NCR row joined with its
// optional delivery and optional delivery line item.
type NCRSummaryItem struct {
	ID              int              `json:"id"`
	Type            NCRType          `json:"type"`
	Status          NCRStatus        `json:"status"`
	FinancialImpact *FinancialImpact `json:"financial_impact,omitempty"`
	Value           decimal.Decimal  `json:"value"`
	Reason          string           `json:"reason"`
	DeliveryID      *int             `json:"delivery_id,omitempty"`
	InvoiceNumber   *string          `json:"invoice_number,omitempty"`
	SupplierName    *string          `json:"supplier_name,omitempty"`
	ItemName        *string          `json:"item_name,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// NCRCategory aggregates one reconciliation bucket.
type NCRCategory struct {
	Total decimal.Decimal  `json:"total"`
	Count int              `json:"count"`
	Items []NCRSummaryItem `json:"items"`
}

func (c *NCRCategory) add(it NCRSummaryItem) {
	c.Total = c.Total.Add(it.Value)
	c.Count++
	c.Items = append(c.Items, it)
}

// NCRSummary buckets a period+location's NCRs by financial outcome.
type NCRSummary struct {
	PeriodID   int         `json:"period_id"`
	LocationID int         `json:"location_id"`
	Credited   NCRCategory `json:"credited"`
	Losses     NCRCategory `json:"losses"`
	Pending    NCRCategory `json:"pending"`
	Open       NCRCategory `json:"open"`
}
