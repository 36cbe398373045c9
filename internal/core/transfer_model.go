package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// CostCentre classifies what an issue was consumed for.
type CostCentre string

const (
	CostCentreFood  CostCentre = "FOOD"
	CostCentreClean CostCentre = "CLEAN"
	CostCentreOther CostCentre = "OTHER"
)

func (c CostCentre) Valid() bool {
	return c == CostCentreFood || c == CostCentreClean || c == CostCentreOther
}

// IssueStatus is DRAFT → POSTED.
type IssueStatus string

const (
	IssueDraft  IssueStatus = "DRAFT"
	IssuePosted IssueStatus = "POSTED"
)

// Issue consumes stock from a location at current WAC.
type Issue struct {
	ID         int         `json:"id"`
	PeriodID   int         `json:"period_id"`
	LocationID int         `json:"location_id"`
	CostCentre CostCentre  `json:"cost_centre"`
	IssueDate  time.Time   `json:"issue_date"`
	Status     IssueStatus `json:"status"`
	CreatedBy  string      `json:"created_by"`
	PostedAt   *time.Time  `json:"posted_at,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	Lines      []IssueLine `json:"lines"`
}

// IssueLine carries the WAC captured at posting in UnitCost.
type IssueLine struct {
	ID        int              `json:"id"`
	IssueID   int              `json:"issue_id"`
	ItemID    int              `json:"item_id"`
	ItemCode  string           `json:"item_code"`
	Quantity  decimal.Decimal  `json:"quantity"`
	UnitCost  *decimal.Decimal `json:"unit_cost,omitempty"`
	LineValue *decimal.Decimal `json:"line_value,omitempty"`
}

// IssueInput is the input for creating an issue.
type IssueInput struct {
	PeriodID   int
	LocationID int
	CostCentre CostCentre
	IssueDate  time.Time
	CreatedBy  string
	Lines      []StockRequest
}

// TransferStatus progresses through:
//
//	DRAFT → PENDING_APPROVAL → APPROVED | REJECTED
//
// APPROVED and REJECTED are terminal.
type TransferStatus string

const (
	TransferDraft           TransferStatus = "DRAFT"
	TransferPendingApproval TransferStatus = "PENDING_APPROVAL"
	TransferApproved        TransferStatus = "APPROVED"
	TransferRejected        TransferStatus = "REJECTED"
)

// Transfer moves stock from one location to another.
type Transfer struct {
	ID                    int            `json:"id"`
	PeriodID              int            `json:"period_id"`
	SourceLocationID      int            `json:"source_location_id"`
	DestinationLocationID int            `json:"destination_location_id"`
	Status                TransferStatus `json:"status"`
	CreatedBy             string         `json:"created_by"`
	DecidedBy             *string        `json:"decided_by,omitempty"`
	RejectionReason       *string        `json:"rejection_reason,omitempty"`
	DecidedAt             *time.Time     `json:"decided_at,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	Lines                 []TransferLine `json:"lines"`
}

// TransferLine carries the source WAC captured at approval in UnitCost.
type TransferLine struct {
	ID         int              `json:"id"`
	TransferID int              `json:"transfer_id"`
	ItemID     int              `json:"item_id"`
	ItemCode   string           `json:"item_code"`
	Quantity   decimal.Decimal  `json:"quantity"`
	UnitCost   *decimal.Decimal `json:"unit_cost,omitempty"`
	LineValue  *decimal.Decimal `json:"line_value,omitempty"`
}

// TransferInput is the input for creating a transfer.
type TransferInput struct {
	PeriodID              int
	SourceLocationID      int
	DestinationLocationID int
	CreatedBy             string
	Lines                 []StockRequest
}
