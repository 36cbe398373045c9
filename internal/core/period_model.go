package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// PeriodStatus progresses linearly:
//
//	DRAFT → OPEN → PENDING_CLOSE → CLOSED
//
// CLOSED is terminal.
type PeriodStatus string

const (
	PeriodDraft        PeriodStatus = "DRAFT"
	PeriodOpen         PeriodStatus = "OPEN"
	PeriodPendingClose PeriodStatus = "PENDING_CLOSE"
	PeriodClosed       PeriodStatus = "CLOSED"
)

// Period is a monthly accounting window.
type Period struct {
	ID               int          `json:"id"`
	Name             string       `json:"name"`
	StartDate        time.Time    `json:"start_date"`
	EndDate          time.Time    `json:"end_date"`
	Status           PeriodStatus `json:"status"`
	OpenedAt         *time.Time   `json:"opened_at,omitempty"`
	CloseRequestedAt *time.Time   `json:"close_requested_at,omitempty"`
	ClosedAt         *time.Time   `json:"closed_at,omitempty"`
	ClosedBy         *string      `json:"closed_by,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Contains reports whether t falls on or between the period's start and end dates.
func (p Period) Contains(t time.Time) bool {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	start := time.Date(p.StartDate.Year(), p.StartDate.Month(), p.StartDate.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(p.EndDate.Year(), p.EndDate.Month(), p.EndDate.Day(), 0, 0, 0, 0, time.UTC)
	return !day.Before(start) && !day.After(end)
}

// PeriodPrice is the locked unit price of an item for a period.
type PeriodPrice struct {
	PeriodID int             `json:"period_id"`
	ItemID   int             `json:"item_id"`
	ItemCode string          `json:"item_code"`
	Price    decimal.Decimal `json:"price"`
}

// BlockerKind names the document category that blocks a close request.
type BlockerKind string

const (
	BlockerDraftDelivery   BlockerKind = "DRAFT_DELIVERY"
	BlockerPendingDelivery BlockerKind = "PENDING_APPROVAL_DELIVERY"
	BlockerDraftIssue      BlockerKind = "DRAFT_ISSUE"
	BlockerDraftTransfer   BlockerKind = "DRAFT_TRANSFER"
	BlockerPendingTransfer BlockerKind = "PENDING_APPROVAL_TRANSFER"
)

// CloseBlocker is one document preventing OPEN → PENDING_CLOSE.
type CloseBlocker struct {
	Kind       BlockerKind `json:"kind"`
	DocumentID int         `json:"document_id"`
	LocationID int         `json:"location_id"`
	Reference  string      `json:"reference"`
}

// CloseWarning is a non-blocking observation surfaced at close time.
type CloseWarning struct {
	Kind       string          `json:"kind"`
	DocumentID int             `json:"document_id"`
	LocationID int             `json:"location_id"`
	Value      decimal.Decimal `json:"value"`
	Message    string          `json:"message"`
}

// CloseReadiness is the result of a close precondition check.
type CloseReadiness struct {
	PeriodID int            `json:"period_id"`
	Ready    bool           `json:"ready"`
	Blockers []CloseBlocker `json:"blockers"`
	Warnings []CloseWarning `json:"warnings"`
}

// LocationCloseResult is the per-location outcome of a period close.
type LocationCloseResult struct {
	LocationID   int              `json:"location_id"`
	LocationCode string           `json:"location_code"`
	ClosingStock decimal.Decimal  `json:"closing_stock"`
	Consumption  decimal.Decimal  `json:"consumption"`
	TotalMandays int              `json:"total_mandays"`
	MandayCost   *decimal.Decimal `json:"manday_cost,omitempty"`
}

// CloseResult is returned by a successful ExecuteClose.
type CloseResult struct {
	PeriodID     int                   `json:"period_id"`
	NextPeriodID *int                  `json:"next_period_id,omitempty"`
	Locations    []LocationCloseResult `json:"locations"`
	ClosedAt     time.Time             `json:"closed_at"`
}

// MandayEntry is one day's personnel count at a location.
type MandayEntry struct {
	PeriodID   int       `json:"period_id"`
	LocationID int       `json:"location_id"`
	Date       time.Time `json:"date"`
	CrewCount  int       `json:"crew_count"`
	ExtraCount int       `json:"extra_count"`
}

// Adjustments are the supervisor-entered reconciliation adjustments of one location.
type Adjustments struct {
	PeriodID      int             `json:"period_id"`
	LocationID    int             `json:"location_id"`
	BackCharges   decimal.Decimal `json:"back_charges"`
	Credits       decimal.Decimal `json:"credits"`
	Condemnations decimal.Decimal `json:"condemnations"`
	General       decimal.Decimal `json:"general"`
}
