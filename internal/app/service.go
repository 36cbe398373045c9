package app

import (
	"context"
	"io"

	"inventory-engine/internal/core"
)

// ApplicationService is the single interface the HTTP adapter calls.
// It decouples presentation from the engine. Implementations contain no
// display logic and publish notifications only after the engine committed.
type ApplicationService interface {
	// ── Master data ───────────────────────────────────────────────────────────

	CreateItem(ctx context.Context, req CreateItemRequest) (*core.Item, error)
	ListItems(ctx context.Context) ([]core.Item, error)
	CreateLocation(ctx context.Context, req CreateLocationRequest) (*core.Location, error)
	ListLocations(ctx context.Context) ([]core.Location, error)
	CreateSupplier(ctx context.Context, req CreateSupplierRequest) (*core.Supplier, error)

	// ── Periods ───────────────────────────────────────────────────────────────

	// CreatePeriod creates a DRAFT period seeded with the latest closing balances.
	CreatePeriod(ctx context.Context, req CreatePeriodRequest) (*core.Period, error)
	ListPeriods(ctx context.Context) ([]core.Period, error)
	GetPeriod(ctx context.Context, id int) (*core.Period, error)

	// GetCurrentPeriod returns the OPEN period or core.ErrNotFound.
	GetCurrentPeriod(ctx context.Context) (*core.Period, error)

	// SetPeriodPrice locks an item price into a DRAFT period.
	SetPeriodPrice(ctx context.Context, req SetPeriodPriceRequest) error
	CopyPrices(ctx context.Context, fromPeriodID, toPeriodID int) (*CopyPricesResult, error)
	ListPeriodPrices(ctx context.Context, periodID int) ([]core.PeriodPrice, error)

	// OpenPeriod moves a DRAFT period to OPEN. At most one period is OPEN.
	OpenPeriod(ctx context.Context, id int) (*core.Period, error)
	CheckCloseReadiness(ctx context.Context, id int) (*core.CloseReadiness, error)

	// RequestClose moves OPEN to PENDING_CLOSE when no blockers remain. The
	// readiness report is returned alongside the conflict error when blocked.
	RequestClose(ctx context.Context, id int) (*core.CloseReadiness, error)

	// ClosePeriod snapshots every location and marks the period CLOSED.
	ClosePeriod(ctx context.Context, id int, actor string) (*core.CloseResult, error)

	RecordMandays(ctx context.Context, entry core.MandayEntry) error
	ListMandays(ctx context.Context, periodID, locationID int) (*MandaysResult, error)
	SaveAdjustments(ctx context.Context, adj core.Adjustments) error
	GetAdjustments(ctx context.Context, periodID, locationID int) (*core.Adjustments, error)

	// ── Stock ─────────────────────────────────────────────────────────────────

	GetStockLevels(ctx context.Context, locationID int) (*StockResult, error)

	// ValidateStock is the read-only sufficiency check; it never blocks postings.
	ValidateStock(ctx context.Context, req ValidateStockRequest) (*StockValidationResult, error)

	// ── Purchasing and receipts ───────────────────────────────────────────────

	CreatePurchaseOrder(ctx context.Context, req CreatePurchaseOrderRequest) (*core.PurchaseOrder, error)
	GetPurchaseOrder(ctx context.Context, id int) (*core.PurchaseOrder, error)

	// CreateDelivery creates a DRAFT delivery, diverted to PENDING_APPROVAL on
	// over-delivery.
	CreateDelivery(ctx context.Context, in core.DeliveryInput) (*core.DeliveryPostResult, error)
	PostDelivery(ctx context.Context, id int) (*core.DeliveryPostResult, error)
	ApproveOverDelivery(ctx context.Context, id int, approver string) (*core.DeliveryPostResult, error)
	RejectOverDelivery(ctx context.Context, id int, approver, reason string) (*core.Delivery, error)
	GetDelivery(ctx context.Context, id int) (*core.Delivery, error)
	ListDeliveries(ctx context.Context, periodID int) ([]core.Delivery, error)

	// ── Issues ────────────────────────────────────────────────────────────────

	CreateIssue(ctx context.Context, in core.IssueInput) (*core.Issue, error)
	PostIssue(ctx context.Context, id int) (*core.Issue, error)
	GetIssue(ctx context.Context, id int) (*core.Issue, error)

	// ── Transfers ─────────────────────────────────────────────────────────────

	CreateTransfer(ctx context.Context, in core.TransferInput) (*core.Transfer, error)
	SubmitTransfer(ctx context.Context, id int) (*core.Transfer, error)
	ApproveTransfer(ctx context.Context, id int, approver string) (*core.Transfer, error)
	RejectTransfer(ctx context.Context, id int, approver, reason string) (*core.Transfer, error)
	GetTransfer(ctx context.Context, id int) (*core.Transfer, error)

	// ── NCRs ──────────────────────────────────────────────────────────────────

	CreateNCR(ctx context.Context, in core.NCRInput) (*core.NCR, error)
	UpdateNCRStatus(ctx context.Context, req UpdateNCRStatusRequest) (*core.NCR, error)
	GetNCR(ctx context.Context, id int) (*core.NCR, error)
	GetNCRSummary(ctx context.Context, periodID, locationID int) (*core.NCRSummary, error)

	// ── Reconciliation ────────────────────────────────────────────────────────

	// CalculateReconciliation evaluates the consumption and manday cost formulas
	// over caller-supplied figures. Nothing is read or written.
	CalculateReconciliation(ctx context.Context, req CalculateReconciliationRequest) (*core.ReconciliationResult, error)
	PreviewReconciliation(ctx context.Context, periodID, locationID int) (*core.ReconciliationPreview, error)
	GetReconciliations(ctx context.Context, periodID int) (*ReconciliationsResult, error)

	// ExportReconciliations writes the period's snapshots as an xlsx workbook.
	ExportReconciliations(ctx context.Context, periodID int, w io.Writer) error
}
