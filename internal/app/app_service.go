package app

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"inventory-engine/internal/core"
	"inventory-engine/internal/notify"
	"inventory-engine/internal/report"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Services bundles the engine services the facade delegates to.
type Services struct {
	Inventory      core.InventoryService
	Periods        core.PeriodService
	PurchaseOrders core.PurchaseOrderService
	Deliveries     core.DeliveryService
	Issues         core.IssueService
	Transfers      core.TransferService
	NCRs           core.NCRService
	Reporting      core.ReportingService
}

// NewServices wires every PostgreSQL-backed engine service onto one pool.
func NewServices(pool *pgxpool.Pool, log *zap.Logger) Services {
	if log == nil {
		log = zap.NewNop()
	}
	inv := core.NewInventoryService(pool)
	ncrs := core.NewNCRService(pool)
	return Services{
		Inventory:      inv,
		Periods:        core.NewPeriodService(pool, log.Named("periods")),
		PurchaseOrders: core.NewPurchaseOrderService(pool),
		Deliveries:     core.NewDeliveryService(pool, inv, log.Named("deliveries")),
		Issues:         core.NewIssueService(pool, inv, log.Named("issues")),
		Transfers:      core.NewTransferService(pool, inv, log.Named("transfers")),
		NCRs:           ncrs,
		Reporting:      core.NewReportingService(pool, ncrs),
	}
}

type appService struct {
	Services
	queue notify.Queue
	log   *zap.Logger
}

// NewAppService constructs an appService that satisfies ApplicationService.
// A nil queue discards notifications.
func NewAppService(svcs Services, queue notify.Queue, log *zap.Logger) ApplicationService {
	if queue == nil {
		queue = notify.Discard{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &appService{Services: svcs, queue: queue, log: log}
}

// ── Master data ───────────────────────────────────────────────────────────────

func (s *appService) CreateItem(ctx context.Context, req CreateItemRequest) (*core.Item, error) {
	return s.Inventory.CreateItem(ctx, core.ItemInput{
		Code:     req.Code,
		Name:     req.Name,
		Unit:     req.Unit,
		Category: req.Category,
		MinStock: req.MinStock,
		MaxStock: req.MaxStock,
	})
}

func (s *appService) ListItems(ctx context.Context) ([]core.Item, error) {
	return s.Inventory.ListItems(ctx)
}

func (s *appService) CreateLocation(ctx context.Context, req CreateLocationRequest) (*core.Location, error) {
	return s.Inventory.CreateLocation(ctx, req.Code, req.Name, req.Type)
}

func (s *appService) ListLocations(ctx context.Context) ([]core.Location, error) {
	return s.Inventory.ListLocations(ctx)
}

func (s *appService) CreateSupplier(ctx context.Context, req CreateSupplierRequest) (*core.Supplier, error) {
	return s.Inventory.CreateSupplier(ctx, req.Code, req.Name, req.Email)
}

// ── Periods ───────────────────────────────────────────────────────────────────

func (s *appService) CreatePeriod(ctx context.Context, req CreatePeriodRequest) (*core.Period, error) {
	return s.Periods.CreatePeriod(ctx, req.Name, req.StartDate, req.EndDate)
}

func (s *appService) ListPeriods(ctx context.Context) ([]core.Period, error) {
	return s.Periods.ListPeriods(ctx)
}

func (s *appService) GetPeriod(ctx context.Context, id int) (*core.Period, error) {
	return s.Periods.GetPeriod(ctx, id)
}

func (s *appService) GetCurrentPeriod(ctx context.Context) (*core.Period, error) {
	return s.Periods.GetCurrentPeriod(ctx)
}

func (s *appService) SetPeriodPrice(ctx context.Context, req SetPeriodPriceRequest) error {
	return s.Periods.SetPeriodPrice(ctx, req.PeriodID, req.ItemID, req.Price)
}

func (s *appService) CopyPrices(ctx context.Context, fromPeriodID, toPeriodID int) (*CopyPricesResult, error) {
	n, err := s.Periods.CopyPrices(ctx, fromPeriodID, toPeriodID)
	if err != nil {
		return nil, err
	}
	return &CopyPricesResult{FromPeriodID: fromPeriodID, ToPeriodID: toPeriodID, Copied: n}, nil
}

func (s *appService) ListPeriodPrices(ctx context.Context, periodID int) ([]core.PeriodPrice, error) {
	return s.Periods.ListPeriodPrices(ctx, periodID)
}

func (s *appService) OpenPeriod(ctx context.Context, id int) (*core.Period, error) {
	return s.Periods.OpenPeriod(ctx, id)
}

func (s *appService) CheckCloseReadiness(ctx context.Context, id int) (*core.CloseReadiness, error) {
	return s.Periods.CheckCloseReadiness(ctx, id)
}

func (s *appService) RequestClose(ctx context.Context, id int) (*core.CloseReadiness, error) {
	return s.Periods.RequestClose(ctx, id)
}

func (s *appService) ClosePeriod(ctx context.Context, id int, actor string) (*core.CloseResult, error) {
	res, err := s.Periods.ExecuteClose(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, l := range res.Locations {
		total = total.Add(l.Consumption)
	}
	s.queue.Enqueue(notify.NewEvent(notify.EventPeriodClosed,
		fmt.Sprintf("Period %d closed", id),
		fmt.Sprintf("Period %d was closed by %s. %d locations snapshotted, total consumption %s.",
			id, actor, len(res.Locations), core.RoundMoney(total).StringFixed(2)),
	).With("period_id", strconv.Itoa(id)))
	return res, nil
}

func (s *appService) RecordMandays(ctx context.Context, entry core.MandayEntry) error {
	return s.Periods.RecordMandays(ctx, entry)
}

func (s *appService) ListMandays(ctx context.Context, periodID, locationID int) (*MandaysResult, error) {
	entries, err := s.Periods.ListMandays(ctx, periodID, locationID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []core.MandayEntry{}
	}
	return &MandaysResult{
		PeriodID:     periodID,
		LocationID:   locationID,
		Entries:      entries,
		TotalMandays: core.TotalMandays(entries),
	}, nil
}

func (s *appService) SaveAdjustments(ctx context.Context, adj core.Adjustments) error {
	return s.Periods.SaveAdjustments(ctx, adj)
}

func (s *appService) GetAdjustments(ctx context.Context, periodID, locationID int) (*core.Adjustments, error) {
	return s.Periods.GetAdjustments(ctx, periodID, locationID)
}

// ── Stock ─────────────────────────────────────────────────────────────────────

func (s *appService) GetStockLevels(ctx context.Context, locationID int) (*StockResult, error) {
	levels, err := s.Inventory.GetStockLevels(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if levels == nil {
		levels = []core.StockLevel{}
	}
	total := decimal.Zero
	for _, l := range levels {
		total = total.Add(l.Value)
	}
	return &StockResult{LocationID: locationID, Levels: levels, TotalValue: core.RoundMoney(total)}, nil
}

func (s *appService) ValidateStock(ctx context.Context, req ValidateStockRequest) (*StockValidationResult, error) {
	items, err := s.Inventory.ValidateSufficientStock(ctx, req.LocationID, req.Lines)
	if err != nil {
		return nil, err
	}
	valid := true
	for _, it := range items {
		valid = valid && it.IsValid
	}
	return &StockValidationResult{LocationID: req.LocationID, Valid: valid, Items: items}, nil
}

// ── Purchasing and receipts ───────────────────────────────────────────────────

func (s *appService) CreatePurchaseOrder(ctx context.Context, req CreatePurchaseOrderRequest) (*core.PurchaseOrder, error) {
	return s.PurchaseOrders.CreatePO(ctx, req.SupplierID, req.PONumber, req.Lines)
}

func (s *appService) GetPurchaseOrder(ctx context.Context, id int) (*core.PurchaseOrder, error) {
	return s.PurchaseOrders.GetPO(ctx, id)
}

func (s *appService) CreateDelivery(ctx context.Context, in core.DeliveryInput) (*core.DeliveryPostResult, error) {
	res, err := s.Deliveries.CreateDelivery(ctx, in)
	if err != nil {
		return nil, err
	}
	s.publishDelivery(res)
	return res, nil
}

func (s *appService) PostDelivery(ctx context.Context, id int) (*core.DeliveryPostResult, error) {
	res, err := s.Deliveries.PostDelivery(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publishDelivery(res)
	return res, nil
}

func (s *appService) ApproveOverDelivery(ctx context.Context, id int, approver string) (*core.DeliveryPostResult, error) {
	res, err := s.Deliveries.ApproveOverDelivery(ctx, id, approver)
	if err != nil {
		return nil, err
	}
	s.publishDelivery(res)
	return res, nil
}

func (s *appService) RejectOverDelivery(ctx context.Context, id int, approver, reason string) (*core.Delivery, error) {
	return s.Deliveries.RejectOverDelivery(ctx, id, approver, reason)
}

func (s *appService) GetDelivery(ctx context.Context, id int) (*core.Delivery, error) {
	return s.Deliveries.GetDelivery(ctx, id)
}

func (s *appService) ListDeliveries(ctx context.Context, periodID int) ([]core.Delivery, error) {
	return s.Deliveries.ListDeliveries(ctx, periodID)
}

// publishDelivery announces an over-delivery hold and every automatic price
// variance NCR of a committed delivery operation.
func (s *appService) publishDelivery(res *core.DeliveryPostResult) {
	if res == nil || res.Delivery == nil {
		return
	}
	d := res.Delivery
	if res.RequiresApproval {
		body := fmt.Sprintf("Delivery %d (invoice %q) at location %d exceeds its purchase order on %d line(s) and awaits approval.",
			d.ID, d.InvoiceNumber, d.LocationID, len(res.OverDelivered))
		s.queue.Enqueue(notify.NewEvent(notify.EventOverDeliveryFlagged,
			fmt.Sprintf("Over-delivery on delivery %d", d.ID), body,
		).With("delivery_id", strconv.Itoa(d.ID)))
	}
	for i := range res.PriceVariances {
		s.publishNCR(&res.PriceVariances[i])
	}
}

// ── Issues ────────────────────────────────────────────────────────────────────

func (s *appService) CreateIssue(ctx context.Context, in core.IssueInput) (*core.Issue, error) {
	return s.Issues.CreateIssue(ctx, in)
}

func (s *appService) PostIssue(ctx context.Context, id int) (*core.Issue, error) {
	return s.Issues.PostIssue(ctx, id)
}

func (s *appService) GetIssue(ctx context.Context, id int) (*core.Issue, error) {
	return s.Issues.GetIssue(ctx, id)
}

// ── Transfers ─────────────────────────────────────────────────────────────────

func (s *appService) CreateTransfer(ctx context.Context, in core.TransferInput) (*core.Transfer, error) {
	return s.Transfers.CreateTransfer(ctx, in)
}

func (s *appService) SubmitTransfer(ctx context.Context, id int) (*core.Transfer, error) {
	return s.Transfers.SubmitTransfer(ctx, id)
}

func (s *appService) ApproveTransfer(ctx context.Context, id int, approver string) (*core.Transfer, error) {
	t, err := s.Transfers.ApproveTransfer(ctx, id, approver)
	if err != nil {
		return nil, err
	}
	s.queue.Enqueue(notify.NewEvent(notify.EventTransferApproved,
		fmt.Sprintf("Transfer %d approved", t.ID),
		fmt.Sprintf("Transfer %d from location %d to location %d was approved by %s. Value %s.",
			t.ID, t.SourceLocationID, t.DestinationLocationID, approver, t.TotalValue().StringFixed(2)),
	).With("transfer_id", strconv.Itoa(t.ID)))
	return t, nil
}

func (s *appService) RejectTransfer(ctx context.Context, id int, approver, reason string) (*core.Transfer, error) {
	t, err := s.Transfers.RejectTransfer(ctx, id, approver, reason)
	if err != nil {
		return nil, err
	}
	s.queue.Enqueue(notify.NewEvent(notify.EventTransferRejected,
		fmt.Sprintf("Transfer %d rejected", t.ID),
		fmt.Sprintf("Transfer %d from location %d to location %d was rejected by %s: %s",
			t.ID, t.SourceLocationID, t.DestinationLocationID, approver, reason),
	).With("transfer_id", strconv.Itoa(t.ID)))
	return t, nil
}

func (s *appService) GetTransfer(ctx context.Context, id int) (*core.Transfer, error) {
	return s.Transfers.GetTransfer(ctx, id)
}

// ── NCRs ──────────────────────────────────────────────────────────────────────

func (s *appService) CreateNCR(ctx context.Context, in core.NCRInput) (*core.NCR, error) {
	n, err := s.NCRs.CreateManualNCR(ctx, in)
	if err != nil {
		return nil, err
	}
	s.publishNCR(n)
	return n, nil
}

func (s *appService) publishNCR(n *core.NCR) {
	s.queue.Enqueue(notify.NewEvent(notify.EventNCRCreated,
		fmt.Sprintf("%s NCR %d raised", n.Type, n.ID),
		fmt.Sprintf("NCR %d at location %d, value %s: %s", n.ID, n.LocationID, n.Value.StringFixed(2), n.Reason),
	).With("ncr_id", strconv.Itoa(n.ID)))
}

func (s *appService) UpdateNCRStatus(ctx context.Context, req UpdateNCRStatusRequest) (*core.NCR, error) {
	return s.NCRs.UpdateNCRStatus(ctx, req.ID, req.Status, req.FinancialImpact)
}

func (s *appService) GetNCR(ctx context.Context, id int) (*core.NCR, error) {
	return s.NCRs.GetNCR(ctx, id)
}

func (s *appService) GetNCRSummary(ctx context.Context, periodID, locationID int) (*core.NCRSummary, error) {
	return s.NCRs.GetAllNCRSummaryForPeriod(ctx, periodID, locationID)
}

// ── Reconciliation ────────────────────────────────────────────────────────────

func (s *appService) CalculateReconciliation(_ context.Context, req CalculateReconciliationRequest) (*core.ReconciliationResult, error) {
	res, err := core.CalculateReconciliation(req.Input, req.TotalMandays)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *appService) PreviewReconciliation(ctx context.Context, periodID, locationID int) (*core.ReconciliationPreview, error) {
	return s.Reporting.PreviewReconciliation(ctx, periodID, locationID)
}

func (s *appService) GetReconciliations(ctx context.Context, periodID int) (*ReconciliationsResult, error) {
	p, err := s.Periods.GetPeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}
	recs, err := s.Reporting.GetReconciliations(ctx, periodID)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []core.Reconciliation{}
	}
	return &ReconciliationsResult{Period: p, Reconciliations: recs}, nil
}

func (s *appService) ExportReconciliations(ctx context.Context, periodID int, w io.Writer) error {
	res, err := s.GetReconciliations(ctx, periodID)
	if err != nil {
		return err
	}
	if err := report.WriteReconciliationWorkbook(w, res.Period, res.Reconciliations); err != nil {
		return fmt.Errorf("export reconciliations for period %d: %w", periodID, err)
	}
	s.log.Info("reconciliations exported", zap.Int("period_id", periodID), zap.Int("locations", len(res.Reconciliations)))
	return nil
}
