package core_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"inventory-engine/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engine struct {
	pool      *pgxpool.Pool
	inv       core.InventoryService
	periods   core.PeriodService
	deliver   core.DeliveryService
	issues    core.IssueService
	transfers core.TransferService
	ncrs      core.NCRService
	reports   core.ReportingService
	pos       core.PurchaseOrderService

	kitchen, store int
	rice, oil      int
	supplier       int
}

func setupTestDB(t *testing.T) *engine {
	t.Helper()
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database; every test truncates all tables.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err, "connect to test database")
	t.Cleanup(pool.Close)

	migrations, err := filepath.Glob("../../migrations/*.sql")
	require.NoError(t, err)
	sort.Strings(migrations)
	for _, path := range migrations {
		schema, err := os.ReadFile(path)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, string(schema))
		require.NoError(t, err, "apply %s", filepath.Base(path))
	}

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE stock_snapshots, reconciliations, ncrs, stock_movements, transfer_lines, transfers,
			issue_lines, issues, delivery_lines, deliveries, purchase_order_lines, purchase_orders,
			reconciliation_adjustments, period_mandays, period_opening_balances, period_prices, periods,
			location_stock, suppliers, locations, items
		RESTART IDENTITY CASCADE;
	`)
	require.NoError(t, err, "truncate")

	inv := core.NewInventoryService(pool)
	ncrs := core.NewNCRService(pool)
	e := &engine{
		pool:      pool,
		inv:       inv,
		periods:   core.NewPeriodService(pool, nil),
		deliver:   core.NewDeliveryService(pool, inv, nil),
		issues:    core.NewIssueService(pool, inv, nil),
		transfers: core.NewTransferService(pool, inv, nil),
		ncrs:      ncrs,
		reports:   core.NewReportingService(pool, ncrs),
		pos:       core.NewPurchaseOrderService(pool),
	}

	kitchen, err := inv.CreateLocation(ctx, "KIT", "Main Kitchen", core.LocationKitchen)
	require.NoError(t, err)
	store, err := inv.CreateLocation(ctx, "STR", "Dry Store", core.LocationStore)
	require.NoError(t, err)
	rice, err := inv.CreateItem(ctx, core.ItemInput{Code: "RICE", Name: "Rice", Unit: core.UnitKG, Category: "DRY"})
	require.NoError(t, err)
	oil, err := inv.CreateItem(ctx, core.ItemInput{Code: "OIL", Name: "Cooking oil", Unit: core.UnitLTR, Category: "DRY"})
	require.NoError(t, err)
	sup, err := inv.CreateSupplier(ctx, "SUP1", "Fresh Foods Ltd", "orders@example.com")
	require.NoError(t, err)

	e.kitchen, e.store = kitchen.ID, store.ID
	e.rice, e.oil = rice.ID, oil.ID
	e.supplier = sup.ID
	return e
}

var march = struct{ start, end, mid time.Time }{
	start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	end:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	mid:   time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
}

func (e *engine) openMarch(t *testing.T) *core.Period {
	t.Helper()
	ctx := context.Background()
	p, err := e.periods.CreatePeriod(ctx, "2026-03", march.start, march.end)
	require.NoError(t, err)
	_, err = e.periods.OpenPeriod(ctx, p.ID)
	require.NoError(t, err)
	return p
}

var april = struct{ start, end, mid time.Time }{
	start: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	end:   time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC),
	mid:   time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC),
}

// receive creates and posts a single-line delivery dated mid-March.
func (e *engine) receive(t *testing.T, periodID, locationID, itemID int, q, price string) *core.DeliveryPostResult {
	t.Helper()
	return e.receiveOn(t, march.mid, periodID, locationID, itemID, q, price)
}

func (e *engine) receiveOn(t *testing.T, day time.Time, periodID, locationID, itemID int, q, price string) *core.DeliveryPostResult {
	t.Helper()
	ctx := context.Background()
	created, err := e.deliver.CreateDelivery(ctx, core.DeliveryInput{
		PeriodID: periodID, LocationID: locationID, SupplierID: e.supplier,
		InvoiceNumber: "INV", DeliveryDate: day, CreatedBy: "tester",
		Lines: []core.DeliveryLineInput{{ItemID: itemID, Quantity: d(q), UnitPrice: d(price)}},
	})
	require.NoError(t, err)
	posted, err := e.deliver.PostDelivery(ctx, created.Delivery.ID)
	require.NoError(t, err)
	require.Equal(t, core.DeliveryPosted, posted.Delivery.Status)
	return posted
}

func (e *engine) stock(t *testing.T, locationID, itemID int) core.LocationStock {
	t.Helper()
	st, err := e.inv.GetStock(context.Background(), locationID, itemID)
	require.NoError(t, err)
	return *st
}

func TestPeriod_OnlyOneOpen(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()

	mar := e.openMarch(t)
	apr, err := e.periods.CreatePeriod(ctx, "2026-04", march.end.AddDate(0, 0, 1), time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	_, err = e.periods.OpenPeriod(ctx, apr.ID)
	assert.ErrorIs(t, err, core.ErrPeriodConflict)

	cur, err := e.periods.GetCurrentPeriod(ctx)
	require.NoError(t, err)
	assert.Equal(t, mar.ID, cur.ID)

	_, err = e.periods.CreatePeriod(ctx, "overlap", march.mid, march.mid.AddDate(0, 1, 0))
	assert.ErrorIs(t, err, core.ErrPeriodConflict)
}

func TestPeriod_PricesLockOnOpen(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()

	p, err := e.periods.CreatePeriod(ctx, "2026-03", march.start, march.end)
	require.NoError(t, err)
	require.NoError(t, e.periods.SetPeriodPrice(ctx, p.ID, e.rice, d("10.00")))

	_, err = e.periods.OpenPeriod(ctx, p.ID)
	require.NoError(t, err)

	err = e.periods.SetPeriodPrice(ctx, p.ID, e.rice, d("11.00"))
	assert.ErrorIs(t, err, core.ErrPeriodConflict)
}

func TestDelivery_PostingRecalculatesWACAndFlagsPriceVariance(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()

	p, err := e.periods.CreatePeriod(ctx, "2026-03", march.start, march.end)
	require.NoError(t, err)
	require.NoError(t, e.periods.SetPeriodPrice(ctx, p.ID, e.rice, d("10.00")))
	_, err = e.periods.OpenPeriod(ctx, p.ID)
	require.NoError(t, err)

	first := e.receive(t, p.ID, e.kitchen, e.rice, "100", "10.00")
	assert.Empty(t, first.PriceVariances)

	second := e.receive(t, p.ID, e.kitchen, e.rice, "50", "12.00")
	require.Len(t, second.PriceVariances, 1)
	ncr := second.PriceVariances[0]
	assert.Equal(t, core.NCRPriceVariance, ncr.Type)
	assert.Equal(t, core.NCROpen, ncr.Status)
	assert.Equal(t, "100.00", ncr.Value.StringFixed(2))

	st := e.stock(t, e.kitchen, e.rice)
	assert.True(t, st.OnHand.Equal(d("150")))
	assert.Equal(t, "10.6667", st.WAC.StringFixed(4))

	sum, err := e.ncrs.GetAllNCRSummaryForPeriod(ctx, p.ID, e.kitchen)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Open.Count)
	require.NotNil(t, sum.Open.Items[0].ItemName)
	assert.Equal(t, "Rice", *sum.Open.Items[0].ItemName)
	require.NotNil(t, sum.Open.Items[0].SupplierName)
	assert.Equal(t, "Fresh Foods Ltd", *sum.Open.Items[0].SupplierName)
}

func TestIssue_InsufficientStockLeavesLedgerUnchanged(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()
	p := e.openMarch(t)
	e.receive(t, p.ID, e.kitchen, e.rice, "10", "2.50")

	issue, err := e.issues.CreateIssue(ctx, core.IssueInput{
		PeriodID: p.ID, LocationID: e.kitchen, CostCentre: core.CostCentreFood, IssueDate: march.mid,
		Lines: []core.StockRequest{{ItemID: e.rice, Quantity: d("15")}, {ItemID: e.oil, Quantity: d("1")}},
	})
	require.NoError(t, err)

	_, err = e.issues.PostIssue(ctx, issue.ID)
	var ise *core.InsufficientStockError
	require.True(t, errors.As(err, &ise), "got %v", err)
	require.Len(t, ise.Items, 2)
	assert.Equal(t, "RICE", ise.Items[0].ItemCode)
	assert.True(t, ise.Items[0].Shortfall.Equal(d("5")))
	assert.Equal(t, "OIL", ise.Items[1].ItemCode)

	assert.True(t, e.stock(t, e.kitchen, e.rice).OnHand.Equal(d("10")))
	got, err := e.issues.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, core.IssueDraft, got.Status)

	ok, err := e.issues.CreateIssue(ctx, core.IssueInput{
		PeriodID: p.ID, LocationID: e.kitchen, CostCentre: core.CostCentreFood, IssueDate: march.mid,
		Lines: []core.StockRequest{{ItemID: e.rice, Quantity: d("4")}},
	})
	require.NoError(t, err)
	posted, err := e.issues.PostIssue(ctx, ok.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.00", posted.TotalValue().StringFixed(2))
	assert.True(t, e.stock(t, e.kitchen, e.rice).OnHand.Equal(d("6")))
}

func TestTransfer_ApprovalMovesBothLedgersOrNeither(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()
	p := e.openMarch(t)
	e.receive(t, p.ID, e.store, e.rice, "40", "3.00")
	e.receive(t, p.ID, e.kitchen, e.rice, "10", "4.00")

	newTransfer := func(q string) *core.Transfer {
		tr, err := e.transfers.CreateTransfer(ctx, core.TransferInput{
			PeriodID: p.ID, SourceLocationID: e.store, DestinationLocationID: e.kitchen,
			Lines: []core.StockRequest{{ItemID: e.rice, Quantity: d(q)}},
		})
		require.NoError(t, err)
		tr, err = e.transfers.SubmitTransfer(ctx, tr.ID)
		require.NoError(t, err)
		return tr
	}

	big := newTransfer("41")
	_, err := e.transfers.ApproveTransfer(ctx, big.ID, "supervisor")
	assert.ErrorIs(t, err, core.ErrInsufficientStock)
	assert.True(t, e.stock(t, e.store, e.rice).OnHand.Equal(d("40")))
	assert.True(t, e.stock(t, e.kitchen, e.rice).OnHand.Equal(d("10")))

	ok := newTransfer("30")
	approved, err := e.transfers.ApproveTransfer(ctx, ok.ID, "supervisor")
	require.NoError(t, err)
	assert.Equal(t, core.TransferApproved, approved.Status)

	src := e.stock(t, e.store, e.rice)
	dst := e.stock(t, e.kitchen, e.rice)
	assert.True(t, src.OnHand.Equal(d("10")))
	assert.True(t, dst.OnHand.Equal(d("40")))
	// (10·4 + 30·3) / 40
	assert.Equal(t, "3.2500", dst.WAC.StringFixed(4))

	_, err = e.transfers.RejectTransfer(ctx, ok.ID, "supervisor", "too late")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	rejected, err := e.transfers.RejectTransfer(ctx, big.ID, "supervisor", "not enough stock")
	require.NoError(t, err)
	_, err = e.transfers.ApproveTransfer(ctx, rejected.ID, "supervisor")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestDelivery_OverDeliveryNeedsApprovalAndRejectionIsFinal(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()
	p := e.openMarch(t)

	po, err := e.pos.CreatePO(ctx, e.supplier, "PO-1", []core.PurchaseOrderLineInput{
		{ItemID: e.rice, Quantity: d("20"), UnitPrice: d("5")},
	})
	require.NoError(t, err)
	lineID := po.Lines[0].ID

	create := func(q string) *core.DeliveryPostResult {
		res, err := e.deliver.CreateDelivery(ctx, core.DeliveryInput{
			PeriodID: p.ID, LocationID: e.kitchen, SupplierID: e.supplier, PurchaseOrderID: &po.ID,
			DeliveryDate: march.mid,
			Lines:        []core.DeliveryLineInput{{ItemID: e.rice, POLineID: &lineID, Quantity: d(q), UnitPrice: d("5")}},
		})
		require.NoError(t, err)
		return res
	}

	over := create("25")
	assert.True(t, over.RequiresApproval)
	assert.Equal(t, core.DeliveryPendingApproval, over.Delivery.Status)
	require.Len(t, over.OverDelivered, 1)

	_, err = e.deliver.PostDelivery(ctx, over.Delivery.ID)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	_, err = e.deliver.RejectOverDelivery(ctx, over.Delivery.ID, "supervisor", "wrong quantity")
	require.NoError(t, err)
	_, err = e.deliver.ApproveOverDelivery(ctx, over.Delivery.ID, "supervisor")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
	assert.True(t, e.stock(t, e.kitchen, e.rice).OnHand.IsZero())

	second := create("25")
	approved, err := e.deliver.ApproveOverDelivery(ctx, second.Delivery.ID, "supervisor")
	require.NoError(t, err)
	assert.Equal(t, core.DeliveryPosted, approved.Delivery.Status)
	assert.True(t, e.stock(t, e.kitchen, e.rice).OnHand.Equal(d("25")))

	rem, err := e.pos.RemainingQuantity(ctx, lineID)
	require.NoError(t, err)
	assert.True(t, rem.IsZero())
}

func TestPeriodClose_SnapshotsEveryLocation(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()
	p := e.openMarch(t)
	apr, err := e.periods.CreatePeriod(ctx, "2026-04", time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	received := e.receive(t, p.ID, e.kitchen, e.rice, "100", "2.00")
	lineID := received.Delivery.Lines[0].ID
	draft, err := e.issues.CreateIssue(ctx, core.IssueInput{
		PeriodID: p.ID, LocationID: e.kitchen, CostCentre: core.CostCentreFood, IssueDate: march.mid,
		Lines: []core.StockRequest{{ItemID: e.rice, Quantity: d("30")}},
	})
	require.NoError(t, err)
	_, err = e.ncrs.CreateManualNCR(ctx, core.NCRInput{LocationID: e.kitchen, DeliveryLineID: &lineID, Reason: "damaged sacks", Value: d("12.00")})
	require.NoError(t, err)

	first, err := e.periods.CheckCloseReadiness(ctx, p.ID)
	require.NoError(t, err)
	second, err := e.periods.CheckCloseReadiness(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Blockers, second.Blockers)
	require.Len(t, first.Blockers, 1)
	assert.Equal(t, core.BlockerDraftIssue, first.Blockers[0].Kind)

	_, err = e.periods.RequestClose(ctx, p.ID)
	assert.ErrorIs(t, err, core.ErrPeriodConflict)

	_, err = e.issues.PostIssue(ctx, draft.ID)
	require.NoError(t, err)
	require.NoError(t, e.periods.RecordMandays(ctx, core.MandayEntry{PeriodID: p.ID, LocationID: e.kitchen, Date: march.mid, CrewCount: 9, ExtraCount: 1}))
	require.NoError(t, e.periods.SaveAdjustments(ctx, core.Adjustments{PeriodID: p.ID, LocationID: e.kitchen, Credits: d("10")}))

	readiness, err := e.periods.RequestClose(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, readiness.Ready)
	require.Len(t, readiness.Warnings, 1)

	// Postings are refused once the close is requested.
	_, err = e.issues.CreateIssue(ctx, core.IssueInput{
		PeriodID: p.ID, LocationID: e.kitchen, CostCentre: core.CostCentreFood, IssueDate: march.mid,
		Lines: []core.StockRequest{{ItemID: e.rice, Quantity: d("1")}},
	})
	assert.ErrorIs(t, err, core.ErrPeriodConflict)

	res, err := e.periods.ExecuteClose(ctx, p.ID, "supervisor")
	require.NoError(t, err)
	require.Len(t, res.Locations, 2)
	require.NotNil(t, res.NextPeriodID)
	assert.Equal(t, apr.ID, *res.NextPeriodID)

	recs, err := e.reports.GetReconciliations(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	kit := recs[0]
	assert.Equal(t, "KIT", kit.LocationCode)
	assert.Equal(t, "200.00", kit.Receipts.StringFixed(2))
	assert.Equal(t, "60.00", kit.Issues.StringFixed(2))
	assert.Equal(t, "140.00", kit.ClosingStock.StringFixed(2))
	// 0 + 200 − 140 − 10 credits
	assert.Equal(t, "50.00", kit.Consumption.StringFixed(2))
	assert.Equal(t, 10, kit.TotalMandays)
	require.NotNil(t, kit.MandayCost)
	assert.Equal(t, "5.00", kit.MandayCost.StringFixed(2))
	assert.Nil(t, recs[1].MandayCost)

	var opening decimal.Decimal
	require.NoError(t, e.pool.QueryRow(ctx,
		`SELECT opening_value FROM period_opening_balances WHERE period_id = $1 AND location_id = $2`,
		apr.ID, e.kitchen).Scan(&opening))
	assert.Equal(t, "140.00", opening.StringFixed(2))

	_, err = e.periods.ExecuteClose(ctx, p.ID, "supervisor")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestPeriod_NextCannotOpenUntilPreviousIsClosed(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()
	mar := e.openMarch(t)
	e.receive(t, mar.ID, e.kitchen, e.rice, "100", "2.00")
	apr, err := e.periods.CreatePeriod(ctx, "2026-04", april.start, april.end)
	require.NoError(t, err)

	_, err = e.reports.PreviewReconciliation(ctx, apr.ID, e.kitchen)
	assert.ErrorIs(t, err, core.ErrPeriodConflict)

	_, err = e.periods.RequestClose(ctx, mar.ID)
	require.NoError(t, err)

	_, err = e.periods.OpenPeriod(ctx, apr.ID)
	assert.ErrorIs(t, err, core.ErrPeriodConflict)
	_, err = e.deliver.CreateDelivery(ctx, core.DeliveryInput{
		PeriodID: apr.ID, LocationID: e.kitchen, SupplierID: e.supplier, DeliveryDate: april.mid,
		Lines: []core.DeliveryLineInput{{ItemID: e.rice, Quantity: d("50"), UnitPrice: d("2.00")}},
	})
	assert.ErrorIs(t, err, core.ErrPeriodConflict)

	_, err = e.periods.ExecuteClose(ctx, mar.ID, "supervisor")
	require.NoError(t, err)
	_, err = e.periods.OpenPeriod(ctx, apr.ID)
	require.NoError(t, err)
	e.receiveOn(t, april.mid, apr.ID, e.kitchen, e.rice, "50", "2.00")

	recs, err := e.reports.GetReconciliations(ctx, mar.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	kit := recs[0]
	assert.Equal(t, "200.00", kit.Receipts.StringFixed(2))
	assert.Equal(t, "200.00", kit.ClosingStock.StringFixed(2))
	assert.Equal(t, "0.00", kit.Consumption.StringFixed(2))

	var opening decimal.Decimal
	require.NoError(t, e.pool.QueryRow(ctx,
		`SELECT opening_value FROM period_opening_balances WHERE period_id = $1 AND location_id = $2`,
		apr.ID, e.kitchen).Scan(&opening))
	assert.Equal(t, "200.00", opening.StringFixed(2))

	// A closed period previews its snapshot, not the live ledger.
	preview, err := e.reports.PreviewReconciliation(ctx, mar.ID, e.kitchen)
	require.NoError(t, err)
	assert.True(t, preview.Snapshot)
	assert.Equal(t, "200.00", preview.Input.ClosingStock.StringFixed(2))
	assert.True(t, preview.Result.Consumption.Equal(kit.Consumption))

	live, err := e.reports.PreviewReconciliation(ctx, apr.ID, e.kitchen)
	require.NoError(t, err)
	assert.False(t, live.Snapshot)
	assert.Equal(t, "300.00", live.Input.ClosingStock.StringFixed(2))
	assert.Equal(t, "100.00", live.Input.Receipts.StringFixed(2))
	assert.Equal(t, "0.00", live.Result.Consumption.StringFixed(2))
}

func TestNCRSummary_UnlinkedNCRsFollowCreationDate(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()
	mar := e.openMarch(t)

	inside, err := e.ncrs.CreateManualNCR(ctx, core.NCRInput{LocationID: e.kitchen, Reason: "spoiled stock", Value: d("5.00")})
	require.NoError(t, err)
	outside, err := e.ncrs.CreateManualNCR(ctx, core.NCRInput{LocationID: e.kitchen, Reason: "late claim", Value: d("7.00")})
	require.NoError(t, err)
	otherLocation, err := e.ncrs.CreateManualNCR(ctx, core.NCRInput{LocationID: e.store, Reason: "torn bags", Value: d("3.00")})
	require.NoError(t, err)

	_, err = e.pool.Exec(ctx, `UPDATE ncrs SET created_at = '2026-03-20 12:00:00+00' WHERE id = ANY($1)`,
		[]int{inside.ID, otherLocation.ID})
	require.NoError(t, err)
	_, err = e.pool.Exec(ctx, `UPDATE ncrs SET created_at = '2026-04-02 12:00:00+00' WHERE id = $1`, outside.ID)
	require.NoError(t, err)

	sum, err := e.ncrs.GetAllNCRSummaryForPeriod(ctx, mar.ID, e.kitchen)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Open.Count)
	assert.Equal(t, inside.ID, sum.Open.Items[0].ID)
	assert.Equal(t, "5.00", sum.Open.Total.StringFixed(2))
	assert.Nil(t, sum.Open.Items[0].ItemName)
}

func TestIssue_ConcurrentPostingsNeverOversell(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()
	p := e.openMarch(t)
	e.receive(t, p.ID, e.kitchen, e.rice, "10", "2.50")

	ids := make([]int, 2)
	for i := range ids {
		issue, err := e.issues.CreateIssue(ctx, core.IssueInput{
			PeriodID: p.ID, LocationID: e.kitchen, CostCentre: core.CostCentreFood, IssueDate: march.mid,
			Lines: []core.StockRequest{{ItemID: e.rice, Quantity: d("6")}},
		})
		require.NoError(t, err)
		ids[i] = issue.ID
	}

	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i, id int) {
			defer wg.Done()
			_, errs[i] = e.issues.PostIssue(ctx, id)
		}(i, id)
	}
	wg.Wait()

	var posted, short int
	for _, err := range errs {
		switch {
		case err == nil:
			posted++
		case errors.Is(err, core.ErrInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, posted)
	assert.Equal(t, 1, short)
	assert.True(t, e.stock(t, e.kitchen, e.rice).OnHand.Equal(d("4")))
}

func TestDelivery_ConcurrentPostingsInOppositeLineOrder(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()
	p := e.openMarch(t)

	create := func(first, second int) int {
		res, err := e.deliver.CreateDelivery(ctx, core.DeliveryInput{
			PeriodID: p.ID, LocationID: e.kitchen, SupplierID: e.supplier, DeliveryDate: march.mid,
			Lines: []core.DeliveryLineInput{
				{ItemID: first, Quantity: d("1"), UnitPrice: d("2.00")},
				{ItemID: second, Quantity: d("1"), UnitPrice: d("2.00")},
			},
		})
		require.NoError(t, err)
		return res.Delivery.ID
	}

	const rounds = 5
	var ids []int
	for i := 0; i < rounds; i++ {
		ids = append(ids, create(e.rice, e.oil), create(e.oil, e.rice))
	}

	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i, id int) {
			defer wg.Done()
			_, errs[i] = e.deliver.PostDelivery(ctx, id)
		}(i, id)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.True(t, e.stock(t, e.kitchen, e.rice).OnHand.Equal(d("10")))
	assert.True(t, e.stock(t, e.kitchen, e.oil).OnHand.Equal(d("10")))
}

func TestPeriodClose_FailureLeavesPeriodPendingAndWritesNothing(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()
	p := e.openMarch(t)
	e.receive(t, p.ID, e.kitchen, e.rice, "100", "2.00")
	e.receive(t, p.ID, e.store, e.oil, "10", "1.00")

	_, err := e.periods.RequestClose(ctx, p.ID)
	require.NoError(t, err)

	// The store is snapshotted after the kitchen; its row already exists.
	_, err = e.pool.Exec(ctx, `
		INSERT INTO stock_snapshots (period_id, location_id, item_id, quantity, wac, value)
		VALUES ($1, $2, $3, 1, 1, 1)`, p.ID, e.store, e.oil)
	require.NoError(t, err)

	_, err = e.periods.ExecuteClose(ctx, p.ID, "supervisor")
	require.ErrorIs(t, err, core.ErrPartialClose)

	got, err := e.periods.GetPeriod(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, core.PeriodPendingClose, got.Status)

	count := func(table string) int {
		var n int
		require.NoError(t, e.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+` WHERE period_id = $1`, p.ID).Scan(&n))
		return n
	}
	assert.Equal(t, 0, count("reconciliations"))
	assert.Equal(t, 1, count("stock_snapshots"))

	_, err = e.pool.Exec(ctx, `DELETE FROM stock_snapshots WHERE period_id = $1`, p.ID)
	require.NoError(t, err)
	_, err = e.periods.ExecuteClose(ctx, p.ID, "supervisor")
	require.NoError(t, err)
	assert.Equal(t, 2, count("reconciliations"))
}
