package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"inventory-engine/internal/app"
	"inventory-engine/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

// fakeService overrides only what each test drives; any other call panics
// through the nil embedded interface.
type fakeService struct {
	app.ApplicationService

	closedBy    string
	issueErr    error
	delivery    *core.DeliveryPostResult
	ncrInput    core.NCRInput
	ncrStatus   app.UpdateNCRStatusRequest
	readiness   *core.CloseReadiness
	exportBytes string
}

func (f *fakeService) ClosePeriod(_ context.Context, id int, actor string) (*core.CloseResult, error) {
	f.closedBy = actor
	return &core.CloseResult{PeriodID: id}, nil
}

func (f *fakeService) RequestClose(_ context.Context, id int) (*core.CloseReadiness, error) {
	return f.readiness, &core.PeriodConflictError{PeriodID: id, Reason: "close blocked"}
}

func (f *fakeService) PostIssue(context.Context, int) (*core.Issue, error) {
	return nil, f.issueErr
}

func (f *fakeService) GetTransfer(_ context.Context, id int) (*core.Transfer, error) {
	return nil, fmt.Errorf("transfer %d: %w", id, core.ErrNotFound)
}

func (f *fakeService) CreateDelivery(context.Context, core.DeliveryInput) (*core.DeliveryPostResult, error) {
	return f.delivery, nil
}

func (f *fakeService) CreateNCR(_ context.Context, in core.NCRInput) (*core.NCR, error) {
	f.ncrInput = in
	return &core.NCR{ID: 1}, nil
}

func (f *fakeService) UpdateNCRStatus(_ context.Context, req app.UpdateNCRStatusRequest) (*core.NCR, error) {
	f.ncrStatus = req
	return &core.NCR{ID: req.ID}, nil
}

func (f *fakeService) ExportReconciliations(_ context.Context, _ int, w io.Writer) error {
	_, err := io.WriteString(w, f.exportBytes)
	return err
}

func token(t *testing.T, role string) string {
	t.Helper()
	tok, err := IssueToken(testSecret, "user-7", role, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, h http.Handler, method, path, tok, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth_IsPublic(t *testing.T) {
	h := NewHandler(&fakeService{}, "", testSecret, nil)
	rec := do(t, h, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAuth(t *testing.T) {
	svc := &fakeService{}
	h := NewHandler(svc, "", testSecret, nil)

	rec := do(t, h, http.MethodPost, "/api/periods/3/close", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged, err := IssueToken("other-secret", "user-7", RoleAdmin, time.Hour)
	require.NoError(t, err)
	rec = do(t, h, http.MethodPost, "/api/periods/3/close", forged, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/periods/3/close", token(t, RoleOperator), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, svc.closedBy)

	rec = do(t, h, http.MethodPost, "/api/periods/3/close", token(t, RoleSupervisor), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-7", svc.closedBy)
}

func TestValidationFailure(t *testing.T) {
	h := NewHandler(&fakeService{}, "", testSecret, nil)

	rec := do(t, h, http.MethodPost, "/api/issues", token(t, RoleOperator),
		`{"period_id":1,"location_id":2,"cost_centre":"BAR","issue_date":"2026-03-04","lines":[{"item_id":1,"quantity":"0"}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	details := body["details"].(map[string]any)
	assert.Equal(t, "oneof", details["cost_centre"])
	assert.Equal(t, "gt", details["lines[0].quantity"])

	rec = do(t, h, http.MethodPost, "/api/issues", token(t, RoleOperator), `{"period_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInsufficientStockListsEveryItem(t *testing.T) {
	svc := &fakeService{issueErr: fmt.Errorf("post issue 4: %w", &core.InsufficientStockError{
		LocationID: 2,
		Items: []core.StockShortfall{
			{ItemID: 1, ItemCode: "RICE", Requested: decimal.NewFromInt(10), Available: decimal.NewFromInt(4), Shortfall: decimal.NewFromInt(6)},
			{ItemID: 2, ItemCode: "OIL", Requested: decimal.NewFromInt(2), Available: decimal.Zero, Shortfall: decimal.NewFromInt(2)},
		},
	})}
	h := NewHandler(svc, "", testSecret, nil)

	rec := do(t, h, http.MethodPost, "/api/issues/4/post", token(t, RoleOperator), "")
	require.Equal(t, http.StatusConflict, rec.Code)

	body := decodeError(t, rec)
	assert.Equal(t, "INSUFFICIENT_STOCK", body["code"])
	items := body["details"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "RICE", items[0].(map[string]any)["item_code"])
}

func TestRequestClose_BlockedCarriesReadiness(t *testing.T) {
	svc := &fakeService{readiness: &core.CloseReadiness{
		PeriodID: 5,
		Blockers: []core.CloseBlocker{{Kind: core.BlockerDraftIssue, DocumentID: 11}},
	}}
	h := NewHandler(svc, "", testSecret, nil)

	rec := do(t, h, http.MethodPost, "/api/periods/5/request-close", token(t, RoleAdmin), "")
	require.Equal(t, http.StatusConflict, rec.Code)

	body := decodeError(t, rec)
	assert.Equal(t, "PERIOD_CONFLICT", body["code"])
	details := body["details"].(map[string]any)
	assert.Len(t, details["blockers"], 1)
}

func TestNotFound(t *testing.T) {
	h := NewHandler(&fakeService{}, "", testSecret, nil)
	rec := do(t, h, http.MethodGet, "/api/transfers/99", token(t, RoleOperator), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/transfers/abc", token(t, RoleOperator), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateDelivery_OverDeliveryIsAccepted(t *testing.T) {
	payload := `{"period_id":1,"location_id":2,"supplier_id":3,"delivery_date":"2026-03-04",
		"lines":[{"item_id":1,"quantity":"12","unit_price":"10"}]}`

	svc := &fakeService{delivery: &core.DeliveryPostResult{Delivery: &core.Delivery{ID: 8}, RequiresApproval: true}}
	h := NewHandler(svc, "", testSecret, nil)
	rec := do(t, h, http.MethodPost, "/api/deliveries", token(t, RoleOperator), payload)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	svc.delivery = &core.DeliveryPostResult{Delivery: &core.Delivery{ID: 9}}
	rec = do(t, h, http.MethodPost, "/api/deliveries", token(t, RoleOperator), payload)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestNCREndpoints(t *testing.T) {
	svc := &fakeService{}
	h := NewHandler(svc, "", testSecret, nil)

	rec := do(t, h, http.MethodPost, "/api/ncrs", token(t, RoleOperator),
		`{"location_id":2,"reason":"damaged cartons","value":"45.50"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "user-7", svc.ncrInput.CreatedBy)
	assert.True(t, svc.ncrInput.Value.Equal(decimal.RequireFromString("45.50")))
	assert.Nil(t, svc.ncrInput.DeliveryLineID)

	rec = do(t, h, http.MethodPost, "/api/ncrs/6/status", token(t, RoleOperator),
		`{"status":"RESOLVED","financial_impact":"LOSS"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 6, svc.ncrStatus.ID)
	assert.Equal(t, core.NCRResolved, svc.ncrStatus.Status)
	require.NotNil(t, svc.ncrStatus.FinancialImpact)
	assert.Equal(t, core.ImpactLoss, *svc.ncrStatus.FinancialImpact)
}

func TestExportReconciliations(t *testing.T) {
	h := NewHandler(&fakeService{exportBytes: "PK-workbook"}, "", testSecret, nil)
	rec := do(t, h, http.MethodGet, "/api/periods/12/reconciliations/export", token(t, RoleOperator), "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=reconciliation-12.xlsx", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "PK-workbook", rec.Body.String())
}

func TestCORS_Preflight(t *testing.T) {
	h := NewHandler(&fakeService{}, "https://ops.example.com", testSecret, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/items", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://ops.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
