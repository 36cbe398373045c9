package web

import (
	"net/http"

	"inventory-engine/internal/app"
	"inventory-engine/internal/core"
)

// ── Purchase orders ───────────────────────────────────────────────────────────

// apiCreatePurchaseOrder handles POST /api/purchase-orders.
func (h *Handler) apiCreatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req createPurchaseOrderRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	lines := make([]core.PurchaseOrderLineInput, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = core.PurchaseOrderLineInput{ItemID: l.ItemID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	po, err := h.svc.CreatePurchaseOrder(r.Context(), app.CreatePurchaseOrderRequest{
		SupplierID: req.SupplierID, PONumber: req.PONumber, Lines: lines,
	})
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeCreated(w, po)
}

// apiGetPurchaseOrder handles GET /api/purchase-orders/{id}.
func (h *Handler) apiGetPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	po, err := h.svc.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, po)
}

// ── Deliveries ────────────────────────────────────────────────────────────────

// apiCreateDelivery handles POST /api/deliveries. An over-delivery answers 202
// with the delivery held for approval.
func (h *Handler) apiCreateDelivery(w http.ResponseWriter, r *http.Request) {
	var req createDeliveryRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	lines := make([]core.DeliveryLineInput, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = core.DeliveryLineInput{ItemID: l.ItemID, POLineID: l.POLineID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	res, err := h.svc.CreateDelivery(r.Context(), core.DeliveryInput{
		PeriodID:        req.PeriodID,
		LocationID:      req.LocationID,
		SupplierID:      req.SupplierID,
		PurchaseOrderID: req.PurchaseOrderID,
		InvoiceNumber:   req.InvoiceNumber,
		DeliveryDate:    parseDate(req.DeliveryDate),
		CreatedBy:       actor(r),
		Lines:           lines,
	})
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeDeliveryResult(w, res, http.StatusCreated)
}

func writeDeliveryResult(w http.ResponseWriter, res *core.DeliveryPostResult, okStatus int) {
	if res.RequiresApproval {
		okStatus = http.StatusAccepted
	}
	writeStatus(w, okStatus, res)
}

// apiGetDelivery handles GET /api/deliveries/{id}.
func (h *Handler) apiGetDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	d, err := h.svc.GetDelivery(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, d)
}

// apiListDeliveries handles GET /api/periods/{id}/deliveries.
func (h *Handler) apiListDeliveries(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	ds, err := h.svc.ListDeliveries(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	if ds == nil {
		ds = []core.Delivery{}
	}
	writeJSON(w, ds)
}

// apiPostDelivery handles POST /api/deliveries/{id}/post.
func (h *Handler) apiPostDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.PostDelivery(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeDeliveryResult(w, res, http.StatusOK)
}

// apiApproveOverDelivery handles POST /api/deliveries/{id}/approve.
func (h *Handler) apiApproveOverDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.ApproveOverDelivery(r.Context(), id, actor(r))
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, res)
}

// apiRejectOverDelivery handles POST /api/deliveries/{id}/reject.
func (h *Handler) apiRejectOverDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	var req rejectRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	d, err := h.svc.RejectOverDelivery(r.Context(), id, actor(r), req.Reason)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, d)
}

// ── Issues ────────────────────────────────────────────────────────────────────

// apiCreateIssue handles POST /api/issues.
func (h *Handler) apiCreateIssue(w http.ResponseWriter, r *http.Request) {
	var req createIssueRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	issue, err := h.svc.CreateIssue(r.Context(), core.IssueInput{
		PeriodID:   req.PeriodID,
		LocationID: req.LocationID,
		CostCentre: core.CostCentre(req.CostCentre),
		IssueDate:  parseDate(req.IssueDate),
		CreatedBy:  actor(r),
		Lines:      stockRequests(req.Lines),
	})
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeCreated(w, issue)
}

// apiGetIssue handles GET /api/issues/{id}.
func (h *Handler) apiGetIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	issue, err := h.svc.GetIssue(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, issue)
}

// apiPostIssue handles POST /api/issues/{id}/post.
func (h *Handler) apiPostIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	issue, err := h.svc.PostIssue(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, issue)
}

// ── Transfers ─────────────────────────────────────────────────────────────────

// apiCreateTransfer handles POST /api/transfers.
func (h *Handler) apiCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req createTransferRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	t, err := h.svc.CreateTransfer(r.Context(), core.TransferInput{
		PeriodID:              req.PeriodID,
		SourceLocationID:      req.SourceLocationID,
		DestinationLocationID: req.DestinationLocationID,
		CreatedBy:             actor(r),
		Lines:                 stockRequests(req.Lines),
	})
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeCreated(w, t)
}

// apiGetTransfer handles GET /api/transfers/{id}.
func (h *Handler) apiGetTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	t, err := h.svc.GetTransfer(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, t)
}

// apiSubmitTransfer handles POST /api/transfers/{id}/submit.
func (h *Handler) apiSubmitTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	t, err := h.svc.SubmitTransfer(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, t)
}

// apiApproveTransfer handles POST /api/transfers/{id}/approve.
func (h *Handler) apiApproveTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	t, err := h.svc.ApproveTransfer(r.Context(), id, actor(r))
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, t)
}

// apiRejectTransfer handles POST /api/transfers/{id}/reject.
func (h *Handler) apiRejectTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	var req rejectRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	t, err := h.svc.RejectTransfer(r.Context(), id, actor(r), req.Reason)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, t)
}
