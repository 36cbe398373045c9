package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"inventory-engine/internal/app"
	"inventory-engine/internal/core"
)

// apiCalculateReconciliation handles POST /api/reconciliation/calculate.
func (h *Handler) apiCalculateReconciliation(w http.ResponseWriter, r *http.Request) {
	var req calculateReconciliationRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.CalculateReconciliation(r.Context(), app.CalculateReconciliationRequest{
		Input: core.ReconciliationInput{
			OpeningStock:       req.OpeningStock,
			Receipts:           req.Receipts,
			TransfersIn:        req.TransfersIn,
			TransfersOut:       req.TransfersOut,
			ClosingStock:       req.ClosingStock,
			BackCharges:        req.BackCharges,
			Credits:            req.Credits,
			Condemnations:      req.Condemnations,
			GeneralAdjustments: req.GeneralAdjustments,
		},
		TotalMandays: req.TotalMandays,
	})
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, res)
}

// apiPreviewReconciliation handles
// GET /api/periods/{id}/locations/{locationID}/reconciliation-preview.
func (h *Handler) apiPreviewReconciliation(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	locationID, ok := urlInt(w, r, "locationID")
	if !ok {
		return
	}
	res, err := h.svc.PreviewReconciliation(r.Context(), id, locationID)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, res)
}

// apiListReconciliations handles GET /api/periods/{id}/reconciliations.
func (h *Handler) apiListReconciliations(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.GetReconciliations(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, res)
}

// apiExportReconciliations handles GET /api/periods/{id}/reconciliations/export.
// The workbook is rendered fully before any byte is sent so failures still
// produce a JSON error.
func (h *Handler) apiExportReconciliations(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.svc.ExportReconciliations(r.Context(), id, &buf); err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=reconciliation-%d.xlsx", id))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}
