package web

import (
	"net/http"

	"inventory-engine/internal/app"
	"inventory-engine/internal/core"
)

// apiCreateNCR handles POST /api/ncrs.
func (h *Handler) apiCreateNCR(w http.ResponseWriter, r *http.Request) {
	var req createNCRRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	n, err := h.svc.CreateNCR(r.Context(), core.NCRInput{
		LocationID:     req.LocationID,
		DeliveryLineID: req.DeliveryLineID,
		Reason:         req.Reason,
		Value:          req.Value,
		CreatedBy:      actor(r),
	})
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeCreated(w, n)
}

// apiGetNCR handles GET /api/ncrs/{id}.
func (h *Handler) apiGetNCR(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	n, err := h.svc.GetNCR(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, n)
}

// apiUpdateNCRStatus handles POST /api/ncrs/{id}/status.
func (h *Handler) apiUpdateNCRStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	var req updateNCRStatusRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	var impact *core.FinancialImpact
	if req.FinancialImpact != nil {
		fi := core.FinancialImpact(*req.FinancialImpact)
		impact = &fi
	}
	n, err := h.svc.UpdateNCRStatus(r.Context(), app.UpdateNCRStatusRequest{
		ID: id, Status: core.NCRStatus(req.Status), FinancialImpact: impact,
	})
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, n)
}

// apiNCRSummary handles GET /api/periods/{id}/locations/{locationID}/ncr-summary.
func (h *Handler) apiNCRSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	locationID, ok := urlInt(w, r, "locationID")
	if !ok {
		return
	}
	sum, err := h.svc.GetNCRSummary(r.Context(), id, locationID)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, sum)
}
