package web

import (
	"errors"
	"net/http"

	"inventory-engine/internal/app"
	"inventory-engine/internal/core"
)

// apiListPeriods handles GET /api/periods.
func (h *Handler) apiListPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.svc.ListPeriods(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	if periods == nil {
		periods = []core.Period{}
	}
	writeJSON(w, periods)
}

// apiCreatePeriod handles POST /api/periods.
func (h *Handler) apiCreatePeriod(w http.ResponseWriter, r *http.Request) {
	var req createPeriodRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	p, err := h.svc.CreatePeriod(r.Context(), app.CreatePeriodRequest{
		Name:      req.Name,
		StartDate: parseDate(req.StartDate),
		EndDate:   parseDate(req.EndDate),
	})
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeCreated(w, p)
}

// apiCurrentPeriod handles GET /api/periods/current.
func (h *Handler) apiCurrentPeriod(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetCurrentPeriod(r.Context())
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeError(w, r, "no period is open", "NOT_FOUND", http.StatusNotFound)
			return
		}
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, p)
}

// apiGetPeriod handles GET /api/periods/{id}.
func (h *Handler) apiGetPeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	p, err := h.svc.GetPeriod(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, p)
}

// apiListPeriodPrices handles GET /api/periods/{id}/prices.
func (h *Handler) apiListPeriodPrices(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	prices, err := h.svc.ListPeriodPrices(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	if prices == nil {
		prices = []core.PeriodPrice{}
	}
	writeJSON(w, prices)
}

// apiSetPeriodPrice handles POST /api/periods/{id}/prices.
func (h *Handler) apiSetPeriodPrice(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	var req setPeriodPriceRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.SetPeriodPrice(r.Context(), app.SetPeriodPriceRequest{
		PeriodID: id, ItemID: req.ItemID, Price: req.Price,
	}); err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apiCopyPrices handles POST /api/periods/{id}/prices/copy.
func (h *Handler) apiCopyPrices(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	var req copyPricesRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.CopyPrices(r.Context(), req.FromPeriodID, id)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, res)
}

// apiOpenPeriod handles POST /api/periods/{id}/open.
func (h *Handler) apiOpenPeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	p, err := h.svc.OpenPeriod(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, p)
}

// apiCloseReadiness handles GET /api/periods/{id}/readiness.
func (h *Handler) apiCloseReadiness(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.CheckCloseReadiness(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, res)
}

// apiRequestClose handles POST /api/periods/{id}/request-close. A blocked
// request answers 409 with the readiness report as details.
func (h *Handler) apiRequestClose(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.RequestClose(r.Context(), id)
	if err != nil {
		var details any
		if res != nil {
			details = res
		}
		h.writeServiceError(w, r, err, details)
		return
	}
	writeJSON(w, res)
}

// apiClosePeriod handles POST /api/periods/{id}/close.
func (h *Handler) apiClosePeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.ClosePeriod(r.Context(), id, actor(r))
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, res)
}

// apiListMandays handles GET /api/periods/{id}/locations/{locationID}/mandays.
func (h *Handler) apiListMandays(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	locationID, ok := urlInt(w, r, "locationID")
	if !ok {
		return
	}
	res, err := h.svc.ListMandays(r.Context(), id, locationID)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, res)
}

// apiRecordMandays handles POST /api/periods/{id}/locations/{locationID}/mandays.
func (h *Handler) apiRecordMandays(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	locationID, ok := urlInt(w, r, "locationID")
	if !ok {
		return
	}
	var req recordMandaysRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.RecordMandays(r.Context(), core.MandayEntry{
		PeriodID:   id,
		LocationID: locationID,
		Date:       parseDate(req.Date),
		CrewCount:  req.CrewCount,
		ExtraCount: req.ExtraCount,
	}); err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apiGetAdjustments handles GET /api/periods/{id}/locations/{locationID}/adjustments.
func (h *Handler) apiGetAdjustments(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	locationID, ok := urlInt(w, r, "locationID")
	if !ok {
		return
	}
	adj, err := h.svc.GetAdjustments(r.Context(), id, locationID)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, adj)
}

// apiSaveAdjustments handles PUT /api/periods/{id}/locations/{locationID}/adjustments.
func (h *Handler) apiSaveAdjustments(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	locationID, ok := urlInt(w, r, "locationID")
	if !ok {
		return
	}
	var req adjustmentsRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.SaveAdjustments(r.Context(), core.Adjustments{
		PeriodID:      id,
		LocationID:    locationID,
		BackCharges:   req.BackCharges,
		Credits:       req.Credits,
		Condemnations: req.Condemnations,
		General:       req.General,
	}); err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
