package web

import (
	"net/http"

	"inventory-engine/internal/app"
	"inventory-engine/internal/core"
)

// apiListItems handles GET /api/items.
func (h *Handler) apiListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListItems(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	if items == nil {
		items = []core.Item{}
	}
	writeJSON(w, items)
}

// apiCreateItem handles POST /api/items.
func (h *Handler) apiCreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	item, err := h.svc.CreateItem(r.Context(), app.CreateItemRequest{
		Code:     req.Code,
		Name:     req.Name,
		Unit:     core.UnitOfMeasure(req.Unit),
		Category: req.Category,
		MinStock: req.MinStock,
		MaxStock: req.MaxStock,
	})
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeCreated(w, item)
}

// apiListLocations handles GET /api/locations.
func (h *Handler) apiListLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := h.svc.ListLocations(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	if locs == nil {
		locs = []core.Location{}
	}
	writeJSON(w, locs)
}

// apiCreateLocation handles POST /api/locations.
func (h *Handler) apiCreateLocation(w http.ResponseWriter, r *http.Request) {
	var req createLocationRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	loc, err := h.svc.CreateLocation(r.Context(), app.CreateLocationRequest{
		Code: req.Code, Name: req.Name, Type: core.LocationType(req.Type),
	})
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeCreated(w, loc)
}

// apiCreateSupplier handles POST /api/suppliers.
func (h *Handler) apiCreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req createSupplierRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	sup, err := h.svc.CreateSupplier(r.Context(), app.CreateSupplierRequest{
		Code: req.Code, Name: req.Name, Email: req.Email,
	})
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeCreated(w, sup)
}

// apiStockLevels handles GET /api/locations/{locationID}/stock.
func (h *Handler) apiStockLevels(w http.ResponseWriter, r *http.Request) {
	locationID, ok := urlInt(w, r, "locationID")
	if !ok {
		return
	}
	res, err := h.svc.GetStockLevels(r.Context(), locationID)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, res)
}

// apiValidateStock handles POST /api/locations/{locationID}/stock/validate.
func (h *Handler) apiValidateStock(w http.ResponseWriter, r *http.Request) {
	locationID, ok := urlInt(w, r, "locationID")
	if !ok {
		return
	}
	var req validateStockRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.ValidateStock(r.Context(), app.ValidateStockRequest{
		LocationID: locationID, Lines: stockRequests(req.Lines),
	})
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, res)
}

func stockRequests(lines []stockLine) []core.StockRequest {
	out := make([]core.StockRequest, len(lines))
	for i, l := range lines {
		out[i] = core.StockRequest{ItemID: l.ItemID, Quantity: l.Quantity}
	}
	return out
}
