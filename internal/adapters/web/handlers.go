package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"inventory-engine/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Handler holds the ApplicationService, the chi router and request validation.
type Handler struct {
	svc       app.ApplicationService
	router    chi.Router
	jwtSecret string
	log       *zap.Logger
	validate  *validator.Validate
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, allowedOrigins, jwtSecret string, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{
		svc:       svc,
		jwtSecret: jwtSecret,
		log:       log,
		validate:  newValidator(),
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	r.Use(CORS(allowedOrigins))

	// ── Health (public) ───────────────────────────────────────────────────────
	r.Get("/api/health", h.health)

	// ── Protected API routes (return 401 JSON if unauthenticated) ────────────
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Use(RequestBodyLimit(1 << 20)) // 1 MB

		r.Get("/api/auth/me", h.me)

		// ── Master data ───────────────────────────────────────────────────────
		r.Get("/api/items", h.apiListItems)
		r.Post("/api/items", h.apiCreateItem)
		r.Get("/api/locations", h.apiListLocations)
		r.Post("/api/locations", h.apiCreateLocation)
		r.Post("/api/suppliers", h.apiCreateSupplier)

		// ── Stock ─────────────────────────────────────────────────────────────
		r.Get("/api/locations/{locationID}/stock", h.apiStockLevels)
		r.Post("/api/locations/{locationID}/stock/validate", h.apiValidateStock)

		// ── Periods ───────────────────────────────────────────────────────────
		r.Get("/api/periods", h.apiListPeriods)
		r.Post("/api/periods", h.apiCreatePeriod)
		r.Get("/api/periods/current", h.apiCurrentPeriod)
		r.Get("/api/periods/{id}", h.apiGetPeriod)
		r.Get("/api/periods/{id}/prices", h.apiListPeriodPrices)
		r.Post("/api/periods/{id}/prices", h.apiSetPeriodPrice)
		r.Post("/api/periods/{id}/prices/copy", h.apiCopyPrices)
		r.Get("/api/periods/{id}/readiness", h.apiCloseReadiness)
		r.Get("/api/periods/{id}/deliveries", h.apiListDeliveries)
		r.Get("/api/periods/{id}/locations/{locationID}/mandays", h.apiListMandays)
		r.Post("/api/periods/{id}/locations/{locationID}/mandays", h.apiRecordMandays)
		r.Get("/api/periods/{id}/locations/{locationID}/adjustments", h.apiGetAdjustments)
		r.Put("/api/periods/{id}/locations/{locationID}/adjustments", h.apiSaveAdjustments)
		r.Get("/api/periods/{id}/locations/{locationID}/ncr-summary", h.apiNCRSummary)
		r.Get("/api/periods/{id}/locations/{locationID}/reconciliation-preview", h.apiPreviewReconciliation)
		r.Get("/api/periods/{id}/reconciliations", h.apiListReconciliations)
		r.Get("/api/periods/{id}/reconciliations/export", h.apiExportReconciliations)

		// ── Documents ─────────────────────────────────────────────────────────
		r.Post("/api/purchase-orders", h.apiCreatePurchaseOrder)
		r.Get("/api/purchase-orders/{id}", h.apiGetPurchaseOrder)

		r.Post("/api/deliveries", h.apiCreateDelivery)
		r.Get("/api/deliveries/{id}", h.apiGetDelivery)
		r.Post("/api/deliveries/{id}/post", h.apiPostDelivery)

		r.Post("/api/issues", h.apiCreateIssue)
		r.Get("/api/issues/{id}", h.apiGetIssue)
		r.Post("/api/issues/{id}/post", h.apiPostIssue)

		r.Post("/api/transfers", h.apiCreateTransfer)
		r.Get("/api/transfers/{id}", h.apiGetTransfer)
		r.Post("/api/transfers/{id}/submit", h.apiSubmitTransfer)

		r.Post("/api/ncrs", h.apiCreateNCR)
		r.Get("/api/ncrs/{id}", h.apiGetNCR)
		r.Post("/api/ncrs/{id}/status", h.apiUpdateNCRStatus)

		r.Post("/api/reconciliation/calculate", h.apiCalculateReconciliation)

		// ── Supervisor actions ────────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleSupervisor, RoleAdmin))

			r.Post("/api/periods/{id}/open", h.apiOpenPeriod)
			r.Post("/api/periods/{id}/request-close", h.apiRequestClose)
			r.Post("/api/periods/{id}/close", h.apiClosePeriod)
			r.Post("/api/deliveries/{id}/approve", h.apiApproveOverDelivery)
			r.Post("/api/deliveries/{id}/reject", h.apiRejectOverDelivery)
			r.Post("/api/transfers/{id}/approve", h.apiApproveTransfer)
			r.Post("/api/transfers/{id}/reject", h.apiRejectTransfer)
		})
	})

	h.router = r
	return r
}

// health returns service status.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
	}
	writeJSON(w, response{Status: "ok"})
}

// newValidator registers decimal.Decimal as a float for numeric tags and
// reports json field names in errors.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON decodes and validates the request body into v. It returns false
// and writes an error response on failure: 413 when the body exceeds the limit
// set by RequestBodyLimit, 400 for malformed JSON or failed validation.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				ns := fe.Namespace()
				if i := strings.IndexByte(ns, '.'); i >= 0 {
					ns = ns[i+1:]
				}
				fields[ns] = fe.Tag()
			}
			writeErrorResponse(w, r, http.StatusBadRequest, errorResponse{
				Error: "request validation failed", Code: "VALIDATION_ERROR", Details: fields,
			})
			return false
		}
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}

// urlInt parses a positive integer URL parameter, writing 400 on failure.
func urlInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || n <= 0 {
		writeError(w, r, "invalid "+name, "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}
