package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"inventory-engine/internal/core"

	"go.uber.org/zap"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Field     string `json:"field,omitempty"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorResponse(w, r, status, errorResponse{Error: message, Code: code})
}

func writeErrorResponse(w http.ResponseWriter, r *http.Request, status int, resp errorResponse) {
	resp.RequestID = requestIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeCreated writes a JSON response with status 201.
func writeCreated(w http.ResponseWriter, v any) {
	writeStatus(w, http.StatusCreated, v)
}

// writeStatus writes a JSON response with the given status.
func writeStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps the engine's typed errors onto HTTP statuses.
// details, when non-nil, is attached to conflict responses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, details any) {
	var (
		ve  *core.ValidationError
		ise *core.InsufficientStockError
		pce *core.PeriodConflictError
		ste *core.StateTransitionError
		pe  *core.PartialCloseError
	)
	switch {
	case errors.As(err, &ve):
		writeErrorResponse(w, r, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "VALIDATION_ERROR", Field: ve.Field})
	case errors.As(err, &ise):
		writeErrorResponse(w, r, http.StatusConflict, errorResponse{Error: err.Error(), Code: "INSUFFICIENT_STOCK", Details: ise.Items})
	case errors.As(err, &pce):
		writeErrorResponse(w, r, http.StatusConflict, errorResponse{Error: err.Error(), Code: "PERIOD_CONFLICT", Details: details})
	case errors.As(err, &ste):
		writeErrorResponse(w, r, http.StatusConflict, errorResponse{Error: err.Error(), Code: "INVALID_TRANSITION"})
	case errors.Is(err, core.ErrNotFound):
		writeError(w, r, err.Error(), "NOT_FOUND", http.StatusNotFound)
	case errors.As(err, &pe):
		h.log.Error("period close failed", zap.Int("period_id", pe.PeriodID), zap.Error(err),
			zap.String("request_id", requestIDFromContext(r.Context())))
		writeError(w, r, "period close failed and was rolled back", "PARTIAL_CLOSE", http.StatusInternalServerError)
	default:
		h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err),
			zap.String("request_id", requestIDFromContext(r.Context())))
		writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}
