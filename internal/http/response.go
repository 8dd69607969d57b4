package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"budgetflow/internal/core"
	applog "budgetflow/internal/log"
)

const unavailableMessage = "data is temporarily unavailable, please retry"

type errorBody struct {
	Status string `json:"status,omitempty"`
	Error  string `json:"error"`
	Field  string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// classify maps a service error to its status code and client-facing body.
// Upstream and internal details never reach the client.
func classify(err error) (int, errorBody, string) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, errorBody{Error: ve.Message, Field: ve.Field}, applog.ErrorTypeValidation
	case errors.Is(err, core.ErrInvalidMonth):
		return http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Field: "month"}, applog.ErrorTypeValidation
	case errors.Is(err, core.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Field: "amount"}, applog.ErrorTypeValidation
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, errorBody{Error: err.Error()}, applog.ErrorTypeValidation
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: err.Error()}, applog.ErrorTypeNotFound
	case errors.Is(err, core.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, errorBody{Status: "unavailable", Error: unavailableMessage}, applog.ErrorTypeUpstream
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal error"}, applog.ErrorTypeInternal
	}
}

// writeError logs err with its operation and answers with the mapped status.
func writeError(w http.ResponseWriter, r *http.Request, err error, component, operation string) {
	status, body, errType := classify(err)
	logger := applog.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		applog.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err, component, operation,
			applog.NewFields().WithErrorType(errType))
	} else {
		logger.DebugContext(r.Context(), "Request rejected",
			applog.FieldError, err,
			applog.FieldErrorType, errType,
			applog.FieldOperation, operation)
	}
	writeJSON(w, status, body)
}
