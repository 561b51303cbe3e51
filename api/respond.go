package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"log/slog"

	"github.com/garnizeh/staffdir/internal/ordering"
	"github.com/garnizeh/staffdir/internal/repository/guard"
	"github.com/garnizeh/staffdir/internal/roster"
	"github.com/garnizeh/staffdir/pkg/repository"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", slog.Any("err", err))
	}
}

// writeError maps err to a status and writes it as JSON. Backend failures are
// logged here and reported with the operator readable msg.
func writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	var verr *roster.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: verr.Fields})
	case errors.Is(err, roster.ErrNotFound), errors.Is(err, ordering.ErrSessionNotFound),
		errors.Is(err, ordering.ErrUnknownRecord), errors.Is(err, repository.ErrAssetNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, ordering.ErrNotDragging), errors.Is(err, ordering.ErrDragInProgress):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, ordering.ErrNoIndicators):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, guard.ErrCircuitOpen):
		logger.Warn(msg, slog.Any("err", err), slog.String("request_id", RequestIDFromContext(r.Context())))
		w.Header().Set("Retry-After", "30")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: msg + ": store temporarily unavailable"})
	default:
		logger.Error(msg, slog.Any("err", err), slog.String("request_id", RequestIDFromContext(r.Context())))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: msg})
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
