package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/personaops/backend/internal/domain"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError maps err onto a status code. Provider and persistence details
// stay in the log; the client gets the sentinel text only.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, logger, http.StatusBadRequest, ErrorResponse{Error: "Bad request", Details: verr.Error()})
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, logger, http.StatusBadRequest, ErrorResponse{Error: "Bad request", Details: err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		writeJSON(w, logger, http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, logger, http.StatusNotFound, ErrorResponse{Error: "Not found"})
	case errors.Is(err, domain.ErrNotImplemented):
		writeJSON(w, logger, http.StatusNotImplemented, ErrorResponse{Error: "not implemented"})
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads this.
		logger.Debug("request cancelled", slog.String("path", r.URL.Path))
		w.WriteHeader(http.StatusServiceUnavailable)
	case errors.Is(err, domain.ErrUpstreamProvider):
		logger.Error("upstream provider failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		writeJSON(w, logger, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error", Details: domain.ErrUpstreamProvider.Error()})
	case errors.Is(err, domain.ErrPersistence):
		logger.Error("persistence failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		writeJSON(w, logger, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error", Details: domain.ErrPersistence.Error()})
	default:
		logger.Error("request failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		writeJSON(w, logger, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
	}
}

// decodeJSON reads a bounded JSON body into v. Unknown fields are ignored
// since the browser client sends extra UI state.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return &domain.ValidationError{Message: "request body is required"}
		case errors.As(err, &maxErr):
			return &domain.ValidationError{Message: fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit)}
		default:
			return &domain.ValidationError{Message: "invalid JSON body"}
		}
	}
	return nil
}
