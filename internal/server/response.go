package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/raphaelgruber/qaharvest/internal/models"
)

// APIError is the body of every error response.
type APIError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// FieldError is one failed validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error APIError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func writeAPIError(w http.ResponseWriter, status int, apiErr APIError) {
	writeJSON(w, status, errorEnvelope{Error: apiErr})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeAPIError(w, http.StatusBadRequest, APIError{Code: "invalid_input", Message: msg})
}

// writeError maps service errors to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		writeAPIError(w, http.StatusBadRequest, APIError{
			Code:    "validation_error",
			Message: "Validation failed",
			Details: verr.Fields,
		})
	case errors.Is(err, models.ErrNotFound):
		writeAPIError(w, http.StatusNotFound, APIError{Code: "not_found", Message: "Job not found"})
	case errors.Is(err, models.ErrInvalidTransition):
		writeAPIError(w, http.StatusConflict, APIError{Code: "conflict", Message: err.Error()})
	default:
		s.logger.Error("unhandled error", "error", err)
		writeAPIError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "An unexpected error occurred",
		})
	}
}
