package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"wallet-fleet/internal/domain"
	"wallet-fleet/internal/logger"
	"wallet-fleet/internal/storage"
	"wallet-fleet/internal/validator"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Message   string         `json:"message"`
	Transfers []transferView `json:"transfers,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error onto its HTTP status.
func statusFor(err error) int {
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}
	switch domain.Classify(err) {
	case domain.ClassUsage:
		return http.StatusBadRequest
	case domain.ClassInsufficientFunds, domain.ClassJobState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err. Internal failures are logged and answered with a
// generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error, transfers []transferView) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		if !errors.Is(err, domain.ErrPartialFailure) {
			msg = "internal error"
		}
	}
	writeJSON(w, status, errorResponse{Message: msg, Transfers: transfers})
}

// decode reads a JSON body into v and validates it.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.Usagef("invalid request body: %v", err)
	}
	if err := validator.Validate(v); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUsage, err)
	}
	return nil
}
