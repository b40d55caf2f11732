package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quorumlabs/quorum/internal/domain"
)

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request, bodyLimit int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body", "validation")
		}
		return v, false
	}
	return v, true
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message, kind string) {
	writeJSON(w, status, errorResponse{Error: message, Kind: kind})
}

// writeDomainError maps the session error taxonomy onto HTTP statuses and
// machine-readable kinds. Unknown errors become a generic 500 without
// leaking internals.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error(), "validation")
	case errors.Is(err, domain.ErrNoEligibleProvider):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "no_eligible_provider")
	case errors.Is(err, domain.ErrBudgetExceeded):
		writeError(w, http.StatusGatewayTimeout, err.Error(), "budget_exceeded")
	case errors.Is(err, domain.ErrAllProvidersFailed):
		writeError(w, http.StatusBadGateway, err.Error(), "all_providers_failed")
	case errors.Is(err, domain.ErrVerificationFailed):
		writeError(w, http.StatusBadGateway, err.Error(), "verification_failed")
	default:
		slog.Error("unhandled orchestration error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", "")
	}
}
