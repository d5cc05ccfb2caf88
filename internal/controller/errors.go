// internal/controller/errors.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	appErrors "github.com/adboardhq/adboard-backend/internal/errors"
)

// writeError maps domain errors to HTTP statuses so every controller reports
// failures the same way.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case appErrors.IsNotFound(err):
		status = http.StatusNotFound
	case appErrors.IsInvalidTransition(err):
		status = http.StatusConflict
	case errors.Is(err, appErrors.ErrAlreadyClaimed):
		status = http.StatusConflict
	case errors.Is(err, appErrors.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, appErrors.ErrVerificationFailed):
		status = http.StatusForbidden
	case errors.Is(err, appErrors.ErrExpired):
		status = http.StatusGone
	case appErrors.IsPlacementFailed(err):
		status = http.StatusBadGateway
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
