package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wonny/pickem/backend/internal/contracts"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// statusFor maps engine errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, contracts.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, contracts.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, contracts.ErrFailedPrecondition), errors.Is(err, contracts.ErrAlreadySettled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondEngineError writes err; internal details are never exposed
func respondEngineError(w http.ResponseWriter, err error, fallback string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		respondError(w, status, fallback)
		return
	}
	respondError(w, status, err.Error())
}
