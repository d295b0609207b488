// Package handler exposes the daemon's local HTTP API. Handlers are thin:
// decode, call the reminder service, encode. All state changes go through
// the service so the store, countdowns, and sync queue stay consistent.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dukerupert/remindd/internal/reminder"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service failures onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, reminder.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case reminder.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func idParam(r *http.Request) string {
	return r.PathValue("id")
}
