package v1

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/internal/repository"
	"github.com/ZerkerEOD/hashfleet/internal/services"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// sendJSON writes a JSON response with the given status
func sendJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		debug.Error("Failed to encode response: %v", err)
	}
}

// sendError sends a standardized error response
func sendError(w http.ResponseWriter, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}

// sendServiceError maps a service-layer error onto an HTTP response
func sendServiceError(w http.ResponseWriter, err error) {
	var invalid *models.InvalidTransitionError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		sendError(w, err.Error(), "NOT_FOUND", http.StatusNotFound)
	case errors.As(err, &invalid),
		errors.Is(err, repository.ErrTransitionConflict),
		errors.Is(err, services.ErrHashListNotReady),
		errors.Is(err, services.ErrHigherPriorityRunning):
		sendError(w, err.Error(), "CONFLICT", http.StatusConflict)
	default:
		debug.Error("Control API internal error: %v", err)
		sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}

// pathID parses a UUID path variable
func pathID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)[name])
}

// sinceQueryParam parses an optional RFC3339 since parameter
func sinceQueryParam(r *http.Request) (*time.Time, error) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
