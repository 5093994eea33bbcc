package agent

import (
	"encoding/json"
	"errors"
	"net/http"

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

// sendServiceError maps a service-layer error onto an HTTP response.
// Conflict-shaped errors (lost claims, concurrent transitions, lifecycle
// refusals) surface as 409 so agents know to re-poll rather than retry.
func sendServiceError(w http.ResponseWriter, err error) {
	var invalid *models.InvalidTransitionError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		sendError(w, err.Error(), "NOT_FOUND", http.StatusNotFound)
	case errors.Is(err, services.ErrStaleClaim),
		errors.Is(err, services.ErrLeaseExpired),
		errors.Is(err, repository.ErrTransitionConflict):
		sendError(w, err.Error(), "CLAIM_CONFLICT", http.StatusConflict)
	case errors.Is(err, services.ErrAgentNotEligible):
		sendError(w, err.Error(), "AGENT_NOT_ELIGIBLE", http.StatusConflict)
	case errors.As(err, &invalid):
		sendError(w, err.Error(), "INVALID_TRANSITION", http.StatusConflict)
	default:
		debug.Error("Agent API internal error: %v", err)
		sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}
