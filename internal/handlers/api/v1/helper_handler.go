package v1

import (
	"net/http"
	"strconv"

	"github.com/ZerkerEOD/hashfleet/internal/models"
)

// HelperHandler serves metadata endpoints that need no state
type HelperHandler struct{}

// NewHelperHandler creates a new helper handler
func NewHelperHandler() *HelperHandler {
	return &HelperHandler{}
}

// ListHashTypes returns the hash type catalog
// GET /api/v1/hash-types?enabled_only=true
func (h *HelperHandler) ListHashTypes(w http.ResponseWriter, r *http.Request) {
	enabledOnly := r.URL.Query().Get("enabled_only") == "true"

	hashTypes := models.ListHashTypes(enabledOnly)
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"hash_types": hashTypes,
		"total":      len(hashTypes),
	})
}

// GetHashType returns one hash type by hashcat mode number
func (h *HelperHandler) GetHashType(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.URL.Query().Get("id"))
	if err != nil {
		sendError(w, "id query parameter required", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	hashType, ok := models.HashTypeByID(id)
	if !ok {
		sendError(w, "Unknown hash type", "NOT_FOUND", http.StatusNotFound)
		return
	}
	sendJSON(w, http.StatusOK, hashType)
}
