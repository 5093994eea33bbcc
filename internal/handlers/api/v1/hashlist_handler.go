package v1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/internal/repository"
	"github.com/ZerkerEOD/hashfleet/internal/services"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// HashListHandler serves hashlist management and ingest
type HashListHandler struct {
	hashlists *services.HashListService
	cracks    *services.CrackService
}

// NewHashListHandler creates a new hashlist handler
func NewHashListHandler(hashlists *services.HashListService, cracks *services.CrackService) *HashListHandler {
	return &HashListHandler{hashlists: hashlists, cracks: cracks}
}

// hashlistCreateRequest carries the fields needed to create an empty list
type hashlistCreateRequest struct {
	ProjectID  uuid.UUID `json:"project_id"`
	Name       string    `json:"name"`
	HashTypeID int       `json:"hash_type_id"`
}

// ingestRequest is the JSON form of an ingest body. Each entry is one
// hash line, salted entries as value:salt.
type ingestRequest struct {
	Hashes []string `json:"hashes"`
}

// CreateHashList creates an empty hashlist awaiting ingest
func (h *HashListHandler) CreateHashList(w http.ResponseWriter, r *http.Request) {
	var req hashlistCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	hashlist := &models.HashList{
		ProjectID:  req.ProjectID,
		Name:       req.Name,
		HashTypeID: req.HashTypeID,
	}
	if err := h.hashlists.Create(r.Context(), hashlist); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			sendServiceError(w, err)
			return
		}
		debug.Error("Failed to create hashlist: %v", err)
		sendError(w, err.Error(), "CREATE_FAILED", http.StatusBadRequest)
		return
	}

	sendJSON(w, http.StatusCreated, hashlist)
}

// Ingest loads hash lines into a hashlist. A JSON body carries lines under
// hashes; any other content type is read as plain text, one hash per line.
func (h *HashListHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid hashlist ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			sendError(w, "Invalid request body", "INVALID_REQUEST", http.StatusBadRequest)
			return
		}
		if len(req.Hashes) == 0 {
			sendError(w, "No hashes in request", "INVALID_REQUEST", http.StatusBadRequest)
			return
		}
		body = strings.NewReader(strings.Join(req.Hashes, "\n"))
	}

	result, err := h.hashlists.Ingest(r.Context(), id, body)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			sendServiceError(w, err)
			return
		}
		debug.Error("Ingest failed for hashlist %s: %v", id, err)
		sendError(w, err.Error(), "INGEST_FAILED", http.StatusConflict)
		return
	}

	sendJSON(w, http.StatusOK, result)
}

// GetHashList returns one hashlist with its counts
func (h *HashListHandler) GetHashList(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid hashlist ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	hashlist, err := h.hashlists.Get(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, hashlist)
}

// ListHashLists returns a project's hashlists. The project ID comes from
// the query string.
func (h *HashListHandler) ListHashLists(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(r.URL.Query().Get("project_id"))
	if err != nil {
		sendError(w, "project_id query parameter required", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	hashlists, err := h.hashlists.ListByProject(r.Context(), projectID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"hashlists": hashlists,
		"total":     len(hashlists),
	})
}

// ListItems returns a page of hash items, cracked ones with plaintext
func (h *HashListHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid hashlist ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	limit := intQueryParam(r, "limit", 0)
	offset := intQueryParam(r, "offset", 0)

	items, err := h.hashlists.Items(r.Context(), id, limit, offset)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"items":  items,
		"count":  len(items),
		"offset": offset,
	})
}

// Zaps returns cracked hash values for a hashlist, optionally since a
// time given as RFC3339 in the query string
func (h *HashListHandler) Zaps(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid hashlist ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	since, err := sinceQueryParam(r)
	if err != nil {
		sendError(w, "Invalid since timestamp, use RFC3339", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	values, err := h.cracks.Zaps(r.Context(), id, since)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"zaps":  values,
		"count": len(values),
	})
}

// DeleteHashList removes a hashlist not referenced by active campaigns
func (h *HashListHandler) DeleteHashList(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid hashlist ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	if err := h.hashlists.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			sendError(w, err.Error(), "NOT_FOUND", http.StatusNotFound)
			return
		}
		sendError(w, err.Error(), "DELETE_REFUSED", http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// intQueryParam parses an integer query parameter with a default
func intQueryParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return value
}
