package v1

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/internal/repository"
	"github.com/ZerkerEOD/hashfleet/internal/services"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// ResourceHandler serves the attack resource catalog. Uploads go straight
// to object storage via presigned URLs; the coordinator only sees metadata.
type ResourceHandler struct {
	resources *services.ResourceService
}

// NewResourceHandler creates a new resource handler
func NewResourceHandler(resources *services.ResourceService) *ResourceHandler {
	return &ResourceHandler{resources: resources}
}

// resourceRegisterRequest names a file about to be uploaded
type resourceRegisterRequest struct {
	ProjectID   *uuid.UUID          `json:"project_id,omitempty"`
	Name        string              `json:"name"`
	Type        models.ResourceType `json:"resource_type"`
	ContentType string              `json:"content_type,omitempty"`
}

// RegisterResource records resource metadata and returns a presigned
// upload URL. The resource is unusable until finalized.
func (h *ResourceHandler) RegisterResource(w http.ResponseWriter, r *http.Request) {
	var req resourceRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	resource := &models.Resource{
		ProjectID:   req.ProjectID,
		Name:        req.Name,
		Type:        req.Type,
		ContentType: req.ContentType,
	}
	upload, err := h.resources.Register(r.Context(), resource)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			sendServiceError(w, err)
			return
		}
		debug.Error("Failed to register resource: %v", err)
		sendError(w, err.Error(), "REGISTER_FAILED", http.StatusBadRequest)
		return
	}

	sendJSON(w, http.StatusCreated, upload)
}

// finalizeRequest carries the client-computed integrity hash
type finalizeRequest struct {
	FileHash  string `json:"file_hash"`
	LineCount *int64 `json:"line_count,omitempty"`
}

// FinalizeResource verifies the upload landed and seals its metadata
func (h *ResourceHandler) FinalizeResource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid resource ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	resource, err := h.resources.Finalize(r.Context(), id, req.FileHash, req.LineCount)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			sendServiceError(w, err)
			return
		}
		sendError(w, err.Error(), "FINALIZE_FAILED", http.StatusBadRequest)
		return
	}

	sendJSON(w, http.StatusOK, resource)
}

// GetResource returns one resource record
func (h *ResourceHandler) GetResource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid resource ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	resource, err := h.resources.Get(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, resource)
}

// ListResources returns resources of one type, shared ones plus those
// scoped to the optional project
func (h *ResourceHandler) ListResources(w http.ResponseWriter, r *http.Request) {
	resourceType := models.ResourceType(r.URL.Query().Get("type"))

	var projectID uuid.UUID
	if raw := r.URL.Query().Get("project_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			sendError(w, "Invalid project_id", "INVALID_REQUEST", http.StatusBadRequest)
			return
		}
		projectID = parsed
	}

	resources, err := h.resources.ListByType(r.Context(), resourceType, projectID)
	if err != nil {
		sendError(w, err.Error(), "LIST_FAILED", http.StatusBadRequest)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"resources": resources,
		"total":     len(resources),
	})
}

// DeleteResource removes a resource not referenced by any attack
func (h *ResourceHandler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid resource ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	if err := h.resources.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			sendError(w, err.Error(), "NOT_FOUND", http.StatusNotFound)
			return
		}
		sendError(w, err.Error(), "DELETE_REFUSED", http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
