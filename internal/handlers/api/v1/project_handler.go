package v1

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/internal/repository"
	"github.com/ZerkerEOD/hashfleet/internal/services"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// ProjectHandler serves project CRUD
type ProjectHandler struct {
	projects *services.ProjectService
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(projects *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// projectRequest carries the writable project fields
type projectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ListProjects returns all projects
func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.List(r.Context())
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"projects": projects,
		"total":    len(projects),
	})
}

// CreateProject creates a new project
func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	project := &models.Project{Name: req.Name, Description: req.Description}
	if err := h.projects.Create(r.Context(), project); err != nil {
		debug.Error("Failed to create project: %v", err)
		sendError(w, err.Error(), "CREATE_FAILED", http.StatusBadRequest)
		return
	}

	sendJSON(w, http.StatusCreated, project)
}

// GetProject returns one project
func (h *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid project ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	project, err := h.projects.Get(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, project)
}

// UpdateProject updates name and description
func (h *ProjectHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid project ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	project, err := h.projects.Get(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	project.Name = req.Name
	project.Description = req.Description
	if err := h.projects.Update(r.Context(), project); err != nil {
		sendError(w, err.Error(), "UPDATE_FAILED", http.StatusBadRequest)
		return
	}

	sendJSON(w, http.StatusOK, project)
}

// DeleteProject removes a project once nothing in it is still running
func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid project ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	if err := h.projects.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			sendError(w, err.Error(), "NOT_FOUND", http.StatusNotFound)
			return
		}
		sendError(w, err.Error(), "DELETE_REFUSED", http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
