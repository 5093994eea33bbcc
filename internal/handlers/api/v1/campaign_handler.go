package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/internal/repository"
	"github.com/ZerkerEOD/hashfleet/internal/services"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// CampaignHandler serves campaign CRUD and lifecycle verbs
type CampaignHandler struct {
	campaigns *services.CampaignService
	progress  *services.ProgressService
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaigns *services.CampaignService, progress *services.ProgressService) *CampaignHandler {
	return &CampaignHandler{campaigns: campaigns, progress: progress}
}

// campaignRequest carries the writable campaign fields
type campaignRequest struct {
	ProjectID   uuid.UUID `json:"project_id"`
	HashListID  uuid.UUID `json:"hashlist_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Priority    int       `json:"priority"`
}

// CreateCampaign creates a draft campaign
func (h *CampaignHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req campaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	campaign := &models.Campaign{
		ProjectID:   req.ProjectID,
		HashListID:  req.HashListID,
		Name:        req.Name,
		Description: req.Description,
		Priority:    req.Priority,
	}
	if err := h.campaigns.Create(r.Context(), campaign); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			sendServiceError(w, err)
			return
		}
		debug.Error("Failed to create campaign: %v", err)
		sendError(w, err.Error(), "CREATE_FAILED", http.StatusBadRequest)
		return
	}

	sendJSON(w, http.StatusCreated, campaign)
}

// GetCampaign returns one campaign
func (h *CampaignHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid campaign ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	campaign, err := h.campaigns.Get(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, campaign)
}

// ListCampaigns returns a project's campaigns in dispatch order
func (h *CampaignHandler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(r.URL.Query().Get("project_id"))
	if err != nil {
		sendError(w, "project_id query parameter required", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	campaigns, err := h.campaigns.ListByProject(r.Context(), projectID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"campaigns": campaigns,
		"total":     len(campaigns),
	})
}

// UpdateCampaign updates the writable fields of a draft or paused campaign
func (h *CampaignHandler) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid campaign ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	campaign, err := h.campaigns.Get(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	var req campaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	campaign.Name = req.Name
	campaign.Description = req.Description
	campaign.Priority = req.Priority
	if err := h.campaigns.Update(r.Context(), campaign); err != nil {
		sendError(w, err.Error(), "UPDATE_FAILED", http.StatusBadRequest)
		return
	}

	sendJSON(w, http.StatusOK, campaign)
}

// LaunchCampaign schedules a draft campaign for dispatch, preempting
// lower-priority work in its project
func (h *CampaignHandler) LaunchCampaign(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.campaigns.Launch)
}

// PauseCampaign stops further dispatch; running tasks finish their slices
func (h *CampaignHandler) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.campaigns.Pause)
}

// ResumeCampaign resumes a paused campaign if no higher-priority work
// holds the project
func (h *CampaignHandler) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.campaigns.Resume)
}

// lifecycle runs one campaign lifecycle verb and writes the result
func (h *CampaignHandler) lifecycle(
	w http.ResponseWriter,
	r *http.Request,
	verb func(context.Context, uuid.UUID) (*models.Campaign, error),
) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid campaign ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	campaign, err := verb(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, campaign)
}

// AbandonCampaign cancels a campaign and everything under it
func (h *CampaignHandler) AbandonCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid campaign ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	if err := h.campaigns.Abandon(r.Context(), id); err != nil {
		sendServiceError(w, err)
		return
	}

	campaign, err := h.campaigns.Get(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, campaign)
}

// ArchiveCampaign retires a finished campaign from the working set
func (h *CampaignHandler) ArchiveCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid campaign ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	if err := h.campaigns.Archive(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			sendError(w, err.Error(), "NOT_FOUND", http.StatusNotFound)
			return
		}
		sendError(w, err.Error(), "ARCHIVE_REFUSED", http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteCampaign removes a draft or finished campaign record
func (h *CampaignHandler) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid campaign ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	if err := h.campaigns.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			sendError(w, err.Error(), "NOT_FOUND", http.StatusNotFound)
			return
		}
		sendError(w, err.Error(), "DELETE_REFUSED", http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CampaignProgress returns the keyspace-weighted progress rollup
func (h *CampaignHandler) CampaignProgress(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid campaign ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	campaign, err := h.campaigns.Get(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	view, err := h.progress.CampaignProgressView(r.Context(), campaign)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, view)
}
