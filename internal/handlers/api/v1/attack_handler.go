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

// AttackHandler serves attack configuration inside campaigns
type AttackHandler struct {
	attacks  *services.AttackService
	progress *services.ProgressService
}

// NewAttackHandler creates a new attack handler
func NewAttackHandler(attacks *services.AttackService, progress *services.ProgressService) *AttackHandler {
	return &AttackHandler{attacks: attacks, progress: progress}
}

// CreateAttack adds an attack to a campaign. Keyspace and complexity are
// computed server-side before the row is written.
func (h *AttackHandler) CreateAttack(w http.ResponseWriter, r *http.Request) {
	var attack models.Attack
	if err := json.NewDecoder(r.Body).Decode(&attack); err != nil {
		sendError(w, "Invalid request body", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	if err := h.attacks.Create(r.Context(), &attack); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			sendServiceError(w, err)
			return
		}
		debug.Error("Failed to create attack: %v", err)
		sendError(w, err.Error(), "CREATE_FAILED", http.StatusBadRequest)
		return
	}

	sendJSON(w, http.StatusCreated, attack)
}

// GetAttack returns one attack
func (h *AttackHandler) GetAttack(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid attack ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	attack, err := h.attacks.Get(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, attack)
}

// ListAttacks returns a campaign's attacks in position order
func (h *AttackHandler) ListAttacks(w http.ResponseWriter, r *http.Request) {
	campaignID, err := uuid.Parse(r.URL.Query().Get("campaign_id"))
	if err != nil {
		sendError(w, "campaign_id query parameter required", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	attacks, err := h.attacks.ListByCampaign(r.Context(), campaignID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"attacks": attacks,
		"total":   len(attacks),
	})
}

// UpdateAttack rewrites a pending attack's configuration. The campaign
// binding and lifecycle position are not writable.
func (h *AttackHandler) UpdateAttack(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid attack ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	existing, err := h.attacks.Get(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	if existing.Status != models.AttackStatusPending {
		sendError(w, "Only pending attacks can be updated", "CONFLICT", http.StatusConflict)
		return
	}

	var attack models.Attack
	if err := json.NewDecoder(r.Body).Decode(&attack); err != nil {
		sendError(w, "Invalid request body", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}
	attack.ID = existing.ID
	attack.CampaignID = existing.CampaignID
	attack.Status = existing.Status
	attack.Position = existing.Position

	if err := h.attacks.Update(r.Context(), &attack); err != nil {
		sendError(w, err.Error(), "UPDATE_FAILED", http.StatusBadRequest)
		return
	}

	sendJSON(w, http.StatusOK, attack)
}

// reorderRequest lists attack IDs in their new campaign order
type reorderRequest struct {
	AttackIDs []uuid.UUID `json:"attack_ids"`
}

// ReorderAttacks rewrites the position sequence of a campaign's attacks
func (h *AttackHandler) ReorderAttacks(w http.ResponseWriter, r *http.Request) {
	campaignID, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid campaign ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	if err := h.attacks.Reorder(r.Context(), campaignID, req.AttackIDs); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			sendServiceError(w, err)
			return
		}
		sendError(w, err.Error(), "REORDER_FAILED", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// EstimateAttack computes keyspace and complexity for a configuration
// without persisting it
func (h *AttackHandler) EstimateAttack(w http.ResponseWriter, r *http.Request) {
	var attack models.Attack
	if err := json.NewDecoder(r.Body).Decode(&attack); err != nil {
		sendError(w, "Invalid request body", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	estimate, err := h.attacks.Estimate(r.Context(), &attack)
	if err != nil {
		sendError(w, err.Error(), "ESTIMATE_FAILED", http.StatusBadRequest)
		return
	}

	sendJSON(w, http.StatusOK, estimate)
}

// PauseAttack stops further dispatch within one attack
func (h *AttackHandler) PauseAttack(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid attack ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	attack, err := h.attacks.Pause(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, attack)
}

// ResumeAttack resumes a paused attack
func (h *AttackHandler) ResumeAttack(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid attack ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	attack, err := h.attacks.Resume(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, attack)
}

// AbandonAttack cancels an attack and its unfinished tasks
func (h *AttackHandler) AbandonAttack(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid attack ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	if err := h.attacks.Abandon(r.Context(), id); err != nil {
		sendServiceError(w, err)
		return
	}

	attack, err := h.attacks.Get(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, attack)
}

// DeleteAttack removes an untouched or finished attack
func (h *AttackHandler) DeleteAttack(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid attack ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	if err := h.attacks.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			sendError(w, err.Error(), "NOT_FOUND", http.StatusNotFound)
			return
		}
		sendError(w, err.Error(), "DELETE_REFUSED", http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListTasks returns an attack's task slices with their claims and progress
func (h *AttackHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid attack ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	tasks, err := h.attacks.ListTasks(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": tasks,
		"total": len(tasks),
	})
}

// AttackProgress returns the attack's keyspace-weighted progress percent
func (h *AttackHandler) AttackProgress(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid attack ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	attack, err := h.attacks.Get(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	percent, err := h.progress.AttackProgressPercent(r.Context(), attack)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"attack_id":        attack.ID,
		"status":           attack.Status,
		"progress_percent": percent,
	})
}
