package v1

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/repository"
	"github.com/ZerkerEOD/hashfleet/internal/services"
)

// AgentAdminHandler serves operator-side agent management. Agents manage
// themselves through the agent API; everything here acts on their behalf.
type AgentAdminHandler struct {
	agents     *services.AgentService
	capability *services.CapabilityService
}

// NewAgentAdminHandler creates a new agent admin handler
func NewAgentAdminHandler(agents *services.AgentService, capability *services.CapabilityService) *AgentAdminHandler {
	return &AgentAdminHandler{agents: agents, capability: capability}
}

// ListAgents returns all registered agents
func (h *AgentAdminHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.agents.List(r.Context())
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"agents": agents,
		"total":  len(agents),
	})
}

// GetAgent returns one agent
func (h *AgentAdminHandler) GetAgent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid agent ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	agent, err := h.agents.Get(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, agent)
}

// ListAgentErrors returns an agent's recent error reports
func (h *AgentAdminHandler) ListAgentErrors(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid agent ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	limit := intQueryParam(r, "limit", 0)
	reports, err := h.agents.ListErrors(r.Context(), id, limit)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"errors": reports,
		"total":  len(reports),
	})
}

// ListAgentBenchmarks returns an agent's current benchmark map
func (h *AgentAdminHandler) ListAgentBenchmarks(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid agent ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	if _, err := h.agents.Get(r.Context(), id); err != nil {
		sendServiceError(w, err)
		return
	}

	benchmarks, err := h.capability.BenchmarksFor(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"benchmarks": benchmarks,
	})
}

// enableRequest toggles whether the agent may authenticate and hold work
type enableRequest struct {
	Enabled bool `json:"enabled"`
}

// SetAgentEnabled enables or disables an agent. Disabling releases its
// claims for immediate reassignment.
func (h *AgentAdminHandler) SetAgentEnabled(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid agent ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	var req enableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	if err := h.agents.SetEnabled(r.Context(), id, req.Enabled); err != nil {
		sendServiceError(w, err)
		return
	}

	agent, err := h.agents.Get(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, agent)
}

// RetireAgent permanently removes an agent from scheduling
func (h *AgentAdminHandler) RetireAgent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid agent ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	if err := h.agents.Retire(r.Context(), id); err != nil {
		sendServiceError(w, err)
		return
	}

	agent, err := h.agents.Get(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, agent)
}

// TriggerRebenchmark sends an agent back to pending for fresh measurements
func (h *AgentAdminHandler) TriggerRebenchmark(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid agent ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	if err := h.agents.TriggerRebenchmark(r.Context(), id); err != nil {
		sendServiceError(w, err)
		return
	}

	agent, err := h.agents.Get(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, agent)
}

// projectScopeRequest replaces the agent's project assignment list
type projectScopeRequest struct {
	ProjectIDs []uuid.UUID `json:"project_ids"`
}

// ReplaceAgentProjects rewrites which projects the agent may serve. An
// empty list opens the agent to every project.
func (h *AgentAdminHandler) ReplaceAgentProjects(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid agent ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	var req projectScopeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	if err := h.agents.ReplaceProjects(r.Context(), id, req.ProjectIDs); err != nil {
		sendServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteAgent removes a retired agent's record. Task provenance survives;
// the schema nulls the agent reference instead of dropping tasks.
func (h *AgentAdminHandler) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendError(w, "Invalid agent ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	if err := h.agents.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			sendError(w, err.Error(), "NOT_FOUND", http.StatusNotFound)
			return
		}
		sendError(w, err.Error(), "DELETE_REFUSED", http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
