package agent

import (
	"encoding/json"
	"net/http"

	"github.com/ZerkerEOD/hashfleet/internal/middleware"
	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/internal/services"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// Handler serves the agent-facing API. Every endpoint except Register runs
// behind the agent key middleware and reads its caller from the request
// context.
type Handler struct {
	agents    *services.AgentService
	lease     *services.LeaseService
	scheduler *services.SchedulerService
	progress  *services.ProgressService
	cracks    *services.CrackService
	resources *services.ResourceService
}

// NewHandler creates a new agent API handler
func NewHandler(
	agents *services.AgentService,
	lease *services.LeaseService,
	scheduler *services.SchedulerService,
	progress *services.ProgressService,
	cracks *services.CrackService,
	resources *services.ResourceService,
) *Handler {
	return &Handler{
		agents:    agents,
		lease:     lease,
		scheduler: scheduler,
		progress:  progress,
		cracks:    cracks,
		resources: resources,
	}
}

// registerResponse carries the one-time API key alongside the agent record.
// The key is never retrievable again; a lost key means re-registering.
type registerResponse struct {
	Agent  *models.Agent `json:"agent"`
	APIKey string        `json:"api_key"`
}

// Register enrolls an agent by hardware signature. Re-registration under a
// known signature rotates the key and restarts the lifecycle at pending.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var reg services.AgentRegistration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		debug.Error("Failed to decode registration: %v", err)
		sendError(w, "Invalid request body", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	agent, apiKey, err := h.agents.Register(r.Context(), reg)
	if err != nil {
		debug.Error("Registration failed for signature %q: %v", reg.Signature, err)
		sendError(w, err.Error(), "REGISTRATION_FAILED", http.StatusBadRequest)
		return
	}

	sendJSON(w, http.StatusCreated, registerResponse{Agent: agent, APIKey: apiKey})
}

// benchmarkRequest is a bulk benchmark submission
type benchmarkRequest struct {
	Benchmarks []services.BenchmarkResult `json:"benchmarks"`
}

// SubmitBenchmarks stores measured speeds for the calling agent. The first
// accepted batch moves a pending agent to active.
func (h *Handler) SubmitBenchmarks(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		sendError(w, "Agent context missing", "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}

	var req benchmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	stored, err := h.agents.SubmitBenchmarks(r.Context(), agent.ID, req.Benchmarks)
	if err != nil {
		debug.Error("Benchmark submission failed for agent %s: %v", agent.ID, err)
		sendError(w, err.Error(), "BENCHMARK_REJECTED", http.StatusBadRequest)
		return
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"stored": len(stored),
	})
}

// Heartbeat renews the agent's leases and reports which claims it still
// holds. Agents reconcile local state against the ack on every beat.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		sendError(w, "Agent context missing", "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}

	ack, err := h.lease.Heartbeat(r.Context(), agent.ID)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, ack)
}

// ReportError appends an agent error report. Major and worse flip the agent
// to error; fatal additionally sweeps its claims.
func (h *Handler) ReportError(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		sendError(w, "Agent context missing", "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}

	var report services.ErrorReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		sendError(w, "Invalid request body", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	stored, err := h.agents.ReportError(r.Context(), agent.ID, report)
	if err != nil {
		debug.Error("Error report rejected for agent %s: %v", agent.ID, err)
		sendError(w, err.Error(), "REPORT_REJECTED", http.StatusBadRequest)
		return
	}

	sendJSON(w, http.StatusAccepted, stored)
}

// Shutdown handles a clean agent exit: claims are released for immediate
// reassignment and the agent record is retired.
func (h *Handler) Shutdown(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		sendError(w, "Agent context missing", "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}

	if err := h.agents.Shutdown(r.Context(), agent.ID); err != nil {
		sendServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
