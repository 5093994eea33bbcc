package agent

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/ZerkerEOD/hashfleet/internal/middleware"
	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// NextTask hands the agent its next slice of work, or 204 when the
// scheduler finds nothing it may run. A poll while already holding a task
// re-delivers the held descriptor.
func (h *Handler) NextTask(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		sendError(w, "Agent context missing", "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}

	desc, err := h.scheduler.RequestTask(r.Context(), agent.ID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	if desc == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	sendJSON(w, http.StatusOK, desc)
}

// progressRequest reports absolute keyspace covered within the task slice
type progressRequest struct {
	ProgressKeyspace int64 `json:"progress_keyspace"`
}

// SubmitProgress records slice progress. Regressions are rejected by the
// store; the write also renews nothing, heartbeats do that.
func (h *Handler) SubmitProgress(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		sendError(w, "Agent context missing", "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}
	taskID, err := taskIDFromRequest(r)
	if err != nil {
		sendError(w, "Invalid task ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	task, err := h.progress.ReportProgress(r.Context(), agent.ID, taskID, req.ProgressKeyspace)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, task)
}

// crackRequest accepts either a single submission inline or a batch under
// cracks. Agents report hash values, not item IDs.
type crackRequest struct {
	HashValue string             `json:"hash_value,omitempty"`
	PlainText string             `json:"plain_text,omitempty"`
	Cracks    []crackRequestItem `json:"cracks,omitempty"`
}

type crackRequestItem struct {
	HashValue string `json:"hash_value"`
	PlainText string `json:"plain_text"`
}

// SubmitCracks ingests recovered plaintexts for the task's hashlist
func (h *Handler) SubmitCracks(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		sendError(w, "Agent context missing", "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}
	taskID, err := taskIDFromRequest(r)
	if err != nil {
		sendError(w, "Invalid task ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	var req crackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	submissions := make([]models.CrackSubmission, 0, len(req.Cracks)+1)
	for _, item := range req.Cracks {
		submissions = append(submissions, models.CrackSubmission{
			HashValue: item.HashValue,
			PlainText: item.PlainText,
		})
	}
	if req.HashValue != "" {
		submissions = append(submissions, models.CrackSubmission{
			HashValue: req.HashValue,
			PlainText: req.PlainText,
		})
	}
	if len(submissions) == 0 {
		sendError(w, "No cracks in submission", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.cracks.SubmitCrackBatch(r.Context(), agent.ID, taskID, submissions)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, result)
}

// Zaps returns hash values of the task's hashlist cracked since the given
// time, so agents can trim solved hashes from a stale slice.
func (h *Handler) Zaps(w http.ResponseWriter, r *http.Request) {
	taskID, err := taskIDFromRequest(r)
	if err != nil {
		sendError(w, "Invalid task ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			sendError(w, "Invalid since timestamp, use RFC3339", "INVALID_REQUEST", http.StatusBadRequest)
			return
		}
		since = &parsed
	}

	values, err := h.cracks.ZapsForTask(r.Context(), taskID, since)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"zaps":  values,
		"count": len(values),
	})
}

// Exhausted marks the task's keyspace fully searched and runs the
// completion derivation upward.
func (h *Handler) Exhausted(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		sendError(w, "Agent context missing", "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}
	taskID, err := taskIDFromRequest(r)
	if err != nil {
		sendError(w, "Invalid task ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	task, err := h.progress.ReportExhausted(r.Context(), agent.ID, taskID)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, task)
}

// abandonRequest optionally explains why the agent is giving the task back
type abandonRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Abandon returns the task for another agent. Retries are bounded; a task
// nobody manages to finish eventually stays failed.
func (h *Handler) Abandon(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		sendError(w, "Agent context missing", "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}
	taskID, err := taskIDFromRequest(r)
	if err != nil {
		sendError(w, "Invalid task ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	var req abandonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		debug.Warning("Unreadable abandon body from agent %s: %v", agent.ID, err)
	}

	if err := h.progress.ReportTaskAbandoned(r.Context(), agent.ID, taskID, req.Reason); err != nil {
		sendServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ResourceHandle issues a fresh presigned fetch handle, typically after the
// URL embedded in an assignment expired mid-download.
func (h *Handler) ResourceHandle(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	resourceID, err := uuid.Parse(vars["id"])
	if err != nil {
		sendError(w, "Invalid resource ID", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	handle, err := h.resources.Handle(r.Context(), resourceID)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, handle)
}

// taskIDFromRequest parses the task ID path variable
func taskIDFromRequest(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["id"])
}
