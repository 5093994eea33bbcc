package v1

import (
	"net/http"

	"github.com/ZerkerEOD/hashfleet/internal/services/diagnostic"
)

// DiagnosticsHandler serves health and support snapshot endpoints
type DiagnosticsHandler struct {
	diag *diagnostic.Service
}

// NewDiagnosticsHandler creates a new diagnostics handler
func NewDiagnosticsHandler(diag *diagnostic.Service) *DiagnosticsHandler {
	return &DiagnosticsHandler{diag: diag}
}

// Health returns host metrics plus per-subsystem reachability. The
// response is 200 even when components are down; Healthy carries the
// verdict so monitors can alert without special-casing status codes.
func (h *DiagnosticsHandler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.diag.Collect(r.Context())
	sendJSON(w, http.StatusOK, report)
}

// Snapshot exports a sanitized coordination state dump for support
// bundles. Hash material never appears in it.
func (h *DiagnosticsHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.diag.Snapshot(r.Context())
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, snapshot)
}
