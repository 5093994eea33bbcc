package routes

import (
	"github.com/gorilla/mux"

	agenthandlers "github.com/ZerkerEOD/hashfleet/internal/handlers/agent"
	"github.com/ZerkerEOD/hashfleet/internal/middleware"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// SetupAgentRoutes configures the /api/agent surface. Registration is the
// only unauthenticated call; everything else presents the agent's key.
func SetupAgentRoutes(r *mux.Router, deps *Deps) {
	debug.Info("Setting up /api/agent routes")

	handler := agenthandlers.NewHandler(
		deps.Agents,
		deps.Lease,
		deps.Scheduler,
		deps.Progress,
		deps.Cracks,
		deps.Resources,
	)

	agentRouter := r.PathPrefix("/api/agent").Subrouter()
	agentRouter.HandleFunc("/register", handler.Register).Methods("POST")

	authed := agentRouter.NewRoute().Subrouter()
	authed.Use(middleware.RequireAgentKey(deps.Agents))

	authed.HandleFunc("/benchmarks", handler.SubmitBenchmarks).Methods("POST")
	authed.HandleFunc("/heartbeat", handler.Heartbeat).Methods("POST")
	authed.HandleFunc("/tasks/next", handler.NextTask).Methods("GET")
	authed.HandleFunc("/tasks/{id}/progress", handler.SubmitProgress).Methods("POST")
	authed.HandleFunc("/tasks/{id}/cracks", handler.SubmitCracks).Methods("POST")
	authed.HandleFunc("/tasks/{id}/zaps", handler.Zaps).Methods("GET")
	authed.HandleFunc("/tasks/{id}/exhausted", handler.Exhausted).Methods("POST")
	authed.HandleFunc("/tasks/{id}/abandon", handler.Abandon).Methods("POST")
	authed.HandleFunc("/errors", handler.ReportError).Methods("POST")
	authed.HandleFunc("/resources/{id}/handle", handler.ResourceHandle).Methods("GET")
	authed.HandleFunc("/shutdown", handler.Shutdown).Methods("POST")

	debug.Info("/api/agent routes configured, authentication requires X-Agent-ID and X-API-Key headers")
}
