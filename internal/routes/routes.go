package routes

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ZerkerEOD/hashfleet/internal/config"
	"github.com/ZerkerEOD/hashfleet/internal/db"
	"github.com/ZerkerEOD/hashfleet/internal/repository"
	"github.com/ZerkerEOD/hashfleet/internal/services"
	"github.com/ZerkerEOD/hashfleet/internal/services/diagnostic"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// Deps carries the constructed services the HTTP surface exposes. Wiring
// happens once in the server entrypoint; routes only attach handlers.
type Deps struct {
	Config     *config.Config
	DB         *db.DB
	Agents     *services.AgentService
	Lease      *services.LeaseService
	Scheduler  *services.SchedulerService
	Progress   *services.ProgressService
	Cracks     *services.CrackService
	Resources  *services.ResourceService
	Projects   *services.ProjectService
	HashLists  *services.HashListService
	Campaigns  *services.CampaignService
	Attacks    *services.AttackService
	Capability *services.CapabilityService
	Hub        *services.EventFeedHub
	EventRepo  *repository.EventRepository
	Diagnostic *diagnostic.Service
}

// SetupRoutes attaches the full HTTP surface: the agent API, the control
// API, and an unauthenticated liveness probe.
func SetupRoutes(r *mux.Router, deps *Deps) {
	r.Use(loggingMiddleware)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	SetupAgentRoutes(r, deps)
	SetupV1Routes(r, deps)
}

// loggingMiddleware logs each request with its duration
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		debug.Log("Request handled", map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		})
	})
}
