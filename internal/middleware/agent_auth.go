package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/internal/services"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// agentContextKey is the context key under which the authenticated agent
// is stored for downstream handlers.
type agentContextKey struct{}

// RequireAgentKey authenticates agent requests using the agent ID and API
// key headers. The resolved agent is stored in the request context.
func RequireAgentKey(agents *services.AgentService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			agentID := r.Header.Get("X-Agent-ID")
			if agentID == "" {
				debug.Error("No agent ID provided for %s %s", r.Method, r.URL.Path)
				sendAPIError(w, "Agent ID required", "AUTH_MISSING_CREDENTIALS", http.StatusUnauthorized)
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				debug.Error("No API key provided for agent %s", agentID)
				sendAPIError(w, "API key required", "AUTH_MISSING_CREDENTIALS", http.StatusUnauthorized)
				return
			}

			id, err := uuid.Parse(agentID)
			if err != nil {
				debug.Error("Malformed agent ID %q: %v", agentID, err)
				sendAPIError(w, "Invalid credentials", "AUTH_INVALID_CREDENTIALS", http.StatusUnauthorized)
				return
			}

			agent, err := agents.Authenticate(r.Context(), id, apiKey)
			if err != nil {
				if errors.Is(err, services.ErrAgentDisabled) {
					debug.Warning("Disabled agent %s attempted access", agentID)
					sendAPIError(w, "Agent is disabled", "AUTH_AGENT_DISABLED", http.StatusForbidden)
					return
				}
				debug.Error("Agent authentication failed for %s: %v", agentID, err)
				sendAPIError(w, "Invalid credentials", "AUTH_INVALID_CREDENTIALS", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), agentContextKey{}, agent)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AgentFromContext returns the agent stored by RequireAgentKey.
func AgentFromContext(ctx context.Context) (*models.Agent, bool) {
	agent, ok := ctx.Value(agentContextKey{}).(*models.Agent)
	return agent, ok
}

// sendAPIError sends a standardized JSON error response
func sendAPIError(w http.ResponseWriter, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `","code":"` + code + `"}`))
}
