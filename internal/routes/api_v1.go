package routes

import (
	"github.com/gorilla/mux"

	v1handlers "github.com/ZerkerEOD/hashfleet/internal/handlers/api/v1"
	"github.com/ZerkerEOD/hashfleet/internal/middleware"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// SetupV1Routes configures the /api/v1 control surface for operators
func SetupV1Routes(r *mux.Router, deps *Deps) {
	debug.Info("Setting up /api/v1 control routes")

	v1Router := r.PathPrefix("/api/v1").Subrouter()
	v1Router.Use(middleware.RequireOperatorToken(deps.Config.OperatorToken))

	// Project endpoints
	projectHandler := v1handlers.NewProjectHandler(deps.Projects)
	v1Router.HandleFunc("/projects", projectHandler.CreateProject).Methods("POST")
	v1Router.HandleFunc("/projects", projectHandler.ListProjects).Methods("GET")
	v1Router.HandleFunc("/projects/{id}", projectHandler.GetProject).Methods("GET")
	v1Router.HandleFunc("/projects/{id}", projectHandler.UpdateProject).Methods("PATCH")
	v1Router.HandleFunc("/projects/{id}", projectHandler.DeleteProject).Methods("DELETE")

	// Hashlist endpoints
	hashlistHandler := v1handlers.NewHashListHandler(deps.HashLists, deps.Cracks)
	v1Router.HandleFunc("/hashlists", hashlistHandler.CreateHashList).Methods("POST")
	v1Router.HandleFunc("/hashlists", hashlistHandler.ListHashLists).Methods("GET")
	v1Router.HandleFunc("/hashlists/{id}", hashlistHandler.GetHashList).Methods("GET")
	v1Router.HandleFunc("/hashlists/{id}", hashlistHandler.DeleteHashList).Methods("DELETE")
	v1Router.HandleFunc("/hashlists/{id}/ingest", hashlistHandler.Ingest).Methods("POST")
	v1Router.HandleFunc("/hashlists/{id}/items", hashlistHandler.ListItems).Methods("GET")
	v1Router.HandleFunc("/hashlists/{id}/zaps", hashlistHandler.Zaps).Methods("GET")

	// Campaign endpoints
	campaignHandler := v1handlers.NewCampaignHandler(deps.Campaigns, deps.Progress)
	v1Router.HandleFunc("/campaigns", campaignHandler.CreateCampaign).Methods("POST")
	v1Router.HandleFunc("/campaigns", campaignHandler.ListCampaigns).Methods("GET")
	v1Router.HandleFunc("/campaigns/{id}", campaignHandler.GetCampaign).Methods("GET")
	v1Router.HandleFunc("/campaigns/{id}", campaignHandler.UpdateCampaign).Methods("PATCH")
	v1Router.HandleFunc("/campaigns/{id}", campaignHandler.DeleteCampaign).Methods("DELETE")
	v1Router.HandleFunc("/campaigns/{id}/launch", campaignHandler.LaunchCampaign).Methods("POST")
	v1Router.HandleFunc("/campaigns/{id}/pause", campaignHandler.PauseCampaign).Methods("POST")
	v1Router.HandleFunc("/campaigns/{id}/resume", campaignHandler.ResumeCampaign).Methods("POST")
	v1Router.HandleFunc("/campaigns/{id}/abandon", campaignHandler.AbandonCampaign).Methods("POST")
	v1Router.HandleFunc("/campaigns/{id}/archive", campaignHandler.ArchiveCampaign).Methods("POST")
	v1Router.HandleFunc("/campaigns/{id}/progress", campaignHandler.CampaignProgress).Methods("GET")

	// Attack endpoints
	attackHandler := v1handlers.NewAttackHandler(deps.Attacks, deps.Progress)
	v1Router.HandleFunc("/attacks", attackHandler.CreateAttack).Methods("POST")
	v1Router.HandleFunc("/attacks", attackHandler.ListAttacks).Methods("GET")
	v1Router.HandleFunc("/attacks/estimate", attackHandler.EstimateAttack).Methods("POST")
	v1Router.HandleFunc("/attacks/{id}", attackHandler.GetAttack).Methods("GET")
	v1Router.HandleFunc("/attacks/{id}", attackHandler.UpdateAttack).Methods("PATCH")
	v1Router.HandleFunc("/attacks/{id}", attackHandler.DeleteAttack).Methods("DELETE")
	v1Router.HandleFunc("/attacks/{id}/pause", attackHandler.PauseAttack).Methods("POST")
	v1Router.HandleFunc("/attacks/{id}/resume", attackHandler.ResumeAttack).Methods("POST")
	v1Router.HandleFunc("/attacks/{id}/abandon", attackHandler.AbandonAttack).Methods("POST")
	v1Router.HandleFunc("/attacks/{id}/tasks", attackHandler.ListTasks).Methods("GET")
	v1Router.HandleFunc("/attacks/{id}/progress", attackHandler.AttackProgress).Methods("GET")
	v1Router.HandleFunc("/campaigns/{id}/attacks/reorder", attackHandler.ReorderAttacks).Methods("POST")

	// Agent admin endpoints
	agentAdminHandler := v1handlers.NewAgentAdminHandler(deps.Agents, deps.Capability)
	v1Router.HandleFunc("/agents", agentAdminHandler.ListAgents).Methods("GET")
	v1Router.HandleFunc("/agents/{id}", agentAdminHandler.GetAgent).Methods("GET")
	v1Router.HandleFunc("/agents/{id}", agentAdminHandler.DeleteAgent).Methods("DELETE")
	v1Router.HandleFunc("/agents/{id}/errors", agentAdminHandler.ListAgentErrors).Methods("GET")
	v1Router.HandleFunc("/agents/{id}/benchmarks", agentAdminHandler.ListAgentBenchmarks).Methods("GET")
	v1Router.HandleFunc("/agents/{id}/enabled", agentAdminHandler.SetAgentEnabled).Methods("POST")
	v1Router.HandleFunc("/agents/{id}/retire", agentAdminHandler.RetireAgent).Methods("POST")
	v1Router.HandleFunc("/agents/{id}/rebenchmark", agentAdminHandler.TriggerRebenchmark).Methods("POST")
	v1Router.HandleFunc("/agents/{id}/projects", agentAdminHandler.ReplaceAgentProjects).Methods("PUT")

	// Resource endpoints
	resourceHandler := v1handlers.NewResourceHandler(deps.Resources)
	v1Router.HandleFunc("/resources", resourceHandler.RegisterResource).Methods("POST")
	v1Router.HandleFunc("/resources", resourceHandler.ListResources).Methods("GET")
	v1Router.HandleFunc("/resources/{id}", resourceHandler.GetResource).Methods("GET")
	v1Router.HandleFunc("/resources/{id}", resourceHandler.DeleteResource).Methods("DELETE")
	v1Router.HandleFunc("/resources/{id}/finalize", resourceHandler.FinalizeResource).Methods("POST")

	// Metadata endpoints
	helperHandler := v1handlers.NewHelperHandler()
	v1Router.HandleFunc("/hash-types", helperHandler.ListHashTypes).Methods("GET")
	v1Router.HandleFunc("/hash-types/lookup", helperHandler.GetHashType).Methods("GET")

	// Transition event endpoints
	feedHandler := v1handlers.NewEventFeedHandler(deps.Hub, deps.EventRepo)
	v1Router.HandleFunc("/events", feedHandler.History).Methods("GET")
	v1Router.HandleFunc("/events/feed", feedHandler.Feed).Methods("GET")

	// Diagnostics endpoints
	diagnosticsHandler := v1handlers.NewDiagnosticsHandler(deps.Diagnostic)
	v1Router.HandleFunc("/diagnostics/health", diagnosticsHandler.Health).Methods("GET")
	v1Router.HandleFunc("/diagnostics/snapshot", diagnosticsHandler.Snapshot).Methods("GET")

	debug.Info("/api/v1 control routes configured successfully")
}
