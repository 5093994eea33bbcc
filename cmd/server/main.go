package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/ZerkerEOD/hashfleet/internal/config"
	"github.com/ZerkerEOD/hashfleet/internal/db"
	"github.com/ZerkerEOD/hashfleet/internal/repository"
	"github.com/ZerkerEOD/hashfleet/internal/routes"
	"github.com/ZerkerEOD/hashfleet/internal/services"
	"github.com/ZerkerEOD/hashfleet/internal/services/diagnostic"
	"github.com/ZerkerEOD/hashfleet/internal/services/retention"
	"github.com/ZerkerEOD/hashfleet/internal/storage"
	"github.com/ZerkerEOD/hashfleet/internal/version"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hashfleet",
	Short: "Coordinator for distributed hash recovery fleets",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := connectFromEnv()
		if err != nil {
			return err
		}
		defer database.Close()

		if err := database.MigrateUp(); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		fmt.Println("Migrations applied")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := connectFromEnv()
		if err != nil {
			return err
		}
		defer database.Close()

		if err := database.MigrateDown(); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		fmt.Println("Rolled back one migration")
		return nil
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current migration version",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := connectFromEnv()
		if err != nil {
			return err
		}
		defer database.Close()

		v, dirty, err := database.MigrationVersion()
		if err != nil {
			return fmt.Errorf("reading migration version: %w", err)
		}
		if dirty {
			fmt.Printf("Schema version %d (dirty)\n", v)
		} else {
			fmt.Printf("Schema version %d\n", v)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the server version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hashfleet %s\n", version.Version)
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

// connectFromEnv loads just enough config to reach the database. Used by
// the migrate subcommands so they do not require the full server config.
func connectFromEnv() (*db.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return database, nil
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()

	if err := database.MigrateUp(); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	// Repositories share the one pool.
	projectRepo := repository.NewProjectRepository(database)
	campaignRepo := repository.NewCampaignRepository(database)
	attackRepo := repository.NewAttackRepository(database)
	taskRepo := repository.NewTaskRepository(database)
	hashlistRepo := repository.NewHashListRepository(database)
	hashItemRepo := repository.NewHashItemRepository(database)
	crackRepo := repository.NewCrackResultRepository(database)
	agentRepo := repository.NewAgentRepository(database)
	agentErrorRepo := repository.NewAgentErrorRepository(database)
	benchmarkRepo := repository.NewBenchmarkRepository(database)
	resourceRepo := repository.NewResourceRepository(database)
	eventRepo := repository.NewEventRepository(database)

	// Event fan-out. The AMQP publisher is optional; without it transition
	// events still land in the database and the websocket feed.
	hub := services.NewEventFeedHub()
	hub.Start()
	defer hub.Stop()

	var publisher *services.TransitionPublisher
	if cfg.Events.Enabled() {
		publisher = services.NewTransitionPublisher(cfg.Events.AMQPURL, cfg.Events.QueueName)
		defer publisher.Close()
	}
	recorder := services.NewTransitionRecorder(eventRepo, hub, publisher)

	var store *storage.S3Store
	if cfg.Storage.Enabled() {
		storeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		store, err = storage.NewS3Store(storeCtx, cfg.Storage)
		cancel()
		if err != nil {
			return fmt.Errorf("initializing object storage: %w", err)
		}
	}

	capability := services.NewCapabilityService(benchmarkRepo, cfg.Tuning)
	preemption := services.NewPreemptionService(campaignRepo, recorder)
	planner := services.NewTaskPlanner(taskRepo, resourceRepo, cfg.Tuning)
	progress := services.NewProgressService(taskRepo, attackRepo, campaignRepo, hashlistRepo, preemption, recorder, cfg.Tuning)
	lease := services.NewLeaseService(agentRepo, taskRepo, attackRepo, campaignRepo, capability, recorder, cfg.Tuning)
	resources := services.NewResourceService(resourceRepo, projectRepo, store, cfg.Tuning)
	scheduler := services.NewSchedulerService(agentRepo, campaignRepo, attackRepo, taskRepo, hashlistRepo, resourceRepo, capability, planner, recorder, resources, cfg.Tuning)
	cracks := services.NewCrackService(database, taskRepo, attackRepo, campaignRepo, hashItemRepo, hashlistRepo, crackRepo, progress, recorder)
	campaigns := services.NewCampaignService(database, projectRepo, campaignRepo, attackRepo, taskRepo, hashlistRepo, preemption, recorder)
	attacks := services.NewAttackService(database, campaignRepo, attackRepo, taskRepo, hashlistRepo, planner, progress, recorder)
	agents := services.NewAgentService(agentRepo, agentErrorRepo, projectRepo, capability, lease, recorder)
	projects := services.NewProjectService(projectRepo, campaignRepo)
	hashlists := services.NewHashListService(projectRepo, hashlistRepo, hashItemRepo, campaignRepo)

	retainer := retention.NewService(eventRepo, agentErrorRepo, cfg.Tuning)
	diag := diagnostic.NewService(database, store, publisher, hub, version.Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := lease.Start(ctx); err != nil {
		return fmt.Errorf("starting lease sweeper: %w", err)
	}
	defer lease.Stop()

	if err := retainer.Start(); err != nil {
		return fmt.Errorf("starting retention jobs: %w", err)
	}
	defer retainer.Stop()

	router := mux.NewRouter()
	routes.SetupRoutes(router, &routes.Deps{
		Config:     cfg,
		DB:         database,
		Agents:     agents,
		Lease:      lease,
		Scheduler:  scheduler,
		Progress:   progress,
		Cracks:     cracks,
		Resources:  resources,
		Projects:   projects,
		HashLists:  hashlists,
		Campaigns:  campaigns,
		Attacks:    attacks,
		Capability: capability,
		Hub:        hub,
		EventRepo:  eventRepo,
		Diagnostic: diag,
	})

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		debug.Info("hashfleet %s listening on %s", version.Version, cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		debug.Info("Shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	debug.Info("Server stopped cleanly")
	return nil
}
