package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ZerkerEOD/hashfleet/internal/config"
	"github.com/ZerkerEOD/hashfleet/internal/repository"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// purgeTimeout bounds one purge pass so a slow delete cannot pile up
// behind the next scheduled run
const purgeTimeout = 10 * time.Minute

// Service purges aged operational records: transition events and agent
// fault logs older than the retention window. Domain data (hashlists,
// crack results, campaigns) is never touched; those are deleted only by
// operator action.
type Service struct {
	eventRepo      *repository.EventRepository
	agentErrorRepo *repository.AgentErrorRepository
	tuning         *config.Tuning

	cron    *cron.Cron
	running bool
	mu      sync.Mutex
}

// NewService creates a new retention service
func NewService(
	eventRepo *repository.EventRepository,
	agentErrorRepo *repository.AgentErrorRepository,
	tuning *config.Tuning,
) *Service {
	return &Service{
		eventRepo:      eventRepo,
		agentErrorRepo: agentErrorRepo,
		tuning:         tuning,
	}
}

// Start schedules the purge on the configured cron expression
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("retention service already running")
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.tuning.RetentionSchedule, s.runScheduled); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", s.tuning.RetentionSchedule, err)
	}
	s.cron.Start()
	s.running = true

	debug.Info("Retention purge scheduled: %q, window %s",
		s.tuning.RetentionSchedule, s.tuning.RetentionWindow())
	return nil
}

// Stop halts the schedule. A purge already in flight finishes.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cron.Stop()
	s.running = false

	debug.Info("Retention purge stopped")
}

func (s *Service) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()

	if err := s.Purge(ctx); err != nil {
		debug.Error("Retention purge failed: %v", err)
	}
}

// Purge deletes records older than the retention window. Exported so an
// operator endpoint or test can trigger a pass outside the schedule.
func (s *Service) Purge(ctx context.Context) error {
	cutoff := time.Now().Add(-s.tuning.RetentionWindow())

	events, err := s.eventRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge transition events: %w", err)
	}

	agentErrors, err := s.agentErrorRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge agent errors: %w", err)
	}

	debug.Log("Retention purge finished", map[string]interface{}{
		"cutoff":         cutoff,
		"events_deleted": events,
		"errors_deleted": agentErrors,
	})
	return nil
}
