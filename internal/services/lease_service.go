package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/config"
	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/internal/repository"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// LeaseService keeps claims honest. Heartbeats renew the lease on an
// agent's running task; the background sweep marks silent agents
// disconnected and returns their expired claims to the pending pool with
// the stale flag set, so recorded progress survives reassignment. Only the
// sweep revokes a claim and only a heartbeat renews one, which keeps the
// two racing writers to lease state down to exactly these two paths.
type LeaseService struct {
	agentRepo    *repository.AgentRepository
	taskRepo     *repository.TaskRepository
	attackRepo   *repository.AttackRepository
	campaignRepo *repository.CampaignRepository
	capability   *CapabilityService
	recorder     *TransitionRecorder
	tuning       *config.Tuning

	ticker  *time.Ticker
	stopCh  chan struct{}
	running bool
	mu      sync.Mutex
}

// NewLeaseService creates a new lease service
func NewLeaseService(
	agentRepo *repository.AgentRepository,
	taskRepo *repository.TaskRepository,
	attackRepo *repository.AttackRepository,
	campaignRepo *repository.CampaignRepository,
	capability *CapabilityService,
	recorder *TransitionRecorder,
	tuning *config.Tuning,
) *LeaseService {
	return &LeaseService{
		agentRepo:    agentRepo,
		taskRepo:     taskRepo,
		attackRepo:   attackRepo,
		campaignRepo: campaignRepo,
		capability:   capability,
		recorder:     recorder,
		tuning:       tuning,
		stopCh:       make(chan struct{}),
	}
}

// Start begins the periodic sweep goroutine
func (s *LeaseService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("lease service already running")
	}
	s.running = true
	s.mu.Unlock()

	debug.Info("Starting lease sweep every %s (heartbeat grace %s, lease %s)",
		s.tuning.SweepInterval(), s.tuning.HeartbeatGrace(), s.tuning.LeaseDuration())

	s.ticker = time.NewTicker(s.tuning.SweepInterval())
	go s.sweepLoop(ctx)

	return nil
}

// Stop stops the sweep goroutine
func (s *LeaseService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	close(s.stopCh)
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.running = false

	debug.Info("Lease sweep stopped")
}

func (s *LeaseService) sweepLoop(ctx context.Context) {
	// Sweep immediately on start so a restart does not leave orphaned
	// claims waiting a full interval.
	s.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			debug.Info("Lease sweep context cancelled")
			return
		case <-s.stopCh:
			debug.Info("Lease sweep stop signal received")
			return
		case <-s.ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass: silence detection first, then claim reclamation.
// Ordering matters because reclamation only touches tasks whose owning
// agent is already non-live. Exported so tests can drive the sweep without
// the ticker.
func (s *LeaseService) Sweep(ctx context.Context) {
	now := time.Now()

	silenced, err := s.agentRepo.MarkSilentAgentsDisconnected(ctx, now.Add(-s.tuning.HeartbeatGrace()))
	if err != nil {
		debug.Error("Failed to mark silent agents disconnected: %v", err)
	}
	for id, prior := range silenced {
		s.recorder.Record(ctx, models.EntityTypeAgent, id, string(prior),
			string(models.AgentStatusDisconnected), ActorSystem, "heartbeat grace expired")
	}

	reclaimed, err := s.taskRepo.SweepExpiredClaims(ctx, now)
	if err != nil {
		debug.Error("Failed to sweep expired claims: %v", err)
		return
	}
	for i := range reclaimed {
		task := &reclaimed[i]
		note := "lease expired"
		if task.AgentID != nil {
			note = fmt.Sprintf("lease expired on agent %s", task.AgentID)
		}
		s.recorder.Record(ctx, models.EntityTypeTask, task.ID, string(models.TaskStatusRunning),
			string(models.TaskStatusPending), ActorSystem, note)
	}

	if len(silenced) > 0 || len(reclaimed) > 0 {
		debug.Log("Lease sweep finished", map[string]interface{}{
			"agents_disconnected": len(silenced),
			"tasks_reclaimed":     len(reclaimed),
		})
	}
}

// HeartbeatAck is the coordinator's answer to a liveness ping. A task the
// agent holds locally that is absent from RenewedTaskIDs has lost its
// claim; the agent must stop working it.
type HeartbeatAck struct {
	RenewedTaskIDs []uuid.UUID    `json:"renewed_task_ids"`
	Advisories     []TaskAdvisory `json:"advisories,omitempty"`
	NeedsBenchmark bool           `json:"needs_benchmark"`
}

// TaskAdvisory tells an agent what to do with a task it still holds
type TaskAdvisory struct {
	TaskID uuid.UUID `json:"task_id"`
	Action string    `json:"action"` // "pause" or "abandon"
	Reason string    `json:"reason"`
}

// Heartbeat processes a liveness ping. The agent's last-seen time is
// refreshed, the lease on its running task is renewed, and an agent the
// sweep had marked disconnected is walked back to active. The ack carries
// advisories for held work whose attack or campaign was paused or
// abandoned, and flags stale benchmarks for re-measurement.
func (s *LeaseService) Heartbeat(ctx context.Context, agentID uuid.UUID) (*HeartbeatAck, error) {
	agent, err := s.agentRepo.GetByID(ctx, agentID)
	if err != nil {
		return nil, err
	}

	if err := s.agentRepo.Touch(ctx, agentID); err != nil {
		return nil, err
	}

	s.restoreLiveness(ctx, agent)

	renewed, err := s.taskRepo.RenewLease(ctx, agentID, time.Now().Add(s.tuning.LeaseDuration()))
	if err != nil {
		return nil, err
	}

	ack := &HeartbeatAck{RenewedTaskIDs: renewed}

	if advisory := s.adviseHeldTask(ctx, agentID); advisory != nil {
		ack.Advisories = append(ack.Advisories, *advisory)
	}

	needs, err := s.capability.NeedsBenchmark(ctx, agentID)
	if err != nil {
		debug.Warning("Failed to check benchmark freshness for agent %s: %v", agentID, err)
	} else {
		ack.NeedsBenchmark = needs
	}

	return ack, nil
}

// adviseHeldTask inspects the agent's running task and reports whether
// the operator has paused or abandoned the work above it. Lookup errors
// produce no advisory; the next heartbeat tries again.
func (s *LeaseService) adviseHeldTask(ctx context.Context, agentID uuid.UUID) *TaskAdvisory {
	task, err := s.taskRepo.GetRunningTaskForAgent(ctx, agentID)
	if err != nil {
		debug.Warning("Failed to load running task for agent %s: %v", agentID, err)
		return nil
	}
	if task == nil {
		return nil
	}

	attack, err := s.attackRepo.GetByID(ctx, task.AttackID)
	if err != nil {
		debug.Warning("Failed to load attack %s for advisory: %v", task.AttackID, err)
		return nil
	}

	switch attack.Status {
	case models.AttackStatusPaused:
		return &TaskAdvisory{TaskID: task.ID, Action: "pause", Reason: "attack paused"}
	case models.AttackStatusAbandoned:
		return &TaskAdvisory{TaskID: task.ID, Action: "abandon", Reason: "attack abandoned"}
	}

	campaign, err := s.campaignRepo.GetByID(ctx, attack.CampaignID)
	if err != nil {
		debug.Warning("Failed to load campaign %s for advisory: %v", attack.CampaignID, err)
		return nil
	}

	switch campaign.Status {
	case models.CampaignStatusPaused:
		return &TaskAdvisory{TaskID: task.ID, Action: "pause", Reason: "campaign paused"}
	case models.CampaignStatusAbandoned:
		return &TaskAdvisory{TaskID: task.ID, Action: "abandon", Reason: "campaign abandoned"}
	}

	return nil
}

// ReleaseAgentClaims returns every running task the agent holds to the
// pending pool immediately, without waiting for lease expiry. Used when a
// fatal fault or an operator action takes the agent out of rotation.
func (s *LeaseService) ReleaseAgentClaims(ctx context.Context, agentID uuid.UUID, note string) (int, error) {
	tasks, err := s.taskRepo.ReleaseClaimsForAgent(ctx, agentID)
	if err != nil {
		return 0, err
	}

	for i := range tasks {
		s.recorder.Record(ctx, models.EntityTypeTask, tasks[i].ID, string(models.TaskStatusRunning),
			string(models.TaskStatusPending), ActorSystem, note)
	}

	if len(tasks) > 0 {
		debug.Log("Released agent claims", map[string]interface{}{
			"agent_id": agentID,
			"count":    len(tasks),
		})
	}

	return len(tasks), nil
}

// restoreLiveness walks a disconnected agent back to active after a
// heartbeat. The walk goes through reconnecting because that is the only
// permitted path out of disconnected; races with concurrent heartbeats are
// absorbed. Error and retired agents stay where they are, those recover
// through operator action only.
func (s *LeaseService) restoreLiveness(ctx context.Context, agent *models.Agent) {
	status := agent.Status
	if status == models.AgentStatusDisconnected {
		if err := s.transitionAgent(ctx, agent.ID, status, models.AgentStatusReconnecting); err != nil {
			return
		}
		status = models.AgentStatusReconnecting
	}
	if status == models.AgentStatusReconnecting {
		if err := s.transitionAgent(ctx, agent.ID, status, models.AgentStatusActive); err != nil {
			return
		}
		debug.Log("Agent restored to active by heartbeat", map[string]interface{}{
			"agent_id": agent.ID,
		})
	}
}

func (s *LeaseService) transitionAgent(ctx context.Context, id uuid.UUID, from, to models.AgentStatus) error {
	if err := s.agentRepo.TransitionStatus(ctx, id, from, to); err != nil {
		if !errors.Is(err, repository.ErrTransitionConflict) {
			debug.Warning("Failed to transition agent %s from %s to %s: %v", id, from, to, err)
		}
		return err
	}
	s.recorder.Record(ctx, models.EntityTypeAgent, id, string(from), string(to),
		id.String(), "heartbeat received")
	return nil
}
