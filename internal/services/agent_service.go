package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/internal/repository"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

const (
	// agentKeyLength is the length of an agent API key in bytes
	// (32 bytes = 64 hex characters on the wire)
	agentKeyLength = 32

	defaultErrorListLimit = 50
)

// AgentRegistration carries the fields an agent submits when it enrolls.
// The signature identifies the installation across restarts and re-enrolls.
type AgentRegistration struct {
	Name      string            `json:"name"`
	Host      string            `json:"host"`
	Signature string            `json:"signature"`
	Version   string            `json:"version"`
	Devices   models.DeviceInfo `json:"devices"`
}

// BenchmarkResult is one measured speed for one hash type
type BenchmarkResult struct {
	HashTypeID int   `json:"hash_type_id"`
	Speed      int64 `json:"speed"`
}

// ErrorReport is agent-side fault telemetry. It never carries task state;
// a failed slice comes back through the task failure path instead.
type ErrorReport struct {
	TaskID   *uuid.UUID           `json:"task_id,omitempty"`
	AttackID *uuid.UUID           `json:"attack_id,omitempty"`
	Severity models.ErrorSeverity `json:"severity"`
	Message  string               `json:"message"`
	Metadata json.RawMessage      `json:"metadata,omitempty"`
}

// AgentService owns the agent lifecycle: enrollment and credential
// rotation, benchmark intake, fault handling, and the operator actions
// that take agents in and out of rotation.
type AgentService struct {
	agentRepo   *repository.AgentRepository
	errorRepo   *repository.AgentErrorRepository
	projectRepo *repository.ProjectRepository
	capability  *CapabilityService
	lease       *LeaseService
	recorder    *TransitionRecorder
}

// NewAgentService creates a new agent service
func NewAgentService(
	agentRepo *repository.AgentRepository,
	errorRepo *repository.AgentErrorRepository,
	projectRepo *repository.ProjectRepository,
	capability *CapabilityService,
	lease *LeaseService,
	recorder *TransitionRecorder,
) *AgentService {
	return &AgentService{
		agentRepo:   agentRepo,
		errorRepo:   errorRepo,
		projectRepo: projectRepo,
		capability:  capability,
		lease:       lease,
		recorder:    recorder,
	}
}

// Register enrolls an agent and returns the plaintext API key, shown
// exactly once. An agent re-registering with a known signature keeps its
// identity but gets a fresh key and restarts its lifecycle at pending, so
// changed hardware is re-benchmarked before it receives work.
func (s *AgentService) Register(ctx context.Context, reg AgentRegistration) (*models.Agent, string, error) {
	if reg.Name == "" {
		return nil, "", fmt.Errorf("agent name is required")
	}
	if reg.Signature == "" {
		return nil, "", fmt.Errorf("agent signature is required")
	}

	key, keyHash, err := newAgentKey()
	if err != nil {
		return nil, "", err
	}

	existing, err := s.agentRepo.GetBySignature(ctx, reg.Signature)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, "", err
	}

	if existing != nil {
		prior := existing.Status
		existing.Name = reg.Name
		existing.Host = reg.Host
		existing.APIKeyHash = keyHash
		existing.Version = reg.Version
		existing.Devices = reg.Devices
		if err := s.agentRepo.UpdateRegistration(ctx, existing); err != nil {
			return nil, "", err
		}
		existing.Status = models.AgentStatusPending

		if prior != models.AgentStatusPending {
			s.recorder.Record(ctx, models.EntityTypeAgent, existing.ID, string(prior),
				string(models.AgentStatusPending), existing.ID.String(), "re-registered")
		}
		debug.Log("Agent re-registered", map[string]interface{}{
			"agent_id": existing.ID,
			"name":     existing.Name,
			"host":     existing.Host,
		})
		return existing, key, nil
	}

	agent := &models.Agent{
		Name:       reg.Name,
		Host:       reg.Host,
		Signature:  reg.Signature,
		APIKeyHash: keyHash,
		Version:    reg.Version,
		Devices:    reg.Devices,
		IsEnabled:  true,
	}
	if err := s.agentRepo.Create(ctx, agent); err != nil {
		return nil, "", err
	}

	debug.Log("Agent registered", map[string]interface{}{
		"agent_id": agent.ID,
		"name":     agent.Name,
		"host":     agent.Host,
	})
	return agent, key, nil
}

// Authenticate checks an agent's API key. Disabled agents fail even with
// a valid key; status is not checked here because retired and errored
// agents still need to reach the API to re-register or report.
func (s *AgentService) Authenticate(ctx context.Context, agentID uuid.UUID, apiKey string) (*models.Agent, error) {
	agent, err := s.agentRepo.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidAgentKey
		}
		return nil, err
	}

	digest := hashAgentKey(apiKey)
	if subtle.ConstantTimeCompare([]byte(digest), []byte(agent.APIKeyHash)) != 1 {
		return nil, ErrInvalidAgentKey
	}
	if !agent.IsEnabled {
		return nil, ErrAgentDisabled
	}

	return agent, nil
}

// SubmitBenchmarks records measured speeds for an agent. A pending agent
// becomes active on its first accepted batch; an errored agent stays in
// error until an operator re-benchmark resets it, even though its
// measurements are stored.
func (s *AgentService) SubmitBenchmarks(ctx context.Context, agentID uuid.UUID, results []BenchmarkResult) ([]models.AgentBenchmark, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("no benchmark results submitted")
	}

	agent, err := s.agentRepo.GetByID(ctx, agentID)
	if err != nil {
		return nil, err
	}

	stored := make([]models.AgentBenchmark, 0, len(results))
	for _, res := range results {
		if res.HashTypeID <= 0 || res.Speed <= 0 {
			debug.Warning("Skipping invalid benchmark from agent %s: hash type %d, speed %d",
				agentID, res.HashTypeID, res.Speed)
			continue
		}
		bench, err := s.capability.RecordBenchmark(ctx, agentID, res.HashTypeID, res.Speed)
		if err != nil {
			return nil, fmt.Errorf("failed to record benchmark for hash type %d: %w", res.HashTypeID, err)
		}
		stored = append(stored, *bench)
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("no valid benchmark results submitted")
	}

	s.activateAfterBenchmark(ctx, agent)

	debug.Log("Agent benchmarks recorded", map[string]interface{}{
		"agent_id": agentID,
		"count":    len(stored),
	})
	return stored, nil
}

// activateAfterBenchmark flips a pending agent to active once it has
// measurements. Concurrent submissions race on the same transition; the
// losers see a conflict and nothing more needs to happen.
func (s *AgentService) activateAfterBenchmark(ctx context.Context, agent *models.Agent) {
	if agent.Status != models.AgentStatusPending {
		return
	}
	if err := s.agentRepo.TransitionStatus(ctx, agent.ID, models.AgentStatusPending, models.AgentStatusActive); err != nil {
		if !errors.Is(err, repository.ErrTransitionConflict) {
			debug.Warning("Failed to activate agent %s after benchmark: %v", agent.ID, err)
		}
		return
	}
	s.recorder.Record(ctx, models.EntityTypeAgent, agent.ID, string(models.AgentStatusPending),
		string(models.AgentStatusActive), agent.ID.String(), "benchmarks accepted")
	debug.Log("Agent activated", map[string]interface{}{
		"agent_id": agent.ID,
	})
}

// ReportError stores one fault report from an agent. Major and worse
// degrade the agent to error status; fatal additionally returns its
// claims to the pending pool right away instead of waiting for the lease
// sweep. Task state is never touched here.
func (s *AgentService) ReportError(ctx context.Context, agentID uuid.UUID, report ErrorReport) (*models.AgentError, error) {
	if !report.Severity.IsValid() {
		return nil, fmt.Errorf("unknown error severity %q", report.Severity)
	}
	if report.Message == "" {
		return nil, fmt.Errorf("error message is required")
	}

	agentError := &models.AgentError{
		AgentID:  agentID,
		TaskID:   report.TaskID,
		AttackID: report.AttackID,
		Severity: report.Severity,
		Message:  report.Message,
		Metadata: report.Metadata,
	}
	if err := s.errorRepo.Create(ctx, agentError); err != nil {
		return nil, err
	}

	if err := s.agentRepo.SetLastError(ctx, agentID, report.Message); err != nil {
		debug.Warning("Failed to set last error on agent %s: %v", agentID, err)
	}

	if report.Severity.DegradesAgent() {
		s.degradeAgent(ctx, agentID, report.Severity)
	}
	if report.Severity.IsFatal() {
		if _, err := s.lease.ReleaseAgentClaims(ctx, agentID, "fatal agent error"); err != nil {
			debug.Error("Failed to release claims after fatal error from agent %s: %v", agentID, err)
		}
	}

	debug.Log("Agent error recorded", map[string]interface{}{
		"agent_id": agentID,
		"severity": report.Severity,
	})
	return agentError, nil
}

func (s *AgentService) degradeAgent(ctx context.Context, agentID uuid.UUID, severity models.ErrorSeverity) {
	agent, err := s.agentRepo.GetByID(ctx, agentID)
	if err != nil {
		debug.Warning("Failed to load agent %s for degradation: %v", agentID, err)
		return
	}
	if agent.Status == models.AgentStatusError || agent.Status == models.AgentStatusRetired {
		return
	}
	if err := s.agentRepo.TransitionStatus(ctx, agent.ID, agent.Status, models.AgentStatusError); err != nil {
		if !errors.Is(err, repository.ErrTransitionConflict) {
			debug.Warning("Failed to degrade agent %s to error: %v", agent.ID, err)
		}
		return
	}
	s.recorder.Record(ctx, models.EntityTypeAgent, agent.ID, string(agent.Status),
		string(models.AgentStatusError), ActorSystem, fmt.Sprintf("%s error reported", severity))
	debug.Log("Agent degraded to error", map[string]interface{}{
		"agent_id": agent.ID,
		"severity": severity,
	})
}

// Shutdown handles a clean sign-off. Claims go back to the pending pool
// immediately so other agents can pick them up without waiting out the
// lease, and the agent is retired. Agents re-register on boot, so a
// restart creates a fresh lifecycle under the same signature.
func (s *AgentService) Shutdown(ctx context.Context, agentID uuid.UUID) error {
	agent, err := s.agentRepo.GetByID(ctx, agentID)
	if err != nil {
		return err
	}

	released, err := s.lease.ReleaseAgentClaims(ctx, agentID, "agent shut down")
	if err != nil {
		return err
	}

	if agent.Status != models.AgentStatusRetired {
		if err := s.agentRepo.TransitionStatus(ctx, agentID, agent.Status, models.AgentStatusRetired); err != nil {
			if !errors.Is(err, repository.ErrTransitionConflict) {
				return err
			}
		} else {
			s.recorder.Record(ctx, models.EntityTypeAgent, agentID, string(agent.Status),
				string(models.AgentStatusRetired), agentID.String(), "clean shutdown")
		}
	}

	debug.Log("Agent shut down", map[string]interface{}{
		"agent_id":       agentID,
		"tasks_released": released,
	})
	return nil
}

// Get returns one agent by ID
func (s *AgentService) Get(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	return s.agentRepo.GetByID(ctx, id)
}

// List returns all agents, newest first
func (s *AgentService) List(ctx context.Context) ([]models.Agent, error) {
	return s.agentRepo.List(ctx)
}

// ListErrors returns an agent's recent error reports, newest first
func (s *AgentService) ListErrors(ctx context.Context, agentID uuid.UUID, limit int) ([]models.AgentError, error) {
	if limit <= 0 {
		limit = defaultErrorListLimit
	}
	return s.errorRepo.ListByAgent(ctx, agentID, limit)
}

// SetEnabled flips the operator kill switch. Disabling also returns the
// agent's claims so its work is not stuck behind the lease; the status
// machine is untouched because enablement is orthogonal to lifecycle.
func (s *AgentService) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	if err := s.agentRepo.SetEnabled(ctx, id, enabled); err != nil {
		return err
	}
	if !enabled {
		if _, err := s.lease.ReleaseAgentClaims(ctx, id, "agent disabled by operator"); err != nil {
			debug.Error("Failed to release claims for disabled agent %s: %v", id, err)
		}
	}
	debug.Log("Agent enablement changed", map[string]interface{}{
		"agent_id": id,
		"enabled":  enabled,
	})
	return nil
}

// Retire permanently removes an agent from rotation. Its claims are
// released and its status becomes terminal; only a re-registration under
// the same signature creates a fresh lifecycle.
func (s *AgentService) Retire(ctx context.Context, id uuid.UUID) error {
	agent, err := s.agentRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if agent.Status == models.AgentStatusRetired {
		return nil
	}
	if err := models.ValidateAgentTransition(agent.Status, models.AgentStatusRetired); err != nil {
		return err
	}

	if _, err := s.lease.ReleaseAgentClaims(ctx, id, "agent retired by operator"); err != nil {
		return err
	}

	if err := s.agentRepo.TransitionStatus(ctx, id, agent.Status, models.AgentStatusRetired); err != nil {
		return fmt.Errorf("failed to retire agent %s: %w", id, err)
	}
	s.recorder.Record(ctx, models.EntityTypeAgent, id, string(agent.Status),
		string(models.AgentStatusRetired), ActorOperator, "retired by operator")

	debug.Log("Agent retired", map[string]interface{}{
		"agent_id": id,
	})
	return nil
}

// TriggerRebenchmark sends an agent back to pending so it must measure
// again before receiving work. This is also the only way out of error
// status short of re-registration.
func (s *AgentService) TriggerRebenchmark(ctx context.Context, id uuid.UUID) error {
	agent, err := s.agentRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if agent.Status == models.AgentStatusPending {
		return nil
	}
	if err := models.ValidateAgentTransition(agent.Status, models.AgentStatusPending); err != nil {
		return err
	}

	if err := s.agentRepo.TransitionStatus(ctx, id, agent.Status, models.AgentStatusPending); err != nil {
		return fmt.Errorf("failed to reset agent %s for re-benchmark: %w", id, err)
	}
	s.recorder.Record(ctx, models.EntityTypeAgent, id, string(agent.Status),
		string(models.AgentStatusPending), ActorOperator, "re-benchmark requested")

	debug.Log("Agent re-benchmark requested", map[string]interface{}{
		"agent_id": id,
		"from":     agent.Status,
	})
	return nil
}

// ReplaceProjects sets the agent's project scope. Every project must
// exist; an empty list means the agent serves all projects.
func (s *AgentService) ReplaceProjects(ctx context.Context, agentID uuid.UUID, projectIDs []uuid.UUID) error {
	if _, err := s.agentRepo.GetByID(ctx, agentID); err != nil {
		return err
	}
	for _, projectID := range projectIDs {
		if _, err := s.projectRepo.GetByID(ctx, projectID); err != nil {
			return fmt.Errorf("project %s: %w", projectID, err)
		}
	}
	return s.agentRepo.ReplaceProjects(ctx, agentID, projectIDs)
}

// Delete removes a retired agent's row. Task provenance survives because
// the task foreign key nulls out rather than cascading.
func (s *AgentService) Delete(ctx context.Context, id uuid.UUID) error {
	agent, err := s.agentRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if agent.Status != models.AgentStatusRetired {
		return fmt.Errorf("agent %s is %s, retire it before deleting", id, agent.Status)
	}
	if err := s.agentRepo.Delete(ctx, id); err != nil {
		return err
	}
	debug.Log("Agent deleted", map[string]interface{}{
		"agent_id": id,
	})
	return nil
}

// newAgentKey mints a random key and its storage digest. The plaintext
// goes to the agent once and is never persisted.
func newAgentKey() (key, digest string, err error) {
	raw := make([]byte, agentKeyLength)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate agent key: %w", err)
	}
	key = hex.EncodeToString(raw)
	return key, hashAgentKey(key), nil
}

// hashAgentKey digests a key for storage and comparison. Keys are
// 256-bit random values, not passwords, so a plain digest suffices.
func hashAgentKey(key string) string {
	sum := sha3.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
