package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/config"
	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/internal/repository"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// claimAttempts bounds how many times one poll retries a claim inside a
// single attack after losing a race to another agent
const claimAttempts = 2

// ResourceResolver issues short-lived download handles for attack
// resources. Implemented by the storage-backed resource service; nil when
// no object store is configured, in which case descriptors carry resource
// metadata without URLs and agents fetch handles separately.
type ResourceResolver interface {
	HandleFor(ctx context.Context, resource *models.Resource) (string, error)
}

// SchedulerService matches polling agents to tasks. Campaigns are walked in
// priority order within the agent's project scope; within a campaign,
// attacks in position order; within an attack, the first pending task or a
// freshly cut slice. All claim arbitration happens in the store, so any
// number of scheduler calls may run concurrently.
type SchedulerService struct {
	agentRepo    *repository.AgentRepository
	campaignRepo *repository.CampaignRepository
	attackRepo   *repository.AttackRepository
	taskRepo     *repository.TaskRepository
	hashlistRepo *repository.HashListRepository
	resourceRepo *repository.ResourceRepository
	capability   *CapabilityService
	planner      *TaskPlanner
	recorder     *TransitionRecorder
	resolver     ResourceResolver
	tuning       *config.Tuning
}

// NewSchedulerService creates a new scheduler service
func NewSchedulerService(
	agentRepo *repository.AgentRepository,
	campaignRepo *repository.CampaignRepository,
	attackRepo *repository.AttackRepository,
	taskRepo *repository.TaskRepository,
	hashlistRepo *repository.HashListRepository,
	resourceRepo *repository.ResourceRepository,
	capability *CapabilityService,
	planner *TaskPlanner,
	recorder *TransitionRecorder,
	resolver ResourceResolver,
	tuning *config.Tuning,
) *SchedulerService {
	return &SchedulerService{
		agentRepo:    agentRepo,
		campaignRepo: campaignRepo,
		attackRepo:   attackRepo,
		taskRepo:     taskRepo,
		hashlistRepo: hashlistRepo,
		resourceRepo: resourceRepo,
		capability:   capability,
		planner:      planner,
		recorder:     recorder,
		resolver:     resolver,
		tuning:       tuning,
	}
}

// RequestTask runs one scheduling pass for a polling agent. Returns a task
// descriptor, or nil when no work is available. A nil result is the normal
// idle answer, not an error; the agent retries after its own backoff.
func (s *SchedulerService) RequestTask(ctx context.Context, agentID uuid.UUID) (*models.TaskDescriptor, error) {
	agent, err := s.agentRepo.GetByID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !agent.Status.CanReceiveWork() || !agent.IsEnabled {
		return nil, fmt.Errorf("agent %s in status %s: %w", agentID, agent.Status, ErrAgentNotEligible)
	}
	if pattern := s.tuning.AgentVersionPattern(); !pattern.Matches(agent.Version) {
		return nil, fmt.Errorf("agent %s version %q outside supported %q: %w",
			agentID, agent.Version, pattern, ErrAgentNotEligible)
	}

	// One claim per agent. A poll while holding a task re-delivers the
	// same descriptor so a restarted agent can resume its range.
	held, err := s.taskRepo.GetRunningTaskForAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if held != nil {
		return s.describeHeldTask(ctx, held)
	}

	benchmarks, err := s.capability.BenchmarksFor(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if len(benchmarks) == 0 {
		// Nothing can be sized for an unmeasured agent.
		debug.Log("Agent has no benchmarks, no work offered", map[string]interface{}{
			"agent_id": agentID,
		})
		return nil, nil
	}

	campaigns, err := s.campaignRepo.ListDispatchableForProjects(ctx, agent.ProjectIDs)
	if err != nil {
		return nil, err
	}

	for i := range campaigns {
		campaign := &campaigns[i]

		hashlist, err := s.hashlistRepo.GetByID(ctx, campaign.HashListID)
		if err != nil {
			debug.Warning("Skipping campaign %s, hashlist load failed: %v", campaign.ID, err)
			continue
		}

		elig := s.capability.Evaluate(benchmarks, hashlist.HashTypeID, campaign.Priority)
		if !elig.Eligible {
			debug.Log("Agent ineligible for campaign, continuing scan", map[string]interface{}{
				"agent_id":     agentID,
				"campaign_id":  campaign.ID,
				"hash_type_id": hashlist.HashTypeID,
				"reason":       elig.Reason,
			})
			continue
		}

		attacks, err := s.attackRepo.ListDispatchableByCampaign(ctx, campaign.ID)
		if err != nil {
			debug.Warning("Skipping campaign %s, attack listing failed: %v", campaign.ID, err)
			continue
		}

		for j := range attacks {
			attack := &attacks[j]

			if attack.TotalKeyspace == nil || *attack.TotalKeyspace <= 0 {
				debug.Warning("Skipping attack %s with no computed keyspace", attack.ID)
				continue
			}

			desc, err := s.claimForAttack(ctx, agentID, attack, campaign, hashlist, elig.Speed)
			if err != nil {
				return nil, err
			}
			if desc != nil {
				return desc, nil
			}
		}
	}

	return nil, nil
}

// claimForAttack tries to claim one task within an attack for the agent.
// Returns nil with no error when the attack has nothing to offer.
func (s *SchedulerService) claimForAttack(
	ctx context.Context,
	agentID uuid.UUID,
	attack *models.Attack,
	campaign *models.Campaign,
	hashlist *models.HashList,
	speed int64,
) (*models.TaskDescriptor, error) {
	for attempt := 0; attempt < claimAttempts; attempt++ {
		task, err := s.planner.NextTaskForAttack(ctx, attack, speed)
		if err != nil {
			debug.Warning("Planner failed for attack %s: %v", attack.ID, err)
			return nil, nil
		}
		if task == nil {
			return nil, nil
		}

		expiresAt := time.Now().Add(s.tuning.LeaseDuration())
		claimed, err := s.taskRepo.Claim(ctx, task.ID, agentID, expiresAt)
		if errors.Is(err, repository.ErrClaimConflict) {
			// Either another agent took the task, or a concurrent poll from
			// this agent just claimed one. Resolve the second case first.
			held, herr := s.taskRepo.GetRunningTaskForAgent(ctx, agentID)
			if herr != nil {
				return nil, herr
			}
			if held != nil {
				return s.describeHeldTask(ctx, held)
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		s.recorder.Record(ctx, models.EntityTypeTask, claimed.ID,
			string(models.TaskStatusPending), string(models.TaskStatusRunning),
			agentID.String(), fmt.Sprintf("range %d-%d", claimed.Skip, claimed.KeyspaceEnd()))

		s.markAttackRunning(ctx, attack)

		return s.buildDescriptor(ctx, claimed, attack, campaign, hashlist)
	}

	return nil, nil
}

// markAttackRunning flips a pending attack to running on its first claim.
// Losing the flip race to a concurrent claim is fine.
func (s *SchedulerService) markAttackRunning(ctx context.Context, attack *models.Attack) {
	if attack.Status != models.AttackStatusPending {
		return
	}

	err := s.attackRepo.TransitionStatus(ctx, attack.ID, models.AttackStatusPending, models.AttackStatusRunning)
	if err != nil {
		if !errors.Is(err, repository.ErrTransitionConflict) {
			debug.Warning("Failed to mark attack %s running: %v", attack.ID, err)
		}
		return
	}

	attack.Status = models.AttackStatusRunning
	s.recorder.Record(ctx, models.EntityTypeAttack, attack.ID,
		string(models.AttackStatusPending), string(models.AttackStatusRunning),
		ActorSystem, "first task claimed")
}

// describeHeldTask rebuilds the descriptor for a task the agent already
// holds
func (s *SchedulerService) describeHeldTask(ctx context.Context, task *models.Task) (*models.TaskDescriptor, error) {
	attack, err := s.attackRepo.GetByID(ctx, task.AttackID)
	if err != nil {
		return nil, err
	}
	campaign, err := s.campaignRepo.GetByID(ctx, attack.CampaignID)
	if err != nil {
		return nil, err
	}
	hashlist, err := s.hashlistRepo.GetByID(ctx, campaign.HashListID)
	if err != nil {
		return nil, err
	}
	return s.buildDescriptor(ctx, task, attack, campaign, hashlist)
}

// buildDescriptor assembles the full work order an agent needs to run a
// task: range, attack parameters, and resource references with download
// handles when a resolver is configured.
func (s *SchedulerService) buildDescriptor(
	ctx context.Context,
	task *models.Task,
	attack *models.Attack,
	campaign *models.Campaign,
	hashlist *models.HashList,
) (*models.TaskDescriptor, error) {
	desc := &models.TaskDescriptor{
		TaskID:         task.ID,
		AttackID:       attack.ID,
		CampaignID:     campaign.ID,
		HashListID:     campaign.HashListID,
		HashTypeID:     hashlist.HashTypeID,
		Mode:           attack.Mode,
		Skip:           task.Skip,
		Limit:          task.Limit,
		Stale:          task.Stale,
		Mask:           attack.Mask,
		CustomCharsets: attack.CustomCharsets(),
	}
	if task.ExpiresAt != nil {
		desc.ExpiresAt = *task.ExpiresAt
	}

	var resourceIDs []uuid.UUID
	for _, id := range []*uuid.UUID{attack.WordlistID, attack.RulelistID, attack.MasklistID} {
		if id != nil {
			resourceIDs = append(resourceIDs, *id)
		}
	}
	if len(resourceIDs) == 0 {
		return desc, nil
	}

	resources, err := s.resourceRepo.GetByIDs(ctx, resourceIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load resources for attack %s: %w", attack.ID, err)
	}

	for _, id := range resourceIDs {
		resource, ok := resources[id]
		if !ok {
			return nil, fmt.Errorf("attack %s references missing resource %s", attack.ID, id)
		}

		ref := models.ResourceRef{
			ID:           resource.ID,
			ResourceType: resource.Type,
			FileName:     resource.Name,
			FileHash:     resource.FileHash,
			FileSize:     resource.FileSize,
		}
		if s.resolver != nil {
			url, err := s.resolver.HandleFor(ctx, resource)
			if err != nil {
				// The agent can still fetch a handle on its own.
				debug.Warning("Failed to presign resource %s: %v", resource.ID, err)
			} else {
				ref.DownloadURL = url
			}
		}
		desc.Resources = append(desc.Resources, ref)
	}

	return desc, nil
}
