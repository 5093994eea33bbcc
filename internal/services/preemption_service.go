package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/internal/repository"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// PreemptionService enforces priority ordering between campaigns inside a
// project. Activating a campaign pauses every running campaign of strictly
// lower priority; equal tiers coexist and are ordered by creation time in
// the scheduler. Preempted campaigns are starved, not recalled: their
// claimed tasks run to completion, they just receive no new assignments.
type PreemptionService struct {
	campaignRepo *repository.CampaignRepository
	recorder     *TransitionRecorder
}

// NewPreemptionService creates a new preemption service
func NewPreemptionService(campaignRepo *repository.CampaignRepository, recorder *TransitionRecorder) *PreemptionService {
	return &PreemptionService{
		campaignRepo: campaignRepo,
		recorder:     recorder,
	}
}

// OnCampaignActivated pauses all running campaigns in the same project with
// strictly lower priority than the entrant. Individual pause failures are
// logged and skipped; the pass never aborts part way.
func (s *PreemptionService) OnCampaignActivated(ctx context.Context, campaign *models.Campaign) error {
	victims, err := s.campaignRepo.ListPreemptible(ctx, campaign.ProjectID, campaign.Priority)
	if err != nil {
		return fmt.Errorf("failed to list preemptible campaigns: %w", err)
	}

	for i := range victims {
		victim := &victims[i]

		err := s.campaignRepo.TransitionStatus(ctx, victim.ID, models.CampaignStatusRunning, models.CampaignStatusPaused)
		if errors.Is(err, repository.ErrTransitionConflict) {
			// Moved concurrently, nothing to preempt anymore.
			continue
		}
		if err != nil {
			debug.Warning("Failed to preempt campaign %s: %v", victim.ID, err)
			continue
		}

		debug.Log("Campaign preempted", map[string]interface{}{
			"campaign_id":      victim.ID,
			"priority":         victim.Priority,
			"preempted_by":     campaign.ID,
			"entrant_priority": campaign.Priority,
		})

		s.recorder.Record(ctx, models.EntityTypeCampaign, victim.ID,
			string(models.CampaignStatusRunning), string(models.CampaignStatusPaused),
			ActorSystem, fmt.Sprintf("preempted by %s", campaign.Name))
	}

	return nil
}

// OnCampaignSettled re-evaluates resume eligibility in a project after a
// campaign stops dispatching. Paused campaigns resume highest priority
// first, each only if no strictly higher priority campaign is still
// running. A resumed campaign re-asserts preemption over lower tiers.
func (s *PreemptionService) OnCampaignSettled(ctx context.Context, projectID uuid.UUID) error {
	paused, err := s.campaignRepo.ListPausedInProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to list paused campaigns: %w", err)
	}

	for i := range paused {
		candidate := &paused[i]

		higher, err := s.campaignRepo.CountRunningAbovePriority(ctx, projectID, candidate.Priority)
		if err != nil {
			debug.Warning("Failed to check resume eligibility for campaign %s: %v", candidate.ID, err)
			continue
		}
		if higher > 0 {
			continue
		}

		err = s.campaignRepo.TransitionStatus(ctx, candidate.ID, models.CampaignStatusPaused, models.CampaignStatusRunning)
		if errors.Is(err, repository.ErrTransitionConflict) {
			continue
		}
		if err != nil {
			debug.Warning("Failed to resume campaign %s: %v", candidate.ID, err)
			continue
		}

		debug.Log("Campaign resumed after preemption cleared", map[string]interface{}{
			"campaign_id": candidate.ID,
			"priority":    candidate.Priority,
		})

		s.recorder.Record(ctx, models.EntityTypeCampaign, candidate.ID,
			string(models.CampaignStatusPaused), string(models.CampaignStatusRunning),
			ActorSystem, "no higher priority work remains")

		candidate.Status = models.CampaignStatusRunning
		if err := s.OnCampaignActivated(ctx, candidate); err != nil {
			debug.Warning("Failed to re-assert preemption for resumed campaign %s: %v", candidate.ID, err)
		}
	}

	return nil
}
