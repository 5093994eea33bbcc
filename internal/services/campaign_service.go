package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/db"
	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/internal/repository"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// CampaignService manages the campaign lifecycle. Launching asserts
// priority against the campaign's project; pausing, abandoning, and
// completion hand the project back to whatever paused work remains.
type CampaignService struct {
	db           *db.DB
	projectRepo  *repository.ProjectRepository
	campaignRepo *repository.CampaignRepository
	attackRepo   *repository.AttackRepository
	taskRepo     *repository.TaskRepository
	hashlistRepo *repository.HashListRepository
	preemption   *PreemptionService
	recorder     *TransitionRecorder
}

// NewCampaignService creates a new campaign service
func NewCampaignService(
	database *db.DB,
	projectRepo *repository.ProjectRepository,
	campaignRepo *repository.CampaignRepository,
	attackRepo *repository.AttackRepository,
	taskRepo *repository.TaskRepository,
	hashlistRepo *repository.HashListRepository,
	preemption *PreemptionService,
	recorder *TransitionRecorder,
) *CampaignService {
	return &CampaignService{
		db:           database,
		projectRepo:  projectRepo,
		campaignRepo: campaignRepo,
		attackRepo:   attackRepo,
		taskRepo:     taskRepo,
		hashlistRepo: hashlistRepo,
		preemption:   preemption,
		recorder:     recorder,
	}
}

// Create persists a new draft campaign after checking its project and
// hashlist line up
func (s *CampaignService) Create(ctx context.Context, campaign *models.Campaign) error {
	if campaign.Name == "" {
		return fmt.Errorf("campaign name is required")
	}

	if _, err := s.projectRepo.GetByID(ctx, campaign.ProjectID); err != nil {
		return err
	}
	hashlist, err := s.hashlistRepo.GetByID(ctx, campaign.HashListID)
	if err != nil {
		return err
	}
	if hashlist.ProjectID != campaign.ProjectID {
		return fmt.Errorf("hashlist %s belongs to another project", hashlist.ID)
	}

	if err := s.campaignRepo.Create(ctx, campaign); err != nil {
		return err
	}

	debug.Log("Campaign created", map[string]interface{}{
		"campaign_id": campaign.ID,
		"project_id":  campaign.ProjectID,
		"hashlist_id": campaign.HashListID,
		"priority":    campaign.Priority,
	})

	return nil
}

// Update rewrites a campaign's editable fields. Only campaigns that have
// not started accept edits; changing priority mid-run would silently
// reshuffle preemption under running agents.
func (s *CampaignService) Update(ctx context.Context, campaign *models.Campaign) error {
	current, err := s.campaignRepo.GetByID(ctx, campaign.ID)
	if err != nil {
		return err
	}
	if current.Status != models.CampaignStatusDraft && current.Status != models.CampaignStatusScheduled {
		return fmt.Errorf("campaign %s is %s, only draft or scheduled campaigns can be edited", campaign.ID, current.Status)
	}
	if campaign.Name == "" {
		return fmt.Errorf("campaign name is required")
	}

	return s.campaignRepo.Update(ctx, campaign)
}

// Launch takes a campaign to running and asserts its priority. A draft
// passes through scheduled on the way. The hashlist must have finished
// ingesting and at least one attack must be runnable.
func (s *CampaignService) Launch(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch campaign.Status {
	case models.CampaignStatusRunning:
		return campaign, nil
	case models.CampaignStatusDraft, models.CampaignStatusScheduled, models.CampaignStatusFailed:
		// Launchable, including the retry of a failed campaign.
	case models.CampaignStatusPaused:
		// Resume owns the priority gate for paused campaigns.
		return nil, fmt.Errorf("campaign %s is paused, use resume", id)
	default:
		return nil, models.ValidateCampaignTransition(campaign.Status, models.CampaignStatusRunning)
	}

	hashlist, err := s.hashlistRepo.GetByID(ctx, campaign.HashListID)
	if err != nil {
		return nil, err
	}
	if hashlist.Status != models.HashListStatusReady {
		return nil, fmt.Errorf("hashlist %s is %s: %w", hashlist.ID, hashlist.Status, ErrHashListNotReady)
	}

	runnable, err := s.attackRepo.CountUnfinishedByCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if runnable == 0 {
		return nil, fmt.Errorf("campaign %s has no attacks to run", id)
	}

	if campaign.Status == models.CampaignStatusDraft {
		if err := s.transition(ctx, campaign, models.CampaignStatusScheduled, ActorOperator, "launch requested"); err != nil {
			return nil, err
		}
	}
	if err := s.transition(ctx, campaign, models.CampaignStatusRunning, ActorOperator, "launched"); err != nil {
		return nil, err
	}

	if err := s.preemption.OnCampaignActivated(ctx, campaign); err != nil {
		debug.Warning("Preemption pass failed after launching campaign %s: %v", id, err)
	}

	return campaign, nil
}

// Pause excludes a campaign from assignment. In-flight tasks are starved,
// not recalled; lower priority work paused under this campaign becomes
// eligible to resume.
func (s *CampaignService) Pause(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign.Status == models.CampaignStatusPaused {
		return campaign, nil
	}
	if err := s.transition(ctx, campaign, models.CampaignStatusPaused, ActorOperator, "paused by operator"); err != nil {
		return nil, err
	}

	if err := s.preemption.OnCampaignSettled(ctx, campaign.ProjectID); err != nil {
		debug.Warning("Resume pass failed after pausing campaign %s: %v", id, err)
	}

	return campaign, nil
}

// Resume puts a paused campaign back into rotation, provided no higher
// priority campaign still runs in its project. On success the resumed
// campaign asserts its own priority again.
func (s *CampaignService) Resume(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign.Status == models.CampaignStatusRunning {
		return campaign, nil
	}
	if err := models.ValidateCampaignTransition(campaign.Status, models.CampaignStatusRunning); err != nil {
		return nil, err
	}

	above, err := s.campaignRepo.CountRunningAbovePriority(ctx, campaign.ProjectID, campaign.Priority)
	if err != nil {
		return nil, err
	}
	if above > 0 {
		return nil, fmt.Errorf("campaign %s: %w", id, ErrHigherPriorityRunning)
	}

	if err := s.transition(ctx, campaign, models.CampaignStatusRunning, ActorOperator, "resumed by operator"); err != nil {
		return nil, err
	}

	if err := s.preemption.OnCampaignActivated(ctx, campaign); err != nil {
		debug.Warning("Preemption pass failed after resuming campaign %s: %v", id, err)
	}

	return campaign, nil
}

// Abandon terminally cancels a campaign, all its unfinished attacks, and
// their unfinished tasks in one transaction. Events follow after commit.
func (s *CampaignService) Abandon(ctx context.Context, id uuid.UUID) error {
	campaign, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if campaign.Status == models.CampaignStatusAbandoned {
		return nil
	}
	if err := models.ValidateCampaignTransition(campaign.Status, models.CampaignStatusAbandoned); err != nil {
		return err
	}

	attacks, err := s.attackRepo.ListByCampaign(ctx, id)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin abandon transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.campaignRepo.TransitionStatusTx(ctx, tx, id, campaign.Status, models.CampaignStatusAbandoned); err != nil {
		return err
	}

	var cancelled []models.Attack
	for i := range attacks {
		attack := &attacks[i]
		if attack.Status.IsFinished() {
			continue
		}
		err := s.attackRepo.AbandonTx(ctx, tx, attack.ID)
		if errors.Is(err, repository.ErrTransitionConflict) {
			// Finished between the list read and now.
			continue
		}
		if err != nil {
			return err
		}
		if _, err := s.taskRepo.AbandonForAttackTx(ctx, tx, attack.ID); err != nil {
			return err
		}
		cancelled = append(cancelled, *attack)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit abandon: %w", err)
	}

	s.recorder.Record(ctx, models.EntityTypeCampaign, id, string(campaign.Status),
		string(models.CampaignStatusAbandoned), ActorOperator, "abandoned by operator")
	for i := range cancelled {
		s.recorder.Record(ctx, models.EntityTypeAttack, cancelled[i].ID, string(cancelled[i].Status),
			string(models.AttackStatusAbandoned), ActorSystem, "campaign abandoned")
	}

	debug.Log("Campaign abandoned", map[string]interface{}{
		"campaign_id":       id,
		"attacks_abandoned": len(cancelled),
	})

	if err := s.preemption.OnCampaignSettled(ctx, campaign.ProjectID); err != nil {
		debug.Warning("Resume pass failed after abandoning campaign %s: %v", id, err)
	}

	return nil
}

// Get returns a campaign by ID
func (s *CampaignService) Get(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	return s.campaignRepo.GetByID(ctx, id)
}

// ListByProject returns a project's campaigns in dispatch order
func (s *CampaignService) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Campaign, error) {
	if _, err := s.projectRepo.GetByID(ctx, projectID); err != nil {
		return nil, err
	}
	return s.campaignRepo.ListByProject(ctx, projectID)
}

// Delete removes a campaign record entirely. Only drafts and finished
// campaigns qualify; everything else must settle or be abandoned first.
func (s *CampaignService) Delete(ctx context.Context, id uuid.UUID) error {
	campaign, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if campaign.Status != models.CampaignStatusDraft && !campaign.Status.IsFinished() {
		return fmt.Errorf("campaign %s is %s, only draft or finished campaigns can be deleted", id, campaign.Status)
	}

	return s.campaignRepo.Delete(ctx, id)
}

// Archive retires a settled campaign from the working set. The row and its
// attacks and tasks go away; the transition event history stays, which is
// the record an archived campaign leaves behind.
func (s *CampaignService) Archive(ctx context.Context, id uuid.UUID) error {
	campaign, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !campaign.Status.IsFinished() {
		return fmt.Errorf("campaign %s is %s, only finished campaigns can be archived", id, campaign.Status)
	}

	if err := s.campaignRepo.Delete(ctx, id); err != nil {
		return err
	}

	debug.Log("Campaign archived", map[string]interface{}{
		"campaign_id": id,
		"status":      campaign.Status,
	})

	return nil
}

// transition performs one compare-and-set step from the campaign's in-memory
// status, recording the event and advancing the struct on success
func (s *CampaignService) transition(ctx context.Context, campaign *models.Campaign, to models.CampaignStatus, actor, note string) error {
	if err := s.campaignRepo.TransitionStatus(ctx, campaign.ID, campaign.Status, to); err != nil {
		return err
	}
	s.recorder.Record(ctx, models.EntityTypeCampaign, campaign.ID, string(campaign.Status),
		string(to), actor, note)
	campaign.Status = to
	return nil
}
