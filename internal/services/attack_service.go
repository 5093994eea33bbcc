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

// KeyspaceEstimate is the planner's answer for one attack configuration
type KeyspaceEstimate struct {
	Keyspace        int64 `json:"keyspace"`
	ComplexityScore int   `json:"complexity_score"`
}

// AttackService manages attack configuration inside campaigns. Keyspace and
// complexity are computed once when the configuration is written; the
// abandon paths here are the only place sibling tasks are ever destroyed.
type AttackService struct {
	db           *db.DB
	campaignRepo *repository.CampaignRepository
	attackRepo   *repository.AttackRepository
	taskRepo     *repository.TaskRepository
	hashlistRepo *repository.HashListRepository
	planner      *TaskPlanner
	progress     *ProgressService
	recorder     *TransitionRecorder
}

// NewAttackService creates a new attack service
func NewAttackService(
	database *db.DB,
	campaignRepo *repository.CampaignRepository,
	attackRepo *repository.AttackRepository,
	taskRepo *repository.TaskRepository,
	hashlistRepo *repository.HashListRepository,
	planner *TaskPlanner,
	progress *ProgressService,
	recorder *TransitionRecorder,
) *AttackService {
	return &AttackService{
		db:           database,
		campaignRepo: campaignRepo,
		attackRepo:   attackRepo,
		taskRepo:     taskRepo,
		hashlistRepo: hashlistRepo,
		planner:      planner,
		progress:     progress,
		recorder:     recorder,
	}
}

// Create validates an attack configuration, computes its keyspace and
// complexity, and persists it in pending state at the end of its campaign's
// ordering.
func (s *AttackService) Create(ctx context.Context, attack *models.Attack) error {
	campaign, hashlist, err := s.campaignTarget(ctx, attack.CampaignID)
	if err != nil {
		return err
	}
	if campaign.Status.IsFinished() {
		return fmt.Errorf("campaign %s is %s, no attacks can be added", campaign.ID, campaign.Status)
	}
	if err := alignHashType(attack, hashlist); err != nil {
		return err
	}
	if err := validateAttackConfig(attack); err != nil {
		return err
	}

	keyspace, err := s.planner.ComputeAttackKeyspace(ctx, attack)
	if err != nil {
		return fmt.Errorf("failed to compute keyspace: %w", err)
	}
	attack.TotalKeyspace = &keyspace
	attack.ComplexityScore = ComplexityForKeyspace(keyspace)

	if attack.Position == 0 {
		siblings, err := s.attackRepo.ListByCampaign(ctx, attack.CampaignID)
		if err != nil {
			return err
		}
		attack.Position = len(siblings) + 1
	}

	if err := s.attackRepo.Create(ctx, attack); err != nil {
		return err
	}

	debug.Log("Attack created", map[string]interface{}{
		"attack_id":   attack.ID,
		"campaign_id": attack.CampaignID,
		"attack_mode": attack.Mode,
		"keyspace":    keyspace,
		"complexity":  attack.ComplexityScore,
	})

	return nil
}

// Update rewrites a pending attack's configuration and recomputes keyspace
// and complexity. Attacks that already have sliced work are immutable;
// abandon and recreate instead.
func (s *AttackService) Update(ctx context.Context, attack *models.Attack) error {
	_, hashlist, err := s.campaignTarget(ctx, attack.CampaignID)
	if err != nil {
		return err
	}
	if err := alignHashType(attack, hashlist); err != nil {
		return err
	}
	if err := validateAttackConfig(attack); err != nil {
		return err
	}

	keyspace, err := s.planner.ComputeAttackKeyspace(ctx, attack)
	if err != nil {
		return fmt.Errorf("failed to compute keyspace: %w", err)
	}
	attack.TotalKeyspace = &keyspace
	attack.ComplexityScore = ComplexityForKeyspace(keyspace)

	return s.attackRepo.Update(ctx, attack)
}

// Estimate computes keyspace and complexity for an attack configuration
// without persisting anything. Serves the dry-run estimation endpoint.
func (s *AttackService) Estimate(ctx context.Context, attack *models.Attack) (*KeyspaceEstimate, error) {
	if err := validateAttackConfig(attack); err != nil {
		return nil, err
	}

	keyspace, err := s.planner.ComputeAttackKeyspace(ctx, attack)
	if err != nil {
		return nil, err
	}

	return &KeyspaceEstimate{
		Keyspace:        keyspace,
		ComplexityScore: ComplexityForKeyspace(keyspace),
	}, nil
}

// Reorder rewrites the position of every attack in a campaign. The given
// list must be a permutation of the campaign's current attacks.
func (s *AttackService) Reorder(ctx context.Context, campaignID uuid.UUID, orderedIDs []uuid.UUID) error {
	attacks, err := s.attackRepo.ListByCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	if len(orderedIDs) != len(attacks) {
		return fmt.Errorf("reorder names %d attacks, campaign has %d", len(orderedIDs), len(attacks))
	}
	remaining := make(map[uuid.UUID]bool, len(attacks))
	for i := range attacks {
		remaining[attacks[i].ID] = true
	}
	for _, id := range orderedIDs {
		if !remaining[id] {
			return fmt.Errorf("attack %s does not belong to campaign %s", id, campaignID)
		}
		delete(remaining, id)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reorder transaction: %w", err)
	}
	defer tx.Rollback()

	for i, id := range orderedIDs {
		if err := s.attackRepo.UpdatePositionTx(ctx, tx, id, i+1); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Pause holds an attack: in-flight tasks run to completion but no new
// claims are handed out.
func (s *AttackService) Pause(ctx context.Context, id uuid.UUID) (*models.Attack, error) {
	attack, err := s.attackRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if attack.Status == models.AttackStatusPaused {
		return attack, nil
	}
	if err := models.ValidateAttackTransition(attack.Status, models.AttackStatusPaused); err != nil {
		return nil, err
	}
	if err := s.attackRepo.TransitionStatus(ctx, id, attack.Status, models.AttackStatusPaused); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, models.EntityTypeAttack, id, string(attack.Status),
		string(models.AttackStatusPaused), ActorOperator, "paused by operator")

	attack.Status = models.AttackStatusPaused
	return attack, nil
}

// Resume reopens a paused attack for assignment. It returns to running only
// when some task is still mid-flight; otherwise to pending, so the first
// claim flips it the usual way.
func (s *AttackService) Resume(ctx context.Context, id uuid.UUID) (*models.Attack, error) {
	attack, err := s.attackRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if attack.Status != models.AttackStatusPaused {
		return nil, fmt.Errorf("attack %s is %s, only paused attacks resume", id, attack.Status)
	}

	counts, err := s.taskRepo.CountByAttackAndStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	target := models.AttackStatusPending
	if counts[models.TaskStatusRunning] > 0 {
		target = models.AttackStatusRunning
	}

	if err := s.attackRepo.TransitionStatus(ctx, id, attack.Status, target); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, models.EntityTypeAttack, id, string(attack.Status),
		string(target), ActorOperator, "resumed by operator")

	attack.Status = target
	return attack, nil
}

// Abandon terminally cancels an attack and its unfinished tasks. Agents
// mid-slice learn on their next report, which then fails the stale claim
// check.
func (s *AttackService) Abandon(ctx context.Context, id uuid.UUID) error {
	attack, err := s.attackRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if attack.Status == models.AttackStatusAbandoned {
		return nil
	}
	if err := models.ValidateAttackTransition(attack.Status, models.AttackStatusAbandoned); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin abandon transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.attackRepo.AbandonTx(ctx, tx, id); err != nil {
		if errors.Is(err, repository.ErrTransitionConflict) {
			// Finished concurrently; nothing left to cancel.
			return nil
		}
		return err
	}
	abandoned, err := s.taskRepo.AbandonForAttackTx(ctx, tx, id)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit abandon: %w", err)
	}

	s.recorder.Record(ctx, models.EntityTypeAttack, id, string(attack.Status),
		string(models.AttackStatusAbandoned), ActorOperator, "abandoned by operator")
	debug.Log("Attack abandoned", map[string]interface{}{
		"attack_id":       id,
		"tasks_abandoned": abandoned,
	})

	return s.progress.EvaluateCampaign(ctx, attack.CampaignID)
}

// AbandonTask terminally abandons one task. Abandoning the last unfinished
// task of an attack cascades: the attack goes abandoned and its remaining
// task rows are destroyed. This is terminal cleanup; lease reassignment
// never comes through here.
func (s *AttackService) AbandonTask(ctx context.Context, taskID uuid.UUID) error {
	task, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status == models.TaskStatusAbandoned {
		return nil
	}
	attack, err := s.attackRepo.GetByID(ctx, task.AttackID)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin abandon transaction: %w", err)
	}
	defer tx.Rollback()

	unfinished, err := s.taskRepo.CountUnfinishedSiblingsTx(ctx, tx, task.AttackID, taskID)
	if err != nil {
		return err
	}
	if err := s.taskRepo.AbandonTx(ctx, tx, taskID); err != nil {
		return err
	}

	var destroyed int64
	cascaded := false
	if unfinished == 0 {
		err := s.attackRepo.AbandonTx(ctx, tx, task.AttackID)
		if err != nil && !errors.Is(err, repository.ErrTransitionConflict) {
			return err
		}
		if err == nil {
			cascaded = true
			if destroyed, err = s.taskRepo.DeleteSiblingsTx(ctx, tx, task.AttackID, taskID); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit abandon: %w", err)
	}

	s.recorder.Record(ctx, models.EntityTypeTask, taskID, string(task.Status),
		string(models.TaskStatusAbandoned), ActorOperator, "abandoned")

	if cascaded {
		s.recorder.Record(ctx, models.EntityTypeAttack, attack.ID, string(attack.Status),
			string(models.AttackStatusAbandoned), ActorSystem, "last task abandoned")
		debug.Log("Attack abandoned by task cascade", map[string]interface{}{
			"attack_id":        attack.ID,
			"task_id":          taskID,
			"siblings_deleted": destroyed,
		})
		return s.progress.EvaluateCampaign(ctx, attack.CampaignID)
	}

	return s.progress.EvaluateAttack(ctx, task.AttackID)
}

// Get returns an attack by ID
func (s *AttackService) Get(ctx context.Context, id uuid.UUID) (*models.Attack, error) {
	return s.attackRepo.GetByID(ctx, id)
}

// ListByCampaign returns a campaign's attacks in position order
func (s *AttackService) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]models.Attack, error) {
	if _, err := s.campaignRepo.GetByID(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.attackRepo.ListByCampaign(ctx, campaignID)
}

// ListTasks returns an attack's task slices in keyspace order
func (s *AttackService) ListTasks(ctx context.Context, attackID uuid.UUID) ([]models.Task, error) {
	if _, err := s.attackRepo.GetByID(ctx, attackID); err != nil {
		return nil, err
	}
	return s.taskRepo.ListByAttack(ctx, attackID)
}

// Delete removes an attack outright. Allowed only before any agent touched
// it or after it finished; mid-flight attacks must be abandoned first.
func (s *AttackService) Delete(ctx context.Context, id uuid.UUID) error {
	attack, err := s.attackRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if attack.Status != models.AttackStatusPending && !attack.Status.IsFinished() {
		return fmt.Errorf("attack %s is %s, abandon it before deleting", id, attack.Status)
	}

	return s.attackRepo.Delete(ctx, id)
}

// campaignTarget loads an attack's campaign together with the hashlist the
// campaign runs against
func (s *AttackService) campaignTarget(ctx context.Context, campaignID uuid.UUID) (*models.Campaign, *models.HashList, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, nil, err
	}
	hashlist, err := s.hashlistRepo.GetByID(ctx, campaign.HashListID)
	if err != nil {
		return nil, nil, err
	}
	return campaign, hashlist, nil
}

// alignHashType defaults an unset hash type to the hashlist's and rejects a
// mismatch. Capability matching keys on the attack's hash type, so a wrong
// value here would route work to agents that cannot crack it.
func alignHashType(attack *models.Attack, hashlist *models.HashList) error {
	if attack.HashTypeID == 0 {
		attack.HashTypeID = hashlist.HashTypeID
	}
	if attack.HashTypeID != hashlist.HashTypeID {
		return fmt.Errorf("attack hash type %d does not match hashlist hash type %d",
			attack.HashTypeID, hashlist.HashTypeID)
	}
	return nil
}

// validateAttackConfig checks that the mode's required inputs are present
func validateAttackConfig(attack *models.Attack) error {
	if !attack.Mode.IsValid() {
		return fmt.Errorf("unsupported attack mode %d", attack.Mode)
	}
	if attack.Name == "" {
		return fmt.Errorf("attack name is required")
	}
	if attack.UsesWordlist() && attack.WordlistID == nil {
		return fmt.Errorf("attack mode %d requires a wordlist", attack.Mode)
	}
	if attack.UsesMask() && attack.Mask == "" {
		return fmt.Errorf("attack mode %d requires a mask", attack.Mode)
	}
	if attack.IncrementMode {
		if attack.Mode != models.AttackModeBruteForce {
			return fmt.Errorf("increment mode is only valid for brute-force attacks")
		}
		if attack.IncrementMin <= 0 || attack.IncrementMax < attack.IncrementMin {
			return fmt.Errorf("increment range %d-%d is invalid", attack.IncrementMin, attack.IncrementMax)
		}
	}
	return nil
}
