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

// AttackProgressInput is one attack's contribution to a campaign rollup
type AttackProgressInput struct {
	Weight  int64
	Percent float64
}

// WeightedAttackProgress computes an attack's progress percentage from its
// task rows. Each task contributes its effective progress weighted by its
// keyspace share. When totalKeyspace exceeds the sliced sum, the unsliced
// tail counts as zero progress so a partially sliced attack never reads
// complete.
func WeightedAttackProgress(rows []models.TaskProgressRow, totalKeyspace int64) float64 {
	var sliced, done int64
	for _, row := range rows {
		sliced += row.Keyspace
		done += row.EffectiveProgress()
	}

	denominator := sliced
	if totalKeyspace > denominator {
		denominator = totalKeyspace
	}
	if denominator <= 0 {
		return 0
	}

	return float64(done) / float64(denominator) * 100
}

// WeightedCampaignProgress averages attack percentages weighted by each
// attack's total keyspace
func WeightedCampaignProgress(inputs []AttackProgressInput) float64 {
	var totalWeight int64
	var weightedSum float64
	for _, in := range inputs {
		if in.Weight <= 0 {
			continue
		}
		totalWeight += in.Weight
		weightedSum += in.Percent * float64(in.Weight)
	}
	if totalWeight <= 0 {
		return 0
	}
	return weightedSum / float64(totalWeight)
}

// deriveAttackOutcome decides the terminal state an attack has earned from
// its task histogram. Returns false while any task is still live or no
// tasks exist.
func deriveAttackOutcome(counts map[models.TaskStatus]int) (models.AttackStatus, bool) {
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return "", false
	}

	unfinished := counts[models.TaskStatusPending] + counts[models.TaskStatusRunning] + counts[models.TaskStatusPaused]
	if unfinished > 0 {
		return "", false
	}

	switch {
	case counts[models.TaskStatusFailed] > 0:
		return models.AttackStatusFailed, true
	case counts[models.TaskStatusExhausted] > 0:
		return models.AttackStatusExhausted, true
	case counts[models.TaskStatusAbandoned] == total:
		return models.AttackStatusAbandoned, true
	default:
		return models.AttackStatusCompleted, true
	}
}

// deriveCampaignOutcome decides the terminal state a campaign has earned
// from its attacks. Returns false while any attack is unfinished or the
// campaign has no attacks.
func deriveCampaignOutcome(attacks []models.Attack) (models.CampaignStatus, bool) {
	if len(attacks) == 0 {
		return "", false
	}

	failed := 0
	abandoned := 0
	for i := range attacks {
		if !attacks[i].Status.IsFinished() {
			return "", false
		}
		switch attacks[i].Status {
		case models.AttackStatusFailed:
			failed++
		case models.AttackStatusAbandoned:
			abandoned++
		}
	}

	switch {
	case failed > 0:
		return models.CampaignStatusFailed, true
	case abandoned == len(attacks):
		return models.CampaignStatusAbandoned, true
	default:
		return models.CampaignStatusCompleted, true
	}
}

// ProgressService applies agent progress reports and derives attack and
// campaign states from their children. Derivations are pure functions over
// current child state, re-run after every task transition; nothing here is
// separately persisted as authoritative.
type ProgressService struct {
	taskRepo     *repository.TaskRepository
	attackRepo   *repository.AttackRepository
	campaignRepo *repository.CampaignRepository
	hashlistRepo *repository.HashListRepository
	preemption   *PreemptionService
	recorder     *TransitionRecorder
	tuning       *config.Tuning
}

// NewProgressService creates a new progress service
func NewProgressService(
	taskRepo *repository.TaskRepository,
	attackRepo *repository.AttackRepository,
	campaignRepo *repository.CampaignRepository,
	hashlistRepo *repository.HashListRepository,
	preemption *PreemptionService,
	recorder *TransitionRecorder,
	tuning *config.Tuning,
) *ProgressService {
	return &ProgressService{
		taskRepo:     taskRepo,
		attackRepo:   attackRepo,
		campaignRepo: campaignRepo,
		hashlistRepo: hashlistRepo,
		preemption:   preemption,
		recorder:     recorder,
		tuning:       tuning,
	}
}

// ownedRunningTask loads a task and verifies the reporting agent still
// holds it
func (s *ProgressService) ownedRunningTask(ctx context.Context, agentID, taskID uuid.UUID) (*models.Task, error) {
	task, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskStatusRunning || task.AgentID == nil || *task.AgentID != agentID {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrStaleClaim)
	}
	return task, nil
}

// ReportProgress applies one progress submission. Progress only moves
// forward: a report proposing a lower value than recorded is ignored and
// logged, not applied. Reaching the end of the range completes the task.
func (s *ProgressService) ReportProgress(ctx context.Context, agentID, taskID uuid.UUID, progressKeyspace int64) (*models.Task, error) {
	task, err := s.ownedRunningTask(ctx, agentID, taskID)
	if err != nil {
		return nil, err
	}
	if progressKeyspace < 0 || progressKeyspace > task.Limit {
		return nil, fmt.Errorf("progress %d outside task range 0-%d", progressKeyspace, task.Limit)
	}
	if task.ExpiresAt != nil && task.ExpiresAt.Before(time.Now()) {
		// Lease lapsed but the sweep has not reclaimed the task. The report
		// still counts; the agent keeps ownership until swept.
		debug.Warning("Progress report on expired lease for task %s by agent %s", taskID, agentID)
	}

	err = s.taskRepo.UpdateProgress(ctx, taskID, progressKeyspace)
	if errors.Is(err, repository.ErrTransitionConflict) {
		debug.Log("Ignored non-monotonic progress report", map[string]interface{}{
			"task_id":  taskID,
			"agent_id": agentID,
			"proposed": progressKeyspace,
		})
	} else if err != nil {
		return nil, err
	}

	if progressKeyspace >= task.Limit {
		if err := s.finishTask(ctx, task, models.TaskStatusCompleted, agentID.String(), "range covered"); err != nil {
			return nil, err
		}
	}

	return s.taskRepo.GetByID(ctx, taskID)
}

// ReportExhausted records that the agent covered its whole range without
// cracking the remaining hashes
func (s *ProgressService) ReportExhausted(ctx context.Context, agentID, taskID uuid.UUID) (*models.Task, error) {
	task, err := s.ownedRunningTask(ctx, agentID, taskID)
	if err != nil {
		return nil, err
	}

	if err := s.finishTask(ctx, task, models.TaskStatusExhausted, agentID.String(), "keyspace exhausted"); err != nil {
		return nil, err
	}

	return s.taskRepo.GetByID(ctx, taskID)
}

// ReportTaskFailed records a task failure. The task returns to pending for
// another agent while retry budget remains; once spent it stays failed and
// the attack derivation runs.
func (s *ProgressService) ReportTaskFailed(ctx context.Context, agentID, taskID uuid.UUID, message string) error {
	task, err := s.ownedRunningTask(ctx, agentID, taskID)
	if err != nil {
		return err
	}

	err = s.taskRepo.MarkFailed(ctx, taskID, message)
	if errors.Is(err, repository.ErrTransitionConflict) {
		// Finished or reclaimed concurrently; the failure report is moot.
		return nil
	}
	if err != nil {
		return err
	}

	s.recorder.Record(ctx, models.EntityTypeTask, taskID,
		string(models.TaskStatusRunning), string(models.TaskStatusFailed),
		agentID.String(), message)

	err = s.taskRepo.RetryFailed(ctx, taskID, s.tuning.MaxTaskRetries)
	if errors.Is(err, repository.ErrTransitionConflict) {
		debug.Log("Task retry budget spent", map[string]interface{}{
			"task_id":     taskID,
			"max_retries": s.tuning.MaxTaskRetries,
		})
		return s.EvaluateAttack(ctx, task.AttackID)
	}
	if err != nil {
		return err
	}

	s.recorder.Record(ctx, models.EntityTypeTask, taskID,
		string(models.TaskStatusFailed), string(models.TaskStatusPending),
		ActorSystem, "requeued for retry")
	return nil
}

// ReportTaskAbandoned handles an agent voluntarily giving its task back,
// for example before a controlled shutdown mid-slice. The give-back rides
// the failure retry machinery so a task nobody manages to hold eventually
// stays failed instead of bouncing forever.
func (s *ProgressService) ReportTaskAbandoned(ctx context.Context, agentID, taskID uuid.UUID, reason string) error {
	if reason == "" {
		reason = "returned by agent"
	}
	return s.ReportTaskFailed(ctx, agentID, taskID, reason)
}

// finishTask moves a running task to a successful terminal state and runs
// the derivation cascade
func (s *ProgressService) finishTask(ctx context.Context, task *models.Task, to models.TaskStatus, actor, note string) error {
	err := s.taskRepo.CompleteWithProgress(ctx, task.ID, to)
	if errors.Is(err, repository.ErrTransitionConflict) {
		// Another path finished the task first.
		return nil
	}
	if err != nil {
		return err
	}

	s.recorder.Record(ctx, models.EntityTypeTask, task.ID,
		string(models.TaskStatusRunning), string(to), actor, note)

	return s.EvaluateAttack(ctx, task.AttackID)
}

// EvaluateAttack re-derives an attack's state from its tasks and cascades
// upward on a terminal outcome. An attack with unallocated keyspace left is
// never finished successfully, however its existing tasks ended.
func (s *ProgressService) EvaluateAttack(ctx context.Context, attackID uuid.UUID) error {
	counts, err := s.taskRepo.CountByAttackAndStatus(ctx, attackID)
	if err != nil {
		return err
	}

	outcome, ok := deriveAttackOutcome(counts)
	if !ok {
		return nil
	}

	attack, err := s.attackRepo.GetByID(ctx, attackID)
	if err != nil {
		return err
	}
	if attack.Status.IsFinished() {
		return nil
	}

	if outcome == models.AttackStatusCompleted || outcome == models.AttackStatusExhausted {
		if attack.TotalKeyspace == nil {
			debug.Warning("Attack %s has no total keyspace, skipping derivation", attackID)
			return nil
		}
		allocated, err := s.taskRepo.MaxKeyspaceEnd(ctx, attackID)
		if err != nil {
			return err
		}
		if allocated < *attack.TotalKeyspace {
			// More slices remain to be cut and run.
			return nil
		}
	}

	if err := models.ValidateAttackTransition(attack.Status, outcome); err != nil {
		debug.Warning("Derived attack outcome not reachable: %v", err)
		return nil
	}

	err = s.attackRepo.TransitionStatus(ctx, attackID, attack.Status, outcome)
	if errors.Is(err, repository.ErrTransitionConflict) {
		return nil
	}
	if err != nil {
		return err
	}

	s.recorder.Record(ctx, models.EntityTypeAttack, attackID,
		string(attack.Status), string(outcome), ActorSystem, "derived from task states")

	return s.EvaluateCampaign(ctx, attack.CampaignID)
}

// EvaluateCampaign re-derives a campaign's state from its attacks. A
// terminal outcome settles the campaign and lets preempted work resume.
func (s *ProgressService) EvaluateCampaign(ctx context.Context, campaignID uuid.UUID) error {
	attacks, err := s.attackRepo.ListByCampaign(ctx, campaignID)
	if err != nil {
		return err
	}

	outcome, ok := deriveCampaignOutcome(attacks)
	if !ok {
		return nil
	}

	campaign, err := s.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign.Status.IsFinished() {
		return nil
	}
	if err := models.ValidateCampaignTransition(campaign.Status, outcome); err != nil {
		debug.Warning("Derived campaign outcome not reachable: %v", err)
		return nil
	}

	err = s.campaignRepo.TransitionStatus(ctx, campaignID, campaign.Status, outcome)
	if errors.Is(err, repository.ErrTransitionConflict) {
		return nil
	}
	if err != nil {
		return err
	}

	s.recorder.Record(ctx, models.EntityTypeCampaign, campaignID,
		string(campaign.Status), string(outcome), ActorSystem, "derived from attack states")

	debug.Log("Campaign settled", map[string]interface{}{
		"campaign_id": campaignID,
		"outcome":     outcome,
	})

	if err := s.preemption.OnCampaignSettled(ctx, campaign.ProjectID); err != nil {
		debug.Warning("Post-settlement resume pass failed for project %s: %v", campaign.ProjectID, err)
	}

	return nil
}

// SatisfyHashList completes every active campaign targeting a fully
// cracked hashlist. Further search is unnecessary: unfinished tasks are
// completed in place, claimed agents learn on their next poll or report.
func (s *ProgressService) SatisfyHashList(ctx context.Context, hashlistID uuid.UUID) error {
	campaigns, err := s.campaignRepo.ListActiveByHashList(ctx, hashlistID)
	if err != nil {
		return err
	}

	for i := range campaigns {
		campaign := &campaigns[i]

		attacks, err := s.attackRepo.ListByCampaign(ctx, campaign.ID)
		if err != nil {
			debug.Warning("Satisfaction pass failed to list attacks for campaign %s: %v", campaign.ID, err)
			continue
		}

		for j := range attacks {
			attack := &attacks[j]
			if attack.Status.IsFinished() {
				continue
			}

			moved, err := s.taskRepo.FinishForAttack(ctx, attack.ID)
			if err != nil {
				debug.Warning("Satisfaction pass failed to finish tasks for attack %s: %v", attack.ID, err)
				continue
			}
			if moved > 0 {
				debug.Log("Tasks completed by early satisfaction", map[string]interface{}{
					"attack_id": attack.ID,
					"tasks":     moved,
				})
			}

			err = s.attackRepo.TransitionStatus(ctx, attack.ID, attack.Status, models.AttackStatusCompleted)
			if err != nil {
				if !errors.Is(err, repository.ErrTransitionConflict) {
					debug.Warning("Satisfaction pass failed to complete attack %s: %v", attack.ID, err)
				}
				continue
			}
			s.recorder.Record(ctx, models.EntityTypeAttack, attack.ID,
				string(attack.Status), string(models.AttackStatusCompleted),
				ActorSystem, "hashlist fully cracked")
		}

		err = s.campaignRepo.TransitionStatus(ctx, campaign.ID, campaign.Status, models.CampaignStatusCompleted)
		if err != nil {
			if !errors.Is(err, repository.ErrTransitionConflict) {
				debug.Warning("Satisfaction pass failed to complete campaign %s: %v", campaign.ID, err)
			}
			continue
		}
		s.recorder.Record(ctx, models.EntityTypeCampaign, campaign.ID,
			string(campaign.Status), string(models.CampaignStatusCompleted),
			ActorSystem, "hashlist fully cracked")

		if err := s.preemption.OnCampaignSettled(ctx, campaign.ProjectID); err != nil {
			debug.Warning("Post-satisfaction resume pass failed for project %s: %v", campaign.ProjectID, err)
		}
	}

	return nil
}

// AttackProgressPercent returns an attack's keyspace-weighted progress.
// Attacks finished successfully always read 100 regardless of how their
// slices recorded progress.
func (s *ProgressService) AttackProgressPercent(ctx context.Context, attack *models.Attack) (float64, error) {
	if attack.Status == models.AttackStatusCompleted || attack.Status == models.AttackStatusExhausted {
		return 100, nil
	}

	rows, err := s.taskRepo.ProgressRows(ctx, attack.ID)
	if err != nil {
		return 0, err
	}

	var total int64
	if attack.TotalKeyspace != nil {
		total = *attack.TotalKeyspace
	}
	return WeightedAttackProgress(rows, total), nil
}

// CampaignProgressView assembles the campaign progress read model
func (s *ProgressService) CampaignProgressView(ctx context.Context, campaign *models.Campaign) (*models.CampaignProgress, error) {
	attacks, err := s.attackRepo.ListByCampaign(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}

	inputs := make([]AttackProgressInput, 0, len(attacks))
	totalTasks := 0
	for i := range attacks {
		attack := &attacks[i]

		rows, err := s.taskRepo.ProgressRows(ctx, attack.ID)
		if err != nil {
			return nil, err
		}
		totalTasks += len(rows)

		var weight int64
		if attack.TotalKeyspace != nil {
			weight = *attack.TotalKeyspace
		} else {
			for _, row := range rows {
				weight += row.Keyspace
			}
		}

		var percent float64
		if attack.Status == models.AttackStatusCompleted || attack.Status == models.AttackStatusExhausted {
			percent = 100
		} else {
			percent = WeightedAttackProgress(rows, weight)
		}

		inputs = append(inputs, AttackProgressInput{Weight: weight, Percent: percent})
	}

	activeAgents, err := s.taskRepo.CountActiveAgentsForCampaign(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}

	hashlist, err := s.hashlistRepo.GetByID(ctx, campaign.HashListID)
	if err != nil {
		return nil, err
	}

	return &models.CampaignProgress{
		CampaignID:      campaign.ID,
		ProgressPercent: WeightedCampaignProgress(inputs),
		TotalTasks:      totalTasks,
		ActiveAgents:    activeAgents,
		TotalHashes:     hashlist.TotalHashes,
		CrackedHashes:   hashlist.CrackedHashes,
	}, nil
}
