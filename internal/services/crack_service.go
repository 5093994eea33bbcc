package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/db"
	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/internal/repository"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// crackFilterCapacity sizes the duplicate prescreen filter. One slot per
// expected cracked item across all lists in a deployment's lifetime; at the
// configured false positive rate a wrong answer only costs one extra read.
const (
	crackFilterCapacity = 1_000_000
	crackFilterFPRate   = 0.001
)

// CrackService ingests recovered plaintexts. Ingestion is idempotent: the
// cracked flag is monotonic, at most one result row exists per item, and
// re-submissions are absorbed silently. A submission that empties a
// hashlist's uncracked remainder satisfies all campaigns over that list.
type CrackService struct {
	db           *db.DB
	taskRepo     *repository.TaskRepository
	attackRepo   *repository.AttackRepository
	campaignRepo *repository.CampaignRepository
	hashItemRepo *repository.HashItemRepository
	hashlistRepo *repository.HashListRepository
	crackRepo    *repository.CrackResultRepository
	progress     *ProgressService
	recorder     *TransitionRecorder

	// seen prescreens repeat submissions before any database work. A
	// negative answer is definitive for this process; a positive one is
	// confirmed against the store.
	mu   sync.Mutex
	seen *bloom.BloomFilter
}

// NewCrackService creates a new crack ingest service
func NewCrackService(
	database *db.DB,
	taskRepo *repository.TaskRepository,
	attackRepo *repository.AttackRepository,
	campaignRepo *repository.CampaignRepository,
	hashItemRepo *repository.HashItemRepository,
	hashlistRepo *repository.HashListRepository,
	crackRepo *repository.CrackResultRepository,
	progress *ProgressService,
	recorder *TransitionRecorder,
) *CrackService {
	return &CrackService{
		db:           database,
		taskRepo:     taskRepo,
		attackRepo:   attackRepo,
		campaignRepo: campaignRepo,
		hashItemRepo: hashItemRepo,
		hashlistRepo: hashlistRepo,
		crackRepo:    crackRepo,
		progress:     progress,
		recorder:     recorder,
		seen:         bloom.NewWithEstimates(crackFilterCapacity, crackFilterFPRate),
	}
}

// SubmitCrack ingests one recovered plaintext for a known hash item.
// Returns whether the submission produced a new result.
func (s *CrackService) SubmitCrack(ctx context.Context, agentID, taskID, hashItemID uuid.UUID, plainText string) (bool, error) {
	task, attack, campaign, err := s.taskContext(ctx, taskID)
	if err != nil {
		return false, err
	}
	s.noteOwnership(task, agentID)

	item, err := s.hashItemRepo.GetByID(ctx, hashItemID)
	if err != nil {
		return false, err
	}
	if item.HashListID != campaign.HashListID {
		return false, fmt.Errorf("hash item %s does not belong to the task's hashlist", hashItemID)
	}

	accepted, err := s.ingestItem(ctx, item, attack.ID, agentID, plainText, campaign.HashListID)
	if err != nil {
		return false, err
	}
	if accepted {
		s.checkSatisfaction(ctx, campaign.HashListID, nil)
	}
	return accepted, nil
}

// SubmitCrackBatch ingests a batch of recovered plaintexts keyed by hash
// value, the form agents report in. Unknown values are counted, not
// rejected; individual ingest failures are logged and skipped so one bad
// line never sinks a batch.
func (s *CrackService) SubmitCrackBatch(ctx context.Context, agentID, taskID uuid.UUID, submissions []models.CrackSubmission) (*models.CrackIngestResult, error) {
	task, attack, campaign, err := s.taskContext(ctx, taskID)
	if err != nil {
		return nil, err
	}
	s.noteOwnership(task, agentID)

	result := &models.CrackIngestResult{}
	for _, sub := range submissions {
		item, err := s.hashItemRepo.GetByValue(ctx, campaign.HashListID, sub.HashValue)
		if errors.Is(err, repository.ErrNotFound) {
			result.Unknown++
			continue
		}
		if err != nil {
			return nil, err
		}

		accepted, err := s.ingestItem(ctx, item, attack.ID, agentID, sub.PlainText, campaign.HashListID)
		if err != nil {
			debug.Warning("Failed to ingest crack for item %s: %v", item.ID, err)
			continue
		}
		if accepted {
			result.Accepted++
		} else {
			result.Duplicates++
		}
	}

	if result.Accepted > 0 {
		s.checkSatisfaction(ctx, campaign.HashListID, result)
	}

	debug.Log("Crack batch ingested", map[string]interface{}{
		"task_id":    taskID,
		"agent_id":   agentID,
		"accepted":   result.Accepted,
		"duplicates": result.Duplicates,
		"unknown":    result.Unknown,
	})

	return result, nil
}

// Zaps returns plaintext-recovered hash values of a hashlist, optionally
// only those cracked after since. Agents pull these to drop already-solved
// hashes from their local candidate state, which matters most for stale
// reassigned tasks.
func (s *CrackService) Zaps(ctx context.Context, hashlistID uuid.UUID, since *time.Time) ([]string, error) {
	return s.hashItemRepo.ListCrackedValuesSince(ctx, hashlistID, since)
}

// ZapsForTask resolves a task to its hashlist and returns that list's
// cracked values since the given time. The caller does not need to hold
// the task's lease; zap data is read-only and harmless to over-share.
func (s *CrackService) ZapsForTask(ctx context.Context, taskID uuid.UUID, since *time.Time) ([]string, error) {
	_, _, campaign, err := s.taskContext(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return s.Zaps(ctx, campaign.HashListID, since)
}

// taskContext resolves the task's attack and campaign
func (s *CrackService) taskContext(ctx context.Context, taskID uuid.UUID) (*models.Task, *models.Attack, *models.Campaign, error) {
	task, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, nil, nil, err
	}
	attack, err := s.attackRepo.GetByID(ctx, task.AttackID)
	if err != nil {
		return nil, nil, nil, err
	}
	campaign, err := s.campaignRepo.GetByID(ctx, attack.CampaignID)
	if err != nil {
		return nil, nil, nil, err
	}
	return task, attack, campaign, nil
}

// noteOwnership logs submissions from agents that no longer hold the task.
// The cracks themselves are still accepted: a recovered plaintext is true
// regardless of lease state, and discarding it would waste real work.
func (s *CrackService) noteOwnership(task *models.Task, agentID uuid.UUID) {
	if task.Status != models.TaskStatusRunning || task.AgentID == nil || *task.AgentID != agentID {
		debug.Log("Crack submitted against unheld task", map[string]interface{}{
			"task_id":     task.ID,
			"task_status": task.Status,
			"agent_id":    agentID,
		})
	}
}

// ingestItem records one crack atomically: flip the item, append the
// result row, bump the list counter. Already-cracked items are absorbed
// without touching the store beyond the initial read.
func (s *CrackService) ingestItem(ctx context.Context, item *models.HashItem, attackID, agentID uuid.UUID, plainText string, hashlistID uuid.UUID) (bool, error) {
	if item.Cracked {
		s.remember(item.ID)
		return false, nil
	}
	if s.probablySeen(item.ID) {
		// Filter hit for an item our read said is uncracked: the read raced
		// a concurrent ingest. Confirm before opening a transaction.
		current, err := s.hashItemRepo.GetByID(ctx, item.ID)
		if err == nil && current.Cracked {
			return false, nil
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin crack transaction: %w", err)
	}
	defer tx.Rollback()

	flipped, err := s.hashItemRepo.MarkCrackedTx(ctx, tx, item.ID, attackID, plainText, time.Now())
	if err != nil {
		return false, err
	}
	if !flipped {
		// Lost the flip race to a concurrent submission.
		s.remember(item.ID)
		return false, nil
	}

	result := &models.CrackResult{
		HashItemID:   item.ID,
		AttackID:     attackID,
		AgentID:      agentID,
		PlainText:    plainText,
		DiscoveredAt: time.Now(),
	}
	if _, err := s.crackRepo.CreateTx(ctx, tx, result); err != nil {
		return false, err
	}

	if err := s.hashlistRepo.IncrementCrackedTx(ctx, tx, hashlistID); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit crack: %w", err)
	}

	s.remember(item.ID)
	s.recorder.Record(ctx, models.EntityTypeHashItem, item.ID, "uncracked", "cracked",
		agentID.String(), "")

	return true, nil
}

// checkSatisfaction completes all campaigns over the hashlist once nothing
// uncracked remains
func (s *CrackService) checkSatisfaction(ctx context.Context, hashlistID uuid.UUID, result *models.CrackIngestResult) {
	hashlist, err := s.hashlistRepo.GetByID(ctx, hashlistID)
	if err != nil {
		debug.Warning("Satisfaction check failed to load hashlist %s: %v", hashlistID, err)
		return
	}
	if !hashlist.IsFullyCracked() {
		return
	}
	if result != nil {
		result.ListFullyCracked = true
	}

	debug.Log("Hashlist fully cracked", map[string]interface{}{
		"hashlist_id": hashlistID,
		"total":       hashlist.TotalHashes,
	})

	if err := s.progress.SatisfyHashList(ctx, hashlistID); err != nil {
		debug.Warning("Early satisfaction pass failed for hashlist %s: %v", hashlistID, err)
	}
}

func (s *CrackService) probablySeen(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen.Test(id[:])
}

func (s *CrackService) remember(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen.Add(id[:])
}
