package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/config"
	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/internal/repository"
	"github.com/ZerkerEOD/hashfleet/internal/utils"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// sliceCreateRetries bounds the planner's retry loop when two agents race to
// slice the same attack
const sliceCreateRetries = 3

// SliceResult is one planned keyspace range for a requesting agent
type SliceResult struct {
	Skip             int64
	Limit            int64
	IsLast           bool
	EstimatedSeconds int
}

// TaskPlanner computes attack keyspaces and cuts them into agent-sized
// slices. Slice sizing follows the agent's measured speed so every slice
// targets roughly the same wall-clock duration.
type TaskPlanner struct {
	taskRepo     *repository.TaskRepository
	resourceRepo *repository.ResourceRepository
	tuning       *config.Tuning
}

// NewTaskPlanner creates a new task planner
func NewTaskPlanner(
	taskRepo *repository.TaskRepository,
	resourceRepo *repository.ResourceRepository,
	tuning *config.Tuning,
) *TaskPlanner {
	return &TaskPlanner{
		taskRepo:     taskRepo,
		resourceRepo: resourceRepo,
		tuning:       tuning,
	}
}

// ComputeAttackKeyspace derives the total keyspace for an attack from its
// mode. Dictionary modes multiply resource line counts; mask modes expand
// the mask's charset cardinality, including custom charsets and increment
// layers.
func (p *TaskPlanner) ComputeAttackKeyspace(ctx context.Context, attack *models.Attack) (int64, error) {
	switch attack.Mode {
	case models.AttackModeStraight:
		words, err := p.resourceLineCount(ctx, attack.WordlistID, "wordlist")
		if err != nil {
			return 0, err
		}
		rules := int64(1)
		if attack.RulelistID != nil {
			rules, err = p.resourceLineCount(ctx, attack.RulelistID, "rulelist")
			if err != nil {
				return 0, err
			}
		}
		return multiplyKeyspace(words, rules)

	case models.AttackModeBruteForce:
		if attack.Mask == "" {
			return 0, fmt.Errorf("brute-force attack requires a mask")
		}
		if attack.IncrementMode {
			return utils.CalculateIncrementKeyspace(attack.Mask, attack.IncrementMin, attack.IncrementMax, attack.CustomCharsets())
		}
		return utils.CalculateEffectiveKeyspace(attack.Mask, attack.CustomCharsets())

	case models.AttackModeHybridDict, models.AttackModeHybridMask:
		if attack.Mask == "" {
			return 0, fmt.Errorf("hybrid attack requires a mask")
		}
		words, err := p.resourceLineCount(ctx, attack.WordlistID, "wordlist")
		if err != nil {
			return 0, err
		}
		maskSpace, err := utils.CalculateEffectiveKeyspace(attack.Mask, attack.CustomCharsets())
		if err != nil {
			return 0, err
		}
		return multiplyKeyspace(words, maskSpace)

	default:
		return 0, fmt.Errorf("unsupported attack mode %d", attack.Mode)
	}
}

// NextTaskForAttack returns the task to offer next for one attack: the
// first pending slice if any exists, otherwise a fresh slice cut from the
// unallocated keyspace. Returns nil when the attack is fully sliced.
func (p *TaskPlanner) NextTaskForAttack(ctx context.Context, attack *models.Attack, speed int64) (*models.Task, error) {
	task, err := p.taskRepo.FirstPendingForAttack(ctx, attack.ID)
	if err != nil {
		return nil, err
	}
	if task != nil {
		return task, nil
	}

	if attack.TotalKeyspace == nil || *attack.TotalKeyspace <= 0 {
		return nil, fmt.Errorf("attack %s has no computed keyspace", attack.ID)
	}
	totalKeyspace := *attack.TotalKeyspace

	for attempt := 0; attempt < sliceCreateRetries; attempt++ {
		allocatedEnd, err := p.taskRepo.MaxKeyspaceEnd(ctx, attack.ID)
		if err != nil {
			return nil, err
		}

		slice := PlanSlice(totalKeyspace, allocatedEnd, speed, p.tuning)
		if slice == nil {
			// Fully sliced. Another agent may still hold the final range.
			return nil, nil
		}

		debug.Log("Planned keyspace slice", map[string]interface{}{
			"attack_id":     attack.ID,
			"skip":          slice.Skip,
			"limit":         slice.Limit,
			"is_last":       slice.IsLast,
			"agent_speed":   speed,
			"est_duration":  slice.EstimatedSeconds,
			"allocated_end": allocatedEnd,
		})

		task = &models.Task{
			AttackID: attack.ID,
			Skip:     slice.Skip,
			Limit:    slice.Limit,
		}
		err = p.taskRepo.CreateSlice(ctx, task)
		if err == nil {
			return task, nil
		}
		if !errors.Is(err, repository.ErrSliceConflict) {
			return nil, err
		}
		// Another planner took this offset; re-read the cursor and try the
		// next range.
	}

	return nil, fmt.Errorf("gave up slicing attack %s after %d conflicts", attack.ID, sliceCreateRetries)
}

// PlanSlice cuts one range from the unallocated tail of a keyspace. The
// desired size is speed times the target chunk duration, clamped to the
// configured bounds; a remainder smaller than the fluctuation share of the
// desired size is merged into this slice so no dust-sized task is ever
// created. Returns nil when nothing remains.
func PlanSlice(totalKeyspace, allocatedEnd, speed int64, tuning *config.Tuning) *SliceResult {
	remaining := totalKeyspace - allocatedEnd
	if remaining <= 0 {
		return nil
	}

	if speed <= 0 {
		speed = 1
	}

	desired := speed * int64(tuning.ChunkDurationSeconds)
	if desired <= 0 || desired/speed != int64(tuning.ChunkDurationSeconds) {
		// Multiplication overflowed for an extremely fast agent.
		desired = math.MaxInt64
	}
	if desired < tuning.ChunkMinKeyspace {
		desired = tuning.ChunkMinKeyspace
	}
	if tuning.ChunkMaxKeyspace > 0 && desired > tuning.ChunkMaxKeyspace {
		desired = tuning.ChunkMaxKeyspace
	}

	result := &SliceResult{Skip: allocatedEnd}

	if desired >= remaining {
		result.Limit = remaining
		result.IsLast = true
	} else {
		remainingAfter := remaining - desired
		fluctuation := int64(float64(desired) * float64(tuning.ChunkFluctuationPercent) / 100.0)
		if remainingAfter <= fluctuation {
			// Absorb the small tail instead of leaving a dust slice.
			result.Limit = remaining
			result.IsLast = true
		} else {
			result.Limit = desired
		}
	}

	result.EstimatedSeconds = int(result.Limit / speed)
	return result
}

// resourceLineCount loads a referenced resource and returns its line count
func (p *TaskPlanner) resourceLineCount(ctx context.Context, id *uuid.UUID, kind string) (int64, error) {
	if id == nil {
		return 0, fmt.Errorf("attack requires a %s", kind)
	}

	resource, err := p.resourceRepo.GetByID(ctx, *id)
	if err != nil {
		return 0, err
	}
	if resource.LineCount == nil || *resource.LineCount <= 0 {
		return 0, fmt.Errorf("%s %s has no line count yet", kind, resource.ID)
	}

	return *resource.LineCount, nil
}

// multiplyKeyspace multiplies two keyspace factors with an overflow guard
func multiplyKeyspace(a, b int64) (int64, error) {
	if a <= 0 || b <= 0 {
		return 0, fmt.Errorf("keyspace factors must be positive")
	}
	if a > math.MaxInt64/b {
		return 0, fmt.Errorf("keyspace exceeds int64 range")
	}
	return a * b, nil
}

// Keyspace magnitude thresholds for the 1-5 complexity score
const (
	complexityBucket1 = 1_000_000
	complexityBucket2 = 100_000_000
	complexityBucket3 = 10_000_000_000
	complexityBucket4 = 1_000_000_000_000
)

// ComplexityForKeyspace maps a keyspace to its 1-5 complexity score
func ComplexityForKeyspace(keyspace int64) int {
	switch {
	case keyspace < complexityBucket1:
		return 1
	case keyspace < complexityBucket2:
		return 2
	case keyspace < complexityBucket3:
		return 3
	case keyspace < complexityBucket4:
		return 4
	default:
		return 5
	}
}
