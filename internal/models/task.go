package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusPaused    TaskStatus = "paused"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusExhausted TaskStatus = "exhausted"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusAbandoned TaskStatus = "abandoned"
)

// taskTransitions lists the permitted target states per source state.
// Running tasks may return to pending when a lease is released or swept.
// Pending and paused tasks may complete without running when their hashlist
// is fully cracked and further search is unnecessary. Abandonment is
// reachable from every state; it is the terminal cleanup path and cascades
// at the attack level.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:   {TaskStatusRunning, TaskStatusPaused, TaskStatusCompleted, TaskStatusAbandoned},
	TaskStatusRunning:   {TaskStatusPending, TaskStatusPaused, TaskStatusCompleted, TaskStatusExhausted, TaskStatusFailed, TaskStatusAbandoned},
	TaskStatusPaused:    {TaskStatusPending, TaskStatusCompleted, TaskStatusAbandoned},
	TaskStatusCompleted: {TaskStatusAbandoned},
	TaskStatusExhausted: {TaskStatusAbandoned},
	TaskStatusFailed:    {TaskStatusPending, TaskStatusAbandoned},
	TaskStatusAbandoned: {},
}

// IsValid reports whether the status is a known task status
func (s TaskStatus) IsValid() bool {
	_, ok := taskTransitions[s]
	return ok
}

// IsFinished reports whether the status is terminal for scheduling purposes
func (s TaskStatus) IsFinished() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusExhausted, TaskStatusFailed, TaskStatusAbandoned:
		return true
	}
	return false
}

// CanTransitionTo reports whether the transition s -> target is permitted.
// Same-state transitions always succeed.
func (s TaskStatus) CanTransitionTo(target TaskStatus) bool {
	if s == target {
		return true
	}
	for _, allowed := range taskTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// ValidateTaskTransition returns an InvalidTransitionError if from -> to is
// not a permitted task transition.
func ValidateTaskTransition(from, to TaskStatus) error {
	if !from.CanTransitionTo(to) {
		return newInvalidTransition("task", string(from), string(to))
	}
	return nil
}

// Task is the unit of dispatch: a contiguous keyspace range
// [Skip, Skip+Limit) within its attack's total keyspace. Tasks are the only
// entity written by the agent hot path; attack and campaign states are
// derived from their tasks.
type Task struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	AttackID         uuid.UUID  `json:"attack_id" db:"attack_id"`
	AgentID          *uuid.UUID `json:"agent_id,omitempty" db:"agent_id"`
	Status           TaskStatus `json:"status" db:"status"`
	Skip             int64      `json:"skip" db:"keyspace_skip"`
	Limit            int64      `json:"limit" db:"keyspace_limit"`
	ProgressKeyspace int64      `json:"progress_keyspace" db:"progress_keyspace"`
	ClaimedAt        *time.Time `json:"claimed_at,omitempty" db:"claimed_at"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	LastHeartbeatAt  *time.Time `json:"last_heartbeat_at,omitempty" db:"last_heartbeat_at"`
	RetryCount       int        `json:"retry_count" db:"retry_count"`
	Stale            bool       `json:"stale" db:"stale"`
	ErrorMessage     *string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// KeyspaceEnd returns the exclusive end offset of the task's range
func (t *Task) KeyspaceEnd() int64 {
	return t.Skip + t.Limit
}

// ProgressFraction returns completed keyspace as a fraction in [0, 1].
// Zero-limit tasks report 0 so they never distort weighted rollups.
func (t *Task) ProgressFraction() float64 {
	if t.Limit <= 0 {
		return 0
	}
	f := float64(t.ProgressKeyspace) / float64(t.Limit)
	if f > 1 {
		f = 1
	}
	return f
}

// ProgressPercent returns completed keyspace as a percentage in [0, 100]
func (t *Task) ProgressPercent() float64 {
	return t.ProgressFraction() * 100
}

// HasLiveClaim reports whether the task carries an unexpired claim at now
func (t *Task) HasLiveClaim(now time.Time) bool {
	return t.AgentID != nil && t.ExpiresAt != nil && t.ExpiresAt.After(now)
}

// TaskProgressRow is the slice of task state the progress aggregator
// consumes: one row per task, weighted by its keyspace share.
type TaskProgressRow struct {
	TaskID           uuid.UUID  `json:"task_id" db:"id"`
	Status           TaskStatus `json:"status" db:"status"`
	Keyspace         int64      `json:"keyspace" db:"keyspace_limit"`
	ProgressKeyspace int64      `json:"progress_keyspace" db:"progress_keyspace"`
}

// EffectiveProgress returns the keyspace counted as done for rollups:
// finished successful tasks count in full, failed and abandoned count
// nothing, live tasks count their reported progress.
func (r TaskProgressRow) EffectiveProgress() int64 {
	switch r.Status {
	case TaskStatusCompleted, TaskStatusExhausted:
		return r.Keyspace
	case TaskStatusFailed, TaskStatusAbandoned:
		return 0
	}
	if r.ProgressKeyspace > r.Keyspace {
		return r.Keyspace
	}
	return r.ProgressKeyspace
}

// TaskDescriptor is what an agent receives on a successful work request:
// the range to run, the attack configuration to run it with, and the
// resources the attack needs.
type TaskDescriptor struct {
	TaskID         uuid.UUID     `json:"task_id"`
	AttackID       uuid.UUID     `json:"attack_id"`
	CampaignID     uuid.UUID     `json:"campaign_id"`
	HashListID     uuid.UUID     `json:"hashlist_id"`
	HashTypeID     int           `json:"hash_type_id"`
	Mode           AttackMode    `json:"attack_mode"`
	Skip           int64         `json:"skip"`
	Limit          int64         `json:"limit"`
	Stale          bool          `json:"stale"`
	Mask           string        `json:"mask,omitempty"`
	CustomCharsets []string      `json:"custom_charsets,omitempty"`
	Resources      []ResourceRef `json:"resources,omitempty"`
	ExpiresAt      time.Time     `json:"expires_at"`
}

// ResourceRef points an agent at one attack resource it must fetch before
// starting. The URL is a short-lived presigned handle; FileHash lets the
// agent verify the download.
type ResourceRef struct {
	ID           uuid.UUID    `json:"id"`
	ResourceType ResourceType `json:"resource_type"`
	FileName     string       `json:"file_name"`
	FileHash     string       `json:"file_hash"`
	FileSize     int64        `json:"file_size"`
	DownloadURL  string       `json:"download_url,omitempty"`
}
