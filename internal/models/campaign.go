package models

import (
	"time"

	"github.com/google/uuid"
)

// Campaign priority tiers. Higher values preempt lower ones; equal values
// never preempt each other.
const (
	CampaignPriorityDeferred = -10
	CampaignPriorityRoutine  = 0
	CampaignPriorityHigh     = 10
	CampaignPriorityUrgent   = 20
)

// CampaignStatus represents the lifecycle state of a campaign
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
	CampaignStatusAbandoned CampaignStatus = "abandoned"
)

// campaignTransitions lists the permitted target states per source state.
// Paused campaigns may complete: preempted work is starved, not recalled,
// so in-flight tasks can still push their attacks over the line. A scheduled
// campaign may complete before starting when its hashlist is fully cracked.
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignStatusDraft:     {CampaignStatusScheduled, CampaignStatusAbandoned},
	CampaignStatusScheduled: {CampaignStatusDraft, CampaignStatusRunning, CampaignStatusCompleted, CampaignStatusAbandoned},
	CampaignStatusRunning:   {CampaignStatusPaused, CampaignStatusCompleted, CampaignStatusFailed, CampaignStatusAbandoned},
	CampaignStatusPaused:    {CampaignStatusRunning, CampaignStatusCompleted, CampaignStatusFailed, CampaignStatusAbandoned},
	CampaignStatusCompleted: {},
	CampaignStatusFailed:    {CampaignStatusRunning, CampaignStatusAbandoned},
	CampaignStatusAbandoned: {},
}

// IsValid reports whether the status is a known campaign status
func (s CampaignStatus) IsValid() bool {
	_, ok := campaignTransitions[s]
	return ok
}

// IsFinished reports whether the status is terminal
func (s CampaignStatus) IsFinished() bool {
	switch s {
	case CampaignStatusCompleted, CampaignStatusFailed, CampaignStatusAbandoned:
		return true
	}
	return false
}

// CanTransitionTo reports whether the transition s -> target is permitted.
// Same-state transitions always succeed.
func (s CampaignStatus) CanTransitionTo(target CampaignStatus) bool {
	if s == target {
		return true
	}
	for _, allowed := range campaignTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// ValidateCampaignTransition returns an InvalidTransitionError if from -> to
// is not a permitted campaign transition.
func ValidateCampaignTransition(from, to CampaignStatus) error {
	if !from.CanTransitionTo(to) {
		return newInvalidTransition("campaign", string(from), string(to))
	}
	return nil
}

// Campaign is an ordered collection of attacks targeting one hashlist.
// Priority drives preemption inside its project; position orders campaigns
// of equal priority together with creation time.
type Campaign struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	ProjectID   uuid.UUID      `json:"project_id" db:"project_id"`
	HashListID  uuid.UUID      `json:"hashlist_id" db:"hashlist_id"`
	Name        string         `json:"name" db:"name"`
	Description string         `json:"description,omitempty" db:"description"`
	Priority    int            `json:"priority" db:"priority"`
	Status      CampaignStatus `json:"status" db:"status"`
	Position    int            `json:"position" db:"position"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// IsDispatchable reports whether the campaign may hand out new tasks
func (c *Campaign) IsDispatchable() bool {
	return c.Status == CampaignStatusRunning
}

// CampaignProgress is the read model returned by progress queries
type CampaignProgress struct {
	CampaignID      uuid.UUID `json:"campaign_id"`
	ProgressPercent float64   `json:"progress_percent"`
	TotalTasks      int       `json:"total_tasks"`
	ActiveAgents    int       `json:"active_agents"`
	TotalHashes     int64     `json:"total_hashes"`
	CrackedHashes   int64     `json:"cracked_hashes"`
}
