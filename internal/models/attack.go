package models

import (
	"time"

	"github.com/google/uuid"
)

// AttackMode represents the hashcat attack mode
type AttackMode int

const (
	AttackModeStraight   AttackMode = 0 // Dictionary attack
	AttackModeBruteForce AttackMode = 3 // Brute-force/mask attack
	AttackModeHybridDict AttackMode = 6 // Hybrid dictionary + mask
	AttackModeHybridMask AttackMode = 7 // Hybrid mask + dictionary
)

// IsValid reports whether the mode is one the keyspace planner understands
func (m AttackMode) IsValid() bool {
	switch m {
	case AttackModeStraight, AttackModeBruteForce, AttackModeHybridDict, AttackModeHybridMask:
		return true
	}
	return false
}

// AttackStatus represents the lifecycle state of an attack
type AttackStatus string

const (
	AttackStatusPending   AttackStatus = "pending"
	AttackStatusRunning   AttackStatus = "running"
	AttackStatusPaused    AttackStatus = "paused"
	AttackStatusCompleted AttackStatus = "completed"
	AttackStatusExhausted AttackStatus = "exhausted"
	AttackStatusFailed    AttackStatus = "failed"
	AttackStatusAbandoned AttackStatus = "abandoned"
)

// attackTransitions lists the permitted target states per source state.
// Paused attacks may still finish: under starvation-style preemption their
// in-flight tasks keep reporting until done. A pending attack may complete
// without ever starting when its hashlist is fully cracked first.
var attackTransitions = map[AttackStatus][]AttackStatus{
	AttackStatusPending:   {AttackStatusRunning, AttackStatusPaused, AttackStatusCompleted, AttackStatusAbandoned},
	AttackStatusRunning:   {AttackStatusPaused, AttackStatusCompleted, AttackStatusExhausted, AttackStatusFailed, AttackStatusAbandoned},
	AttackStatusPaused:    {AttackStatusRunning, AttackStatusPending, AttackStatusCompleted, AttackStatusExhausted, AttackStatusFailed, AttackStatusAbandoned},
	AttackStatusCompleted: {},
	AttackStatusExhausted: {},
	AttackStatusFailed:    {AttackStatusPending, AttackStatusAbandoned},
	AttackStatusAbandoned: {},
}

// IsValid reports whether the status is a known attack status
func (s AttackStatus) IsValid() bool {
	_, ok := attackTransitions[s]
	return ok
}

// IsFinished reports whether the status is terminal
func (s AttackStatus) IsFinished() bool {
	switch s {
	case AttackStatusCompleted, AttackStatusExhausted, AttackStatusFailed, AttackStatusAbandoned:
		return true
	}
	return false
}

// CanTransitionTo reports whether the transition s -> target is permitted.
// Same-state transitions always succeed.
func (s AttackStatus) CanTransitionTo(target AttackStatus) bool {
	if s == target {
		return true
	}
	for _, allowed := range attackTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// ValidateAttackTransition returns an InvalidTransitionError if from -> to
// is not a permitted attack transition.
func ValidateAttackTransition(from, to AttackStatus) error {
	if !from.CanTransitionTo(to) {
		return newInvalidTransition("attack", string(from), string(to))
	}
	return nil
}

// Attack is one hashcat-style configuration inside a campaign. Its mode
// determines which keyspace parameters are meaningful; TotalKeyspace is
// computed once at creation and never recomputed while tasks exist.
type Attack struct {
	ID              uuid.UUID    `json:"id" db:"id"`
	CampaignID      uuid.UUID    `json:"campaign_id" db:"campaign_id"`
	Name            string       `json:"name" db:"name"`
	Mode            AttackMode   `json:"attack_mode" db:"attack_mode"`
	HashTypeID      int          `json:"hash_type_id" db:"hash_type_id"`
	Status          AttackStatus `json:"status" db:"status"`
	Position        int          `json:"position" db:"position"`
	WordlistID      *uuid.UUID   `json:"wordlist_id,omitempty" db:"wordlist_id"`
	RulelistID      *uuid.UUID   `json:"rulelist_id,omitempty" db:"rulelist_id"`
	MasklistID      *uuid.UUID   `json:"masklist_id,omitempty" db:"masklist_id"`
	Mask            string       `json:"mask,omitempty" db:"mask"`
	IncrementMode   bool         `json:"increment_mode" db:"increment_mode"`
	IncrementMin    int          `json:"increment_minimum" db:"increment_minimum"`
	IncrementMax    int          `json:"increment_maximum" db:"increment_maximum"`
	CustomCharset1  string       `json:"custom_charset_1,omitempty" db:"custom_charset_1"`
	CustomCharset2  string       `json:"custom_charset_2,omitempty" db:"custom_charset_2"`
	CustomCharset3  string       `json:"custom_charset_3,omitempty" db:"custom_charset_3"`
	CustomCharset4  string       `json:"custom_charset_4,omitempty" db:"custom_charset_4"`
	TotalKeyspace   *int64       `json:"total_keyspace,omitempty" db:"total_keyspace"`
	ComplexityScore int          `json:"complexity_score" db:"complexity_score"`
	Comment         string       `json:"comment,omitempty" db:"comment"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at" db:"updated_at"`
}

// CustomCharsets returns the user charsets positionally, index 0 backing ?1.
// Trailing unset slots are trimmed but gaps are preserved so references stay
// aligned.
func (a *Attack) CustomCharsets() []string {
	out := []string{a.CustomCharset1, a.CustomCharset2, a.CustomCharset3, a.CustomCharset4}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

// UsesMask reports whether the attack mode consumes a mask
func (a *Attack) UsesMask() bool {
	switch a.Mode {
	case AttackModeBruteForce, AttackModeHybridDict, AttackModeHybridMask:
		return true
	}
	return false
}

// UsesWordlist reports whether the attack mode consumes a wordlist
func (a *Attack) UsesWordlist() bool {
	switch a.Mode {
	case AttackModeStraight, AttackModeHybridDict, AttackModeHybridMask:
		return true
	}
	return false
}
