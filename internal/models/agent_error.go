package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ErrorSeverity classifies agent fault reports
type ErrorSeverity string

const (
	SeverityInfo     ErrorSeverity = "info"
	SeverityWarning  ErrorSeverity = "warning"
	SeverityMinor    ErrorSeverity = "minor"
	SeverityMajor    ErrorSeverity = "major"
	SeverityCritical ErrorSeverity = "critical"
	SeverityFatal    ErrorSeverity = "fatal"
)

// IsValid reports whether the severity is a known value
func (s ErrorSeverity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityMinor, SeverityMajor, SeverityCritical, SeverityFatal:
		return true
	}
	return false
}

// DegradesAgent reports whether a fault at this severity moves the agent to
// the error state
func (s ErrorSeverity) DegradesAgent() bool {
	switch s {
	case SeverityMajor, SeverityCritical, SeverityFatal:
		return true
	}
	return false
}

// IsFatal reports whether the fault also forces an immediate claim sweep
// instead of waiting for lease expiry
func (s ErrorSeverity) IsFatal() bool {
	return s == SeverityFatal
}

// AgentError is one entry in the append-only agent fault log. Reports never
// mutate task state directly; severity escalation acts on the agent, and the
// lease sweep picks up the fallout.
type AgentError struct {
	ID        int64           `json:"id"`
	AgentID   uuid.UUID       `json:"agent_id"`
	TaskID    *uuid.UUID      `json:"task_id,omitempty"`
	AttackID  *uuid.UUID      `json:"attack_id,omitempty"`
	Severity  ErrorSeverity   `json:"severity"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
