package models

import (
	"errors"
	"testing"
)

func TestTaskTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    TaskStatus
		to      TaskStatus
		allowed bool
	}{
		{"pending to running", TaskStatusPending, TaskStatusRunning, true},
		{"pending to paused", TaskStatusPending, TaskStatusPaused, true},
		{"pending to completed skips running", TaskStatusPending, TaskStatusCompleted, false},
		{"running to completed", TaskStatusRunning, TaskStatusCompleted, true},
		{"running to exhausted", TaskStatusRunning, TaskStatusExhausted, true},
		{"running to failed", TaskStatusRunning, TaskStatusFailed, true},
		{"running back to pending on lease release", TaskStatusRunning, TaskStatusPending, true},
		{"paused returns to pending not running", TaskStatusPaused, TaskStatusPending, true},
		{"paused to running is not direct", TaskStatusPaused, TaskStatusRunning, false},
		{"failed to pending for retry", TaskStatusFailed, TaskStatusPending, true},
		{"completed cannot rerun", TaskStatusCompleted, TaskStatusRunning, false},
		{"completed to abandoned cleanup", TaskStatusCompleted, TaskStatusAbandoned, true},
		{"exhausted to abandoned cleanup", TaskStatusExhausted, TaskStatusAbandoned, true},
		{"abandoned is terminal", TaskStatusAbandoned, TaskStatusPending, false},
		{"same state always succeeds", TaskStatusRunning, TaskStatusRunning, true},
		{"same terminal state succeeds", TaskStatusAbandoned, TaskStatusAbandoned, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.from.CanTransitionTo(tt.to)
			if got != tt.allowed {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}

			err := ValidateTaskTransition(tt.from, tt.to)
			if tt.allowed && err != nil {
				t.Errorf("ValidateTaskTransition(%s -> %s) unexpected error: %v", tt.from, tt.to, err)
			}
			if !tt.allowed {
				if err == nil {
					t.Fatalf("ValidateTaskTransition(%s -> %s) expected error, got nil", tt.from, tt.to)
				}
				var invalid *InvalidTransitionError
				if !errors.As(err, &invalid) {
					t.Errorf("expected InvalidTransitionError, got %T", err)
				} else if invalid.Entity != "task" {
					t.Errorf("expected entity task, got %s", invalid.Entity)
				}
			}
		})
	}
}

func TestEveryTaskStateCanAbandon(t *testing.T) {
	states := []TaskStatus{
		TaskStatusPending, TaskStatusRunning, TaskStatusPaused,
		TaskStatusCompleted, TaskStatusExhausted, TaskStatusFailed,
	}
	for _, s := range states {
		if !s.CanTransitionTo(TaskStatusAbandoned) {
			t.Errorf("state %s should allow abandonment", s)
		}
	}
}

func TestAttackTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    AttackStatus
		to      AttackStatus
		allowed bool
	}{
		{"pending to running", AttackStatusPending, AttackStatusRunning, true},
		{"running to completed", AttackStatusRunning, AttackStatusCompleted, true},
		{"running to exhausted", AttackStatusRunning, AttackStatusExhausted, true},
		{"running to paused", AttackStatusRunning, AttackStatusPaused, true},
		{"paused resumes to running", AttackStatusPaused, AttackStatusRunning, true},
		{"paused may complete while starved", AttackStatusPaused, AttackStatusCompleted, true},
		{"failed to pending for retry", AttackStatusFailed, AttackStatusPending, true},
		{"completed is terminal", AttackStatusCompleted, AttackStatusRunning, false},
		{"exhausted is terminal", AttackStatusExhausted, AttackStatusPending, false},
		{"pending cannot complete directly", AttackStatusPending, AttackStatusCompleted, false},
		{"same state succeeds", AttackStatusPaused, AttackStatusPaused, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestCampaignTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    CampaignStatus
		to      CampaignStatus
		allowed bool
	}{
		{"draft to scheduled", CampaignStatusDraft, CampaignStatusScheduled, true},
		{"scheduled to running", CampaignStatusScheduled, CampaignStatusRunning, true},
		{"scheduled back to draft", CampaignStatusScheduled, CampaignStatusDraft, true},
		{"draft cannot run directly", CampaignStatusDraft, CampaignStatusRunning, false},
		{"running to paused preemption", CampaignStatusRunning, CampaignStatusPaused, true},
		{"paused resumes", CampaignStatusPaused, CampaignStatusRunning, true},
		{"paused may complete", CampaignStatusPaused, CampaignStatusCompleted, true},
		{"running to failed", CampaignStatusRunning, CampaignStatusFailed, true},
		{"failed relaunches", CampaignStatusFailed, CampaignStatusRunning, true},
		{"completed is terminal", CampaignStatusCompleted, CampaignStatusRunning, false},
		{"abandoned is terminal", CampaignStatusAbandoned, CampaignStatusDraft, false},
		{"same state succeeds", CampaignStatusRunning, CampaignStatusRunning, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCampaignTransition(tt.from, tt.to)
			if tt.allowed && err != nil {
				t.Errorf("ValidateCampaignTransition(%s -> %s) unexpected error: %v", tt.from, tt.to, err)
			}
			if !tt.allowed && err == nil {
				t.Errorf("ValidateCampaignTransition(%s -> %s) expected error", tt.from, tt.to)
			}
		})
	}
}

func TestAgentTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    AgentStatus
		to      AgentStatus
		allowed bool
	}{
		{"pending activates on first benchmark", AgentStatusPending, AgentStatusActive, true},
		{"active to disconnected on heartbeat loss", AgentStatusActive, AgentStatusDisconnected, true},
		{"disconnected to reconnecting on heartbeat", AgentStatusDisconnected, AgentStatusReconnecting, true},
		{"reconnecting back to active", AgentStatusReconnecting, AgentStatusActive, true},
		{"pending to error on fatal fault", AgentStatusPending, AgentStatusError, true},
		{"active to error on fatal fault", AgentStatusActive, AgentStatusError, true},
		{"disconnected to error on fatal fault", AgentStatusDisconnected, AgentStatusError, true},
		{"error recovers via pending", AgentStatusError, AgentStatusPending, true},
		{"error cannot jump to active", AgentStatusError, AgentStatusActive, false},
		{"retired is terminal", AgentStatusRetired, AgentStatusActive, false},
		{"any state can retire", AgentStatusDisconnected, AgentStatusRetired, true},
		{"same state succeeds", AgentStatusActive, AgentStatusActive, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestAgentStatusLiveness(t *testing.T) {
	live := []AgentStatus{AgentStatusPending, AgentStatusActive, AgentStatusReconnecting}
	for _, s := range live {
		if !s.IsLive() {
			t.Errorf("expected %s to be live", s)
		}
	}
	notLive := []AgentStatus{AgentStatusDisconnected, AgentStatusRetired, AgentStatusError}
	for _, s := range notLive {
		if s.IsLive() {
			t.Errorf("expected %s to be non-live", s)
		}
	}
	if AgentStatusPending.CanReceiveWork() {
		t.Error("pending agents must not receive work before benchmarking")
	}
	if !AgentStatusActive.CanReceiveWork() {
		t.Error("active agents must be schedulable")
	}
}

func TestTaskProgressFraction(t *testing.T) {
	task := Task{Skip: 0, Limit: 200, ProgressKeyspace: 50}
	if got := task.ProgressFraction(); got != 0.25 {
		t.Errorf("ProgressFraction() = %v, want 0.25", got)
	}

	// Overshoot clamps to 1
	task.ProgressKeyspace = 500
	if got := task.ProgressFraction(); got != 1 {
		t.Errorf("ProgressFraction() with overshoot = %v, want 1", got)
	}

	// Zero-limit tasks report no progress
	empty := Task{Limit: 0, ProgressKeyspace: 10}
	if got := empty.ProgressFraction(); got != 0 {
		t.Errorf("ProgressFraction() on zero limit = %v, want 0", got)
	}
}

func TestErrorSeverityEscalation(t *testing.T) {
	degrading := []ErrorSeverity{SeverityMajor, SeverityCritical, SeverityFatal}
	for _, s := range degrading {
		if !s.DegradesAgent() {
			t.Errorf("severity %s should degrade the agent", s)
		}
	}
	benign := []ErrorSeverity{SeverityInfo, SeverityWarning, SeverityMinor}
	for _, s := range benign {
		if s.DegradesAgent() {
			t.Errorf("severity %s should not degrade the agent", s)
		}
	}
	if SeverityCritical.IsFatal() {
		t.Error("critical must not trigger the immediate sweep, only fatal does")
	}
	if !SeverityFatal.IsFatal() {
		t.Error("fatal must trigger the immediate sweep")
	}
}
