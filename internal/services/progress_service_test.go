package services

import (
	"math"
	"testing"

	"github.com/ZerkerEOD/hashfleet/internal/models"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestWeightedAttackProgress(t *testing.T) {
	tests := []struct {
		name          string
		rows          []models.TaskProgressRow
		totalKeyspace int64
		want          float64
	}{
		{
			name: "small finished slice does not dominate",
			rows: []models.TaskProgressRow{
				{Status: models.TaskStatusCompleted, Keyspace: 10},
				{Status: models.TaskStatusRunning, Keyspace: 90, ProgressKeyspace: 0},
			},
			totalKeyspace: 100,
			want:          10,
		},
		{
			name: "running progress counts partially",
			rows: []models.TaskProgressRow{
				{Status: models.TaskStatusCompleted, Keyspace: 50},
				{Status: models.TaskStatusRunning, Keyspace: 50, ProgressKeyspace: 25},
			},
			totalKeyspace: 100,
			want:          75,
		},
		{
			name: "failed tasks contribute nothing",
			rows: []models.TaskProgressRow{
				{Status: models.TaskStatusFailed, Keyspace: 50, ProgressKeyspace: 40},
				{Status: models.TaskStatusCompleted, Keyspace: 50},
			},
			totalKeyspace: 100,
			want:          50,
		},
		{
			name: "unsliced tail holds progress down",
			rows: []models.TaskProgressRow{
				{Status: models.TaskStatusCompleted, Keyspace: 100},
			},
			totalKeyspace: 1000,
			want:          10,
		},
		{
			name: "over-reported progress is clamped to the slice",
			rows: []models.TaskProgressRow{
				{Status: models.TaskStatusRunning, Keyspace: 100, ProgressKeyspace: 250},
			},
			totalKeyspace: 100,
			want:          100,
		},
		{
			name:          "no tasks means zero",
			rows:          nil,
			totalKeyspace: 0,
			want:          0,
		},
		{
			name: "exhausted counts as fully covered",
			rows: []models.TaskProgressRow{
				{Status: models.TaskStatusExhausted, Keyspace: 40},
				{Status: models.TaskStatusRunning, Keyspace: 60, ProgressKeyspace: 30},
			},
			totalKeyspace: 100,
			want:          70,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeightedAttackProgress(tt.rows, tt.totalKeyspace)
			if !almostEqual(got, tt.want) {
				t.Errorf("got %.4f%%, want %.4f%%", got, tt.want)
			}
		})
	}
}

func TestWeightedCampaignProgress(t *testing.T) {
	tests := []struct {
		name   string
		inputs []AttackProgressInput
		want   float64
	}{
		{
			name: "keyspace weighting",
			inputs: []AttackProgressInput{
				{Weight: 1000, Percent: 100},
				{Weight: 9000, Percent: 0},
			},
			want: 10,
		},
		{
			name: "equal weights average",
			inputs: []AttackProgressInput{
				{Weight: 500, Percent: 40},
				{Weight: 500, Percent: 60},
			},
			want: 50,
		},
		{
			name: "zero-weight attacks are skipped",
			inputs: []AttackProgressInput{
				{Weight: 0, Percent: 100},
				{Weight: 100, Percent: 30},
			},
			want: 30,
		},
		{
			name:   "no attacks means zero",
			inputs: nil,
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeightedCampaignProgress(tt.inputs)
			if !almostEqual(got, tt.want) {
				t.Errorf("got %.4f%%, want %.4f%%", got, tt.want)
			}
		})
	}
}

func TestDeriveAttackOutcome(t *testing.T) {
	tests := []struct {
		name       string
		counts     map[models.TaskStatus]int
		wantStatus models.AttackStatus
		wantDone   bool
	}{
		{
			name:     "no tasks yet",
			counts:   map[models.TaskStatus]int{},
			wantDone: false,
		},
		{
			name: "live task blocks derivation",
			counts: map[models.TaskStatus]int{
				models.TaskStatusCompleted: 3,
				models.TaskStatusRunning:   1,
			},
			wantDone: false,
		},
		{
			name: "pending task blocks derivation",
			counts: map[models.TaskStatus]int{
				models.TaskStatusCompleted: 3,
				models.TaskStatusPending:   1,
			},
			wantDone: false,
		},
		{
			name: "any failure wins",
			counts: map[models.TaskStatus]int{
				models.TaskStatusCompleted: 5,
				models.TaskStatusExhausted: 2,
				models.TaskStatusFailed:    1,
			},
			wantStatus: models.AttackStatusFailed,
			wantDone:   true,
		},
		{
			name: "exhaustion beats completion",
			counts: map[models.TaskStatus]int{
				models.TaskStatusCompleted: 5,
				models.TaskStatusExhausted: 1,
			},
			wantStatus: models.AttackStatusExhausted,
			wantDone:   true,
		},
		{
			name: "all abandoned",
			counts: map[models.TaskStatus]int{
				models.TaskStatusAbandoned: 3,
			},
			wantStatus: models.AttackStatusAbandoned,
			wantDone:   true,
		},
		{
			name: "all completed",
			counts: map[models.TaskStatus]int{
				models.TaskStatusCompleted: 4,
			},
			wantStatus: models.AttackStatusCompleted,
			wantDone:   true,
		},
		{
			name: "mixed completed and abandoned completes",
			counts: map[models.TaskStatus]int{
				models.TaskStatusCompleted: 2,
				models.TaskStatusAbandoned: 1,
			},
			wantStatus: models.AttackStatusCompleted,
			wantDone:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, done := deriveAttackOutcome(tt.counts)
			if done != tt.wantDone {
				t.Fatalf("done = %v, want %v", done, tt.wantDone)
			}
			if done && status != tt.wantStatus {
				t.Errorf("status = %q, want %q", status, tt.wantStatus)
			}
		})
	}
}

func TestDeriveCampaignOutcome(t *testing.T) {
	attack := func(status models.AttackStatus) models.Attack {
		return models.Attack{Status: status}
	}

	tests := []struct {
		name       string
		attacks    []models.Attack
		wantStatus models.CampaignStatus
		wantDone   bool
	}{
		{
			name:     "no attacks",
			attacks:  nil,
			wantDone: false,
		},
		{
			name: "unfinished attack blocks derivation",
			attacks: []models.Attack{
				attack(models.AttackStatusCompleted),
				attack(models.AttackStatusRunning),
			},
			wantDone: false,
		},
		{
			name: "any failed attack fails the campaign",
			attacks: []models.Attack{
				attack(models.AttackStatusCompleted),
				attack(models.AttackStatusFailed),
			},
			wantStatus: models.CampaignStatusFailed,
			wantDone:   true,
		},
		{
			name: "all abandoned",
			attacks: []models.Attack{
				attack(models.AttackStatusAbandoned),
				attack(models.AttackStatusAbandoned),
			},
			wantStatus: models.CampaignStatusAbandoned,
			wantDone:   true,
		},
		{
			name: "exhausted and completed complete the campaign",
			attacks: []models.Attack{
				attack(models.AttackStatusExhausted),
				attack(models.AttackStatusCompleted),
			},
			wantStatus: models.CampaignStatusCompleted,
			wantDone:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, done := deriveCampaignOutcome(tt.attacks)
			if done != tt.wantDone {
				t.Fatalf("done = %v, want %v", done, tt.wantDone)
			}
			if done && status != tt.wantStatus {
				t.Errorf("status = %q, want %q", status, tt.wantStatus)
			}
		})
	}
}
