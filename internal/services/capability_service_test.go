package services

import (
	"testing"

	"github.com/ZerkerEOD/hashfleet/internal/config"
	"github.com/ZerkerEOD/hashfleet/internal/models"
)

func TestEvaluate(t *testing.T) {
	tuning := config.DefaultTuning()
	tuning.MinSpeedHighPriority = 1_000_000
	tuning.HighPriorityThreshold = models.CampaignPriorityHigh

	svc := NewCapabilityService(nil, tuning)

	benchmarks := models.BenchmarkMap{
		0:    5_000_000, // MD5, fast
		1800: 50_000,    // sha512crypt, slow
	}

	tests := []struct {
		name         string
		hashTypeID   int
		priority     int
		wantEligible bool
		wantSpeed    int64
		wantReason   SkipReason
	}{
		{
			name:         "benchmarked type is eligible",
			hashTypeID:   0,
			priority:     models.CampaignPriorityRoutine,
			wantEligible: true,
			wantSpeed:    5_000_000,
		},
		{
			name:       "unmeasured type is never offered",
			hashTypeID: 3200,
			priority:   models.CampaignPriorityRoutine,
			wantReason: SkipNoBenchmark,
		},
		{
			name:         "slow agent still runs routine work",
			hashTypeID:   1800,
			priority:     models.CampaignPriorityRoutine,
			wantEligible: true,
			wantSpeed:    50_000,
		},
		{
			name:       "slow agent is skipped for high priority",
			hashTypeID: 1800,
			priority:   models.CampaignPriorityHigh,
			wantReason: SkipBelowHighPrioFloor,
		},
		{
			name:       "slow agent is skipped for urgent",
			hashTypeID: 1800,
			priority:   models.CampaignPriorityUrgent,
			wantReason: SkipBelowHighPrioFloor,
		},
		{
			name:         "fast agent clears the high priority floor",
			hashTypeID:   0,
			priority:     models.CampaignPriorityUrgent,
			wantEligible: true,
			wantSpeed:    5_000_000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.Evaluate(benchmarks, tt.hashTypeID, tt.priority)
			if got.Eligible != tt.wantEligible {
				t.Fatalf("eligible = %v, want %v (reason %q)", got.Eligible, tt.wantEligible, got.Reason)
			}
			if got.Eligible && got.Speed != tt.wantSpeed {
				t.Errorf("speed = %d, want %d", got.Speed, tt.wantSpeed)
			}
			if !got.Eligible && got.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", got.Reason, tt.wantReason)
			}
		})
	}
}

func TestEvaluate_FloorDisabled(t *testing.T) {
	tuning := config.DefaultTuning()
	tuning.MinSpeedHighPriority = 0

	svc := NewCapabilityService(nil, tuning)
	benchmarks := models.BenchmarkMap{1800: 1}

	got := svc.Evaluate(benchmarks, 1800, models.CampaignPriorityUrgent)
	if !got.Eligible {
		t.Fatalf("expected eligibility with the speed floor disabled, got reason %q", got.Reason)
	}
}
