package services

import (
	"math"
	"testing"

	"github.com/ZerkerEOD/hashfleet/internal/config"
)

func planTuning() *config.Tuning {
	t := config.DefaultTuning()
	t.ChunkDurationSeconds = 600
	t.ChunkFluctuationPercent = 20
	t.ChunkMinKeyspace = 1000
	t.ChunkMaxKeyspace = 0
	return t
}

func TestPlanSlice_SpeedSizing(t *testing.T) {
	tuning := planTuning()

	// 1M h/s for 600s wants a 600M slice.
	slice := PlanSlice(10_000_000_000, 0, 1_000_000, tuning)
	if slice == nil {
		t.Fatal("expected a slice")
	}
	if slice.Skip != 0 {
		t.Errorf("skip = %d, want 0", slice.Skip)
	}
	if slice.Limit != 600_000_000 {
		t.Errorf("limit = %d, want 600000000", slice.Limit)
	}
	if slice.IsLast {
		t.Error("slice is not the last of this keyspace")
	}
	if slice.EstimatedSeconds != 600 {
		t.Errorf("estimate = %ds, want 600s", slice.EstimatedSeconds)
	}
}

func TestPlanSlice_ResumesAtAllocatedEnd(t *testing.T) {
	tuning := planTuning()

	slice := PlanSlice(10_000_000_000, 600_000_000, 1_000_000, tuning)
	if slice == nil {
		t.Fatal("expected a slice")
	}
	if slice.Skip != 600_000_000 {
		t.Errorf("skip = %d, want 600000000", slice.Skip)
	}
}

func TestPlanSlice_ExhaustedKeyspace(t *testing.T) {
	tuning := planTuning()

	if slice := PlanSlice(1000, 1000, 1_000_000, tuning); slice != nil {
		t.Errorf("expected nil for a fully allocated keyspace, got %+v", slice)
	}
}

func TestPlanSlice_AbsorbsDustTail(t *testing.T) {
	tuning := planTuning()

	// Desired is 600M; the tail after it (100M) is below the 20%
	// fluctuation share (120M) and must be merged into this slice.
	slice := PlanSlice(700_000_000, 0, 1_000_000, tuning)
	if slice == nil {
		t.Fatal("expected a slice")
	}
	if slice.Limit != 700_000_000 {
		t.Errorf("limit = %d, want the whole 700000000", slice.Limit)
	}
	if !slice.IsLast {
		t.Error("absorbing the tail must mark the slice last")
	}
}

func TestPlanSlice_LeavesLargeTail(t *testing.T) {
	tuning := planTuning()

	// Tail after the desired slice is 130M, above the 120M fluctuation
	// share, so it stays for the next agent.
	slice := PlanSlice(730_000_000, 0, 1_000_000, tuning)
	if slice == nil {
		t.Fatal("expected a slice")
	}
	if slice.Limit != 600_000_000 {
		t.Errorf("limit = %d, want 600000000", slice.Limit)
	}
	if slice.IsLast {
		t.Error("a real tail remains, slice must not be last")
	}
}

func TestPlanSlice_MinimumFloor(t *testing.T) {
	tuning := planTuning()

	// A crawling agent still gets at least the configured minimum.
	slice := PlanSlice(100_000, 0, 1, tuning)
	if slice == nil {
		t.Fatal("expected a slice")
	}
	if slice.Limit < tuning.ChunkMinKeyspace {
		t.Errorf("limit = %d, below the %d floor", slice.Limit, tuning.ChunkMinKeyspace)
	}
}

func TestPlanSlice_MaximumCap(t *testing.T) {
	tuning := planTuning()
	tuning.ChunkMaxKeyspace = 50_000_000

	slice := PlanSlice(10_000_000_000, 0, 1_000_000, tuning)
	if slice == nil {
		t.Fatal("expected a slice")
	}
	if slice.Limit != 50_000_000 {
		t.Errorf("limit = %d, want the 50000000 cap", slice.Limit)
	}
}

func TestPlanSlice_ZeroSpeedFallback(t *testing.T) {
	tuning := planTuning()

	// Unmeasured speed must not panic or produce a zero-length slice.
	slice := PlanSlice(1_000_000, 0, 0, tuning)
	if slice == nil {
		t.Fatal("expected a slice")
	}
	if slice.Limit <= 0 {
		t.Errorf("limit = %d, want positive", slice.Limit)
	}
}

func TestMultiplyKeyspace(t *testing.T) {
	got, err := multiplyKeyspace(14_344_384, 64)
	if err != nil {
		t.Fatalf("multiplyKeyspace failed: %v", err)
	}
	if got != 918_040_576 {
		t.Errorf("got %d, want 918040576", got)
	}

	if _, err := multiplyKeyspace(math.MaxInt64, 2); err == nil {
		t.Error("expected overflow error")
	}
	if _, err := multiplyKeyspace(0, 5); err == nil {
		t.Error("expected error for non-positive factor")
	}
}

func TestComplexityForKeyspace(t *testing.T) {
	tests := []struct {
		keyspace int64
		want     int
	}{
		{999_999, 1},
		{1_000_000, 2},
		{99_999_999, 2},
		{100_000_000, 3},
		{9_999_999_999, 3},
		{10_000_000_000, 4},
		{999_999_999_999, 4},
		{1_000_000_000_000, 5},
		{math.MaxInt64, 5},
	}

	for _, tt := range tests {
		if got := ComplexityForKeyspace(tt.keyspace); got != tt.want {
			t.Errorf("ComplexityForKeyspace(%d) = %d, want %d", tt.keyspace, got, tt.want)
		}
	}
}
