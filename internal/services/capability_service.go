package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/config"
	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/internal/repository"
)

// SkipReason explains why an agent was passed over for a unit of work
type SkipReason string

const (
	SkipNoBenchmark        SkipReason = "no_benchmark"
	SkipBelowHighPrioFloor SkipReason = "below_high_priority_floor"
)

// Eligibility is the capability decision for one agent against one attack's
// hash type. Speed is only meaningful when Eligible is true.
type Eligibility struct {
	Eligible bool
	Speed    int64
	Reason   SkipReason
}

// CapabilityService matches agents to work based on their measured
// benchmarks. A benchmark is a measured hashes/sec figure per hash type;
// an agent with no benchmark for a hash type never receives work for it,
// because slice sizing depends on the speed.
type CapabilityService struct {
	benchmarkRepo *repository.BenchmarkRepository
	tuning        *config.Tuning
}

// NewCapabilityService creates a new capability service
func NewCapabilityService(benchmarkRepo *repository.BenchmarkRepository, tuning *config.Tuning) *CapabilityService {
	return &CapabilityService{
		benchmarkRepo: benchmarkRepo,
		tuning:        tuning,
	}
}

// BenchmarksFor loads the agent's benchmark map. Called once per scheduling
// pass so per-attack evaluation stays in memory.
func (s *CapabilityService) BenchmarksFor(ctx context.Context, agentID uuid.UUID) (models.BenchmarkMap, error) {
	return s.benchmarkRepo.GetBenchmarkMap(ctx, agentID)
}

// NeedsBenchmark reports whether the agent has no benchmark younger than the
// configured maximum age. Such agents must re-measure before they can be
// matched to work.
func (s *CapabilityService) NeedsBenchmark(ctx context.Context, agentID uuid.UUID) (bool, error) {
	cutoff := time.Now().Add(-s.tuning.BenchmarkMaxAge())
	fresh, err := s.benchmarkRepo.CountFresh(ctx, agentID, cutoff)
	if err != nil {
		return false, err
	}
	return fresh == 0, nil
}

// Evaluate decides whether an agent with the given benchmarks may run work
// for hashTypeID under a campaign of the given priority. High-priority
// campaigns may additionally require a minimum speed so slow agents do not
// drag out urgent work.
func (s *CapabilityService) Evaluate(benchmarks models.BenchmarkMap, hashTypeID, campaignPriority int) Eligibility {
	if !benchmarks.CanHandle(hashTypeID) {
		return Eligibility{Reason: SkipNoBenchmark}
	}
	speed := benchmarks.SpeedFor(hashTypeID)

	if s.tuning.MinSpeedHighPriority > 0 &&
		campaignPriority >= s.tuning.HighPriorityThreshold &&
		speed < s.tuning.MinSpeedHighPriority {
		return Eligibility{Reason: SkipBelowHighPrioFloor}
	}

	return Eligibility{Eligible: true, Speed: speed}
}

// RecordBenchmark upserts one measured speed for an agent
func (s *CapabilityService) RecordBenchmark(ctx context.Context, agentID uuid.UUID, hashTypeID int, speed int64) (*models.AgentBenchmark, error) {
	bench := &models.AgentBenchmark{
		AgentID:    agentID,
		HashTypeID: hashTypeID,
		Speed:      speed,
		MeasuredAt: time.Now(),
	}
	if err := s.benchmarkRepo.Upsert(ctx, bench); err != nil {
		return nil, err
	}
	return bench, nil
}
