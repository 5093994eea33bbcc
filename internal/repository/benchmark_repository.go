package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/db"
	"github.com/ZerkerEOD/hashfleet/internal/models"
)

// BenchmarkRepository handles database operations for agent benchmarks
type BenchmarkRepository struct {
	db *db.DB
}

// NewBenchmarkRepository creates a new benchmark repository
func NewBenchmarkRepository(db *db.DB) *BenchmarkRepository {
	return &BenchmarkRepository{db: db}
}

// Upsert records one measured speed, replacing any previous entry for the
// same agent and hash type
func (r *BenchmarkRepository) Upsert(ctx context.Context, benchmark *models.AgentBenchmark) error {
	query := `
		INSERT INTO agent_benchmarks (agent_id, hash_type_id, speed, measured_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (agent_id, hash_type_id)
		DO UPDATE SET speed = EXCLUDED.speed, measured_at = EXCLUDED.measured_at
		RETURNING id, measured_at
	`

	err := r.db.QueryRowContext(ctx, query,
		benchmark.AgentID,
		benchmark.HashTypeID,
		benchmark.Speed,
	).Scan(&benchmark.ID, &benchmark.MeasuredAt)

	if err != nil {
		return fmt.Errorf("failed to upsert benchmark: %w", err)
	}

	return nil
}

// GetBenchmarkMap returns the agent's hash type -> speed map
func (r *BenchmarkRepository) GetBenchmarkMap(ctx context.Context, agentID uuid.UUID) (models.BenchmarkMap, error) {
	query := `SELECT hash_type_id, speed FROM agent_benchmarks WHERE agent_id = $1`

	rows, err := r.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get benchmark map: %w", err)
	}
	defer rows.Close()

	benchmarks := make(models.BenchmarkMap)
	for rows.Next() {
		var hashTypeID int
		var speed int64
		if err := rows.Scan(&hashTypeID, &speed); err != nil {
			return nil, fmt.Errorf("failed to scan benchmark: %w", err)
		}
		benchmarks[hashTypeID] = speed
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating benchmarks: %w", err)
	}

	return benchmarks, nil
}

// ListByAgent returns the agent's benchmark entries, newest first
func (r *BenchmarkRepository) ListByAgent(ctx context.Context, agentID uuid.UUID) ([]models.AgentBenchmark, error) {
	query := `
		SELECT id, agent_id, hash_type_id, speed, measured_at
		FROM agent_benchmarks
		WHERE agent_id = $1
		ORDER BY measured_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list benchmarks: %w", err)
	}
	defer rows.Close()

	var benchmarks []models.AgentBenchmark
	for rows.Next() {
		var b models.AgentBenchmark
		if err := rows.Scan(&b.ID, &b.AgentID, &b.HashTypeID, &b.Speed, &b.MeasuredAt); err != nil {
			return nil, fmt.Errorf("failed to scan benchmark: %w", err)
		}
		benchmarks = append(benchmarks, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating benchmarks: %w", err)
	}

	return benchmarks, nil
}

// CountFresh counts the agent's benchmark entries measured after the cutoff.
// Zero means the agent must re-benchmark before receiving work again.
func (r *BenchmarkRepository) CountFresh(ctx context.Context, agentID uuid.UUID, cutoff time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM agent_benchmarks
		WHERE agent_id = $1 AND measured_at >= $2
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, agentID, cutoff).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count fresh benchmarks: %w", err)
	}

	return count, nil
}

// DeleteByAgent clears every benchmark entry of one agent ahead of a forced
// re-benchmark
func (r *BenchmarkRepository) DeleteByAgent(ctx context.Context, agentID uuid.UUID) error {
	query := `DELETE FROM agent_benchmarks WHERE agent_id = $1`

	if _, err := r.db.ExecContext(ctx, query, agentID); err != nil {
		return fmt.Errorf("failed to delete benchmarks: %w", err)
	}

	return nil
}
