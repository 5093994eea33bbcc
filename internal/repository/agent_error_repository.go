package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/db"
	"github.com/ZerkerEOD/hashfleet/internal/models"
)

// AgentErrorRepository handles the append-only agent fault log
type AgentErrorRepository struct {
	db *db.DB
}

// NewAgentErrorRepository creates a new agent error repository
func NewAgentErrorRepository(db *db.DB) *AgentErrorRepository {
	return &AgentErrorRepository{db: db}
}

// Create appends one fault record
func (r *AgentErrorRepository) Create(ctx context.Context, agentError *models.AgentError) error {
	query := `
		INSERT INTO agent_errors (agent_id, task_id, attack_id, severity, message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		agentError.AgentID,
		agentError.TaskID,
		agentError.AttackID,
		agentError.Severity,
		agentError.Message,
		agentError.Metadata,
	).Scan(&agentError.ID, &agentError.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create agent error: %w", err)
	}

	return nil
}

// ListByAgent returns an agent's fault records, newest first
func (r *AgentErrorRepository) ListByAgent(ctx context.Context, agentID uuid.UUID, limit int) ([]models.AgentError, error) {
	query := `
		SELECT id, agent_id, task_id, attack_id, severity, message, metadata, created_at
		FROM agent_errors
		WHERE agent_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent errors: %w", err)
	}
	defer rows.Close()

	var errs []models.AgentError
	for rows.Next() {
		var e models.AgentError
		var taskID, attackID uuid.NullUUID
		if err := rows.Scan(&e.ID, &e.AgentID, &taskID, &attackID, &e.Severity, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan agent error: %w", err)
		}
		if taskID.Valid {
			e.TaskID = &taskID.UUID
		}
		if attackID.Valid {
			e.AttackID = &attackID.UUID
		}
		errs = append(errs, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agent errors: %w", err)
	}

	return errs, nil
}

// DeleteOlderThan prunes fault records past the retention window, returning
// the number removed
func (r *AgentErrorRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM agent_errors WHERE created_at < $1`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune agent errors: %w", err)
	}

	return result.RowsAffected()
}
