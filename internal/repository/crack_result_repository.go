package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/db"
	"github.com/ZerkerEOD/hashfleet/internal/models"
)

// CrackResultRepository handles the immutable crack attribution records
type CrackResultRepository struct {
	db *db.DB
}

// NewCrackResultRepository creates a new crack result repository
func NewCrackResultRepository(db *db.DB) *CrackResultRepository {
	return &CrackResultRepository{db: db}
}

// CreateTx appends one attribution record inside a transaction. At most one
// record exists per hash item; a concurrent duplicate inserts nothing and
// returns false.
func (r *CrackResultRepository) CreateTx(ctx context.Context, tx *sql.Tx, result *models.CrackResult) (bool, error) {
	query := `
		INSERT INTO crack_results (id, hash_item_id, attack_id, agent_id, plain_text, discovered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (hash_item_id) DO NOTHING
	`

	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}

	res, err := tx.ExecContext(ctx, query,
		result.ID,
		result.HashItemID,
		result.AttackID,
		result.AgentID,
		result.PlainText,
		result.DiscoveredAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create crack result: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read crack result rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// GetByHashItem returns the attribution record for one hash item, or nil
func (r *CrackResultRepository) GetByHashItem(ctx context.Context, hashItemID uuid.UUID) (*models.CrackResult, error) {
	query := `
		SELECT id, hash_item_id, attack_id, agent_id, plain_text, discovered_at
		FROM crack_results
		WHERE hash_item_id = $1
	`

	result := &models.CrackResult{}
	err := r.db.QueryRowContext(ctx, query, hashItemID).Scan(
		&result.ID,
		&result.HashItemID,
		&result.AttackID,
		&result.AgentID,
		&result.PlainText,
		&result.DiscoveredAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crack result: %w", err)
	}

	return result, nil
}

// ListByAttack returns an attack's attribution records, newest first
func (r *CrackResultRepository) ListByAttack(ctx context.Context, attackID uuid.UUID, limit int) ([]models.CrackResult, error) {
	query := `
		SELECT id, hash_item_id, attack_id, agent_id, plain_text, discovered_at
		FROM crack_results
		WHERE attack_id = $1
		ORDER BY discovered_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, attackID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list crack results: %w", err)
	}
	defer rows.Close()

	return collectCrackResults(rows)
}

// ListByAgent returns an agent's attribution records, newest first
func (r *CrackResultRepository) ListByAgent(ctx context.Context, agentID uuid.UUID, limit int) ([]models.CrackResult, error) {
	query := `
		SELECT id, hash_item_id, attack_id, agent_id, plain_text, discovered_at
		FROM crack_results
		WHERE agent_id = $1
		ORDER BY discovered_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list crack results by agent: %w", err)
	}
	defer rows.Close()

	return collectCrackResults(rows)
}

// CountByAttack returns how many cracks an attack has produced
func (r *CrackResultRepository) CountByAttack(ctx context.Context, attackID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM crack_results WHERE attack_id = $1`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, attackID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count crack results: %w", err)
	}

	return count, nil
}

// collectCrackResults scans all rows of a crack result query
func collectCrackResults(rows *sql.Rows) ([]models.CrackResult, error) {
	var results []models.CrackResult
	for rows.Next() {
		var cr models.CrackResult
		err := rows.Scan(
			&cr.ID,
			&cr.HashItemID,
			&cr.AttackID,
			&cr.AgentID,
			&cr.PlainText,
			&cr.DiscoveredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan crack result: %w", err)
		}
		results = append(results, cr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating crack results: %w", err)
	}

	return results, nil
}
