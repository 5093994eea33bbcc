package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/db"
	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

const agentColumns = `
	id, name, host, signature, api_key_hash, status, version, devices,
	last_seen_at, last_error, is_enabled, created_at, updated_at`

// AgentRepository handles database operations for agents
type AgentRepository struct {
	db *db.DB
}

// NewAgentRepository creates a new agent repository
func NewAgentRepository(db *db.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

// Create registers a new agent in pending state
func (r *AgentRepository) Create(ctx context.Context, agent *models.Agent) error {
	query := `
		INSERT INTO agents (id, name, host, signature, api_key_hash, status, version, devices, is_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	if agent.ID == uuid.Nil {
		agent.ID = uuid.New()
	}
	if agent.Status == "" {
		agent.Status = models.AgentStatusPending
	}

	err := r.db.QueryRowContext(ctx, query,
		agent.ID,
		agent.Name,
		agent.Host,
		agent.Signature,
		agent.APIKeyHash,
		agent.Status,
		agent.Version,
		agent.Devices,
		agent.IsEnabled,
	).Scan(&agent.ID, &agent.CreatedAt, &agent.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	return nil
}

// GetByID retrieves an agent by its ID, including its project scope
func (r *AgentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	query := `SELECT` + agentColumns + ` FROM agents WHERE id = $1`

	agent, err := scanAgentRow(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}

	projectIDs, err := r.GetProjectIDs(ctx, agent.ID)
	if err != nil {
		return nil, err
	}
	agent.ProjectIDs = projectIDs

	return agent, nil
}

// GetBySignature retrieves an agent by its registration signature
func (r *AgentRepository) GetBySignature(ctx context.Context, signature string) (*models.Agent, error) {
	query := `SELECT` + agentColumns + ` FROM agents WHERE signature = $1`

	agent, err := scanAgentRow(r.db.QueryRowContext(ctx, query, signature))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("agent signature: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent by signature: %w", err)
	}

	projectIDs, err := r.GetProjectIDs(ctx, agent.ID)
	if err != nil {
		return nil, err
	}
	agent.ProjectIDs = projectIDs

	return agent, nil
}

// List returns all agents, newest first. Project scopes are loaded in one
// additional query.
func (r *AgentRepository) List(ctx context.Context) ([]models.Agent, error) {
	query := `SELECT` + agentColumns + ` FROM agents ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	agents, err := collectAgents(rows)
	if err != nil {
		return nil, err
	}

	if err := r.loadProjectScopes(ctx, agents); err != nil {
		return nil, err
	}

	return agents, nil
}

// ListByStatus returns agents in a given state
func (r *AgentRepository) ListByStatus(ctx context.Context, status models.AgentStatus) ([]models.Agent, error) {
	query := `SELECT` + agentColumns + ` FROM agents WHERE status = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents by status: %w", err)
	}
	defer rows.Close()

	agents, err := collectAgents(rows)
	if err != nil {
		return nil, err
	}

	if err := r.loadProjectScopes(ctx, agents); err != nil {
		return nil, err
	}

	return agents, nil
}

// TransitionStatus performs a compare-and-set status change on an agent
func (r *AgentRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.AgentStatus) error {
	query := `
		UPDATE agents SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	result, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("failed to transition agent status: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrTransitionConflict
	}

	return nil
}

// Touch records a heartbeat without changing status
func (r *AgentRepository) Touch(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE agents SET last_seen_at = NOW(), updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to touch agent: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}

	return nil
}

// MarkSilentAgentsDisconnected flips live agents whose last heartbeat is
// older than the cutoff to disconnected. The self-join reads each row's
// pre-update status so callers can record the exact transition. Runs as
// part of the periodic lease sweep.
func (r *AgentRepository) MarkSilentAgentsDisconnected(ctx context.Context, cutoff time.Time) (map[uuid.UUID]models.AgentStatus, error) {
	query := `
		UPDATE agents SET status = 'disconnected', updated_at = NOW()
		FROM agents prev
		WHERE agents.id = prev.id
		  AND agents.status IN ('active', 'reconnecting')
		  AND (agents.last_seen_at IS NULL OR agents.last_seen_at < $1)
		RETURNING agents.id, prev.status
	`

	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to mark silent agents: %w", err)
	}
	defer rows.Close()

	silenced := make(map[uuid.UUID]models.AgentStatus)
	for rows.Next() {
		var id uuid.UUID
		var prior models.AgentStatus
		if err := rows.Scan(&id, &prior); err != nil {
			return nil, fmt.Errorf("failed to scan silent agent: %w", err)
		}
		silenced[id] = prior
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating silent agents: %w", err)
	}

	return silenced, nil
}

// SetLastError records an agent's most recent fault message
func (r *AgentRepository) SetLastError(ctx context.Context, id uuid.UUID, message string) error {
	query := `UPDATE agents SET last_error = $2, updated_at = NOW() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, message); err != nil {
		return fmt.Errorf("failed to set agent error: %w", err)
	}

	return nil
}

// SetEnabled toggles whether the agent may receive work at all
func (r *AgentRepository) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	query := `UPDATE agents SET is_enabled = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, enabled)
	if err != nil {
		return fmt.Errorf("failed to set agent enabled: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}

	return nil
}

// UpdateRegistration refreshes the mutable registration fields when a known
// agent re-registers, rotating its credential and restarting its lifecycle
// at pending so stale hardware assumptions get re-benchmarked.
func (r *AgentRepository) UpdateRegistration(ctx context.Context, agent *models.Agent) error {
	query := `
		UPDATE agents SET
			name = $2,
			host = $3,
			api_key_hash = $4,
			version = $5,
			devices = $6,
			status = 'pending',
			last_error = NULL,
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		agent.ID,
		agent.Name,
		agent.Host,
		agent.APIKeyHash,
		agent.Version,
		agent.Devices,
	)
	if err != nil {
		return fmt.Errorf("failed to update agent registration: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("agent %s: %w", agent.ID, ErrNotFound)
	}

	return nil
}

// GetProjectIDs returns the agent's project scope. Empty means unscoped.
func (r *AgentRepository) GetProjectIDs(ctx context.Context, agentID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT project_id FROM agent_projects WHERE agent_id = $1 ORDER BY project_id`

	rows, err := r.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent projects: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan project id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agent projects: %w", err)
	}

	return ids, nil
}

// ReplaceProjects swaps the agent's project scope for the given set
func (r *AgentRepository) ReplaceProjects(ctx context.Context, agentID uuid.UUID, projectIDs []uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM agent_projects WHERE agent_id = $1`, agentID); err != nil {
		return fmt.Errorf("failed to clear agent projects: %w", err)
	}

	for _, projectID := range projectIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO agent_projects (agent_id, project_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			agentID, projectID)
		if err != nil {
			return fmt.Errorf("failed to add agent project %s: %w", projectID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit agent projects: %w", err)
	}

	return nil
}

// Delete removes an agent. Its historical task ownership survives with
// agent_id nulled by the schema.
func (r *AgentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM agents WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}

	return nil
}

// loadProjectScopes fills ProjectIDs for a batch of agents in one query
func (r *AgentRepository) loadProjectScopes(ctx context.Context, agents []models.Agent) error {
	if len(agents) == 0 {
		return nil
	}

	index := make(map[uuid.UUID]int, len(agents))
	for i := range agents {
		index[agents[i].ID] = i
	}

	query := `SELECT agent_id, project_id FROM agent_projects ORDER BY agent_id, project_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to load agent project scopes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var agentID, projectID uuid.UUID
		if err := rows.Scan(&agentID, &projectID); err != nil {
			return fmt.Errorf("failed to scan agent project: %w", err)
		}
		if i, ok := index[agentID]; ok {
			agents[i].ProjectIDs = append(agents[i].ProjectIDs, projectID)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating agent project scopes: %w", err)
	}

	return nil
}

// scanAgentRow scans a single agent row
func scanAgentRow(row *sql.Row) (*models.Agent, error) {
	agent := &models.Agent{}
	err := row.Scan(
		&agent.ID,
		&agent.Name,
		&agent.Host,
		&agent.Signature,
		&agent.APIKeyHash,
		&agent.Status,
		&agent.Version,
		&agent.Devices,
		&agent.LastSeenAt,
		&agent.LastError,
		&agent.IsEnabled,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// collectAgents scans all rows of an agent query
func collectAgents(rows *sql.Rows) ([]models.Agent, error) {
	var agents []models.Agent
	for rows.Next() {
		var agent models.Agent
		err := rows.Scan(
			&agent.ID,
			&agent.Name,
			&agent.Host,
			&agent.Signature,
			&agent.APIKeyHash,
			&agent.Status,
			&agent.Version,
			&agent.Devices,
			&agent.LastSeenAt,
			&agent.LastError,
			&agent.IsEnabled,
			&agent.CreatedAt,
			&agent.UpdatedAt,
		)
		if err != nil {
			debug.Error("Error scanning agent row: %v", err)
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, agent)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agents: %w", err)
	}

	return agents, nil
}
