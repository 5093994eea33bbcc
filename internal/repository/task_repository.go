package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/db"
	"github.com/ZerkerEOD/hashfleet/internal/models"
)

// taskColumns is the canonical select list scanned by scanTask
const taskColumns = `
	id, attack_id, agent_id, status, keyspace_skip, keyspace_limit,
	progress_keyspace, claimed_at, expires_at, last_heartbeat_at,
	retry_count, stale, error_message, created_at, updated_at`

// TaskRepository handles database operations for tasks. All claim, release
// and transition updates are conditional single statements so that agent
// exclusivity never depends on application-level locking.
type TaskRepository struct {
	db *db.DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *db.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts a new task for an attack
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (
			id, attack_id, status, keyspace_skip, keyspace_limit,
			progress_keyspace, retry_count, stale
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}

	err := r.db.QueryRowContext(ctx, query,
		task.ID,
		task.AttackID,
		task.Status,
		task.Skip,
		task.Limit,
		task.ProgressKeyspace,
		task.RetryCount,
		task.Stale,
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

// CreateSlice inserts a freshly sliced pending task. The unique index on
// (attack_id, keyspace_skip) turns a planner race into ErrSliceConflict
// instead of overlapping ranges; the caller re-reads the cursor and retries.
func (r *TaskRepository) CreateSlice(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (id, attack_id, status, keyspace_skip, keyspace_limit)
		VALUES ($1, $2, 'pending', $3, $4)
		ON CONFLICT (attack_id, keyspace_skip) DO NOTHING
		RETURNING id, status, created_at, updated_at
	`

	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}

	err := r.db.QueryRowContext(ctx, query,
		task.ID,
		task.AttackID,
		task.Skip,
		task.Limit,
	).Scan(&task.ID, &task.Status, &task.CreatedAt, &task.UpdatedAt)

	if err == sql.ErrNoRows {
		return ErrSliceConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create task slice: %w", err)
	}

	return nil
}

// GetByID retrieves a task by its ID
func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	query := `SELECT` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := r.scanTaskRow(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return task, nil
}

// ListByAttack returns all tasks of an attack in keyspace order
func (r *TaskRepository) ListByAttack(ctx context.Context, attackID uuid.UUID) ([]models.Task, error) {
	query := `SELECT` + taskColumns + ` FROM tasks WHERE attack_id = $1 ORDER BY keyspace_skip ASC`

	rows, err := r.db.QueryContext(ctx, query, attackID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	return r.collectTasks(rows)
}

// GetRunningTaskForAgent returns the task an agent currently holds, or nil
func (r *TaskRepository) GetRunningTaskForAgent(ctx context.Context, agentID uuid.UUID) (*models.Task, error) {
	query := `SELECT` + taskColumns + ` FROM tasks WHERE agent_id = $1 AND status = 'running' LIMIT 1`

	task, err := r.scanTaskRow(r.db.QueryRowContext(ctx, query, agentID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get running task for agent: %w", err)
	}

	return task, nil
}

// FirstPendingForAttack returns the lowest-offset pending task of an attack,
// or nil when none exists.
func (r *TaskRepository) FirstPendingForAttack(ctx context.Context, attackID uuid.UUID) (*models.Task, error) {
	query := `SELECT` + taskColumns + ` FROM tasks
		WHERE attack_id = $1 AND status = 'pending'
		ORDER BY keyspace_skip ASC
		LIMIT 1`

	task, err := r.scanTaskRow(r.db.QueryRowContext(ctx, query, attackID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending task: %w", err)
	}

	return task, nil
}

// MaxKeyspaceEnd returns the highest allocated keyspace offset across an
// attack's tasks. New slices start here.
func (r *TaskRepository) MaxKeyspaceEnd(ctx context.Context, attackID uuid.UUID) (int64, error) {
	query := `
		SELECT COALESCE(MAX(keyspace_skip + keyspace_limit), 0)
		FROM tasks
		WHERE attack_id = $1
	`

	var end int64
	if err := r.db.QueryRowContext(ctx, query, attackID).Scan(&end); err != nil {
		return 0, fmt.Errorf("failed to get max keyspace end: %w", err)
	}

	return end, nil
}

// Claim atomically assigns a pending task to an agent and transitions it to
// running. The statement only matches while the task is still pending and
// the agent holds no other running task, so two concurrent claims can never
// both win and one agent can never hold two claims. Returns ErrClaimConflict
// when the update matched nothing.
func (r *TaskRepository) Claim(ctx context.Context, taskID, agentID uuid.UUID, expiresAt time.Time) (*models.Task, error) {
	query := `
		UPDATE tasks SET
			agent_id = $2,
			status = 'running',
			claimed_at = NOW(),
			expires_at = $3,
			last_heartbeat_at = NOW(),
			updated_at = NOW()
		WHERE id = $1
		  AND status = 'pending'
		  AND NOT EXISTS (
			SELECT 1 FROM tasks held
			WHERE held.agent_id = $2 AND held.status = 'running' AND held.id <> $1
		  )
		RETURNING` + taskColumns

	task, err := r.scanTaskRow(r.db.QueryRowContext(ctx, query, taskID, agentID, expiresAt))
	if err == sql.ErrNoRows {
		return nil, ErrClaimConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}

	return task, nil
}

// ReleaseClaim returns a running task to pending with claim fields cleared
// and the stale flag raised, so the next claimant refreshes cached state.
// Ownership history (agent_id) is preserved until the next claim overwrites
// it.
func (r *TaskRepository) ReleaseClaim(ctx context.Context, taskID uuid.UUID) error {
	query := `
		UPDATE tasks SET
			status = 'pending',
			claimed_at = NULL,
			expires_at = NULL,
			last_heartbeat_at = NULL,
			stale = TRUE,
			updated_at = NOW()
		WHERE id = $1 AND status = 'running'
	`

	result, err := r.db.ExecContext(ctx, query, taskID)
	if err != nil {
		return fmt.Errorf("failed to release claim: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("task %s not running: %w", taskID, ErrTransitionConflict)
	}

	return nil
}

// SweepExpiredClaims releases every running task whose lease has expired and
// whose owning agent is already marked non-live. Both conditions are checked
// inside the statement, so a live agent renewing its lease concurrently can
// never lose its claim to the sweep.
func (r *TaskRepository) SweepExpiredClaims(ctx context.Context, now time.Time) ([]models.Task, error) {
	query := `
		UPDATE tasks SET
			status = 'pending',
			claimed_at = NULL,
			expires_at = NULL,
			last_heartbeat_at = NULL,
			stale = TRUE,
			updated_at = NOW()
		FROM agents
		WHERE tasks.agent_id = agents.id
		  AND tasks.status = 'running'
		  AND tasks.expires_at < $1
		  AND agents.status IN ('disconnected', 'retired', 'error')
		RETURNING tasks.id, tasks.attack_id, tasks.agent_id, tasks.status,
			tasks.keyspace_skip, tasks.keyspace_limit, tasks.progress_keyspace,
			tasks.claimed_at, tasks.expires_at, tasks.last_heartbeat_at,
			tasks.retry_count, tasks.stale, tasks.error_message,
			tasks.created_at, tasks.updated_at
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to sweep expired claims: %w", err)
	}
	defer rows.Close()

	return r.collectTasks(rows)
}

// ReleaseClaimsForAgent immediately releases all running tasks of one agent,
// regardless of lease expiry. Used when a fatal fault marks the agent
// errored.
func (r *TaskRepository) ReleaseClaimsForAgent(ctx context.Context, agentID uuid.UUID) ([]models.Task, error) {
	query := `
		UPDATE tasks SET
			status = 'pending',
			claimed_at = NULL,
			expires_at = NULL,
			last_heartbeat_at = NULL,
			stale = TRUE,
			updated_at = NOW()
		WHERE agent_id = $1 AND status = 'running'
		RETURNING` + taskColumns

	rows, err := r.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to release claims for agent: %w", err)
	}
	defer rows.Close()

	return r.collectTasks(rows)
}

// RenewLease extends the lease on the agent's running task and records the
// heartbeat. Returns the renewed task IDs (at most one under the exclusivity
// invariant).
func (r *TaskRepository) RenewLease(ctx context.Context, agentID uuid.UUID, expiresAt time.Time) ([]uuid.UUID, error) {
	query := `
		UPDATE tasks SET
			expires_at = $2,
			last_heartbeat_at = NOW(),
			updated_at = NOW()
		WHERE agent_id = $1 AND status = 'running'
		RETURNING id
	`

	rows, err := r.db.QueryContext(ctx, query, agentID, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to renew lease: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan renewed task id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating renewed tasks: %w", err)
	}

	return ids, nil
}

// UpdateProgress applies a monotonic progress update: values lower than the
// persisted progress match no rows and are reported as ErrTransitionConflict
// for the caller to log and drop.
func (r *TaskRepository) UpdateProgress(ctx context.Context, taskID uuid.UUID, progressKeyspace int64) error {
	query := `
		UPDATE tasks SET
			progress_keyspace = $2,
			last_heartbeat_at = NOW(),
			updated_at = NOW()
		WHERE id = $1
		  AND status = 'running'
		  AND progress_keyspace <= $2
	`

	result, err := r.db.ExecContext(ctx, query, taskID, progressKeyspace)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrTransitionConflict
	}

	return nil
}

// TransitionStatus performs a compare-and-set status change. The update only
// matches while the persisted status still equals from; otherwise
// ErrTransitionConflict is returned and nothing changes.
func (r *TaskRepository) TransitionStatus(ctx context.Context, taskID uuid.UUID, from, to models.TaskStatus) error {
	query := `
		UPDATE tasks SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	result, err := r.db.ExecContext(ctx, query, taskID, from, to)
	if err != nil {
		return fmt.Errorf("failed to transition task status: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrTransitionConflict
	}

	return nil
}

// CompleteWithProgress finishes a task and pins progress to its full range
// in the same statement.
func (r *TaskRepository) CompleteWithProgress(ctx context.Context, taskID uuid.UUID, to models.TaskStatus) error {
	query := `
		UPDATE tasks SET
			status = $2,
			progress_keyspace = keyspace_limit,
			updated_at = NOW()
		WHERE id = $1 AND status = 'running'
	`

	result, err := r.db.ExecContext(ctx, query, taskID, to)
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrTransitionConflict
	}

	return nil
}

// FinishForAttack completes every unfinished task of an attack, returning
// the number of tasks moved. Recorded progress is left untouched; rollups
// count completed tasks at full keyspace regardless. Used when further
// search is unnecessary because the target hashlist is fully cracked.
func (r *TaskRepository) FinishForAttack(ctx context.Context, attackID uuid.UUID) (int64, error) {
	query := `
		UPDATE tasks SET
			status = 'completed',
			updated_at = NOW()
		WHERE attack_id = $1 AND status IN ('pending', 'running', 'paused')
	`

	result, err := r.db.ExecContext(ctx, query, attackID)
	if err != nil {
		return 0, fmt.Errorf("failed to finish tasks for attack: %w", err)
	}

	return result.RowsAffected()
}

// MarkFailed records a failure message and moves a running task to failed
func (r *TaskRepository) MarkFailed(ctx context.Context, taskID uuid.UUID, message string) error {
	query := `
		UPDATE tasks SET
			status = 'failed',
			error_message = $2,
			updated_at = NOW()
		WHERE id = $1 AND status = 'running'
	`

	result, err := r.db.ExecContext(ctx, query, taskID, message)
	if err != nil {
		return fmt.Errorf("failed to mark task failed: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrTransitionConflict
	}

	return nil
}

// RetryFailed returns a failed task to pending, increments its retry count
// and clears the previous error. Retries past maxRetries match no rows.
func (r *TaskRepository) RetryFailed(ctx context.Context, taskID uuid.UUID, maxRetries int) error {
	query := `
		UPDATE tasks SET
			status = 'pending',
			retry_count = retry_count + 1,
			error_message = NULL,
			claimed_at = NULL,
			expires_at = NULL,
			last_heartbeat_at = NULL,
			stale = TRUE,
			updated_at = NOW()
		WHERE id = $1 AND status = 'failed' AND retry_count < $2
	`

	result, err := r.db.ExecContext(ctx, query, taskID, maxRetries)
	if err != nil {
		return fmt.Errorf("failed to retry task: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrTransitionConflict
	}

	return nil
}

// ClearStale drops the stale flag once a claimant has refreshed its cache
func (r *TaskRepository) ClearStale(ctx context.Context, taskID uuid.UUID) error {
	query := `UPDATE tasks SET stale = FALSE, updated_at = NOW() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, taskID); err != nil {
		return fmt.Errorf("failed to clear stale flag: %w", err)
	}

	return nil
}

// AbandonTx marks one task abandoned inside a transaction. Used by the
// cascade in the attack service.
func (r *TaskRepository) AbandonTx(ctx context.Context, tx *sql.Tx, taskID uuid.UUID) error {
	query := `UPDATE tasks SET status = 'abandoned', updated_at = NOW() WHERE id = $1`

	result, err := tx.ExecContext(ctx, query, taskID)
	if err != nil {
		return fmt.Errorf("failed to abandon task: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}

	return nil
}

// AbandonForAttackTx marks all unfinished tasks of an attack abandoned
// inside a transaction. Part of the attack and campaign abandon cascades.
func (r *TaskRepository) AbandonForAttackTx(ctx context.Context, tx *sql.Tx, attackID uuid.UUID) (int64, error) {
	query := `
		UPDATE tasks SET status = 'abandoned', updated_at = NOW()
		WHERE attack_id = $1
		  AND status NOT IN ('completed', 'exhausted', 'failed', 'abandoned')
	`

	result, err := tx.ExecContext(ctx, query, attackID)
	if err != nil {
		return 0, fmt.Errorf("failed to abandon tasks for attack: %w", err)
	}

	return result.RowsAffected()
}

// DeleteSiblingsTx destroys all other tasks of an attack inside a
// transaction. Only the abandon cascade calls this; routine reassignment
// must never reach it.
func (r *TaskRepository) DeleteSiblingsTx(ctx context.Context, tx *sql.Tx, attackID, keepTaskID uuid.UUID) (int64, error) {
	query := `DELETE FROM tasks WHERE attack_id = $1 AND id <> $2`

	result, err := tx.ExecContext(ctx, query, attackID, keepTaskID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sibling tasks: %w", err)
	}

	return result.RowsAffected()
}

// CountUnfinishedSiblingsTx counts an attack's tasks that are neither
// finished nor the given task. Competing abandons can both read a nonzero
// count and skip the cascade; the derivation pass picks those up.
func (r *TaskRepository) CountUnfinishedSiblingsTx(ctx context.Context, tx *sql.Tx, attackID, excludeTaskID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM tasks
		WHERE attack_id = $1
		  AND id <> $2
		  AND status NOT IN ('completed', 'exhausted', 'failed', 'abandoned')
	`

	var count int
	if err := tx.QueryRowContext(ctx, query, attackID, excludeTaskID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unfinished siblings: %w", err)
	}

	return count, nil
}

// ProgressRows returns the per-task figures the aggregator needs for one
// attack
func (r *TaskRepository) ProgressRows(ctx context.Context, attackID uuid.UUID) ([]models.TaskProgressRow, error) {
	query := `
		SELECT id, status, keyspace_limit, progress_keyspace
		FROM tasks
		WHERE attack_id = $1
	`

	rows, err := r.db.QueryContext(ctx, query, attackID)
	if err != nil {
		return nil, fmt.Errorf("failed to query progress rows: %w", err)
	}
	defer rows.Close()

	var out []models.TaskProgressRow
	for rows.Next() {
		var row models.TaskProgressRow
		if err := rows.Scan(&row.TaskID, &row.Status, &row.Keyspace, &row.ProgressKeyspace); err != nil {
			return nil, fmt.Errorf("failed to scan progress row: %w", err)
		}
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating progress rows: %w", err)
	}

	return out, nil
}

// CountByAttackAndStatus returns a status histogram for one attack's tasks
func (r *TaskRepository) CountByAttackAndStatus(ctx context.Context, attackID uuid.UUID) (map[models.TaskStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM tasks WHERE attack_id = $1 GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query, attackID)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.TaskStatus]int)
	for rows.Next() {
		var status models.TaskStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	return counts, nil
}

// CountActiveAgentsForCampaign counts distinct agents holding running tasks
// across a campaign's attacks
func (r *TaskRepository) CountActiveAgentsForCampaign(ctx context.Context, campaignID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(DISTINCT t.agent_id)
		FROM tasks t
		JOIN attacks a ON a.id = t.attack_id
		WHERE a.campaign_id = $1
		  AND t.status = 'running'
		  AND t.agent_id IS NOT NULL
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, campaignID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active agents: %w", err)
	}

	return count, nil
}

// scanTaskRow scans a single task row
func (r *TaskRepository) scanTaskRow(row *sql.Row) (*models.Task, error) {
	task := &models.Task{}
	var agentID uuid.NullUUID
	var claimedAt, expiresAt, lastHeartbeatAt sql.NullTime
	var errorMessage sql.NullString

	err := row.Scan(
		&task.ID,
		&task.AttackID,
		&agentID,
		&task.Status,
		&task.Skip,
		&task.Limit,
		&task.ProgressKeyspace,
		&claimedAt,
		&expiresAt,
		&lastHeartbeatAt,
		&task.RetryCount,
		&task.Stale,
		&errorMessage,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	applyTaskNullables(task, agentID, claimedAt, expiresAt, lastHeartbeatAt, errorMessage)
	return task, nil
}

// collectTasks scans all rows of a task query
func (r *TaskRepository) collectTasks(rows *sql.Rows) ([]models.Task, error) {
	var tasks []models.Task
	for rows.Next() {
		task := models.Task{}
		var agentID uuid.NullUUID
		var claimedAt, expiresAt, lastHeartbeatAt sql.NullTime
		var errorMessage sql.NullString

		err := rows.Scan(
			&task.ID,
			&task.AttackID,
			&agentID,
			&task.Status,
			&task.Skip,
			&task.Limit,
			&task.ProgressKeyspace,
			&claimedAt,
			&expiresAt,
			&lastHeartbeatAt,
			&task.RetryCount,
			&task.Stale,
			&errorMessage,
			&task.CreatedAt,
			&task.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		applyTaskNullables(&task, agentID, claimedAt, expiresAt, lastHeartbeatAt, errorMessage)
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// applyTaskNullables copies nullable scan targets onto the model
func applyTaskNullables(task *models.Task, agentID uuid.NullUUID, claimedAt, expiresAt, lastHeartbeatAt sql.NullTime, errorMessage sql.NullString) {
	if agentID.Valid {
		task.AgentID = &agentID.UUID
	}
	if claimedAt.Valid {
		task.ClaimedAt = &claimedAt.Time
	}
	if expiresAt.Valid {
		task.ExpiresAt = &expiresAt.Time
	}
	if lastHeartbeatAt.Valid {
		task.LastHeartbeatAt = &lastHeartbeatAt.Time
	}
	if errorMessage.Valid {
		task.ErrorMessage = &errorMessage.String
	}
}
