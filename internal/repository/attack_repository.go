package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/db"
	"github.com/ZerkerEOD/hashfleet/internal/models"
)

const attackColumns = `
	id, campaign_id, name, attack_mode, hash_type_id, status, position,
	wordlist_id, rulelist_id, masklist_id, mask, increment_mode,
	increment_minimum, increment_maximum, custom_charset_1, custom_charset_2,
	custom_charset_3, custom_charset_4, total_keyspace, complexity_score,
	comment, created_at, updated_at`

// AttackRepository handles database operations for attacks
type AttackRepository struct {
	db *db.DB
}

// NewAttackRepository creates a new attack repository
func NewAttackRepository(db *db.DB) *AttackRepository {
	return &AttackRepository{db: db}
}

// Create inserts a new attack
func (r *AttackRepository) Create(ctx context.Context, attack *models.Attack) error {
	query := `
		INSERT INTO attacks (
			id, campaign_id, name, attack_mode, hash_type_id, status, position,
			wordlist_id, rulelist_id, masklist_id, mask, increment_mode,
			increment_minimum, increment_maximum, custom_charset_1,
			custom_charset_2, custom_charset_3, custom_charset_4,
			total_keyspace, complexity_score, comment
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING id, created_at, updated_at
	`

	if attack.ID == uuid.Nil {
		attack.ID = uuid.New()
	}
	if attack.Status == "" {
		attack.Status = models.AttackStatusPending
	}

	err := r.db.QueryRowContext(ctx, query,
		attack.ID,
		attack.CampaignID,
		attack.Name,
		attack.Mode,
		attack.HashTypeID,
		attack.Status,
		attack.Position,
		attack.WordlistID,
		attack.RulelistID,
		attack.MasklistID,
		attack.Mask,
		attack.IncrementMode,
		attack.IncrementMin,
		attack.IncrementMax,
		attack.CustomCharset1,
		attack.CustomCharset2,
		attack.CustomCharset3,
		attack.CustomCharset4,
		attack.TotalKeyspace,
		attack.ComplexityScore,
		attack.Comment,
	).Scan(&attack.ID, &attack.CreatedAt, &attack.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create attack: %w", err)
	}

	return nil
}

// GetByID retrieves an attack by its ID
func (r *AttackRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Attack, error) {
	query := `SELECT` + attackColumns + ` FROM attacks WHERE id = $1`

	attack, err := scanAttackRow(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("attack %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attack: %w", err)
	}

	return attack, nil
}

// ListByCampaign returns a campaign's attacks in position order
func (r *AttackRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]models.Attack, error) {
	query := `SELECT` + attackColumns + ` FROM attacks WHERE campaign_id = $1 ORDER BY position ASC, created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attacks: %w", err)
	}
	defer rows.Close()

	return collectAttacks(rows)
}

// ListDispatchableByCampaign returns a campaign's attacks still open for
// assignment, in position order. Paused attacks are excluded; their
// in-flight tasks finish but get no new claims.
func (r *AttackRepository) ListDispatchableByCampaign(ctx context.Context, campaignID uuid.UUID) ([]models.Attack, error) {
	query := `SELECT` + attackColumns + ` FROM attacks
		WHERE campaign_id = $1 AND status IN ('pending', 'running')
		ORDER BY position ASC, created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatchable attacks: %w", err)
	}
	defer rows.Close()

	return collectAttacks(rows)
}

// Update rewrites the configurable fields of an attack. The status guard
// keeps edits away from attacks that already have sliced work; changing the
// keyspace under live tasks would corrupt the rollup weights.
func (r *AttackRepository) Update(ctx context.Context, attack *models.Attack) error {
	query := `
		UPDATE attacks SET
			name = $2,
			attack_mode = $3,
			hash_type_id = $4,
			position = $5,
			wordlist_id = $6,
			rulelist_id = $7,
			masklist_id = $8,
			mask = $9,
			increment_mode = $10,
			increment_minimum = $11,
			increment_maximum = $12,
			custom_charset_1 = $13,
			custom_charset_2 = $14,
			custom_charset_3 = $15,
			custom_charset_4 = $16,
			total_keyspace = $17,
			complexity_score = $18,
			comment = $19,
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`

	result, err := r.db.ExecContext(ctx, query,
		attack.ID,
		attack.Name,
		attack.Mode,
		attack.HashTypeID,
		attack.Position,
		attack.WordlistID,
		attack.RulelistID,
		attack.MasklistID,
		attack.Mask,
		attack.IncrementMode,
		attack.IncrementMin,
		attack.IncrementMax,
		attack.CustomCharset1,
		attack.CustomCharset2,
		attack.CustomCharset3,
		attack.CustomCharset4,
		attack.TotalKeyspace,
		attack.ComplexityScore,
		attack.Comment,
	)
	if err != nil {
		return fmt.Errorf("failed to update attack: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("attack %s not pending: %w", attack.ID, ErrTransitionConflict)
	}

	return nil
}

// UpdatePositionTx moves an attack inside its campaign's ordering
func (r *AttackRepository) UpdatePositionTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, position int) error {
	query := `UPDATE attacks SET position = $2, updated_at = NOW() WHERE id = $1`

	result, err := tx.ExecContext(ctx, query, id, position)
	if err != nil {
		return fmt.Errorf("failed to update attack position: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("attack %s: %w", id, ErrNotFound)
	}

	return nil
}

// SetTotalKeyspace records the computed keyspace for an attack
func (r *AttackRepository) SetTotalKeyspace(ctx context.Context, id uuid.UUID, totalKeyspace int64) error {
	query := `UPDATE attacks SET total_keyspace = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, totalKeyspace)
	if err != nil {
		return fmt.Errorf("failed to set total keyspace: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("attack %s: %w", id, ErrNotFound)
	}

	return nil
}

// TransitionStatus performs a compare-and-set status change on an attack
func (r *AttackRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.AttackStatus) error {
	query := `
		UPDATE attacks SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	result, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("failed to transition attack status: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrTransitionConflict
	}

	return nil
}

// TransitionStatusTx is TransitionStatus inside an existing transaction
func (r *AttackRepository) TransitionStatusTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, from, to models.AttackStatus) error {
	query := `
		UPDATE attacks SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	result, err := tx.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("failed to transition attack status: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrTransitionConflict
	}

	return nil
}

// AbandonTx marks an attack abandoned inside a transaction, from any
// non-terminal state
func (r *AttackRepository) AbandonTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	query := `
		UPDATE attacks SET status = 'abandoned', updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'exhausted', 'abandoned')
	`

	result, err := tx.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to abandon attack: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrTransitionConflict
	}

	return nil
}

// CountUnfinishedByCampaign counts a campaign's attacks that have not
// reached a terminal state
func (r *AttackRepository) CountUnfinishedByCampaign(ctx context.Context, campaignID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM attacks
		WHERE campaign_id = $1
		  AND status NOT IN ('completed', 'exhausted', 'failed', 'abandoned')
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, campaignID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unfinished attacks: %w", err)
	}

	return count, nil
}

// Delete removes an attack and, via cascade, its tasks
func (r *AttackRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM attacks WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete attack: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("attack %s: %w", id, ErrNotFound)
	}

	return nil
}

// scanAttackRow scans a single attack row
func scanAttackRow(row *sql.Row) (*models.Attack, error) {
	attack := &models.Attack{}
	var wordlistID, rulelistID, masklistID uuid.NullUUID
	var totalKeyspace sql.NullInt64

	err := row.Scan(
		&attack.ID,
		&attack.CampaignID,
		&attack.Name,
		&attack.Mode,
		&attack.HashTypeID,
		&attack.Status,
		&attack.Position,
		&wordlistID,
		&rulelistID,
		&masklistID,
		&attack.Mask,
		&attack.IncrementMode,
		&attack.IncrementMin,
		&attack.IncrementMax,
		&attack.CustomCharset1,
		&attack.CustomCharset2,
		&attack.CustomCharset3,
		&attack.CustomCharset4,
		&totalKeyspace,
		&attack.ComplexityScore,
		&attack.Comment,
		&attack.CreatedAt,
		&attack.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	applyAttackNullables(attack, wordlistID, rulelistID, masklistID, totalKeyspace)
	return attack, nil
}

// collectAttacks scans all rows of an attack query
func collectAttacks(rows *sql.Rows) ([]models.Attack, error) {
	var attacks []models.Attack
	for rows.Next() {
		var attack models.Attack
		var wordlistID, rulelistID, masklistID uuid.NullUUID
		var totalKeyspace sql.NullInt64

		err := rows.Scan(
			&attack.ID,
			&attack.CampaignID,
			&attack.Name,
			&attack.Mode,
			&attack.HashTypeID,
			&attack.Status,
			&attack.Position,
			&wordlistID,
			&rulelistID,
			&masklistID,
			&attack.Mask,
			&attack.IncrementMode,
			&attack.IncrementMin,
			&attack.IncrementMax,
			&attack.CustomCharset1,
			&attack.CustomCharset2,
			&attack.CustomCharset3,
			&attack.CustomCharset4,
			&totalKeyspace,
			&attack.ComplexityScore,
			&attack.Comment,
			&attack.CreatedAt,
			&attack.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attack: %w", err)
		}

		applyAttackNullables(&attack, wordlistID, rulelistID, masklistID, totalKeyspace)
		attacks = append(attacks, attack)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attacks: %w", err)
	}

	return attacks, nil
}

// applyAttackNullables copies nullable scan targets onto the model
func applyAttackNullables(attack *models.Attack, wordlistID, rulelistID, masklistID uuid.NullUUID, totalKeyspace sql.NullInt64) {
	if wordlistID.Valid {
		attack.WordlistID = &wordlistID.UUID
	}
	if rulelistID.Valid {
		attack.RulelistID = &rulelistID.UUID
	}
	if masklistID.Valid {
		attack.MasklistID = &masklistID.UUID
	}
	if totalKeyspace.Valid {
		attack.TotalKeyspace = &totalKeyspace.Int64
	}
}
