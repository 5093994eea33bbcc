package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/db"
	"github.com/ZerkerEOD/hashfleet/internal/models"
)

const hashlistColumns = `
	id, project_id, name, hash_type_id, total_hashes, cracked_hashes,
	status, error_message, created_at, updated_at`

// HashListRepository handles database operations for hashlists
type HashListRepository struct {
	db *db.DB
}

// NewHashListRepository creates a new hashlist repository
func NewHashListRepository(db *db.DB) *HashListRepository {
	return &HashListRepository{db: db}
}

// Create inserts a new hashlist in uploading state
func (r *HashListRepository) Create(ctx context.Context, hashlist *models.HashList) error {
	query := `
		INSERT INTO hashlists (id, project_id, name, hash_type_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	if hashlist.ID == uuid.Nil {
		hashlist.ID = uuid.New()
	}
	if hashlist.Status == "" {
		hashlist.Status = models.HashListStatusUploading
	}

	err := r.db.QueryRowContext(ctx, query,
		hashlist.ID,
		hashlist.ProjectID,
		hashlist.Name,
		hashlist.HashTypeID,
		hashlist.Status,
	).Scan(&hashlist.ID, &hashlist.CreatedAt, &hashlist.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create hashlist: %w", err)
	}

	return nil
}

// GetByID retrieves a hashlist by its ID
func (r *HashListRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.HashList, error) {
	query := `SELECT` + hashlistColumns + ` FROM hashlists WHERE id = $1`

	hashlist := &models.HashList{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&hashlist.ID,
		&hashlist.ProjectID,
		&hashlist.Name,
		&hashlist.HashTypeID,
		&hashlist.TotalHashes,
		&hashlist.CrackedHashes,
		&hashlist.Status,
		&hashlist.ErrorMessage,
		&hashlist.CreatedAt,
		&hashlist.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("hashlist %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hashlist: %w", err)
	}

	return hashlist, nil
}

// ListByProject returns a project's hashlists, newest first
func (r *HashListRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.HashList, error) {
	query := `SELECT` + hashlistColumns + ` FROM hashlists WHERE project_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hashlists: %w", err)
	}
	defer rows.Close()

	var hashlists []models.HashList
	for rows.Next() {
		var h models.HashList
		err := rows.Scan(
			&h.ID,
			&h.ProjectID,
			&h.Name,
			&h.HashTypeID,
			&h.TotalHashes,
			&h.CrackedHashes,
			&h.Status,
			&h.ErrorMessage,
			&h.CreatedAt,
			&h.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hashlist: %w", err)
		}
		hashlists = append(hashlists, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hashlists: %w", err)
	}

	return hashlists, nil
}

// SetStatus updates the processing status, recording a message on failure
func (r *HashListRepository) SetStatus(ctx context.Context, id uuid.UUID, status string, errorMessage *string) error {
	query := `
		UPDATE hashlists SET status = $2, error_message = $3, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, status, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to set hashlist status: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("hashlist %s: %w", id, ErrNotFound)
	}

	return nil
}

// RefreshCounts recomputes total and cracked counters from the item rows
// and returns the refreshed hashlist
func (r *HashListRepository) RefreshCounts(ctx context.Context, id uuid.UUID) (*models.HashList, error) {
	query := `
		UPDATE hashlists SET
			total_hashes = (SELECT COUNT(*) FROM hash_items WHERE hashlist_id = $1),
			cracked_hashes = (SELECT COUNT(*) FROM hash_items WHERE hashlist_id = $1 AND cracked = TRUE),
			updated_at = NOW()
		WHERE id = $1
		RETURNING` + hashlistColumns

	hashlist := &models.HashList{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&hashlist.ID,
		&hashlist.ProjectID,
		&hashlist.Name,
		&hashlist.HashTypeID,
		&hashlist.TotalHashes,
		&hashlist.CrackedHashes,
		&hashlist.Status,
		&hashlist.ErrorMessage,
		&hashlist.CreatedAt,
		&hashlist.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("hashlist %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to refresh hashlist counts: %w", err)
	}

	return hashlist, nil
}

// IncrementCracked bumps the cracked counter after a confirmed new crack
func (r *HashListRepository) IncrementCracked(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE hashlists SET cracked_hashes = cracked_hashes + 1, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to increment cracked count: %w", err)
	}

	return nil
}

// IncrementCrackedTx bumps the cracked counter inside the crack ingest
// transaction so the counter and the item flip commit together
func (r *HashListRepository) IncrementCrackedTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	query := `
		UPDATE hashlists SET cracked_hashes = cracked_hashes + 1, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := tx.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to increment cracked count: %w", err)
	}

	return nil
}

// Delete removes a hashlist and, via cascade, its items
func (r *HashListRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM hashlists WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete hashlist: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("hashlist %s: %w", id, ErrNotFound)
	}

	return nil
}
