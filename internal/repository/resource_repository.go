package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ZerkerEOD/hashfleet/internal/db"
	"github.com/ZerkerEOD/hashfleet/internal/models"
)

const resourceColumns = `
	id, project_id, name, resource_type, file_path, file_hash, file_size,
	line_count, content_type, created_at, updated_at`

// ResourceRepository handles the attack resource catalog
type ResourceRepository struct {
	db *db.DB
}

// NewResourceRepository creates a new resource repository
func NewResourceRepository(db *db.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

// Create inserts a new catalog entry
func (r *ResourceRepository) Create(ctx context.Context, resource *models.Resource) error {
	query := `
		INSERT INTO resources (id, project_id, name, resource_type, file_path, file_hash, file_size, line_count, content_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	if resource.ID == uuid.Nil {
		resource.ID = uuid.New()
	}

	err := r.db.QueryRowContext(ctx, query,
		resource.ID,
		resource.ProjectID,
		resource.Name,
		resource.Type,
		resource.FilePath,
		resource.FileHash,
		resource.FileSize,
		resource.LineCount,
		resource.ContentType,
	).Scan(&resource.ID, &resource.CreatedAt, &resource.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	return nil
}

// GetByID retrieves a catalog entry by its ID
func (r *ResourceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Resource, error) {
	query := `SELECT` + resourceColumns + ` FROM resources WHERE id = $1`

	resource, err := scanResourceRow(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("resource %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}

	return resource, nil
}

// GetByIDs retrieves several catalog entries in one query
func (r *ResourceRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Resource, error) {
	out := make(map[uuid.UUID]*models.Resource, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := `SELECT` + resourceColumns + ` FROM resources WHERE id = ANY($1)`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get resources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		resource, err := scanResourceRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		out[resource.ID] = resource
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resources: %w", err)
	}

	return out, nil
}

// ListByType returns catalog entries of one type visible to a project:
// shared entries plus the project's own
func (r *ResourceRepository) ListByType(ctx context.Context, resourceType models.ResourceType, projectID uuid.UUID) ([]models.Resource, error) {
	query := `SELECT` + resourceColumns + ` FROM resources
		WHERE resource_type = $1 AND (project_id IS NULL OR project_id = $2)
		ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query, resourceType, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	var resources []models.Resource
	for rows.Next() {
		resource, err := scanResourceRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		resources = append(resources, *resource)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resources: %w", err)
	}

	return resources, nil
}

// UpdateFileMetadata records the stored object's hash, size and line count
// after an upload or verification pass
func (r *ResourceRepository) UpdateFileMetadata(ctx context.Context, id uuid.UUID, fileHash string, fileSize int64, lineCount *int64) error {
	query := `
		UPDATE resources SET file_hash = $2, file_size = $3, line_count = $4, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, fileHash, fileSize, lineCount)
	if err != nil {
		return fmt.Errorf("failed to update resource metadata: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("resource %s: %w", id, ErrNotFound)
	}

	return nil
}

// Delete removes a catalog entry. Attacks referencing it block the delete
// at the schema level.
func (r *ResourceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM resources WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("resource %s: %w", id, ErrNotFound)
	}

	return nil
}

// scanResourceRow scans a single resource row
func scanResourceRow(row *sql.Row) (*models.Resource, error) {
	resource := &models.Resource{}
	var projectID uuid.NullUUID
	var lineCount sql.NullInt64

	err := row.Scan(
		&resource.ID,
		&projectID,
		&resource.Name,
		&resource.Type,
		&resource.FilePath,
		&resource.FileHash,
		&resource.FileSize,
		&lineCount,
		&resource.ContentType,
		&resource.CreatedAt,
		&resource.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	applyResourceNullables(resource, projectID, lineCount)
	return resource, nil
}

// scanResourceRows scans the current row of a multi-row resource query
func scanResourceRows(rows *sql.Rows) (*models.Resource, error) {
	resource := &models.Resource{}
	var projectID uuid.NullUUID
	var lineCount sql.NullInt64

	err := rows.Scan(
		&resource.ID,
		&projectID,
		&resource.Name,
		&resource.Type,
		&resource.FilePath,
		&resource.FileHash,
		&resource.FileSize,
		&lineCount,
		&resource.ContentType,
		&resource.CreatedAt,
		&resource.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	applyResourceNullables(resource, projectID, lineCount)
	return resource, nil
}

// applyResourceNullables copies nullable scan targets onto the model
func applyResourceNullables(resource *models.Resource, projectID uuid.NullUUID, lineCount sql.NullInt64) {
	if projectID.Valid {
		resource.ProjectID = &projectID.UUID
	}
	if lineCount.Valid {
		resource.LineCount = &lineCount.Int64
	}
}
