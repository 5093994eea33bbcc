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

const campaignColumns = `
	id, project_id, hashlist_id, name, description, status, priority,
	position, created_at, updated_at`

// CampaignRepository handles database operations for campaigns
type CampaignRepository struct {
	db *db.DB
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *db.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create inserts a new campaign in draft state
func (r *CampaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	query := `
		INSERT INTO campaigns (id, project_id, hashlist_id, name, description, status, priority, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	if campaign.ID == uuid.Nil {
		campaign.ID = uuid.New()
	}
	if campaign.Status == "" {
		campaign.Status = models.CampaignStatusDraft
	}

	err := r.db.QueryRowContext(ctx, query,
		campaign.ID,
		campaign.ProjectID,
		campaign.HashListID,
		campaign.Name,
		campaign.Description,
		campaign.Status,
		campaign.Priority,
		campaign.Position,
	).Scan(&campaign.ID, &campaign.CreatedAt, &campaign.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

// GetByID retrieves a campaign by its ID
func (r *CampaignRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	query := `SELECT` + campaignColumns + ` FROM campaigns WHERE id = $1`

	campaign, err := scanCampaign(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("campaign %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return campaign, nil
}

// ListByProject returns all campaigns of one project, newest first
func (r *CampaignRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Campaign, error) {
	query := `SELECT` + campaignColumns + ` FROM campaigns WHERE project_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	return collectCampaigns(rows)
}

// ListDispatchable returns running campaigns in scheduling order: higher
// priority first, then oldest first. This ordering is the sole source of
// dispatch precedence.
func (r *CampaignRepository) ListDispatchable(ctx context.Context) ([]models.Campaign, error) {
	query := `SELECT` + campaignColumns + ` FROM campaigns
		WHERE status = 'running'
		ORDER BY priority DESC, created_at ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatchable campaigns: %w", err)
	}
	defer rows.Close()

	return collectCampaigns(rows)
}

// ListDispatchableForProjects returns running campaigns restricted to the
// given project scope, in scheduling order. An empty scope means the caller
// sees every project.
func (r *CampaignRepository) ListDispatchableForProjects(ctx context.Context, projectIDs []uuid.UUID) ([]models.Campaign, error) {
	if len(projectIDs) == 0 {
		return r.ListDispatchable(ctx)
	}

	query := `SELECT` + campaignColumns + ` FROM campaigns
		WHERE status = 'running' AND project_id = ANY($1)
		ORDER BY priority DESC, created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(projectIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatchable campaigns for scope: %w", err)
	}
	defer rows.Close()

	return collectCampaigns(rows)
}

// ListActiveByHashList returns non-terminal campaigns targeting one
// hashlist. Used when a fully cracked hashlist satisfies its campaigns
// early.
func (r *CampaignRepository) ListActiveByHashList(ctx context.Context, hashlistID uuid.UUID) ([]models.Campaign, error) {
	query := `SELECT` + campaignColumns + ` FROM campaigns
		WHERE hashlist_id = $1 AND status IN ('scheduled', 'running', 'paused')
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, hashlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns for hashlist: %w", err)
	}
	defer rows.Close()

	return collectCampaigns(rows)
}

// ListByStatus returns campaigns in a given state, oldest first
func (r *CampaignRepository) ListByStatus(ctx context.Context, status models.CampaignStatus) ([]models.Campaign, error) {
	query := `SELECT` + campaignColumns + ` FROM campaigns WHERE status = $1 ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns by status: %w", err)
	}
	defer rows.Close()

	return collectCampaigns(rows)
}

// ListPreemptible returns running campaigns in the same project with
// strictly lower priority than the entrant. Campaigns of equal priority are
// never returned, so equal tiers never preempt each other.
func (r *CampaignRepository) ListPreemptible(ctx context.Context, projectID uuid.UUID, priority int) ([]models.Campaign, error) {
	query := `SELECT` + campaignColumns + ` FROM campaigns
		WHERE project_id = $1 AND status = 'running' AND priority < $2
		ORDER BY priority ASC, created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, projectID, priority)
	if err != nil {
		return nil, fmt.Errorf("failed to list preemptible campaigns: %w", err)
	}
	defer rows.Close()

	return collectCampaigns(rows)
}

// ListPausedInProject returns a project's paused campaigns, best resume
// candidate first
func (r *CampaignRepository) ListPausedInProject(ctx context.Context, projectID uuid.UUID) ([]models.Campaign, error) {
	query := `SELECT` + campaignColumns + ` FROM campaigns
		WHERE project_id = $1 AND status = 'paused'
		ORDER BY priority DESC, created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list paused campaigns: %w", err)
	}
	defer rows.Close()

	return collectCampaigns(rows)
}

// CountRunningAbovePriority counts running campaigns in a project with
// strictly higher priority. A paused campaign may resume only when this is
// zero.
func (r *CampaignRepository) CountRunningAbovePriority(ctx context.Context, projectID uuid.UUID, priority int) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM campaigns
		WHERE project_id = $1 AND status = 'running' AND priority > $2
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, projectID, priority).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count higher priority campaigns: %w", err)
	}

	return count, nil
}

// Update persists mutable campaign fields
func (r *CampaignRepository) Update(ctx context.Context, campaign *models.Campaign) error {
	query := `
		UPDATE campaigns SET
			name = $2,
			description = $3,
			priority = $4,
			position = $5,
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		campaign.ID,
		campaign.Name,
		campaign.Description,
		campaign.Priority,
		campaign.Position,
	)
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("campaign %s: %w", campaign.ID, ErrNotFound)
	}

	return nil
}

// TransitionStatus performs a compare-and-set status change on a campaign
func (r *CampaignRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.CampaignStatus) error {
	query := `
		UPDATE campaigns SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	result, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("failed to transition campaign status: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrTransitionConflict
	}

	return nil
}

// TransitionStatusTx is TransitionStatus inside an existing transaction
func (r *CampaignRepository) TransitionStatusTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, from, to models.CampaignStatus) error {
	query := `
		UPDATE campaigns SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	result, err := tx.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("failed to transition campaign status: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrTransitionConflict
	}

	return nil
}

// Delete removes a campaign. Attacks and tasks go with it via cascade.
func (r *CampaignRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM campaigns WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("campaign %s: %w", id, ErrNotFound)
	}

	return nil
}

// scanCampaign scans a single campaign row
func scanCampaign(row *sql.Row) (*models.Campaign, error) {
	campaign := &models.Campaign{}
	err := row.Scan(
		&campaign.ID,
		&campaign.ProjectID,
		&campaign.HashListID,
		&campaign.Name,
		&campaign.Description,
		&campaign.Status,
		&campaign.Priority,
		&campaign.Position,
		&campaign.CreatedAt,
		&campaign.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return campaign, nil
}

// collectCampaigns scans all rows of a campaign query
func collectCampaigns(rows *sql.Rows) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	for rows.Next() {
		var campaign models.Campaign
		err := rows.Scan(
			&campaign.ID,
			&campaign.ProjectID,
			&campaign.HashListID,
			&campaign.Name,
			&campaign.Description,
			&campaign.Status,
			&campaign.Priority,
			&campaign.Position,
			&campaign.CreatedAt,
			&campaign.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, campaign)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaigns: %w", err)
	}

	return campaigns, nil
}
