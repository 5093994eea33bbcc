package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ZerkerEOD/hashfleet/internal/db"
	"github.com/ZerkerEOD/hashfleet/internal/models"
)

// EventRepository persists the append-only state transition feed
type EventRepository struct {
	db *db.DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *db.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create appends one transition event
func (r *EventRepository) Create(ctx context.Context, event *models.TransitionEvent) error {
	query := `
		INSERT INTO transition_events (entity_type, entity_id, from_status, to_status, actor, note)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		event.EntityType,
		event.EntityID,
		event.FromStatus,
		event.ToStatus,
		event.Actor,
		event.Note,
	).Scan(&event.ID, &event.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create transition event: %w", err)
	}

	return nil
}

// ListByEntity returns one entity's transition history, oldest first
func (r *EventRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]models.TransitionEvent, error) {
	query := `
		SELECT id, entity_type, entity_id, from_status, to_status, actor, note, created_at
		FROM transition_events
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transition events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// ListRecent returns the newest events across all entities
func (r *EventRepository) ListRecent(ctx context.Context, limit int) ([]models.TransitionEvent, error) {
	query := `
		SELECT id, entity_type, entity_id, from_status, to_status, actor, note, created_at
		FROM transition_events
		ORDER BY id DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// DeleteOlderThan prunes events past the retention window, returning the
// number removed
func (r *EventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM transition_events WHERE created_at < $1`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune transition events: %w", err)
	}

	return result.RowsAffected()
}

// collectEvents scans all rows of an event query
func collectEvents(rows *sql.Rows) ([]models.TransitionEvent, error) {
	var events []models.TransitionEvent
	for rows.Next() {
		var e models.TransitionEvent
		err := rows.Scan(
			&e.ID,
			&e.EntityType,
			&e.EntityID,
			&e.FromStatus,
			&e.ToStatus,
			&e.Actor,
			&e.Note,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transition event: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transition events: %w", err)
	}

	return events, nil
}
