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

// HashItemRepository handles database operations for individual hashes
type HashItemRepository struct {
	db *db.DB
}

// NewHashItemRepository creates a new hash item repository
func NewHashItemRepository(db *db.DB) *HashItemRepository {
	return &HashItemRepository{db: db}
}

// InsertBatch inserts a batch of items into a hashlist with a single
// multi-row statement. Values already present in the list are skipped; the
// returned count covers only the rows actually inserted.
func (r *HashItemRepository) InsertBatch(ctx context.Context, hashlistID uuid.UUID, items []models.HashItem) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	query := `INSERT INTO hash_items (id, hashlist_id, hash_value, salt) VALUES `
	args := make([]interface{}, 0, len(items)*4)

	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
		items[i].HashListID = hashlistID

		if i > 0 {
			query += ", "
		}

		base := i * 4
		query += fmt.Sprintf("($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4)
		args = append(args, items[i].ID, hashlistID, items[i].HashValue, items[i].Salt)
	}

	query += ` ON CONFLICT (hashlist_id, hash_value) DO NOTHING`

	debug.Debug("[DB:InsertBatch] Executing multi-row INSERT for %d hash items", len(items))
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert hash items: %w", err)
	}

	return result.RowsAffected()
}

// GetByID retrieves one hash item
func (r *HashItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.HashItem, error) {
	query := `
		SELECT id, hashlist_id, hash_value, salt, plain_text, cracked, cracked_at, attack_id, created_at, updated_at
		FROM hash_items
		WHERE id = $1
	`

	item, err := scanHashItem(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("hash item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hash item: %w", err)
	}

	return item, nil
}

// GetByValue retrieves one hash item of a hashlist by its hash value
func (r *HashItemRepository) GetByValue(ctx context.Context, hashlistID uuid.UUID, hashValue string) (*models.HashItem, error) {
	query := `
		SELECT id, hashlist_id, hash_value, salt, plain_text, cracked, cracked_at, attack_id, created_at, updated_at
		FROM hash_items
		WHERE hashlist_id = $1 AND hash_value = $2
	`

	item, err := scanHashItem(r.db.QueryRowContext(ctx, query, hashlistID, hashValue))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("hash item: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hash item by value: %w", err)
	}

	return item, nil
}

// MarkCrackedTx flips one item to cracked inside a transaction. The flip is
// monotonic: an already-cracked item matches no rows, keeping the original
// plaintext and attribution. Returns whether this call performed the flip.
func (r *HashItemRepository) MarkCrackedTx(ctx context.Context, tx *sql.Tx, itemID, attackID uuid.UUID, plainText string, crackedAt time.Time) (bool, error) {
	query := `
		UPDATE hash_items SET
			cracked = TRUE,
			plain_text = $2,
			attack_id = $3,
			cracked_at = $4,
			updated_at = NOW()
		WHERE id = $1 AND cracked = FALSE
	`

	result, err := tx.ExecContext(ctx, query, itemID, plainText, attackID, crackedAt)
	if err != nil {
		return false, fmt.Errorf("failed to mark hash item cracked: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read cracked rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// CountUncracked returns how many items of a hashlist remain uncracked
func (r *HashItemRepository) CountUncracked(ctx context.Context, hashlistID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM hash_items WHERE hashlist_id = $1 AND cracked = FALSE`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, hashlistID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count uncracked items: %w", err)
	}

	return count, nil
}

// ListCrackedValuesSince returns hash values cracked after the cutoff, for
// agents trimming their local work. A nil cutoff returns every cracked
// value.
func (r *HashItemRepository) ListCrackedValuesSince(ctx context.Context, hashlistID uuid.UUID, since *time.Time) ([]string, error) {
	query := `
		SELECT hash_value
		FROM hash_items
		WHERE hashlist_id = $1 AND cracked = TRUE AND ($2::timestamptz IS NULL OR cracked_at >= $2)
		ORDER BY cracked_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, hashlistID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list cracked values: %w", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan cracked value: %w", err)
		}
		values = append(values, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cracked values: %w", err)
	}

	return values, nil
}

// ListByHashList returns a page of a hashlist's items
func (r *HashItemRepository) ListByHashList(ctx context.Context, hashlistID uuid.UUID, limit, offset int) ([]models.HashItem, error) {
	query := `
		SELECT id, hashlist_id, hash_value, salt, plain_text, cracked, cracked_at, attack_id, created_at, updated_at
		FROM hash_items
		WHERE hashlist_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, hashlistID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list hash items: %w", err)
	}
	defer rows.Close()

	var items []models.HashItem
	for rows.Next() {
		var item models.HashItem
		var salt, plainText sql.NullString
		var crackedAt sql.NullTime
		var attackID uuid.NullUUID

		err := rows.Scan(
			&item.ID,
			&item.HashListID,
			&item.HashValue,
			&salt,
			&plainText,
			&item.Cracked,
			&crackedAt,
			&attackID,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hash item: %w", err)
		}

		applyHashItemNullables(&item, salt, plainText, crackedAt, attackID)
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hash items: %w", err)
	}

	return items, nil
}

// scanHashItem scans a single hash item row
func scanHashItem(row *sql.Row) (*models.HashItem, error) {
	item := &models.HashItem{}
	var salt, plainText sql.NullString
	var crackedAt sql.NullTime
	var attackID uuid.NullUUID

	err := row.Scan(
		&item.ID,
		&item.HashListID,
		&item.HashValue,
		&salt,
		&plainText,
		&item.Cracked,
		&crackedAt,
		&attackID,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	applyHashItemNullables(item, salt, plainText, crackedAt, attackID)
	return item, nil
}

// applyHashItemNullables copies nullable scan targets onto the model
func applyHashItemNullables(item *models.HashItem, salt, plainText sql.NullString, crackedAt sql.NullTime, attackID uuid.NullUUID) {
	if salt.Valid {
		item.Salt = &salt.String
	}
	if plainText.Valid {
		item.PlainText = &plainText.String
	}
	if crackedAt.Valid {
		item.CrackedAt = &crackedAt.Time
	}
	if attackID.Valid {
		item.AttackID = &attackID.UUID
	}
}
