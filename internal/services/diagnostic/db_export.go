package diagnostic

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// exportRowLimit caps rows per table in a support snapshot
const exportRowLimit = 10000

// snapshotTables lists the coordination tables included in a support
// snapshot. Hash material is deliberately absent: hash_items and
// crack_results never leave the database this way.
var snapshotTables = []string{
	"agents",
	"agent_benchmarks",
	"agent_errors",
	"projects",
	"hashlists",
	"campaigns",
	"attacks",
	"tasks",
	"resources",
	"transition_events",
}

// redactedColumns maps tables to columns whose values are replaced before
// export. Identifiers and counters stay; anything naming a customer or
// carrying a credential goes.
var redactedColumns = map[string][]string{
	"agents":       {"name", "host", "signature", "api_key_hash"},
	"agent_errors": {"message", "metadata"},
	"projects":     {"name", "description"},
	"hashlists":    {"name", "error_message"},
	"campaigns":    {"name", "description"},
	"attacks":      {"name", "mask", "comment"},
	"resources":    {"name", "file_path"},
	"tasks":        {"error_message"},
}

var tableNamePattern = regexp.MustCompile(`^[a-z_]+$`)

// TableSnapshot is one exported table
type TableSnapshot struct {
	TableName  string                   `json:"table_name"`
	RowCount   int                      `json:"row_count"`
	ExportedAt time.Time                `json:"exported_at"`
	Columns    []string                 `json:"columns"`
	Rows       []map[string]interface{} `json:"rows"`
}

// Snapshot exports the coordination tables under one repeatable-read
// transaction so the rows are mutually consistent. A table that fails to
// export is skipped rather than failing the snapshot.
func (s *Service) Snapshot(ctx context.Context) (map[string]*TableSnapshot, error) {
	debug.Info("Starting coordination table snapshot")

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("failed to start snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	out := make(map[string]*TableSnapshot, len(snapshotTables))
	for _, table := range snapshotTables {
		snap, err := s.snapshotTable(ctx, tx, table)
		if err != nil {
			debug.Warning("Failed to snapshot table %s: %v", table, err)
			continue
		}
		out[table] = snap
	}

	debug.Info("Coordination snapshot complete: %d tables", len(out))
	return out, nil
}

func (s *Service) snapshotTable(ctx context.Context, tx *sql.Tx, table string) (*TableSnapshot, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	columns, err := tableColumns(ctx, tx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}

	redacted := make(map[string]bool)
	for _, col := range redactedColumns[table] {
		redacted[col] = true
	}

	rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", table, exportRowLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var exported []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		targets := make([]interface{}, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = exportValue(values[i], redacted[col], col)
		}
		exported = append(exported, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", table, err)
	}

	return &TableSnapshot{
		TableName:  table,
		RowCount:   len(exported),
		ExportedAt: time.Now(),
		Columns:    columns,
		Rows:       exported,
	}, nil
}

func tableColumns(ctx context.Context, tx *sql.Tx, table string) ([]string, error) {
	query := `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_name = $1 AND table_schema = 'public'
		ORDER BY ordinal_position
	`

	rows, err := tx.QueryContext(ctx, query, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

// exportValue normalizes a scanned value for JSON output, replacing
// redacted columns with a length-preserving marker so support can still
// reason about presence and size.
func exportValue(val interface{}, redact bool, col string) interface{} {
	if val == nil {
		return nil
	}
	if redact {
		switch v := val.(type) {
		case string:
			return fmt.Sprintf("[redacted:%s:len=%d]", col, len(v))
		case []byte:
			return fmt.Sprintf("[redacted:%s:len=%d]", col, len(v))
		default:
			return fmt.Sprintf("[redacted:%s]", col)
		}
	}
	if b, ok := val.([]byte); ok {
		return string(b)
	}
	return val
}
