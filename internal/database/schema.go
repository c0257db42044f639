package database

import (
	"context"
	"database/sql"
	"fmt"
)

// ColumnOutcome reports what EnsureColumn did.
type ColumnOutcome string

const (
	ColumnCreated        ColumnOutcome = "created"
	ColumnAlreadyPresent ColumnOutcome = "already_present"
)

// EnsureColumn adds a column to a table if it is not already there. Versioned
// migrations cover new databases; this covers databases created before the
// column existed, with an explicit outcome instead of a swallowed ALTER error.
func EnsureColumn(ctx context.Context, db *sql.DB, table, column, ddl string) (ColumnOutcome, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return "", fmt.Errorf("inspect table %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			dflt       sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &primaryKey); err != nil {
			return "", fmt.Errorf("scan table info for %s: %w", table, err)
		}
		if name == column {
			return ColumnAlreadyPresent, nil
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, ddl)); err != nil {
		return "", fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return ColumnCreated, nil
}
