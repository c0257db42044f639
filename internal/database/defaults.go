package database

import (
	"context"
	"database/sql"
	"fmt"
)

// DefaultUserEmail identifies the locally seeded user. Multi-user auth lives
// outside this core; everything here is still scoped by user id.
const DefaultUserEmail = "local@spendviz.app"

var defaultCategories = []string{
	"Income",
	"Housing",
	"Food",
	"Transportation",
	"Utilities",
	"Healthcare",
	"Entertainment",
	"Personal Care",
	"Miscellaneous",
}

// SeedDefaults ensures the local user and its baseline categories exist.
// It is idempotent and safe to run on every startup.
func SeedDefaults(ctx context.Context, db *sql.DB) (userID int64, err error) {
	if _, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users(email, name) VALUES(?, ?)`, DefaultUserEmail, "Local"); err != nil {
		return 0, fmt.Errorf("seed user: %w", err)
	}
	row := db.QueryRowContext(ctx, `SELECT id FROM users WHERE email = ?`, DefaultUserEmail)
	if err := row.Scan(&userID); err != nil {
		return 0, fmt.Errorf("lookup seeded user: %w", err)
	}

	for _, name := range defaultCategories {
		if _, err := db.ExecContext(ctx,
			`INSERT OR IGNORE INTO categories(user_id, name) VALUES(?, ?)`, userID, name); err != nil {
			return 0, fmt.Errorf("seed category %s: %w", name, err)
		}
	}
	return userID, nil
}
