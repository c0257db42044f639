package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// AccountRepo handles accounts.
type AccountRepo struct {
	db *sql.DB
}

func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{db: db} }

func (r *AccountRepo) Create(ctx context.Context, userID int64, name string, accountType, institution *string) (*Account, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts(user_id, name, type, institution) VALUES(?, ?, ?, ?)`,
		userID, name, accountType, institution)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, fmt.Errorf("account %q already exists: %w", name, ErrInUse)
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, userID, id)
}

func (r *AccountRepo) Get(ctx context.Context, userID, id int64) (*Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, type, institution, created_at FROM accounts WHERE id = ? AND user_id = ?`,
		id, userID)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return a, nil
}

func (r *AccountRepo) List(ctx context.Context, userID int64) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, type, institution, created_at FROM accounts WHERE user_id = ? ORDER BY name`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *AccountRepo) Update(ctx context.Context, userID, id int64, name string, accountType, institution *string) (*Account, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET name = ?, type = ?, institution = ? WHERE id = ? AND user_id = ?`,
		name, accountType, institution, id, userID)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return r.Get(ctx, userID, id)
}

func (r *AccountRepo) Delete(ctx context.Context, userID, id int64) error {
	// Presets hang off the account and would otherwise block the delete.
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM csv_mapping_presets WHERE account_id IN (SELECT id FROM accounts WHERE id = ? AND user_id = ?)`,
		id, userID); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return nil
}

func scanAccount(row scanner) (*Account, error) {
	var a Account
	var typ, inst sql.NullString
	var created sql.NullTime
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &typ, &inst, &created); err != nil {
		return nil, err
	}
	if typ.Valid {
		a.Type = &typ.String
	}
	if inst.Valid {
		a.Institution = &inst.String
	}
	if created.Valid {
		a.CreatedAt = created.Time
	}
	return &a, nil
}
