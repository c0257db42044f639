package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CategoryRepo handles the category tree.
type CategoryRepo struct {
	db *sql.DB
}

func NewCategoryRepo(db *sql.DB) *CategoryRepo { return &CategoryRepo{db: db} }

func (r *CategoryRepo) Create(ctx context.Context, userID int64, name string, parentID *int64) (*Category, error) {
	if parentID != nil {
		if err := r.assertOwned(ctx, userID, *parentID); err != nil {
			return nil, fmt.Errorf("parent category: %w", err)
		}
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO categories(user_id, name, parent_id) VALUES(?, ?, ?)`, userID, name, parentID)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, userID, id)
}

func (r *CategoryRepo) Get(ctx context.Context, userID, id int64) (*Category, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, parent_id, created_at FROM categories WHERE id = ? AND user_id = ?`, id, userID)
	c, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("category %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return c, nil
}

func (r *CategoryRepo) List(ctx context.Context, userID int64) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, parent_id, created_at FROM categories WHERE user_id = ? ORDER BY name ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *CategoryRepo) Update(ctx context.Context, userID, id int64, name string, parentID *int64) (*Category, error) {
	if parentID != nil {
		if err := r.assertOwned(ctx, userID, *parentID); err != nil {
			return nil, fmt.Errorf("parent category: %w", err)
		}
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, parent_id = ? WHERE id = ? AND user_id = ?`, name, parentID, id, userID)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("category %d: %w", id, ErrNotFound)
	}
	return r.Get(ctx, userID, id)
}

// Delete removes a category unless transactions, rules or child categories
// still reference it.
func (r *CategoryRepo) Delete(ctx context.Context, userID, id int64) error {
	if err := r.assertOwned(ctx, userID, id); err != nil {
		return err
	}

	var count int
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE category_id = ?`, id)
	if err := row.Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("category %d referenced by %d transactions: %w", id, count, ErrInUse)
	}

	row = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categorization_rules WHERE category_id = ?`, id)
	if err := row.Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("category %d referenced by %d rules: %w", id, count, ErrInUse)
	}

	row = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE parent_id = ? AND user_id = ?`, id, userID)
	if err := row.Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("category %d has %d sub-categories: %w", id, count, ErrInUse)
	}

	_, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ? AND user_id = ?`, id, userID)
	return err
}

func (r *CategoryRepo) assertOwned(ctx context.Context, userID, id int64) error {
	var found int64
	row := r.db.QueryRowContext(ctx, `SELECT id FROM categories WHERE id = ? AND user_id = ?`, id, userID)
	if err := row.Scan(&found); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("category %d: %w", id, ErrAccessDenied)
		}
		return err
	}
	return nil
}

func scanCategory(row scanner) (*Category, error) {
	var c Category
	var parent sql.NullInt64
	var created sql.NullTime
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &parent, &created); err != nil {
		return nil, err
	}
	if parent.Valid {
		c.ParentID = &parent.Int64
	}
	if created.Valid {
		c.CreatedAt = created.Time
	}
	return &c, nil
}
