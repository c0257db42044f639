package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// RuleRepo stores categorization rules.
type RuleRepo struct {
	db *sql.DB
}

func NewRuleRepo(db *sql.DB) *RuleRepo { return &RuleRepo{db: db} }

func (r *RuleRepo) Create(ctx context.Context, userID int64, pattern string, categoryID int64) (*Rule, error) {
	if err := r.assertCategoryOwned(ctx, userID, categoryID); err != nil {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO categorization_rules(user_id, pattern, category_id) VALUES(?, ?, ?)`,
		userID, pattern, categoryID)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.get(ctx, id)
}

func (r *RuleRepo) Update(ctx context.Context, userID, id int64, pattern string, categoryID int64) (*Rule, error) {
	if err := r.assertOwned(ctx, userID, id); err != nil {
		return nil, err
	}
	if err := r.assertCategoryOwned(ctx, userID, categoryID); err != nil {
		return nil, err
	}
	if _, err := r.db.ExecContext(ctx,
		`UPDATE categorization_rules SET pattern = ?, category_id = ? WHERE id = ? AND user_id = ?`,
		pattern, categoryID, id, userID); err != nil {
		return nil, err
	}
	return r.get(ctx, id)
}

func (r *RuleRepo) Delete(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categorization_rules WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("rule %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListForUser returns all of a user's rules ordered id descending, so more
// recently created rules are evaluated first on ties.
func (r *RuleRepo) ListForUser(ctx context.Context, userID int64) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT cr.id, cr.user_id, cr.pattern, cr.category_id, c.name, cr.created_at
	FROM categorization_rules cr
	JOIN categories c ON cr.category_id = c.id
	WHERE cr.user_id = ?
	ORDER BY cr.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

var ruleSortColumns = map[string]string{
	"pattern":       "cr.pattern",
	"category_name": "c.name",
}

// ListPaged returns a filtered page of rules plus the unpaged total.
func (r *RuleRepo) ListPaged(ctx context.Context, userID int64, filter, sort, direction string, page, limit int) ([]Rule, int, error) {
	where := "WHERE cr.user_id = ?"
	args := []interface{}{userID}
	if strings.TrimSpace(filter) != "" {
		where += " AND LOWER(cr.pattern) LIKE ?"
		args = append(args, "%"+strings.ToLower(strings.TrimSpace(filter))+"%")
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM categorization_rules cr `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sortCol, ok := ruleSortColumns[sort]
	if !ok {
		sortCol = "cr.pattern"
	}
	dir := "DESC"
	if strings.EqualFold(direction, "asc") {
		dir = "ASC"
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	args = append(args, limit, (page-1)*limit)

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
	SELECT cr.id, cr.user_id, cr.pattern, cr.category_id, c.name, cr.created_at
	FROM categorization_rules cr
	JOIN categories c ON cr.category_id = c.id
	%s
	ORDER BY %s %s, cr.id DESC
	LIMIT ? OFFSET ?`, where, sortCol, dir), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out, err := collectRules(rows)
	return out, total, err
}

func (r *RuleRepo) get(ctx context.Context, id int64) (*Rule, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT cr.id, cr.user_id, cr.pattern, cr.category_id, c.name, cr.created_at
	FROM categorization_rules cr
	JOIN categories c ON cr.category_id = c.id
	WHERE cr.id = ?`, id)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("rule %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return rule, nil
}

func (r *RuleRepo) assertOwned(ctx context.Context, userID, id int64) error {
	var found int64
	row := r.db.QueryRowContext(ctx, `SELECT id FROM categorization_rules WHERE id = ? AND user_id = ?`, id, userID)
	if err := row.Scan(&found); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("rule %d: %w", id, ErrAccessDenied)
		}
		return err
	}
	return nil
}

func (r *RuleRepo) assertCategoryOwned(ctx context.Context, userID, categoryID int64) error {
	var found int64
	row := r.db.QueryRowContext(ctx, `SELECT id FROM categories WHERE id = ? AND user_id = ?`, categoryID, userID)
	if err := row.Scan(&found); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("category %d: %w", categoryID, ErrAccessDenied)
		}
		return err
	}
	return nil
}

func collectRules(rows *sql.Rows) ([]Rule, error) {
	var out []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rule)
	}
	return out, rows.Err()
}

func scanRule(row scanner) (*Rule, error) {
	var rule Rule
	var created sql.NullTime
	if err := row.Scan(&rule.ID, &rule.UserID, &rule.Pattern, &rule.CategoryID, &rule.CategoryName, &created); err != nil {
		return nil, err
	}
	if created.Valid {
		rule.CreatedAt = created.Time
	}
	return &rule, nil
}
