package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// TransactionFilters defines listing filters. Zero values mean "no filter".
type TransactionFilters struct {
	AccountID     int64
	Description   string
	StartDate     string
	EndDate       string
	CategoryID    *int64
	Uncategorized bool
	Sort          string
	Direction     string
	Page          int
	Limit         int
}

// TransactionRepo handles transactions.
type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

// Insert creates a transaction after verifying the target account and, when
// set, the category belong to userID.
func (r *TransactionRepo) Insert(ctx context.Context, userID int64, t Transaction) (*Transaction, error) {
	if err := r.assertAccountOwned(ctx, userID, t.AccountID); err != nil {
		return nil, err
	}
	if t.CategoryID != nil {
		var id int64
		row := r.db.QueryRowContext(ctx, `SELECT id FROM categories WHERE id = ? AND user_id = ?`, *t.CategoryID, userID)
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("category %d: %w", *t.CategoryID, ErrAccessDenied)
			}
			return nil, err
		}
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions(account_id, date, description, amount, category_id) VALUES(?, ?, ?, ?, ?)`,
		t.AccountID, t.Date, t.Description, t.Amount, t.CategoryID)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, userID, id)
}

func (r *TransactionRepo) Get(ctx context.Context, userID, id int64) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT t.id, t.account_id, t.date, t.description, t.amount, t.category_id, t.created_at
	FROM transactions t
	JOIN accounts a ON t.account_id = a.id
	WHERE t.id = ? AND a.user_id = ?`, id, userID)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return t, nil
}

var transactionSortColumns = map[string]string{
	"date":          "t.date",
	"description":   "t.description",
	"amount":        "t.amount",
	"account_name":  "a.name",
	"category_name": "c.name",
	"created_at":    "t.created_at",
}

// List returns a page of transactions plus the unpaged total.
func (r *TransactionRepo) List(ctx context.Context, userID int64, f TransactionFilters) ([]Transaction, int, error) {
	where := []string{"a.user_id = ?"}
	args := []interface{}{userID}

	if f.AccountID != 0 {
		where = append(where, "t.account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.Description != "" {
		where = append(where, "t.description LIKE ?")
		args = append(args, "%"+f.Description+"%")
	}
	if f.StartDate != "" {
		where = append(where, "t.date >= ?")
		args = append(args, f.StartDate)
	}
	if f.EndDate != "" {
		where = append(where, "t.date <= ?")
		args = append(args, f.EndDate)
	}
	if f.Uncategorized {
		where = append(where, "t.category_id IS NULL")
	} else if f.CategoryID != nil {
		where = append(where, "t.category_id = ?")
		args = append(args, *f.CategoryID)
	}

	base := `
	FROM transactions t
	JOIN accounts a ON t.account_id = a.id
	LEFT JOIN categories c ON t.category_id = c.id
	WHERE ` + strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*)"+base, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sortCol, ok := transactionSortColumns[f.Sort]
	if !ok {
		sortCol = "t.date"
	}
	dir := "DESC"
	if strings.EqualFold(f.Direction, "asc") {
		dir = "ASC"
	}

	query := `SELECT t.id, t.account_id, t.date, t.description, t.amount, t.category_id, t.created_at,
	a.name AS account_name, c.name AS category_name` + base +
		fmt.Sprintf(" ORDER BY %s %s, t.created_at DESC", sortCol, dir)

	if f.Limit > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, (page-1)*f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		var categoryID sql.NullInt64
		var created sql.NullTime
		var amount float64
		var description, acctName, catName sql.NullString
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Date, &description, &amount,
			&categoryID, &created, &acctName, &catName); err != nil {
			return nil, 0, err
		}
		t.Description = description.String
		t.Amount = decimal.NewFromFloat(amount)
		if categoryID.Valid {
			t.CategoryID = &categoryID.Int64
		}
		if created.Valid {
			t.CreatedAt = created.Time
		}
		if acctName.Valid {
			t.AccountName = &acctName.String
		}
		if catName.Valid {
			t.CategoryName = &catName.String
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// ListForAccount returns every transaction of one account. Used to seed the
// import dedup set, so it is deliberately unpaged.
func (r *TransactionRepo) ListForAccount(ctx context.Context, userID, accountID int64) ([]Transaction, error) {
	if err := r.assertAccountOwned(ctx, userID, accountID); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
	SELECT t.id, t.account_id, t.date, t.description, t.amount, t.category_id, t.created_at
	FROM transactions t
	WHERE t.account_id = ?`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ListUncategorized returns transactions with no category, the population
// bulk rule application and conflict reporting operate on.
func (r *TransactionRepo) ListUncategorized(ctx context.Context, userID int64) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT t.id, t.account_id, t.date, t.description, t.amount, t.category_id, t.created_at
	FROM transactions t
	JOIN accounts a ON t.account_id = a.id
	WHERE t.category_id IS NULL AND a.user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Update rewrites all editable fields of a transaction.
func (r *TransactionRepo) Update(ctx context.Context, userID int64, t Transaction) (*Transaction, error) {
	current, err := r.Get(ctx, userID, t.ID)
	if err != nil {
		return nil, err
	}
	if t.AccountID != current.AccountID {
		if err := r.assertAccountOwned(ctx, userID, t.AccountID); err != nil {
			return nil, fmt.Errorf("new account: %w", err)
		}
	}
	if t.CategoryID != nil {
		var id int64
		row := r.db.QueryRowContext(ctx, `SELECT id FROM categories WHERE id = ? AND user_id = ?`, *t.CategoryID, userID)
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("new category %d: %w", *t.CategoryID, ErrAccessDenied)
			}
			return nil, err
		}
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE transactions SET account_id = ?, date = ?, description = ?, amount = ?, category_id = ? WHERE id = ?`,
		t.AccountID, t.Date, t.Description, t.Amount, t.CategoryID, t.ID)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, userID, t.ID)
}

// UpdateCategory sets or clears category_id without scope checks; callers are
// expected to have verified ownership already.
func (r *TransactionRepo) UpdateCategory(ctx context.Context, id int64, categoryID *int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE transactions SET category_id = ? WHERE id = ?`, categoryID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// BulkUpdateCategory sets category_id on many transactions in one database
// transaction, skipping ids outside the user's accounts.
func (r *TransactionRepo) BulkUpdateCategory(ctx context.Context, userID int64, ids []int64, categoryID *int64) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	var affected int64
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `
		UPDATE transactions SET category_id = ?
		WHERE id = ? AND account_id IN (SELECT id FROM accounts WHERE user_id = ?)`,
			categoryID, id, userID)
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		affected += n
	}
	return affected, tx.Commit()
}

// DeleteAll removes every transaction owned by userID.
func (r *TransactionRepo) DeleteAll(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE account_id IN (SELECT id FROM accounts WHERE user_id = ?)`, userID)
	return err
}

// DescriptionContext is a distinct uncategorized description with one example
// date and amount, used as review context for writing new rules.
type DescriptionContext struct {
	Description string
	Date        string
	Amount      decimal.Decimal
}

func (r *TransactionRepo) UncategorizedDescriptions(ctx context.Context, userID int64) ([]DescriptionContext, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT DISTINCT t.description, t.date, t.amount
	FROM transactions t
	JOIN accounts a ON t.account_id = a.id
	WHERE t.category_id IS NULL AND t.description IS NOT NULL AND t.description != '' AND a.user_id = ?
	ORDER BY t.description ASC, t.date DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DescriptionContext
	for rows.Next() {
		var d DescriptionContext
		var amount float64
		if err := rows.Scan(&d.Description, &d.Date, &amount); err != nil {
			return nil, err
		}
		d.Amount = decimal.NewFromFloat(amount)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *TransactionRepo) assertAccountOwned(ctx context.Context, userID, accountID int64) error {
	var id int64
	row := r.db.QueryRowContext(ctx, `SELECT id FROM accounts WHERE id = ? AND user_id = ?`, accountID, userID)
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("account %d: %w", accountID, ErrAccessDenied)
		}
		return err
	}
	return nil
}

// scanner handles both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row scanner) (*Transaction, error) {
	var t Transaction
	var categoryID sql.NullInt64
	var created sql.NullTime
	var description sql.NullString
	var amount float64
	if err := row.Scan(&t.ID, &t.AccountID, &t.Date, &description, &amount, &categoryID, &created); err != nil {
		return nil, err
	}
	t.Description = description.String
	t.Amount = decimal.NewFromFloat(amount)
	if categoryID.Valid {
		t.CategoryID = &categoryID.Int64
	}
	if created.Valid {
		t.CreatedAt = created.Time
	}
	return &t, nil
}
