package repository

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
)

// ReportFilters narrows report queries. Zero values mean "no filter".
type ReportFilters struct {
	StartDate string
	EndDate   string
	AccountID int64
}

// CategorySpend is one slice of the spending-by-category report. TotalSpent
// is positive for display even though the underlying sums are negative.
type CategorySpend struct {
	CategoryID   int64
	CategoryName string
	TotalSpent   decimal.Decimal
}

// MonthlyCategorySpend is one bar of the per-month category report.
type MonthlyCategorySpend struct {
	Category string
	Month    string
	Total    decimal.Decimal
}

// NetWorthPoint is the running balance across all accounts at a date.
type NetWorthPoint struct {
	Date     string
	NetWorth decimal.Decimal
}

// ReportRepo serves read-only chart aggregations.
type ReportRepo struct {
	db *sql.DB
}

func NewReportRepo(db *sql.DB) *ReportRepo { return &ReportRepo{db: db} }

// SpendingByCategory sums expenses per category. Transfer and income
// categories are excluded, and only net-negative categories are reported.
func (r *ReportRepo) SpendingByCategory(ctx context.Context, userID int64, f ReportFilters) ([]CategorySpend, error) {
	where, args := reportWhere(userID, f)
	rows, err := r.db.QueryContext(ctx, `
	SELECT c.id, c.name, CAST(SUM(t.amount) AS REAL) AS total_spent
	FROM transactions t
	JOIN categories c ON t.category_id = c.id
	JOIN accounts a ON t.account_id = a.id
	`+where+` AND LOWER(c.name) != 'transfer' AND LOWER(c.name) NOT LIKE 'income%'
	GROUP BY c.id, c.name
	HAVING total_spent < 0
	ORDER BY total_spent ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CategorySpend
	for rows.Next() {
		var cs CategorySpend
		var total float64
		if err := rows.Scan(&cs.CategoryID, &cs.CategoryName, &total); err != nil {
			return nil, err
		}
		cs.TotalSpent = decimal.NewFromFloat(total).Neg()
		out = append(out, cs)
	}
	return out, rows.Err()
}

// SpendingByCategoryByMonth groups category totals per calendar month.
// Only the transfer category is excluded here; income stays visible.
func (r *ReportRepo) SpendingByCategoryByMonth(ctx context.Context, userID int64, f ReportFilters) ([]MonthlyCategorySpend, error) {
	where, args := reportWhere(userID, f)
	rows, err := r.db.QueryContext(ctx, `
	SELECT c.name, strftime('%Y-%m', t.date) AS month, SUM(t.amount) AS total
	FROM transactions t
	JOIN categories c ON t.category_id = c.id
	JOIN accounts a ON t.account_id = a.id
	`+where+` AND LOWER(c.name) != 'transfer'
	GROUP BY c.name, month
	ORDER BY month ASC, total DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MonthlyCategorySpend
	for rows.Next() {
		var m MonthlyCategorySpend
		var total float64
		if err := rows.Scan(&m.Category, &m.Month, &total); err != nil {
			return nil, err
		}
		m.Total = decimal.NewFromFloat(total)
		out = append(out, m)
	}
	return out, rows.Err()
}

// NetWorthTrend returns the cumulative balance at each distinct transaction
// date in range.
func (r *ReportRepo) NetWorthTrend(ctx context.Context, userID int64, f ReportFilters) ([]NetWorthPoint, error) {
	where := "WHERE a.user_id = ?"
	args := []interface{}{userID}
	if f.StartDate != "" {
		where += " AND t.date >= ?"
		args = append(args, f.StartDate)
	}
	if f.EndDate != "" {
		where += " AND t.date <= ?"
		args = append(args, f.EndDate)
	}
	rows, err := r.db.QueryContext(ctx, `
	SELECT DISTINCT t.date
	FROM transactions t
	JOIN accounts a ON t.account_id = a.id
	`+where+`
	ORDER BY t.date ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]NetWorthPoint, 0, len(dates))
	for _, date := range dates {
		var total float64
		row := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(t.amount), 0)
		FROM transactions t
		JOIN accounts a ON t.account_id = a.id
		WHERE a.user_id = ? AND t.date <= ?`, userID, date)
		if err := row.Scan(&total); err != nil {
			return nil, err
		}
		out = append(out, NetWorthPoint{Date: date, NetWorth: decimal.NewFromFloat(total)})
	}
	return out, nil
}

func reportWhere(userID int64, f ReportFilters) (string, []interface{}) {
	where := "WHERE t.category_id IS NOT NULL AND a.user_id = ?"
	args := []interface{}{userID}
	if f.StartDate != "" {
		where += " AND t.date >= ?"
		args = append(args, f.StartDate)
	}
	if f.EndDate != "" {
		where += " AND t.date <= ?"
		args = append(args, f.EndDate)
	}
	if f.AccountID != 0 {
		where += " AND t.account_id = ?"
		args = append(args, f.AccountID)
	}
	return where, args
}
