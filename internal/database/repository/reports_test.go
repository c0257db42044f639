package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func seedReportData(t *testing.T, ctx context.Context, db *sql.DB, userID int64) {
	t.Helper()
	accounts := NewAccountRepo(db)
	categories := NewCategoryRepo(db)
	transactions := NewTransactionRepo(db)

	acct, err := accounts.Create(ctx, userID, "Everyday", nil, nil)
	require.NoError(t, err)

	groceries, err := categories.Create(ctx, userID, "Groceries", nil)
	require.NoError(t, err)
	income, err := categories.Create(ctx, userID, "Income", nil)
	require.NoError(t, err)
	transfer, err := categories.Create(ctx, userID, "Transfer", nil)
	require.NoError(t, err)

	insert := func(date, desc string, amount float64, cat *int64) {
		_, err := transactions.Insert(ctx, userID, Transaction{
			AccountID:   acct.ID,
			Date:        date,
			Description: desc,
			Amount:      decimal.NewFromFloat(amount),
			CategoryID:  cat,
		})
		require.NoError(t, err)
	}
	insert("2024-01-10", "WOOLWORTHS", -50, &groceries.ID)
	insert("2024-02-10", "WOOLWORTHS", -30, &groceries.ID)
	insert("2024-01-05", "SALARY", 2000, &income.ID)
	insert("2024-01-20", "TO SAVINGS", -500, &transfer.ID)
	insert("2024-01-25", "UNCATEGORIZED", -10, nil)
}

func TestSpendingByCategory(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, userID := openRepos(t)
	seedReportData(t, ctx, db, userID)
	reports := NewReportRepo(db)

	rows, err := reports.SpendingByCategory(ctx, userID, ReportFilters{})
	require.NoError(t, err)
	// Income, transfer and uncategorized rows are all excluded.
	require.Len(t, rows, 1)
	require.Equal(t, "Groceries", rows[0].CategoryName)
	require.True(t, rows[0].TotalSpent.Equal(decimal.NewFromInt(80)), rows[0].TotalSpent.String())

	rows, err = reports.SpendingByCategory(ctx, userID, ReportFilters{StartDate: "2024-02-01"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, rows[0].TotalSpent.Equal(decimal.NewFromInt(30)))
}

func TestSpendingByCategoryByMonth(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, userID := openRepos(t)
	seedReportData(t, ctx, db, userID)
	reports := NewReportRepo(db)

	rows, err := reports.SpendingByCategoryByMonth(ctx, userID, ReportFilters{})
	require.NoError(t, err)

	type key struct{ month, category string }
	totals := map[key]string{}
	for _, r := range rows {
		totals[key{r.Month, r.Category}] = r.Total.String()
	}
	require.Equal(t, "-50", totals[key{"2024-01", "Groceries"}])
	require.Equal(t, "-30", totals[key{"2024-02", "Groceries"}])
	// Income stays visible per month; only transfers are hidden.
	require.Equal(t, "2000", totals[key{"2024-01", "Income"}])
	require.NotContains(t, totals, key{"2024-01", "Transfer"})
}

func TestNetWorthTrend(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, userID := openRepos(t)
	seedReportData(t, ctx, db, userID)
	reports := NewReportRepo(db)

	points, err := reports.NetWorthTrend(ctx, userID, ReportFilters{})
	require.NoError(t, err)
	require.Len(t, points, 5)
	require.Equal(t, "2024-01-05", points[0].Date)
	require.True(t, points[0].NetWorth.Equal(decimal.NewFromInt(2000)))
	// Running balance includes every transaction, categorized or not.
	last := points[len(points)-1]
	require.Equal(t, "2024-02-10", last.Date)
	require.True(t, last.NetWorth.Equal(decimal.NewFromInt(1410)), last.NetWorth.String())
}
