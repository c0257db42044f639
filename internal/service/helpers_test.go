package service

import (
	"context"
	"database/sql"
	"io"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/spendviz/spendviz/internal/database"
	"github.com/spendviz/spendviz/internal/database/repository"
)

// testEnv bundles a migrated throwaway database with the repos and services
// under test.
type testEnv struct {
	db     *sql.DB
	userID int64

	transactions *repository.TransactionRepo
	accounts     *repository.AccountRepo
	categories   *repository.CategoryRepo
	rules        *repository.RuleRepo
	presets      *repository.CsvPresetRepo

	categorizer *CategorizerService
	importer    *ImportService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	migrations, err := filepath.Abs("../database/migrations")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(dbPath, migrations))

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	userID, err := database.SeedDefaults(context.Background(), db)
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	env := &testEnv{
		db:           db,
		userID:       userID,
		transactions: repository.NewTransactionRepo(db),
		accounts:     repository.NewAccountRepo(db),
		categories:   repository.NewCategoryRepo(db),
		rules:        repository.NewRuleRepo(db),
		presets:      repository.NewCsvPresetRepo(db),
	}
	env.categorizer = &CategorizerService{
		Transactions: env.transactions,
		Rules:        env.rules,
		Categories:   env.categories,
		Log:          log,
	}
	env.importer = &ImportService{
		Transactions: env.transactions,
		Accounts:     env.accounts,
		Presets:      env.presets,
		Log:          log,
	}
	return env
}

func (e *testEnv) mustAccount(t *testing.T, name string) int64 {
	t.Helper()
	acct, err := e.accounts.Create(context.Background(), e.userID, name, nil, nil)
	require.NoError(t, err)
	return acct.ID
}

func (e *testEnv) mustCategory(t *testing.T, name string) int64 {
	t.Helper()
	c, err := e.categories.Create(context.Background(), e.userID, name, nil)
	require.NoError(t, err)
	return c.ID
}

func (e *testEnv) mustRule(t *testing.T, pattern string, categoryID int64) int64 {
	t.Helper()
	r, err := e.rules.Create(context.Background(), e.userID, pattern, categoryID)
	require.NoError(t, err)
	return r.ID
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func (e *testEnv) mustTransaction(t *testing.T, accountID int64, date, description, amount string) int64 {
	t.Helper()
	a, err := parseAmount(amount)
	require.NoError(t, err)
	tx, err := e.transactions.Insert(context.Background(), e.userID, repository.Transaction{
		AccountID:   accountID,
		Date:        date,
		Description: description,
		Amount:      a,
	})
	require.NoError(t, err)
	return tx.ID
}
