package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/spendviz/spendviz/internal/config"
	"github.com/spendviz/spendviz/internal/database"
	"github.com/spendviz/spendviz/internal/database/repository"
	"github.com/spendviz/spendviz/internal/service"
)

// app holds everything the subcommands need. It is built once per
// invocation; nothing here is process-global.
type app struct {
	cfg    config.Config
	log    *logrus.Logger
	db     *sql.DB
	userID int64

	accounts     *repository.AccountRepo
	categories   *repository.CategoryRepo
	transactions *repository.TransactionRepo
	rules        *repository.RuleRepo
	reports      *repository.ReportRepo

	categorizer *service.CategorizerService
	importer    *service.ImportService
	maintenance *service.MaintenanceService
}

func newApp(ctx context.Context) (*app, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if lvl, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(lvl)
	}
	if cfg.Log.JSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := database.RunMigrations(cfg.Database.Path, cfg.Database.MigrationsPath); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Databases created before user scoping lack this column.
	outcome, err := database.EnsureColumn(ctx, db, "categorization_rules", "user_id", "INTEGER REFERENCES users(id)")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure rules user_id: %w", err)
	}
	log.WithField("outcome", outcome).Debug("ensured categorization_rules.user_id")

	userID, err := database.SeedDefaults(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("seed defaults: %w", err)
	}

	a := &app{
		cfg:          cfg,
		log:          log,
		db:           db,
		userID:       userID,
		accounts:     repository.NewAccountRepo(db),
		categories:   repository.NewCategoryRepo(db),
		transactions: repository.NewTransactionRepo(db),
		rules:        repository.NewRuleRepo(db),
		reports:      repository.NewReportRepo(db),
	}
	a.categorizer = &service.CategorizerService{
		Transactions: a.transactions,
		Rules:        a.rules,
		Categories:   a.categories,
		Log:          log,
	}
	a.importer = &service.ImportService{
		Transactions:        a.transactions,
		Accounts:            a.accounts,
		Presets:             repository.NewCsvPresetRepo(db),
		Log:                 log,
		DateSampleSize:      cfg.Import.DateSampleSize,
		ConfidenceThreshold: cfg.Import.ConfidenceThreshold,
	}
	a.maintenance = &service.MaintenanceService{DB: db}
	return a, nil
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

func main() {
	root := &cobra.Command{
		Use:           "spendviz",
		Short:         "Track accounts, import bank CSVs and auto-categorize transactions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newAccountsCmd(),
		newCategoriesCmd(),
		newRulesCmd(),
		newTransactionsCmd(),
		newImportCmd(),
		newForceImportCmd(),
		newApplyRulesCmd(),
		newConflictsCmd(),
		newSetCategoryCmd(),
		newReportCmd(),
		newConfigCmd(),
		newResetCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withApp wires the shared setup/teardown around a subcommand body.
func withApp(fn func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(ctx, a, cmd, args)
	}
}
