package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/spendviz/spendviz/internal/config"
	"github.com/spendviz/spendviz/internal/database/repository"
	"github.com/spendviz/spendviz/internal/dateformat"
	"github.com/spendviz/spendviz/internal/service"
)

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "accounts", Short: "Manage accounts"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			accounts, err := a.accounts.List(ctx, a.userID)
			if err != nil {
				return err
			}
			for _, acct := range accounts {
				fmt.Printf("%d\t%s", acct.ID, acct.Name)
				if acct.Type != nil {
					fmt.Printf("\t%s", *acct.Type)
				}
				if acct.Institution != nil {
					fmt.Printf("\t%s", *acct.Institution)
				}
				fmt.Println()
			}
			return nil
		}),
	}

	var acctType, institution string
	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			acct, err := a.accounts.Create(ctx, a.userID, args[0], optional(acctType), optional(institution))
			if err != nil {
				return err
			}
			fmt.Printf("created account %d: %s\n", acct.ID, acct.Name)
			return nil
		}),
	}
	add.Flags().StringVar(&acctType, "type", "", "account type (checking, savings, credit...)")
	add.Flags().StringVar(&institution, "institution", "", "institution name")

	var newName, newType, newInstitution string
	update := &cobra.Command{
		Use:   "update ID",
		Short: "Rename an account or change its type/institution",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			current, err := a.accounts.Get(ctx, a.userID, id)
			if err != nil {
				return err
			}
			name := current.Name
			if newName != "" {
				name = newName
			}
			typ := current.Type
			if newType != "" {
				typ = &newType
			}
			inst := current.Institution
			if newInstitution != "" {
				inst = &newInstitution
			}
			_, err = a.accounts.Update(ctx, a.userID, id, name, typ, inst)
			return err
		}),
	}
	update.Flags().StringVar(&newName, "name", "", "new account name")
	update.Flags().StringVar(&newType, "type", "", "new account type")
	update.Flags().StringVar(&newInstitution, "institution", "", "new institution")

	remove := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an account and its saved import preset",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.accounts.Delete(ctx, a.userID, id)
		}),
	}

	cmd.AddCommand(list, add, update, remove)
	return cmd
}

func newCategoriesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "categories", Short: "Manage the category tree"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List categories",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			cats, err := a.categories.List(ctx, a.userID)
			if err != nil {
				return err
			}
			for _, c := range cats {
				if c.ParentID != nil {
					fmt.Printf("%d\t%s\t(parent %d)\n", c.ID, c.Name, *c.ParentID)
				} else {
					fmt.Printf("%d\t%s\n", c.ID, c.Name)
				}
			}
			return nil
		}),
	}

	var parentID int64
	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			var parent *int64
			if parentID != 0 {
				parent = &parentID
			}
			c, err := a.categories.Create(ctx, a.userID, args[0], parent)
			if err != nil {
				return err
			}
			fmt.Printf("created category %d: %s\n", c.ID, c.Name)
			return nil
		}),
	}
	add.Flags().Int64Var(&parentID, "parent", 0, "parent category id")

	rename := &cobra.Command{
		Use:   "rename ID NAME",
		Short: "Rename a category",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			current, err := a.categories.Get(ctx, a.userID, id)
			if err != nil {
				return err
			}
			_, err = a.categories.Update(ctx, a.userID, id, args[1], current.ParentID)
			return err
		}),
	}

	remove := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a category (blocked while referenced)",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.categories.Delete(ctx, a.userID, id)
		}),
	}

	cmd.AddCommand(list, add, rename, remove)
	return cmd
}

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "rules", Short: "Manage categorization rules"}

	var filter, sort, direction string
	var page, limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List rules",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			rules, total, err := a.rules.ListPaged(ctx, a.userID, filter, sort, direction, page, limit)
			if err != nil {
				return err
			}
			for _, r := range rules {
				fmt.Printf("%d\t%q -> %s\n", r.ID, r.Pattern, r.CategoryName)
			}
			fmt.Printf("%d of %d rules\n", len(rules), total)
			return nil
		}),
	}
	list.Flags().StringVar(&filter, "filter", "", "only rules whose pattern contains this text")
	list.Flags().StringVar(&sort, "sort", "pattern", "sort column: pattern or category_name")
	list.Flags().StringVar(&direction, "direction", "asc", "sort direction: asc or desc")
	list.Flags().IntVar(&page, "page", 1, "page number")
	list.Flags().IntVar(&limit, "limit", 50, "page size")

	var categoryID int64
	add := &cobra.Command{
		Use:   "add PATTERN",
		Short: "Create a rule mapping a description pattern to a category",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			r, err := a.rules.Create(ctx, a.userID, args[0], categoryID)
			if err != nil {
				return err
			}
			fmt.Printf("created rule %d: %q -> %s\n", r.ID, r.Pattern, r.CategoryName)
			return nil
		}),
	}
	add.Flags().Int64Var(&categoryID, "category", 0, "target category id")
	_ = add.MarkFlagRequired("category")

	var updPattern string
	var updCategory int64
	update := &cobra.Command{
		Use:   "update ID",
		Short: "Change a rule's pattern or target category",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			_, err = a.rules.Update(ctx, a.userID, id, updPattern, updCategory)
			return err
		}),
	}
	update.Flags().StringVar(&updPattern, "pattern", "", "new description pattern")
	update.Flags().Int64Var(&updCategory, "category", 0, "new target category id")
	_ = update.MarkFlagRequired("pattern")
	_ = update.MarkFlagRequired("category")

	remove := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.rules.Delete(ctx, a.userID, id)
		}),
	}

	suggest := &cobra.Command{
		Use:   "suggest",
		Short: "List distinct uncategorized descriptions to write rules against",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			descs, err := a.transactions.UncategorizedDescriptions(ctx, a.userID)
			if err != nil {
				return err
			}
			for _, d := range descs {
				fmt.Printf("%s\t%s\t%s\n", d.Date, d.Amount.StringFixed(2), d.Description)
			}
			return nil
		}),
	}

	cmd.AddCommand(list, add, update, remove, suggest)
	return cmd
}

func newTransactionsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "transactions", Short: "Inspect and edit transactions"}

	var (
		accountID     int64
		uncategorized bool
		search        string
		limit         int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List transactions",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			txs, total, err := a.transactions.List(ctx, a.userID, repository.TransactionFilters{
				AccountID:     accountID,
				Uncategorized: uncategorized,
				Description:   search,
				Limit:         limit,
			})
			if err != nil {
				return err
			}
			for _, t := range txs {
				category := "-"
				if t.CategoryName != nil {
					category = *t.CategoryName
				}
				fmt.Printf("%d\t%s\t%s\t%s\t%s\n", t.ID, t.Date, t.Amount.StringFixed(2), category, t.Description)
			}
			fmt.Printf("%d of %d transactions\n", len(txs), total)
			return nil
		}),
	}
	list.Flags().Int64Var(&accountID, "account", 0, "filter by account id")
	list.Flags().BoolVar(&uncategorized, "uncategorized", false, "only transactions without a category")
	list.Flags().StringVar(&search, "search", "", "filter by description substring")
	list.Flags().IntVar(&limit, "limit", 50, "page size (0 = all)")

	var date, description, amount string
	edit := &cobra.Command{
		Use:   "edit ID",
		Short: "Edit a transaction's date, description or amount",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			tx, err := a.transactions.Get(ctx, a.userID, id)
			if err != nil {
				return err
			}
			if date != "" {
				tx.Date = date
			}
			if description != "" {
				tx.Description = description
			}
			if amount != "" {
				d, err := decimal.NewFromString(amount)
				if err != nil {
					return fmt.Errorf("invalid amount %q", amount)
				}
				tx.Amount = d
			}
			_, err = a.transactions.Update(ctx, a.userID, *tx)
			return err
		}),
	}
	edit.Flags().StringVar(&date, "date", "", "new date (YYYY-MM-DD)")
	edit.Flags().StringVar(&description, "description", "", "new description")
	edit.Flags().StringVar(&amount, "amount", "", "new signed amount")

	var yes bool
	clear := &cobra.Command{
		Use:   "clear",
		Short: "Delete all transactions (accounts and rules are kept)",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete all transactions without --yes")
			}
			return a.transactions.DeleteAll(ctx, a.userID)
		}),
	}
	clear.Flags().BoolVar(&yes, "yes", false, "confirm the delete")

	matches := &cobra.Command{
		Use:   "matches ID",
		Short: "Show which rules apply to a transaction and how specifically",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			results, err := a.categorizer.MatchingRules(ctx, a.userID, id)
			if err != nil {
				return err
			}
			for _, m := range results {
				fmt.Printf("rule %d\t%q -> %s\t(match type %d)\n", m.RuleID, m.Pattern, m.CategoryName, m.Type)
			}
			return nil
		}),
	}

	cmd.AddCommand(list, edit, clear, matches)
	return cmd
}

func newImportCmd() *cobra.Command {
	var (
		accountID   int64
		mappingSpec string
		hasHeader   bool
		layoutSpec  string
		savePreset  bool
		dupsOut     string
	)
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import bank CSV files into an account",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			mapping, layout, err := resolveMapping(ctx, a, accountID, mappingSpec, layoutSpec)
			if err != nil {
				return err
			}

			files := make([]service.File, 0, len(args))
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				files = append(files, service.File{Name: path, Reader: f})
			}

			res, err := a.importer.ReconcileCSV(ctx, a.userID, accountID, files, mapping, hasHeader, layout)
			if err != nil {
				return err
			}

			if res.DetectedDateFormat != "" {
				fmt.Printf("date format: %s\n", dateformat.Describe(res.DetectedDateFormat))
			}
			for _, fs := range res.Files {
				fmt.Printf("%s: %d rows, %d imported, %d duplicates, %d errors\n",
					fs.FileName, fs.RowCount, fs.ImportedCount, fs.DuplicateCount, fs.ErrorCount)
				for _, e := range fs.Errors {
					if e.Line > 0 {
						fmt.Printf("  line %d: %s\n", e.Line, e.Cause)
					} else {
						fmt.Printf("  %s\n", e.Cause)
					}
				}
			}
			fmt.Printf("total: %d imported, %d duplicates\n", res.InsertedCount, res.DuplicateCount)

			if dupsOut != "" && len(res.Duplicates) > 0 {
				b, err := json.MarshalIndent(res.Duplicates, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(dupsOut, b, 0o644); err != nil {
					return err
				}
				fmt.Printf("wrote %d duplicate candidates to %s (use force-import to insert them anyway)\n",
					len(res.Duplicates), dupsOut)
			}

			if savePreset {
				if err := a.importer.SavePreset(ctx, a.userID, accountID, mapping, layout, res.DetectedDateFormat); err != nil {
					return err
				}
			}
			return nil
		}),
	}
	cmd.Flags().Int64Var(&accountID, "account", 0, "target account id")
	cmd.Flags().StringVar(&mappingSpec, "mapping", "", `column roles, e.g. "date,description,amount" or "date,ignore,description,debit,credit" (defaults to the account's saved preset)`)
	cmd.Flags().BoolVar(&hasHeader, "header", false, "treat the first row as a header")
	cmd.Flags().StringVar(&layoutSpec, "layout", "single", "debit/credit layout: single or split")
	cmd.Flags().BoolVar(&savePreset, "save-preset", false, "remember this mapping for the account")
	cmd.Flags().StringVar(&dupsOut, "duplicates-out", "", "write flagged duplicates to this JSON file")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func resolveMapping(ctx context.Context, a *app, accountID int64, mappingSpec, layoutSpec string) ([]service.FieldRole, service.AmountLayout, error) {
	if mappingSpec != "" {
		mapping, err := service.ParseMapping(mappingSpec)
		if err != nil {
			return nil, "", err
		}
		layout, err := service.ParseLayout(layoutSpec)
		if err != nil {
			return nil, "", err
		}
		return mapping, layout, nil
	}
	mapping, layout, err := a.importer.LoadPreset(ctx, a.userID, accountID)
	if err != nil {
		return nil, "", err
	}
	if mapping == nil {
		return nil, "", fmt.Errorf("no --mapping given and account %d has no saved preset", accountID)
	}
	return mapping, layout, nil
}

func newForceImportCmd() *cobra.Command {
	var accountID int64
	cmd := &cobra.Command{
		Use:   "force-import DUPLICATES.json",
		Short: "Insert previously flagged duplicate candidates anyway",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var candidates []service.DuplicateCandidate
			if err := json.Unmarshal(b, &candidates); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			inserted, err := a.importer.ForceImport(ctx, a.userID, accountID, candidates)
			if err != nil {
				return err
			}
			fmt.Printf("inserted %d of %d candidates\n", inserted, len(candidates))
			return nil
		}),
	}
	cmd.Flags().Int64Var(&accountID, "account", 0, "target account id")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func newApplyRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply-rules",
		Short: "Apply categorization rules to every uncategorized transaction",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			res, err := a.categorizer.ApplyRulesToAllUncategorized(ctx, a.userID)
			if err != nil {
				return err
			}
			fmt.Printf("categorized %d, conflicts %d\n", res.Categorized, res.Conflicts)
			return nil
		}),
	}
}

func newConflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "Show transactions whose best rule matches are tied",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			conflicts, err := a.categorizer.FindConflicts(ctx, a.userID)
			if err != nil {
				return err
			}
			for _, c := range conflicts {
				fmt.Printf("transaction %d: %s\n", c.TransactionID, c.TransactionDescription)
				for _, r := range c.ConflictingRules {
					fmt.Printf("  rule %d %q -> %s\n", r.RuleID, r.Pattern, r.CategoryName)
				}
			}
			fmt.Printf("%d conflicts\n", len(conflicts))
			return nil
		}),
	}
}

func newSetCategoryCmd() *cobra.Command {
	var categoryID int64
	cmd := &cobra.Command{
		Use:   "set-category TRANSACTION_ID...",
		Short: "Manually assign (or clear with --category 0) transaction categories",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			var category *int64
			if categoryID != 0 {
				category = &categoryID
			}
			if len(args) == 1 {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return a.categorizer.SetCategory(ctx, a.userID, id, category)
			}
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := parseID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			affected, err := a.categorizer.BulkCategorize(ctx, a.userID, ids, category)
			if err != nil {
				return err
			}
			fmt.Printf("updated %d of %d transactions\n", affected, len(ids))
			return nil
		}),
	}
	cmd.Flags().Int64Var(&categoryID, "category", 0, "category id (0 clears)")
	return cmd
}

func newReportCmd() *cobra.Command {
	var (
		startDate string
		endDate   string
		accountID int64
	)
	cmd := &cobra.Command{Use: "report", Short: "Spending and net worth reports"}
	cmd.PersistentFlags().StringVar(&startDate, "start", "", "start date (YYYY-MM-DD)")
	cmd.PersistentFlags().StringVar(&endDate, "end", "", "end date (YYYY-MM-DD)")
	cmd.PersistentFlags().Int64Var(&accountID, "account", 0, "restrict to one account")

	filters := func() repository.ReportFilters {
		return repository.ReportFilters{StartDate: startDate, EndDate: endDate, AccountID: accountID}
	}

	spending := &cobra.Command{
		Use:   "spending",
		Short: "Spending totals per category",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			rows, err := a.reports.SpendingByCategory(ctx, a.userID, filters())
			if err != nil {
				return err
			}
			for _, r := range rows {
				fmt.Printf("%s\t%s\n", r.CategoryName, r.TotalSpent.StringFixed(2))
			}
			return nil
		}),
	}

	monthly := &cobra.Command{
		Use:   "monthly",
		Short: "Category totals per month",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			rows, err := a.reports.SpendingByCategoryByMonth(ctx, a.userID, filters())
			if err != nil {
				return err
			}
			for _, r := range rows {
				fmt.Printf("%s\t%s\t%s\n", r.Month, r.Category, r.Total.StringFixed(2))
			}
			return nil
		}),
	}

	networth := &cobra.Command{
		Use:   "networth",
		Short: "Cumulative balance over time",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			rows, err := a.reports.NetWorthTrend(ctx, a.userID, filters())
			if err != nil {
				return err
			}
			for _, r := range rows {
				fmt.Printf("%s\t%s\n", r.Date, r.NetWorth.StringFixed(2))
			}
			return nil
		}),
	}

	cmd.AddCommand(spending, monthly, networth)
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Show or write configuration"}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			fmt.Printf("database.path = %s\n", cfg.Database.Path)
			fmt.Printf("database.migrations_path = %s\n", cfg.Database.MigrationsPath)
			fmt.Printf("import.date_sample_size = %d\n", cfg.Import.DateSampleSize)
			fmt.Printf("import.confidence_threshold = %g\n", cfg.Import.ConfidenceThreshold)
			fmt.Printf("log.level = %s\n", cfg.Log.Level)
			fmt.Printf("log.json = %t\n", cfg.Log.JSON)
			return nil
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return config.Save(cfg)
		},
	}

	cmd.AddCommand(show, initCmd)
	return cmd
}

func newResetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all data (schema is kept)",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to wipe data without --yes")
			}
			return a.maintenance.Reset(ctx)
		}),
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the wipe")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
