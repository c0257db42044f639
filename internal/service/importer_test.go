package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spendviz/spendviz/internal/database/repository"
)

func singleMapping() []FieldRole {
	return []FieldRole{RoleDate, RoleDescription, RoleAmount}
}

func splitMapping() []FieldRole {
	return []FieldRole{RoleDate, RoleDescription, RoleDebit, RoleCredit}
}

func csvFile(name string, lines ...string) File {
	return File{Name: name, Reader: strings.NewReader(strings.Join(lines, "\n"))}
}

func TestReconcileCSVBasic(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env := newTestEnv(t)
	acct := env.mustAccount(t, "Checking")

	res, err := env.importer.ReconcileCSV(ctx, env.userID, acct,
		[]File{csvFile("jan.csv",
			"Date,Description,Amount",
			"2024-01-15,WOOLWORTHS 1234,-53.20",
			"2024-01-16,SALARY,2500.00",
			"2024-01-17,SHELL GAS,-40.00",
		)},
		singleMapping(), true, LayoutSingle)
	require.NoError(t, err)
	require.NotEmpty(t, res.BatchID)
	require.Equal(t, 3, res.InsertedCount)
	require.Equal(t, 0, res.DuplicateCount)
	require.Empty(t, res.Errors)
	require.Equal(t, "2006-01-02", res.DetectedDateFormat)
	require.Len(t, res.Files, 1)
	require.Equal(t, 3, res.Files[0].RowCount)
	require.Equal(t, 3, res.Files[0].ImportedCount)

	txs, err := env.transactions.ListForAccount(ctx, env.userID, acct)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	for _, tx := range txs {
		if tx.Description == "SALARY" {
			require.True(t, tx.Amount.Equal(mustDecimal(t, "2500.00")))
			require.Equal(t, "2024-01-16", tx.Date)
		}
	}
}

func TestReconcileCSVNormalizesDetectedFormat(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env := newTestEnv(t)
	acct := env.mustAccount(t, "Credit")

	// Day 25 rules out month-first, so these resolve day-first and are
	// stored canonically.
	res, err := env.importer.ReconcileCSV(ctx, env.userID, acct,
		[]File{csvFile("eu.csv",
			"25/12/2023,GIFT SHOP,-30.00",
			"26/12/2023,RETURNS,15.00",
		)},
		singleMapping(), false, LayoutSingle)
	require.NoError(t, err)
	require.Equal(t, 2, res.InsertedCount)
	require.Equal(t, "02/01/2006", res.DetectedDateFormat)

	txs, err := env.transactions.ListForAccount(ctx, env.userID, acct)
	require.NoError(t, err)
	for _, tx := range txs {
		require.Regexp(t, `^2023-12-\d\d$`, tx.Date)
	}
}

func TestReconcileCSVDedupAcrossImports(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env := newTestEnv(t)
	acct := env.mustAccount(t, "Checking")

	lines := []string{
		"2024-01-15,COFFEE CART,-4.50",
		"2024-01-16,SALARY,2500.00",
	}
	res, err := env.importer.ReconcileCSV(ctx, env.userID, acct,
		[]File{csvFile("first.csv", lines...)}, singleMapping(), false, LayoutSingle)
	require.NoError(t, err)
	require.Equal(t, 2, res.InsertedCount)

	// Same rows plus one with a different amount: only the new amount is a
	// distinct transaction.
	res, err = env.importer.ReconcileCSV(ctx, env.userID, acct,
		[]File{csvFile("second.csv",
			"2024-01-15,COFFEE CART,-4.50",
			"2024-01-16,SALARY,2500.00",
			"2024-01-15,COFFEE CART,-4.51",
		)},
		singleMapping(), false, LayoutSingle)
	require.NoError(t, err)
	require.Equal(t, 1, res.InsertedCount)
	require.Equal(t, 2, res.DuplicateCount)
	require.Len(t, res.Duplicates, 2)

	txs, err := env.transactions.ListForAccount(ctx, env.userID, acct)
	require.NoError(t, err)
	require.Len(t, txs, 3)
}

func TestReconcileCSVDedupIgnoresTrailingZeros(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env := newTestEnv(t)
	acct := env.mustAccount(t, "Checking")

	_, err := env.importer.ReconcileCSV(ctx, env.userID, acct,
		[]File{csvFile("a.csv", "2024-01-15,COFFEE CART,-4.50")},
		singleMapping(), false, LayoutSingle)
	require.NoError(t, err)

	// "-4.5" and "-4.50" are the same amount and must collide.
	res, err := env.importer.ReconcileCSV(ctx, env.userID, acct,
		[]File{csvFile("b.csv", "2024-01-15,COFFEE CART,-4.5")},
		singleMapping(), false, LayoutSingle)
	require.NoError(t, err)
	require.Equal(t, 0, res.InsertedCount)
	require.Equal(t, 1, res.DuplicateCount)
}

func TestReconcileCSVWithinBatchDedup(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env := newTestEnv(t)
	acct := env.mustAccount(t, "Checking")

	res, err := env.importer.ReconcileCSV(ctx, env.userID, acct,
		[]File{csvFile("dupes.csv",
			"2024-01-15,COFFEE CART,-4.50",
			"2024-01-15,COFFEE CART,-4.50",
		)},
		singleMapping(), false, LayoutSingle)
	require.NoError(t, err)
	require.Equal(t, 1, res.InsertedCount)
	require.Equal(t, 1, res.DuplicateCount)
}

func TestReconcileCSVSplitLayout(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env := newTestEnv(t)
	acct := env.mustAccount(t, "Checking")

	res, err := env.importer.ReconcileCSV(ctx, env.userID, acct,
		[]File{csvFile("split.csv",
			"2024-01-15,GROCERIES,52.10,",
			"2024-01-16,REFUND,,12.00",
			"2024-01-17,MIXED ROW,10.00,3.00",
			"2024-01-18,ZERO ROW,0.00,0",
		)},
		splitMapping(), false, LayoutSplit)
	require.NoError(t, err)
	// One debit, one credit, two from the mixed row; the all-zero row
	// yields nothing and is not an error.
	require.Equal(t, 4, res.InsertedCount)
	require.Empty(t, res.Errors)

	txs, err := env.transactions.ListForAccount(ctx, env.userID, acct)
	require.NoError(t, err)
	require.Len(t, txs, 4)

	byDesc := map[string][]string{}
	for _, tx := range txs {
		byDesc[tx.Description] = append(byDesc[tx.Description], tx.Amount.String())
	}
	require.Equal(t, []string{"-52.1"}, byDesc["GROCERIES"])
	require.Equal(t, []string{"12"}, byDesc["REFUND"])
	require.ElementsMatch(t, []string{"-10", "3"}, byDesc["MIXED ROW"])
	require.Empty(t, byDesc["ZERO ROW"])
}

func TestReconcileCSVSplitNegatesDebitMagnitude(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env := newTestEnv(t)
	acct := env.mustAccount(t, "Checking")

	// Some banks emit debits already signed; split layout normalizes on
	// magnitude so the sign converges either way.
	res, err := env.importer.ReconcileCSV(ctx, env.userID, acct,
		[]File{csvFile("signed.csv", "2024-01-15,GROCERIES,-52.10,")},
		splitMapping(), false, LayoutSplit)
	require.NoError(t, err)
	require.Equal(t, 1, res.InsertedCount)

	txs, err := env.transactions.ListForAccount(ctx, env.userID, acct)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, "-52.1", txs[0].Amount.String())
}

func TestReconcileCSVUnreliableDatesAbortOnlyThatFile(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env := newTestEnv(t)
	acct := env.mustAccount(t, "Checking")

	res, err := env.importer.ReconcileCSV(ctx, env.userID, acct,
		[]File{
			csvFile("bad.csv",
				"sometime in january,COFFEE,-4.50",
				"later that week,LUNCH,-12.00",
			),
			csvFile("good.csv",
				"2024-01-15,COFFEE,-4.50",
			),
		},
		singleMapping(), false, LayoutSingle)
	require.NoError(t, err)
	require.Equal(t, 1, res.InsertedCount)
	require.Len(t, res.Files, 2)
	require.Equal(t, 0, res.Files[0].ImportedCount)
	require.Equal(t, 1, res.Files[0].ErrorCount)
	require.Contains(t, res.Files[0].Errors[0].Cause, "date format")
	require.Equal(t, 1, res.Files[1].ImportedCount)
}

func TestReconcileCSVRowLevelErrors(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env := newTestEnv(t)
	acct := env.mustAccount(t, "Checking")

	res, err := env.importer.ReconcileCSV(ctx, env.userID, acct,
		[]File{csvFile("mixed.csv",
			"2024-01-15,COFFEE,-4.50",
			"2024-01-16,,-12.00",
			"2024-01-17,LUNCH,not-a-number",
			"2024-01-18,DINNER,-30.00",
		)},
		singleMapping(), false, LayoutSingle)
	require.NoError(t, err)
	require.Equal(t, 2, res.InsertedCount)
	require.Len(t, res.Errors, 2)
	require.Equal(t, "missing required fields", res.Errors[0].Cause)
	require.Equal(t, 2, res.Errors[0].Line)
	require.Contains(t, res.Errors[1].Cause, "invalid amount")
	require.Equal(t, 3, res.Errors[1].Line)
}

func TestReconcileCSVRejectsBadInput(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env := newTestEnv(t)
	acct := env.mustAccount(t, "Checking")

	_, err := env.importer.ReconcileCSV(ctx, env.userID, acct, nil,
		[]FieldRole{RoleDescription, RoleAmount}, false, LayoutSingle)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no date column")

	_, err = env.importer.ReconcileCSV(ctx, env.userID, acct, nil,
		singleMapping(), false, AmountLayout("sideways"))
	require.Error(t, err)

	_, err = env.importer.ReconcileCSV(ctx, env.userID, acct+999, nil,
		singleMapping(), false, LayoutSingle)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestForceImportReplaysDuplicates(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env := newTestEnv(t)
	acct := env.mustAccount(t, "Checking")

	_, err := env.importer.ReconcileCSV(ctx, env.userID, acct,
		[]File{csvFile("first.csv", "2024-01-15,COFFEE CART,-4.50")},
		singleMapping(), false, LayoutSingle)
	require.NoError(t, err)

	res, err := env.importer.ReconcileCSV(ctx, env.userID, acct,
		[]File{csvFile("second.csv", "2024-01-15,COFFEE CART,-4.50")},
		singleMapping(), false, LayoutSingle)
	require.NoError(t, err)
	require.Len(t, res.Duplicates, 1)

	inserted, err := env.importer.ForceImport(ctx, env.userID, acct, res.Duplicates)
	require.NoError(t, err)
	require.Equal(t, 1, inserted)

	txs, err := env.transactions.ListForAccount(ctx, env.userID, acct)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	for _, tx := range txs {
		require.Equal(t, "2024-01-15", tx.Date)
		require.Equal(t, "-4.5", tx.Amount.String())
	}
}

func TestForceImportSplitCandidates(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env := newTestEnv(t)
	acct := env.mustAccount(t, "Checking")

	candidates := []DuplicateCandidate{
		{Date: "15/01/2024", Description: "GROCERIES", Debit: "52.10", SplitType: "debit", Layout: LayoutSplit, DateFormat: "02/01/2006"},
		{Date: "16/01/2024", Description: "REFUND", Credit: "12.00", SplitType: "credit", Layout: LayoutSplit, DateFormat: "02/01/2006"},
	}
	inserted, err := env.importer.ForceImport(ctx, env.userID, acct, candidates)
	require.NoError(t, err)
	require.Equal(t, 2, inserted)

	txs, err := env.transactions.ListForAccount(ctx, env.userID, acct)
	require.NoError(t, err)
	byDesc := map[string]string{}
	for _, tx := range txs {
		byDesc[tx.Description] = tx.Amount.String()
	}
	require.Equal(t, "-52.1", byDesc["GROCERIES"])
	require.Equal(t, "12", byDesc["REFUND"])
}

func TestPresetRoundTrip(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env := newTestEnv(t)
	acct := env.mustAccount(t, "Credit")

	mapping, layout, err := env.importer.LoadPreset(ctx, env.userID, acct)
	require.NoError(t, err)
	require.Nil(t, mapping)

	require.NoError(t, env.importer.SavePreset(ctx, env.userID, acct, splitMapping(), LayoutSplit, "02/01/2006"))

	mapping, layout, err = env.importer.LoadPreset(ctx, env.userID, acct)
	require.NoError(t, err)
	require.Equal(t, splitMapping(), mapping)
	require.Equal(t, LayoutSplit, layout)

	// Saving again replaces rather than duplicates.
	require.NoError(t, env.importer.SavePreset(ctx, env.userID, acct, singleMapping(), LayoutSingle, ""))
	mapping, layout, err = env.importer.LoadPreset(ctx, env.userID, acct)
	require.NoError(t, err)
	require.Equal(t, singleMapping(), mapping)
	require.Equal(t, LayoutSingle, layout)
}

func TestImportThenApplyRules(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env := newTestEnv(t)
	acct := env.mustAccount(t, "Checking")
	groceries := env.mustCategory(t, "Groceries")
	env.mustRule(t, "woolworths", groceries)

	_, err := env.importer.ReconcileCSV(ctx, env.userID, acct,
		[]File{csvFile("jan.csv",
			"2024-01-15,WOOLWORTHS 1234,-53.20",
			"2024-01-16,SALARY,2500.00",
		)},
		singleMapping(), false, LayoutSingle)
	require.NoError(t, err)

	res, err := env.categorizer.ApplyRulesToAllUncategorized(ctx, env.userID)
	require.NoError(t, err)
	require.Equal(t, 1, res.Categorized)
}
