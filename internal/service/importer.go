package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/spendviz/spendviz/internal/database/repository"
	"github.com/spendviz/spendviz/internal/dateformat"
)

// ImportService runs the CSV reconciliation pipeline: parse, detect the date
// format, normalize debit/credit columns, dedup against existing
// transactions and persist what survives.
type ImportService struct {
	Transactions *repository.TransactionRepo
	Accounts     *repository.AccountRepo
	Presets      *repository.CsvPresetRepo
	Log          *logrus.Logger

	// DateSampleSize caps how many date cells feed format detection;
	// ConfidenceThreshold gates whether detection is trusted at all.
	DateSampleSize      int
	ConfidenceThreshold float64
}

const (
	defaultDateSampleSize      = 20
	defaultConfidenceThreshold = 0.8
)

// File is one uploaded CSV.
type File struct {
	Name   string
	Reader io.Reader
}

// RowError records a skipped row (or a whole failed file when Row is nil).
type RowError struct {
	File  string
	Line  int
	Row   []string
	Cause string
}

// FileSummary reports per-file import statistics.
type FileSummary struct {
	FileName       string
	RowCount       int
	ImportedCount  int
	DuplicateCount int
	ErrorCount     int
	Errors         []RowError
}

// DuplicateCandidate carries the original mapped data of a row that hit the
// dedup set, so a later force-import can replay it unchanged.
type DuplicateCandidate struct {
	Date        string       `json:"date"`
	Description string       `json:"description"`
	Amount      string       `json:"amount,omitempty"`
	Debit       string       `json:"debit,omitempty"`
	Credit      string       `json:"credit,omitempty"`
	SplitType   string       `json:"split_type,omitempty"` // "debit" or "credit" under LayoutSplit
	Layout      AmountLayout `json:"layout"`
	DateFormat  string       `json:"date_format"`
}

// ImportResult is the batch-level outcome. Batches never fail atomically:
// each file succeeds or fails on its own and the counts reflect the partial
// result.
type ImportResult struct {
	BatchID            string
	InsertedCount      int
	DuplicateCount     int
	Duplicates         []DuplicateCandidate
	Errors             []RowError
	DetectedDateFormat string
	Files              []FileSummary
}

// mappedRow holds the raw cell strings a mapping extracted from one row.
type mappedRow struct {
	date        string
	description string
	amount      string
	debit       string
	credit      string
}

// ReconcileCSV imports one or more CSV files into an account. A parse
// failure or unreliable date format aborts only the affected file; remaining
// files continue independently.
func (s *ImportService) ReconcileCSV(ctx context.Context, userID, accountID int64, files []File, mapping []FieldRole, hasHeader bool, layout AmountLayout) (*ImportResult, error) {
	if err := ValidateMapping(mapping); err != nil {
		return nil, err
	}
	if layout != LayoutSingle && layout != LayoutSplit {
		return nil, fmt.Errorf("unknown debit/credit layout %q", layout)
	}
	if _, err := s.Accounts.Get(ctx, userID, accountID); err != nil {
		return nil, err
	}

	res := &ImportResult{BatchID: uuid.NewString()}

	seen, err := s.seedDedupSet(ctx, userID, accountID)
	if err != nil {
		return nil, fmt.Errorf("seed dedup set: %w", err)
	}

	for _, file := range files {
		summary := s.reconcileFile(ctx, userID, accountID, file, mapping, hasHeader, layout, seen, res)
		res.Files = append(res.Files, summary)
	}

	s.Log.WithFields(logrus.Fields{
		"batch":      res.BatchID,
		"account":    accountID,
		"files":      len(files),
		"inserted":   res.InsertedCount,
		"duplicates": res.DuplicateCount,
		"errors":     len(res.Errors),
	}).Info("csv import finished")
	return res, nil
}

// seedDedupSet keys every existing transaction of the account by
// date|description|amount. Stored dates are already canonical; anything that
// fails canonical parsing keeps its raw form, mirroring how it was stored.
func (s *ImportService) seedDedupSet(ctx context.Context, userID, accountID int64) (map[string]struct{}, error) {
	existing, err := s.Transactions.ListForAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, tx := range existing {
		date := tx.Date
		if normalized, ok := dateformat.Convert(tx.Date, dateformat.Canonical); ok {
			date = normalized
		}
		seen[dedupKey(date, tx.Description, tx.Amount)] = struct{}{}
	}
	return seen, nil
}

func (s *ImportService) reconcileFile(ctx context.Context, userID, accountID int64, file File, mapping []FieldRole, hasHeader bool, layout AmountLayout, seen map[string]struct{}, res *ImportResult) FileSummary {
	summary := FileSummary{FileName: file.Name}

	fileError := func(cause string) FileSummary {
		e := RowError{File: file.Name, Cause: cause}
		summary.Errors = append(summary.Errors, e)
		summary.ErrorCount++
		res.Errors = append(res.Errors, e)
		return summary
	}

	reader := csv.NewReader(file.Reader)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return fileError(fmt.Sprintf("error parsing CSV file: %v", err))
	}
	if hasHeader && len(records) > 0 {
		records = records[1:]
	}
	summary.RowCount = len(records)

	sampleSize := s.DateSampleSize
	if sampleSize <= 0 {
		sampleSize = defaultDateSampleSize
	}
	threshold := s.ConfidenceThreshold
	if threshold <= 0 {
		threshold = defaultConfidenceThreshold
	}

	detection := dateformat.Detect(collectDateSamples(records, mapping, sampleSize), sampleSize)
	if detection == nil || detection.Confidence < threshold {
		return fileError("could not reliably detect date format; ensure all dates are consistent")
	}
	format := detection.Format
	if res.DetectedDateFormat == "" {
		res.DetectedDateFormat = format
	}

	rowError := func(line int, row []string, cause string) {
		e := RowError{File: file.Name, Line: line, Row: row, Cause: cause}
		summary.Errors = append(summary.Errors, e)
		summary.ErrorCount++
		res.Errors = append(res.Errors, e)
	}

	for i, record := range records {
		line := i + 1
		if hasHeader {
			line++
		}
		row := extractRow(record, mapping)

		if row.date == "" || row.description == "" ||
			(row.amount == "" && row.debit == "" && row.credit == "") {
			rowError(line, record, "missing required fields")
			continue
		}

		date, ok := dateformat.Convert(row.date, format)
		if !ok {
			rowError(line, record, fmt.Sprintf("invalid date: %s", row.date))
			continue
		}

		switch layout {
		case LayoutSingle:
			amount, err := singleAmount(row)
			if err != nil {
				rowError(line, record, err.Error())
				continue
			}
			candidate := DuplicateCandidate{
				Date: row.date, Description: row.description,
				Amount: row.amount, Debit: row.debit, Credit: row.credit,
				Layout: layout, DateFormat: format,
			}
			s.insertOrFlag(ctx, userID, accountID, date, row.description, amount, candidate, seen, res, &summary,
				func(cause string) { rowError(line, record, cause) })

		case LayoutSplit:
			debit := parseAmountOrZero(row.debit)
			if row.debit != "" && !debit.IsZero() {
				candidate := DuplicateCandidate{
					Date: row.date, Description: row.description,
					Debit: row.debit, Credit: row.credit, SplitType: "debit",
					Layout: layout, DateFormat: format,
				}
				s.insertOrFlag(ctx, userID, accountID, date, row.description, debit.Abs().Neg(), candidate, seen, res, &summary,
					func(cause string) { rowError(line, record, cause) })
			}
			credit := parseAmountOrZero(row.credit)
			if row.credit != "" && !credit.IsZero() {
				candidate := DuplicateCandidate{
					Date: row.date, Description: row.description,
					Debit: row.debit, Credit: row.credit, SplitType: "credit",
					Layout: layout, DateFormat: format,
				}
				s.insertOrFlag(ctx, userID, accountID, date, row.description, credit.Abs(), candidate, seen, res, &summary,
					func(cause string) { rowError(line, record, cause) })
			}
		}
	}
	return summary
}

// insertOrFlag routes one transaction candidate: duplicates go to the
// duplicates list, everything else is persisted and its key recorded so
// within-batch repeats are caught too.
func (s *ImportService) insertOrFlag(ctx context.Context, userID, accountID int64, date, description string, amount decimal.Decimal, candidate DuplicateCandidate, seen map[string]struct{}, res *ImportResult, summary *FileSummary, onError func(cause string)) {
	key := dedupKey(date, description, amount)
	if _, dup := seen[key]; dup {
		res.Duplicates = append(res.Duplicates, candidate)
		res.DuplicateCount++
		summary.DuplicateCount++
		return
	}
	_, err := s.Transactions.Insert(ctx, userID, repository.Transaction{
		AccountID:   accountID,
		Date:        date,
		Description: description,
		Amount:      amount,
	})
	if err != nil {
		onError(fmt.Sprintf("insert: %v", err))
		return
	}
	seen[key] = struct{}{}
	res.InsertedCount++
	summary.ImportedCount++
}

// ForceImport replays previously flagged duplicate candidates, inserting
// them unconditionally. Only storage-level uniqueness violations are
// skipped; they are expected when a true duplicate is re-encountered.
func (s *ImportService) ForceImport(ctx context.Context, userID, accountID int64, candidates []DuplicateCandidate) (int, error) {
	if _, err := s.Accounts.Get(ctx, userID, accountID); err != nil {
		return 0, err
	}

	inserted := 0
	for _, c := range candidates {
		format := c.DateFormat
		if format == "" {
			format = dateformat.Canonical
		}
		date, ok := dateformat.Convert(c.Date, format)
		if !ok {
			continue
		}

		var amount decimal.Decimal
		if c.Layout == LayoutSplit {
			switch c.SplitType {
			case "debit":
				amount = parseAmountOrZero(c.Debit).Abs().Neg()
			case "credit":
				amount = parseAmountOrZero(c.Credit).Abs()
			default:
				continue
			}
		} else {
			if c.Amount != "" {
				a, err := parseAmount(c.Amount)
				if err != nil {
					continue
				}
				amount = a
			} else {
				amount = parseAmountOrZero(c.Debit).Sub(parseAmountOrZero(c.Credit))
			}
		}

		_, err := s.Transactions.Insert(ctx, userID, repository.Transaction{
			AccountID:   accountID,
			Date:        date,
			Description: c.Description,
			Amount:      amount,
		})
		if err != nil {
			var serr sqlite3.Error
			if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
				continue
			}
			return inserted, fmt.Errorf("force import: %w", err)
		}
		inserted++
	}

	s.Log.WithFields(logrus.Fields{
		"account":    accountID,
		"candidates": len(candidates),
		"inserted":   inserted,
	}).Info("force import finished")
	return inserted, nil
}

// LoadPreset returns the stored mapping for an account, or nil.
func (s *ImportService) LoadPreset(ctx context.Context, userID, accountID int64) ([]FieldRole, AmountLayout, error) {
	p, err := s.Presets.Get(ctx, userID, accountID)
	if err != nil || p == nil {
		return nil, "", err
	}
	mapping, err := DecodeMapping(p.MappingJSON)
	if err != nil {
		return nil, "", err
	}
	layout := LayoutSingle
	if p.DebitCreditLogic != nil {
		if l, err := ParseLayout(*p.DebitCreditLogic); err == nil {
			layout = l
		}
	}
	return mapping, layout, nil
}

// SavePreset remembers the mapping that just worked for an account.
func (s *ImportService) SavePreset(ctx context.Context, userID, accountID int64, mapping []FieldRole, layout AmountLayout, dateFormat string) error {
	mappingJSON, err := EncodeMapping(mapping)
	if err != nil {
		return err
	}
	logic := string(layout)
	p := repository.CsvMappingPreset{
		AccountID:        accountID,
		MappingJSON:      mappingJSON,
		DebitCreditLogic: &logic,
	}
	if dateFormat != "" {
		p.DateFormat = &dateFormat
	}
	return s.Presets.Save(ctx, userID, p)
}

func collectDateSamples(records [][]string, mapping []FieldRole, max int) []string {
	var samples []string
	for _, record := range records {
		if len(samples) >= max {
			break
		}
		for idx, role := range mapping {
			if role != RoleDate || idx >= len(record) {
				continue
			}
			if v := strings.TrimSpace(record[idx]); v != "" {
				samples = append(samples, v)
			}
		}
	}
	if len(samples) > max {
		samples = samples[:max]
	}
	return samples
}

func extractRow(record []string, mapping []FieldRole) mappedRow {
	var row mappedRow
	for idx, role := range mapping {
		if idx >= len(record) {
			break
		}
		value := strings.TrimSpace(record[idx])
		switch role {
		case RoleDate:
			row.date = value
		case RoleDescription:
			row.description = value
		case RoleAmount:
			row.amount = value
		case RoleDebit:
			row.debit = value
		case RoleCredit:
			row.credit = value
		}
	}
	return row
}

// singleAmount derives the signed amount under LayoutSingle: the amount
// column when mapped, otherwise debit minus credit with absent or
// non-numeric cells treated as zero.
func singleAmount(row mappedRow) (decimal.Decimal, error) {
	if row.amount != "" {
		a, err := parseAmount(row.amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid amount: %s", row.amount)
		}
		return a, nil
	}
	return parseAmountOrZero(row.debit).Sub(parseAmountOrZero(row.credit)), nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
}

func parseAmountOrZero(s string) decimal.Decimal {
	a, err := parseAmount(s)
	if err != nil {
		return decimal.Zero
	}
	return a
}

// dedupKey builds the composite duplicate-detection key. Amounts are
// formatted with trailing fraction zeros trimmed so "-4.50" and "-4.5"
// produce the same key.
func dedupKey(date, description string, amount decimal.Decimal) string {
	return date + "|" + description + "|" + amountKey(amount)
}

func amountKey(d decimal.Decimal) string {
	s := d.String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" {
		s = "0"
	}
	return s
}
