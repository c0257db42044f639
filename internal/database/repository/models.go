package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account represents an account row.
type Account struct {
	ID          int64
	UserID      int64
	Name        string
	Type        *string
	Institution *string
	CreatedAt   time.Time
}

// Category represents a category row. ParentID forms a tree.
type Category struct {
	ID        int64
	UserID    int64
	Name      string
	ParentID  *int64
	CreatedAt time.Time
}

// Transaction represents a transaction row. Dates are canonical YYYY-MM-DD
// strings; amounts are signed (negative = debit/expense).
type Transaction struct {
	ID          int64
	AccountID   int64
	Date        string
	Description string
	Amount      decimal.Decimal
	CategoryID  *int64
	CreatedAt   time.Time

	// Populated on joined listings only.
	AccountName  *string
	CategoryName *string
}

// Rule represents a categorization rule. Precedence is never stored: it is
// derived from match specificity at evaluation time, with id-descending
// retrieval order as the recency tie-break.
type Rule struct {
	ID           int64
	UserID       int64
	Pattern      string
	CategoryID   int64
	CategoryName string
	CreatedAt    time.Time
}

// CsvMappingPreset stores a remembered per-account column mapping.
type CsvMappingPreset struct {
	AccountID        int64
	MappingJSON      string
	DateFormat       *string
	DebitCreditLogic *string
	UpdatedAt        time.Time
}
