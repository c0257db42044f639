package service

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldRole tags what a CSV column holds. Columns are mapped positionally;
// roles the pipeline does not recognize are rejected at the boundary instead
// of being carried as loose strings.
type FieldRole string

const (
	RoleIgnore      FieldRole = "ignore"
	RoleDate        FieldRole = "date"
	RoleDescription FieldRole = "description"
	RoleAmount      FieldRole = "amount"
	RoleDebit       FieldRole = "debit"
	RoleCredit      FieldRole = "credit"
)

// AmountLayout selects how transaction amounts are derived from a row.
type AmountLayout string

const (
	// LayoutSingle reads one signed amount column, or a literal
	// debit-minus-credit pair folded into one signed value.
	LayoutSingle AmountLayout = "single"
	// LayoutSplit treats debit and credit as separate unsigned magnitude
	// columns; one row may yield zero, one or two transactions.
	LayoutSplit AmountLayout = "split"
)

// ParseMapping turns a comma-separated role list ("date,description,amount")
// into a validated column mapping.
func ParseMapping(spec string) ([]FieldRole, error) {
	parts := strings.Split(spec, ",")
	mapping := make([]FieldRole, 0, len(parts))
	for i, p := range parts {
		role := FieldRole(strings.ToLower(strings.TrimSpace(p)))
		switch role {
		case RoleIgnore, RoleDate, RoleDescription, RoleAmount, RoleDebit, RoleCredit:
			mapping = append(mapping, role)
		default:
			return nil, fmt.Errorf("column %d: unknown field role %q", i, p)
		}
	}
	return mapping, ValidateMapping(mapping)
}

// ValidateMapping checks that a mapping can produce complete transactions:
// a date column, a description column, and at least one amount source.
func ValidateMapping(mapping []FieldRole) error {
	var hasDate, hasDescription, hasAmount bool
	for _, role := range mapping {
		switch role {
		case RoleDate:
			hasDate = true
		case RoleDescription:
			hasDescription = true
		case RoleAmount, RoleDebit, RoleCredit:
			hasAmount = true
		}
	}
	if !hasDate {
		return fmt.Errorf("mapping has no date column")
	}
	if !hasDescription {
		return fmt.Errorf("mapping has no description column")
	}
	if !hasAmount {
		return fmt.Errorf("mapping has no amount, debit or credit column")
	}
	return nil
}

// ParseLayout validates a debit/credit layout selector.
func ParseLayout(s string) (AmountLayout, error) {
	switch AmountLayout(strings.ToLower(strings.TrimSpace(s))) {
	case LayoutSingle:
		return LayoutSingle, nil
	case LayoutSplit:
		return LayoutSplit, nil
	default:
		return "", fmt.Errorf("unknown debit/credit layout %q", s)
	}
}

// EncodeMapping and DecodeMapping round-trip a mapping through the JSON form
// stored in csv_mapping_presets.
func EncodeMapping(mapping []FieldRole) (string, error) {
	b, err := json.Marshal(mapping)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeMapping(s string) ([]FieldRole, error) {
	var mapping []FieldRole
	if err := json.Unmarshal([]byte(s), &mapping); err != nil {
		return nil, fmt.Errorf("decode mapping: %w", err)
	}
	return mapping, ValidateMapping(mapping)
}
