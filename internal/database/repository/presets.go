package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CsvPresetRepo remembers the last successful column mapping per account, so
// repeat imports from the same bank skip the mapping step.
type CsvPresetRepo struct {
	db *sql.DB
}

func NewCsvPresetRepo(db *sql.DB) *CsvPresetRepo { return &CsvPresetRepo{db: db} }

func (r *CsvPresetRepo) Get(ctx context.Context, userID, accountID int64) (*CsvMappingPreset, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT p.account_id, p.mapping_json, p.date_format, p.debit_credit_logic, p.updated_at
	FROM csv_mapping_presets p
	JOIN accounts a ON p.account_id = a.id
	WHERE p.account_id = ? AND a.user_id = ?`, accountID, userID)

	var p CsvMappingPreset
	var format, logic sql.NullString
	var updated sql.NullTime
	if err := row.Scan(&p.AccountID, &p.MappingJSON, &format, &logic, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if format.Valid {
		p.DateFormat = &format.String
	}
	if logic.Valid {
		p.DebitCreditLogic = &logic.String
	}
	if updated.Valid {
		p.UpdatedAt = updated.Time
	}
	return &p, nil
}

func (r *CsvPresetRepo) Save(ctx context.Context, userID int64, p CsvMappingPreset) error {
	var id int64
	row := r.db.QueryRowContext(ctx, `SELECT id FROM accounts WHERE id = ? AND user_id = ?`, p.AccountID, userID)
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("account %d: %w", p.AccountID, ErrAccessDenied)
		}
		return err
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT OR REPLACE INTO csv_mapping_presets(account_id, mapping_json, date_format, debit_credit_logic, updated_at)
	VALUES(?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		p.AccountID, p.MappingJSON, p.DateFormat, p.DebitCreditLogic)
	return err
}
