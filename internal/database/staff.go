package database

import (
	"context"
	"fmt"
	"time"

	"wxsync/internal/models"
)

// ReplaceStaffAccounts swaps the stored roster for an operator's corp with the
// given staff ids in one transaction.
func (db *DB) ReplaceStaffAccounts(ctx context.Context, operatorID, corpID string, staffIDs []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM staff_accounts WHERE operator_id = ? AND corp_id = ?`,
		operatorID, corpID); err != nil {
		return fmt.Errorf("clear staff accounts: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO staff_accounts (operator_id, corp_id, staff_id, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare staff insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, staffID := range staffIDs {
		if _, err := stmt.ExecContext(ctx, operatorID, corpID, staffID, now); err != nil {
			return fmt.Errorf("insert staff %s: %w", staffID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit roster: %w", err)
	}
	return nil
}

func (db *DB) GetStaffAccounts(ctx context.Context, operatorID, corpID string) ([]models.StaffAccount, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, operator_id, corp_id, staff_id, created_at
         FROM staff_accounts WHERE operator_id = ? AND corp_id = ? ORDER BY id ASC`,
		operatorID, corpID)
	if err != nil {
		return nil, fmt.Errorf("query staff accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.StaffAccount
	for rows.Next() {
		var a models.StaffAccount
		if err := rows.Scan(&a.ID, &a.OperatorID, &a.CorpID, &a.StaffID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan staff account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
