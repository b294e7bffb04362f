package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SetSetting stores or overwrites one per-operator key/value pair.
func (db *DB) SetSetting(ctx context.Context, operatorID, key, value string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO settings (operator_id, key, value, updated_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(operator_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		operatorID, key, value, time.Now())
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

func (db *DB) GetSetting(ctx context.Context, operatorID, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE operator_id = ? AND key = ?`,
		operatorID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// GetOperatorsWithSetting lists every operator that has a non-empty value for
// the key. The token refresh schedule uses this to find configured corps.
func (db *DB) GetOperatorsWithSetting(ctx context.Context, key string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT operator_id FROM settings WHERE key = ? AND value != '' ORDER BY operator_id`,
		key)
	if err != nil {
		return nil, fmt.Errorf("query operators: %w", err)
	}
	defer rows.Close()

	var operators []string
	for rows.Next() {
		var op string
		if err := rows.Scan(&op); err != nil {
			return nil, fmt.Errorf("scan operator: %w", err)
		}
		operators = append(operators, op)
	}
	return operators, rows.Err()
}
