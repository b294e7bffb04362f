package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wxsync/internal/models"
)

const itemColumns = `id, task_id, staff_id, status, customer_count, added_count, error_message, started_at, completed_at, created_at`

func scanItem(row interface{ Scan(...any) error }) (*models.SyncTaskItem, error) {
	var it models.SyncTaskItem
	err := row.Scan(&it.ID, &it.TaskID, &it.StaffID, &it.Status, &it.CustomerCount, &it.AddedCount,
		&it.ErrorMessage, &it.StartedAt, &it.CompletedAt, &it.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (db *DB) GetTaskItem(ctx context.Context, id int64) (*models.SyncTaskItem, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM sync_task_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task item: %w", err)
	}
	return item, nil
}

func (db *DB) GetItemsByTask(ctx context.Context, taskID int64) ([]models.SyncTaskItem, error) {
	return db.queryItems(ctx,
		`SELECT `+itemColumns+` FROM sync_task_items WHERE task_id = ? ORDER BY created_at ASC, id ASC`, taskID)
}

func (db *DB) GetPendingItems(ctx context.Context, taskID int64) ([]models.SyncTaskItem, error) {
	return db.queryItems(ctx,
		`SELECT `+itemColumns+` FROM sync_task_items WHERE task_id = ? AND status = ? ORDER BY id ASC`,
		taskID, models.StatusPending)
}

func (db *DB) queryItems(ctx context.Context, query string, args ...any) ([]models.SyncTaskItem, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query task items: %w", err)
	}
	defer rows.Close()

	var items []models.SyncTaskItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// MarkItemRunning transitions pending -> running. A redelivered job for an
// item that already reached a terminal state affects zero rows, which is how
// the worker detects and skips duplicates.
func (db *DB) MarkItemRunning(ctx context.Context, id int64) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE sync_task_items SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		models.StatusRunning, time.Now(), id, models.StatusPending)
	if err != nil {
		return false, fmt.Errorf("mark item running: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CompleteItem transitions running -> completed and records the counts.
func (db *DB) CompleteItem(ctx context.Context, id int64, customerCount, addedCount int) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE sync_task_items SET status = ?, customer_count = ?, added_count = ?, completed_at = ?
         WHERE id = ? AND status = ?`,
		models.StatusCompleted, customerCount, addedCount, time.Now(), id, models.StatusRunning)
	if err != nil {
		return false, fmt.Errorf("complete item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// FailItem transitions running -> failed with the captured error message.
func (db *DB) FailItem(ctx context.Context, id int64, errMsg string) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE sync_task_items SET status = ?, error_message = ?, completed_at = ?
         WHERE id = ? AND status = ?`,
		models.StatusFailed, errMsg, time.Now(), id, models.StatusRunning)
	if err != nil {
		return false, fmt.Errorf("fail item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ResetItem puts a failed item back to pending for a manual retry, clearing
// error, counts and timestamps.
func (db *DB) ResetItem(ctx context.Context, id int64) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE sync_task_items
         SET status = ?, error_message = NULL, customer_count = 0, added_count = 0, started_at = NULL, completed_at = NULL
         WHERE id = ? AND status = ?`,
		models.StatusPending, id, models.StatusFailed)
	if err != nil {
		return false, fmt.Errorf("reset item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
