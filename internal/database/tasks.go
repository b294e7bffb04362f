package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wxsync/internal/models"
)

// CreateTaskWithItems persists one task plus one item per staff account in a
// single transaction, so a task is never observed without its items.
func (db *DB) CreateTaskWithItems(ctx context.Context, task *models.SyncTask, staffIDs []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO sync_tasks (operator_id, corp_id, total_staff, success_count, fail_count, total_customers, status, created_at)
         VALUES (?, ?, ?, 0, 0, 0, ?, ?)`,
		task.OperatorID, task.CorpID, len(staffIDs), models.StatusPending, now,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}

	taskID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("task insert id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO sync_task_items (task_id, staff_id, status, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare item insert: %w", err)
	}
	defer stmt.Close()

	for _, staffID := range staffIDs {
		if _, err := stmt.ExecContext(ctx, taskID, staffID, models.StatusPending, now); err != nil {
			return fmt.Errorf("insert task item for %s: %w", staffID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit task: %w", err)
	}

	task.ID = taskID
	task.TotalStaff = len(staffIDs)
	task.Status = models.StatusPending
	task.CreatedAt = now
	return nil
}

func (db *DB) GetTask(ctx context.Context, id int64) (*models.SyncTask, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, operator_id, corp_id, total_staff, success_count, fail_count, total_customers,
                status, error_message, created_at, started_at, completed_at
         FROM sync_tasks WHERE id = ?`, id)

	var t models.SyncTask
	err := row.Scan(&t.ID, &t.OperatorID, &t.CorpID, &t.TotalStaff, &t.SuccessCount, &t.FailCount,
		&t.TotalCustomers, &t.Status, &t.ErrorMessage, &t.CreatedAt, &t.StartedAt, &t.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return &t, nil
}

func (db *DB) GetTasksByOperator(ctx context.Context, operatorID string, limit int) ([]models.SyncTask, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, operator_id, corp_id, total_staff, success_count, fail_count, total_customers,
                status, error_message, created_at, started_at, completed_at
         FROM sync_tasks WHERE operator_id = ? ORDER BY created_at DESC LIMIT ?`,
		operatorID, limit)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.SyncTask
	for rows.Next() {
		var t models.SyncTask
		err := rows.Scan(&t.ID, &t.OperatorID, &t.CorpID, &t.TotalStaff, &t.SuccessCount, &t.FailCount,
			&t.TotalCustomers, &t.Status, &t.ErrorMessage, &t.CreatedAt, &t.StartedAt, &t.CompletedAt)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// GetRunningTasks returns all tasks currently in the running state, used by
// the periodic sweep to re-reconcile tasks whose dispatch died mid-flight.
func (db *DB) GetRunningTasks(ctx context.Context) ([]models.SyncTask, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, operator_id, corp_id, total_staff, success_count, fail_count, total_customers,
                status, error_message, created_at, started_at, completed_at
         FROM sync_tasks WHERE status = ? ORDER BY created_at ASC`,
		models.StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("query running tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.SyncTask
	for rows.Next() {
		var t models.SyncTask
		err := rows.Scan(&t.ID, &t.OperatorID, &t.CorpID, &t.TotalStaff, &t.SuccessCount, &t.FailCount,
			&t.TotalCustomers, &t.Status, &t.ErrorMessage, &t.CreatedAt, &t.StartedAt, &t.CompletedAt)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// MarkTaskRunning transitions pending -> running. Returns false when the task
// was not pending, leaving it untouched.
func (db *DB) MarkTaskRunning(ctx context.Context, id int64) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE sync_tasks SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		models.StatusRunning, time.Now(), id, models.StatusPending)
	if err != nil {
		return false, fmt.Errorf("mark task running: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// IncrementTaskSuccess bumps the success counter and total customer count in
// one statement. Concurrent item completions must not lose updates, so this
// is never read-modify-write. Counters freeze once the task is terminal.
func (db *DB) IncrementTaskSuccess(ctx context.Context, id int64, customers int) error {
	_, err := db.ExecContext(ctx,
		`UPDATE sync_tasks SET success_count = success_count + 1, total_customers = total_customers + ?
         WHERE id = ? AND status = ?`,
		customers, id, models.StatusRunning)
	if err != nil {
		return fmt.Errorf("increment task success: %w", err)
	}
	return nil
}

func (db *DB) IncrementTaskFail(ctx context.Context, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE sync_tasks SET fail_count = fail_count + 1 WHERE id = ? AND status = ?`,
		id, models.StatusRunning)
	if err != nil {
		return fmt.Errorf("increment task fail: %w", err)
	}
	return nil
}

// FinishTask transitions running -> completed/failed. The status guard makes
// reconciliation idempotent: finishing an already-terminal task is a no-op.
func (db *DB) FinishTask(ctx context.Context, id int64, status string, errMsg string) (bool, error) {
	var msg *string
	if errMsg != "" {
		msg = &errMsg
	}
	result, err := db.ExecContext(ctx,
		`UPDATE sync_tasks SET status = ?, error_message = ?, completed_at = ? WHERE id = ? AND status = ?`,
		status, msg, time.Now(), id, models.StatusRunning)
	if err != nil {
		return false, fmt.Errorf("finish task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CountLiveItems counts items still pending or running for a task.
// Reconciliation reads this live instead of trusting the task counters.
func (db *DB) CountLiveItems(ctx context.Context, taskID int64) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_task_items WHERE task_id = ? AND status IN (?, ?)`,
		taskID, models.StatusPending, models.StatusRunning).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count live items: %w", err)
	}
	return count, nil
}
