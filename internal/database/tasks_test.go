package database

import (
	"context"
	"path/filepath"
	"testing"

	"wxsync/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestTask(t *testing.T, db *DB, staffIDs ...string) *models.SyncTask {
	t.Helper()
	task := &models.SyncTask{OperatorID: "op-1", CorpID: "corp-1"}
	require.NoError(t, db.CreateTaskWithItems(context.Background(), task, staffIDs))
	return task
}

func TestCreateTaskWithItems(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task := createTestTask(t, db, "alice", "bob", "carol")
	assert.NotZero(t, task.ID)
	assert.Equal(t, 3, task.TotalStaff)
	assert.Equal(t, models.StatusPending, task.Status)

	items, err := db.GetItemsByTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	for _, item := range items {
		assert.Equal(t, task.ID, item.TaskID)
		assert.Equal(t, models.StatusPending, item.Status)
	}

	got, err := db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "op-1", got.OperatorID)
	assert.Equal(t, "corp-1", got.CorpID)
	assert.Equal(t, 0, got.SuccessCount)
}

func TestGetTaskNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetTask(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkTaskRunning(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	task := createTestTask(t, db, "alice")

	ok, err := db.MarkTaskRunning(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, got.Status)
	assert.NotNil(t, got.StartedAt)

	// second attempt finds the task no longer pending
	ok, err = db.MarkTaskRunning(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIncrementCountersFreezeOnTerminalTask(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	task := createTestTask(t, db, "alice", "bob")

	ok, err := db.MarkTaskRunning(ctx, task.ID)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, db.IncrementTaskSuccess(ctx, task.ID, 42))
	require.NoError(t, db.IncrementTaskFail(ctx, task.ID))

	got, err := db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SuccessCount)
	assert.Equal(t, 1, got.FailCount)
	assert.Equal(t, 42, got.TotalCustomers)

	finished, err := db.FinishTask(ctx, task.ID, models.StatusCompleted, "")
	require.NoError(t, err)
	assert.True(t, finished)

	// late increments against a finished task change nothing
	require.NoError(t, db.IncrementTaskSuccess(ctx, task.ID, 7))
	require.NoError(t, db.IncrementTaskFail(ctx, task.ID))

	got, err = db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SuccessCount)
	assert.Equal(t, 1, got.FailCount)
	assert.Equal(t, 42, got.TotalCustomers)
}

func TestFinishTaskIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	task := createTestTask(t, db, "alice")

	ok, err := db.MarkTaskRunning(ctx, task.ID)
	require.NoError(t, err)
	require.True(t, ok)

	finished, err := db.FinishTask(ctx, task.ID, models.StatusFailed, "all items failed")
	require.NoError(t, err)
	assert.True(t, finished)

	// a second finish is a no-op and does not overwrite the outcome
	finished, err = db.FinishTask(ctx, task.ID, models.StatusCompleted, "")
	require.NoError(t, err)
	assert.False(t, finished)

	got, err := db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "all items failed", *got.ErrorMessage)
	assert.NotNil(t, got.CompletedAt)
}

func TestCountLiveItems(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	task := createTestTask(t, db, "alice", "bob", "carol")

	count, err := db.CountLiveItems(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	items, err := db.GetItemsByTask(ctx, task.ID)
	require.NoError(t, err)

	ok, err := db.MarkItemRunning(ctx, items[0].ID)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = db.CompleteItem(ctx, items[0].ID, 10, 5)
	require.NoError(t, err)
	require.True(t, ok)

	count, err = db.CountLiveItems(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// a running item still counts as live
	ok, err = db.MarkItemRunning(ctx, items[1].ID)
	require.NoError(t, err)
	require.True(t, ok)

	count, err = db.CountLiveItems(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestGetTasksByOperator(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	createTestTask(t, db, "alice")
	createTestTask(t, db, "bob")

	other := &models.SyncTask{OperatorID: "op-2", CorpID: "corp-2"}
	require.NoError(t, db.CreateTaskWithItems(ctx, other, []string{"dave"}))

	tasks, err := db.GetTasksByOperator(ctx, "op-1", 50)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	tasks, err = db.GetTasksByOperator(ctx, "op-1", 1)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestGetRunningTasks(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := createTestTask(t, db, "alice")
	second := createTestTask(t, db, "bob")

	ok, err := db.MarkTaskRunning(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, ok)

	running, err := db.GetRunningTasks(ctx)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, first.ID, running[0].ID)

	_ = second
}
