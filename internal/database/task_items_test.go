package database

import (
	"context"
	"testing"

	"wxsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	task := createTestTask(t, db, "alice")

	items, err := db.GetItemsByTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	item := items[0]

	ok, err := db.MarkItemRunning(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := db.GetTaskItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, got.Status)
	assert.NotNil(t, got.StartedAt)

	ok, err = db.CompleteItem(ctx, item.ID, 25, 10)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = db.GetTaskItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, 25, got.CustomerCount)
	assert.Equal(t, 10, got.AddedCount)
	assert.NotNil(t, got.CompletedAt)
}

func TestMarkItemRunningSkipsDuplicates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	task := createTestTask(t, db, "alice")

	items, err := db.GetItemsByTask(ctx, task.ID)
	require.NoError(t, err)
	item := items[0]

	ok, err := db.MarkItemRunning(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// a redelivered job sees zero rows affected
	ok, err = db.MarkItemRunning(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = db.CompleteItem(ctx, item.ID, 5, 5)
	require.NoError(t, err)
	require.True(t, ok)

	// and neither does a completed item go back to running
	ok, err = db.MarkItemRunning(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFailItem(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	task := createTestTask(t, db, "alice")

	items, err := db.GetItemsByTask(ctx, task.ID)
	require.NoError(t, err)
	item := items[0]

	// failing a pending item is rejected, it must be running first
	ok, err := db.FailItem(ctx, item.ID, "boom")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = db.MarkItemRunning(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = db.FailItem(ctx, item.ID, "api error 40003")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := db.GetTaskItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "api error 40003", *got.ErrorMessage)
}

func TestResetItem(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	task := createTestTask(t, db, "alice")

	items, err := db.GetItemsByTask(ctx, task.ID)
	require.NoError(t, err)
	item := items[0]

	// only failed items can be reset
	ok, err := db.ResetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = db.MarkItemRunning(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = db.FailItem(ctx, item.ID, "timeout")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = db.ResetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := db.GetTaskItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Nil(t, got.ErrorMessage)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
	assert.Equal(t, 0, got.CustomerCount)
	assert.Equal(t, 0, got.AddedCount)
}

func TestGetPendingItems(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	task := createTestTask(t, db, "alice", "bob", "carol")

	items, err := db.GetItemsByTask(ctx, task.ID)
	require.NoError(t, err)

	ok, err := db.MarkItemRunning(ctx, items[0].ID)
	require.NoError(t, err)
	require.True(t, ok)

	pending, err := db.GetPendingItems(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	for _, item := range pending {
		assert.Equal(t, models.StatusPending, item.Status)
	}
}

func TestGetTaskItemNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetTaskItem(context.Background(), 12345)
	assert.ErrorIs(t, err, ErrNotFound)
}
