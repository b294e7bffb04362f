package database

import (
	"context"
	"testing"

	"wxsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.GetSetting(ctx, "op-1", models.SettingCorpID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.SetSetting(ctx, "op-1", models.SettingCorpID, "ww123"))

	value, err := db.GetSetting(ctx, "op-1", models.SettingCorpID)
	require.NoError(t, err)
	assert.Equal(t, "ww123", value)

	// overwrite via upsert
	require.NoError(t, db.SetSetting(ctx, "op-1", models.SettingCorpID, "ww456"))
	value, err = db.GetSetting(ctx, "op-1", models.SettingCorpID)
	require.NoError(t, err)
	assert.Equal(t, "ww456", value)

	// scoped per operator
	_, err = db.GetSetting(ctx, "op-2", models.SettingCorpID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetOperatorsWithSetting(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SetSetting(ctx, "op-b", models.SettingCorpID, "ww1"))
	require.NoError(t, db.SetSetting(ctx, "op-a", models.SettingCorpID, "ww2"))
	require.NoError(t, db.SetSetting(ctx, "op-c", models.SettingCorpID, ""))
	require.NoError(t, db.SetSetting(ctx, "op-d", models.SettingCorpRemark, "remark only"))

	operators, err := db.GetOperatorsWithSetting(ctx, models.SettingCorpID)
	require.NoError(t, err)
	assert.Equal(t, []string{"op-a", "op-b"}, operators)
}

func TestReplaceStaffAccounts(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.ReplaceStaffAccounts(ctx, "op-1", "corp-1", []string{"alice", "bob"}))

	accounts, err := db.GetStaffAccounts(ctx, "op-1", "corp-1")
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "alice", accounts[0].StaffID)
	assert.Equal(t, "bob", accounts[1].StaffID)

	// a second sync replaces the previous roster entirely
	require.NoError(t, db.ReplaceStaffAccounts(ctx, "op-1", "corp-1", []string{"carol"}))

	accounts, err = db.GetStaffAccounts(ctx, "op-1", "corp-1")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "carol", accounts[0].StaffID)
}
