package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wxsync/internal/wxwork"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncRoster(t *testing.T) {
	env := setupEnv(t)
	env.configureCorp(t)
	env.api.followUsers = []string{"alice", "bob"}
	ctx := context.Background()

	logger := zerolog.Nop()
	roster := NewRosterService(env.db, env.creds, env.api, &logger)

	count, err := roster.SyncRoster(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	accounts, err := env.db.GetStaffAccounts(ctx, "op-1", "ww123")
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	// the next sync reflects departures
	env.api.followUsers = []string{"bob"}
	count, err = roster.SyncRoster(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	accounts, err = env.db.GetStaffAccounts(ctx, "op-1", "ww123")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "bob", accounts[0].StaffID)
}

func TestSyncRosterRequiresCorp(t *testing.T) {
	env := setupEnv(t)
	logger := zerolog.Nop()
	roster := NewRosterService(env.db, env.creds, env.api, &logger)

	_, err := roster.SyncRoster(context.Background(), "op-1")
	assert.ErrorIs(t, err, ErrCorpNotConfigured)
}

func TestListCustomersPagination(t *testing.T) {
	env := setupEnv(t)
	env.seedContacts("alice", 5)

	_, jobs := startTask(t, env, "alice")
	env.runJob(t, jobs[0])

	logger := zerolog.Nop()
	customers := NewCustomerService(env.db, env.creds, &logger)
	ctx := context.Background()

	page, err := customers.ListCustomers(ctx, "op-1", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Len(t, page.Customers, 2)

	page, err = customers.ListCustomers(ctx, "op-1", 3, 2)
	require.NoError(t, err)
	assert.Len(t, page.Customers, 1)

	// page defaults kick in for bogus values
	page, err = customers.ListCustomers(ctx, "op-1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Len(t, page.Customers, 5)
}

func TestExportUnionIDs(t *testing.T) {
	env := setupEnv(t)
	env.seedContacts("alice", 3)

	_, jobs := startTask(t, env, "alice")
	env.runJob(t, jobs[0])

	logger := zerolog.Nop()
	exportPath := t.TempDir()
	exports := NewExportService(env.db, env.creds, exportPath, &logger)

	filePath, err := exports.ExportUnionIDs(context.Background(), "op-1")
	require.NoError(t, err)
	assert.Equal(t, exportPath, filepath.Dir(filePath))

	data, err := os.ReadFile(filePath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 3)
	for _, line := range lines {
		assert.Contains(t, line, "alice-union-")
	}
}

func TestExportCustomersToExcel(t *testing.T) {
	env := setupEnv(t)
	env.api.mu.Lock()
	env.api.contacts["alice"] = []wxwork.Contact{
		{ExternalUserID: "ext-1", Name: "Customer One", UnionID: "union-1", TagIDs: []string{"t1"}},
	}
	env.api.mu.Unlock()

	_, jobs := startTask(t, env, "alice")
	env.runJob(t, jobs[0])

	logger := zerolog.Nop()
	exports := NewExportService(env.db, env.creds, t.TempDir(), &logger)

	filePath, err := exports.ExportCustomersToExcel(context.Background(), "op-1")
	require.NoError(t, err)

	info, err := os.Stat(filePath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
	assert.True(t, strings.HasSuffix(filePath, ".xlsx"))
}
