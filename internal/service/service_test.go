package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"wxsync/internal/database"
	"wxsync/internal/events"
	"wxsync/internal/models"
	"wxsync/internal/repository"
	"wxsync/internal/wxwork"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeContactSource plays the WeChat Work API with canned data.
type fakeContactSource struct {
	mu          sync.Mutex
	token       string
	expiresIn   int
	tokenErr    error
	tokenCalls  int
	followUsers []string
	contacts    map[string][]wxwork.Contact
	fetchErr    map[string]error
	pageSize    int
}

func newFakeContactSource() *fakeContactSource {
	return &fakeContactSource{
		token:     "tok-test",
		expiresIn: 7200,
		contacts:  make(map[string][]wxwork.Contact),
		fetchErr:  make(map[string]error),
		pageSize:  2,
	}
}

func (f *fakeContactSource) GetAccessToken(ctx context.Context, corpID, corpSecret string) (string, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenCalls++
	if f.tokenErr != nil {
		return "", 0, f.tokenErr
	}
	return f.token, f.expiresIn, nil
}

func (f *fakeContactSource) ListFollowUsers(ctx context.Context, accessToken string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.followUsers...), nil
}

func (f *fakeContactSource) FetchContactPage(ctx context.Context, accessToken, staffID, cursor string, limit int) (*wxwork.ContactPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fetchErr[staffID]; err != nil {
		return nil, err
	}

	all := f.contacts[staffID]
	start := 0
	if cursor != "" {
		fmt.Sscanf(cursor, "cur-%d", &start)
	}

	end := start + f.pageSize
	if end > len(all) {
		end = len(all)
	}

	page := &wxwork.ContactPage{}
	if start < len(all) {
		page.Contacts = append(page.Contacts, all[start:end]...)
	}
	if end < len(all) {
		page.NextCursor = fmt.Sprintf("cur-%d", end)
	}
	return page, nil
}

// captureQueue records enqueued payloads instead of delivering them.
type captureQueue struct {
	mu   sync.Mutex
	jobs []SyncJobPayload
}

func (q *captureQueue) Enqueue(ctx context.Context, queue string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var job SyncJobPayload
	if err := json.Unmarshal(data, &job); err != nil {
		return err
	}
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()
	return nil
}

func (q *captureQueue) drain() []SyncJobPayload {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := q.jobs
	q.jobs = nil
	return jobs
}

type testEnv struct {
	db    *database.DB
	api   *fakeContactSource
	queue *captureQueue
	creds *CredentialService
	tasks *TaskService
	sync  *SyncService
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	api := newFakeContactSource()
	queue := &captureQueue{}
	bus := events.NewEventBus()

	creds := NewCredentialService(db, repository.NewMemoryTokenCache(), api, &logger)
	tasks := NewTaskService(db, db, creds, queue, bus, &logger)
	syncSvc := NewSyncService(db, db, creds, api, tasks, bus, &logger)

	return &testEnv{db: db, api: api, queue: queue, creds: creds, tasks: tasks, sync: syncSvc}
}

// configureCorp seeds corp settings and a roster for op-1.
func (e *testEnv) configureCorp(t *testing.T, staffIDs ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.db.SetSetting(ctx, "op-1", models.SettingCorpID, "ww123"))
	require.NoError(t, e.db.SetSetting(ctx, "op-1", models.SettingCorpSecret, "secret"))
	if len(staffIDs) > 0 {
		require.NoError(t, e.db.ReplaceStaffAccounts(ctx, "op-1", "ww123", staffIDs))
	}
}

// seedContacts gives a staff member n canned contacts.
func (e *testEnv) seedContacts(staffID string, n int) {
	var contacts []wxwork.Contact
	for i := 0; i < n; i++ {
		contacts = append(contacts, wxwork.Contact{
			ExternalUserID: fmt.Sprintf("%s-ext-%d", staffID, i),
			Name:           fmt.Sprintf("Customer %d", i),
			UnionID:        fmt.Sprintf("%s-union-%d", staffID, i),
		})
	}
	e.api.mu.Lock()
	e.api.contacts[staffID] = contacts
	e.api.mu.Unlock()
}

// runJob feeds one captured job through the sync worker.
func (e *testEnv) runJob(t *testing.T, job SyncJobPayload) {
	t.Helper()
	raw, err := json.Marshal(job)
	require.NoError(t, err)
	require.NoError(t, e.sync.ProcessSyncJob(context.Background(), raw))
}
