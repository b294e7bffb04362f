package domain

import (
	"context"
	"time"

	"wxsync/internal/models"
	"wxsync/internal/wxwork"
)

type TaskStore interface {
	CreateTaskWithItems(ctx context.Context, task *models.SyncTask, staffIDs []string) error
	GetTask(ctx context.Context, id int64) (*models.SyncTask, error)
	GetTasksByOperator(ctx context.Context, operatorID string, limit int) ([]models.SyncTask, error)
	GetRunningTasks(ctx context.Context) ([]models.SyncTask, error)
	MarkTaskRunning(ctx context.Context, id int64) (bool, error)
	IncrementTaskSuccess(ctx context.Context, id int64, customers int) error
	IncrementTaskFail(ctx context.Context, id int64) error
	FinishTask(ctx context.Context, id int64, status string, errMsg string) (bool, error)
	CountLiveItems(ctx context.Context, taskID int64) (int, error)
}

type ItemStore interface {
	GetTaskItem(ctx context.Context, id int64) (*models.SyncTaskItem, error)
	GetItemsByTask(ctx context.Context, taskID int64) ([]models.SyncTaskItem, error)
	GetPendingItems(ctx context.Context, taskID int64) ([]models.SyncTaskItem, error)
	MarkItemRunning(ctx context.Context, id int64) (bool, error)
	CompleteItem(ctx context.Context, id int64, customerCount, addedCount int) (bool, error)
	FailItem(ctx context.Context, id int64, errMsg string) (bool, error)
	ResetItem(ctx context.Context, id int64) (bool, error)
}

type CustomerStore interface {
	BulkUpsertCustomers(ctx context.Context, customers []models.Customer) (added, updated int, err error)
	GetCustomers(ctx context.Context, operatorID, corpID string, offset, limit int) ([]models.Customer, error)
	CountCustomers(ctx context.Context, operatorID, corpID string) (int, error)
	GetCustomerUnionIDs(ctx context.Context, operatorID, corpID string) ([]string, error)
}

type SettingsStore interface {
	SetSetting(ctx context.Context, operatorID, key, value string) error
	GetSetting(ctx context.Context, operatorID, key string) (string, error)
	GetOperatorsWithSetting(ctx context.Context, key string) ([]string, error)
}

type RosterStore interface {
	ReplaceStaffAccounts(ctx context.Context, operatorID, corpID string, staffIDs []string) error
	GetStaffAccounts(ctx context.Context, operatorID, corpID string) ([]models.StaffAccount, error)
}

// TokenCache stores access tokens keyed by operator and corp, with the TTL
// the issuing API dictates.
type TokenCache interface {
	GetToken(ctx context.Context, operatorID, corpID string) (string, error)
	SetToken(ctx context.Context, operatorID, corpID, token string, ttl time.Duration) error
	DeleteToken(ctx context.Context, operatorID, corpID string) error
}

// ContactSource is the external contact API surface the sync pipeline needs.
type ContactSource interface {
	GetAccessToken(ctx context.Context, corpID, corpSecret string) (string, int, error)
	ListFollowUsers(ctx context.Context, accessToken string) ([]string, error)
	FetchContactPage(ctx context.Context, accessToken, staffID, cursor string, limit int) (*wxwork.ContactPage, error)
}

// JobQueue delivers named jobs to registered handlers at least once.
type JobQueue interface {
	Enqueue(ctx context.Context, queue string, payload interface{}) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
