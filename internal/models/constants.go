package models

// Shared lifecycle statuses for sync tasks and task items.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Settings keys, one row per (operator, key) in the settings table.
const (
	SettingCorpID     = "wechat_work_corpid"
	SettingCorpSecret = "wechat_work_corpsecret"
	SettingCorpRemark = "wechat_work_remark"
)

const (
	// DefaultTokenTTL fallback lifetime for access tokens in seconds
	// when the upstream response omits expires_in.
	DefaultTokenTTL = 7200

	// TokenTTLBuffer seconds subtracted from the upstream TTL so a cached
	// token never outlives the real one.
	TokenTTLBuffer = 10

	// ContactPageLimit upstream maximum page size for contact fetches.
	ContactPageLimit = 100

	// DefaultTaskListLimit number of tasks returned by the task list view.
	DefaultTaskListLimit = 50

	// DefaultCustomerPageSize page size for customer list queries.
	DefaultCustomerPageSize = 20

	// QueueFallbackSize size of the in-memory fallback queue buffer.
	QueueFallbackSize = 1000
)
