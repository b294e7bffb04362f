package service

import "errors"

var (
	ErrCorpNotConfigured = errors.New("wechat work corp id is not configured")
	ErrNoCredential      = errors.New("wechat work corp secret is not configured")
	ErrNoStaff           = errors.New("no staff accounts, sync the roster first")
	ErrNoPendingItems    = errors.New("no pending task items")
	ErrTaskNotFound      = errors.New("task not found")
	ErrItemNotFound      = errors.New("task item not found")
	ErrInvalidTaskState  = errors.New("task is not in the required state")
	ErrInvalidItemState  = errors.New("task item is not in the required state")
	ErrTaskCompleted     = errors.New("task already finished, item cannot be retried")
)
