package models

import "time"

// SyncTask is one bulk customer-sync run across all staff accounts of a corp.
type SyncTask struct {
	ID             int64      `json:"id"`
	OperatorID     string     `json:"operator_id"`
	CorpID         string     `json:"corp_id"`
	TotalStaff     int        `json:"total_staff"`
	SuccessCount   int        `json:"success_count"`
	FailCount      int        `json:"fail_count"`
	TotalCustomers int        `json:"total_customers"`
	Status         string     `json:"status"` // pending, running, completed, failed
	ErrorMessage   *string    `json:"error_message"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
}

// SyncTaskItem is one staff account's unit of work inside a SyncTask.
type SyncTaskItem struct {
	ID            int64      `json:"id"`
	TaskID        int64      `json:"task_id"`
	StaffID       string     `json:"staff_id"`
	Status        string     `json:"status"` // pending, running, completed, failed
	CustomerCount int        `json:"customer_count"`
	AddedCount    int        `json:"added_count"`
	ErrorMessage  *string    `json:"error_message"`
	StartedAt     *time.Time `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at"`
	CreatedAt     time.Time  `json:"created_at"`
}
