package service

import (
	"context"
	"errors"
	"fmt"

	"wxsync/internal/database"
	"wxsync/internal/domain"
	"wxsync/internal/events"
	"wxsync/internal/metrics"
	"wxsync/internal/models"

	"github.com/rs/zerolog"
)

// QueueCustomerSync is the queue that carries per-staff sync jobs.
const QueueCustomerSync = "customer_sync"

// SyncJobPayload is the envelope for one staff member's sync job.
type SyncJobPayload struct {
	TaskID     int64  `json:"task_id"`
	TaskItemID int64  `json:"task_item_id"`
	StaffID    string `json:"staff_id"`
	OperatorID string `json:"operator_id"`
}

type taskStore interface {
	domain.TaskStore
	domain.ItemStore
}

// TaskService orchestrates bulk sync runs: it fans a task out into per-staff
// items, dispatches them to the queue and reconciles completion.
type TaskService struct {
	store       taskStore
	roster      domain.RosterStore
	credentials *CredentialService
	queue       domain.JobQueue
	eventBus    domain.EventPublisher
	logger      *zerolog.Logger
}

func NewTaskService(store taskStore, roster domain.RosterStore, credentials *CredentialService, queue domain.JobQueue, eventBus domain.EventPublisher, logger *zerolog.Logger) *TaskService {
	return &TaskService{
		store:       store,
		roster:      roster,
		credentials: credentials,
		queue:       queue,
		eventBus:    eventBus,
		logger:      logger,
	}
}

// CreateTask snapshots the current roster into a pending task with one item
// per staff account.
func (s *TaskService) CreateTask(ctx context.Context, operatorID string) (*models.SyncTask, error) {
	corpID, err := s.credentials.GetCorpID(ctx, operatorID)
	if err != nil {
		return nil, err
	}

	accounts, err := s.roster.GetStaffAccounts(ctx, operatorID, corpID)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, ErrNoStaff
	}

	staffIDs := make([]string, 0, len(accounts))
	for _, account := range accounts {
		staffIDs = append(staffIDs, account.StaffID)
	}

	task := &models.SyncTask{OperatorID: operatorID, CorpID: corpID}
	if err := s.store.CreateTaskWithItems(ctx, task, staffIDs); err != nil {
		return nil, err
	}

	metrics.IncTaskCreated()
	s.eventBus.PublishJSON(events.EventTaskCreated, events.TaskEventPayload{
		TaskID:     task.ID,
		OperatorID: operatorID,
		CorpID:     corpID,
		Status:     task.Status,
		TotalStaff: task.TotalStaff,
	})

	s.logger.Info().Int64("task_id", task.ID).Str("operator_id", operatorID).Int("total_staff", task.TotalStaff).Msg("sync task created")
	return task, nil
}

// StartTask moves a pending task to running and enqueues one job per pending
// item. A task that is not pending is rejected.
func (s *TaskService) StartTask(ctx context.Context, taskID int64) (int, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if errors.Is(err, database.ErrNotFound) {
		return 0, ErrTaskNotFound
	}
	if err != nil {
		return 0, err
	}

	if task.Status != models.StatusPending {
		return 0, fmt.Errorf("%w: task %d is %s", ErrInvalidTaskState, taskID, task.Status)
	}

	items, err := s.store.GetPendingItems(ctx, taskID)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, ErrNoPendingItems
	}

	ok, err := s.store.MarkTaskRunning(ctx, taskID)
	if err != nil {
		return 0, err
	}
	if !ok {
		// lost the race to a concurrent start
		return 0, fmt.Errorf("%w: task %d is no longer pending", ErrInvalidTaskState, taskID)
	}

	queued := 0
	for _, item := range items {
		payload := SyncJobPayload{
			TaskID:     taskID,
			TaskItemID: item.ID,
			StaffID:    item.StaffID,
			OperatorID: task.OperatorID,
		}
		if err := s.queue.Enqueue(ctx, QueueCustomerSync, payload); err != nil {
			s.logger.Error().Err(err).Int64("task_item_id", item.ID).Msg("enqueue sync job failed")
			continue
		}
		queued++
	}

	s.eventBus.PublishJSON(events.EventTaskStarted, events.TaskEventPayload{
		TaskID:     taskID,
		OperatorID: task.OperatorID,
		CorpID:     task.CorpID,
		Status:     models.StatusRunning,
		TotalStaff: task.TotalStaff,
	})

	s.logger.Info().Int64("task_id", taskID).Int("queued", queued).Msg("sync task started")
	return queued, nil
}

// RetryTaskItem resets one failed item to pending and re-enqueues it. Items
// whose parent task already finished cannot be retried.
func (s *TaskService) RetryTaskItem(ctx context.Context, taskItemID int64) error {
	item, err := s.store.GetTaskItem(ctx, taskItemID)
	if errors.Is(err, database.ErrNotFound) {
		return ErrItemNotFound
	}
	if err != nil {
		return err
	}

	if item.Status != models.StatusFailed {
		return fmt.Errorf("%w: item %d is %s", ErrInvalidItemState, taskItemID, item.Status)
	}

	task, err := s.store.GetTask(ctx, item.TaskID)
	if errors.Is(err, database.ErrNotFound) {
		return ErrTaskNotFound
	}
	if err != nil {
		return err
	}
	if task.Status == models.StatusCompleted || task.Status == models.StatusFailed {
		return ErrTaskCompleted
	}

	ok, err := s.store.ResetItem(ctx, taskItemID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: item %d changed state concurrently", ErrInvalidItemState, taskItemID)
	}

	payload := SyncJobPayload{
		TaskID:     item.TaskID,
		TaskItemID: item.ID,
		StaffID:    item.StaffID,
		OperatorID: task.OperatorID,
	}
	if err := s.queue.Enqueue(ctx, QueueCustomerSync, payload); err != nil {
		return err
	}

	s.logger.Info().Int64("task_item_id", taskItemID).Int64("task_id", item.TaskID).Msg("task item retry queued")
	return nil
}

// CheckTaskCompletion finishes a running task once no live items remain. The
// live item count is read fresh, never derived from the task counters, and
// the terminal status comes from the counters recorded at that moment: a run
// with zero successes and at least one failure failed, anything else
// completed. Calling it on an already-terminal task is a no-op.
func (s *TaskService) CheckTaskCompletion(ctx context.Context, taskID int64) error {
	task, err := s.store.GetTask(ctx, taskID)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if task.Status != models.StatusRunning {
		return nil
	}

	live, err := s.store.CountLiveItems(ctx, taskID)
	if err != nil {
		return err
	}
	if live > 0 {
		return nil
	}

	status := models.StatusCompleted
	if task.FailCount > 0 && task.SuccessCount == 0 {
		status = models.StatusFailed
	}

	finished, err := s.store.FinishTask(ctx, taskID, status, "")
	if err != nil {
		return err
	}
	if !finished {
		// another worker reconciled first
		return nil
	}

	s.eventBus.PublishJSON(events.EventTaskFinished, events.TaskEventPayload{
		TaskID:       taskID,
		OperatorID:   task.OperatorID,
		CorpID:       task.CorpID,
		Status:       status,
		TotalStaff:   task.TotalStaff,
		SuccessCount: task.SuccessCount,
		FailCount:    task.FailCount,
	})

	s.logger.Info().Int64("task_id", taskID).Str("status", status).Msg("sync task finished")
	return nil
}

// SweepRunningTasks re-dispatches pending items of running tasks and then
// re-reconciles each task. It catches dispatches dropped on enqueue failure
// as well as tasks whose final CheckTaskCompletion call was lost to a crash.
// Duplicate deliveries are harmless: the item's pending guard filters them.
func (s *TaskService) SweepRunningTasks(ctx context.Context) error {
	tasks, err := s.store.GetRunningTasks(ctx)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if err := s.redispatchPendingItems(ctx, task); err != nil {
			s.logger.Error().Err(err).Int64("task_id", task.ID).Msg("task sweep redispatch failed")
		}
		if err := s.CheckTaskCompletion(ctx, task.ID); err != nil {
			s.logger.Error().Err(err).Int64("task_id", task.ID).Msg("task sweep reconcile failed")
		}
	}
	return nil
}

func (s *TaskService) redispatchPendingItems(ctx context.Context, task models.SyncTask) error {
	items, err := s.store.GetPendingItems(ctx, task.ID)
	if err != nil {
		return err
	}
	for _, item := range items {
		payload := SyncJobPayload{
			TaskID:     task.ID,
			TaskItemID: item.ID,
			StaffID:    item.StaffID,
			OperatorID: task.OperatorID,
		}
		if err := s.queue.Enqueue(ctx, QueueCustomerSync, payload); err != nil {
			s.logger.Error().Err(err).Int64("task_item_id", item.ID).Msg("enqueue sync job failed")
			continue
		}
		s.logger.Info().Int64("task_id", task.ID).Int64("task_item_id", item.ID).Msg("pending item redispatched")
	}
	return nil
}

// GetTaskList returns the operator's most recent tasks.
func (s *TaskService) GetTaskList(ctx context.Context, operatorID string, limit int) ([]models.SyncTask, error) {
	if limit <= 0 {
		limit = models.DefaultTaskListLimit
	}
	return s.store.GetTasksByOperator(ctx, operatorID, limit)
}

// GetTaskDetail returns a task together with its items ordered by creation.
func (s *TaskService) GetTaskDetail(ctx context.Context, taskID int64) (*models.SyncTask, []models.SyncTaskItem, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	items, err := s.store.GetItemsByTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	return task, items, nil
}
