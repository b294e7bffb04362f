package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wxsync/internal/database"
	"wxsync/internal/domain"
	"wxsync/internal/events"
	"wxsync/internal/metrics"
	"wxsync/internal/models"
	"wxsync/internal/wxwork"

	"github.com/rs/zerolog"
)

// SyncService is the worker side of a sync run: it takes one queued item,
// pulls the staff member's full contact list from the API and lands it in the
// customer store.
type SyncService struct {
	store       taskStore
	customers   domain.CustomerStore
	credentials *CredentialService
	api         domain.ContactSource
	tasks       *TaskService
	eventBus    domain.EventPublisher
	logger      *zerolog.Logger
}

func NewSyncService(store taskStore, customers domain.CustomerStore, credentials *CredentialService, api domain.ContactSource, tasks *TaskService, eventBus domain.EventPublisher, logger *zerolog.Logger) *SyncService {
	return &SyncService{
		store:       store,
		customers:   customers,
		credentials: credentials,
		api:         api,
		tasks:       tasks,
		eventBus:    eventBus,
		logger:      logger,
	}
}

// ProcessSyncJob handles one queued sync job. Delivery is at least once, so
// the pending->running transition doubles as the duplicate filter: a job
// whose item is no longer pending is acknowledged without work. Sync failures
// are recorded on the item and do not bounce the job back to the queue;
// returned errors are reserved for infrastructure faults worth a redelivery.
func (s *SyncService) ProcessSyncJob(ctx context.Context, raw json.RawMessage) error {
	var payload SyncJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.logger.Error().Err(err).Msg("sync job payload undecodable, dropping")
		return nil
	}

	logger := s.logger.With().
		Int64("task_id", payload.TaskID).
		Int64("task_item_id", payload.TaskItemID).
		Str("staff_id", payload.StaffID).
		Logger()

	if _, err := s.store.GetTaskItem(ctx, payload.TaskItemID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			logger.Warn().Msg("sync job references unknown item, dropping")
			return nil
		}
		return err
	}

	ok, err := s.store.MarkItemRunning(ctx, payload.TaskItemID)
	if err != nil {
		return err
	}
	if !ok {
		logger.Info().Msg("item no longer pending, duplicate delivery skipped")
		return nil
	}

	start := time.Now()
	total, added, syncErr := s.syncStaffCustomers(ctx, payload.OperatorID, payload.StaffID)
	metrics.ObserveItemSync(time.Since(start).Seconds())

	if syncErr != nil {
		logger.Warn().Err(syncErr).Msg("staff sync failed")
		return s.recordFailure(ctx, payload, syncErr)
	}
	return s.recordSuccess(ctx, payload, total, added)
}

// syncStaffCustomers walks the cursor-paginated contact listing to the end
// and upserts everything it saw. An empty listing counts as a failure, it
// almost always means a revoked staff account.
func (s *SyncService) syncStaffCustomers(ctx context.Context, operatorID, staffID string) (total, added int, err error) {
	corpID, err := s.credentials.GetCorpID(ctx, operatorID)
	if err != nil {
		return 0, 0, err
	}

	token, err := s.credentials.GetAccessToken(ctx, operatorID)
	if err != nil {
		return 0, 0, err
	}

	var contacts []wxwork.Contact
	cursor := ""
	for {
		page, err := s.api.FetchContactPage(ctx, token, staffID, cursor, models.ContactPageLimit)
		if err != nil {
			metrics.IncAPICall("batch_get_by_user", "error")
			return 0, 0, fmt.Errorf("fetch contact page: %w", err)
		}
		metrics.IncAPICall("batch_get_by_user", "ok")

		contacts = append(contacts, page.Contacts...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	if len(contacts) == 0 {
		return 0, 0, fmt.Errorf("no customers fetched for staff %s", staffID)
	}

	customers := make([]models.Customer, 0, len(contacts))
	for _, contact := range contacts {
		customers = append(customers, models.Customer{
			OperatorID:      operatorID,
			CorpID:          corpID,
			StaffID:         staffID,
			ExternalID:      contact.ExternalUserID,
			Name:            contact.Name,
			Position:        contact.Position,
			Avatar:          contact.Avatar,
			CorpName:        contact.CorpName,
			CorpFullName:    contact.CorpFullName,
			Type:            contact.Type,
			Gender:          contact.Gender,
			UnionID:         contact.UnionID,
			Remark:          contact.Remark,
			Description:     contact.Description,
			ContactTime:     contact.CreateTime,
			TagIDs:          contact.TagIDs,
			RemarkCorpName:  contact.RemarkCorpName,
			RemarkMobiles:   contact.RemarkMobiles,
			AddWay:          contact.AddWay,
			State:           contact.State,
			ChannelNickname: contact.ChannelNick,
		})
	}

	addedCount, updatedCount, err := s.customers.BulkUpsertCustomers(ctx, customers)
	if err != nil {
		return 0, 0, fmt.Errorf("upsert customers: %w", err)
	}

	s.logger.Debug().
		Str("staff_id", staffID).
		Int("total", len(customers)).
		Int("added", addedCount).
		Int("updated", updatedCount).
		Msg("staff customers synced")

	metrics.AddCustomersSynced(len(customers))
	return len(customers), addedCount, nil
}

func (s *SyncService) recordSuccess(ctx context.Context, payload SyncJobPayload, total, added int) error {
	if _, err := s.store.CompleteItem(ctx, payload.TaskItemID, total, added); err != nil {
		return err
	}
	if err := s.store.IncrementTaskSuccess(ctx, payload.TaskID, total); err != nil {
		return err
	}

	metrics.IncItemProcessed(models.StatusCompleted)
	s.eventBus.PublishJSON(events.EventItemCompleted, events.ItemEventPayload{
		TaskID:        payload.TaskID,
		TaskItemID:    payload.TaskItemID,
		StaffID:       payload.StaffID,
		Status:        models.StatusCompleted,
		CustomerCount: total,
		AddedCount:    added,
	})

	return s.tasks.CheckTaskCompletion(ctx, payload.TaskID)
}

func (s *SyncService) recordFailure(ctx context.Context, payload SyncJobPayload, cause error) error {
	if _, err := s.store.FailItem(ctx, payload.TaskItemID, cause.Error()); err != nil {
		return err
	}
	if err := s.store.IncrementTaskFail(ctx, payload.TaskID); err != nil {
		return err
	}

	metrics.IncItemProcessed(models.StatusFailed)
	s.eventBus.PublishJSON(events.EventItemFailed, events.ItemEventPayload{
		TaskID:     payload.TaskID,
		TaskItemID: payload.TaskItemID,
		StaffID:    payload.StaffID,
		Status:     models.StatusFailed,
		Error:      cause.Error(),
	})

	return s.tasks.CheckTaskCompletion(ctx, payload.TaskID)
}
