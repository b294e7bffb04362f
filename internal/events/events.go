package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventTaskCreated   = "task_created"
	EventTaskStarted   = "task_started"
	EventItemCompleted = "item_completed"
	EventItemFailed    = "item_failed"
	EventTaskFinished  = "task_finished"
)

// TaskEventPayload describes the minimal task snapshot for event consumers.
type TaskEventPayload struct {
	TaskID       int64  `json:"task_id"`
	OperatorID   string `json:"operator_id"`
	CorpID       string `json:"corp_id"`
	Status       string `json:"status"`
	TotalStaff   int    `json:"total_staff,omitempty"`
	SuccessCount int    `json:"success_count,omitempty"`
	FailCount    int    `json:"fail_count,omitempty"`
}

// ItemEventPayload describes one staff item outcome.
type ItemEventPayload struct {
	TaskID        int64  `json:"task_id"`
	TaskItemID    int64  `json:"task_item_id"`
	StaffID       string `json:"staff_id"`
	Status        string `json:"status"`
	CustomerCount int    `json:"customer_count,omitempty"`
	AddedCount    int    `json:"added_count,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
	Processed bool
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
