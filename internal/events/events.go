package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Wildcard subscribes a handler to every event type.
const Wildcard = "*"

// TaskEventPayload is the task snapshot sent with task_* events.
type TaskEventPayload struct {
	TaskID    int64     `json:"task_id"`
	Title     string    `json:"title,omitempty"`
	Priority  string    `json:"priority,omitempty"`
	Completed bool      `json:"completed"`
	ChangedAt time.Time `json:"changed_at"`
}

// SyncEventPayload describes one sync batch.
type SyncEventPayload struct {
	RunID     string `json:"run_id"`
	Processed int    `json:"processed"`
	Conflicts int    `json:"conflicts"`
	Remaining int    `json:"remaining"`
	Error     string `json:"error,omitempty"`
}

// ConflictEventPayload is published when the remote copy wins.
type ConflictEventPayload struct {
	RunID           string    `json:"run_id"`
	TaskID          int64     `json:"task_id"`
	EntryID         int64     `json:"entry_id"`
	Operation       string    `json:"operation"`
	LocalTimestamp  time.Time `json:"local_timestamp"`
	RemoteTimestamp time.Time `json:"remote_timestamp"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewEventBus constructs an empty bus. Handler errors are logged when logger is set.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

// Subscribe registers a handler for a given event type or Wildcard.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type, then wildcard subscribers.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.subscribers[Wildcard]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("event", event.Type).Msg("event handler failed")
		}
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
