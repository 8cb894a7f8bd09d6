package events

import (
	"encoding/json"
	"sync"
	"time"

	"recolha/internal/models"
)

const (
	EventBookingCreated       = "booking_created"
	EventBookingStatusChanged = "booking_status_changed"
)

// BookingEventPayload describes the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	Token          string               `json:"token"`
	Municipality   string               `json:"municipality"`
	Date           string               `json:"date"`
	ApproxTimeSlot string               `json:"approx_time_slot"`
	Status         models.BookingStatus `json:"status"`
	PreviousStatus models.BookingStatus `json:"previous_status,omitempty"`
	ItemCount      int                  `json:"item_count"`
	ChangedAt      time.Time            `json:"changed_at"`
}

// EventKey partitions booking events by token so a booking's events stay ordered.
func (p BookingEventPayload) EventKey() string {
	return p.Token
}

// NewBookingPayload snapshots b; previous is empty for creation events.
func NewBookingPayload(b *models.Booking, previous models.BookingStatus) BookingEventPayload {
	return BookingEventPayload{
		Token:          b.Token(),
		Municipality:   b.Municipality(),
		Date:           b.Date().Format(models.DateLayout),
		ApproxTimeSlot: b.ApproxTimeSlot().String(),
		Status:         b.Status(),
		PreviousStatus: previous,
		ItemCount:      len(b.Items()),
		ChangedAt:      b.CurrentStatus().Timestamp(),
	}
}

type keyed interface {
	EventKey() string
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Key       string
	Payload   []byte
	CreatedAt time.Time
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

// Publish notifies subscribers of the event type and returns the first
// handler error. Every handler runs even if an earlier one failed.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var first error
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	event := Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}
	if k, ok := payload.(keyed); ok {
		event.Key = k.EventKey()
	}
	return event, nil
}
