// Package events is an in-process pub/sub bus for appointment lifecycle events.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	AppointmentCreated     = "appointment.created"
	AppointmentApproved    = "appointment.approved"
	AppointmentRejected    = "appointment.rejected"
	AppointmentCancelled   = "appointment.cancelled"
	AppointmentRescheduled = "appointment.rescheduled"
	AppointmentUpdated     = "appointment.updated"
)

// AllAppointmentEvents lists every lifecycle event type.
var AllAppointmentEvents = []string{
	AppointmentCreated,
	AppointmentApproved,
	AppointmentRejected,
	AppointmentCancelled,
	AppointmentRescheduled,
	AppointmentUpdated,
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// AppointmentPayload is the JSON body of appointment.* events.
type AppointmentPayload struct {
	AppointmentID string `json:"appointment_id"`
	UserID        string `json:"user_id"`
	SlotID        string `json:"slot_id"`
	PrevSlotID    string `json:"prev_slot_id,omitempty"`
	Status        string `json:"status"`
	Date          string `json:"date,omitempty"`
	TimeStart     string `json:"time_start,omitempty"`
	TimeEnd       string `json:"time_end,omitempty"`
	ActorID       string `json:"actor_id,omitempty"`
}

// Decode unmarshals the event payload.
func (e Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      zerolog.Logger
}

// NewEventBus constructs an empty bus.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string][]EventHandler),
		logger:      logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. Handler errors are logged
// and never reach the publisher.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("event", event.Type).Msg("event handler failed")
		}
	}
}

// PublishJSON marshals payload and publishes it under eventType.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error().Err(err).Str("event", eventType).Msg("marshal event payload")
		return
	}
	b.Publish(Event{Type: eventType, Payload: data})
}
