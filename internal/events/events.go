package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Booking lifecycle events (server side).
const (
	EventVisitCreated  = "visit_created"
	EventVisitReplayed = "visit_replayed"
	EventVisitRejected = "visit_rejected"
)

// Wizard analytics events (client side).
const (
	EventWizardOpened     = "visit_wizard_opened"
	EventWizardRestored   = "visit_wizard_restored"
	EventStepChanged      = "visit_wizard_step_changed"
	EventDateSelected     = "visit_date_selected"
	EventTimeSelected     = "visit_time_selected"
	EventBookingSubmitted = "visit_booking_submitted"
	EventBookingSucceeded = "visit_booking_succeeded"
	EventBookingFailed    = "visit_booking_failed"
	EventWizardAbandoned  = "visit_wizard_abandoned"
)

// VisitEventPayload describes the minimal visit snapshot for event consumers.
type VisitEventPayload struct {
	VisitID   string    `json:"visit_id,omitempty"`
	ListingID string    `json:"listing_id"`
	SlotID    string    `json:"slot_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	Status    string    `json:"status,omitempty"`
	Code      string    `json:"code,omitempty"`
	StartTime time.Time `json:"start_time,omitempty"`
}

// WizardEventPayload describes a wizard interaction.
type WizardEventPayload struct {
	ListingID string `json:"listing_id"`
	UserID    string `json:"user_id,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Step      string `json:"step,omitempty"`
	Date      string `json:"date,omitempty"`
	Time      string `json:"time,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	all         []EventHandler
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

// SubscribeAll registers a handler receiving every event.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.all...)
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

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}

// Recorder keeps every event it receives; handy for tests and debugging.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Handle(event *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
