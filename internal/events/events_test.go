package events

import (
	"encoding/json"
	"testing"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	bus.Subscribe(EventStepChanged, func(event *Event) error {
		received = event
		callCount++
		return nil
	})

	payload := WizardEventPayload{ListingID: "L1", From: "selection", To: "contact"}
	if err := bus.PublishJSON(EventStepChanged, payload); err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
	if received.Type != EventStepChanged {
		t.Errorf("expected type %s, got %s", EventStepChanged, received.Type)
	}

	var decoded WizardEventPayload
	if err := json.Unmarshal(received.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if decoded.To != "contact" {
		t.Errorf("expected to=contact, got %s", decoded.To)
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2 int

	bus.Subscribe("event", func(_ *Event) error { count1++; return nil })
	bus.Subscribe("event", func(_ *Event) error { count2++; return nil })

	bus.Publish(&Event{Type: "event"})

	if count1 != 1 || count2 != 1 {
		t.Errorf("expected both handlers to be called once, got %d and %d", count1, count2)
	}
}

func TestEventBusSubscribeAll(t *testing.T) {
	bus := NewEventBus()
	rec := &Recorder{}
	bus.SubscribeAll(rec.Handle)

	_ = bus.PublishJSON(EventWizardOpened, WizardEventPayload{ListingID: "L1"})
	_ = bus.PublishJSON(EventWizardAbandoned, WizardEventPayload{ListingID: "L1"})

	types := rec.Types()
	if len(types) != 2 || types[0] != EventWizardOpened || types[1] != EventWizardAbandoned {
		t.Errorf("unexpected recorded types: %v", types)
	}
	if len(rec.Events()) != 2 {
		t.Errorf("expected 2 recorded events")
	}
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	bus.Publish(&Event{Type: "unknown"})
	if err := bus.PublishJSON("unknown", nil); err != nil {
		t.Errorf("PublishJSON failed: %v", err)
	}

	var nilBus *EventBus
	if err := nilBus.PublishJSON("x", nil); err != nil {
		t.Errorf("nil bus must be a no-op, got %v", err)
	}
}

func TestNewJSONEvent(t *testing.T) {
	event, err := NewJSONEvent(EventVisitCreated, VisitEventPayload{VisitID: "v-1"})
	if err != nil {
		t.Fatalf("NewJSONEvent failed: %v", err)
	}
	if event.CreatedAt.IsZero() {
		t.Errorf("expected CreatedAt to be set")
	}

	var decoded VisitEventPayload
	if err := json.Unmarshal(event.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if decoded.VisitID != "v-1" {
		t.Errorf("expected VisitID v-1, got %s", decoded.VisitID)
	}
}
