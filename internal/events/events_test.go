package events

import (
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus() *EventBus {
	logger := zerolog.New(io.Discard)
	return NewEventBus(&logger)
}

func TestPublishDeliversToSubscribersOfType(t *testing.T) {
	bus := newBus()

	var got []Event
	bus.Subscribe(AppointmentCreated, func(e Event) error {
		got = append(got, e)
		return nil
	})
	bus.Subscribe(AppointmentCancelled, func(e Event) error {
		t.Fatal("unexpected delivery")
		return nil
	})

	bus.Publish(Event{Type: AppointmentCreated, Payload: []byte(`{}`)})

	require.Len(t, got, 1)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestHandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := newBus()

	calls := 0
	bus.Subscribe(AppointmentApproved, func(Event) error {
		calls++
		return errors.New("boom")
	})
	bus.Subscribe(AppointmentApproved, func(Event) error {
		calls++
		return nil
	})

	bus.Publish(Event{Type: AppointmentApproved})
	assert.Equal(t, 2, calls)
}

func TestPublishJSON(t *testing.T) {
	bus := newBus()

	var payload AppointmentPayload
	bus.Subscribe(AppointmentRescheduled, func(e Event) error {
		return e.Decode(&payload)
	})

	bus.PublishJSON(AppointmentRescheduled, AppointmentPayload{
		AppointmentID: "a1",
		SlotID:        "s2",
		PrevSlotID:    "s1",
		Status:        "approved",
	})

	assert.Equal(t, "a1", payload.AppointmentID)
	assert.Equal(t, "s1", payload.PrevSlotID)
	assert.Equal(t, "approved", payload.Status)
}
