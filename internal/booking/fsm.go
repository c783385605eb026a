// Package booking implements the appointment lifecycle: creation, review,
// cancellation and rescheduling, keeping slots and appointments in step.
package booking

import (
	"schedulease/internal/apperr"
	"schedulease/internal/models"
)

// Event is an operation that may move an appointment between states.
type Event string

const (
	EventApprove    Event = "approve"
	EventReject     Event = "reject"
	EventCancel     Event = "cancel"
	EventReschedule Event = "reschedule"
	EventUpdate     Event = "update"
)

// roleRule marks a transition whose target depends on the caller's role.
const roleRule models.Status = ""

// FSM holds the allowed appointment transitions.
type FSM struct {
	transitions map[models.Status]map[Event]models.Status
}

// NewFSM creates a new FSM with predefined transitions.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[models.Status]map[Event]models.Status{
			models.StatusPending: {
				EventApprove:    models.StatusApproved,
				EventReject:     models.StatusRejected,
				EventCancel:     models.StatusCancelled,
				EventReschedule: roleRule,
				EventUpdate:     models.StatusPending,
			},
			models.StatusApproved: {
				EventCancel:     models.StatusCancelled,
				EventReschedule: roleRule,
				EventUpdate:     models.StatusApproved,
			},
			models.StatusRejected: {
				EventCancel: models.StatusCancelled,
				EventUpdate: models.StatusRejected,
			},
		},
	}
}

// CanTransition checks if event is allowed from state from.
func (f *FSM) CanTransition(from models.Status, event Event) bool {
	_, ok := f.transitions[from][event]
	return ok
}

// Next returns the state event leads to from from. byRole is used for
// transitions that re-apply the role rule.
func (f *FSM) Next(from models.Status, event Event, byRole models.Status) (models.Status, error) {
	to, ok := f.transitions[from][event]
	if !ok {
		return "", apperr.InvalidTransition("cannot %s an appointment that is %s", event, from)
	}
	if to == roleRule {
		return byRole, nil
	}
	return to, nil
}
