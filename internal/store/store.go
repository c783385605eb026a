// Package store declares the persistence contracts shared by the SQLite and MongoDB backends.
package store

import (
	"context"
	"errors"
	"time"

	"schedulease/internal/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrSlotTaken = errors.New("slot already booked")
)

// SlotFilter narrows ListSlots.
type SlotFilter struct {
	Date     string
	Kind     models.SlotKind
	OnlyFree bool
}

// AppointmentFilter narrows ListAppointments and CountAppointments.
// Soft-deleted rows are excluded unless IncludeDeleted is set.
type AppointmentFilter struct {
	UserID         string
	Statuses       []models.Status
	IncludeDeleted bool
	CreatedSince   time.Time
	SlotDate       string
	Limit          int
}

// SlotStore persists slots. It carries no business rules.
type SlotStore interface {
	CreateSlot(ctx context.Context, slot *models.Slot) error
	GetSlot(ctx context.Context, id string) (*models.Slot, error)
	// FindContaining returns a window enclosing [start, end) on date, or ErrNotFound.
	FindContaining(ctx context.Context, date, start, end string) (*models.Slot, error)
	// FindOverlapping returns booked slots intersecting [start, end) on date.
	FindOverlapping(ctx context.Context, date, start, end string) ([]models.Slot, error)
	SetBooked(ctx context.Context, id string, booked bool) error
	// ClaimSlot flips is_booked from false to true atomically, ErrSlotTaken when already booked.
	ClaimSlot(ctx context.Context, id string) error
	ListSlots(ctx context.Context, filter SlotFilter) ([]models.Slot, error)
	DeleteSlot(ctx context.Context, id string) error
}

// AppointmentStore persists appointments. Lists are newest first.
type AppointmentStore interface {
	CreateAppointment(ctx context.Context, appt *models.Appointment) error
	GetAppointment(ctx context.Context, id string) (*models.Appointment, error)
	ListAppointments(ctx context.Context, filter AppointmentFilter) ([]models.Appointment, error)
	CountAppointments(ctx context.Context, filter AppointmentFilter) (int, error)
	UpdateAppointment(ctx context.Context, id string, patch models.AppointmentPatch) error
}

// UserStore keeps the directory of callers seen by the service.
type UserStore interface {
	UpsertUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	CountUsers(ctx context.Context) (int, error)
}

// Store is the full backend surface.
type Store interface {
	SlotStore
	AppointmentStore
	UserStore
	Ping(ctx context.Context) error
	Close() error
}
