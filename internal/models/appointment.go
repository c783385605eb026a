package models

import "time"

// Status is the workflow state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Appointment is a user's claim on a slot.
type Appointment struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	UserEmail   string    `json:"user_email"`
	UserName    string    `json:"user_name"`
	SlotID      string    `json:"slot_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	IsDeleted   bool      `json:"is_deleted"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsActive reports whether the appointment still holds its slot.
func (a *Appointment) IsActive() bool {
	return !a.IsDeleted && a.Status != StatusCancelled
}

// OwnedBy reports whether userID owns the appointment.
func (a *Appointment) OwnedBy(userID string) bool {
	return userID != "" && a.UserID == userID
}

// AppointmentPatch lists the fields an update may set. Nil fields are left untouched.
type AppointmentPatch struct {
	SlotID      *string
	Title       *string
	Description *string
	Status      *Status
	IsDeleted   *bool
}

// Empty reports whether the patch sets nothing.
func (p AppointmentPatch) Empty() bool {
	return p.SlotID == nil && p.Title == nil && p.Description == nil && p.Status == nil && p.IsDeleted == nil
}

// Apply copies the set fields onto a.
func (p AppointmentPatch) Apply(a *Appointment) {
	if p.SlotID != nil {
		a.SlotID = *p.SlotID
	}
	if p.Title != nil {
		a.Title = *p.Title
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.IsDeleted != nil {
		a.IsDeleted = *p.IsDeleted
	}
}
