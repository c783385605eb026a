package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"schedulease/internal/apperr"
	"schedulease/internal/availability"
	"schedulease/internal/events"
	"schedulease/internal/metrics"
	"schedulease/internal/models"
	"schedulease/internal/notify"
	"schedulease/internal/store"
)

// Options configure the manager.
type Options struct {
	// TrustedRoles auto-approve their own bookings and reschedules.
	TrustedRoles []models.Role
}

// DefaultOptions trusts internal users only.
func DefaultOptions() Options {
	return Options{TrustedRoles: []models.Role{models.RoleInternal}}
}

// Detail is an appointment together with its current slot.
type Detail struct {
	*models.Appointment
	Slot *models.Slot `json:"slot,omitempty"`
}

// Manager mediates every appointment mutation. Nothing above it touches slots directly.
type Manager struct {
	store      store.Store
	checker    *availability.Checker
	dispatcher notify.Dispatcher
	bus        *events.EventBus
	fsm        *FSM
	validate   *validator.Validate
	trusted    map[models.Role]bool
	logger     zerolog.Logger
}

func NewManager(st store.Store, checker *availability.Checker, dispatcher notify.Dispatcher, opts Options, logger *zerolog.Logger) *Manager {
	trusted := make(map[models.Role]bool, len(opts.TrustedRoles))
	for _, r := range opts.TrustedRoles {
		trusted[r] = true
	}
	return &Manager{
		store:      st,
		checker:    checker,
		dispatcher: dispatcher,
		fsm:        NewFSM(),
		validate:   NewValidator(),
		trusted:    trusted,
		logger:     logger.With().Str("component", "booking").Logger(),
	}
}

// WithEvents publishes lifecycle events to bus.
func (m *Manager) WithEvents(bus *events.EventBus) *Manager {
	m.bus = bus
	return m
}

// Create books [StartTime, StartTime+Duration) on Date for the caller.
func (m *Manager) Create(ctx context.Context, id models.Identity, req CreateRequest) (*Detail, error) {
	if id.UserID == "" {
		return nil, apperr.Forbidden("caller identity is required")
	}
	if err := m.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	slot, err := m.checker.Reserve(ctx, req.Date, req.StartTime, req.Duration)
	if err != nil {
		if errors.Is(err, apperr.ErrUnavailable) {
			metrics.IncSlotConflict("create")
		}
		return nil, err
	}

	appt := &models.Appointment{
		UserID:      id.UserID,
		UserEmail:   id.Email,
		UserName:    id.Name,
		SlotID:      slot.ID,
		Title:       req.Title,
		Description: req.Description,
		Status:      m.initialStatus(id.Role),
	}
	if err := m.store.CreateAppointment(ctx, appt); err != nil {
		m.compensate(ctx, "create", appt, func(ctx context.Context) error {
			return m.store.DeleteSlot(ctx, slot.ID)
		})
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	m.upsertUser(ctx, id)
	metrics.IncAppointmentCreated(string(appt.Status))
	m.publish(events.AppointmentCreated, appt, slot, "", id)
	m.logger.Info().Str("appointment_id", appt.ID).Str("slot_id", slot.ID).
		Str("status", string(appt.Status)).Msg("appointment created")

	m.notify(ctx, id.Email, notify.KindBooking, appt, slot)
	return &Detail{Appointment: appt, Slot: slot}, nil
}

// Approve moves a pending appointment to approved. Admin only.
func (m *Manager) Approve(ctx context.Context, id models.Identity, apptID string) (*Detail, error) {
	return m.review(ctx, id, apptID, EventApprove)
}

// Reject moves a pending appointment to rejected. Admin only.
func (m *Manager) Reject(ctx context.Context, id models.Identity, apptID string) (*Detail, error) {
	return m.review(ctx, id, apptID, EventReject)
}

func (m *Manager) review(ctx context.Context, id models.Identity, apptID string, event Event) (*Detail, error) {
	if !id.IsAdmin() {
		return nil, apperr.Forbidden("only admins can %s appointments", event)
	}
	appt, err := m.load(ctx, apptID)
	if err != nil {
		return nil, err
	}
	next, err := m.fsm.Next(appt.Status, event, "")
	if err != nil {
		return nil, err
	}

	if err := m.store.UpdateAppointment(ctx, appt.ID, models.AppointmentPatch{Status: &next}); err != nil {
		return nil, fmt.Errorf("%s appointment: %w", event, err)
	}
	appt.Status = next

	slot := m.slotOf(ctx, appt)
	metrics.IncTransition(string(event))
	kind, eventType := notify.KindApproval, events.AppointmentApproved
	if event == EventReject {
		kind, eventType = notify.KindRejection, events.AppointmentRejected
	}
	m.publish(eventType, appt, slot, "", id)
	m.logger.Info().Str("appointment_id", appt.ID).Str("status", string(next)).Msg("appointment reviewed")

	m.notify(ctx, appt.UserEmail, kind, appt, slot)
	return &Detail{Appointment: appt, Slot: slot}, nil
}

// Cancel soft-deletes the appointment and releases its slot.
func (m *Manager) Cancel(ctx context.Context, id models.Identity, apptID string) (*Detail, error) {
	appt, err := m.load(ctx, apptID)
	if err != nil {
		return nil, err
	}
	if err := authorize(id, appt, EventCancel); err != nil {
		return nil, err
	}
	next, err := m.fsm.Next(appt.Status, EventCancel, "")
	if err != nil {
		return nil, err
	}

	released := true
	switch err := m.store.SetBooked(ctx, appt.SlotID, false); {
	case errors.Is(err, store.ErrNotFound):
		released = false
		m.logger.Warn().Str("appointment_id", appt.ID).Str("slot_id", appt.SlotID).Msg("slot missing on cancel")
	case err != nil:
		return nil, fmt.Errorf("release slot: %w", err)
	}

	deleted := true
	if err := m.store.UpdateAppointment(ctx, appt.ID, models.AppointmentPatch{Status: &next, IsDeleted: &deleted}); err != nil {
		if released {
			m.compensate(ctx, "cancel", appt, func(ctx context.Context) error {
				return m.store.SetBooked(ctx, appt.SlotID, true)
			})
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}
	appt.Status, appt.IsDeleted = next, true

	slot := m.slotOf(ctx, appt)
	metrics.IncTransition(string(EventCancel))
	m.publish(events.AppointmentCancelled, appt, slot, "", id)
	m.logger.Info().Str("appointment_id", appt.ID).Str("slot_id", appt.SlotID).Msg("appointment cancelled")

	m.notify(ctx, appt.UserEmail, notify.KindCancellation, appt, slot)
	return &Detail{Appointment: appt, Slot: slot}, nil
}

// Reschedule moves the appointment onto a free slot and re-applies the role rule.
func (m *Manager) Reschedule(ctx context.Context, id models.Identity, apptID, newSlotID string) (*Detail, error) {
	if newSlotID == "" {
		return nil, apperr.Validation("slot_id is required")
	}
	appt, err := m.load(ctx, apptID)
	if err != nil {
		return nil, err
	}
	if err := authorize(id, appt, EventReschedule); err != nil {
		return nil, err
	}
	next, err := m.fsm.Next(appt.Status, EventReschedule, m.initialStatus(id.Role))
	if err != nil {
		return nil, err
	}
	if newSlotID == appt.SlotID {
		return nil, apperr.Validation("appointment already uses slot %s", newSlotID)
	}

	target, err := m.checker.Claim(ctx, newSlotID, appt.SlotID)
	if err != nil {
		if errors.Is(err, apperr.ErrUnavailable) {
			metrics.IncSlotConflict("reschedule")
		}
		return nil, err
	}

	oldSlotID := appt.SlotID
	if err := m.store.SetBooked(ctx, oldSlotID, false); err != nil && !errors.Is(err, store.ErrNotFound) {
		m.compensate(ctx, "reschedule", appt, func(ctx context.Context) error {
			return m.store.SetBooked(ctx, target.ID, false)
		})
		return nil, fmt.Errorf("release slot: %w", err)
	}

	if err := m.store.UpdateAppointment(ctx, appt.ID, models.AppointmentPatch{SlotID: &target.ID, Status: &next}); err != nil {
		m.compensate(ctx, "reschedule", appt, func(ctx context.Context) error {
			if err := m.store.SetBooked(ctx, oldSlotID, true); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			return m.store.SetBooked(ctx, target.ID, false)
		})
		return nil, fmt.Errorf("reschedule appointment: %w", err)
	}
	appt.SlotID, appt.Status = target.ID, next

	metrics.IncTransition(string(EventReschedule))
	m.publish(events.AppointmentRescheduled, appt, target, oldSlotID, id)
	m.logger.Info().Str("appointment_id", appt.ID).Str("from_slot", oldSlotID).
		Str("to_slot", target.ID).Str("status", string(next)).Msg("appointment rescheduled")

	m.notify(ctx, appt.UserEmail, notify.KindReschedule, appt, target)
	return &Detail{Appointment: appt, Slot: target}, nil
}

// Update edits title and description. Status is left untouched.
func (m *Manager) Update(ctx context.Context, id models.Identity, apptID string, req UpdateRequest) (*Detail, error) {
	if err := m.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if req.Title == "" && req.Description == "" {
		return nil, apperr.Validation("nothing to update")
	}
	appt, err := m.load(ctx, apptID)
	if err != nil {
		return nil, err
	}
	if err := authorize(id, appt, EventUpdate); err != nil {
		return nil, err
	}
	if _, err := m.fsm.Next(appt.Status, EventUpdate, ""); err != nil {
		return nil, err
	}

	var patch models.AppointmentPatch
	if req.Title != "" {
		patch.Title = &req.Title
	}
	if req.Description != "" {
		patch.Description = &req.Description
	}
	if err := m.store.UpdateAppointment(ctx, appt.ID, patch); err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	patch.Apply(appt)

	slot := m.slotOf(ctx, appt)
	m.publish(events.AppointmentUpdated, appt, slot, "", id)
	return &Detail{Appointment: appt, Slot: slot}, nil
}

// Get returns one appointment visible to the caller.
func (m *Manager) Get(ctx context.Context, id models.Identity, apptID string) (*Detail, error) {
	appt, err := m.load(ctx, apptID)
	if err != nil {
		return nil, err
	}
	if !id.IsAdmin() && !appt.OwnedBy(id.UserID) {
		return nil, apperr.Forbidden("appointment %s belongs to another user", apptID)
	}
	return &Detail{Appointment: appt, Slot: m.slotOf(ctx, appt)}, nil
}

// List returns non-deleted appointments, newest first. Admins see everyone's,
// other callers only their own. An empty status lists all.
func (m *Manager) List(ctx context.Context, id models.Identity, status models.Status) ([]Detail, error) {
	filter := store.AppointmentFilter{}
	if status != "" {
		if !status.Valid() {
			return nil, apperr.Validation("unknown status %q", status)
		}
		filter.Statuses = []models.Status{status}
	}
	if !id.IsAdmin() {
		if id.UserID == "" {
			return nil, apperr.Forbidden("caller identity is required")
		}
		filter.UserID = id.UserID
	}

	appts, err := m.store.ListAppointments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	out := make([]Detail, 0, len(appts))
	for i := range appts {
		out = append(out, Detail{Appointment: &appts[i], Slot: m.slotOf(ctx, &appts[i])})
	}
	return out, nil
}

// Approved lists approved appointments visible to the caller.
func (m *Manager) Approved(ctx context.Context, id models.Identity) ([]Detail, error) {
	return m.List(ctx, id, models.StatusApproved)
}

// Pending lists pending appointments visible to the caller.
func (m *Manager) Pending(ctx context.Context, id models.Identity) ([]Detail, error) {
	return m.List(ctx, id, models.StatusPending)
}

// CreateWindow adds an admin-configured availability window.
func (m *Manager) CreateWindow(ctx context.Context, id models.Identity, req WindowRequest) (*models.Slot, error) {
	if !id.IsAdmin() {
		return nil, apperr.Forbidden("only admins can create availability windows")
	}
	if err := m.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	start, err := models.ParseClock(req.TimeStart)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	end, err := models.ParseClock(req.TimeEnd)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	if start >= end {
		return nil, apperr.Validation("time_start must be before time_end")
	}
	window := &models.Slot{
		Kind:      models.SlotKindWindow,
		Date:      req.Date,
		TimeStart: models.FormatClock(start),
		TimeEnd:   models.FormatClock(end),
	}
	if err := m.store.CreateSlot(ctx, window); err != nil {
		return nil, fmt.Errorf("create window: %w", err)
	}
	m.logger.Info().Str("slot_id", window.ID).Str("date", window.Date).Str("window", window.Label()).Msg("window created")
	return window, nil
}

// SlotsFor lists every slot on date.
func (m *Manager) SlotsFor(ctx context.Context, date string) ([]models.Slot, error) {
	return m.checker.Windows(ctx, date)
}

func (m *Manager) initialStatus(role models.Role) models.Status {
	if m.trusted[role] {
		return models.StatusApproved
	}
	return models.StatusPending
}

// load returns a non-deleted appointment or NotFound.
func (m *Manager) load(ctx context.Context, apptID string) (*models.Appointment, error) {
	if apptID == "" {
		return nil, apperr.Validation("appointment id is required")
	}
	appt, err := m.store.GetAppointment(ctx, apptID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("appointment %s not found", apptID)
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if appt.IsDeleted {
		return nil, apperr.NotFound("appointment %s not found", apptID)
	}
	return appt, nil
}

func authorize(id models.Identity, appt *models.Appointment, event Event) error {
	if id.IsAdmin() || appt.OwnedBy(id.UserID) {
		return nil
	}
	return apperr.Forbidden("not allowed to %s appointment %s", event, appt.ID)
}

func (m *Manager) slotOf(ctx context.Context, appt *models.Appointment) *models.Slot {
	slot, err := m.store.GetSlot(ctx, appt.SlotID)
	if err != nil {
		m.logger.Warn().Err(err).Str("appointment_id", appt.ID).Str("slot_id", appt.SlotID).Msg("load slot")
		return nil
	}
	return slot
}

func (m *Manager) compensate(ctx context.Context, op string, appt *models.Appointment, undo func(context.Context) error) {
	// The caller's context may already be done; the undo must still run.
	undoCtx := context.WithoutCancel(ctx)
	err := undo(undoCtx)
	metrics.IncCompensation(op, err == nil)
	if err != nil {
		m.logger.Error().Err(err).Str("op", op).Str("appointment_id", appt.ID).
			Str("slot_id", appt.SlotID).Msg("compensation failed, slot state needs repair")
		return
	}
	m.logger.Warn().Str("op", op).Str("appointment_id", appt.ID).Msg("compensated partial mutation")
}

func (m *Manager) upsertUser(ctx context.Context, id models.Identity) {
	err := m.store.UpsertUser(ctx, &models.User{ID: id.UserID, Email: id.Email, Name: id.Name, Role: id.Role})
	if err != nil {
		m.logger.Warn().Err(err).Str("user_id", id.UserID).Msg("upsert user")
	}
}

func (m *Manager) publish(eventType string, appt *models.Appointment, slot *models.Slot, prevSlotID string, actor models.Identity) {
	if m.bus == nil {
		return
	}
	payload := events.AppointmentPayload{
		AppointmentID: appt.ID,
		UserID:        appt.UserID,
		SlotID:        appt.SlotID,
		PrevSlotID:    prevSlotID,
		Status:        string(appt.Status),
		ActorID:       actor.UserID,
	}
	if slot != nil {
		payload.Date, payload.TimeStart, payload.TimeEnd = slot.Date, slot.TimeStart, slot.TimeEnd
	}
	m.bus.PublishJSON(eventType, payload)
}

// notify is best-effort: failures are logged and never undo the mutation.
func (m *Manager) notify(ctx context.Context, to string, kind notify.Kind, appt *models.Appointment, slot *models.Slot) {
	if m.dispatcher == nil {
		return
	}
	data := notify.Context{
		Name:   appt.UserName,
		Title:  appt.Title,
		Status: string(appt.Status),
	}
	if slot != nil {
		data.Date, data.Time = slot.Date, slot.Label()
	}
	if err := m.dispatcher.Dispatch(ctx, to, kind, data); err != nil {
		m.logger.Error().Err(err).Str("appointment_id", appt.ID).Str("kind", string(kind)).Msg("notification not delivered")
	}
}
