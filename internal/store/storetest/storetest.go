// Package storetest holds a conformance suite run against every store backend.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedulease/internal/models"
	"schedulease/internal/store"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("SlotCRUD", func(t *testing.T) { testSlotCRUD(t, newStore(t)) })
	t.Run("FindContaining", func(t *testing.T) { testFindContaining(t, newStore(t)) })
	t.Run("FindOverlapping", func(t *testing.T) { testFindOverlapping(t, newStore(t)) })
	t.Run("ClaimSlot", func(t *testing.T) { testClaimSlot(t, newStore(t)) })
	t.Run("AppointmentLifecycle", func(t *testing.T) { testAppointmentLifecycle(t, newStore(t)) })
	t.Run("AppointmentFilters", func(t *testing.T) { testAppointmentFilters(t, newStore(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
}

func window(date, start, end string) *models.Slot {
	return &models.Slot{Kind: models.SlotKindWindow, Date: date, TimeStart: start, TimeEnd: end}
}

func testSlotCRUD(t *testing.T, s store.Store) {
	ctx := context.Background()

	slot := window("2025-01-10", "09:00", "17:00")
	require.NoError(t, s.CreateSlot(ctx, slot))
	require.NotEmpty(t, slot.ID)

	got, err := s.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-10", got.Date)
	assert.Equal(t, "09:00", got.TimeStart)
	assert.Equal(t, "17:00", got.TimeEnd)
	assert.Equal(t, models.SlotKindWindow, got.Kind)
	assert.False(t, got.IsBooked)

	require.NoError(t, s.SetBooked(ctx, slot.ID, true))
	got, err = s.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.True(t, got.IsBooked)

	_, err = s.GetSlot(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.SetBooked(ctx, "missing", true), store.ErrNotFound)

	require.NoError(t, s.DeleteSlot(ctx, slot.ID))
	_, err = s.GetSlot(ctx, slot.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testFindContaining(t *testing.T, s store.Store) {
	ctx := context.Background()

	w := window("2025-01-10", "09:00", "17:00")
	require.NoError(t, s.CreateSlot(ctx, w))
	sub := &models.Slot{Kind: models.SlotKindBooking, ParentID: w.ID, Date: "2025-01-10", TimeStart: "10:00", TimeEnd: "10:30"}
	require.NoError(t, s.CreateSlot(ctx, sub))

	tests := []struct {
		name       string
		date       string
		start, end string
		wantID     string
	}{
		{name: "inside window", date: "2025-01-10", start: "10:00", end: "10:30", wantID: w.ID},
		{name: "exact window", date: "2025-01-10", start: "09:00", end: "17:00", wantID: w.ID},
		{name: "spills over end", date: "2025-01-10", start: "16:45", end: "17:15"},
		{name: "other day", date: "2025-01-11", start: "10:00", end: "10:30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.FindContaining(ctx, tt.date, tt.start, tt.end)
			if tt.wantID == "" {
				assert.ErrorIs(t, err, store.ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got.ID)
			assert.Equal(t, models.SlotKindWindow, got.Kind)
		})
	}
}

func testFindOverlapping(t *testing.T, s store.Store) {
	ctx := context.Background()

	booked := &models.Slot{Kind: models.SlotKindBooking, Date: "2025-01-10", TimeStart: "10:00", TimeEnd: "11:00", IsBooked: true}
	free := &models.Slot{Kind: models.SlotKindBooking, Date: "2025-01-10", TimeStart: "12:00", TimeEnd: "13:00"}
	require.NoError(t, s.CreateSlot(ctx, booked))
	require.NoError(t, s.CreateSlot(ctx, free))

	got, err := s.FindOverlapping(ctx, "2025-01-10", "10:30", "12:30")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, booked.ID, got[0].ID)

	got, err = s.FindOverlapping(ctx, "2025-01-10", "11:00", "12:00")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testClaimSlot(t *testing.T, s store.Store) {
	ctx := context.Background()

	slot := window("2025-01-12", "09:00", "10:00")
	require.NoError(t, s.CreateSlot(ctx, slot))

	require.NoError(t, s.ClaimSlot(ctx, slot.ID))
	assert.ErrorIs(t, s.ClaimSlot(ctx, slot.ID), store.ErrSlotTaken)
	assert.ErrorIs(t, s.ClaimSlot(ctx, "missing"), store.ErrNotFound)

	require.NoError(t, s.SetBooked(ctx, slot.ID, false))
	assert.NoError(t, s.ClaimSlot(ctx, slot.ID))
}

func testAppointmentLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()

	slot := &models.Slot{Kind: models.SlotKindBooking, Date: "2025-01-10", TimeStart: "09:00", TimeEnd: "09:30", IsBooked: true}
	require.NoError(t, s.CreateSlot(ctx, slot))

	appt := &models.Appointment{
		UserID: "u1", UserEmail: "u1@example.com", UserName: "User One",
		SlotID: slot.ID, Title: "Review", Description: "Quarterly", Status: models.StatusPending,
	}
	require.NoError(t, s.CreateAppointment(ctx, appt))
	require.NotEmpty(t, appt.ID)
	assert.False(t, appt.CreatedAt.IsZero())

	got, err := s.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, "Review", got.Title)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, slot.ID, got.SlotID)

	status := models.StatusCancelled
	deleted := true
	require.NoError(t, s.UpdateAppointment(ctx, appt.ID, models.AppointmentPatch{Status: &status, IsDeleted: &deleted}))

	got, err = s.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.Equal(t, "Review", got.Title)

	list, err := s.ListAppointments(ctx, store.AppointmentFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = s.ListAppointments(ctx, store.AppointmentFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.GetAppointment(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	title := "x"
	assert.ErrorIs(t, s.UpdateAppointment(ctx, "missing", models.AppointmentPatch{Title: &title}), store.ErrNotFound)
}

func testAppointmentFilters(t *testing.T, s store.Store) {
	ctx := context.Background()

	today := &models.Slot{Kind: models.SlotKindBooking, Date: "2025-03-01", TimeStart: "09:00", TimeEnd: "10:00", IsBooked: true}
	later := &models.Slot{Kind: models.SlotKindBooking, Date: "2025-03-02", TimeStart: "09:00", TimeEnd: "10:00", IsBooked: true}
	require.NoError(t, s.CreateSlot(ctx, today))
	require.NoError(t, s.CreateSlot(ctx, later))

	base := time.Date(2025, 2, 20, 12, 0, 0, 0, time.UTC)
	seed := []models.Appointment{
		{UserID: "alice", SlotID: today.ID, Title: "a1", Status: models.StatusPending, CreatedAt: base},
		{UserID: "alice", SlotID: later.ID, Title: "a2", Status: models.StatusApproved, CreatedAt: base.Add(time.Hour)},
		{UserID: "bob", SlotID: today.ID, Title: "b1", Status: models.StatusApproved, CreatedAt: base.Add(2 * time.Hour)},
		{UserID: "bob", SlotID: later.ID, Title: "b2", Status: models.StatusCancelled, IsDeleted: true, CreatedAt: base.Add(3 * time.Hour)},
	}
	for i := range seed {
		require.NoError(t, s.CreateAppointment(ctx, &seed[i]))
	}

	titles := func(list []models.Appointment) []string {
		out := make([]string, 0, len(list))
		for _, a := range list {
			out = append(out, a.Title)
		}
		return out
	}

	tests := []struct {
		name   string
		filter store.AppointmentFilter
		want   []string
	}{
		{name: "all active newest first", filter: store.AppointmentFilter{}, want: []string{"b1", "a2", "a1"}},
		{name: "by user", filter: store.AppointmentFilter{UserID: "alice"}, want: []string{"a2", "a1"}},
		{name: "by status", filter: store.AppointmentFilter{Statuses: []models.Status{models.StatusApproved}}, want: []string{"b1", "a2"}},
		{name: "with deleted", filter: store.AppointmentFilter{IncludeDeleted: true}, want: []string{"b2", "b1", "a2", "a1"}},
		{name: "created since", filter: store.AppointmentFilter{CreatedSince: base.Add(90 * time.Minute)}, want: []string{"b1"}},
		{name: "slot date", filter: store.AppointmentFilter{SlotDate: "2025-03-01"}, want: []string{"b1", "a1"}},
		{name: "limit", filter: store.AppointmentFilter{Limit: 1}, want: []string{"b1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := s.ListAppointments(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, titles(list))

			if tt.filter.Limit == 0 {
				n, err := s.CountAppointments(ctx, tt.filter)
				require.NoError(t, err)
				assert.Equal(t, len(tt.want), n)
			}
		})
	}
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.UpsertUser(ctx, &models.User{ID: "u1", Email: "old@example.com", Name: "Old", Role: models.RoleExternal}))
	require.NoError(t, s.UpsertUser(ctx, &models.User{ID: "u1", Email: "new@example.com", Name: "New", Role: models.RoleInternal}))
	require.NoError(t, s.UpsertUser(ctx, &models.User{ID: "u2", Email: "two@example.com", Name: "Two", Role: models.RoleAdmin}))

	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", u.Email)
	assert.Equal(t, models.RoleInternal, u.Role)

	n, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
