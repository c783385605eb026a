package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{name: "midnight", input: "00:00", want: 0},
		{name: "morning", input: "09:30", want: 570},
		{name: "end of day", input: "24:00", want: MinutesPerDay},
		{name: "past end of day", input: "24:30", wantErr: true},
		{name: "minute overflow", input: "10:60", wantErr: true},
		{name: "single digit hour", input: "9:00", wantErr: true},
		{name: "garbage", input: "noon", wantErr: true},
		{name: "signed hour", input: "+9:00", wantErr: true},
		{name: "signed minute", input: "09:+5", wantErr: true},
		{name: "negative minute", input: "09:-1", wantErr: true},
		{name: "spaced hour", input: " 9:00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClock(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.input, FormatClock(got))
		})
	}
}

func TestNormalizeClock(t *testing.T) {
	got, err := NormalizeClock("07:05")
	require.NoError(t, err)
	assert.Equal(t, "07:05", got)

	_, err = NormalizeClock("+7:05")
	assert.Error(t, err)
}

func TestSlot_Encloses(t *testing.T) {
	window := Slot{Date: "2025-01-10", TimeStart: "09:00", TimeEnd: "17:00"}

	tests := []struct {
		name       string
		date       string
		start, end string
		expected   bool
	}{
		{name: "inside", date: "2025-01-10", start: "09:00", end: "09:30", expected: true},
		{name: "exact bounds", date: "2025-01-10", start: "09:00", end: "17:00", expected: true},
		{name: "starts before", date: "2025-01-10", start: "08:30", end: "09:30", expected: false},
		{name: "ends after", date: "2025-01-10", start: "16:30", end: "17:30", expected: false},
		{name: "other date", date: "2025-01-11", start: "09:00", end: "09:30", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, window.Encloses(tt.date, tt.start, tt.end))
		})
	}
}

func TestSlot_OverlapsWith(t *testing.T) {
	base := Slot{Date: "2025-01-10", TimeStart: "10:00", TimeEnd: "11:00"}

	tests := []struct {
		name     string
		other    Slot
		expected bool
	}{
		{name: "touching before", other: Slot{Date: "2025-01-10", TimeStart: "09:00", TimeEnd: "10:00"}, expected: false},
		{name: "touching after", other: Slot{Date: "2025-01-10", TimeStart: "11:00", TimeEnd: "12:00"}, expected: false},
		{name: "partial", other: Slot{Date: "2025-01-10", TimeStart: "10:30", TimeEnd: "11:30"}, expected: true},
		{name: "contained", other: Slot{Date: "2025-01-10", TimeStart: "10:15", TimeEnd: "10:45"}, expected: true},
		{name: "other day", other: Slot{Date: "2025-01-11", TimeStart: "10:00", TimeEnd: "11:00"}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, base.OverlapsWith(&tt.other))
			assert.Equal(t, tt.expected, tt.other.OverlapsWith(&base))
		})
	}
}

func TestAppointmentPatch_Apply(t *testing.T) {
	appt := Appointment{Title: "old", Description: "keep", Status: StatusPending}
	title := "new"
	status := StatusApproved

	patch := AppointmentPatch{Title: &title, Status: &status}
	assert.False(t, patch.Empty())
	patch.Apply(&appt)

	assert.Equal(t, "new", appt.Title)
	assert.Equal(t, "keep", appt.Description)
	assert.Equal(t, StatusApproved, appt.Status)
	assert.True(t, AppointmentPatch{}.Empty())
}

func TestAppointment_IsActive(t *testing.T) {
	assert.True(t, (&Appointment{Status: StatusPending}).IsActive())
	assert.True(t, (&Appointment{Status: StatusRejected}).IsActive())
	assert.False(t, (&Appointment{Status: StatusCancelled, IsDeleted: true}).IsActive())
	assert.False(t, (&Appointment{Status: StatusApproved, IsDeleted: true}).IsActive())
}
