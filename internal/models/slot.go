package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DateLayout is the calendar date format used for Slot.Date.
	DateLayout = "2006-01-02"
	// MinutesPerDay bounds every clock value; "24:00" is the only value equal to it.
	MinutesPerDay = 24 * 60
)

// SlotKind distinguishes admin-configured availability windows from booked sub-slots.
type SlotKind string

const (
	SlotKindWindow  SlotKind = "window"
	SlotKindBooking SlotKind = "booking"
)

// Slot is a time interval on the bookable calendar.
type Slot struct {
	ID        string    `json:"id"`
	Kind      SlotKind  `json:"kind"`
	ParentID  string    `json:"parent_id,omitempty"`
	Date      string    `json:"date"`
	TimeStart string    `json:"time_start"`
	TimeEnd   string    `json:"time_end"`
	IsBooked  bool      `json:"is_booked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Bounds returns the slot interval in minutes since midnight.
func (s *Slot) Bounds() (start, end int, err error) {
	if start, err = ParseClock(s.TimeStart); err != nil {
		return 0, 0, err
	}
	if end, err = ParseClock(s.TimeEnd); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// Encloses reports whether [start, end) lies within the slot on the same date.
func (s *Slot) Encloses(date, start, end string) bool {
	if s.Date != date {
		return false
	}
	return s.TimeStart <= start && s.TimeEnd >= end
}

// OverlapsWith checks half-open [start, end) intersection on the same date.
func (s *Slot) OverlapsWith(other *Slot) bool {
	if s.Date != other.Date {
		return false
	}
	return s.TimeStart < other.TimeEnd && other.TimeStart < s.TimeEnd
}

// Label renders the interval as "09:00 - 09:30".
func (s *Slot) Label() string {
	return s.TimeStart + " - " + s.TimeEnd
}

// ParseClock converts "HH:MM" into minutes since midnight. "24:00" is accepted as end of day.
func ParseClock(v string) (int, error) {
	parts := strings.Split(v, ":")
	if len(parts) != 2 || !twoDigits(parts[0]) || !twoDigits(parts[1]) {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", v)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", v)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q", v)
	}
	if minute < 0 || minute > 59 || hour < 0 || hour > 24 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("time %q out of range", v)
	}
	return hour*60 + minute, nil
}

func twoDigits(s string) bool {
	return len(s) == 2 && s[0] >= '0' && s[0] <= '9' && s[1] >= '0' && s[1] <= '9'
}

// NormalizeClock returns v in the canonical "HH:MM" form stores compare against.
func NormalizeClock(v string) (string, error) {
	m, err := ParseClock(v)
	if err != nil {
		return "", err
	}
	return FormatClock(m), nil
}

// FormatClock is the inverse of ParseClock.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseDate validates a YYYY-MM-DD calendar date.
func ParseDate(v string) (time.Time, error) {
	d, err := time.Parse(DateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", v)
	}
	return d, nil
}
