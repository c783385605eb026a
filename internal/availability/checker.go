// Package availability finds free time on the calendar and carves booked sub-slots out of windows.
package availability

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"schedulease/internal/apperr"
	"schedulease/internal/lock"
	"schedulease/internal/models"
	"schedulease/internal/store"
)

// Options tune the checker.
type Options struct {
	// CheckSiblingOverlap rejects intervals that intersect any booked slot on the same date.
	CheckSiblingOverlap bool
}

// Checker carves and claims slots under a per-date lock.
type Checker struct {
	slots  store.SlotStore
	locker lock.Locker
	opts   Options
	logger zerolog.Logger
}

func NewChecker(slots store.SlotStore, locker lock.Locker, opts Options, logger *zerolog.Logger) *Checker {
	return &Checker{
		slots:  slots,
		locker: locker,
		opts:   opts,
		logger: logger.With().Str("component", "availability").Logger(),
	}
}

// EndTime adds duration to start. Intervals may not run past midnight.
func EndTime(start string, durationMinutes int) (string, error) {
	begin, err := models.ParseClock(start)
	if err != nil {
		return "", apperr.Validation("start time: %v", err)
	}
	if begin >= models.MinutesPerDay {
		return "", apperr.Validation("start time %s is at end of day", start)
	}
	if durationMinutes <= 0 {
		return "", apperr.Validation("duration must be positive, got %d", durationMinutes)
	}
	end := begin + durationMinutes
	if end > models.MinutesPerDay {
		return "", apperr.Validation("booking from %s for %d minutes crosses midnight", start, durationMinutes)
	}
	return models.FormatClock(end), nil
}

// Reserve finds an enclosing window for [start, start+duration) on date and
// materializes a booked sub-slot for exactly that interval.
func (c *Checker) Reserve(ctx context.Context, date, start string, durationMinutes int) (*models.Slot, error) {
	if _, err := models.ParseDate(date); err != nil {
		return nil, apperr.Validation("%v", err)
	}
	start, err := models.NormalizeClock(start)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	end, err := EndTime(start, durationMinutes)
	if err != nil {
		return nil, err
	}

	unlock, err := c.lockDate(ctx, date)
	if err != nil {
		return nil, err
	}
	defer unlock()

	window, err := c.slots.FindContaining(ctx, date, start, end)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Unavailable("no availability window covers %s %s-%s", date, start, end)
	}
	if err != nil {
		return nil, fmt.Errorf("find window: %w", err)
	}

	if err := c.ensureNoOverlap(ctx, date, start, end); err != nil {
		return nil, err
	}

	sub := &models.Slot{
		Kind:      models.SlotKindBooking,
		ParentID:  window.ID,
		Date:      date,
		TimeStart: start,
		TimeEnd:   end,
		IsBooked:  true,
	}
	if err := c.slots.CreateSlot(ctx, sub); err != nil {
		return nil, fmt.Errorf("create sub-slot: %w", err)
	}

	c.logger.Debug().Str("slot_id", sub.ID).Str("window_id", window.ID).
		Str("date", date).Str("start", start).Str("end", end).Msg("sub-slot carved")
	return sub, nil
}

// Claim books an existing free slot. Slots listed in ignore are skipped by the
// overlap check, which lets a reschedule move within its own interval.
func (c *Checker) Claim(ctx context.Context, slotID string, ignore ...string) (*models.Slot, error) {
	target, err := c.slots.GetSlot(ctx, slotID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("slot %s not found", slotID)
	}
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	if target.IsBooked {
		return nil, apperr.Unavailable("slot %s is already booked", slotID)
	}

	unlock, err := c.lockDate(ctx, target.Date)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := c.ensureNoOverlap(ctx, target.Date, target.TimeStart, target.TimeEnd, append(ignore, target.ID)...); err != nil {
		return nil, err
	}

	switch err := c.slots.ClaimSlot(ctx, target.ID); {
	case errors.Is(err, store.ErrSlotTaken):
		return nil, apperr.Unavailable("slot %s is already booked", slotID)
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.NotFound("slot %s not found", slotID)
	case err != nil:
		return nil, fmt.Errorf("claim slot: %w", err)
	}

	target.IsBooked = true
	return target, nil
}

// Windows lists a date's availability windows with their booked sub-slots.
func (c *Checker) Windows(ctx context.Context, date string) ([]models.Slot, error) {
	if _, err := models.ParseDate(date); err != nil {
		return nil, apperr.Validation("%v", err)
	}
	return c.slots.ListSlots(ctx, store.SlotFilter{Date: date})
}

func (c *Checker) ensureNoOverlap(ctx context.Context, date, start, end string, ignore ...string) error {
	if !c.opts.CheckSiblingOverlap {
		return nil
	}
	booked, err := c.slots.FindOverlapping(ctx, date, start, end)
	if err != nil {
		return fmt.Errorf("find overlapping: %w", err)
	}
	for _, s := range booked {
		if contains(ignore, s.ID) {
			continue
		}
		return apperr.Unavailable("%s %s-%s overlaps booked slot %s", date, start, end, s.Label())
	}
	return nil
}

func (c *Checker) lockDate(ctx context.Context, date string) (func(), error) {
	unlock, err := c.locker.Lock(ctx, "slots:"+date)
	if errors.Is(err, lock.ErrTimeout) {
		return nil, apperr.Unavailable("calendar for %s is busy, retry shortly", date)
	}
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", date, err)
	}
	return unlock, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
