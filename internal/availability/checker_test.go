package availability

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedulease/internal/apperr"
	"schedulease/internal/database"
	"schedulease/internal/lock"
	"schedulease/internal/models"
	"schedulease/internal/store"
)

func setup(t *testing.T, checkSiblings bool) (*Checker, *database.DB) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "slots.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	c := NewChecker(db, lock.NewLocal(time.Second), Options{CheckSiblingOverlap: checkSiblings}, &logger)
	return c, db
}

func addWindow(t *testing.T, db *database.DB, date, start, end string) *models.Slot {
	t.Helper()
	w := &models.Slot{Kind: models.SlotKindWindow, Date: date, TimeStart: start, TimeEnd: end}
	require.NoError(t, db.CreateSlot(context.Background(), w))
	return w
}

func TestEndTime(t *testing.T) {
	tests := []struct {
		name     string
		start    string
		duration int
		want     string
		wantErr  bool
	}{
		{name: "half hour", start: "09:00", duration: 30, want: "09:30"},
		{name: "across the hour", start: "09:45", duration: 30, want: "10:15"},
		{name: "up to midnight", start: "23:30", duration: 30, want: "24:00"},
		{name: "crosses midnight", start: "23:45", duration: 30, wantErr: true},
		{name: "zero duration", start: "09:00", duration: 0, wantErr: true},
		{name: "bad start", start: "9am", duration: 30, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EndTime(tt.start, tt.duration)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperr.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReserve_CarvesTightSubSlot(t *testing.T) {
	c, db := setup(t, true)
	w := addWindow(t, db, "2025-01-10", "09:00", "17:00")

	slot, err := c.Reserve(context.Background(), "2025-01-10", "09:00", 30)
	require.NoError(t, err)
	assert.Equal(t, "09:00", slot.TimeStart)
	assert.Equal(t, "09:30", slot.TimeEnd)
	assert.True(t, slot.IsBooked)
	assert.Equal(t, models.SlotKindBooking, slot.Kind)
	assert.Equal(t, w.ID, slot.ParentID)

	stored, err := db.GetSlot(context.Background(), slot.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsBooked)

	parent, err := db.GetSlot(context.Background(), w.ID)
	require.NoError(t, err)
	assert.False(t, parent.IsBooked)
}

func TestReserve_OutsideWindows(t *testing.T) {
	c, db := setup(t, true)
	addWindow(t, db, "2025-01-10", "09:00", "17:00")

	tests := []struct {
		name  string
		date  string
		start string
	}{
		{name: "before opening", date: "2025-01-10", start: "08:00"},
		{name: "spills past closing", date: "2025-01-10", start: "16:45"},
		{name: "no window that day", date: "2025-01-11", start: "10:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Reserve(context.Background(), tt.date, tt.start, 30)
			assert.ErrorIs(t, err, apperr.ErrUnavailable)
		})
	}

	all, err := db.ListSlots(context.Background(), store.SlotFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestReserve_SiblingOverlap(t *testing.T) {
	t.Run("rejected when checked", func(t *testing.T) {
		c, db := setup(t, true)
		addWindow(t, db, "2025-01-10", "09:00", "17:00")

		_, err := c.Reserve(context.Background(), "2025-01-10", "10:00", 60)
		require.NoError(t, err)

		_, err = c.Reserve(context.Background(), "2025-01-10", "10:30", 30)
		assert.ErrorIs(t, err, apperr.ErrUnavailable)

		_, err = c.Reserve(context.Background(), "2025-01-10", "11:00", 30)
		assert.NoError(t, err)
	})

	t.Run("allowed when unchecked", func(t *testing.T) {
		c, db := setup(t, false)
		addWindow(t, db, "2025-01-10", "09:00", "17:00")

		_, err := c.Reserve(context.Background(), "2025-01-10", "10:00", 60)
		require.NoError(t, err)
		_, err = c.Reserve(context.Background(), "2025-01-10", "10:30", 30)
		assert.NoError(t, err)
	})
}

func TestReserve_ConcurrentSameInterval(t *testing.T) {
	c, db := setup(t, true)
	addWindow(t, db, "2025-01-10", "09:00", "17:00")

	const attempts = 6
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Reserve(context.Background(), "2025-01-10", "14:00", 30); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	booked, err := db.FindOverlapping(context.Background(), "2025-01-10", "14:00", "14:30")
	require.NoError(t, err)
	assert.Len(t, booked, 1)
}

func TestClaim(t *testing.T) {
	c, db := setup(t, true)
	ctx := context.Background()

	free := &models.Slot{Kind: models.SlotKindBooking, Date: "2025-01-12", TimeStart: "10:00", TimeEnd: "10:30"}
	taken := &models.Slot{Kind: models.SlotKindBooking, Date: "2025-01-12", TimeStart: "11:00", TimeEnd: "11:30", IsBooked: true}
	require.NoError(t, db.CreateSlot(ctx, free))
	require.NoError(t, db.CreateSlot(ctx, taken))

	_, err := c.Claim(ctx, taken.ID)
	assert.ErrorIs(t, err, apperr.ErrUnavailable)

	_, err = c.Claim(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	got, err := c.Claim(ctx, free.ID)
	require.NoError(t, err)
	assert.True(t, got.IsBooked)

	_, err = c.Claim(ctx, free.ID)
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
}

func TestClaim_IgnoresOwnSlotInOverlap(t *testing.T) {
	c, db := setup(t, true)
	ctx := context.Background()

	current := &models.Slot{Kind: models.SlotKindBooking, Date: "2025-01-12", TimeStart: "10:00", TimeEnd: "10:30", IsBooked: true}
	target := &models.Slot{Kind: models.SlotKindBooking, Date: "2025-01-12", TimeStart: "10:15", TimeEnd: "10:45"}
	require.NoError(t, db.CreateSlot(ctx, current))
	require.NoError(t, db.CreateSlot(ctx, target))

	_, err := c.Claim(ctx, target.ID)
	assert.ErrorIs(t, err, apperr.ErrUnavailable)

	_, err = c.Claim(ctx, target.ID, current.ID)
	assert.NoError(t, err)
}
