package database

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedulease/internal/models"
	"schedulease/internal/store"
	"schedulease/internal/store/storetest"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newTestDB(t) })
}

func TestTableData(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	slot := &models.Slot{Kind: models.SlotKindBooking, Date: "2025-01-10", TimeStart: "09:00", TimeEnd: "09:30", IsBooked: true}
	require.NoError(t, db.CreateSlot(ctx, slot))
	appt := &models.Appointment{UserID: "u1", SlotID: slot.ID, Title: "t", Status: models.StatusCancelled, IsDeleted: true}
	require.NoError(t, db.CreateAppointment(ctx, appt))

	names, err := db.TableNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"slots", "appointments", "users"}, names)

	rows, columns, err := db.TableData(ctx, "appointments")
	require.NoError(t, err)
	assert.Contains(t, columns, "is_deleted")
	require.Len(t, rows, 1)
	assert.Equal(t, appt.ID, rows[0]["id"])

	_, _, err = db.TableData(ctx, "sqlite_master")
	assert.Error(t, err)
}

func TestSnapshotAndPrune(t *testing.T) {
	db := newTestDB(t)
	dir := filepath.Join(t.TempDir(), "backups")

	path, err := db.Snapshot(context.Background(), dir)
	require.NoError(t, err)
	assert.FileExists(t, path)

	old := filepath.Join(dir, snapshotPrefix+"old.db")
	unrelated := filepath.Join(dir, "notes.txt")
	past := time.Now().AddDate(0, 0, -3)
	for _, p := range []string{old, unrelated} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		require.NoError(t, os.Chtimes(p, past, past))
	}

	n, err := PruneSnapshots(dir, 24*time.Hour, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, old)
	assert.FileExists(t, unrelated)
	assert.FileExists(t, path)

	n, err = PruneSnapshots(dir, 0, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}
