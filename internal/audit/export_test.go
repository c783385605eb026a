package audit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"schedulease/internal/database"
	"schedulease/internal/models"
)

type staticSource struct {
	tables map[string][]map[string]interface{}
	cols   map[string][]string
	order  []string
	err    error
}

func (s *staticSource) TableNames(context.Context) ([]string, error) { return s.order, nil }

func (s *staticSource) TableData(_ context.Context, name string) ([]map[string]interface{}, []string, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.tables[name], s.cols[name], nil
}

func newExporter(src TableSource) *Exporter {
	logger := zerolog.New(io.Discard)
	return NewExporter(src, &logger)
}

func TestExportWritesOneSheetPerTable(t *testing.T) {
	src := &staticSource{
		order: []string{"slots", "appointments"},
		cols: map[string][]string{
			"slots":        {"id", "date"},
			"appointments": {"id", "status", "is_deleted"},
		},
		tables: map[string][]map[string]interface{}{
			"slots": {{"id": "s1", "date": "2025-01-10"}},
			"appointments": {
				{"id": "a1", "status": "cancelled", "is_deleted": true},
				{"id": "a2", "status": "pending", "is_deleted": false},
			},
		},
	}

	var buf bytes.Buffer
	rows, err := newExporter(src).Export(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, rows)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"slots", "appointments"}, f.GetSheetList())

	got, err := f.GetRows("appointments")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"id", "status", "is_deleted"}, got[0])
	assert.Equal(t, []string{"a1", "cancelled", "TRUE"}, got[1])
}

func TestExportPropagatesSourceErrors(t *testing.T) {
	src := &staticSource{order: []string{"slots"}, err: errors.New("db gone")}
	_, err := newExporter(src).Export(context.Background(), io.Discard)
	assert.Error(t, err)

	_, err = newExporter(&staticSource{}).Export(context.Background(), io.Discard)
	assert.Error(t, err)
}

func TestExportFromDatabaseIncludesDeletedRows(t *testing.T) {
	logger := zerolog.New(io.Discard)
	dir := t.TempDir()
	db, err := database.NewDB(filepath.Join(dir, "audit.db"), &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	slot := &models.Slot{Kind: models.SlotKindBooking, Date: "2025-01-10", TimeStart: "09:00", TimeEnd: "09:30"}
	require.NoError(t, db.CreateSlot(ctx, slot))
	appt := &models.Appointment{UserID: "u1", SlotID: slot.ID, Title: "gone", Status: models.StatusCancelled, IsDeleted: true}
	require.NoError(t, db.CreateAppointment(ctx, appt))

	path := filepath.Join(dir, Filename(time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "schedulease_audit_2025-01.xlsx", filepath.Base(path))

	rows, err := NewExporter(db, &logger).ExportToFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetRows("appointments")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Contains(t, got[1], appt.ID)
}
