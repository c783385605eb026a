package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"schedulease/internal/models"
	"schedulease/internal/store"
)

const appointmentColumns = `id, user_id, user_email, user_name, slot_id, title, description, status, is_deleted, created_at, updated_at`

// CreateAppointment inserts an appointment, assigning an ID when empty.
func (db *DB) CreateAppointment(ctx context.Context, appt *models.Appointment) error {
	if appt.ID == "" {
		appt.ID = store.NewID()
	}
	ts := now()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = ts
	}
	appt.UpdatedAt = ts

	_, err := db.ExecContext(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		appt.ID, appt.UserID, appt.UserEmail, appt.UserName, appt.SlotID, appt.Title, appt.Description,
		appt.Status, appt.IsDeleted, appt.CreatedAt, appt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

// GetAppointment returns an appointment by ID, including soft-deleted ones.
func (db *DB) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	row := db.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id)
	appt, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment %s: %w", id, err)
	}
	return appt, nil
}

// ListAppointments returns matching appointments, newest first.
func (db *DB) ListAppointments(ctx context.Context, filter store.AppointmentFilter) ([]models.Appointment, error) {
	where, args := appointmentWhere(filter)
	query := `SELECT ` + appointmentColumns + ` FROM appointments` + where + ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var out []models.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *appt)
	}
	return out, rows.Err()
}

// CountAppointments counts matching appointments.
func (db *DB) CountAppointments(ctx context.Context, filter store.AppointmentFilter) (int, error) {
	where, args := appointmentWhere(filter)
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM appointments`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count appointments: %w", err)
	}
	return n, nil
}

// UpdateAppointment applies the set fields of patch.
func (db *DB) UpdateAppointment(ctx context.Context, id string, patch models.AppointmentPatch) error {
	var (
		sets []string
		args []interface{}
	)
	if patch.SlotID != nil {
		sets = append(sets, "slot_id = ?")
		args = append(args, *patch.SlotID)
	}
	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *patch.Status)
	}
	if patch.IsDeleted != nil {
		sets = append(sets, "is_deleted = ?")
		args = append(args, *patch.IsDeleted)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now(), id)

	res, err := db.ExecContext(ctx,
		`UPDATE appointments SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update appointment %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func appointmentWhere(filter store.AppointmentFilter) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	if !filter.IncludeDeleted {
		where = append(where, "is_deleted = 0")
	}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			marks[i] = "?"
			args = append(args, st)
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if !filter.CreatedSince.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.CreatedSince.UTC())
	}
	if filter.SlotDate != "" {
		where = append(where, "slot_id IN (SELECT id FROM slots WHERE date = ?)")
		args = append(args, filter.SlotDate)
	}
	if len(where) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func scanAppointment(row rowScanner) (*models.Appointment, error) {
	var (
		a      models.Appointment
		status string
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.UserEmail, &a.UserName, &a.SlotID, &a.Title, &a.Description,
		&status, &a.IsDeleted, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Status = models.Status(status)
	return &a, nil
}
