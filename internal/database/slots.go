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

const slotColumns = `id, kind, parent_id, date, time_start, time_end, is_booked, created_at, updated_at`

// CreateSlot inserts a slot, assigning an ID when empty.
func (db *DB) CreateSlot(ctx context.Context, slot *models.Slot) error {
	if slot.ID == "" {
		slot.ID = store.NewID()
	}
	if slot.Kind == "" {
		slot.Kind = models.SlotKindWindow
	}
	ts := now()
	slot.CreatedAt, slot.UpdatedAt = ts, ts

	_, err := db.ExecContext(ctx, `
		INSERT INTO slots (`+slotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		slot.ID, slot.Kind, nullString(slot.ParentID), slot.Date, slot.TimeStart, slot.TimeEnd,
		slot.IsBooked, slot.CreatedAt, slot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

// GetSlot returns a slot by ID.
func (db *DB) GetSlot(ctx context.Context, id string) (*models.Slot, error) {
	row := db.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = ?`, id)
	slot, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get slot %s: %w", id, err)
	}
	return slot, nil
}

// FindContaining returns an availability window enclosing [start, end), preferring free ones.
func (db *DB) FindContaining(ctx context.Context, date, start, end string) (*models.Slot, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+slotColumns+` FROM slots
		WHERE kind = ? AND date = ? AND time_start <= ? AND time_end >= ?
		ORDER BY is_booked ASC, time_start ASC
		LIMIT 1`,
		models.SlotKindWindow, date, start, end,
	)
	slot, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find containing slot: %w", err)
	}
	return slot, nil
}

// FindOverlapping returns booked slots on date that intersect [start, end).
func (db *DB) FindOverlapping(ctx context.Context, date, start, end string) ([]models.Slot, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+slotColumns+` FROM slots
		WHERE date = ? AND is_booked = 1 AND time_start < ? AND time_end > ?
		ORDER BY time_start`,
		date, end, start,
	)
	if err != nil {
		return nil, fmt.Errorf("find overlapping slots: %w", err)
	}
	defer rows.Close()
	return collectSlots(rows)
}

// SetBooked sets the booked flag unconditionally.
func (db *DB) SetBooked(ctx context.Context, id string, booked bool) error {
	res, err := db.ExecContext(ctx,
		`UPDATE slots SET is_booked = ?, updated_at = ? WHERE id = ?`,
		booked, now(), id,
	)
	if err != nil {
		return fmt.Errorf("set booked %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ClaimSlot books a free slot in a single compare-and-set.
func (db *DB) ClaimSlot(ctx context.Context, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE slots SET is_booked = 1, updated_at = ? WHERE id = ? AND is_booked = 0`,
		now(), id,
	)
	if err != nil {
		return fmt.Errorf("claim slot %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM slots WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check slot %s: %w", id, err)
		}
		return store.ErrSlotTaken
	}

	return tx.Commit()
}

// ListSlots returns slots ordered by date and start time.
func (db *DB) ListSlots(ctx context.Context, filter store.SlotFilter) ([]models.Slot, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Date != "" {
		where = append(where, "date = ?")
		args = append(args, filter.Date)
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.OnlyFree {
		where = append(where, "is_booked = 0")
	}

	query := `SELECT ` + slotColumns + ` FROM slots`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date, time_start, time_end"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()
	return collectSlots(rows)
}

// DeleteSlot removes a slot record.
func (db *DB) DeleteSlot(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM slots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete slot %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSlot(row rowScanner) (*models.Slot, error) {
	var (
		s        models.Slot
		kind     string
		parentID sql.NullString
	)
	if err := row.Scan(&s.ID, &kind, &parentID, &s.Date, &s.TimeStart, &s.TimeEnd,
		&s.IsBooked, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Kind = models.SlotKind(kind)
	if parentID.Valid {
		s.ParentID = parentID.String
	}
	return &s, nil
}

func collectSlots(rows *sql.Rows) ([]models.Slot, error) {
	var slots []models.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, *s)
	}
	return slots, rows.Err()
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
