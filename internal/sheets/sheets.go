// Package sheets mirrors the appointment log into a Google spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"schedulease/internal/events"
	"schedulease/internal/models"
	"schedulease/internal/store"
)

const (
	timeLayout   = "2006-01-02 15:04:05"
	queueSize    = 64
	eventTimeout = 15 * time.Second
)

var header = []interface{}{"ID", "User ID", "Email", "Name", "Title", "Date", "Start", "End", "Status", "Created", "Updated"}

// Source is the read side of the appointment store.
type Source interface {
	ListAppointments(ctx context.Context, filter store.AppointmentFilter) ([]models.Appointment, error)
	GetAppointment(ctx context.Context, id string) (*models.Appointment, error)
	GetSlot(ctx context.Context, id string) (*models.Slot, error)
}

// SheetsService writes appointment rows to one sheet of a spreadsheet.
type SheetsService struct {
	srv           *sheets.Service
	src           Source
	spreadsheetID string
	sheetName     string
	logger        zerolog.Logger

	queue chan events.Event

	mu       sync.Mutex
	rowCache map[string]int
}

// NewSheetsService authenticates with a service-account key file.
func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID, sheetName string, src Source, logger *zerolog.Logger) (*SheetsService, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	cfg, err := google.JWTConfigFromJSON(data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	return NewWithService(srv, spreadsheetID, sheetName, src, logger), nil
}

func NewWithService(srv *sheets.Service, spreadsheetID, sheetName string, src Source, logger *zerolog.Logger) *SheetsService {
	if sheetName == "" {
		sheetName = "Appointments"
	}
	return &SheetsService{
		srv:           srv,
		src:           src,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger.With().Str("component", "sheets").Logger(),
		queue:         make(chan events.Event, queueSize),
		rowCache:      make(map[string]int),
	}
}

// SyncAppointments rewrites the sheet with every active appointment.
func (s *SheetsService) SyncAppointments(ctx context.Context) (int, error) {
	appts, err := s.src.ListAppointments(ctx, store.AppointmentFilter{})
	if err != nil {
		return 0, fmt.Errorf("list appointments: %w", err)
	}
	active := filterActiveAppointments(appts)

	values := make([][]interface{}, 0, len(active)+1)
	values = append(values, header)
	for i := range active {
		values = append(values, appointmentRowValues(&active[i], s.slot(ctx, active[i].SlotID)))
	}

	if _, err := s.srv.Spreadsheets.Values.Clear(s.spreadsheetID, s.sheetName, &sheets.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return 0, fmt.Errorf("clear sheet: %w", err)
	}
	if _, err := s.srv.Spreadsheets.Values.Update(s.spreadsheetID, s.sheetName+"!A1", &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return 0, fmt.Errorf("write sheet: %w", err)
	}

	s.ClearCache()
	for i := range active {
		s.setCachedRow(active[i].ID, i+2)
	}
	s.logger.Info().Int("rows", len(active)).Msg("sheet synced")
	return len(active), nil
}

// HandleEvent updates the appointment's row in place, or appends one.
func (s *SheetsService) HandleEvent(ctx context.Context, e events.Event) error {
	var payload events.AppointmentPayload
	if err := e.Decode(&payload); err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}
	if payload.AppointmentID == "" {
		return errors.New("event without appointment id")
	}

	appt, err := s.src.GetAppointment(ctx, payload.AppointmentID)
	if err != nil {
		return fmt.Errorf("get appointment: %w", err)
	}
	row := appointmentRowValues(appt, s.slot(ctx, appt.SlotID))
	vr := &sheets.ValueRange{Values: [][]interface{}{row}}

	if n, ok := s.getCachedRow(appt.ID); ok {
		rng := fmt.Sprintf("%s!A%d", s.sheetName, n)
		_, err := s.srv.Spreadsheets.Values.Update(s.spreadsheetID, rng, vr).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("update row %d: %w", n, err)
		}
		return nil
	}

	resp, err := s.srv.Spreadsheets.Values.Append(s.spreadsheetID, s.sheetName, vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	if resp.Updates != nil {
		var n int
		if _, err := fmt.Sscanf(firstCell(resp.Updates.UpdatedRange), "A%d", &n); err == nil && n > 0 {
			s.setCachedRow(appt.ID, n)
		}
	}
	return nil
}

// Subscribe queues every appointment event on bus for Run.
// A full queue drops the event with a warning.
func (s *SheetsService) Subscribe(bus *events.EventBus) {
	for _, et := range events.AllAppointmentEvents {
		bus.Subscribe(et, s.enqueue)
	}
}

func (s *SheetsService) enqueue(e events.Event) error {
	select {
	case s.queue <- e:
	default:
		s.logger.Warn().Str("event", e.Type).Msg("sheets queue full, event dropped")
	}
	return nil
}

// Run applies queued events one at a time until ctx is cancelled.
// Events are applied in publish order.
func (s *SheetsService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-s.queue:
			hctx, cancel := context.WithTimeout(ctx, eventTimeout)
			if err := s.HandleEvent(hctx, e); err != nil {
				s.logger.Error().Err(err).Str("event", e.Type).Msg("sheet row update")
			}
			cancel()
		}
	}
}

// ClearCache forgets known row positions.
func (s *SheetsService) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowCache = make(map[string]int)
}

func (s *SheetsService) getCachedRow(id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rowCache[id]
	return n, ok
}

func (s *SheetsService) setCachedRow(id string, row int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowCache[id] = row
}

func (s *SheetsService) slot(ctx context.Context, id string) *models.Slot {
	slot, err := s.src.GetSlot(ctx, id)
	if err != nil {
		s.logger.Warn().Err(err).Str("slot_id", id).Msg("slot lookup for sheet row")
		return nil
	}
	return slot
}

func filterActiveAppointments(appts []models.Appointment) []models.Appointment {
	active := make([]models.Appointment, 0, len(appts))
	for _, a := range appts {
		if a.IsActive() {
			active = append(active, a)
		}
	}
	return active
}

func appointmentRowValues(a *models.Appointment, slot *models.Slot) []interface{} {
	var date, start, end string
	if slot != nil {
		date, start, end = slot.Date, slot.TimeStart, slot.TimeEnd
	}
	return []interface{}{
		a.ID,
		a.UserID,
		a.UserEmail,
		a.UserName,
		a.Title,
		date,
		start,
		end,
		string(a.Status),
		a.CreatedAt.UTC().Format(timeLayout),
		a.UpdatedAt.UTC().Format(timeLayout),
	}
}

// firstCell turns "Appointments!A5:K5" into "A5".
func firstCell(rng string) string {
	if i := strings.LastIndex(rng, "!"); i >= 0 {
		rng = rng[i+1:]
	}
	cell, _, _ := strings.Cut(rng, ":")
	return cell
}
