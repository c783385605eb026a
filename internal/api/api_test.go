package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"schedulease/internal/analytics"
	"schedulease/internal/apperr"
	"schedulease/internal/availability"
	"schedulease/internal/booking"
	"schedulease/internal/database"
	"schedulease/internal/lock"
	"schedulease/internal/models"
	"schedulease/internal/notify"
)

const testSecret = "test-secret"

var (
	external = models.Identity{UserID: "u-ext", Role: models.RoleExternal, Email: "ext@example.com", Name: "Ext"}
	admin    = models.Identity{UserID: "u-admin", Role: models.RoleAdmin, Email: "admin@example.com", Name: "Admin"}
)

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, string, notify.Kind, notify.Context) error { return nil }

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, msg notify.Message) error {
	return m.Called(ctx, msg).Error(0)
}

type stubDashboard struct{}

func (stubDashboard) Dashboard(context.Context) (*analytics.Dashboard, error) {
	return &analytics.Dashboard{PendingCount: 2, TotalUsers: 5}, nil
}

type testServer struct {
	handler http.Handler
	auth    *Authenticator
	db      *database.DB
	mailer  *mockMailer
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	checker := availability.NewChecker(db, lock.NewLocal(time.Second), availability.Options{CheckSiblingOverlap: true}, &logger)
	manager := booking.NewManager(db, checker, nopDispatcher{}, booking.DefaultOptions(), &logger)

	window := &models.Slot{Kind: models.SlotKindWindow, Date: "2025-01-10", TimeStart: "09:00", TimeEnd: "17:00"}
	require.NoError(t, db.CreateSlot(context.Background(), window))

	auth := NewAuthenticator(testSecret, time.Hour)
	mailer := &mockMailer{}
	srv := NewHTTPServer(cfg, Deps{
		Lifecycle: manager,
		Dashboard: stubDashboard{},
		Mailer:    mailer,
		Auth:      auth,
	}, &logger)

	return &testServer{handler: srv.Handler(), auth: auth, db: db, mailer: mailer}
}

func (ts *testServer) do(t *testing.T, method, path string, id *models.Identity, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if id != nil {
		token, err := ts.auth.Issue(*id)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func createBody(start string) booking.CreateRequest {
	return booking.CreateRequest{Date: "2025-01-10", StartTime: start, Duration: 30, Title: "Checkup"}
}

func TestAuthenticatorRoundTrip(t *testing.T) {
	a := NewAuthenticator(testSecret, time.Hour)
	token, err := a.Issue(admin)
	require.NoError(t, err)

	got, err := a.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, admin, got)

	_, err = NewAuthenticator("other-secret", time.Hour).Parse(token)
	assert.Error(t, err)

	_, err = a.Issue(models.Identity{})
	assert.Error(t, err)
}

func TestAuthenticateRejects(t *testing.T) {
	ts := newTestServer(t, Config{})

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing header", "", "missing token"},
		{"wrong scheme", "Basic abc", "invalid token format"},
		{"garbage token", "Bearer not-a-jwt", "invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			ts.handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tt.want, decode[map[string]string](t, rec)["error"])
		})
	}
}

func TestRoot(t *testing.T) {
	ts := newTestServer(t, Config{})
	rec := ts.do(t, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "running")
}

func TestAppointmentLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t, Config{})

	rec := ts.do(t, http.MethodPost, "/api/appointments", &external, createBody("10:00"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[booking.Detail](t, rec)
	assert.Equal(t, models.StatusPending, created.Status)
	require.NotNil(t, created.Slot)
	assert.True(t, created.Slot.IsBooked)

	rec = ts.do(t, http.MethodPost, "/api/appointments", &admin, createBody("10:15"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(apperr.KindUnavailable), decode[map[string]string](t, rec)["kind"])

	rec = ts.do(t, http.MethodGet, "/api/appointments/pending", &admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]booking.Detail](t, rec), 1)

	rec = ts.do(t, http.MethodPatch, "/api/appointments/"+created.ID+"/approve", &external, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPatch, "/api/appointments/"+created.ID+"/approve", &admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusApproved, decode[booking.Detail](t, rec).Status)

	rec = ts.do(t, http.MethodPatch, "/api/appointments/"+created.ID+"/reject", &admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(apperr.KindInvalidTransition), decode[map[string]string](t, rec)["kind"])

	rec = ts.do(t, http.MethodGet, "/api/appointments/approved", &external, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]booking.Detail](t, rec), 1)

	rec = ts.do(t, http.MethodPut, "/api/appointments/"+created.ID, &external, booking.UpdateRequest{Title: "Follow-up"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Follow-up", decode[booking.Detail](t, rec).Title)

	rec = ts.do(t, http.MethodDelete, "/api/appointments/"+created.ID, &external, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cancelled := decode[booking.Detail](t, rec)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	slot, err := ts.db.GetSlot(context.Background(), created.SlotID)
	require.NoError(t, err)
	assert.False(t, slot.IsBooked)
}

func TestRescheduleOverHTTP(t *testing.T) {
	ts := newTestServer(t, Config{})

	rec := ts.do(t, http.MethodPost, "/api/appointments", &external, createBody("10:00"))
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[booking.Detail](t, rec)

	rec = ts.do(t, http.MethodPost, "/api/slots", &admin, booking.WindowRequest{Date: "2025-01-11", TimeStart: "09:00", TimeEnd: "09:30"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	target := decode[models.Slot](t, rec)

	rec = ts.do(t, http.MethodPut, "/api/appointments/"+created.ID+"/reschedule", &external, RescheduleRequest{SlotID: target.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	moved := decode[booking.Detail](t, rec)
	assert.Equal(t, target.ID, moved.SlotID)

	old, err := ts.db.GetSlot(context.Background(), created.SlotID)
	require.NoError(t, err)
	assert.False(t, old.IsBooked)

	rec = ts.do(t, http.MethodPut, "/api/appointments/"+created.ID+"/reschedule", &external, RescheduleRequest{SlotID: "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidationErrors(t *testing.T) {
	ts := newTestServer(t, Config{})

	tests := []struct {
		name string
		body interface{}
	}{
		{"unknown field", map[string]string{"bogus": "x"}},
		{"bad clock", booking.CreateRequest{Date: "2025-01-10", StartTime: "9am", Duration: 30, Title: "x"}},
		{"missing title", booking.CreateRequest{Date: "2025-01-10", StartTime: "09:00", Duration: 30}},
		{"zero duration", booking.CreateRequest{Date: "2025-01-10", StartTime: "09:00", Title: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/appointments", &external, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestListSlotsIsPublic(t *testing.T) {
	ts := newTestServer(t, Config{})

	rec := ts.do(t, http.MethodGet, "/api/slots?date=2025-01-10", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	slots := decode[[]models.Slot](t, rec)
	require.Len(t, slots, 1)
	assert.Equal(t, "09:00", slots[0].TimeStart)

	rec = ts.do(t, http.MethodGet, "/api/slots", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUnknownAppointment(t *testing.T) {
	ts := newTestServer(t, Config{})
	rec := ts.do(t, http.MethodGet, "/api/appointments/does-not-exist", &admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRoutes(t *testing.T) {
	ts := newTestServer(t, Config{})

	rec := ts.do(t, http.MethodGet, "/api/admin/analytics", &external, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/admin/analytics", &admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	d := decode[map[string]interface{}](t, rec)
	assert.EqualValues(t, 2, d["pendingCount"])

	rec = ts.do(t, http.MethodGet, "/api/admin/audit.xlsx", &admin, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSendNotification(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.mailer.On("Send", mock.Anything, notify.Message{To: "a@example.com", Subject: "Hi", Text: "Hello"}).Return(nil).Once()
	ts.mailer.On("Send", mock.Anything, mock.Anything).Return(apperr.Dispatch(assert.AnError, "smtp down")).Once()

	req := SendRequest{To: "a@example.com", Subject: "Hi", Text: "Hello"}

	rec := ts.do(t, http.MethodPost, "/api/notifications/send", &external, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/notifications/send", &admin, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/notifications/send", &admin, SendRequest{To: "b@example.com", Subject: "x", Text: "y"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	ts.mailer.AssertExpectations(t)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, Config{RateLimitRPS: 1, RateLimitBurst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, ts.do(t, http.MethodGet, "/", nil, nil).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind apperr.Kind
		want int
	}{
		{apperr.KindValidation, http.StatusBadRequest},
		{apperr.KindNotFound, http.StatusNotFound},
		{apperr.KindForbidden, http.StatusForbidden},
		{apperr.KindUnavailable, http.StatusConflict},
		{apperr.KindInvalidTransition, http.StatusConflict},
		{apperr.KindDispatch, http.StatusBadGateway},
		{apperr.KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.kind))
		})
	}
}
