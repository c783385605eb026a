// Package api exposes the appointment lifecycle over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"schedulease/internal/analytics"
	"schedulease/internal/apperr"
	"schedulease/internal/booking"
	"schedulease/internal/models"
	"schedulease/internal/notify"
)

const maxBodyBytes = 1 << 20

// Lifecycle is the booking surface the handlers call into.
type Lifecycle interface {
	Create(ctx context.Context, id models.Identity, req booking.CreateRequest) (*booking.Detail, error)
	Approve(ctx context.Context, id models.Identity, apptID string) (*booking.Detail, error)
	Reject(ctx context.Context, id models.Identity, apptID string) (*booking.Detail, error)
	Cancel(ctx context.Context, id models.Identity, apptID string) (*booking.Detail, error)
	Reschedule(ctx context.Context, id models.Identity, apptID, newSlotID string) (*booking.Detail, error)
	Update(ctx context.Context, id models.Identity, apptID string, req booking.UpdateRequest) (*booking.Detail, error)
	Get(ctx context.Context, id models.Identity, apptID string) (*booking.Detail, error)
	List(ctx context.Context, id models.Identity, status models.Status) ([]booking.Detail, error)
	CreateWindow(ctx context.Context, id models.Identity, req booking.WindowRequest) (*models.Slot, error)
	SlotsFor(ctx context.Context, date string) ([]models.Slot, error)
}

// Dashboard provides admin analytics.
type Dashboard interface {
	Dashboard(ctx context.Context) (*analytics.Dashboard, error)
}

// AuditExporter writes the audit workbook.
type AuditExporter interface {
	Export(ctx context.Context, w io.Writer) (int, error)
}

// Mailer sends ad-hoc messages.
type Mailer interface {
	Send(ctx context.Context, msg notify.Message) error
}

// Config for the HTTP surface.
type Config struct {
	Port           int
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// Deps are the collaborators behind the routes. Dashboard, Audit and Mailer may be nil.
type Deps struct {
	Lifecycle Lifecycle
	Dashboard Dashboard
	Audit     AuditExporter
	Mailer    Mailer
	Auth      *Authenticator
}

// HTTPServer serves the REST API.
type HTTPServer struct {
	server *http.Server
	deps   Deps
	logger zerolog.Logger
}

func NewHTTPServer(cfg Config, deps Deps, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		deps:   deps,
		logger: logger.With().Str("component", "api").Logger(),
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	handler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(s.routes())

	if cfg.RateLimitRPS > 0 {
		handler = newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).middleware(handler)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.logRequests(handler),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes() *httprouter.Router {
	r := httprouter.New()
	auth := s.deps.Auth.Authenticate

	r.GET("/", s.handleRoot)

	r.GET("/api/appointments", auth(s.handleListAppointments))
	r.POST("/api/appointments", auth(s.handleCreateAppointment))
	r.GET("/api/appointments/:id", auth(s.handleGetAppointment))
	r.PUT("/api/appointments/:id", auth(s.handleUpdateAppointment))
	r.DELETE("/api/appointments/:id", auth(s.handleCancelAppointment))
	r.PATCH("/api/appointments/:id/approve", auth(s.handleApprove))
	r.PATCH("/api/appointments/:id/reject", auth(s.handleReject))
	r.PUT("/api/appointments/:id/reschedule", auth(s.handleReschedule))

	r.GET("/api/slots", s.handleListSlots)
	r.POST("/api/slots", auth(s.handleCreateWindow))

	r.GET("/api/admin/analytics", auth(s.handleAnalytics))
	r.GET("/api/admin/audit.xlsx", auth(s.handleAuditExport))
	r.POST("/api/notifications/send", auth(s.handleSendNotification))

	r.PanicHandler = func(w http.ResponseWriter, r *http.Request, v interface{}) {
		s.logger.Error().Interface("panic", v).Str("path", r.URL.Path).Msg("handler panic")
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
	return r
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown. It returns nil on a clean shutdown.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *HTTPServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return apperr.Validation("invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindUnavailable, apperr.KindInvalidTransition:
		return http.StatusConflict
	case apperr.KindDispatch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg, "kind": string(kind)})
}
