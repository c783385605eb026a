package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"schedulease/internal/apperr"
	"schedulease/internal/audit"
	"schedulease/internal/booking"
	"schedulease/internal/metrics"
	"schedulease/internal/models"
	"schedulease/internal/notify"
)

// RescheduleRequest is the body of PUT /api/appointments/:id/reschedule.
type RescheduleRequest struct {
	SlotID string `json:"slot_id"`
}

// SendRequest is the body of POST /api/notifications/send.
type SendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

func (s *HTTPServer) handleRoot(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	metrics.IncHTTP("root")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("SchedulEase appointments backend is running"))
}

// GET /api/appointments?status=
func (s *HTTPServer) handleListAppointments(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	metrics.IncHTTP("appointments_list")
	s.list(w, r, models.Status(r.URL.Query().Get("status")))
}

func (s *HTTPServer) list(w http.ResponseWriter, r *http.Request, status models.Status) {
	out, err := s.deps.Lifecycle.List(r.Context(), identityFrom(r.Context()), status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /api/appointments
func (s *HTTPServer) handleCreateAppointment(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	metrics.IncHTTP("appointments_create")

	var req booking.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.deps.Lifecycle.Create(r.Context(), identityFrom(r.Context()), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// GET /api/appointments/:id, plus the /approved and /pending listings which
// share the path segment.
func (s *HTTPServer) handleGetAppointment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	switch id := ps.ByName("id"); id {
	case "approved":
		metrics.IncHTTP("appointments_approved")
		s.list(w, r, models.StatusApproved)
	case "pending":
		metrics.IncHTTP("appointments_pending")
		s.list(w, r, models.StatusPending)
	default:
		metrics.IncHTTP("appointments_get")
		d, err := s.deps.Lifecycle.Get(r.Context(), identityFrom(r.Context()), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

// PUT /api/appointments/:id
func (s *HTTPServer) handleUpdateAppointment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	metrics.IncHTTP("appointments_update")

	var req booking.UpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.deps.Lifecycle.Update(r.Context(), identityFrom(r.Context()), ps.ByName("id"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DELETE /api/appointments/:id
func (s *HTTPServer) handleCancelAppointment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	metrics.IncHTTP("appointments_cancel")
	d, err := s.deps.Lifecycle.Cancel(r.Context(), identityFrom(r.Context()), ps.ByName("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// PATCH /api/appointments/:id/approve
func (s *HTTPServer) handleApprove(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	metrics.IncHTTP("appointments_approve")
	d, err := s.deps.Lifecycle.Approve(r.Context(), identityFrom(r.Context()), ps.ByName("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// PATCH /api/appointments/:id/reject
func (s *HTTPServer) handleReject(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	metrics.IncHTTP("appointments_reject")
	d, err := s.deps.Lifecycle.Reject(r.Context(), identityFrom(r.Context()), ps.ByName("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// PUT /api/appointments/:id/reschedule
func (s *HTTPServer) handleReschedule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	metrics.IncHTTP("appointments_reschedule")

	var req RescheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.deps.Lifecycle.Reschedule(r.Context(), identityFrom(r.Context()), ps.ByName("id"), req.SlotID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// GET /api/slots?date=YYYY-MM-DD
func (s *HTTPServer) handleListSlots(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	metrics.IncHTTP("slots_list")

	date := r.URL.Query().Get("date")
	if date == "" {
		s.writeError(w, r, apperr.Validation("date is required"))
		return
	}
	slots, err := s.deps.Lifecycle.SlotsFor(r.Context(), date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

// POST /api/slots
func (s *HTTPServer) handleCreateWindow(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	metrics.IncHTTP("slots_create")

	var req booking.WindowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	slot, err := s.deps.Lifecycle.CreateWindow(r.Context(), identityFrom(r.Context()), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, slot)
}

// GET /api/admin/analytics
func (s *HTTPServer) handleAnalytics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	metrics.IncHTTP("admin_analytics")

	if !s.requireAdmin(w, r) {
		return
	}
	if s.deps.Dashboard == nil {
		writeMessage(w, http.StatusServiceUnavailable, "analytics disabled")
		return
	}
	d, err := s.deps.Dashboard.Dashboard(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// GET /api/admin/audit.xlsx
func (s *HTTPServer) handleAuditExport(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	metrics.IncHTTP("admin_audit")

	if !s.requireAdmin(w, r) {
		return
	}
	if s.deps.Audit == nil {
		writeMessage(w, http.StatusServiceUnavailable, "audit export disabled")
		return
	}

	var buf bytes.Buffer
	if _, err := s.deps.Audit.Export(r.Context(), &buf); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", audit.Filename(time.Now())))
	_, _ = w.Write(buf.Bytes())
}

// POST /api/notifications/send
func (s *HTTPServer) handleSendNotification(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	metrics.IncHTTP("notifications_send")

	if !s.requireAdmin(w, r) {
		return
	}
	if s.deps.Mailer == nil {
		writeMessage(w, http.StatusServiceUnavailable, "mail disabled")
		return
	}

	var req SendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	err := s.deps.Mailer.Send(r.Context(), notify.Message{To: req.To, Subject: req.Subject, Text: req.Text, HTML: req.HTML})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Email sent successfully"})
}

func (s *HTTPServer) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if identityFrom(r.Context()).IsAdmin() {
		return true
	}
	s.writeError(w, r, apperr.Forbidden("admin access required"))
	return false
}
