package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "schedulease"

var (
	once sync.Once

	appointmentCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_created_total",
			Help:      "Count of appointments created by initial status.",
		},
		[]string{"status"},
	)

	appointmentTransition = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_transition_total",
			Help:      "Count of lifecycle transitions by event.",
		},
		[]string{"event"},
	)

	slotConflict = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_conflict_total",
			Help:      "Count of booking attempts rejected as unavailable.",
		},
		[]string{"operation"},
	)

	compensation = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compensation_total",
			Help:      "Count of compensating writes by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	notificationSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_sent_total",
			Help:      "Count of notification attempts by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	notificationRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_retries_total",
			Help:      "Count of notification retry attempts.",
		},
	)

	notificationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notification_send_duration_seconds",
			Help:      "Time spent delivering one notification, retries included.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by route.",
		},
		[]string{"route"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			appointmentCreated,
			appointmentTransition,
			slotConflict,
			compensation,
			notificationSent,
			notificationRetries,
			notificationDuration,
			httpRequests,
		)
	})
}

func IncAppointmentCreated(status string) {
	appointmentCreated.WithLabelValues(status).Inc()
}

func IncTransition(event string) {
	appointmentTransition.WithLabelValues(event).Inc()
}

func IncSlotConflict(operation string) {
	slotConflict.WithLabelValues(operation).Inc()
}

func IncCompensation(operation string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	compensation.WithLabelValues(operation, outcome).Inc()
}

func IncNotification(kind, outcome string) {
	notificationSent.WithLabelValues(kind, outcome).Inc()
}

func IncNotificationRetry() {
	notificationRetries.Inc()
}

func ObserveNotification(d time.Duration) {
	notificationDuration.Observe(d.Seconds())
}

func IncHTTP(route string) {
	httpRequests.WithLabelValues(route).Inc()
}
