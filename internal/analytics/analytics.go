// Package analytics computes the admin dashboard counters.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"schedulease/internal/events"
	"schedulease/internal/models"
	"schedulease/internal/store"
)

const cacheKey = "schedulease:analytics:dashboard"

// Dashboard is the admin analytics payload.
type Dashboard struct {
	PendingCount        int `json:"pendingCount"`
	TodayAppointments   int `json:"todayAppointments"`
	ApprovedThisWeek    int `json:"approvedThisWeek"`
	TotalUsers          int `json:"totalUsers"`
	MonthlyAppointments int `json:"monthlyAppointments"`
	ApprovalRate        int `json:"approvalRate"`
	Cancellations       int `json:"cancellations"`
}

// Source is the read side the counters are computed from.
type Source interface {
	CountAppointments(ctx context.Context, filter store.AppointmentFilter) (int, error)
	CountUsers(ctx context.Context) (int, error)
}

// Service computes dashboards, optionally caching them in Redis.
type Service struct {
	src    Source
	rdb    *redis.Client
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

func NewService(src Source, logger *zerolog.Logger) *Service {
	return &Service{
		src:    src,
		now:    time.Now,
		logger: logger.With().Str("component", "analytics").Logger(),
	}
}

// WithCache keeps computed dashboards in Redis for ttl.
func (s *Service) WithCache(rdb *redis.Client, ttl time.Duration) *Service {
	s.rdb = rdb
	s.ttl = ttl
	return s
}

// ApprovalRate is round(approved/total*100), 0 when there is nothing to rate.
func ApprovalRate(approved, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(approved) / float64(total) * 100))
}

// Dashboard returns the current counters.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	var d Dashboard
	if s.readCache(ctx, &d) {
		return &d, nil
	}

	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	counts := []struct {
		dst    *int
		filter store.AppointmentFilter
	}{
		{&d.PendingCount, store.AppointmentFilter{Statuses: []models.Status{models.StatusPending}}},
		{&d.TodayAppointments, store.AppointmentFilter{SlotDate: now.Format(models.DateLayout)}},
		{&d.ApprovedThisWeek, store.AppointmentFilter{
			Statuses:     []models.Status{models.StatusApproved},
			CreatedSince: now.AddDate(0, 0, -7),
		}},
		{&d.MonthlyAppointments, store.AppointmentFilter{CreatedSince: monthStart}},
		{&d.Cancellations, store.AppointmentFilter{
			Statuses:       []models.Status{models.StatusCancelled},
			IncludeDeleted: true,
		}},
	}
	for _, c := range counts {
		n, err := s.src.CountAppointments(ctx, c.filter)
		if err != nil {
			return nil, fmt.Errorf("count appointments: %w", err)
		}
		*c.dst = n
	}

	total, err := s.src.CountAppointments(ctx, store.AppointmentFilter{})
	if err != nil {
		return nil, fmt.Errorf("count appointments: %w", err)
	}
	approved, err := s.src.CountAppointments(ctx, store.AppointmentFilter{Statuses: []models.Status{models.StatusApproved}})
	if err != nil {
		return nil, fmt.Errorf("count appointments: %w", err)
	}
	d.ApprovalRate = ApprovalRate(approved, total)

	if d.TotalUsers, err = s.src.CountUsers(ctx); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	s.writeCache(ctx, &d)
	return &d, nil
}

// Invalidate drops the cached dashboard.
func (s *Service) Invalidate(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, cacheKey).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("invalidate dashboard cache")
	}
}

// Subscribe invalidates the cache on every appointment event.
func (s *Service) Subscribe(bus *events.EventBus) {
	for _, et := range events.AllAppointmentEvents {
		bus.Subscribe(et, func(events.Event) error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.Invalidate(ctx)
			return nil
		})
	}
}

func (s *Service) readCache(ctx context.Context, out *Dashboard) bool {
	if s.rdb == nil || s.ttl <= 0 {
		return false
	}
	val, err := s.rdb.Get(ctx, cacheKey).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(val), out) == nil
}

func (s *Service) writeCache(ctx context.Context, d *Dashboard) {
	if s.rdb == nil || s.ttl <= 0 {
		return
	}
	data, err := json.Marshal(d)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, cacheKey, data, s.ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("cache dashboard")
	}
}
