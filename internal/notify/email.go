package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"schedulease/internal/apperr"
	"schedulease/internal/metrics"
)

// RetryConfig holds configuration for retry logic.
type RetryConfig struct {
	MaxRetries  int
	RetryDelays []time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		RetryDelays: []time.Duration{
			500 * time.Millisecond,
			2 * time.Second,
		},
	}
}

func (c RetryConfig) delay(attempt int) time.Duration {
	if len(c.RetryDelays) == 0 {
		return 0
	}
	if attempt >= len(c.RetryDelays) {
		return c.RetryDelays[len(c.RetryDelays)-1]
	}
	return c.RetryDelays[attempt]
}

// EmailConfig tunes the dispatcher.
type EmailConfig struct {
	Retry         RetryConfig
	RatePerSecond float64
	Burst         int
}

// DefaultEmailConfig returns the default dispatcher configuration.
func DefaultEmailConfig() EmailConfig {
	return EmailConfig{
		Retry:         DefaultRetryConfig(),
		RatePerSecond: 5,
		Burst:         5,
	}
}

// EmailDispatcher renders notifications and hands them to a Transport
// with rate limiting and retries.
type EmailDispatcher struct {
	renderer  *Renderer
	transport Transport
	limiter   *rate.Limiter
	retry     RetryConfig
	alerter   Alerter
	logger    zerolog.Logger
}

func NewEmailDispatcher(renderer *Renderer, transport Transport, cfg EmailConfig, logger *zerolog.Logger) *EmailDispatcher {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &EmailDispatcher{
		renderer:  renderer,
		transport: transport,
		limiter:   rate.NewLimiter(limit, burst),
		retry:     cfg.Retry,
		logger:    logger.With().Str("component", "notify").Logger(),
	}
}

// WithAlerter sets the operator alerter used when delivery gives up.
func (d *EmailDispatcher) WithAlerter(a Alerter) *EmailDispatcher {
	d.alerter = a
	return d
}

// Dispatch renders kind for data and delivers it to to.
func (d *EmailDispatcher) Dispatch(ctx context.Context, to string, kind Kind, data Context) error {
	if to == "" {
		metrics.IncNotification(string(kind), "skipped")
		return apperr.Dispatch(errors.New("empty recipient"), "send %s notification", kind)
	}
	msg, err := d.renderer.Render(to, kind, data)
	if err != nil {
		metrics.IncNotification(string(kind), "failed")
		return apperr.Dispatch(err, "render %s notification", kind)
	}
	return d.deliver(ctx, string(kind), msg)
}

// Send delivers an already composed message.
func (d *EmailDispatcher) Send(ctx context.Context, msg Message) error {
	if msg.To == "" || msg.Subject == "" {
		return apperr.Validation("to and subject are required")
	}
	if msg.HTML == "" && msg.Text == "" {
		return apperr.Validation("message body is required")
	}
	return d.deliver(ctx, "custom", msg)
}

func (d *EmailDispatcher) deliver(ctx context.Context, kind string, msg Message) error {
	start := time.Now()
	defer func() { metrics.ObserveNotification(time.Since(start)) }()

	if err := d.limiter.Wait(ctx); err != nil {
		metrics.IncNotification(kind, "failed")
		return apperr.Dispatch(err, "rate limiter")
	}

	var lastErr error
	for attempt := 0; attempt <= d.retry.MaxRetries; attempt++ {
		err := d.transport.Send(ctx, msg)
		if err == nil {
			metrics.IncNotification(kind, "sent")
			d.logger.Info().Str("kind", kind).Str("to", msg.To).Int("attempt", attempt+1).Msg("notification sent")
			return nil
		}
		lastErr = err

		if isPermanent(err) {
			break
		}
		if attempt < d.retry.MaxRetries {
			delay := d.retry.delay(attempt)
			metrics.IncNotificationRetry()
			d.logger.Warn().Err(err).Str("kind", kind).Int("attempt", attempt+1).Dur("delay", delay).Msg("retrying notification")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				metrics.IncNotification(kind, "failed")
				return apperr.Dispatch(ctx.Err(), "send %s notification", kind)
			}
		}
	}

	metrics.IncNotification(kind, "failed")
	d.logger.Error().Err(lastErr).Str("kind", kind).Str("to", msg.To).Msg("notification delivery failed")
	d.alert(ctx, fmt.Sprintf("SchedulEase: %s notification to %s failed: %v", kind, msg.To, lastErr))
	return apperr.Dispatch(lastErr, "send %s notification", kind)
}

func (d *EmailDispatcher) alert(ctx context.Context, text string) {
	if d.alerter == nil {
		return
	}
	if err := d.alerter.Alert(ctx, text); err != nil {
		d.logger.Warn().Err(err).Msg("operator alert failed")
	}
}
