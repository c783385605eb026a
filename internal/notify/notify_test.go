package notify

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedulease/internal/apperr"
)

var sample = Context{
	Name:   "Asha Menon",
	Title:  "Project review",
	Date:   "2025-06-02",
	Time:   "09:00 - 09:30",
	Status: "pending",
}

func TestRenderGolden(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	for _, kind := range []Kind{KindBooking, KindRejection} {
		t.Run(string(kind), func(t *testing.T) {
			msg, err := r.Render("asha@example.com", kind, sample)
			require.NoError(t, err)
			g.Assert(t, string(kind), []byte(msg.HTML))
		})
	}
}

func TestRenderSubjectsAndContent(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	tests := []struct {
		kind     Kind
		subject  string
		contains []string
	}{
		{KindBooking, "Your Appointment is Booked", []string{"Asha Menon", "Project review", "PENDING"}},
		{KindApproval, "Appointment Approved", []string{"APPROVED", "2025-06-02", "09:00 - 09:30"}},
		{KindRejection, "Appointment Rejected", []string{"REJECTED", "Project review"}},
		{KindCancellation, "Appointment Cancelled", []string{"CANCELLED", "2025-06-02"}},
		{KindReschedule, "Appointment Rescheduled", []string{"rescheduled", "New date", "09:00 - 09:30"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			msg, err := r.Render("asha@example.com", tt.kind, sample)
			require.NoError(t, err)
			assert.Equal(t, "asha@example.com", msg.To)
			assert.Equal(t, tt.subject, msg.Subject)
			assert.Equal(t, tt.subject, Subject(tt.kind))
			assert.NotEmpty(t, msg.Text)
			for _, s := range tt.contains {
				assert.Contains(t, msg.HTML, s)
			}
		})
	}
}

func TestRenderEscapesInput(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	data := sample
	data.Title = "<script>alert(1)</script>"
	msg, err := r.Render("a@example.com", KindApproval, data)
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.HTML, "&lt;script&gt;")
}

func TestRenderUnknownKind(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	_, err = r.Render("a@example.com", Kind("reminder"), sample)
	assert.Error(t, err)
}

type fakeTransport struct {
	mu    sync.Mutex
	fails int
	err   error
	sent  []Message
	calls int
}

func (f *fakeTransport) Send(_ context.Context, m Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fails {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

type fakeAlerter struct{ texts []string }

func (f *fakeAlerter) Alert(_ context.Context, text string) error {
	f.texts = append(f.texts, text)
	return nil
}

func newTestDispatcher(t *testing.T, tr Transport, retries int) *EmailDispatcher {
	t.Helper()
	r, err := NewRenderer()
	require.NoError(t, err)
	logger := zerolog.New(io.Discard)
	return NewEmailDispatcher(r, tr, EmailConfig{Retry: RetryConfig{MaxRetries: retries}}, &logger)
}

func TestDispatchRetriesTransientFailures(t *testing.T) {
	tr := &fakeTransport{fails: 2, err: errors.New("connection reset")}
	d := newTestDispatcher(t, tr, 2)

	err := d.Dispatch(context.Background(), "asha@example.com", KindApproval, sample)
	require.NoError(t, err)
	assert.Equal(t, 3, tr.calls)
	require.Len(t, tr.sent, 1)
	assert.Equal(t, "Appointment Approved", tr.sent[0].Subject)
}

func TestDispatchGivesUpAndAlerts(t *testing.T) {
	tr := &fakeTransport{fails: 10, err: errors.New("smtp down")}
	alerter := &fakeAlerter{}
	d := newTestDispatcher(t, tr, 1).WithAlerter(alerter)

	err := d.Dispatch(context.Background(), "asha@example.com", KindBooking, sample)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrDispatch))
	assert.Equal(t, 2, tr.calls)
	require.Len(t, alerter.texts, 1)
	assert.Contains(t, alerter.texts[0], "asha@example.com")
}

func TestDispatchStopsOnPermanentError(t *testing.T) {
	tr := &fakeTransport{fails: 10, err: Permanent(errors.New("mailbox unavailable"))}
	d := newTestDispatcher(t, tr, 3)

	err := d.Dispatch(context.Background(), "asha@example.com", KindBooking, sample)
	require.Error(t, err)
	assert.Equal(t, 1, tr.calls)
}

func TestDispatchEmptyRecipient(t *testing.T) {
	tr := &fakeTransport{}
	d := newTestDispatcher(t, tr, 0)

	err := d.Dispatch(context.Background(), "", KindBooking, sample)
	assert.True(t, errors.Is(err, apperr.ErrDispatch))
	assert.Zero(t, tr.calls)
}

func TestSendValidatesMessage(t *testing.T) {
	tr := &fakeTransport{}
	d := newTestDispatcher(t, tr, 0)

	err := d.Send(context.Background(), Message{To: "a@example.com"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	err = d.Send(context.Background(), Message{To: "a@example.com", Subject: "Hello", Text: "hi"})
	require.NoError(t, err)
	require.Len(t, tr.sent, 1)
}

func TestLogTransport(t *testing.T) {
	logger := zerolog.New(io.Discard)
	assert.NoError(t, NewLogTransport(&logger).Send(context.Background(), Message{To: "a@example.com"}))
}

type fakeBot struct{ sent []tgbotapi.Chattable }

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func TestTelegramAlerter(t *testing.T) {
	bot := &fakeBot{}
	a := NewTelegramAlerterWithBot(bot, 42)

	require.NoError(t, a.Alert(context.Background(), "delivery failed"))
	require.Len(t, bot.sent, 1)
	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "delivery failed", msg.Text)

	_, err := NewTelegramAlerter("", 0)
	assert.Error(t, err)
}
