package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogTransport writes messages to the log instead of sending them.
// It is used when no SMTP credentials are configured.
type LogTransport struct {
	logger zerolog.Logger
}

func NewLogTransport(logger *zerolog.Logger) *LogTransport {
	return &LogTransport{logger: logger.With().Str("transport", "log").Logger()}
}

func (t *LogTransport) Send(_ context.Context, m Message) error {
	t.logger.Info().
		Str("to", m.To).
		Str("subject", m.Subject).
		Str("text", m.Text).
		Msg("email not sent, smtp disabled")
	return nil
}
