// Package notify renders and delivers appointment notifications.
package notify

import (
	"context"
	"errors"
)

// Kind selects the notification template.
type Kind string

const (
	KindBooking      Kind = "booking"
	KindApproval     Kind = "approval"
	KindRejection    Kind = "rejection"
	KindCancellation Kind = "cancellation"
	KindReschedule   Kind = "reschedule"
)

// Kinds lists every template kind.
var Kinds = []Kind{KindBooking, KindApproval, KindRejection, KindCancellation, KindReschedule}

// Context is the structured data a template may reference.
type Context struct {
	Name   string
	Title  string
	Date   string
	Time   string
	Status string
}

// Dispatcher delivers one notification on a best-effort basis.
type Dispatcher interface {
	Dispatch(ctx context.Context, to string, kind Kind, data Context) error
}

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Transport sends a rendered message.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// Alerter tells an operator that a notification could not be delivered.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
