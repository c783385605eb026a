package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var subjects = map[Kind]string{
	KindBooking:      "Your Appointment is Booked",
	KindApproval:     "Appointment Approved",
	KindRejection:    "Appointment Rejected",
	KindCancellation: "Appointment Cancelled",
	KindReschedule:   "Appointment Rescheduled",
}

// Renderer turns a kind and context into a Message.
type Renderer struct {
	templates map[Kind]*template.Template
}

func NewRenderer() (*Renderer, error) {
	funcs := template.FuncMap{"upper": strings.ToUpper}
	base, err := template.New("base").Funcs(funcs).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	r := &Renderer{templates: make(map[Kind]*template.Template, len(Kinds))}
	for _, kind := range Kinds {
		t, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone layout: %w", err)
		}
		if _, err := t.ParseFS(templateFS, "templates/"+string(kind)+".html"); err != nil {
			return nil, fmt.Errorf("parse %s template: %w", kind, err)
		}
		r.templates[kind] = t
	}
	return r, nil
}

// Subject returns the subject line for kind.
func Subject(kind Kind) string {
	return subjects[kind]
}

// Render builds the message for kind addressed to to.
func (r *Renderer) Render(to string, kind Kind, data Context) (Message, error) {
	t, ok := r.templates[kind]
	if !ok {
		return Message{}, fmt.Errorf("unknown notification kind %q", kind)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", kind, err)
	}

	return Message{
		To:      to,
		Subject: subjects[kind],
		HTML:    buf.String(),
		Text:    plainText(kind, data),
	}, nil
}

func plainText(kind Kind, d Context) string {
	switch kind {
	case KindBooking:
		return fmt.Sprintf("Dear %s, your appointment %q on %s at %s was received. Status: %s.",
			d.Name, d.Title, d.Date, d.Time, strings.ToUpper(d.Status))
	case KindApproval:
		return fmt.Sprintf("Dear %s, your appointment %q on %s at %s has been APPROVED.", d.Name, d.Title, d.Date, d.Time)
	case KindRejection:
		return fmt.Sprintf("Dear %s, your appointment %q has been REJECTED.", d.Name, d.Title)
	case KindCancellation:
		return fmt.Sprintf("Dear %s, your appointment %q on %s at %s has been CANCELLED.", d.Name, d.Title, d.Date, d.Time)
	case KindReschedule:
		return fmt.Sprintf("Dear %s, your appointment %q now takes place on %s at %s.", d.Name, d.Title, d.Date, d.Time)
	}
	return ""
}
