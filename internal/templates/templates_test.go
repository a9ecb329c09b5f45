package templates_test

import (
	"strings"
	"testing"
	"time"

	"github.com/notifyhub/eventdesk/internal/templates"
)

func TestRenderer_Email(t *testing.T) {
	r, err := templates.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data := templates.Data{
		AppName:     "EventDesk",
		BaseURL:     "https://events.example.com",
		UserName:    "Ada <admin>",
		EventTitle:  "Go & Friends",
		EventURL:    "https://events.example.com/events/ev1",
		Venue:       "Hall B",
		EventStart:  time.Date(2026, 11, 2, 9, 30, 0, 0, time.UTC),
		HoursBefore: 1,
	}

	tests := []struct {
		name        string
		wantSubject string
		wantInBody  string
	}{
		{"welcome", "Welcome to EventDesk", "https://events.example.com/events"},
		{"registration_confirmation", "You're registered: Go & Friends", "Mon, 02 Nov 2026 09:30 UTC"},
		{"event_reminder", "Reminder: Go & Friends starts in 1 hour", "Hall B"},
		{"feedback_request", "How was Go & Friends?", "/events/ev1/feedback"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, err := r.Email(tc.name, data)
			if err != nil {
				t.Fatalf("Email: %v", err)
			}
			if e.Subject != tc.wantSubject {
				t.Errorf("subject = %q, want %q", e.Subject, tc.wantSubject)
			}
			if !strings.Contains(e.HTML, tc.wantInBody) {
				t.Errorf("body missing %q:\n%s", tc.wantInBody, e.HTML)
			}
			if strings.Contains(e.HTML, "<admin>") {
				t.Error("user input must be escaped in HTML bodies")
			}
		})
	}
}

func TestRenderer_EmailPluralHours(t *testing.T) {
	r, _ := templates.New()
	e, err := r.Email("event_reminder", templates.Data{EventTitle: "Meetup", HoursBefore: 24})
	if err != nil {
		t.Fatal(err)
	}
	if e.Subject != "Reminder: Meetup starts in 24 hours" {
		t.Errorf("subject = %q", e.Subject)
	}
}

func TestRenderer_SMS(t *testing.T) {
	r, _ := templates.New()
	msg, err := r.SMS("event_reminder", templates.Data{
		AppName: "EventDesk", EventTitle: "Meetup", HoursBefore: 1, Venue: "Hall B",
		EventURL: "https://e.example.com/events/ev1",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "EventDesk: Meetup starts in 1h at Hall B. Ticket: https://e.example.com/events/ev1/ticket"
	if msg != want {
		t.Errorf("got %q, want %q", msg, want)
	}
}

func TestRenderer_UnknownTemplate(t *testing.T) {
	r, _ := templates.New()
	if _, err := r.Email("newsletter", templates.Data{}); err == nil {
		t.Error("expected error for unknown email template")
	}
	if _, err := r.SMS("welcome", templates.Data{}); err == nil {
		t.Error("expected error for unknown sms template")
	}
}
