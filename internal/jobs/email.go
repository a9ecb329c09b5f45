package jobs

import "github.com/notifyhub/eventdesk/internal/queue"

// EmailJob is implemented by every variant of the email queue.
type EmailJob interface {
	Job
	emailJob()
}

type emailQueue struct{}

func (emailQueue) Queue() string { return QueueEmail }
func (emailQueue) emailJob()     {}

type WelcomeEmail struct {
	emailQueue
	UserID string `json:"user_id"`
}

func (WelcomeEmail) Kind() string { return "welcome" }

type RegistrationConfirmationEmail struct {
	emailQueue
	UserID  string `json:"user_id"`
	EventID string `json:"event_id"`
}

func (RegistrationConfirmationEmail) Kind() string { return "registration_confirmation" }

type EventReminderEmail struct {
	emailQueue
	UserID      string `json:"user_id"`
	EventID     string `json:"event_id"`
	HoursBefore int    `json:"hours_before"`
}

func (EventReminderEmail) Kind() string { return "event_reminder" }

type CertificateReadyEmail struct {
	emailQueue
	UserID        string `json:"user_id"`
	EventID       string `json:"event_id"`
	CertificateID string `json:"certificate_id"`
}

func (CertificateReadyEmail) Kind() string { return "certificate_ready" }

type PasswordResetEmail struct {
	emailQueue
	UserID     string `json:"user_id"`
	ResetToken string `json:"reset_token"`
}

func (PasswordResetEmail) Kind() string { return "password_reset" }

type FeedbackRequestEmail struct {
	emailQueue
	UserID  string `json:"user_id"`
	EventID string `json:"event_id"`
}

func (FeedbackRequestEmail) Kind() string { return "feedback_request" }

// CustomEmail is addressed directly; Body is plain text.
type CustomEmail struct {
	emailQueue
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (CustomEmail) Kind() string { return "custom" }

var emailKinds = map[string]func() EmailJob{
	"welcome":                   func() EmailJob { return &WelcomeEmail{} },
	"registration_confirmation": func() EmailJob { return &RegistrationConfirmationEmail{} },
	"event_reminder":            func() EmailJob { return &EventReminderEmail{} },
	"certificate_ready":         func() EmailJob { return &CertificateReadyEmail{} },
	"password_reset":            func() EmailJob { return &PasswordResetEmail{} },
	"feedback_request":          func() EmailJob { return &FeedbackRequestEmail{} },
	"custom":                    func() EmailJob { return &CustomEmail{} },
}

func DecodeEmail(j *queue.Job) (EmailJob, error) { return decode(j, emailKinds) }
