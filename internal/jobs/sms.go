package jobs

import "github.com/notifyhub/eventdesk/internal/queue"

type SMSJob interface {
	Job
	smsJob()
}

type smsQueue struct{}

func (smsQueue) Queue() string { return QueueSMS }
func (smsQueue) smsJob()       {}

type RegistrationConfirmationSMS struct {
	smsQueue
	UserID  string `json:"user_id"`
	EventID string `json:"event_id"`
}

func (RegistrationConfirmationSMS) Kind() string { return "registration_confirmation" }

type EventReminderSMS struct {
	smsQueue
	UserID      string `json:"user_id"`
	EventID     string `json:"event_id"`
	HoursBefore int    `json:"hours_before"`
}

func (EventReminderSMS) Kind() string { return "event_reminder" }

type CustomSMS struct {
	smsQueue
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func (CustomSMS) Kind() string { return "custom" }

var smsKinds = map[string]func() SMSJob{
	"registration_confirmation": func() SMSJob { return &RegistrationConfirmationSMS{} },
	"event_reminder":            func() SMSJob { return &EventReminderSMS{} },
	"custom":                    func() SMSJob { return &CustomSMS{} },
}

func DecodeSMS(j *queue.Job) (SMSJob, error) { return decode(j, smsKinds) }
