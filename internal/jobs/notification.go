package jobs

import (
	"time"

	"github.com/notifyhub/eventdesk/internal/domain"
	"github.com/notifyhub/eventdesk/internal/queue"
)

type NotificationJob interface {
	Job
	notificationJob()
}

type notificationQueue struct{}

func (notificationQueue) Queue() string    { return QueueNotification }
func (notificationQueue) notificationJob() {}

// CreateNotification stores one in-app notification. DedupeKey makes the
// job safe to redeliver.
type CreateNotification struct {
	notificationQueue
	UserID       string          `json:"user_id"`
	Title        string          `json:"title"`
	Message      string          `json:"message"`
	Category     string          `json:"category"`
	Link         string          `json:"link,omitempty"`
	Priority     domain.Priority `json:"priority,omitempty"`
	DedupeKey    string          `json:"dedupe_key,omitempty"`
	ScheduledFor *time.Time      `json:"scheduled_for,omitempty"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
}

func (CreateNotification) Kind() string { return "create" }

// BroadcastNotification stores the same notification for every user.
// Each copy is deduplicated by DedupePrefix + ":" + user ID.
type BroadcastNotification struct {
	notificationQueue
	UserIDs      []string        `json:"user_ids"`
	Title        string          `json:"title"`
	Message      string          `json:"message"`
	Category     string          `json:"category"`
	Link         string          `json:"link,omitempty"`
	Priority     domain.Priority `json:"priority,omitempty"`
	DedupePrefix string          `json:"dedupe_prefix"`
	ScheduledFor *time.Time      `json:"scheduled_for,omitempty"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
}

func (BroadcastNotification) Kind() string { return "broadcast" }

// DeliverDue marks up to Limit pending notifications as delivered.
type DeliverDue struct {
	notificationQueue
	Limit int `json:"limit,omitempty"`
}

func (DeliverDue) Kind() string { return "deliver_due" }

var notificationKinds = map[string]func() NotificationJob{
	"create":      func() NotificationJob { return &CreateNotification{} },
	"broadcast":   func() NotificationJob { return &BroadcastNotification{} },
	"deliver_due": func() NotificationJob { return &DeliverDue{} },
}

func DecodeNotification(j *queue.Job) (NotificationJob, error) { return decode(j, notificationKinds) }
