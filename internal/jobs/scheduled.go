package jobs

import (
	"time"

	"github.com/notifyhub/eventdesk/internal/analytics"
	"github.com/notifyhub/eventdesk/internal/queue"
)

// ScheduledJob variants are sweeps: they query for affected entities and
// fan out child jobs onto the other queues.
type ScheduledJob interface {
	Job
	scheduledJob()
}

type scheduledQueue struct{}

func (scheduledQueue) Queue() string { return QueueScheduled }
func (scheduledQueue) scheduledJob() {}

// ReminderSweep reminds registrants of events starting Lead after At.
// At is stamped by the scheduler; a zero At means "now".
type ReminderSweep struct {
	scheduledQueue
	Lead time.Duration `json:"-"`
	At   time.Time     `json:"scheduled_at,omitzero"`
}

func (r ReminderSweep) Kind() string {
	if r.Lead == time.Hour {
		return "event_reminder_1h"
	}
	return "event_reminder_24h"
}

type FeedbackRequestSweep struct {
	scheduledQueue
	At time.Time `json:"scheduled_at,omitzero"`
}

func (FeedbackRequestSweep) Kind() string { return "feedback_requests" }

type NotificationCleanup struct{ scheduledQueue }

func (NotificationCleanup) Kind() string { return "notification_cleanup" }

type NotificationDeliverySweep struct{ scheduledQueue }

func (NotificationDeliverySweep) Kind() string { return "notification_delivery" }

// AnalyticsSweep enqueues the rollup for the period that just closed.
type AnalyticsSweep struct {
	scheduledQueue
	Period analytics.Period `json:"-"`
	At     time.Time        `json:"scheduled_at,omitzero"`
}

func (a AnalyticsSweep) Kind() string { return "analytics_" + string(a.Period) }

var scheduledKinds = map[string]func() ScheduledJob{
	"event_reminder_24h":    func() ScheduledJob { return &ReminderSweep{Lead: 24 * time.Hour} },
	"event_reminder_1h":     func() ScheduledJob { return &ReminderSweep{Lead: time.Hour} },
	"feedback_requests":     func() ScheduledJob { return &FeedbackRequestSweep{} },
	"notification_cleanup":  func() ScheduledJob { return &NotificationCleanup{} },
	"notification_delivery": func() ScheduledJob { return &NotificationDeliverySweep{} },
	"analytics_daily":       func() ScheduledJob { return &AnalyticsSweep{Period: analytics.Daily} },
	"analytics_weekly":      func() ScheduledJob { return &AnalyticsSweep{Period: analytics.Weekly} },
	"analytics_monthly":     func() ScheduledJob { return &AnalyticsSweep{Period: analytics.Monthly} },
}

func DecodeScheduled(j *queue.Job) (ScheduledJob, error) { return decode(j, scheduledKinds) }
