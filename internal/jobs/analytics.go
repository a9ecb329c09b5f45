package jobs

import (
	"github.com/notifyhub/eventdesk/internal/analytics"
	"github.com/notifyhub/eventdesk/internal/queue"
)

type AnalyticsJob interface {
	Job
	analyticsJob()
}

type analyticsQueue struct{}

func (analyticsQueue) Queue() string { return QueueAnalytics }
func (analyticsQueue) analyticsJob() {}

type EventStats struct {
	analyticsQueue
	EventID string `json:"event_id"`
}

func (EventStats) Kind() string { return "event_stats" }

type UserStats struct {
	analyticsQueue
	UserID string `json:"user_id"`
}

func (UserStats) Kind() string { return "user_stats" }

// CertificateStats covers one event, or every event when EventID is empty.
type CertificateStats struct {
	analyticsQueue
	EventID string `json:"event_id,omitempty"`
}

func (CertificateStats) Kind() string { return "certificate_stats" }

type FeedbackStats struct {
	analyticsQueue
	EventID string `json:"event_id"`
}

func (FeedbackStats) Kind() string { return "feedback_stats" }

// Rollup aggregates the last complete period. The period travels in the
// job type, not the payload.
type Rollup struct {
	analyticsQueue
	Period analytics.Period `json:"-"`
}

func (r Rollup) Kind() string { return string(r.Period) + "_rollup" }

var analyticsKinds = map[string]func() AnalyticsJob{
	"event_stats":       func() AnalyticsJob { return &EventStats{} },
	"user_stats":        func() AnalyticsJob { return &UserStats{} },
	"certificate_stats": func() AnalyticsJob { return &CertificateStats{} },
	"feedback_stats":    func() AnalyticsJob { return &FeedbackStats{} },
	"daily_rollup":      func() AnalyticsJob { return &Rollup{Period: analytics.Daily} },
	"weekly_rollup":     func() AnalyticsJob { return &Rollup{Period: analytics.Weekly} },
	"monthly_rollup":    func() AnalyticsJob { return &Rollup{Period: analytics.Monthly} },
}

func DecodeAnalytics(j *queue.Job) (AnalyticsJob, error) { return decode(j, analyticsKinds) }
