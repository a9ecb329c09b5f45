// Package scheduler injects jobs into the queues on recurring cron
// triggers. Triggers are keyed: registering a key again updates the
// standing schedule in place.
package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/notifyhub/eventdesk/internal/analytics"
	"github.com/notifyhub/eventdesk/internal/jobs"
)

var ErrTriggerNotFound = errors.New("trigger not found")

// Trigger is one standing schedule: fire Type on Queue with Data whenever
// Spec matches.
type Trigger struct {
	Key       string          `json:"key"`
	Spec      string          `json:"spec"`
	Queue     string          `json:"queue"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	NextRunAt time.Time       `json:"next_run_at"`
	LastRunAt *time.Time      `json:"last_run_at,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// cronParser accepts standard five-field expressions and descriptors such
// as "@daily" or "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSpec parses a cron expression.
func ParseSpec(spec string) (cronlib.Schedule, error) {
	s, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	return s, nil
}

// For builds a trigger that enqueues j.
func For(key, spec string, j jobs.Job) Trigger {
	data, _ := json.Marshal(j)
	return Trigger{Key: key, Spec: spec, Queue: j.Queue(), Type: j.Kind(), Data: data}
}

// DefaultTriggers are the recurring sweeps every deployment runs. Times are
// UTC.
func DefaultTriggers() []Trigger {
	return []Trigger{
		For("event-reminder-24h", "*/15 * * * *", jobs.ReminderSweep{Lead: 24 * time.Hour}),
		For("event-reminder-1h", "*/15 * * * *", jobs.ReminderSweep{Lead: time.Hour}),
		For("notification-delivery", "*/15 * * * *", jobs.NotificationDeliverySweep{}),
		For("feedback-requests", "0 10 * * *", jobs.FeedbackRequestSweep{}),
		For("notification-cleanup", "0 3 * * *", jobs.NotificationCleanup{}),
		For("analytics-daily", "0 1 * * *", jobs.AnalyticsSweep{Period: analytics.Daily}),
		For("analytics-weekly", "0 2 * * 1", jobs.AnalyticsSweep{Period: analytics.Weekly}),
		For("analytics-monthly", "0 4 1 * *", jobs.AnalyticsSweep{Period: analytics.Monthly}),
	}
}
