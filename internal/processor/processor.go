// Package processor holds one worker.Handler per queue. Each handler
// decodes the stored job onto its typed variant and type-switches on it.
package processor

import (
	"errors"
	"strings"
	"time"

	"github.com/notifyhub/eventdesk/internal/domain"
	"github.com/notifyhub/eventdesk/internal/provider"
	"github.com/notifyhub/eventdesk/internal/queue"
	"github.com/notifyhub/eventdesk/internal/templates"
)

// Config carries the settings shared by the processors.
type Config struct {
	AppName string
	BaseURL string
	// ReminderWindow is the width of each reminder sweep window and must
	// match the sweep's trigger interval.
	ReminderWindow time.Duration
	// ReminderSMS adds a text message to each reminder for users with a
	// phone number on file.
	ReminderSMS bool
	// FeedbackLookback selects events that ended within this long before a
	// feedback sweep.
	FeedbackLookback time.Duration
	// ReadRetention is how long read notifications are kept.
	ReadRetention time.Duration
	DeliveryBatch int
	// BulkParallelism bounds concurrent generations in a bulk certificate job.
	BulkParallelism int
}

func (c Config) withDefaults() Config {
	if c.AppName == "" {
		c.AppName = "EventDesk"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.ReminderWindow <= 0 {
		c.ReminderWindow = 15 * time.Minute
	}
	if c.FeedbackLookback <= 0 {
		c.FeedbackLookback = 24 * time.Hour
	}
	if c.ReadRetention <= 0 {
		c.ReadRetention = 30 * 24 * time.Hour
	}
	if c.DeliveryBatch <= 0 {
		c.DeliveryBatch = 500
	}
	if c.BulkParallelism <= 0 {
		c.BulkParallelism = 4
	}
	return c
}

func (c Config) eventURL(eventID string) string {
	return c.BaseURL + "/events/" + eventID
}

func (c Config) templateData() templates.Data {
	return templates.Data{AppName: c.AppName, BaseURL: c.BaseURL}
}

// classify marks errors that no retry can fix as permanent.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrNotAttended),
		errors.Is(err, domain.ErrRegistrationCancelled),
		errors.Is(err, provider.ErrRejected):
		return queue.Permanent(err)
	}
	return err
}

func systemClock() time.Time { return time.Now().UTC() }
