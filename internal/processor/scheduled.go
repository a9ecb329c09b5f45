package processor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/eventdesk/internal/analytics"
	"github.com/notifyhub/eventdesk/internal/domain"
	"github.com/notifyhub/eventdesk/internal/jobs"
	"github.com/notifyhub/eventdesk/internal/queue"
	"github.com/notifyhub/eventdesk/internal/repository"
)

// Scheduled runs the periodic sweeps. Every child job gets an ID derived
// from what it is about, so overlapping or repeated sweeps never send the
// same reminder twice.
type Scheduled struct {
	repos  *repository.Store
	reg    *queue.Registry
	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

func NewScheduled(repos *repository.Store, reg *queue.Registry, cfg Config, now func() time.Time, logger *zap.Logger) *Scheduled {
	if now == nil {
		now = systemClock
	}
	return &Scheduled{repos: repos, reg: reg, cfg: cfg.withDefaults(), now: now, logger: logger}
}

// SweepResult summarises one fan-out sweep.
type SweepResult struct {
	Events     int `json:"events"`
	Enqueued   int `json:"enqueued"`
	Duplicates int `json:"duplicates"`
}

type cleanupResult struct {
	Expired int `json:"expired"`
	Read    int `json:"read"`
}

type childResult struct {
	JobID string `json:"job_id"`
}

func (p *Scheduled) Handle(ctx context.Context, j *queue.Job) (any, error) {
	job, err := jobs.DecodeScheduled(j)
	if err != nil {
		return nil, err
	}

	switch v := job.(type) {
	case *jobs.ReminderSweep:
		return p.remind(ctx, v.Lead, p.at(v.At))

	case *jobs.FeedbackRequestSweep:
		return p.requestFeedback(ctx, p.at(v.At))

	case *jobs.NotificationCleanup:
		now := p.now()
		expired, err := p.repos.Notifications.DeleteExpired(ctx, now)
		if err != nil {
			return nil, fmt.Errorf("delete expired notifications: %w", err)
		}
		read, err := p.repos.Notifications.DeleteReadBefore(ctx, now.Add(-p.cfg.ReadRetention))
		if err != nil {
			return nil, fmt.Errorf("delete read notifications: %w", err)
		}
		return cleanupResult{Expired: expired, Read: read}, nil

	case *jobs.NotificationDeliverySweep:
		h, err := jobs.Enqueue(ctx, p.reg, jobs.DeliverDue{Limit: p.cfg.DeliveryBatch},
			queue.WithJobID("deliver-due:"+j.ID))
		if err != nil {
			return nil, err
		}
		return childResult{JobID: h.JobID}, nil

	case *jobs.AnalyticsSweep:
		from, _, err := analytics.PeriodRange(v.Period, p.at(v.At))
		if err != nil {
			return nil, queue.Permanent(err)
		}
		h, err := jobs.Enqueue(ctx, p.reg, jobs.Rollup{Period: v.Period},
			queue.WithJobID(fmt.Sprintf("rollup:%s:%s", v.Period, from.Format("2006-01-02"))))
		if err != nil {
			return nil, err
		}
		return childResult{JobID: h.JobID}, nil
	}
	return nil, queue.Permanent(fmt.Errorf("unhandled scheduled job %T", job))
}

// at is the instant a sweep runs for: the trigger's scheduled time when
// the job carries one, otherwise the current time.
func (p *Scheduled) at(scheduled time.Time) time.Time {
	if scheduled.IsZero() {
		return p.now()
	}
	return scheduled
}

// ReminderWindow returns [at+lead, at+lead+width), the start-time window a
// reminder sweep scheduled at at covers. Consecutive ticks width apart
// produce adjacent windows.
func ReminderWindow(at time.Time, lead, width time.Duration) (from, to time.Time) {
	from = at.UTC().Add(lead)
	return from, from.Add(width)
}

func (p *Scheduled) remind(ctx context.Context, lead time.Duration, at time.Time) (*SweepResult, error) {
	from, to := ReminderWindow(at, lead, p.cfg.ReminderWindow)
	events, err := p.repos.Events.ListStartingBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list events starting soon: %w", err)
	}

	hours := int(lead / time.Hour)
	res := &SweepResult{Events: len(events)}
	for _, event := range events {
		regs, err := p.repos.Registrations.ListByEvent(ctx, event.ID, domain.RegistrationRegistered)
		if err != nil {
			return nil, fmt.Errorf("list registrations of %s: %w", event.ID, err)
		}
		for _, reg := range regs {
			key := fmt.Sprintf("reminder:%dh:%s:%s", hours, event.ID, reg.UserID)

			if err := res.add(jobs.Enqueue(ctx, p.reg, jobs.EventReminderEmail{
				UserID: reg.UserID, EventID: event.ID, HoursBefore: hours,
			}, queue.WithJobID(key+":email"))); err != nil {
				return nil, err
			}

			if err := res.add(jobs.Enqueue(ctx, p.reg, jobs.CreateNotification{
				UserID:    reg.UserID,
				Title:     "Event reminder",
				Message:   fmt.Sprintf("%s starts in %d hours.", event.Title, hours),
				Category:  "reminder",
				Link:      p.cfg.eventURL(event.ID),
				Priority:  domain.PriorityHigh,
				DedupeKey: key,
				ExpiresAt: &event.StartTime,
			}, queue.WithJobID(key+":notification"))); err != nil {
				return nil, err
			}

			if !p.cfg.ReminderSMS {
				continue
			}
			user, err := p.repos.Users.GetByID(ctx, reg.UserID)
			if err != nil {
				p.logger.Warn("reminder sms skipped, user lookup failed",
					zap.String("user_id", reg.UserID), zap.Error(err))
				continue
			}
			if user.Phone == "" {
				continue
			}
			if err := res.add(jobs.Enqueue(ctx, p.reg, jobs.EventReminderSMS{
				UserID: reg.UserID, EventID: event.ID, HoursBefore: hours,
			}, queue.WithJobID(key+":sms"))); err != nil {
				return nil, err
			}
		}
	}

	p.logger.Info("reminder sweep done",
		zap.Duration("lead", lead),
		zap.Time("from", from),
		zap.Int("events", res.Events),
		zap.Int("enqueued", res.Enqueued),
	)
	return res, nil
}

func (p *Scheduled) requestFeedback(ctx context.Context, now time.Time) (*SweepResult, error) {
	events, err := p.repos.Events.ListEndedBetween(ctx, now.Add(-p.cfg.FeedbackLookback), now)
	if err != nil {
		return nil, fmt.Errorf("list ended events: %w", err)
	}

	res := &SweepResult{Events: len(events)}
	for _, event := range events {
		attendees, err := p.repos.Registrations.ListByEvent(ctx, event.ID, domain.RegistrationAttended)
		if err != nil {
			return nil, fmt.Errorf("list attendees of %s: %w", event.ID, err)
		}
		for _, reg := range attendees {
			done, err := p.repos.Feedback.Exists(ctx, event.ID, reg.UserID)
			if err != nil {
				return nil, fmt.Errorf("check feedback: %w", err)
			}
			if done {
				continue
			}
			if err := res.add(jobs.Enqueue(ctx, p.reg, jobs.FeedbackRequestEmail{
				UserID: reg.UserID, EventID: event.ID,
			}, queue.WithJobID(fmt.Sprintf("feedback-request:%s:%s", event.ID, reg.UserID)))); err != nil {
				return nil, err
			}
		}
	}
	return res, nil
}

func (r *SweepResult) add(h queue.Handle, err error) error {
	if err != nil {
		return err
	}
	if h.Created {
		r.Enqueued++
	} else {
		r.Duplicates++
	}
	return nil
}
