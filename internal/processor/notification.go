package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/eventdesk/internal/domain"
	"github.com/notifyhub/eventdesk/internal/jobs"
	"github.com/notifyhub/eventdesk/internal/queue"
	"github.com/notifyhub/eventdesk/internal/repository"
)

// Notification stores in-app notifications and marks due ones delivered.
type Notification struct {
	repos  *repository.Store
	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

func NewNotification(repos *repository.Store, cfg Config, now func() time.Time, logger *zap.Logger) *Notification {
	if now == nil {
		now = systemClock
	}
	return &Notification{repos: repos, cfg: cfg.withDefaults(), now: now, logger: logger}
}

type createResult struct {
	NotificationID string `json:"notification_id,omitempty"`
	Created        bool   `json:"created"`
}

type broadcastResult struct {
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
}

type deliverResult struct {
	Delivered int `json:"delivered"`
}

func (p *Notification) Handle(ctx context.Context, j *queue.Job) (any, error) {
	job, err := jobs.DecodeNotification(j)
	if err != nil {
		return nil, err
	}

	switch v := job.(type) {
	case *jobs.CreateNotification:
		n := p.build(v.UserID, v.Title, v.Message, v.Category, v.Link, v.Priority, v.DedupeKey, v.ScheduledFor, v.ExpiresAt)
		created, err := p.create(ctx, n)
		if err != nil {
			return nil, err
		}
		res := createResult{Created: created}
		if created {
			res.NotificationID = n.ID
		}
		return res, nil

	case *jobs.BroadcastNotification:
		var res broadcastResult
		for _, uid := range v.UserIDs {
			key := ""
			if v.DedupePrefix != "" {
				key = v.DedupePrefix + ":" + uid
			}
			n := p.build(uid, v.Title, v.Message, v.Category, v.Link, v.Priority, key, v.ScheduledFor, v.ExpiresAt)
			created, err := p.create(ctx, n)
			if err != nil {
				// Copies already stored are skipped on retry through their dedupe keys.
				return nil, fmt.Errorf("broadcast to %s: %w", uid, err)
			}
			if created {
				res.Created++
			} else {
				res.Duplicates++
			}
		}
		return res, nil

	case *jobs.DeliverDue:
		limit := v.Limit
		if limit <= 0 {
			limit = p.cfg.DeliveryBatch
		}
		n, err := p.repos.Notifications.MarkDelivered(ctx, p.now(), limit)
		if err != nil {
			return nil, fmt.Errorf("mark delivered: %w", err)
		}
		return deliverResult{Delivered: n}, nil
	}
	return nil, queue.Permanent(fmt.Errorf("unhandled notification job %T", job))
}

func (p *Notification) build(userID, title, message, category, link string, prio domain.Priority, dedupe string, scheduled, expires *time.Time) *domain.Notification {
	if prio == "" {
		prio = domain.PriorityNormal
	}
	n := &domain.Notification{
		ID:           uuid.NewString(),
		UserID:       userID,
		Title:        title,
		Message:      message,
		Category:     category,
		Link:         link,
		Priority:     prio,
		ScheduledFor: scheduled,
		ExpiresAt:    expires,
		CreatedAt:    p.now(),
	}
	if dedupe != "" {
		n.DedupeKey = &dedupe
	}
	return n
}

// create reports false when the dedupe key was already used.
func (p *Notification) create(ctx context.Context, n *domain.Notification) (bool, error) {
	err := p.repos.Notifications.Create(ctx, n)
	if errors.Is(err, domain.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create notification: %w", err)
	}
	return true, nil
}
