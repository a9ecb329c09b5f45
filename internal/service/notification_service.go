package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/eventdesk/internal/domain"
	"github.com/notifyhub/eventdesk/internal/jobs"
	"github.com/notifyhub/eventdesk/internal/queue"
	"github.com/notifyhub/eventdesk/internal/repository"
)

const defaultPendingLimit = 50

// NotificationService is the producer side of in-app notifications.
// HTTP handlers depend on this service, never on the queues directly.
type NotificationService struct {
	repos  *repository.Store
	reg    *queue.Registry
	now    func() time.Time
	logger *zap.Logger
}

func NewNotificationService(repos *repository.Store, reg *queue.Registry, logger *zap.Logger) *NotificationService {
	return &NotificationService{repos: repos, reg: reg, now: func() time.Time { return time.Now().UTC() }, logger: logger}
}

// BroadcastReceipt describes what a broadcast enqueued.
type BroadcastReceipt struct {
	JobID     string `json:"job_id"`
	Duplicate bool   `json:"duplicate"`
	Emails    int    `json:"emails"`
}

// Broadcast enqueues one notification for many users.
//
// Idempotency: with an idempotency key the job ID and every per-user dedupe
// key derive from it, so repeating the request returns the original job
// with Duplicate=true.
func (s *NotificationService) Broadcast(ctx context.Context, req domain.BroadcastRequest, idempotencyKey string) (*BroadcastReceipt, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	prefix := "broadcast:" + idempotencyKey

	h, err := jobs.Enqueue(ctx, s.reg, jobs.BroadcastNotification{
		UserIDs:      req.UserIDs,
		Title:        req.Title,
		Message:      req.Message,
		Category:     req.Category,
		Link:         req.Link,
		Priority:     req.Priority,
		DedupePrefix: prefix,
		ScheduledFor: req.ScheduledFor,
		ExpiresAt:    req.ExpiresAt,
	}, queue.WithJobID(prefix), queue.WithPriority(req.Priority.JobPriority()))
	if err != nil {
		return nil, err
	}
	receipt := &BroadcastReceipt{JobID: h.JobID, Duplicate: !h.Created}
	if !req.SendEmail {
		return receipt, nil
	}

	for _, uid := range req.UserIDs {
		user, err := s.repos.Users.GetByID(ctx, uid)
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("broadcast email skipped, unknown user", zap.String("user_id", uid))
			continue
		}
		if err != nil {
			return nil, err
		}
		opts := []queue.Option{queue.WithJobID(prefix + ":email:" + uid), queue.WithPriority(req.Priority.JobPriority())}
		if req.ScheduledFor != nil {
			if d := req.ScheduledFor.Sub(s.now()); d > 0 {
				opts = append(opts, queue.WithDelay(d))
			}
		}
		eh, err := jobs.Enqueue(ctx, s.reg, jobs.CustomEmail{
			To:      user.Email,
			Subject: req.Title,
			Body:    strings.TrimSpace(req.Message),
		}, opts...)
		if err != nil {
			return nil, err
		}
		if eh.Created {
			receipt.Emails++
		}
	}
	return receipt, nil
}

// Pending lists the user's pending notifications, newest first.
func (s *NotificationService) Pending(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	if limit <= 0 || limit > defaultPendingLimit {
		limit = defaultPendingLimit
	}
	return s.repos.Notifications.ListPending(ctx, userID, s.now(), limit)
}

func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	return s.repos.Notifications.MarkRead(ctx, id, userID, s.now())
}
