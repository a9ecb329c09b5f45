package service_test

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/notifyhub/eventdesk/internal/domain"
	"github.com/notifyhub/eventdesk/internal/jobs"
	"github.com/notifyhub/eventdesk/internal/service"
)

var validBroadcast = domain.BroadcastRequest{
	UserIDs:  []string{"u1", "u2", "ghost"},
	Title:    "Schedule change",
	Message:  "The keynote moved to Hall B",
	Priority: domain.PriorityHigh,
}

func TestNotificationService_Broadcast(t *testing.T) {
	e := newEnv(t)
	svc := service.NewNotificationService(e.repos, e.reg, zap.NewNop())
	ctx := context.Background()

	receipt, err := svc.Broadcast(ctx, validBroadcast, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt.Duplicate || receipt.Emails != 0 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	j, err := e.jobs.Get(ctx, receipt.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if j.Queue != jobs.QueueNotification || j.Type != "broadcast" || j.Priority != domain.PriorityHigh.JobPriority() {
		t.Errorf("unexpected job %s/%s priority %d", j.Queue, j.Type, j.Priority)
	}
}

func TestNotificationService_BroadcastIdempotencyKey(t *testing.T) {
	e := newEnv(t)
	svc := service.NewNotificationService(e.repos, e.reg, zap.NewNop())
	ctx := context.Background()
	req := validBroadcast
	req.SendEmail = true

	first, err := svc.Broadcast(ctx, req, "idem-123")
	if err != nil {
		t.Fatal(err)
	}
	// ghost has no account, so only two emails go out.
	if first.Duplicate || first.Emails != 2 {
		t.Fatalf("unexpected first receipt %+v", first)
	}

	second, err := svc.Broadcast(ctx, req, "idem-123")
	if err != nil {
		t.Fatal(err)
	}
	if !second.Duplicate || second.JobID != first.JobID || second.Emails != 0 {
		t.Fatalf("expected duplicate receipt, got %+v", second)
	}

	counts, _ := e.jobs.Counts(ctx, jobs.QueueEmail)
	if counts.Waiting != 2 {
		t.Fatalf("expected 2 email jobs, got %d", counts.Waiting)
	}
}

func TestNotificationService_BroadcastValidation(t *testing.T) {
	e := newEnv(t)
	svc := service.NewNotificationService(e.repos, e.reg, zap.NewNop())

	bad := validBroadcast
	bad.UserIDs = nil
	if _, err := svc.Broadcast(context.Background(), bad, ""); err != domain.ErrNoRecipients {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}
}

func TestNotificationService_PendingAndRead(t *testing.T) {
	e := newEnv(t)
	svc := service.NewNotificationService(e.repos, e.reg, zap.NewNop())
	ctx := context.Background()
	_ = e.repos.Notifications.Create(ctx, &domain.Notification{ID: "n1", UserID: "u1", Title: "Hi"})

	pending, err := svc.Pending(ctx, "u1", 0)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending notification, got %d (%v)", len(pending), err)
	}
	if err := svc.MarkRead(ctx, "n1", "u2"); err != domain.ErrNotFound {
		t.Fatalf("another user's notification must not be found, got %v", err)
	}
	if err := svc.MarkRead(ctx, "n1", "u1"); err != nil {
		t.Fatal(err)
	}
}
