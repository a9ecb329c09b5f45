package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/eventdesk/internal/jobs"
	"github.com/notifyhub/eventdesk/internal/queue"
	"github.com/notifyhub/eventdesk/internal/service"
)

func TestQueueAdmin_EnqueueIsNonBlocking(t *testing.T) {
	e := newEnv(t)
	admin := service.NewQueueAdmin(e.reg, zap.NewNop())
	ctx := context.Background()

	h, err := jobs.Enqueue(ctx, e.reg, jobs.WelcomeEmail{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	// No worker is running: the job is persisted and waiting.
	j, err := admin.GetJob(ctx, jobs.QueueEmail, h.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if j.State != queue.StateWaiting {
		t.Fatalf("expected waiting, got %s", j.State)
	}
}

func TestQueueAdmin_PauseKeepsJobsWaiting(t *testing.T) {
	e := newEnv(t)
	admin := service.NewQueueAdmin(e.reg, zap.NewNop())
	ctx := context.Background()

	if err := admin.Pause(ctx, jobs.QueueSMS); err != nil {
		t.Fatal(err)
	}
	if _, err := jobs.Enqueue(ctx, e.reg, jobs.CustomSMS{Phone: "+1555", Message: "hi"}); err != nil {
		t.Fatal(err)
	}
	if j, err := e.jobs.Claim(ctx, jobs.QueueSMS, "w1"); err != nil || j != nil {
		t.Fatalf("paused queue must not hand out jobs, got %v (%v)", j, err)
	}

	s, err := admin.Queue(ctx, jobs.QueueSMS)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Paused || s.Counts.Paused != 1 || s.Concurrency != 3 {
		t.Fatalf("unexpected summary %+v", s)
	}

	if err := admin.Resume(ctx, jobs.QueueSMS); err != nil {
		t.Fatal(err)
	}
	if j, _ := e.jobs.Claim(ctx, jobs.QueueSMS, "w1"); j == nil {
		t.Fatal("expected the job to be claimable after resume")
	}
}

func TestQueueAdmin_PauseAllResumeAll(t *testing.T) {
	e := newEnv(t)
	admin := service.NewQueueAdmin(e.reg, zap.NewNop())
	ctx := context.Background()

	if err := admin.PauseAll(ctx); err != nil {
		t.Fatal(err)
	}
	all, _ := admin.Overview(ctx)
	if len(all) != 6 {
		t.Fatalf("expected 6 queues, got %d", len(all))
	}
	for _, q := range all {
		if !q.Paused {
			t.Errorf("%s not paused", q.Name)
		}
	}
	_ = admin.ResumeAll(ctx)
	all, _ = admin.Overview(ctx)
	for _, q := range all {
		if q.Paused {
			t.Errorf("%s still paused", q.Name)
		}
	}
}

func TestQueueAdmin_ListJobs(t *testing.T) {
	e := newEnv(t)
	admin := service.NewQueueAdmin(e.reg, zap.NewNop())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = jobs.Enqueue(ctx, e.reg, jobs.WelcomeEmail{UserID: "u1"})
	}
	_, _ = jobs.Enqueue(ctx, e.reg, jobs.WelcomeEmail{UserID: "u2"}, queue.WithDelay(time.Hour))

	tests := []struct {
		name    string
		status  queue.State
		limit   int
		want    int
		wantErr error
	}{
		{"default status is waiting", "", 0, 3, nil},
		{"limit", queue.StateWaiting, 2, 2, nil},
		{"delayed", queue.StateDelayed, 0, 1, nil},
		{"bad status", "stuck", 0, 0, service.ErrInvalidStatus},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := admin.ListJobs(ctx, jobs.QueueEmail, tc.status, tc.limit)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if len(got) != tc.want {
				t.Fatalf("got %d jobs, want %d", len(got), tc.want)
			}
		})
	}

	if _, err := admin.ListJobs(ctx, "fax", "", 0); !errors.Is(err, queue.ErrUnknownQueue) {
		t.Fatalf("expected ErrUnknownQueue, got %v", err)
	}
}

func TestQueueAdmin_RetryRemoveClean(t *testing.T) {
	e := newEnv(t)
	now := time.Now()
	e.jobs.SetClock(func() time.Time { return now })
	admin := service.NewQueueAdmin(e.reg, zap.NewNop())
	ctx := context.Background()

	h, _ := jobs.Enqueue(ctx, e.reg, jobs.WelcomeEmail{UserID: "u1"}, queue.WithAttempts(1))
	claimed, _ := e.jobs.Claim(ctx, jobs.QueueEmail, "w1")
	_ = e.jobs.Fail(ctx, claimed.ID, "w1", "smtp down")

	if err := admin.RetryJob(ctx, jobs.QueueSMS, h.JobID); !errors.Is(err, queue.ErrJobNotFound) {
		t.Fatalf("job of another queue must not be found, got %v", err)
	}
	if err := admin.RetryJob(ctx, jobs.QueueEmail, h.JobID); err != nil {
		t.Fatal(err)
	}
	if err := admin.RetryJob(ctx, jobs.QueueEmail, h.JobID); !errors.Is(err, queue.ErrJobNotFailed) {
		t.Fatalf("expected ErrJobNotFailed, got %v", err)
	}

	// Fail it again and let the grace period pass.
	claimed, _ = e.jobs.Claim(ctx, jobs.QueueEmail, "w1")
	_ = e.jobs.Fail(ctx, claimed.ID, "w1", "smtp down")
	now = now.Add(2 * time.Hour)

	removed, err := admin.Clean(ctx, service.CleanRequest{Status: queue.StateFailed})
	if err != nil {
		t.Fatal(err)
	}
	if removed[jobs.QueueEmail] != 1 {
		t.Fatalf("expected one failed email job cleaned, got %v", removed)
	}
	if _, err := admin.Clean(ctx, service.CleanRequest{Status: queue.StateWaiting}); !errors.Is(err, service.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}

	h2, _ := jobs.Enqueue(ctx, e.reg, jobs.WelcomeEmail{UserID: "u2"})
	if err := admin.RemoveJob(ctx, jobs.QueueEmail, h2.JobID); err != nil {
		t.Fatal(err)
	}
	if _, err := admin.GetJob(ctx, jobs.QueueEmail, h2.JobID); !errors.Is(err, queue.ErrJobNotFound) {
		t.Fatalf("expected removed job gone, got %v", err)
	}
}
