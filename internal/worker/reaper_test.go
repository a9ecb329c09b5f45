package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/eventdesk/internal/queue"
	"github.com/notifyhub/eventdesk/internal/worker"
)

func TestReaper_RecoversStalledJobs(t *testing.T) {
	reg, store := newRegistry(t, 3)
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	h, _ := reg.Enqueue(ctx, "email", "welcome", nil)
	if _, err := store.Claim(ctx, "email", "dead-worker"); err != nil {
		t.Fatal(err)
	}

	var depth queue.Counts
	r := worker.NewReaper(reg, worker.Config{StalledInterval: 30 * time.Second, MaxStalledCount: 1},
		func(_ string, c queue.Counts) { depth = c }, zap.NewNop())

	now = now.Add(time.Minute)
	r.Sweep(ctx)

	j, _ := store.Get(ctx, h.JobID)
	if j.State != queue.StateWaiting || j.StalledCount != 1 || j.AttemptsMade != 0 {
		t.Fatalf("expected requeued job, got state=%s stalled=%d attempts=%d", j.State, j.StalledCount, j.AttemptsMade)
	}
	if depth.Waiting != 1 {
		t.Errorf("depth callback saw %+v", depth)
	}
	select {
	case <-reg.Wake("email"):
	default:
		t.Error("recovered jobs should wake local workers")
	}

	// Stall it a second time: exceeds the max stalled count.
	if _, err := store.Claim(ctx, "email", "dead-worker"); err != nil {
		t.Fatal(err)
	}
	now = now.Add(time.Minute)
	r.Sweep(ctx)

	j, _ = store.Get(ctx, h.JobID)
	if j.State != queue.StateFailed || j.FailedReason != queue.StalledReason {
		t.Fatalf("expected stalled failure, got state=%s reason=%q", j.State, j.FailedReason)
	}
}

func TestReaper_TrimsToRetention(t *testing.T) {
	reg, store := newRegistry(t, 1)
	ctx := context.Background()
	w := newWorker(reg, func(context.Context, *queue.Job) (any, error) { return nil, nil }, worker.Hooks{})

	for i := 0; i < 5; i++ {
		_, _ = reg.Enqueue(ctx, "email", "welcome", nil)
	}
	drain(t, w)

	worker.NewReaper(reg, worker.Config{}, nil, zap.NewNop()).Sweep(ctx)

	c, _ := store.Counts(ctx, "email")
	if c.Completed != 2 {
		t.Fatalf("expected retention to keep 2 completed jobs, got %d", c.Completed)
	}
}

func TestReaper_ExpiresCompletedByAge(t *testing.T) {
	store := queue.NewMemoryStore()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })
	reg, err := queue.NewRegistry(store, zap.NewNop(), queue.Definition{
		Name:      "email",
		Defaults:  queue.Options{Attempts: 1},
		Retention: queue.Retention{CompletedAge: time.Hour},
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	w := newWorker(reg, func(_ context.Context, j *queue.Job) (any, error) {
		if j.Type == "broken" {
			return nil, queue.Permanent(errors.New("boom"))
		}
		return nil, nil
	}, worker.Hooks{})

	old, _ := reg.Enqueue(ctx, "email", "welcome", nil)
	broken, _ := reg.Enqueue(ctx, "email", "broken", nil)
	drain(t, w)

	now = now.Add(2 * time.Hour)
	recent, _ := reg.Enqueue(ctx, "email", "welcome", nil)
	drain(t, w)

	worker.NewReaper(reg, worker.Config{}, nil, zap.NewNop()).Sweep(ctx)

	if _, err := store.Get(ctx, old.JobID); !errors.Is(err, queue.ErrJobNotFound) {
		t.Errorf("expected completed job older than an hour removed, got %v", err)
	}
	if j, err := store.Get(ctx, recent.JobID); err != nil || j.State != queue.StateCompleted {
		t.Errorf("recent completed job must survive: %v", err)
	}
	if j, err := store.Get(ctx, broken.JobID); err != nil || j.State != queue.StateFailed {
		t.Errorf("failed jobs are not expired by age: %v", err)
	}
}
