package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/eventdesk/internal/queue"
)

func newRegistry(t *testing.T) (*queue.Registry, *queue.MemoryStore) {
	t.Helper()
	store := queue.NewMemoryStore()
	reg, err := queue.NewRegistry(store, zap.NewNop(),
		queue.Definition{
			Name: "email",
			Defaults: queue.Options{
				Attempts: 3,
				Backoff:  queue.Backoff{Type: queue.BackoffExponential, Delay: 2 * time.Second},
			},
			Retention: queue.Retention{KeepCompleted: 100, KeepFailed: 500},
		},
		queue.Definition{Name: "analytics"},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg, store
}

func TestRegistry_EnqueueAppliesDefaults(t *testing.T) {
	reg, store := newRegistry(t)
	ctx := context.Background()

	h, err := reg.Enqueue(ctx, "email", "welcome", map[string]string{"email": "a@b.c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.Created || h.JobID == "" || h.Queue != "email" {
		t.Fatalf("unexpected handle: %+v", h)
	}

	j, err := store.Get(ctx, h.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if j.State != queue.StateWaiting {
		t.Fatalf("expected waiting, got %s", j.State)
	}
	if j.MaxAttempts != 3 || j.Backoff.Type != queue.BackoffExponential || j.Backoff.Delay != 2*time.Second {
		t.Fatalf("defaults not applied: %+v", j)
	}
	var data map[string]string
	if err := json.Unmarshal(j.Data, &data); err != nil || data["email"] != "a@b.c" {
		t.Fatalf("unexpected data %s (%v)", j.Data, err)
	}
}

func TestRegistry_EnqueueOverrides(t *testing.T) {
	reg, store := newRegistry(t)
	ctx := context.Background()

	h, err := reg.Enqueue(ctx, "email", "custom", nil,
		queue.WithAttempts(5),
		queue.WithBackoff(queue.BackoffFixed, time.Second),
		queue.WithTimeout(time.Minute),
		queue.WithPriority(10),
		queue.WithDelay(time.Hour),
	)
	if err != nil {
		t.Fatal(err)
	}
	j, _ := store.Get(ctx, h.JobID)
	if j.MaxAttempts != 5 || j.Backoff.Type != queue.BackoffFixed || j.Timeout != time.Minute || j.Priority != 10 {
		t.Fatalf("overrides not applied: %+v", j)
	}

	counts, _ := store.Counts(ctx, "email")
	if counts.Delayed != 1 || counts.Waiting != 0 {
		t.Fatalf("expected one delayed job, got %+v", counts)
	}
}

func TestRegistry_JobIDDedupe(t *testing.T) {
	reg, store := newRegistry(t)
	ctx := context.Background()

	first, err := reg.Enqueue(ctx, "email", "welcome", nil, queue.WithJobID("welcome:u1"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := reg.Enqueue(ctx, "email", "welcome", nil, queue.WithJobID("welcome:u1"))
	if err != nil {
		t.Fatal(err)
	}
	if first.JobID != second.JobID || !first.Created || second.Created {
		t.Fatalf("expected dedupe, got %+v and %+v", first, second)
	}
	counts, _ := store.Counts(ctx, "email")
	if counts.Waiting != 1 {
		t.Fatalf("expected a single waiting job, got %+v", counts)
	}
}

func TestRegistry_UnknownQueue(t *testing.T) {
	reg, _ := newRegistry(t)
	_, err := reg.Enqueue(context.Background(), "fax", "x", nil)
	if !errors.Is(err, queue.ErrUnknownQueue) {
		t.Fatalf("expected ErrUnknownQueue, got %v", err)
	}
}

func TestRegistry_DuplicateDefinition(t *testing.T) {
	_, err := queue.NewRegistry(queue.NewMemoryStore(), zap.NewNop(),
		queue.Definition{Name: "a"}, queue.Definition{Name: "a"})
	if !errors.Is(err, queue.ErrDuplicateQueue) {
		t.Fatalf("expected ErrDuplicateQueue, got %v", err)
	}
}

func TestRegistry_EnqueueSignalsWorkers(t *testing.T) {
	reg, _ := newRegistry(t)
	if _, err := reg.Enqueue(context.Background(), "analytics", "daily_rollup", nil); err != nil {
		t.Fatal(err)
	}
	select {
	case <-reg.Wake("analytics"):
	default:
		t.Fatal("expected a wake signal after enqueue")
	}
}

func TestRegistry_EnqueueDoesNotWaitForWorkers(t *testing.T) {
	reg, store := newRegistry(t)
	ctx := context.Background()

	// No worker is running: enqueue must still return with the job waiting.
	for i := 0; i < 5; i++ {
		if _, err := reg.Enqueue(ctx, "analytics", "daily_rollup", nil); err != nil {
			t.Fatal(err)
		}
	}
	counts, _ := store.Counts(ctx, "analytics")
	if counts.Waiting != 5 || counts.Active != 0 {
		t.Fatalf("expected 5 waiting jobs, got %+v", counts)
	}
}
