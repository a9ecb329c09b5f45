package worker_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/eventdesk/internal/queue"
	"github.com/notifyhub/eventdesk/internal/worker"
)

func newRegistry(t *testing.T, attempts int) (*queue.Registry, *queue.MemoryStore) {
	t.Helper()
	store := queue.NewMemoryStore()
	reg, err := queue.NewRegistry(store, zap.NewNop(), queue.Definition{
		Name: "email",
		Defaults: queue.Options{
			Attempts: attempts,
			Backoff:  queue.Backoff{Type: queue.BackoffFixed, Delay: 0},
		},
		Retention: queue.Retention{KeepCompleted: 2, KeepFailed: 2},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg, store
}

type recorder struct {
	mu                         sync.Mutex
	completed, retried, failed int
}

func (r *recorder) hooks() worker.Hooks {
	return worker.Hooks{
		OnCompleted: func(*queue.Job, time.Duration) { r.mu.Lock(); r.completed++; r.mu.Unlock() },
		OnRetried:   func(*queue.Job, error) { r.mu.Lock(); r.retried++; r.mu.Unlock() },
		OnFailed:    func(*queue.Job, error) { r.mu.Lock(); r.failed++; r.mu.Unlock() },
	}
}

func newWorker(reg *queue.Registry, h worker.HandlerFunc, hooks worker.Hooks) *worker.Worker {
	return worker.NewWorker("w-1", "email", reg, h, worker.Config{HeartbeatInterval: time.Hour}, zap.NewNop(), hooks)
}

// drain processes jobs until the queue has nothing claimable.
func drain(t *testing.T, w *worker.Worker) int {
	t.Helper()
	n := 0
	for {
		ok, err := w.ProcessNext(context.Background())
		if err != nil {
			t.Fatalf("ProcessNext: %v", err)
		}
		if !ok {
			return n
		}
		n++
		if n > 50 {
			t.Fatal("queue never drained")
		}
	}
}

func TestWorker_CompletesWithResult(t *testing.T) {
	reg, store := newRegistry(t, 3)
	rec := &recorder{}
	w := newWorker(reg, func(_ context.Context, j *queue.Job) (any, error) {
		return map[string]string{"message_id": "m-" + j.ID}, nil
	}, rec.hooks())

	h, _ := reg.Enqueue(context.Background(), "email", "welcome", nil, queue.WithJobID("j1"))
	drain(t, w)

	j, _ := store.Get(context.Background(), h.JobID)
	if j.State != queue.StateCompleted {
		t.Fatalf("expected completed, got %s", j.State)
	}
	if string(j.Result) != `{"message_id":"m-j1"}` {
		t.Errorf("unexpected result %s", j.Result)
	}
	if rec.completed != 1 {
		t.Errorf("OnCompleted called %d times", rec.completed)
	}
}

func TestWorker_SucceedsOnLastAttempt(t *testing.T) {
	const attempts = 3
	reg, store := newRegistry(t, attempts)
	rec := &recorder{}
	calls := 0
	w := newWorker(reg, func(context.Context, *queue.Job) (any, error) {
		calls++
		if calls < attempts {
			return nil, errors.New("smtp: connection reset")
		}
		return nil, nil
	}, rec.hooks())

	h, _ := reg.Enqueue(context.Background(), "email", "welcome", nil)
	drain(t, w)

	j, _ := store.Get(context.Background(), h.JobID)
	if j.State != queue.StateCompleted {
		t.Fatalf("expected completed, got %s", j.State)
	}
	if j.AttemptsMade != attempts || len(j.ErrorHistory) != attempts-1 {
		t.Errorf("attempts=%d history=%v", j.AttemptsMade, j.ErrorHistory)
	}
	if rec.retried != attempts-1 || rec.completed != 1 || rec.failed != 0 {
		t.Errorf("unexpected hook counts %+v", rec)
	}
}

func TestWorker_FailsAfterExactlyMaxAttempts(t *testing.T) {
	const attempts = 4
	reg, store := newRegistry(t, attempts)
	rec := &recorder{}
	calls := 0
	w := newWorker(reg, func(context.Context, *queue.Job) (any, error) {
		calls++
		return nil, errors.New("provider unavailable")
	}, rec.hooks())

	h, _ := reg.Enqueue(context.Background(), "email", "welcome", nil)
	drain(t, w)

	j, _ := store.Get(context.Background(), h.JobID)
	if j.State != queue.StateFailed {
		t.Fatalf("expected failed, got %s", j.State)
	}
	if calls != attempts || j.AttemptsMade != attempts {
		t.Errorf("handler ran %d times, attempts made %d, want %d", calls, j.AttemptsMade, attempts)
	}
	if j.FailedReason != "provider unavailable" {
		t.Errorf("failed reason %q", j.FailedReason)
	}
	if rec.failed != 1 || rec.retried != attempts-1 {
		t.Errorf("unexpected hook counts %+v", rec)
	}
}

func TestWorker_PermanentErrorSkipsRetries(t *testing.T) {
	reg, store := newRegistry(t, 5)
	calls := 0
	w := newWorker(reg, func(context.Context, *queue.Job) (any, error) {
		calls++
		return nil, queue.Permanent(errors.New("user not found"))
	}, worker.Hooks{})

	h, _ := reg.Enqueue(context.Background(), "email", "welcome", nil)
	drain(t, w)

	j, _ := store.Get(context.Background(), h.JobID)
	if j.State != queue.StateFailed || calls != 1 {
		t.Fatalf("state=%s calls=%d", j.State, calls)
	}
}

func TestWorker_Timeout(t *testing.T) {
	reg, store := newRegistry(t, 1)
	w := newWorker(reg, func(ctx context.Context, _ *queue.Job) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, worker.Hooks{})

	h, _ := reg.Enqueue(context.Background(), "email", "welcome", nil, queue.WithTimeout(20*time.Millisecond))
	drain(t, w)

	j, _ := store.Get(context.Background(), h.JobID)
	if j.State != queue.StateFailed {
		t.Fatalf("expected failed, got %s", j.State)
	}
	if !strings.Contains(j.FailedReason, queue.ErrJobTimeout.Error()) {
		t.Errorf("failed reason %q", j.FailedReason)
	}
}

func TestWorker_TimeoutWhenHandlerIgnoresContext(t *testing.T) {
	reg, store := newRegistry(t, 1)
	release := make(chan struct{})
	defer close(release)
	w := newWorker(reg, func(context.Context, *queue.Job) (any, error) {
		<-release
		return nil, nil
	}, worker.Hooks{})

	h, _ := reg.Enqueue(context.Background(), "email", "welcome", nil, queue.WithTimeout(20*time.Millisecond))
	drain(t, w)

	j, _ := store.Get(context.Background(), h.JobID)
	if j.State != queue.StateFailed || !strings.Contains(j.FailedReason, "timed out") {
		t.Fatalf("state=%s reason=%q", j.State, j.FailedReason)
	}
}

func TestWorker_PanicBecomesFailure(t *testing.T) {
	reg, store := newRegistry(t, 1)
	w := newWorker(reg, func(context.Context, *queue.Job) (any, error) {
		panic("nil map")
	}, worker.Hooks{})

	h, _ := reg.Enqueue(context.Background(), "email", "welcome", nil)
	drain(t, w)

	j, _ := store.Get(context.Background(), h.JobID)
	if j.State != queue.StateFailed || !strings.Contains(j.FailedReason, "panic") {
		t.Fatalf("state=%s reason=%q", j.State, j.FailedReason)
	}
}

func TestWorker_ShutdownLeavesJobActive(t *testing.T) {
	reg, store := newRegistry(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	w := newWorker(reg, func(ctx context.Context, _ *queue.Job) (any, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}, worker.Hooks{})

	h, _ := reg.Enqueue(context.Background(), "email", "welcome", nil)
	if _, err := w.ProcessNext(ctx); err != nil {
		t.Fatal(err)
	}

	j, _ := store.Get(context.Background(), h.JobID)
	if j.State != queue.StateActive {
		t.Fatalf("expected job left active for stalled recovery, got %s", j.State)
	}
}

func TestWorker_RunWakesOnEnqueue(t *testing.T) {
	reg, _ := newRegistry(t, 1)
	done := make(chan string, 1)
	w := worker.NewWorker("w-1", "email", reg, worker.HandlerFunc(func(_ context.Context, j *queue.Job) (any, error) {
		done <- j.ID
		return nil, nil
	}), worker.Config{PollInterval: time.Hour}, zap.NewNop(), worker.Hooks{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Let the worker find the queue empty and go to sleep.
	time.Sleep(20 * time.Millisecond)
	h, _ := reg.Enqueue(context.Background(), "email", "welcome", nil)

	select {
	case id := <-done:
		if id != h.JobID {
			t.Fatalf("processed %s, want %s", id, h.JobID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker was not woken by enqueue")
	}
}

func TestPool_RunsConcurrencyWorkersPerQueue(t *testing.T) {
	store := queue.NewMemoryStore()
	reg, _ := queue.NewRegistry(store, zap.NewNop(),
		queue.Definition{Name: "email", Concurrency: 3},
		queue.Definition{Name: "sms", Concurrency: 2},
		queue.Definition{Name: "analytics"},
	)
	noop := worker.HandlerFunc(func(context.Context, *queue.Job) (any, error) { return nil, nil })

	p, err := worker.NewPool(reg, map[string]worker.Handler{"email": noop, "sms": noop}, worker.Config{}, zap.NewNop(), worker.Hooks{})
	if err != nil {
		t.Fatal(err)
	}
	if p.Size() != 5 {
		t.Fatalf("pool size %d, want 5", p.Size())
	}

	if _, err := worker.NewPool(reg, map[string]worker.Handler{"fax": noop}, worker.Config{}, zap.NewNop(), worker.Hooks{}); !errors.Is(err, queue.ErrUnknownQueue) {
		t.Fatalf("expected ErrUnknownQueue, got %v", err)
	}
}

func TestPool_ProcessesEveryJobOnce(t *testing.T) {
	store := queue.NewMemoryStore()
	reg, _ := queue.NewRegistry(store, zap.NewNop(), queue.Definition{Name: "email", Concurrency: 4})
	var processed atomic.Int32
	seen := sync.Map{}
	h := worker.HandlerFunc(func(_ context.Context, j *queue.Job) (any, error) {
		if _, dup := seen.LoadOrStore(j.ID, true); dup {
			t.Errorf("job %s processed twice", j.ID)
		}
		processed.Add(1)
		return nil, nil
	})

	const total = 40
	for i := 0; i < total; i++ {
		if _, err := reg.Enqueue(context.Background(), "email", "welcome", nil); err != nil {
			t.Fatal(err)
		}
	}

	p, _ := worker.NewPool(reg, map[string]worker.Handler{"email": h}, worker.Config{PollInterval: 5 * time.Millisecond}, zap.NewNop(), worker.Hooks{})
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for processed.Load() < total && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	p.Wait()

	if got := processed.Load(); got != total {
		t.Fatalf("processed %d jobs, want %d", got, total)
	}
}

func TestChainHooks(t *testing.T) {
	var a, b int
	h := worker.ChainHooks(
		worker.Hooks{OnFailed: func(*queue.Job, error) { a++ }},
		worker.Hooks{},
		worker.Hooks{OnFailed: func(*queue.Job, error) { b++ }},
	)
	h.OnFailed(&queue.Job{}, errors.New("x"))
	h.OnCompleted(&queue.Job{}, time.Second)
	if a != 1 || b != 1 {
		t.Fatalf("a=%d b=%d", a, b)
	}
}
