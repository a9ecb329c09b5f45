package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/eventdesk/internal/queue"
)

// Config tunes workers and the reaper.
type Config struct {
	// PollInterval is how long an idle worker sleeps when nothing wakes it.
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	// StalledInterval is both the reaper period and the heartbeat age after
	// which an active job is considered stalled.
	StalledInterval time.Duration
	MaxStalledCount int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 10 * time.Second
	}
	if c.StalledInterval <= 0 {
		c.StalledInterval = 30 * time.Second
	}
	if c.MaxStalledCount <= 0 {
		c.MaxStalledCount = 1
	}
	return c
}

// Hooks are lifecycle callbacks, injected so the worker stays free of
// metrics and messaging imports. Nil fields are no-ops.
type Hooks struct {
	OnCompleted func(j *queue.Job, latency time.Duration)
	OnRetried   func(j *queue.Job, err error)
	OnFailed    func(j *queue.Job, err error)
}

func (h Hooks) orNoop() Hooks {
	if h.OnCompleted == nil {
		h.OnCompleted = func(*queue.Job, time.Duration) {}
	}
	if h.OnRetried == nil {
		h.OnRetried = func(*queue.Job, error) {}
	}
	if h.OnFailed == nil {
		h.OnFailed = func(*queue.Job, error) {}
	}
	return h
}

// ChainHooks calls every non-nil hook in order.
func ChainHooks(hooks ...Hooks) Hooks {
	return Hooks{
		OnCompleted: func(j *queue.Job, latency time.Duration) {
			for _, h := range hooks {
				if h.OnCompleted != nil {
					h.OnCompleted(j, latency)
				}
			}
		},
		OnRetried: func(j *queue.Job, err error) {
			for _, h := range hooks {
				if h.OnRetried != nil {
					h.OnRetried(j, err)
				}
			}
		},
		OnFailed: func(j *queue.Job, err error) {
			for _, h := range hooks {
				if h.OnFailed != nil {
					h.OnFailed(j, err)
				}
			}
		},
	}
}

// Pool manages the lifecycle of all workers: Concurrency workers per queue
// that has a handler.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
}

// NewPool creates the workers for every handled queue. A handler for a
// queue the registry does not define is an error.
func NewPool(
	reg *queue.Registry,
	handlers map[string]Handler,
	cfg Config,
	logger *zap.Logger,
	hooks Hooks,
) (*Pool, error) {
	for name := range handlers {
		if _, err := reg.Definition(name); err != nil {
			return nil, fmt.Errorf("handler without queue: %w", err)
		}
	}

	// Distinct per process so lock ownership never collides across replicas.
	prefix := uuid.NewString()[:8]
	p := &Pool{}
	for _, name := range reg.Queues() {
		h, ok := handlers[name]
		if !ok {
			continue
		}
		def, _ := reg.Definition(name)
		for i := 0; i < def.Concurrency; i++ {
			id := fmt.Sprintf("%s-%s-%d", prefix, name, i)
			p.workers = append(p.workers, NewWorker(id, name, reg, h, cfg,
				logger.With(zap.String("queue", name), zap.String("worker_id", id)),
				hooks,
			))
		}
	}
	return p, nil
}

func (p *Pool) Size() int { return len(p.workers) }

// Start launches all workers as goroutines.
// Cancelling ctx triggers a graceful shutdown of the entire pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Wait blocks until every worker has returned after ctx is cancelled.
func (p *Pool) Wait() {
	p.wg.Wait()
}
