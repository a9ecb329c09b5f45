package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/eventdesk/internal/queue"
)

// Reaper periodically hands stalled jobs back to their queue, trims
// finished jobs down to each queue's retention and reports queue depth.
//
// State lives in the store, so a restarted process picks up where the
// previous one stopped.
type Reaper struct {
	reg        *queue.Registry
	interval   time.Duration
	maxStalled int
	onDepth    func(queue string, c queue.Counts)
	logger     *zap.Logger
}

// NewReaper builds a reaper. onDepth may be nil.
func NewReaper(reg *queue.Registry, cfg Config, onDepth func(string, queue.Counts), logger *zap.Logger) *Reaper {
	cfg = cfg.withDefaults()
	if onDepth == nil {
		onDepth = func(string, queue.Counts) {}
	}
	return &Reaper{
		reg:        reg,
		interval:   cfg.StalledInterval,
		maxStalled: cfg.MaxStalledCount,
		onDepth:    onDepth,
		logger:     logger,
	}
}

// Run ticks every stalled interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reaper started", zap.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopping")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over every queue.
func (r *Reaper) Sweep(ctx context.Context) {
	store := r.reg.Store()
	for _, name := range r.reg.Queues() {
		log := r.logger.With(zap.String("queue", name))

		recovered, failed, err := store.RecoverStalled(ctx, name, r.interval, r.maxStalled)
		if err != nil {
			log.Error("stalled recovery failed", zap.Error(err))
		} else {
			if recovered > 0 {
				r.reg.Signal(name)
			}
			if recovered+failed > 0 {
				log.Warn("recovered stalled jobs", zap.Int("requeued", recovered), zap.Int("failed", failed))
			}
		}

		def, _ := r.reg.Definition(name)
		r.trim(ctx, name, queue.StateCompleted, def.Retention.KeepCompleted, log)
		r.trim(ctx, name, queue.StateFailed, def.Retention.KeepFailed, log)
		r.expire(ctx, name, def.Retention.CompletedAge, log)

		counts, err := store.Counts(ctx, name)
		if err != nil {
			log.Error("count jobs failed", zap.Error(err))
			continue
		}
		r.onDepth(name, counts)
	}
}

// trim keeps the newest keep jobs in state; zero means keep everything.
func (r *Reaper) trim(ctx context.Context, name string, state queue.State, keep int, log *zap.Logger) {
	if keep <= 0 {
		return
	}
	n, err := r.reg.Store().Trim(ctx, name, state, keep)
	if err != nil {
		log.Error("trim failed", zap.String("state", string(state)), zap.Error(err))
		return
	}
	if n > 0 {
		log.Debug("trimmed finished jobs", zap.String("state", string(state)), zap.Int("removed", n))
	}
}

// expire removes completed jobs that finished more than age ago.
func (r *Reaper) expire(ctx context.Context, name string, age time.Duration, log *zap.Logger) {
	if age <= 0 {
		return
	}
	n, err := r.reg.Store().Clean(ctx, name, queue.StateCompleted, age, 0)
	if err != nil {
		log.Error("expire completed jobs failed", zap.Error(err))
		return
	}
	if n > 0 {
		log.Debug("expired completed jobs", zap.Duration("age", age), zap.Int("removed", n))
	}
}
