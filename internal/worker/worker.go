package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/notifyhub/eventdesk/internal/queue"
)

const tracerName = "github.com/notifyhub/eventdesk/internal/worker"

// finalizeTimeout bounds the store write that records a job outcome.
const finalizeTimeout = 5 * time.Second

// Handler processes one job. The returned value becomes the job result;
// an error triggers a retry unless it is queue.Permanent or attempts are
// exhausted.
type Handler interface {
	Handle(ctx context.Context, j *queue.Job) (any, error)
}

type HandlerFunc func(ctx context.Context, j *queue.Job) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, j *queue.Job) (any, error) { return f(ctx, j) }

// Worker is a single goroutine that claims jobs from one queue, runs them
// under a heartbeat and timeout, and records the outcome in the store.
type Worker struct {
	id      string
	queue   string
	store   queue.Store
	wake    <-chan struct{}
	handler Handler
	cfg     Config
	hooks   Hooks
	tracer  trace.Tracer
	logger  *zap.Logger
}

func NewWorker(id, queueName string, reg *queue.Registry, h Handler, cfg Config, logger *zap.Logger, hooks Hooks) *Worker {
	return &Worker{
		id:      id,
		queue:   queueName,
		store:   reg.Store(),
		wake:    reg.Wake(queueName),
		handler: h,
		cfg:     cfg.withDefaults(),
		hooks:   hooks.orNoop(),
		tracer:  otel.Tracer(tracerName),
		logger:  logger,
	}
}

func (w *Worker) ID() string { return w.id }

// Run blocks until ctx is cancelled. Between jobs it sleeps until the queue
// is signalled or the poll interval passes.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started")
	for {
		processed, err := w.ProcessNext(ctx)
		if ctx.Err() != nil {
			w.logger.Info("worker stopping")
			return
		}
		if err != nil {
			w.logger.Error("claim failed", zap.Error(err))
		}
		if processed {
			continue
		}

		timer := time.NewTimer(w.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info("worker stopping")
			return
		case <-w.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// ProcessNext claims and runs at most one job. It reports whether a job
// was claimed.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	j, err := w.store.Claim(ctx, w.queue, w.id)
	if err != nil {
		return false, fmt.Errorf("claim from %s: %w", w.queue, err)
	}
	if j == nil {
		return false, nil
	}
	w.execute(ctx, j)
	return true, nil
}

func (w *Worker) execute(ctx context.Context, j *queue.Job) {
	start := time.Now()
	log := w.logger.With(
		zap.String("job_id", j.ID),
		zap.String("type", j.Type),
		zap.Int("attempt", j.AttemptsMade),
	)

	ctx, span := w.tracer.Start(ctx, "job.execute",
		trace.WithAttributes(
			attribute.String("job.id", j.ID),
			attribute.String("job.queue", j.Queue),
			attribute.String("job.type", j.Type),
			attribute.Int("job.attempt", j.AttemptsMade),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	go w.heartbeat(hbCtx, j.ID, log)
	result, err := w.run(ctx, j)
	stopHeartbeat()

	if err != nil && ctx.Err() != nil {
		// Shutdown: the job stays active and the reaper hands it back.
		log.Warn("job interrupted by shutdown", zap.Error(err))
		span.SetStatus(codes.Error, "interrupted")
		return
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if err == nil {
		payload, mErr := marshalResult(result)
		if mErr == nil {
			w.complete(fctx, j, payload, time.Since(start), log)
			span.SetStatus(codes.Ok, "")
			return
		}
		err = queue.Permanent(mErr)
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	w.fail(fctx, j, err, log)
}

// run invokes the handler under the job timeout and converts panics into errors.
func (w *Worker) run(ctx context.Context, j *queue.Job) (any, error) {
	runCtx := ctx
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("job handler panicked",
					zap.String("job_id", j.ID),
					zap.Any("panic", r),
					zap.String("stack", string(debug.Stack())),
				)
				done <- outcome{err: fmt.Errorf("panic in %s/%s: %v", j.Queue, j.Type, r)}
			}
		}()
		res, err := w.handler.Handle(runCtx, j)
		done <- outcome{result: res, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, queue.TimeoutError(j.Timeout)
		}
		return o.result, o.err
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, queue.TimeoutError(j.Timeout)
	}
}

func (w *Worker) complete(ctx context.Context, j *queue.Job, result json.RawMessage, latency time.Duration, log *zap.Logger) {
	if err := w.store.Complete(ctx, j.ID, w.id, result); err != nil {
		if errors.Is(err, queue.ErrLockLost) {
			log.Warn("job finished after losing its lock", zap.Error(err))
			return
		}
		log.Error("failed to mark job completed", zap.Error(err))
		return
	}
	w.hooks.OnCompleted(j, latency)
	log.Info("job completed", zap.Duration("latency", latency))
}

// fail retries the job with backoff while attempts remain, otherwise marks
// it failed. Permanent errors skip the remaining attempts.
func (w *Worker) fail(ctx context.Context, j *queue.Job, jobErr error, log *zap.Logger) {
	if queue.IsPermanent(jobErr) || j.AttemptsMade >= j.MaxAttempts {
		if err := w.store.Fail(ctx, j.ID, w.id, jobErr.Error()); err != nil {
			log.Error("failed to mark job failed", zap.Error(err))
			return
		}
		w.hooks.OnFailed(j, jobErr)
		log.Warn("job failed",
			zap.Error(jobErr),
			zap.Int("max_attempts", j.MaxAttempts),
			zap.Bool("permanent", queue.IsPermanent(jobErr)),
		)
		return
	}

	delay := j.Backoff.Next(j.AttemptsMade)
	if err := w.store.Retry(ctx, j.ID, w.id, jobErr.Error(), delay); err != nil {
		log.Error("failed to schedule retry", zap.Error(err))
		return
	}
	w.hooks.OnRetried(j, jobErr)
	log.Info("job scheduled for retry",
		zap.Error(jobErr),
		zap.Int("max_attempts", j.MaxAttempts),
		zap.Duration("delay", delay),
	)
}

func (w *Worker) heartbeat(ctx context.Context, id string, log *zap.Logger) {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := w.store.Heartbeat(ctx, id, w.id)
			switch {
			case err == nil:
			case errors.Is(err, queue.ErrLockLost):
				log.Warn("heartbeat rejected, job lock lost")
				return
			case ctx.Err() != nil:
				return
			default:
				log.Warn("heartbeat failed", zap.Error(err))
			}
		}
	}
}

func marshalResult(v any) (json.RawMessage, error) {
	switch r := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return r, nil
	default:
		b, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("marshal job result: %w", err)
		}
		return b, nil
	}
}
