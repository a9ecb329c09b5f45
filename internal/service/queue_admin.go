package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/eventdesk/internal/queue"
)

const (
	DefaultJobListLimit = 20
	MaxJobListLimit     = 100
	DefaultCleanGrace   = time.Hour
)

// ErrInvalidStatus is returned for a job status filter outside the known states.
var ErrInvalidStatus = errors.New("invalid job status")

// QueueSummary is what operators see for one queue.
type QueueSummary struct {
	Name        string       `json:"name"`
	Paused      bool         `json:"paused"`
	Concurrency int          `json:"concurrency"`
	Counts      queue.Counts `json:"counts"`
}

// CleanRequest removes finished jobs older than Grace. An empty Queue means
// every queue; an empty Status means both completed and failed.
type CleanRequest struct {
	Queue  string        `json:"queue,omitempty"`
	Status queue.State   `json:"status,omitempty"`
	Grace  time.Duration `json:"grace"`
}

// QueueAdmin is the operator surface over the queue registry.
type QueueAdmin struct {
	reg    *queue.Registry
	logger *zap.Logger
	now    func() time.Time
}

func NewQueueAdmin(reg *queue.Registry, logger *zap.Logger) *QueueAdmin {
	return &QueueAdmin{reg: reg, logger: logger, now: time.Now}
}

func (a *QueueAdmin) Overview(ctx context.Context) ([]QueueSummary, error) {
	out := make([]QueueSummary, 0, len(a.reg.Queues()))
	for _, name := range a.reg.Queues() {
		s, err := a.Queue(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

func (a *QueueAdmin) Queue(ctx context.Context, name string) (*QueueSummary, error) {
	def, err := a.reg.Definition(name)
	if err != nil {
		return nil, err
	}
	store := a.reg.Store()
	counts, err := store.Counts(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", name, err)
	}
	paused, err := store.IsPaused(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("pause state of %s: %w", name, err)
	}
	return &QueueSummary{Name: name, Paused: paused, Concurrency: def.Concurrency, Counts: counts}, nil
}

// ListJobs returns jobs of one queue in the given status. An empty status
// lists waiting jobs; limit defaults to 20 and is capped at 100.
func (a *QueueAdmin) ListJobs(ctx context.Context, name string, status queue.State, limit int) ([]*queue.Job, error) {
	if _, err := a.reg.Definition(name); err != nil {
		return nil, err
	}
	if status == "" {
		status = queue.StateWaiting
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	switch {
	case limit <= 0:
		limit = DefaultJobListLimit
	case limit > MaxJobListLimit:
		limit = MaxJobListLimit
	}

	jobs, err := a.reg.Store().List(ctx, name, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list %s jobs: %w", name, err)
	}
	paused, err := a.reg.Store().IsPaused(ctx, name)
	if err != nil {
		return nil, err
	}
	now := a.now()
	for _, j := range jobs {
		j.State = j.ReportedState(now, paused)
	}
	return jobs, nil
}

func (a *QueueAdmin) GetJob(ctx context.Context, name, id string) (*queue.Job, error) {
	if _, err := a.reg.Definition(name); err != nil {
		return nil, err
	}
	j, err := a.reg.Store().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.Queue != name {
		return nil, queue.ErrJobNotFound
	}
	paused, err := a.reg.Store().IsPaused(ctx, name)
	if err != nil {
		return nil, err
	}
	j.State = j.ReportedState(a.now(), paused)
	return j, nil
}

// RetryJob puts a failed job back to waiting with a fresh attempt budget.
func (a *QueueAdmin) RetryJob(ctx context.Context, name, id string) error {
	if _, err := a.GetJob(ctx, name, id); err != nil {
		return err
	}
	if err := a.reg.Store().RetryFailed(ctx, id); err != nil {
		return err
	}
	a.reg.Signal(name)
	a.logger.Info("job retried by operator", zap.String("queue", name), zap.String("job_id", id))
	return nil
}

func (a *QueueAdmin) RemoveJob(ctx context.Context, name, id string) error {
	if _, err := a.GetJob(ctx, name, id); err != nil {
		return err
	}
	if err := a.reg.Store().Remove(ctx, id); err != nil {
		return err
	}
	a.logger.Info("job removed by operator", zap.String("queue", name), zap.String("job_id", id))
	return nil
}

// Pause stops workers from claiming jobs of the named queue. Running jobs
// finish; waiting jobs stay waiting.
func (a *QueueAdmin) Pause(ctx context.Context, name string) error {
	if _, err := a.reg.Definition(name); err != nil {
		return err
	}
	if err := a.reg.Store().Pause(ctx, name); err != nil {
		return fmt.Errorf("pause %s: %w", name, err)
	}
	a.logger.Info("queue paused", zap.String("queue", name))
	return nil
}

func (a *QueueAdmin) Resume(ctx context.Context, name string) error {
	if _, err := a.reg.Definition(name); err != nil {
		return err
	}
	if err := a.reg.Store().Resume(ctx, name); err != nil {
		return fmt.Errorf("resume %s: %w", name, err)
	}
	a.reg.Signal(name)
	a.logger.Info("queue resumed", zap.String("queue", name))
	return nil
}

func (a *QueueAdmin) PauseAll(ctx context.Context) error {
	for _, name := range a.reg.Queues() {
		if err := a.Pause(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (a *QueueAdmin) ResumeAll(ctx context.Context) error {
	for _, name := range a.reg.Queues() {
		if err := a.Resume(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Clean removes old finished jobs and reports how many went per queue.
func (a *QueueAdmin) Clean(ctx context.Context, req CleanRequest) (map[string]int, error) {
	queues := a.reg.Queues()
	if req.Queue != "" {
		if _, err := a.reg.Definition(req.Queue); err != nil {
			return nil, err
		}
		queues = []string{req.Queue}
	}
	states := []queue.State{queue.StateCompleted, queue.StateFailed}
	if req.Status != "" {
		if !req.Status.IsFinished() {
			return nil, fmt.Errorf("%w: only completed or failed jobs can be cleaned", ErrInvalidStatus)
		}
		states = []queue.State{req.Status}
	}
	grace := req.Grace
	if grace <= 0 {
		grace = DefaultCleanGrace
	}

	removed := make(map[string]int, len(queues))
	for _, name := range queues {
		for _, st := range states {
			n, err := a.reg.Store().Clean(ctx, name, st, grace, 0)
			if err != nil {
				return nil, fmt.Errorf("clean %s %s: %w", name, st, err)
			}
			removed[name] += n
		}
	}
	a.logger.Info("queues cleaned", zap.Duration("grace", grace), zap.Any("removed", removed))
	return removed, nil
}
