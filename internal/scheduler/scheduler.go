package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/notifyhub/eventdesk/internal/queue"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTick sets how often the scheduler looks for due triggers.
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithLockTTL sets how long a per-tick lock is held at most.
func WithLockTTL(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.lockTTL = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// OnFire is called after a trigger enqueued its job.
func OnFire(fn func(key, jobID string)) Option {
	return func(s *Scheduler) { s.onFire = fn }
}

// Scheduler fires due triggers into the queue registry.
type Scheduler struct {
	store   Store
	locker  Locker
	reg     *queue.Registry
	logger  *zap.Logger
	tick    time.Duration
	lockTTL time.Duration
	now     func() time.Time
	onFire  func(key, jobID string)

	parsedMu sync.RWMutex
	parsed   map[string]cronlib.Schedule
}

func New(store Store, locker Locker, reg *queue.Registry, logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:   store,
		locker:  locker,
		reg:     reg,
		logger:  logger,
		tick:    30 * time.Second,
		lockTTL: time.Minute,
		now:     func() time.Time { return time.Now().UTC() },
		onFire:  func(string, string) {},
		parsed:  make(map[string]cronlib.Schedule),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register upserts triggers by key. A trigger whose spec is unchanged keeps
// its NextRunAt, so re-registering on every start never shifts or
// duplicates a schedule.
func (s *Scheduler) Register(ctx context.Context, triggers ...Trigger) error {
	now := s.now()
	for _, t := range triggers {
		if t.Key == "" {
			return errors.New("trigger without a key")
		}
		if _, err := s.reg.Definition(t.Queue); err != nil {
			return fmt.Errorf("trigger %s: %w", t.Key, err)
		}
		sched, err := s.schedule(t.Spec)
		if err != nil {
			return fmt.Errorf("trigger %s: %w", t.Key, err)
		}

		existing, err := s.store.Get(ctx, t.Key)
		switch {
		case err == nil && existing.Spec == t.Spec:
			t.NextRunAt = existing.NextRunAt
			t.LastRunAt = existing.LastRunAt
		case err == nil || errors.Is(err, ErrTriggerNotFound):
			if existing != nil {
				t.LastRunAt = existing.LastRunAt
			}
			t.NextRunAt = sched.Next(now)
		default:
			return fmt.Errorf("load trigger %s: %w", t.Key, err)
		}
		t.UpdatedAt = now

		if err := s.store.Upsert(ctx, &t); err != nil {
			return err
		}
		s.logger.Info("trigger registered",
			zap.String("key", t.Key),
			zap.String("spec", t.Spec),
			zap.Time("next_run_at", t.NextRunAt),
		)
	}
	return nil
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", zap.Duration("tick", s.tick))
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduler tick failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick fires every due trigger once and returns how many it fired.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	triggers, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list triggers: %w", err)
	}
	now := s.now()
	fired := 0
	for _, t := range triggers {
		if t.NextRunAt.After(now) {
			continue
		}
		ok, err := s.fire(ctx, t, now)
		if err != nil {
			s.logger.Error("trigger fire failed", zap.String("key", t.Key), zap.Error(err))
			continue
		}
		if ok {
			fired++
		}
	}
	return fired, nil
}

func (s *Scheduler) fire(ctx context.Context, t *Trigger, now time.Time) (bool, error) {
	tickID := t.Key + ":" + strconv.FormatInt(t.NextRunAt.Unix(), 10)

	acquired, err := s.locker.Acquire(ctx, tickID, s.lockTTL)
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		return false, nil
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), tickID); err != nil {
			s.logger.Warn("release trigger lock failed", zap.String("key", t.Key), zap.Error(err))
		}
	}()

	sched, err := s.schedule(t.Spec)
	if err != nil {
		return false, err
	}

	// The job ID names the scheduled tick, so a second process that slips
	// past the lock gets the existing job back.
	h, err := s.reg.Enqueue(ctx, t.Queue, t.Type, stampScheduledAt(t.Data, t.NextRunAt), queue.WithJobID("trigger:"+tickID))
	if err != nil {
		return false, fmt.Errorf("enqueue: %w", err)
	}

	// Missed ticks are not replayed: the next run is computed from now.
	advanced, err := s.store.Advance(ctx, t.Key, t.NextRunAt, now, sched.Next(now))
	if err != nil {
		return false, err
	}
	if !advanced || !h.Created {
		return false, nil
	}

	s.onFire(t.Key, h.JobID)
	s.logger.Info("trigger fired",
		zap.String("key", t.Key),
		zap.String("queue", t.Queue),
		zap.String("type", t.Type),
		zap.String("job_id", h.JobID),
	)
	return true, nil
}

func (s *Scheduler) schedule(spec string) (cronlib.Schedule, error) {
	s.parsedMu.RLock()
	sched, ok := s.parsed[spec]
	s.parsedMu.RUnlock()
	if ok {
		return sched, nil
	}

	sched, err := ParseSpec(spec)
	if err != nil {
		return nil, err
	}
	s.parsedMu.Lock()
	s.parsed[spec] = sched
	s.parsedMu.Unlock()
	return sched, nil
}

// stampScheduledAt merges the tick time into object payloads as
// "scheduled_at" so sweeps compute their windows from when the trigger was
// due, not from when a worker got around to the job.
func stampScheduledAt(data json.RawMessage, at time.Time) json.RawMessage {
	fields := map[string]json.RawMessage{}
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &fields); err != nil {
			return data
		}
		if fields == nil {
			fields = map[string]json.RawMessage{}
		}
	}
	ts, err := json.Marshal(at.UTC())
	if err != nil {
		return data
	}
	fields["scheduled_at"] = ts
	out, err := json.Marshal(fields)
	if err != nil {
		return data
	}
	return out
}
