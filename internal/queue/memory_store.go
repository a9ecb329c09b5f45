package queue

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. It backs unit tests and single-process
// development; it is not shared between processes.
type MemoryStore struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	order  map[string]int64
	seq    int64
	paused map[string]bool
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:   make(map[string]*Job),
		order:  make(map[string]int64),
		paused: make(map[string]bool),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source. Tests use it to step over backoff delays.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Add(_ context.Context, j *Job, delay time.Duration) (*Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[j.ID]; ok {
		return existing.clone(), false, nil
	}

	now := s.now()
	stored := j.clone()
	stored.State = StateWaiting
	stored.CreatedAt = now
	stored.RunAt = now.Add(delay)
	s.seq++
	s.jobs[stored.ID] = stored
	s.order[stored.ID] = s.seq
	return stored.clone(), true, nil
}

func (s *MemoryStore) Claim(_ context.Context, queue, workerID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused[queue] {
		return nil, nil
	}

	now := s.now()
	var next *Job
	for _, j := range s.jobs {
		if j.Queue != queue || j.State != StateWaiting || j.RunAt.After(now) {
			continue
		}
		if next == nil || s.before(j, next) {
			next = j
		}
	}
	if next == nil {
		return nil, nil
	}

	next.State = StateActive
	next.LockedBy = workerID
	next.AttemptsMade++
	next.StartedAt = &now
	hb := now
	next.HeartbeatAt = &hb
	return next.clone(), nil
}

// before orders claimable jobs by priority desc, run_at, then insertion.
func (s *MemoryStore) before(a, b *Job) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.RunAt.Equal(b.RunAt) {
		return a.RunAt.Before(b.RunAt)
	}
	return s.order[a.ID] < s.order[b.ID]
}

func (s *MemoryStore) owned(id, workerID string) (*Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if j.State != StateActive || j.LockedBy != workerID {
		return nil, ErrLockLost
	}
	return j, nil
}

func (s *MemoryStore) Heartbeat(_ context.Context, id, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.owned(id, workerID)
	if err != nil {
		return err
	}
	now := s.now()
	j.HeartbeatAt = &now
	return nil
}

func (s *MemoryStore) Complete(_ context.Context, id, workerID string, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.owned(id, workerID)
	if err != nil {
		return err
	}
	now := s.now()
	j.State = StateCompleted
	j.LockedBy = ""
	j.HeartbeatAt = nil
	j.FinishedAt = &now
	j.Result = append(json.RawMessage(nil), result...)
	return nil
}

func (s *MemoryStore) Retry(_ context.Context, id, workerID, reason string, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.owned(id, workerID)
	if err != nil {
		return err
	}
	j.State = StateWaiting
	j.LockedBy = ""
	j.HeartbeatAt = nil
	j.RunAt = s.now().Add(delay)
	j.FailedReason = reason
	j.ErrorHistory = append(j.ErrorHistory, reason)
	return nil
}

func (s *MemoryStore) Fail(_ context.Context, id, workerID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.owned(id, workerID)
	if err != nil {
		return err
	}
	now := s.now()
	j.State = StateFailed
	j.LockedBy = ""
	j.HeartbeatAt = nil
	j.FinishedAt = &now
	j.FailedReason = reason
	j.ErrorHistory = append(j.ErrorHistory, reason)
	return nil
}

func (s *MemoryStore) RecoverStalled(_ context.Context, queue string, stalledAfter time.Duration, maxStalled int) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	threshold := now.Add(-stalledAfter)
	var recovered, failed int
	for _, j := range s.jobs {
		if j.Queue != queue || j.State != StateActive {
			continue
		}
		last := j.StartedAt
		if j.HeartbeatAt != nil {
			last = j.HeartbeatAt
		}
		if last != nil && !last.Before(threshold) {
			continue
		}

		j.StalledCount++
		j.LockedBy = ""
		j.HeartbeatAt = nil
		if j.StalledCount > maxStalled {
			t := now
			j.State = StateFailed
			j.FinishedAt = &t
			j.FailedReason = StalledReason
			j.ErrorHistory = append(j.ErrorHistory, StalledReason)
			failed++
			continue
		}
		// An interrupted run does not consume an attempt.
		if j.AttemptsMade > 0 {
			j.AttemptsMade--
		}
		j.State = StateWaiting
		j.RunAt = now
		recovered++
	}
	return recovered, failed, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j.clone(), nil
}

func (s *MemoryStore) List(_ context.Context, queue string, state State, limit int) ([]*Job, error) {
	if !state.IsValid() {
		return nil, ErrInvalidState
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	paused := s.paused[queue]
	var out []*Job
	for _, j := range s.jobs {
		if j.Queue == queue && j.ReportedState(now, paused) == state {
			out = append(out, j)
		}
	}

	sort.Slice(out, func(i, k int) bool {
		a, b := out[i], out[k]
		if state.IsFinished() && a.FinishedAt != nil && b.FinishedAt != nil && !a.FinishedAt.Equal(*b.FinishedAt) {
			return a.FinishedAt.After(*b.FinishedAt)
		}
		return s.before(a, b)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	res := make([]*Job, len(out))
	for i, j := range out {
		res[i] = j.clone()
	}
	return res, nil
}

func (s *MemoryStore) Counts(_ context.Context, queue string) (Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	paused := s.paused[queue]
	var c Counts
	for _, j := range s.jobs {
		if j.Queue != queue {
			continue
		}
		switch j.ReportedState(now, paused) {
		case StateWaiting:
			c.Waiting++
		case StateActive:
			c.Active++
		case StateCompleted:
			c.Completed++
		case StateFailed:
			c.Failed++
		case StateDelayed:
			c.Delayed++
		case StatePaused:
			c.Paused++
		}
	}
	return c, nil
}

func (s *MemoryStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if j.State == StateActive {
		return ErrJobActive
	}
	delete(s.jobs, id)
	delete(s.order, id)
	return nil
}

func (s *MemoryStore) RetryFailed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if j.State != StateFailed {
		return ErrJobNotFailed
	}
	j.State = StateWaiting
	j.AttemptsMade = 0
	j.StalledCount = 0
	j.FailedReason = ""
	j.FinishedAt = nil
	j.RunAt = s.now()
	return nil
}

func (s *MemoryStore) Clean(_ context.Context, queue string, state State, grace time.Duration, limit int) (int, error) {
	if !state.IsFinished() {
		return 0, ErrInvalidState
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-grace)
	victims := s.finished(queue, state)
	// oldest first
	sort.Slice(victims, func(i, k int) bool { return victims[i].FinishedAt.Before(*victims[k].FinishedAt) })

	removed := 0
	for _, j := range victims {
		if limit > 0 && removed >= limit {
			break
		}
		if !j.FinishedAt.Before(cutoff) {
			continue
		}
		delete(s.jobs, j.ID)
		delete(s.order, j.ID)
		removed++
	}
	return removed, nil
}

func (s *MemoryStore) Trim(_ context.Context, queue string, state State, keep int) (int, error) {
	if !state.IsFinished() {
		return 0, ErrInvalidState
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := s.finished(queue, state)
	if len(jobs) <= keep {
		return 0, nil
	}
	// newest first
	sort.Slice(jobs, func(i, k int) bool {
		a, b := jobs[i], jobs[k]
		if !a.FinishedAt.Equal(*b.FinishedAt) {
			return a.FinishedAt.After(*b.FinishedAt)
		}
		return s.order[a.ID] > s.order[b.ID]
	})
	for _, j := range jobs[keep:] {
		delete(s.jobs, j.ID)
		delete(s.order, j.ID)
	}
	return len(jobs) - keep, nil
}

func (s *MemoryStore) finished(queue string, state State) []*Job {
	var out []*Job
	for _, j := range s.jobs {
		if j.Queue == queue && j.State == state && j.FinishedAt != nil {
			out = append(out, j)
		}
	}
	return out
}

func (s *MemoryStore) Pause(_ context.Context, queue string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused[queue] = true
	return nil
}

func (s *MemoryStore) Resume(_ context.Context, queue string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.paused, queue)
	return nil
}

func (s *MemoryStore) IsPaused(_ context.Context, queue string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused[queue], nil
}

var _ Store = (*MemoryStore)(nil)
