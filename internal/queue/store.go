package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Store is the persistence contract behind every queue.
//
// Claim must be atomic: a waiting job is handed to exactly one caller.
// Heartbeat, Complete, Retry and Fail only succeed while the caller still
// holds the job's lock and return ErrLockLost otherwise. Together with
// RecoverStalled this gives at-least-once delivery.
type Store interface {
	// Add persists j in the waiting state, claimable after delay. When a job
	// with the same ID exists, the existing job is returned with created=false.
	Add(ctx context.Context, j *Job, delay time.Duration) (stored *Job, created bool, err error)

	// Claim locks the next due job of a non-paused queue for workerID.
	// It returns (nil, nil) when nothing is claimable.
	Claim(ctx context.Context, queue, workerID string) (*Job, error)

	Heartbeat(ctx context.Context, id, workerID string) error
	Complete(ctx context.Context, id, workerID string, result json.RawMessage) error
	// Retry moves an active job back to waiting, claimable after delay.
	Retry(ctx context.Context, id, workerID, reason string, delay time.Duration) error
	Fail(ctx context.Context, id, workerID, reason string) error

	// RecoverStalled requeues active jobs whose heartbeat is older than
	// stalledAfter. A job that has stalled more than maxStalled times fails.
	RecoverStalled(ctx context.Context, queue string, stalledAfter time.Duration, maxStalled int) (recovered, failed int, err error)

	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, queue string, state State, limit int) ([]*Job, error)
	Counts(ctx context.Context, queue string) (Counts, error)
	Remove(ctx context.Context, id string) error
	// RetryFailed puts a failed job back to waiting with a fresh attempt budget.
	RetryFailed(ctx context.Context, id string) error
	// Clean removes finished jobs of state that finished more than grace ago.
	// limit <= 0 means no limit.
	Clean(ctx context.Context, queue string, state State, grace time.Duration, limit int) (int, error)
	// Trim keeps only the keep most recently finished jobs of state.
	Trim(ctx context.Context, queue string, state State, keep int) (int, error)

	Pause(ctx context.Context, queue string) error
	Resume(ctx context.Context, queue string) error
	IsPaused(ctx context.Context, queue string) (bool, error)
}
