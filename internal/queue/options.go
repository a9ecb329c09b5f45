package queue

import (
	"fmt"
	"math"
	"time"
)

type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffExponential BackoffType = "exponential"
)

// Backoff is the retry delay policy of a job.
type Backoff struct {
	Type  BackoffType   `json:"type"`
	Delay time.Duration `json:"delay"`
}

// maxBackoff caps exponential growth.
const maxBackoff = 24 * time.Hour

// Next returns the delay before the retry that follows attempt n (1-indexed).
//
//	fixed:       Delay
//	exponential: Delay * 2^(n-1)
func (b Backoff) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	switch b.Type {
	case BackoffExponential:
		d := float64(b.Delay) * math.Pow(2, float64(attempt-1))
		if d > float64(maxBackoff) {
			return maxBackoff
		}
		return time.Duration(d)
	default:
		return b.Delay
	}
}

func (b Backoff) validate() error {
	switch b.Type {
	case BackoffFixed, BackoffExponential:
	default:
		return fmt.Errorf("invalid backoff type %q", b.Type)
	}
	if b.Delay < 0 {
		return fmt.Errorf("backoff delay must not be negative")
	}
	return nil
}

// Options are the per-job settings. Queue definitions supply defaults that
// per-call Option values override.
type Options struct {
	Attempts int
	Backoff  Backoff
	Timeout  time.Duration
	JobID    string
	Delay    time.Duration
	Priority int
}

type Option func(*Options)

func WithAttempts(n int) Option {
	return func(o *Options) { o.Attempts = n }
}

func WithBackoff(t BackoffType, delay time.Duration) Option {
	return func(o *Options) { o.Backoff = Backoff{Type: t, Delay: delay} }
}

func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithJobID makes the enqueue idempotent: if a job with this ID already
// exists, it is returned instead of a new one being created.
func WithJobID(id string) Option {
	return func(o *Options) { o.JobID = id }
}

// WithDelay keeps the job delayed for d before it becomes claimable.
func WithDelay(d time.Duration) Option {
	return func(o *Options) { o.Delay = d }
}

// WithPriority orders claimable jobs; higher runs first.
func WithPriority(p int) Option {
	return func(o *Options) { o.Priority = p }
}

// Retention bounds how many finished jobs are kept for inspection.
// CompletedAge additionally drops completed jobs that finished longer ago
// than that, whatever their count. Zero values disable a bound.
type Retention struct {
	KeepCompleted int
	KeepFailed    int
	CompletedAge  time.Duration
}

// Definition describes one named queue.
type Definition struct {
	Name        string
	Defaults    Options
	Retention   Retention
	Concurrency int
}
