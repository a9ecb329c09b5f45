// Package queue implements durable named job queues: the job envelope, the
// Store contract every backend satisfies, and the Registry producers and
// workers share.
package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is the lifecycle state of a job.
//
// Only waiting, active, completed and failed are stored. Delayed and paused
// are derived: a waiting job whose RunAt is in the future is delayed, and a
// due waiting job of a paused queue is paused.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateDelayed   State = "delayed"
	StatePaused    State = "paused"
)

func (s State) IsValid() bool {
	switch s {
	case StateWaiting, StateActive, StateCompleted, StateFailed, StateDelayed, StatePaused:
		return true
	}
	return false
}

// IsFinished reports whether s is a terminal state.
func (s State) IsFinished() bool {
	return s == StateCompleted || s == StateFailed
}

// Job is the persisted envelope for one unit of background work.
type Job struct {
	ID       string          `json:"id"`
	Queue    string          `json:"queue"`
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
	State    State           `json:"state"`
	Priority int             `json:"priority"`

	AttemptsMade int           `json:"attemptsMade"`
	MaxAttempts  int           `json:"maxAttempts"`
	Backoff      Backoff       `json:"backoff"`
	Timeout      time.Duration `json:"timeout"`
	StalledCount int           `json:"stalledCount"`

	RunAt       time.Time  `json:"runAt"`
	LockedBy    string     `json:"lockedBy,omitempty"`
	HeartbeatAt *time.Time `json:"heartbeatAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`

	Result       json.RawMessage `json:"result,omitempty"`
	FailedReason string          `json:"failedReason,omitempty"`
	ErrorHistory []string        `json:"errorHistory,omitempty"`
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Data, v); err != nil {
		return fmt.Errorf("decode %s/%s payload: %w", j.Queue, j.Type, err)
	}
	return nil
}

// ReportedState maps the stored state onto what operators see.
func (j *Job) ReportedState(now time.Time, paused bool) State {
	if j.State != StateWaiting {
		return j.State
	}
	if j.RunAt.After(now) {
		return StateDelayed
	}
	if paused {
		return StatePaused
	}
	return StateWaiting
}

func (j *Job) clone() *Job {
	c := *j
	if j.Data != nil {
		c.Data = append(json.RawMessage(nil), j.Data...)
	}
	if j.Result != nil {
		c.Result = append(json.RawMessage(nil), j.Result...)
	}
	if j.ErrorHistory != nil {
		c.ErrorHistory = append([]string(nil), j.ErrorHistory...)
	}
	return &c
}

// Handle is what producers get back from Enqueue.
type Handle struct {
	JobID   string `json:"jobId"`
	Queue   string `json:"queue"`
	Created bool   `json:"created"`
}

// Counts is the number of jobs per reported state for one queue.
type Counts struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
	Paused    int `json:"paused"`
}
