package queue

import (
	"errors"
	"time"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrUnknownQueue   = errors.New("unknown queue")
	ErrLockLost       = errors.New("job lock lost: job is no longer owned by this worker")
	ErrJobNotFailed   = errors.New("only failed jobs can be retried")
	ErrJobActive      = errors.New("active jobs cannot be removed")
	ErrInvalidState   = errors.New("invalid job state")
	ErrDuplicateQueue = errors.New("queue defined twice")
	ErrJobTimeout     = errors.New("job timed out")
)

// StalledReason is recorded on jobs failed by stalled-job recovery.
const StalledReason = "job stalled more than allowable limit"

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable: the job fails on this attempt no
// matter how many attempts remain.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// timeoutError is returned by the worker when a handler overruns its budget.
type timeoutError struct {
	after time.Duration
}

func (e *timeoutError) Error() string { return ErrJobTimeout.Error() + " after " + e.after.String() }
func (e *timeoutError) Unwrap() error { return ErrJobTimeout }

// TimeoutError builds the error recorded when a job exceeds its timeout.
func TimeoutError(after time.Duration) error { return &timeoutError{after: after} }
