// Package jobs defines the named queues and the closed set of job variants
// each queue accepts. Producers enqueue typed values; processors decode a
// stored job back onto exactly one variant and type-switch on it.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/notifyhub/eventdesk/internal/queue"
)

const (
	QueueEmail        = "email"
	QueueSMS          = "sms"
	QueueNotification = "notification"
	QueueCertificate  = "certificate"
	QueueAnalytics    = "analytics"
	QueueScheduled    = "scheduled"
)

const (
	SingleCertificateTimeout = 60 * time.Second
	BulkCertificateTimeout   = 300 * time.Second
)

var ErrUnknownType = errors.New("unknown job type")

// Definitions returns the queue policies. concurrency overrides the
// per-queue worker count; missing entries keep the default.
func Definitions(concurrency map[string]int) []queue.Definition {
	defs := []queue.Definition{
		{
			Name:        QueueEmail,
			Defaults:    queue.Options{Attempts: 3, Backoff: queue.Backoff{Type: queue.BackoffExponential, Delay: 2 * time.Second}},
			Retention:   queue.Retention{KeepCompleted: 100, KeepFailed: 500, CompletedAge: 24 * time.Hour},
			Concurrency: 5,
		},
		{
			Name:        QueueSMS,
			Defaults:    queue.Options{Attempts: 3, Backoff: queue.Backoff{Type: queue.BackoffExponential, Delay: 2 * time.Second}},
			Retention:   queue.Retention{KeepCompleted: 100, KeepFailed: 500, CompletedAge: 24 * time.Hour},
			Concurrency: 3,
		},
		{
			Name:        QueueNotification,
			Defaults:    queue.Options{Attempts: 3, Backoff: queue.Backoff{Type: queue.BackoffFixed, Delay: time.Second}},
			Retention:   queue.Retention{KeepCompleted: 100, KeepFailed: 500, CompletedAge: 24 * time.Hour},
			Concurrency: 5,
		},
		{
			Name: QueueCertificate,
			Defaults: queue.Options{
				Attempts: 3,
				Backoff:  queue.Backoff{Type: queue.BackoffExponential, Delay: 5 * time.Second},
				Timeout:  SingleCertificateTimeout,
			},
			Retention:   queue.Retention{KeepCompleted: 50, KeepFailed: 200, CompletedAge: 24 * time.Hour},
			Concurrency: 2,
		},
		{
			Name:        QueueAnalytics,
			Defaults:    queue.Options{Attempts: 2, Backoff: queue.Backoff{Type: queue.BackoffFixed, Delay: 10 * time.Second}},
			Retention:   queue.Retention{KeepCompleted: 20, KeepFailed: 100, CompletedAge: 24 * time.Hour},
			Concurrency: 1,
		},
		{
			Name:        QueueScheduled,
			Defaults:    queue.Options{Attempts: 2, Backoff: queue.Backoff{Type: queue.BackoffFixed, Delay: 30 * time.Second}},
			Retention:   queue.Retention{KeepCompleted: 20, KeepFailed: 100, CompletedAge: 24 * time.Hour},
			Concurrency: 1,
		},
	}
	for i := range defs {
		if n, ok := concurrency[defs[i].Name]; ok && n > 0 {
			defs[i].Concurrency = n
		}
	}
	return defs
}

// Job is a typed job payload. Queue names the queue it runs on and Kind
// is the stored job type.
type Job interface {
	Queue() string
	Kind() string
}

// Enqueue puts j on its own queue.
func Enqueue(ctx context.Context, reg *queue.Registry, j Job, opts ...queue.Option) (queue.Handle, error) {
	return reg.Enqueue(ctx, j.Queue(), j.Kind(), j, opts...)
}

// decode maps a stored job onto the variant registered for its type. An
// unknown type or undecodable payload is permanent: retrying cannot fix it.
func decode[T Job](j *queue.Job, kinds map[string]func() T) (T, error) {
	var zero T
	newJob, ok := kinds[j.Type]
	if !ok {
		return zero, queue.Permanent(fmt.Errorf("%w %q on queue %s", ErrUnknownType, j.Type, j.Queue))
	}
	v := newJob()
	if len(j.Data) > 0 {
		if err := json.Unmarshal(j.Data, v); err != nil {
			return zero, queue.Permanent(fmt.Errorf("decode %s/%s: %w", j.Queue, j.Type, err))
		}
	}
	return v, nil
}
