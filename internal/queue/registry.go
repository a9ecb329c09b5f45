package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry is the set of queues known to a process. It is built once at
// startup and passed to producers, workers, the scheduler and the admin API.
type Registry struct {
	store  Store
	defs   map[string]Definition
	names  []string
	wake   map[string]chan struct{}
	logger *zap.Logger
}

// NewRegistry validates defs and binds them to store.
func NewRegistry(store Store, logger *zap.Logger, defs ...Definition) (*Registry, error) {
	r := &Registry{
		store:  store,
		defs:   make(map[string]Definition, len(defs)),
		wake:   make(map[string]chan struct{}, len(defs)),
		logger: logger,
	}
	for _, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("queue definition without a name")
		}
		if _, dup := r.defs[d.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateQueue, d.Name)
		}
		if d.Defaults.Attempts < 1 {
			d.Defaults.Attempts = 1
		}
		if d.Defaults.Backoff.Type == "" {
			d.Defaults.Backoff.Type = BackoffFixed
		}
		if err := d.Defaults.Backoff.validate(); err != nil {
			return nil, fmt.Errorf("queue %s: %w", d.Name, err)
		}
		if d.Concurrency < 1 {
			d.Concurrency = 1
		}
		r.defs[d.Name] = d
		r.names = append(r.names, d.Name)
		// Buffer of one: a pending signal is enough to make a sleeping worker look again.
		r.wake[d.Name] = make(chan struct{}, 1)
	}
	return r, nil
}

func (r *Registry) Store() Store { return r.store }

// Queues returns the queue names in definition order.
func (r *Registry) Queues() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

func (r *Registry) Definition(name string) (Definition, error) {
	d, ok := r.defs[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownQueue, name)
	}
	return d, nil
}

// Wake returns the channel signalled whenever a job is enqueued on name
// by this process.
func (r *Registry) Wake(name string) <-chan struct{} {
	return r.wake[name]
}

// Enqueue records a job on the named queue and returns once the store has
// persisted it. data may be a json.RawMessage or any JSON-marshalable value.
func (r *Registry) Enqueue(ctx context.Context, queue, jobType string, data any, opts ...Option) (Handle, error) {
	def, err := r.Definition(queue)
	if err != nil {
		return Handle{}, err
	}
	if jobType == "" {
		return Handle{}, fmt.Errorf("enqueue on %s: job type must not be empty", queue)
	}

	o := def.Defaults
	o.JobID = ""
	for _, opt := range opts {
		opt(&o)
	}
	if o.Attempts < 1 {
		o.Attempts = 1
	}
	if err := o.Backoff.validate(); err != nil {
		return Handle{}, err
	}

	payload, err := marshalData(data)
	if err != nil {
		return Handle{}, fmt.Errorf("enqueue %s/%s: %w", queue, jobType, err)
	}

	id := o.JobID
	if id == "" {
		id = uuid.NewString()
	}

	stored, created, err := r.store.Add(ctx, &Job{
		ID:          id,
		Queue:       queue,
		Type:        jobType,
		Data:        payload,
		Priority:    o.Priority,
		MaxAttempts: o.Attempts,
		Backoff:     o.Backoff,
		Timeout:     o.Timeout,
	}, o.Delay)
	if err != nil {
		return Handle{}, fmt.Errorf("enqueue %s/%s: %w", queue, jobType, err)
	}

	if created {
		r.signal(queue)
		r.logger.Debug("job enqueued",
			zap.String("queue", queue),
			zap.String("type", jobType),
			zap.String("job_id", stored.ID),
		)
	} else {
		r.logger.Debug("duplicate job id, returning existing job",
			zap.String("queue", queue),
			zap.String("job_id", stored.ID),
		)
	}
	return Handle{JobID: stored.ID, Queue: stored.Queue, Created: created}, nil
}

func (r *Registry) signal(queue string) {
	select {
	case r.wake[queue] <- struct{}{}:
	default:
	}
}

// Signal wakes local workers of queue, e.g. after a resume or a manual retry.
func (r *Registry) Signal(queue string) {
	if _, ok := r.wake[queue]; ok {
		r.signal(queue)
	}
}

func marshalData(data any) (json.RawMessage, error) {
	switch v := data.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage("{}"), nil
		}
		return v, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal job data: %w", err)
		}
		return b, nil
	}
}
