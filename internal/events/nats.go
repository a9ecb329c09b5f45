// Package events publishes job lifecycle events to NATS JetStream so other
// services can react to finished work.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/notifyhub/eventdesk/internal/queue"
	"github.com/notifyhub/eventdesk/internal/worker"
)

const (
	StreamName     = "JOBS"
	publishTimeout = 2 * time.Second
)

// JetStreamPublisher is the slice of jetstream.JetStream the publisher uses.
type JetStreamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// JobEvent is the message body of every lifecycle event.
type JobEvent struct {
	JobID        string  `json:"jobId"`
	Queue        string  `json:"queue"`
	Type         string  `json:"type"`
	Status       string  `json:"status"` // "completed" or "failed"
	Attempts     int     `json:"attempts"`
	FinishedAt   int64   `json:"finishedAt"`
	ErrorMessage *string `json:"errorMessage,omitempty"`
}

// Subject is JOBS.<queue>.<status>.
func (e JobEvent) Subject() string {
	return fmt.Sprintf("%s.%s.%s", StreamName, e.Queue, e.Status)
}

type NATSPublisher struct {
	js   JetStreamPublisher
	conn *nats.Conn
	log  *zap.Logger
	now  func() time.Time
}

// Connect dials NATS, makes sure the JOBS stream exists and returns a
// publisher on it.
func Connect(ctx context.Context, log *zap.Logger, natsURL string) (*NATSPublisher, error) {
	nc, err := nats.Connect(natsURL, nats.Name("eventdesk"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create jetstream: %w", err)
	}
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{StreamName + ".>"},
		MaxAge:   7 * 24 * time.Hour,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure %s stream: %w", StreamName, err)
	}

	log.Info("Connected to NATS JetStream for job events", zap.String("url", natsURL))
	p := NewPublisher(js, log)
	p.conn = nc
	return p, nil
}

// NewPublisher wraps an existing JetStream handle.
func NewPublisher(js JetStreamPublisher, log *zap.Logger) *NATSPublisher {
	return &NATSPublisher{js: js, log: log, now: time.Now}
}

func (p *NATSPublisher) Publish(ctx context.Context, ev JobEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal job event: %w", err)
	}
	subject := ev.Subject()
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish job event to NATS: %w", err)
	}
	p.log.Debug("Published job event",
		zap.String("job_id", ev.JobID),
		zap.String("subject", subject))
	return nil
}

// Hooks reports finished jobs. Publishing failures are logged, never
// surfaced to the worker: the job outcome is already stored.
func (p *NATSPublisher) Hooks() worker.Hooks {
	return worker.Hooks{
		OnCompleted: func(j *queue.Job, _ time.Duration) {
			p.emit(j, "completed", nil)
		},
		OnFailed: func(j *queue.Job, err error) {
			p.emit(j, "failed", err)
		},
	}
}

func (p *NATSPublisher) emit(j *queue.Job, status string, cause error) {
	ev := JobEvent{
		JobID:      j.ID,
		Queue:      j.Queue,
		Type:       j.Type,
		Status:     status,
		Attempts:   j.AttemptsMade,
		FinishedAt: p.now().Unix(),
	}
	if cause != nil {
		msg := cause.Error()
		ev.ErrorMessage = &msg
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.Publish(ctx, ev); err != nil {
		p.log.Warn("Failed to publish job event",
			zap.String("job_id", j.ID),
			zap.String("subject", ev.Subject()),
			zap.Error(err))
	}
}

// Close drains the connection opened by Connect.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
	}
}
