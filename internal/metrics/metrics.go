package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notifyhub/eventdesk/internal/queue"
	"github.com/notifyhub/eventdesk/internal/worker"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	JobsCompleted *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	JobsRetried   *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	QueueDepth    *prometheus.GaugeVec
	QRScans       *prometheus.CounterVec
	TriggersFired *prometheus.CounterVec
	CheckIns      *prometheus.CounterVec
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Total number of jobs that completed successfully.",
		}, []string{"queue", "type"}),

		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Total number of jobs that failed permanently (retries exhausted or non-retryable).",
		}, []string{"queue", "type"}),

		JobsRetried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_retried_total",
			Help: "Total number of failed attempts scheduled for another try.",
		}, []string{"queue", "type"}),

		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "job_processing_seconds",
			Help:    "Handler latency from claim to completion.",
			Buckets: prometheus.DefBuckets,
		}, []string{"queue"}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Number of jobs per queue and reported state.",
		}, []string{"queue", "state"}),

		QRScans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qr_scans_total",
			Help: "QR verifications by result (valid or the rejection reason).",
		}, []string{"result"}),

		TriggersFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_triggers_fired_total",
			Help: "Recurring triggers that enqueued a job.",
		}, []string{"trigger"}),

		CheckIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_check_ins_total",
			Help: "Ticket scans by outcome.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.JobsCompleted,
		m.JobsFailed,
		m.JobsRetried,
		m.JobDuration,
		m.QueueDepth,
		m.QRScans,
		m.TriggersFired,
		m.CheckIns,
	)

	return m
}

// WorkerHooks returns the callbacks the worker pool reports job outcomes
// through. Centralises the prometheus calls so the worker stays import-free.
func (m *Metrics) WorkerHooks() worker.Hooks {
	return worker.Hooks{
		OnCompleted: func(j *queue.Job, latency time.Duration) {
			m.JobsCompleted.WithLabelValues(j.Queue, j.Type).Inc()
			m.JobDuration.WithLabelValues(j.Queue).Observe(latency.Seconds())
		},
		OnRetried: func(j *queue.Job, _ error) {
			m.JobsRetried.WithLabelValues(j.Queue, j.Type).Inc()
		},
		OnFailed: func(j *queue.Job, _ error) {
			m.JobsFailed.WithLabelValues(j.Queue, j.Type).Inc()
		},
	}
}

// ObserveCounts sets the depth gauges of one queue.
func (m *Metrics) ObserveCounts(queueName string, c queue.Counts) {
	m.QueueDepth.WithLabelValues(queueName, string(queue.StateWaiting)).Set(float64(c.Waiting))
	m.QueueDepth.WithLabelValues(queueName, string(queue.StateActive)).Set(float64(c.Active))
	m.QueueDepth.WithLabelValues(queueName, string(queue.StateCompleted)).Set(float64(c.Completed))
	m.QueueDepth.WithLabelValues(queueName, string(queue.StateFailed)).Set(float64(c.Failed))
	m.QueueDepth.WithLabelValues(queueName, string(queue.StateDelayed)).Set(float64(c.Delayed))
	m.QueueDepth.WithLabelValues(queueName, string(queue.StatePaused)).Set(float64(c.Paused))
}

// TriggerFired is shaped for scheduler.OnFire.
func (m *Metrics) TriggerFired(key, _ string) {
	m.TriggersFired.WithLabelValues(key).Inc()
}

func (m *Metrics) QRScan(result string) {
	m.QRScans.WithLabelValues(result).Inc()
}

func (m *Metrics) CheckIn(status string) {
	m.CheckIns.WithLabelValues(status).Inc()
}
