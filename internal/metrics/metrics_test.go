package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/notifyhub/eventdesk/internal/metrics"
	"github.com/notifyhub/eventdesk/internal/queue"
)

func TestWorkerHooks(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	hooks := m.WorkerHooks()
	j := &queue.Job{Queue: "email", Type: "welcome"}

	hooks.OnCompleted(j, 20*time.Millisecond)
	hooks.OnCompleted(j, 30*time.Millisecond)
	hooks.OnRetried(j, errors.New("boom"))
	hooks.OnFailed(j, errors.New("boom"))

	if got := testutil.ToFloat64(m.JobsCompleted.WithLabelValues("email", "welcome")); got != 2 {
		t.Errorf("completed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.JobsRetried.WithLabelValues("email", "welcome")); got != 1 {
		t.Errorf("retried = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.JobsFailed.WithLabelValues("email", "welcome")); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
}

func TestObserveCounts(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	m.ObserveCounts("sms", queue.Counts{Waiting: 4, Failed: 2, Delayed: 1})

	tests := []struct {
		state string
		want  float64
	}{
		{"waiting", 4},
		{"failed", 2},
		{"delayed", 1},
		{"active", 0},
	}
	for _, tc := range tests {
		if got := testutil.ToFloat64(m.QueueDepth.WithLabelValues("sms", tc.state)); got != tc.want {
			t.Errorf("depth[%s] = %v, want %v", tc.state, got, tc.want)
		}
	}
}
