package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/eventdesk/internal/analytics"
	"github.com/notifyhub/eventdesk/internal/jobs"
	"github.com/notifyhub/eventdesk/internal/queue"
)

func newRegistry(t *testing.T) (*queue.Registry, *queue.MemoryStore) {
	t.Helper()
	store := queue.NewMemoryStore()
	reg, err := queue.NewRegistry(store, zap.NewNop(), jobs.Definitions(nil)...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg, store
}

func TestDefinitions(t *testing.T) {
	defs := jobs.Definitions(map[string]int{jobs.QueueEmail: 12, jobs.QueueSMS: 0})

	byName := map[string]queue.Definition{}
	for _, d := range defs {
		byName[d.Name] = d
	}
	for _, name := range []string{jobs.QueueEmail, jobs.QueueSMS, jobs.QueueNotification, jobs.QueueCertificate, jobs.QueueAnalytics, jobs.QueueScheduled} {
		if _, ok := byName[name]; !ok {
			t.Errorf("missing queue %s", name)
		}
	}
	if byName[jobs.QueueEmail].Concurrency != 12 {
		t.Errorf("concurrency override not applied: %d", byName[jobs.QueueEmail].Concurrency)
	}
	if byName[jobs.QueueSMS].Concurrency != 3 {
		t.Errorf("zero override should keep the default, got %d", byName[jobs.QueueSMS].Concurrency)
	}
	if byName[jobs.QueueCertificate].Defaults.Timeout != jobs.SingleCertificateTimeout {
		t.Errorf("certificate timeout = %v", byName[jobs.QueueCertificate].Defaults.Timeout)
	}
}

func TestEnqueue_RoundTrip(t *testing.T) {
	reg, store := newRegistry(t)
	ctx := context.Background()

	h, err := jobs.Enqueue(ctx, reg, jobs.EventReminderEmail{UserID: "u1", EventID: "ev1", HoursBefore: 24})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Queue != jobs.QueueEmail {
		t.Fatalf("queued on %s", h.Queue)
	}

	stored, err := store.Get(ctx, h.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Type != "event_reminder" {
		t.Fatalf("stored type %q", stored.Type)
	}

	decoded, err := jobs.DecodeEmail(stored)
	if err != nil {
		t.Fatalf("DecodeEmail: %v", err)
	}
	got, ok := decoded.(*jobs.EventReminderEmail)
	if !ok {
		t.Fatalf("decoded into %T", decoded)
	}
	if got.UserID != "u1" || got.EventID != "ev1" || got.HoursBefore != 24 {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestDecode_PeriodAndLeadTravelInType(t *testing.T) {
	reg, store := newRegistry(t)
	ctx := context.Background()

	tests := []struct {
		job  jobs.Job
		kind string
	}{
		{jobs.ReminderSweep{Lead: time.Hour}, "event_reminder_1h"},
		{jobs.ReminderSweep{Lead: 24 * time.Hour}, "event_reminder_24h"},
		{jobs.AnalyticsSweep{Period: analytics.Weekly}, "analytics_weekly"},
		{jobs.Rollup{Period: analytics.Monthly}, "monthly_rollup"},
	}
	for _, tc := range tests {
		t.Run(tc.kind, func(t *testing.T) {
			if tc.job.Kind() != tc.kind {
				t.Fatalf("Kind() = %q, want %q", tc.job.Kind(), tc.kind)
			}
			h, err := jobs.Enqueue(ctx, reg, tc.job)
			if err != nil {
				t.Fatal(err)
			}
			stored, _ := store.Get(ctx, h.JobID)

			var decoded jobs.Job
			if stored.Queue == jobs.QueueScheduled {
				decoded, err = jobs.DecodeScheduled(stored)
			} else {
				decoded, err = jobs.DecodeAnalytics(stored)
			}
			if err != nil {
				t.Fatal(err)
			}
			if decoded.Kind() != tc.kind {
				t.Errorf("decoded kind %q, want %q", decoded.Kind(), tc.kind)
			}
		})
	}
}

func TestDecode_UnknownTypeIsPermanent(t *testing.T) {
	j := &queue.Job{Queue: jobs.QueueSMS, Type: "fax", Data: json.RawMessage(`{}`)}

	_, err := jobs.DecodeSMS(j)
	if !errors.Is(err, jobs.ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if !queue.IsPermanent(err) {
		t.Fatal("unknown type must not be retried")
	}
}

func TestDecode_BadPayloadIsPermanent(t *testing.T) {
	j := &queue.Job{Queue: jobs.QueueCertificate, Type: "generate_bulk", Data: json.RawMessage(`{"event_id": 42}`)}

	if _, err := jobs.DecodeCertificate(j); !queue.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}
