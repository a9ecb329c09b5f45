package service_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/eventdesk/internal/domain"
	"github.com/notifyhub/eventdesk/internal/jobs"
	"github.com/notifyhub/eventdesk/internal/qr"
	"github.com/notifyhub/eventdesk/internal/queue"
	"github.com/notifyhub/eventdesk/internal/repository"
	"github.com/notifyhub/eventdesk/internal/signing"
)

var eventStart = time.Now().UTC().Add(2 * time.Hour)

type env struct {
	repos *repository.Store
	jobs  *queue.MemoryStore
	reg   *queue.Registry
	codec *qr.Codec
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	e := &env{repos: repository.NewMockStore(), jobs: queue.NewMemoryStore()}

	var err error
	e.reg, err = queue.NewRegistry(e.jobs, zap.NewNop(), jobs.Definitions(nil)...)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := signing.NewSigner("service-test-secret")
	if err != nil {
		t.Fatal(err)
	}
	e.codec = qr.NewCodec(signer)

	_ = e.repos.Users.Create(ctx, &domain.User{ID: "u1", Name: "Ada", Email: "ada@example.com", Phone: "+15550001"})
	_ = e.repos.Users.Create(ctx, &domain.User{ID: "u2", Name: "Alan", Email: "alan@example.com"})
	_ = e.repos.Events.Create(ctx, &domain.Event{ID: "ev1", Title: "GopherCon", Venue: "Hall A", StartTime: eventStart, EndTime: eventStart.Add(8 * time.Hour)})
	_ = e.repos.Events.Create(ctx, &domain.Event{ID: "ev2", Title: "RustConf", Venue: "Hall B", StartTime: eventStart, EndTime: eventStart.Add(8 * time.Hour)})
	return e
}

func (e *env) register(t *testing.T, eventID, userID string, status domain.RegistrationStatus) {
	t.Helper()
	if err := e.repos.Registrations.Create(context.Background(), &domain.Registration{
		ID: eventID + "-" + userID, EventID: eventID, UserID: userID, Status: status, RegisteredAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}
}
