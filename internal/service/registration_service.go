package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/eventdesk/internal/domain"
	"github.com/notifyhub/eventdesk/internal/jobs"
	"github.com/notifyhub/eventdesk/internal/queue"
	"github.com/notifyhub/eventdesk/internal/repository"
)

// RegistrationService registers attendees and queues their confirmations.
type RegistrationService struct {
	repos  *repository.Store
	reg    *queue.Registry
	now    func() time.Time
	logger *zap.Logger
}

func NewRegistrationService(repos *repository.Store, reg *queue.Registry, logger *zap.Logger) *RegistrationService {
	return &RegistrationService{repos: repos, reg: reg, now: func() time.Time { return time.Now().UTC() }, logger: logger}
}

// Register returns domain.ErrConflict when the user is already registered.
func (s *RegistrationService) Register(ctx context.Context, eventID, userID string) (*domain.Registration, error) {
	event, err := s.repos.Events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	r := &domain.Registration{
		ID:           uuid.NewString(),
		EventID:      event.ID,
		UserID:       user.ID,
		Status:       domain.RegistrationRegistered,
		RegisteredAt: s.now(),
	}
	if err := s.repos.Registrations.Create(ctx, r); err != nil {
		return nil, err
	}

	s.confirm(ctx, r, user, event)
	return r, nil
}

// confirm queues the confirmation messages. The registration is already
// stored, so enqueue failures are logged rather than returned.
func (s *RegistrationService) confirm(ctx context.Context, r *domain.Registration, user *domain.User, event *domain.Event) {
	type outbound struct {
		job jobs.Job
		id  string
	}
	key := "registration-confirmation:" + r.ID
	toSend := []outbound{
		{jobs.RegistrationConfirmationEmail{UserID: user.ID, EventID: event.ID}, key + ":email"},
		{jobs.CreateNotification{
			UserID:    user.ID,
			Title:     "Registration confirmed",
			Message:   "You are registered for " + event.Title + ".",
			Category:  "registration",
			DedupeKey: key,
		}, key + ":notification"},
	}
	if user.Phone != "" {
		toSend = append(toSend, outbound{jobs.RegistrationConfirmationSMS{UserID: user.ID, EventID: event.ID}, key + ":sms"})
	}

	for _, m := range toSend {
		if _, err := jobs.Enqueue(ctx, s.reg, m.job, queue.WithJobID(m.id)); err != nil {
			s.logger.Warn("failed to enqueue registration confirmation",
				zap.String("registration_id", r.ID),
				zap.String("job_id", m.id),
				zap.Error(err))
		}
	}
}
