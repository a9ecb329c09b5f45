package repository

import (
	"context"
	"time"

	"github.com/notifyhub/eventdesk/internal/domain"
)

// The pgx implementations live in the pg_*.go files.
// Tests use the hand-written in-memory store (mock_store.go).

type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

type EventRepository interface {
	Create(ctx context.Context, e *domain.Event) error
	GetByID(ctx context.Context, id string) (*domain.Event, error)
	// ListStartingBetween returns events with from <= start_time < to.
	ListStartingBetween(ctx context.Context, from, to time.Time) ([]*domain.Event, error)
	// ListEndedBetween returns events with from <= end_time < to.
	ListEndedBetween(ctx context.Context, from, to time.Time) ([]*domain.Event, error)
}

type RegistrationRepository interface {
	Create(ctx context.Context, r *domain.Registration) error
	Get(ctx context.Context, eventID, userID string) (*domain.Registration, error)
	// ListByEvent returns the event's registrations; an empty status means all.
	ListByEvent(ctx context.Context, eventID string, status domain.RegistrationStatus) ([]*domain.Registration, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Registration, error)
	// MarkAttended flips a registered registration to attended. It reports
	// false when the registration was already attended.
	MarkAttended(ctx context.Context, eventID, userID string, at time.Time) (bool, error)
}

type CertificateRepository interface {
	// Create returns domain.ErrConflict when the event/user pair already has one.
	Create(ctx context.Context, c *domain.Certificate) error
	GetByEventAndUser(ctx context.Context, eventID, userID string) (*domain.Certificate, error)
	GetByNumber(ctx context.Context, number string) (*domain.Certificate, error)
	Delete(ctx context.Context, id string) error
	// List returns certificates filtered by event and/or user; empty filters match all.
	List(ctx context.Context, eventID, userID string) ([]*domain.Certificate, error)
}

// NotificationRepository persists in-app notifications.
type NotificationRepository interface {
	// Create returns domain.ErrConflict when DedupeKey is already used.
	Create(ctx context.Context, n *domain.Notification) error
	GetByDedupeKey(ctx context.Context, key string) (*domain.Notification, error)
	// ListPending returns the user's due, unexpired notifications, newest first.
	ListPending(ctx context.Context, userID string, now time.Time, limit int) ([]*domain.Notification, error)
	// MarkDelivered stamps up to limit pending, undelivered notifications.
	MarkDelivered(ctx context.Context, now time.Time, limit int) (int, error)
	MarkRead(ctx context.Context, id, userID string, at time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	DeleteReadBefore(ctx context.Context, before time.Time) (int, error)
}

type FeedbackRepository interface {
	Create(ctx context.Context, f *domain.Feedback) error
	ListByEvent(ctx context.Context, eventID string) ([]*domain.Feedback, error)
	Exists(ctx context.Context, eventID, userID string) (bool, error)
}

// AnalyticsRepository serves the read-only aggregate queries behind rollups.
type AnalyticsRepository interface {
	PeriodCounts(ctx context.Context, from, to time.Time) (domain.PeriodCounts, error)
}

// Store bundles every repository so wiring code passes one value around.
type Store struct {
	Users         UserRepository
	Events        EventRepository
	Registrations RegistrationRepository
	Certificates  CertificateRepository
	Notifications NotificationRepository
	Feedback      FeedbackRepository
	Analytics     AnalyticsRepository
}
