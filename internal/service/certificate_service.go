package service

import (
	"context"

	"github.com/notifyhub/eventdesk/internal/domain"
	"github.com/notifyhub/eventdesk/internal/jobs"
	"github.com/notifyhub/eventdesk/internal/queue"
	"github.com/notifyhub/eventdesk/internal/repository"
)

// CertificateService enqueues certificate work and serves issued ones.
type CertificateService struct {
	repos *repository.Store
	reg   *queue.Registry
}

func NewCertificateService(repos *repository.Store, reg *queue.Registry) *CertificateService {
	return &CertificateService{repos: repos, reg: reg}
}

// GenerateForEvent issues certificates to every attendee of the event in
// one long-running job.
func (s *CertificateService) GenerateForEvent(ctx context.Context, eventID string) (queue.Handle, error) {
	if _, err := s.repos.Events.GetByID(ctx, eventID); err != nil {
		return queue.Handle{}, err
	}
	return jobs.Enqueue(ctx, s.reg, jobs.GenerateBulkCertificates{EventID: eventID},
		queue.WithTimeout(jobs.BulkCertificateTimeout))
}

// GenerateForUser rejects non-attendees up front instead of letting the
// job fail.
func (s *CertificateService) GenerateForUser(ctx context.Context, eventID, userID string) (queue.Handle, error) {
	if err := s.requireAttended(ctx, eventID, userID); err != nil {
		return queue.Handle{}, err
	}
	return jobs.Enqueue(ctx, s.reg, jobs.GenerateCertificate{EventID: eventID, UserID: userID})
}

func (s *CertificateService) Regenerate(ctx context.Context, eventID, userID string) (queue.Handle, error) {
	if err := s.requireAttended(ctx, eventID, userID); err != nil {
		return queue.Handle{}, err
	}
	return jobs.Enqueue(ctx, s.reg, jobs.RegenerateCertificate{EventID: eventID, UserID: userID})
}

func (s *CertificateService) List(ctx context.Context, eventID, userID string) ([]*domain.Certificate, error) {
	return s.repos.Certificates.List(ctx, eventID, userID)
}

// Lookup finds a certificate by its printed number.
func (s *CertificateService) Lookup(ctx context.Context, number string) (*domain.Certificate, error) {
	return s.repos.Certificates.GetByNumber(ctx, number)
}

func (s *CertificateService) requireAttended(ctx context.Context, eventID, userID string) error {
	reg, err := s.repos.Registrations.Get(ctx, eventID, userID)
	if err != nil {
		return err
	}
	if reg.Status != domain.RegistrationAttended {
		return domain.ErrNotAttended
	}
	return nil
}
