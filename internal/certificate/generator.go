// Package certificate issues attendance certificates: a PDF carrying a
// signed verification QR code, stored as a file and recorded once per
// event and attendee.
package certificate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/eventdesk/internal/domain"
	"github.com/notifyhub/eventdesk/internal/qr"
	"github.com/notifyhub/eventdesk/internal/repository"
)

const qrSize = 256

// Data is everything a Renderer draws.
type Data struct {
	Number     string
	UserName   string
	EventTitle string
	Venue      string
	EventDate  time.Time
	IssuedAt   time.Time
	QRCode     []byte // PNG
}

type Renderer interface {
	Render(d Data) ([]byte, error)
}

// FileStore persists rendered certificates and returns their public URL.
type FileStore interface {
	Save(ctx context.Context, name string, content []byte) (string, error)
	Delete(ctx context.Context, name string) error
}

type Generator struct {
	repos    *repository.Store
	codec    *qr.Codec
	renderer Renderer
	files    FileStore
	now      func() time.Time
	logger   *zap.Logger
}

type Option func(*Generator)

func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func NewGenerator(repos *repository.Store, codec *qr.Codec, renderer Renderer, files FileStore, logger *zap.Logger, opts ...Option) *Generator {
	g := &Generator{
		repos:    repos,
		codec:    codec,
		renderer: renderer,
		files:    files,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FileName is the stored name of a certificate's PDF.
func FileName(number string) string { return number + ".pdf" }

// Generate issues the certificate for one attendee. An existing certificate
// is returned unchanged with created=false, so redelivered jobs are harmless.
// Only attendees whose registration is marked attended qualify.
func (g *Generator) Generate(ctx context.Context, eventID, userID string) (*domain.Certificate, bool, error) {
	existing, err := g.repos.Certificates.GetByEventAndUser(ctx, eventID, userID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, fmt.Errorf("check existing certificate: %w", err)
	}

	reg, err := g.repos.Registrations.Get(ctx, eventID, userID)
	if err != nil {
		return nil, false, fmt.Errorf("load registration: %w", err)
	}
	if reg.Status != domain.RegistrationAttended {
		return nil, false, domain.ErrNotAttended
	}
	user, err := g.repos.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("load user: %w", err)
	}
	event, err := g.repos.Events.GetByID(ctx, eventID)
	if err != nil {
		return nil, false, fmt.Errorf("load event: %w", err)
	}

	id := uuid.NewString()
	issuedAt := g.now()
	number := domain.CertificateNumber(issuedAt, id)

	signed, err := g.codec.BuildCertificateQR(number, user.Name, event.Title, issuedAt)
	if err != nil {
		return nil, false, fmt.Errorf("build certificate qr: %w", err)
	}
	png, err := qr.EncodePNG(signed, qrSize)
	if err != nil {
		return nil, false, err
	}
	pdf, err := g.renderer.Render(Data{
		Number:     number,
		UserName:   user.Name,
		EventTitle: event.Title,
		Venue:      event.Venue,
		EventDate:  event.StartTime,
		IssuedAt:   issuedAt,
		QRCode:     png,
	})
	if err != nil {
		return nil, false, fmt.Errorf("render certificate: %w", err)
	}
	url, err := g.files.Save(ctx, FileName(number), pdf)
	if err != nil {
		return nil, false, fmt.Errorf("store certificate: %w", err)
	}

	cert := &domain.Certificate{
		ID:       id,
		Number:   number,
		EventID:  eventID,
		UserID:   userID,
		FileURL:  url,
		IssuedAt: issuedAt,
	}
	if err := g.repos.Certificates.Create(ctx, cert); err != nil {
		g.discard(ctx, number)
		if errors.Is(err, domain.ErrConflict) {
			// Lost a race with another worker; theirs is the certificate.
			winner, getErr := g.repos.Certificates.GetByEventAndUser(ctx, eventID, userID)
			if getErr != nil {
				return nil, false, fmt.Errorf("load concurrent certificate: %w", getErr)
			}
			return winner, false, nil
		}
		return nil, false, fmt.Errorf("record certificate: %w", err)
	}

	g.logger.Info("certificate issued",
		zap.String("certificate_id", id),
		zap.String("number", number),
		zap.String("event_id", eventID),
		zap.String("user_id", userID),
	)
	return cert, true, nil
}

// Regenerate replaces the attendee's certificate, file and record, with a
// new one. A certificate issued at or after requestedAt already answers the
// request and is returned unchanged with created false, so a redelivered
// job does not replace it a second time. A zero requestedAt always replaces.
func (g *Generator) Regenerate(ctx context.Context, eventID, userID string, requestedAt time.Time) (*domain.Certificate, bool, error) {
	existing, err := g.repos.Certificates.GetByEventAndUser(ctx, eventID, userID)
	switch {
	case err == nil:
		if !requestedAt.IsZero() && !existing.IssuedAt.Before(requestedAt) {
			g.logger.Info("certificate already regenerated",
				zap.String("certificate_id", existing.ID),
				zap.Time("requested_at", requestedAt),
			)
			return existing, false, nil
		}
		if err := g.files.Delete(ctx, FileName(existing.Number)); err != nil {
			return nil, false, fmt.Errorf("delete certificate file: %w", err)
		}
		if err := g.repos.Certificates.Delete(ctx, existing.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, false, fmt.Errorf("delete certificate record: %w", err)
		}
	case !errors.Is(err, domain.ErrNotFound):
		return nil, false, fmt.Errorf("check existing certificate: %w", err)
	}

	return g.Generate(ctx, eventID, userID)
}

func (g *Generator) discard(ctx context.Context, number string) {
	if err := g.files.Delete(ctx, FileName(number)); err != nil {
		g.logger.Warn("failed to remove orphaned certificate file", zap.String("number", number), zap.Error(err))
	}
}
