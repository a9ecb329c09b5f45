package processor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notifyhub/eventdesk/internal/certificate"
	"github.com/notifyhub/eventdesk/internal/domain"
	"github.com/notifyhub/eventdesk/internal/jobs"
	"github.com/notifyhub/eventdesk/internal/queue"
	"github.com/notifyhub/eventdesk/internal/repository"
)

// Certificate issues certificates and announces each new one by email and
// in-app notification.
type Certificate struct {
	repos  *repository.Store
	gen    *certificate.Generator
	reg    *queue.Registry
	cfg    Config
	logger *zap.Logger
}

func NewCertificate(repos *repository.Store, gen *certificate.Generator, reg *queue.Registry, cfg Config, logger *zap.Logger) *Certificate {
	return &Certificate{repos: repos, gen: gen, reg: reg, cfg: cfg.withDefaults(), logger: logger}
}

type issued struct {
	UserID        string `json:"user_id"`
	CertificateID string `json:"certificate_id"`
	Number        string `json:"number"`
	Created       bool   `json:"created"`
}

type bulkFailure struct {
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

// BulkResult lists per-attendee outcomes. One attendee failing never stops
// the others.
type BulkResult struct {
	EventID string        `json:"event_id"`
	Success []issued      `json:"success"`
	Failed  []bulkFailure `json:"failed"`
}

func (p *Certificate) Handle(ctx context.Context, j *queue.Job) (any, error) {
	job, err := jobs.DecodeCertificate(j)
	if err != nil {
		return nil, err
	}

	switch v := job.(type) {
	case *jobs.GenerateCertificate:
		res, err := p.issue(ctx, v.EventID, v.UserID)
		if err != nil {
			return nil, classify(err)
		}
		return res, nil

	case *jobs.GenerateBulkCertificates:
		return p.bulk(ctx, v.EventID)

	case *jobs.RegenerateCertificate:
		// The job's creation time tells a redelivery apart from a new request.
		cert, created, err := p.gen.Regenerate(ctx, v.EventID, v.UserID, j.CreatedAt)
		if err != nil {
			return nil, classify(err)
		}
		if err := p.announce(ctx, cert); err != nil {
			return nil, err
		}
		return issued{UserID: cert.UserID, CertificateID: cert.ID, Number: cert.Number, Created: created}, nil
	}
	return nil, queue.Permanent(fmt.Errorf("unhandled certificate job %T", job))
}

// issue generates the certificate and (re)announces it. Announcing an
// existing certificate is a no-op thanks to the deterministic job IDs, and
// covers a previous attempt that stored the certificate but crashed before
// enqueueing the announcements.
func (p *Certificate) issue(ctx context.Context, eventID, userID string) (issued, error) {
	cert, created, err := p.gen.Generate(ctx, eventID, userID)
	if err != nil {
		return issued{}, err
	}
	if err := p.announce(ctx, cert); err != nil {
		return issued{}, err
	}
	return issued{UserID: userID, CertificateID: cert.ID, Number: cert.Number, Created: created}, nil
}

func (p *Certificate) announce(ctx context.Context, cert *domain.Certificate) error {
	if _, err := jobs.Enqueue(ctx, p.reg, jobs.CertificateReadyEmail{
		UserID:        cert.UserID,
		EventID:       cert.EventID,
		CertificateID: cert.ID,
	}, queue.WithJobID("certificate-ready-email:"+cert.ID)); err != nil {
		return fmt.Errorf("enqueue certificate email: %w", err)
	}

	key := "certificate-ready-notification:" + cert.ID
	if _, err := jobs.Enqueue(ctx, p.reg, jobs.CreateNotification{
		UserID:    cert.UserID,
		Title:     "Your certificate is ready",
		Message:   fmt.Sprintf("Certificate %s is ready to download.", cert.Number),
		Category:  "certificate",
		Link:      cert.FileURL,
		Priority:  domain.PriorityNormal,
		DedupeKey: key,
	}, queue.WithJobID(key)); err != nil {
		return fmt.Errorf("enqueue certificate notification: %w", err)
	}
	return nil
}

func (p *Certificate) bulk(ctx context.Context, eventID string) (*BulkResult, error) {
	if _, err := p.repos.Events.GetByID(ctx, eventID); err != nil {
		return nil, classify(fmt.Errorf("load event %s: %w", eventID, err))
	}
	attendees, err := p.repos.Registrations.ListByEvent(ctx, eventID, domain.RegistrationAttended)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}

	res := &BulkResult{EventID: eventID, Success: []issued{}, Failed: []bulkFailure{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.BulkParallelism)
	for _, reg := range attendees {
		userID := reg.UserID
		g.Go(func() error {
			out, err := p.issue(gctx, eventID, userID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed = append(res.Failed, bulkFailure{UserID: userID, Error: err.Error()})
				return nil
			}
			res.Success = append(res.Success, out)
			return nil
		})
	}
	_ = g.Wait()

	// Out of time: let the retry pick up where this attempt stopped.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(res.Success, func(i, k int) bool { return res.Success[i].UserID < res.Success[k].UserID })
	sort.Slice(res.Failed, func(i, k int) bool { return res.Failed[i].UserID < res.Failed[k].UserID })
	p.logger.Info("bulk certificates issued",
		zap.String("event_id", eventID),
		zap.Int("success", len(res.Success)),
		zap.Int("failed", len(res.Failed)),
	)
	return res, nil
}
