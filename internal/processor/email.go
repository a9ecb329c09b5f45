package processor

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/notifyhub/eventdesk/internal/domain"
	"github.com/notifyhub/eventdesk/internal/jobs"
	"github.com/notifyhub/eventdesk/internal/provider"
	"github.com/notifyhub/eventdesk/internal/queue"
	"github.com/notifyhub/eventdesk/internal/ratelimiter"
	"github.com/notifyhub/eventdesk/internal/repository"
	"github.com/notifyhub/eventdesk/internal/templates"
)

// Email renders and sends the email queue's jobs.
type Email struct {
	repos     *repository.Store
	templates *templates.Renderer
	mailer    provider.Mailer
	limiter   *ratelimiter.ChannelLimiters
	cfg       Config
	logger    *zap.Logger
}

func NewEmail(repos *repository.Store, tmpl *templates.Renderer, mailer provider.Mailer, limiter *ratelimiter.ChannelLimiters, cfg Config, logger *zap.Logger) *Email {
	return &Email{repos: repos, templates: tmpl, mailer: mailer, limiter: limiter, cfg: cfg.withDefaults(), logger: logger}
}

type sendResult struct {
	MessageID string `json:"message_id"`
	To        string `json:"to"`
}

func (p *Email) Handle(ctx context.Context, j *queue.Job) (any, error) {
	job, err := jobs.DecodeEmail(j)
	if err != nil {
		return nil, err
	}
	msg, err := p.compose(ctx, job)
	if err != nil {
		return nil, classify(err)
	}

	// Block here until the channel's rate limiter grants a token.
	if err := p.limiter.Wait(ctx, domain.ChannelEmail); err != nil {
		return nil, err
	}
	res, err := p.mailer.Send(ctx, msg)
	if err != nil {
		return nil, classify(fmt.Errorf("send %s email: %w", job.Kind(), err))
	}
	return sendResult{MessageID: res.MessageID, To: msg.To}, nil
}

func (p *Email) compose(ctx context.Context, job jobs.EmailJob) (provider.Message, error) {
	d := p.cfg.templateData()
	var to, name string

	switch v := job.(type) {
	case *jobs.WelcomeEmail:
		user, err := p.repos.Users.GetByID(ctx, v.UserID)
		if err != nil {
			return provider.Message{}, fmt.Errorf("load user %s: %w", v.UserID, err)
		}
		to, name, d.UserName = user.Email, "welcome", user.Name

	case *jobs.RegistrationConfirmationEmail:
		user, event, err := loadUserEvent(ctx, p.repos, v.UserID, v.EventID)
		if err != nil {
			return provider.Message{}, err
		}
		to, name = user.Email, "registration_confirmation"
		fillEvent(&d, p.cfg, user, event)

	case *jobs.EventReminderEmail:
		user, event, err := loadUserEvent(ctx, p.repos, v.UserID, v.EventID)
		if err != nil {
			return provider.Message{}, err
		}
		to, name = user.Email, "event_reminder"
		fillEvent(&d, p.cfg, user, event)
		d.HoursBefore = v.HoursBefore

	case *jobs.CertificateReadyEmail:
		user, event, err := loadUserEvent(ctx, p.repos, v.UserID, v.EventID)
		if err != nil {
			return provider.Message{}, err
		}
		cert, err := p.repos.Certificates.GetByEventAndUser(ctx, v.EventID, v.UserID)
		if err != nil {
			return provider.Message{}, fmt.Errorf("load certificate: %w", err)
		}
		to, name = user.Email, "certificate_ready"
		fillEvent(&d, p.cfg, user, event)
		d.CertificateNumber, d.CertificateURL = cert.Number, cert.FileURL

	case *jobs.PasswordResetEmail:
		user, err := p.repos.Users.GetByID(ctx, v.UserID)
		if err != nil {
			return provider.Message{}, fmt.Errorf("load user %s: %w", v.UserID, err)
		}
		to, name, d.UserName = user.Email, "password_reset", user.Name
		d.ResetURL = p.cfg.BaseURL + "/reset-password?token=" + url.QueryEscape(v.ResetToken)

	case *jobs.FeedbackRequestEmail:
		user, event, err := loadUserEvent(ctx, p.repos, v.UserID, v.EventID)
		if err != nil {
			return provider.Message{}, err
		}
		to, name = user.Email, "feedback_request"
		fillEvent(&d, p.cfg, user, event)

	case *jobs.CustomEmail:
		to, name = v.To, "custom"
		d.Subject = v.Subject
		d.Paragraphs = strings.Split(strings.TrimSpace(v.Body), "\n\n")
		rendered, err := p.templates.Email(name, d)
		if err != nil {
			return provider.Message{}, queue.Permanent(err)
		}
		return provider.Message{To: to, Subject: rendered.Subject, HTML: rendered.HTML, Text: v.Body}, nil

	default:
		return provider.Message{}, queue.Permanent(fmt.Errorf("unhandled email job %T", job))
	}

	rendered, err := p.templates.Email(name, d)
	if err != nil {
		return provider.Message{}, queue.Permanent(err)
	}
	return provider.Message{To: to, Subject: rendered.Subject, HTML: rendered.HTML}, nil
}

func loadUserEvent(ctx context.Context, repos *repository.Store, userID, eventID string) (*domain.User, *domain.Event, error) {
	user, err := repos.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	event, err := repos.Events.GetByID(ctx, eventID)
	if err != nil {
		return nil, nil, fmt.Errorf("load event %s: %w", eventID, err)
	}
	return user, event, nil
}

func fillEvent(d *templates.Data, cfg Config, user *domain.User, event *domain.Event) {
	d.UserName = user.Name
	d.EventTitle = event.Title
	d.EventURL = cfg.eventURL(event.ID)
	d.Venue = event.Venue
	d.EventStart = event.StartTime
}
