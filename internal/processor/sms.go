package processor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/notifyhub/eventdesk/internal/domain"
	"github.com/notifyhub/eventdesk/internal/jobs"
	"github.com/notifyhub/eventdesk/internal/provider"
	"github.com/notifyhub/eventdesk/internal/queue"
	"github.com/notifyhub/eventdesk/internal/ratelimiter"
	"github.com/notifyhub/eventdesk/internal/repository"
	"github.com/notifyhub/eventdesk/internal/templates"
)

type SMS struct {
	repos     *repository.Store
	templates *templates.Renderer
	sender    provider.SMSSender
	limiter   *ratelimiter.ChannelLimiters
	cfg       Config
	logger    *zap.Logger
}

func NewSMS(repos *repository.Store, tmpl *templates.Renderer, sender provider.SMSSender, limiter *ratelimiter.ChannelLimiters, cfg Config, logger *zap.Logger) *SMS {
	return &SMS{repos: repos, templates: tmpl, sender: sender, limiter: limiter, cfg: cfg.withDefaults(), logger: logger}
}

type smsSkipped struct {
	Skipped string `json:"skipped"`
}

func (p *SMS) Handle(ctx context.Context, j *queue.Job) (any, error) {
	job, err := jobs.DecodeSMS(j)
	if err != nil {
		return nil, err
	}

	var phone, body string
	switch v := job.(type) {
	case *jobs.RegistrationConfirmationSMS:
		phone, body, err = p.render(ctx, "registration_confirmation", v.UserID, v.EventID, 0)
	case *jobs.EventReminderSMS:
		phone, body, err = p.render(ctx, "event_reminder", v.UserID, v.EventID, v.HoursBefore)
	case *jobs.CustomSMS:
		phone, body = v.Phone, v.Message
	default:
		return nil, queue.Permanent(fmt.Errorf("unhandled sms job %T", job))
	}
	if err != nil {
		return nil, classify(err)
	}
	if phone == "" {
		p.logger.Debug("sms skipped, no phone number", zap.String("job_id", j.ID))
		return smsSkipped{Skipped: "no phone number"}, nil
	}

	if err := p.limiter.Wait(ctx, domain.ChannelSMS); err != nil {
		return nil, err
	}
	res, err := p.sender.Send(ctx, phone, body)
	if err != nil {
		return nil, classify(fmt.Errorf("send %s sms: %w", job.Kind(), err))
	}
	return sendResult{MessageID: res.MessageID, To: phone}, nil
}

func (p *SMS) render(ctx context.Context, name, userID, eventID string, hours int) (string, string, error) {
	user, event, err := loadUserEvent(ctx, p.repos, userID, eventID)
	if err != nil {
		return "", "", err
	}
	d := p.cfg.templateData()
	fillEvent(&d, p.cfg, user, event)
	d.HoursBefore = hours
	body, err := p.templates.SMS(name, d)
	if err != nil {
		return "", "", queue.Permanent(err)
	}
	return user.Phone, body, nil
}
