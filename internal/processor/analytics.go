package processor

import (
	"context"
	"fmt"

	"github.com/notifyhub/eventdesk/internal/analytics"
	"github.com/notifyhub/eventdesk/internal/jobs"
	"github.com/notifyhub/eventdesk/internal/queue"
)

// Analytics computes statistics; the job result is the report.
type Analytics struct {
	svc *analytics.Service
}

func NewAnalytics(svc *analytics.Service) *Analytics {
	return &Analytics{svc: svc}
}

func (p *Analytics) Handle(ctx context.Context, j *queue.Job) (any, error) {
	job, err := jobs.DecodeAnalytics(j)
	if err != nil {
		return nil, err
	}

	var out any
	switch v := job.(type) {
	case *jobs.EventStats:
		out, err = p.svc.EventStats(ctx, v.EventID)
	case *jobs.UserStats:
		out, err = p.svc.UserStats(ctx, v.UserID)
	case *jobs.CertificateStats:
		out, err = p.svc.CertificateStats(ctx, v.EventID)
	case *jobs.FeedbackStats:
		out, err = p.svc.FeedbackStats(ctx, v.EventID)
	case *jobs.Rollup:
		out, err = p.svc.Rollup(ctx, v.Period)
	default:
		return nil, queue.Permanent(fmt.Errorf("unhandled analytics job %T", job))
	}
	if err != nil {
		return nil, classify(fmt.Errorf("%s: %w", job.Kind(), err))
	}
	return out, nil
}
