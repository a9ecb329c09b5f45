package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/notifyhub/eventdesk/internal/domain"
)

// ChannelLimiters holds one token bucket limiter per external delivery
// channel. Burst equals the rate so no capacity is saved up beyond the
// configured per-second maximum.
type ChannelLimiters struct {
	limiters map[domain.Channel]*rate.Limiter
}

// New creates a ChannelLimiters with ratePerSec tokens per second for the
// email and sms channels. A non-positive rate disables limiting.
func New(ratePerSec int) *ChannelLimiters {
	if ratePerSec <= 0 {
		return &ChannelLimiters{limiters: map[domain.Channel]*rate.Limiter{}}
	}
	r := rate.Limit(ratePerSec)
	return &ChannelLimiters{
		limiters: map[domain.Channel]*rate.Limiter{
			domain.ChannelEmail: rate.NewLimiter(r, ratePerSec),
			domain.ChannelSMS:   rate.NewLimiter(r, ratePerSec),
		},
	}
}

// Wait blocks until the channel's limiter grants a token. Channels without
// a limiter pass straight through. It fails only if ctx ends while waiting.
func (cl *ChannelLimiters) Wait(ctx context.Context, ch domain.Channel) error {
	l, ok := cl.limiters[ch]
	if !ok {
		return nil
	}
	return l.Wait(ctx)
}
