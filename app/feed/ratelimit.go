package feed

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter gates outbound requests to feed origins.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// IntervalLimiter allows one request per interval. The first call passes
// immediately.
type IntervalLimiter struct {
	limiter *rate.Limiter
}

func NewIntervalLimiter(interval time.Duration) RateLimiter {
	if interval <= 0 {
		return NoDelay{}
	}
	return &IntervalLimiter{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

func (l *IntervalLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// NoDelay never blocks; it only reports a cancelled context.
type NoDelay struct{}

func (NoDelay) Wait(ctx context.Context) error {
	return ctx.Err()
}
