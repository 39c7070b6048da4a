package util

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces outbound requests. It holds up to one second's worth of
// requests as burst. A nil *RateLimiter never blocks.
type RateLimiter struct {
	lim *rate.Limiter
}

// NewRateLimiter returns a limiter allowing perMinute requests per minute.
// perMinute <= 0 disables limiting and returns nil.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	burst := perMinute / 60
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)}
}

// Wait blocks until the caller may proceed or ctx is done. It fails early
// when ctx's deadline falls before the reserved slot.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return ctx.Err()
	}
	return rl.lim.Wait(ctx)
}

// reserve takes one token at now and returns how long the caller must wait.
func (rl *RateLimiter) reserve(now time.Time) time.Duration {
	return rl.lim.ReserveN(now, 1).DelayFrom(now)
}
