package util

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// MinuteBudget caps requests to a fixed budget per minute with a burst
// allowance, on top of whatever interval spacing the caller applies. The
// catalog API counts requests per rolling minute, so the refill rate is the
// budget spread evenly across sixty seconds.
type MinuteBudget struct {
	limiter *rate.Limiter
}

// NewMinuteBudget creates a budget of perMinute requests with the given burst
func NewMinuteBudget(perMinute, burst int) *MinuteBudget {
	if perMinute <= 0 {
		perMinute = 20
	}
	if burst <= 0 {
		burst = 5
	}
	return &MinuteBudget{
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst),
	}
}

// Wait blocks until the budget permits another request or ctx is cancelled
func (b *MinuteBudget) Wait(ctx context.Context) error {
	return b.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed immediately
func (b *MinuteBudget) Allow() bool {
	return b.limiter.Allow()
}
