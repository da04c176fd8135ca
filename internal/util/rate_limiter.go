package util

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrRateLimited is returned when the rate limit is exceeded
	ErrRateLimited = errors.New("rate limited")
	// DefaultInterval is the default minimum time between requests
	DefaultInterval = 100 * time.Millisecond
	// DefaultBurst is the default burst size
	DefaultBurst = 5
	// DefaultBackoffMultiplier is the interval escalation factor applied
	// when the upstream reports rate limiting twice in short succession
	DefaultBackoffMultiplier = 2.0
	// DefaultMaxInterval caps the escalated inter-request interval
	DefaultMaxInterval = 60 * time.Second
)

// RateLimiter enforces a minimum interval between requests with a small
// token bucket for bursts. The interval escalates when the upstream reports
// rate limiting and decays back toward the baseline after a quiet minute.
type RateLimiter struct {
	mu           sync.Mutex
	last         time.Time
	interval     time.Duration
	minInterval  time.Duration
	maxInterval  time.Duration
	multiplier   float64
	tokens       int
	maxTokens    int
	lastRateDrop time.Time
}

// NewRateLimiter creates a rate limiter with the given minimum interval
// between requests and burst size, using the default escalation behaviour.
func NewRateLimiter(interval time.Duration, burst int) *RateLimiter {
	return NewBackoffRateLimiter(interval, burst, 0, 0)
}

// NewBackoffRateLimiter additionally sets the 429 escalation multiplier
// (>= 1) and the cap on the escalated interval. Zero values take the
// defaults.
func NewBackoffRateLimiter(interval time.Duration, burst int, multiplier float64, maxInterval time.Duration) *RateLimiter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	if multiplier < 1 {
		multiplier = DefaultBackoffMultiplier
	}
	if maxInterval <= 0 {
		maxInterval = DefaultMaxInterval
	}

	return &RateLimiter{
		last:         time.Now(),
		interval:     interval,
		minInterval:  interval,
		maxInterval:  maxInterval,
		multiplier:   multiplier,
		tokens:       burst,
		maxTokens:    burst,
		lastRateDrop: time.Now(),
	}
}

// softMultiplier is the gentler factor used for an isolated 429 and for
// decaying an escalated interval back toward the baseline. It sits halfway
// between no escalation and the full multiplier.
func (r *RateLimiter) softMultiplier() float64 {
	return 1 + (r.multiplier-1)/2
}

// Wait blocks until a token is available or the context is cancelled
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()

	now := time.Now()

	// Replenish tokens for time passed, and decay an escalated interval
	// back toward the baseline once the upstream has been quiet a minute.
	if r.interval > r.minInterval && now.Sub(r.lastRateDrop) > time.Minute {
		r.interval = time.Duration(float64(r.interval) / r.softMultiplier())
		if r.interval < r.minInterval {
			r.interval = r.minInterval
		}
	}

	delta := now.Sub(r.last)
	newTokens := int(float64(delta) / float64(r.interval))
	if newTokens > 0 {
		r.tokens += newTokens
		if r.tokens > r.maxTokens {
			r.tokens = r.maxTokens
		}
		r.last = now
	}

	if r.tokens > 0 {
		r.tokens--
		r.mu.Unlock()
		return nil
	}

	// Jitter up to 20% of the interval to avoid thundering herds
	waitTime := r.interval + time.Duration(rand.Float64()*0.2*float64(r.interval))
	next := r.last.Add(waitTime)

	r.mu.Unlock()

	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		r.mu.Lock()
		r.last = next
		r.tokens = 0
		r.mu.Unlock()
		return nil
	}
}

// OnRateLimit escalates the interval after an upstream 429 and returns the
// delay to honour before the next attempt. A recent prior 429 escalates more
// aggressively.
func (r *RateLimiter) OnRateLimit(retryAfter time.Duration) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if now.Sub(r.lastRateDrop) < 5*time.Minute {
		r.interval = time.Duration(r.multiplier * float64(r.interval))
	} else {
		r.interval = time.Duration(r.softMultiplier() * float64(r.interval))
	}
	if r.interval > r.maxInterval {
		r.interval = r.maxInterval
	}

	r.lastRateDrop = now

	log.Warn().
		Dur("new_interval", r.interval).
		Dur("retry_after", retryAfter).
		Msg("Rate limited, increasing delay between requests")

	if retryAfter > 0 && retryAfter > r.interval {
		return retryAfter
	}
	return r.interval
}

// ResetInterval resets the limiter to its baseline interval
func (r *RateLimiter) ResetInterval() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.interval = r.minInterval
	r.lastRateDrop = time.Now()
}

// CurrentInterval returns the current inter-request interval
func (r *RateLimiter) CurrentInterval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval
}
