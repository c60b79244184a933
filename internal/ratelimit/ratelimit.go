// Package ratelimit throttles calls to the optimizer backend using a
// token-bucket limiter sized from the promptwizard.rateLimiting
// configuration (maxRequests per windowMs).
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps a token bucket refilled at maxRequests per window.
type Limiter struct {
	limiter    *rate.Limiter
	skipCached bool
}

// New builds a Limiter allowing maxRequests per window. skipCached
// indicates cache hits bypass the limiter entirely. A non-positive
// maxRequests or window disables limiting.
func New(maxRequests int, window time.Duration, skipCached bool) *Limiter {
	if maxRequests <= 0 || window <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1), skipCached: skipCached}
	}
	perSecond := float64(maxRequests) / window.Seconds()
	return &Limiter{
		limiter:    rate.NewLimiter(rate.Limit(perSecond), maxRequests),
		skipCached: skipCached,
	}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed right now without waiting.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// SkipCached reports whether cache hits bypass the limiter.
func (l *Limiter) SkipCached() bool {
	return l.skipCached
}
