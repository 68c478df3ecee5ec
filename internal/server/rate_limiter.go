// Package server implements per-connection throttling that protects the hub
// from abuse.
package server

import (
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter allows burst messages per interval, refilling continuously.
type rateLimiter struct {
	limiter *rate.Limiter
}

func newRateLimiter(burst int, interval time.Duration) *rateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	perSecond := rate.Limit(float64(burst) / interval.Seconds())
	return &rateLimiter{limiter: rate.NewLimiter(perSecond, burst)}
}

func (rl *rateLimiter) allow() bool {
	return rl.limiter.Allow()
}
