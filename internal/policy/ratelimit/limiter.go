// Package ratelimit implements the crawl engine's politeness throttle: a
// single token bucket shared by every worker, so consecutive outbound
// requests are spaced by at least the configured delay engine-wide.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/country-directory/internal/metrics"
)

// Limiter enforces a minimum delay between requests.
type Limiter struct {
	limiter *rate.Limiter
}

// Config holds rate limiter configuration.
type Config struct {
	MinDelay time.Duration
}

// New creates a new Limiter. A zero delay disables throttling.
func New(cfg Config) *Limiter {
	limit := rate.Inf
	if cfg.MinDelay > 0 {
		limit = rate.Every(cfg.MinDelay)
	}
	return &Limiter{
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Wait blocks until the next request may be issued, respecting the context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// immediate grants are not delays
	if duration := time.Since(start); duration > time.Millisecond {
		metrics.ObservePolitenessDelay(hostOf(rawURL), duration)
	}
	return nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
