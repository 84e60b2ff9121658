// Package ratelimit spaces out requests to the same host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultDelay is the politeness gap between requests to one host.
const DefaultDelay = 2 * time.Second

// Config holds rate limiter configuration.
type Config struct {
	// Delay is the minimum spacing between requests to the same host.
	// Zero or negative disables limiting.
	Delay time.Duration
	// Observer, when set, is told how long each wait blocked.
	Observer func(host string, waited time.Duration)
	Logger   *zap.Logger
}

// Limiter keeps one token bucket per host.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	observer func(string, time.Duration)
	logger   *zap.Logger
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		observer: cfg.Observer,
		logger:   logger,
	}
}

// Wait blocks until a request to rawURL's host may be sent.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	limiter := l.forHost(host)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	waited := time.Since(start)
	if waited > time.Millisecond {
		l.logger.Debug("politeness delay", zap.String("host", host), zap.Duration("waited", waited))
		if l.observer != nil {
			l.observer(host, waited)
		}
	}
	return nil
}

func (l *Limiter) forHost(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.limit, 1)
		l.limiters[host] = limiter
	}
	return limiter
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
