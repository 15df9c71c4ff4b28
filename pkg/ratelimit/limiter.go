// Package ratelimit gates outbound provider calls. A single Limiter is
// shared by the search and LLM clients of a session (optionally
// process-wide), so rate-limit pressure observed by one worker slows
// all of them.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default limiter parameters.
const (
	DefaultRPM            = 5
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 60 * time.Second
	DefaultMultiplier     = 2.0
)

// Config holds limiter tuning parameters. Zero values fall back to the
// defaults above.
type Config struct {
	RPM            int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

func (c Config) withDefaults() Config {
	if c.RPM <= 0 {
		c.RPM = DefaultRPM
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.Multiplier <= 1 {
		c.Multiplier = DefaultMultiplier
	}
	return c
}

// Limiter enforces at most RPM acquisitions per rolling minute and an
// exponential backoff raised by provider-signalled rate-limit errors.
// Waiters are served in FIFO order (rate.Limiter reservation order).
type Limiter struct {
	cfg  Config
	gate *rate.Limiter

	mu          sync.Mutex
	current     time.Duration // next backoff wait if the provider gives no Retry-After
	waitUntil   time.Time     // all acquisitions are held until this instant
	consecutive int
}

// New creates a Limiter allowing cfg.RPM requests per rolling minute.
func New(cfg Config) *Limiter {
	cfg = cfg.withDefaults()
	return &Limiter{
		cfg:     cfg,
		gate:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RPM)), cfg.RPM),
		current: cfg.InitialBackoff,
	}
}

// Acquire blocks until a request slot is available or ctx is done.
// The only possible error is the context's.
func (l *Limiter) Acquire(ctx context.Context) error {
	// Honor any provider-signalled hold first. Re-check after sleeping:
	// another worker may have pushed the hold further out.
	for {
		l.mu.Lock()
		wait := time.Until(l.waitUntil)
		l.mu.Unlock()
		if wait <= 0 {
			break
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return l.gate.Wait(ctx)
}

// SignalRateLimit records a provider rate-limit error. The hold lasts
// retryAfter when the provider supplied one, else the current backoff,
// which doubles on each consecutive signal up to the cap. Concurrent
// signals collapse into a single shared hold.
func (l *Limiter) SignalRateLimit(retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	wait := retryAfter
	if wait <= 0 {
		wait = l.current
	}
	l.consecutive++
	next := time.Duration(float64(l.current) * l.cfg.Multiplier)
	if next > l.cfg.MaxBackoff {
		next = l.cfg.MaxBackoff
	}
	l.current = next

	until := time.Now().Add(wait)
	if until.After(l.waitUntil) {
		l.waitUntil = until
		slog.Debug("Rate limit signalled, holding acquisitions",
			"wait", wait, "consecutive", l.consecutive)
	}
}

// Reset clears the backoff after a clean success. Called by clients once
// a request completes without provider backpressure.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = l.cfg.InitialBackoff
	l.consecutive = 0
}

// Backoff returns the wait the next unhinted rate-limit signal would
// impose. Exposed for observability and tests.
func (l *Limiter) Backoff() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}
