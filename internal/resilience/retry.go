// Package resilience retries registry API calls that fail transiently.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy controls how often and how patiently a call is retried.
type Policy struct {
	// Retries is the number of extra attempts after the first. 0 disables
	// retrying.
	Retries int

	// Backoff is the delay before the first retry; later delays grow by
	// Multiplier.
	Backoff time.Duration

	// MaxBackoff caps any single delay, including a server's Retry-After.
	MaxBackoff time.Duration

	// Multiplier scales the delay after each retry. Default: 2.
	Multiplier float64

	// Jitter randomizes each delay by up to ±Jitter of its value.
	Jitter float64

	// Retryable decides whether an error is worth another attempt.
	// Default: IsTransient.
	Retryable func(err error) bool

	// OnRetry runs before each sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy is one retry after 400ms, doubling, capped at 5s.
func DefaultPolicy() Policy {
	return Policy{
		Retries:    1,
		Backoff:    400 * time.Millisecond,
		MaxBackoff: 5 * time.Second,
		Multiplier: 2,
	}
}

func (p Policy) withDefaults() Policy {
	if p.Retries < 0 {
		p.Retries = 0
	}
	if p.Backoff <= 0 {
		p.Backoff = 400 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 5 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

// Delay returns the wait before retry number attempt (0-based), ignoring
// any server hint.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	d := float64(p.Backoff) * math.Pow(p.Multiplier, float64(attempt))
	if d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Do runs fn until it succeeds, returns a non-retryable error, runs out of
// retries or ctx is done. The last error is returned as-is.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	for attempt := 0; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		if ctx.Err() != nil || attempt >= p.Retries || !p.Retryable(err) {
			return zero, err
		}

		delay := p.Delay(attempt)
		if hint := RetryAfter(err); hint > delay {
			delay = min(hint, p.MaxBackoff)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}

// LogRetry returns an OnRetry callback that logs at warn level.
func LogRetry(service, operation string) func(int, time.Duration, error) {
	return func(attempt int, delay time.Duration, err error) {
		zap.L().Warn("resilience: retrying",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
}
