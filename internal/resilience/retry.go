// Package resilience retries and guards calls to external vendors (AI, OCR,
// scraping).
package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryConfig controls exponential backoff with jitter.
type RetryConfig struct {
	// MaxAttempts counts the first try. 1 disables retries.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// JitterFraction randomizes each delay by ±fraction.
	JitterFraction float64

	// ShouldRetry overrides IsTransient when set.
	ShouldRetry func(err error) bool
	// OnRetry runs before each sleep.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig returns the settings used for vendor calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// FromSettings builds a RetryConfig from config-file values. Zero values
// keep the defaults.
func FromSettings(maxAttempts, initialBackoffMs, maxBackoffMs int) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	return cfg
}

func (cfg RetryConfig) policy(ctx context.Context) backoff.BackOffContext {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	exp := backoff.NewExponentialBackOff()
	if cfg.InitialBackoff > 0 {
		exp.InitialInterval = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		exp.MaxInterval = cfg.MaxBackoff
	}
	if cfg.Multiplier > 0 {
		exp.Multiplier = cfg.Multiplier
	}
	exp.RandomizationFactor = max(cfg.JitterFraction, 0)
	// Attempts bound the loop, not wall time.
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(cfg.MaxAttempts-1)), ctx)
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx is done. The last error from fn is returned.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions that return a value.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var lastErr error
	attempt := 0
	op := func() (T, error) {
		attempt++
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if ctx.Err() != nil || !shouldRetry(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, _ time.Duration) {
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}
	}

	v, err := backoff.RetryNotifyWithData(op, cfg.policy(ctx), notify)
	if err != nil && lastErr != nil {
		// Cancellation surfaces as ctx.Err(); callers want the vendor error.
		return v, lastErr
	}
	return v, err
}

// RetryLogger returns an OnRetry callback that logs at Warn.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("resilience: retrying",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
