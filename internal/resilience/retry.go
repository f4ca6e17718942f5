package resilience

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts (including the first
	// try). A value of 1 means no retries. Default: 3.
	MaxAttempts int

	// InitialBackoff is the base delay before the first retry. Default: 2s.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff for generic network failures. Default: 30s.
	MaxBackoff time.Duration

	// RateLimitMaxBackoff caps the backoff for rate-limited (429)
	// failures, which warrant a longer cool-off. Default: 60s.
	RateLimitMaxBackoff time.Duration

	// Sleep overrides the backoff sleep for testing. If nil, a
	// context-aware timer sleep is used.
	Sleep func(ctx context.Context, d time.Duration)
}

// DefaultRetryConfig returns the retry configuration used by all
// outbound call sites.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:         3,
		InitialBackoff:      2 * time.Second,
		MaxBackoff:          30 * time.Second,
		RateLimitMaxBackoff: 60 * time.Second,
	}
}

// Do executes fn under cfg, retrying transient failures with exponential
// backoff. Fatal errors propagate immediately. When the attempt budget
// is spent on transient failures, the last error is wrapped in an
// ExhaustedError carrying label. Context cancellation stops retries.
func Do[T any](ctx context.Context, cfg RetryConfig, label string, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = timerSleep
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}

		if !IsTransient(lastErr) {
			return zero, lastErr
		}

		if attempt >= cfg.MaxAttempts {
			break
		}

		delay := computeBackoff(attempt, cfg, lastErr)
		zap.L().Warn("retrying operation",
			zap.String("operation", label),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(lastErr),
		)
		sleep(ctx, delay)
	}

	return zero, &ExhaustedError{Label: label, Attempts: cfg.MaxAttempts, Err: lastErr}
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 2 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.RateLimitMaxBackoff <= 0 {
		cfg.RateLimitMaxBackoff = 60 * time.Second
	}
	return cfg
}

// computeBackoff returns min(base * 2^(attempt-1), cap), where the cap
// depends on whether the failure was a rate-limit rejection.
func computeBackoff(attempt int, cfg RetryConfig, err error) time.Duration {
	delay := float64(cfg.InitialBackoff) * math.Pow(2, float64(attempt-1))

	ceiling := float64(cfg.MaxBackoff)
	if IsRateLimited(err) {
		ceiling = float64(cfg.RateLimitMaxBackoff)
	}
	if delay > ceiling {
		delay = ceiling
	}
	return time.Duration(delay)
}

func timerSleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
