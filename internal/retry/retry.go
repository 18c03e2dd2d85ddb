// Package retry provides the shared exponential backoff primitive used by the
// controller client, the delivery channels, and the integration runner.
package retry

import (
	"context"
	"math"
	"time"
)

// Config contains backoff tunables.
type Config struct {
	Initial     time.Duration
	Multiplier  float64
	Max         time.Duration
	MaxAttempts int
}

// DefaultConfig matches the controller client's request discipline.
func DefaultConfig() Config {
	return Config{
		Initial:     time.Second,
		Multiplier:  2,
		Max:         60 * time.Second,
		MaxAttempts: 5,
	}
}

// NextDelay returns the backoff delay for the given zero-based attempt.
func (cfg Config) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := float64(cfg.Initial)
	if base <= 0 {
		base = float64(time.Second)
	}
	multiplier := cfg.Multiplier
	if multiplier <= 1 {
		multiplier = 2
	}
	delay := base * math.Pow(multiplier, float64(attempt))
	if cfg.Max > 0 && delay > float64(cfg.Max) {
		delay = float64(cfg.Max)
	}
	return time.Duration(delay)
}

// Retryable decides whether an error is worth another attempt.
type Retryable func(err error) bool

// Do runs op up to MaxAttempts times, sleeping the backoff delay between
// attempts. It stops early when op succeeds, when the retryable predicate
// rejects the error, or when the context is done. The last error is returned.
func Do(ctx context.Context, cfg Config, retryable Retryable, op func(ctx context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultConfig().MaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(cfg.NextDelay(attempt)):
		}
	}
	return lastErr
}
