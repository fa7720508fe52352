package reliability

import (
	"context"
	"math"
	"time"
)

// ComputeBackoff is full-jitter exponential backoff:
// min(max, base * 2^(attempt-1)) * jitter, with jitter clamped to [0, 1].
func ComputeBackoff(attempt int, base, max time.Duration, jitter float64) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	d := float64(base) * math.Pow(2, float64(attempt-1))
	if max > 0 && d > float64(max) {
		d = float64(max)
	}
	if jitter < 0 {
		jitter = 0
	}
	if jitter > 1 {
		jitter = 1
	}
	return time.Duration(d * jitter)
}

// AttemptTimeout grows the per-attempt budget: min(max, base * multiplier^(attempt-1)).
func AttemptTimeout(attempt int, base, max time.Duration, multiplier float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if multiplier < 1 {
		multiplier = 1
	}
	d := float64(base) * math.Pow(multiplier, float64(attempt-1))
	if max > 0 && d > float64(max) {
		d = float64(max)
	}
	return time.Duration(d)
}

// SelectModel returns the fallback model only from FallbackStartAttempt on, and only when
// the previous attempt failed in a way another model could plausibly fix.
func SelectModel(cfg Config, attempt int, prev Bucket) string {
	if cfg.FallbackModel == "" || cfg.FallbackStartAttempt <= 0 || attempt < cfg.FallbackStartAttempt {
		return cfg.PrimaryModel
	}
	if prev == Transient || prev == Repairable {
		return cfg.FallbackModel
	}
	return cfg.PrimaryModel
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
