package app

import (
	"testing"
	"time"

	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "REDIS_ADDR", "GENERATION_MAX_ATTEMPTS", "BREAKER_COOLDOWN_MS", "CORS_ALLOWED_ORIGINS", "RETRY_AFTER_SECONDS"} {
		t.Setenv(key, "")
	}
	cfg := LoadConfig(logger.NewNop())
	if cfg.Port != "8080" || cfg.RetryAfterSeconds != 5 {
		t.Fatalf("unexpected defaults: port=%s retry_after=%d", cfg.Port, cfg.RetryAfterSeconds)
	}
	if cfg.Policy.MaxAttempts != 3 || cfg.Policy.FallbackStartAttempt != 3 {
		t.Fatalf("unexpected policy defaults: %+v", cfg.Policy)
	}
	if cfg.Breaker.Cooldown != 30*time.Second {
		t.Fatalf("unexpected breaker cooldown: %s", cfg.Breaker.Cooldown)
	}
	if cfg.CORSOrigins != nil {
		t.Fatalf("expected no configured origins, got %v", cfg.CORSOrigins)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("GENERATION_MAX_ATTEMPTS", "5")
	t.Setenv("GENERATION_BASE_TIMEOUT_MS", "2500")
	t.Setenv("BREAKER_FAILURE_THRESHOLD", "0")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://app.learnease.io , ,https://staging.learnease.io")
	t.Setenv("RETRY_AFTER_SECONDS", "not-a-number")

	cfg := LoadConfig(logger.NewNop())
	if cfg.Policy.MaxAttempts != 5 || cfg.Policy.BaseTimeout != 2500*time.Millisecond {
		t.Fatalf("policy overrides not applied: %+v", cfg.Policy)
	}
	if cfg.Breaker.FailureThreshold != 0 {
		t.Fatalf("expected disabled breaker, got %d", cfg.Breaker.FailureThreshold)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://staging.learnease.io" {
		t.Fatalf("unexpected origins: %v", cfg.CORSOrigins)
	}
	if cfg.RetryAfterSeconds != 5 {
		t.Fatalf("invalid int should fall back to default, got %d", cfg.RetryAfterSeconds)
	}
}
