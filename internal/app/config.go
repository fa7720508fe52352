package app

import (
	"strings"
	"time"

	"github.com/dipteshhh/learnease-backend/internal/data/db"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation/reliability"
	"github.com/dipteshhh/learnease-backend/internal/observability"
	"github.com/dipteshhh/learnease-backend/internal/platform/envutil"
	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
	"github.com/dipteshhh/learnease-backend/internal/platform/openai"
	"github.com/dipteshhh/learnease-backend/internal/realtime/bus"
)

type Config struct {
	Port            string
	ShutdownTimeout time.Duration
	JWTSecretKey    string
	CORSOrigins     []string

	// RetryAfterSeconds is advertised on ALREADY_PROCESSING responses.
	RetryAfterSeconds int
	ReconcileInterval time.Duration
	MetricsEnabled    bool

	DB      db.Config
	Redis   bus.RedisConfig
	OpenAI  openai.Config
	Policy  reliability.Config
	Breaker reliability.BreakerConfig
	Otel    observability.OtelConfig
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:              envutil.String("PORT", "8080"),
		ShutdownTimeout:   envutil.Millis("SHUTDOWN_TIMEOUT_MS", 20*time.Second),
		JWTSecretKey:      envutil.String("JWT_SECRET_KEY", ""),
		CORSOrigins:       splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),
		RetryAfterSeconds: envutil.Int("RETRY_AFTER_SECONDS", 5),
		ReconcileInterval: envutil.Millis("RECONCILE_INTERVAL_MS", 5*time.Minute),
		MetricsEnabled:    envutil.Bool("METRICS_ENABLED", true),

		DB: db.Config{
			Driver:       envutil.String("DB_DRIVER", "postgres"),
			DSN:          envutil.String("DATABASE_URL", ""),
			Host:         envutil.String("POSTGRES_HOST", "localhost"),
			Port:         envutil.String("POSTGRES_PORT", "5432"),
			User:         envutil.String("POSTGRES_USER", "postgres"),
			Password:     envutil.String("POSTGRES_PASSWORD", ""),
			Name:         envutil.String("POSTGRES_NAME", "learnease"),
			SSLMode:      envutil.String("POSTGRES_SSLMODE", "disable"),
			MaxOpenConns: envutil.Int("POSTGRES_MAX_OPEN_CONNS", 20),
			MaxIdleConns: envutil.Int("POSTGRES_MAX_IDLE_CONNS", 10),
		},
		Redis: bus.RedisConfig{
			Addr:     envutil.String("REDIS_ADDR", ""),
			Password: envutil.String("REDIS_PASSWORD", ""),
			DB:       envutil.Int("REDIS_DB", 0),
			Channel:  envutil.String("REDIS_CHANNEL", ""),
		},
		OpenAI: openai.Config{
			BaseURL:             envutil.String("OPENAI_BASE_URL", "https://api.openai.com"),
			APIKey:              envutil.String("OPENAI_API_KEY", ""),
			NoTemperatureModels: envutil.String("OPENAI_NO_TEMPERATURE_MODELS", "o1*,o3*,o4*,gpt-5*"),
		},
		Policy: reliability.Config{
			PrimaryModel:         envutil.String("GENERATION_PRIMARY_MODEL", "gpt-4o-mini"),
			FallbackModel:        envutil.String("GENERATION_FALLBACK_MODEL", ""),
			FallbackStartAttempt: envutil.Int("GENERATION_FALLBACK_START_ATTEMPT", 3),
			MaxAttempts:          envutil.Int("GENERATION_MAX_ATTEMPTS", 3),
			TransientBackoffBase: envutil.Millis("GENERATION_BACKOFF_BASE_MS", time.Second),
			TransientBackoffMax:  envutil.Millis("GENERATION_BACKOFF_MAX_MS", 8*time.Second),
			BaseTimeout:          envutil.Millis("GENERATION_BASE_TIMEOUT_MS", 60*time.Second),
			MaxTimeout:           envutil.Millis("GENERATION_MAX_TIMEOUT_MS", 180*time.Second),
			RetryMultiplier:      envutil.Float("GENERATION_TIMEOUT_MULTIPLIER", 1.5),
		},
		Breaker: reliability.BreakerConfig{
			FailureThreshold:   envutil.Int("BREAKER_FAILURE_THRESHOLD", 5),
			Cooldown:           envutil.Millis("BREAKER_COOLDOWN_MS", 30*time.Second),
			HalfOpenProbeLimit: envutil.Int("BREAKER_HALF_OPEN_PROBES", 1),
		},
		Otel: observability.OtelConfig{
			Enabled:     envutil.Bool("OTEL_ENABLED", false),
			ServiceName: envutil.String("OTEL_SERVICE_NAME", "learnease-backend"),
			Environment: envutil.String("APP_ENV", "development"),
			Version:     envutil.String("APP_VERSION", "dev"),
			Endpoint:    envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:     envutil.String("OTEL_EXPORTER_OTLP_HEADERS", ""),
			Insecure:    envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false),
			SampleRatio: envutil.Float("OTEL_SAMPLE_RATIO", 1),
		},
	}

	if cfg.JWTSecretKey == "" {
		log.Warn("JWT_SECRET_KEY is not set; every authenticated request will be rejected")
	}
	if cfg.Redis.Addr == "" {
		log.Info("REDIS_ADDR is not set; flow events stay in-process")
	}
	return cfg
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
