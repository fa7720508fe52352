package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// Logger is a key/value logger. Values under sensitive keys are redacted or hashed
// before they reach zap; LOG_REDACTION_ENABLED=false turns that off for local debugging.
type Logger struct {
	sugar *zap.SugaredLogger
	scrub *scrubber
}

func New(mode string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "test":
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{sugar: z.Sugar(), scrub: scrubberFromEnv()}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

func (l *Logger) Sync() { _ = l.sugar.Sync() }

func (l *Logger) Debug(msg string, kv ...interface{}) { l.sugar.Debugw(msg, l.scrub.apply(kv)...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.sugar.Infow(msg, l.scrub.apply(kv)...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.sugar.Warnw(msg, l.scrub.apply(kv)...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.sugar.Errorw(msg, l.scrub.apply(kv)...) }

func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(l.scrub.apply(kv)...), scrub: l.scrub}
}

const redacted = "[REDACTED]"

// Document bodies and prompts can carry student work.
var redactedKeyParts = []string{
	"token", "authorization", "password", "secret", "api_key", "apikey",
	"extracted_text", "document_text", "prompt",
}

var hashedKeyParts = []string{"user_id"}

// scrubber rewrites key/value pairs. A nil scrubber passes them through.
type scrubber struct {
	salt string
}

func scrubberFromEnv() *scrubber {
	switch strings.TrimSpace(strings.ToLower(os.Getenv("LOG_REDACTION_ENABLED"))) {
	case "0", "false", "no", "off":
		return nil
	}
	return &scrubber{salt: strings.TrimSpace(os.Getenv("LOG_HASH_SALT"))}
}

func (s *scrubber) apply(kv []interface{}) []interface{} {
	if s == nil || len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		out[i+1] = s.value(strings.ToLower(fmt.Sprint(out[i])), out[i+1])
	}
	return out
}

func (s *scrubber) value(key string, val interface{}) interface{} {
	switch {
	case containsAny(key, redactedKeyParts):
		return redacted
	case containsAny(key, hashedKeyParts):
		return s.hash(val)
	}
	if str, ok := val.(string); ok && looksLikeJWT(str) {
		return redacted
	}
	return val
}

func (s *scrubber) hash(val interface{}) string {
	raw := fmt.Sprint(val)
	if val == nil || raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s.salt + raw))
	return "hash:" + hex.EncodeToString(sum[:])[:12]
}

func containsAny(key string, parts []string) bool {
	for _, p := range parts {
		if strings.Contains(key, p) {
			return true
		}
	}
	return false
}

func looksLikeJWT(s string) bool {
	parts := strings.Split(s, ".")
	return len(parts) == 3 && len(parts[0]) > 10 && len(parts[1]) > 10
}
