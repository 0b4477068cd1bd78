package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a zap sugared logger whose key/value fields pass through
// redaction before they are written.
type Logger struct {
	s *zap.SugaredLogger
}

// New builds a logger for LOG_MODE: "prod", "test", "nop" or anything else
// for development output.
func New(mode string) (*Logger, error) {
	var (
		cfg   zap.Config
		level zapcore.Level
	)
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "nop", "none", "off":
		return Nop(), nil
	case "prod", "production":
		cfg, level = zap.NewProductionConfig(), zap.InfoLevel
	case "test":
		cfg, level = zap.NewDevelopmentConfig(), zap.WarnLevel
	default:
		cfg, level = zap.NewDevelopmentConfig(), zap.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("build %s logger: %w", mode, err)
	}
	return &Logger{s: z.Sugar()}, nil
}

func Nop() *Logger { return &Logger{s: zap.NewNop().Sugar()} }

func (l *Logger) Sync() { _ = l.s.Sync() }

func (l *Logger) Debug(msg string, kv ...any) { l.s.Debugw(msg, scrub(kv)...) }
func (l *Logger) Info(msg string, kv ...any)  { l.s.Infow(msg, scrub(kv)...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, scrub(kv)...) }
func (l *Logger) Error(msg string, kv ...any) { l.s.Errorw(msg, scrub(kv)...) }

// With returns a child logger carrying kv on every entry.
func (l *Logger) With(kv ...any) *Logger { return &Logger{s: l.s.With(scrub(kv)...)} }

type fieldPolicy int

const (
	keep fieldPolicy = iota
	redact
	pseudonymize
)

// policyFor classifies a lowercased field key. Subjects are distinguished
// names of people and stay correlatable across entries without being readable.
func policyFor(key string) fieldPolicy {
	if key == "subject" || strings.Contains(key, "submitter") || strings.Contains(key, "rights_holder") {
		return pseudonymize
	}
	for _, s := range []string{"token", "password", "secret", "certificate", "dsn"} {
		if strings.Contains(key, s) {
			return redact
		}
	}
	return keep
}

var redaction = sync.OnceValues(func() (bool, string) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_REDACTION_ENABLED"))) {
	case "0", "false", "no", "off":
		return false, ""
	}
	return true, strings.TrimSpace(os.Getenv("LOG_HASH_SALT"))
})

func scrub(kv []any) []any {
	on, salt := redaction()
	if len(kv) == 0 || !on {
		return kv
	}
	out := make([]any, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		out = append(out, key, scrubValue(strings.ToLower(strings.TrimSpace(key)), kv[i+1], salt))
	}
	if len(kv)%2 == 1 {
		out = append(out, kv[len(kv)-1])
	}
	return out
}

func scrubValue(key string, val any, salt string) any {
	switch policyFor(key) {
	case redact:
		return "[REDACTED]"
	case pseudonymize:
		return pseudonym(val, salt)
	}
	if m, ok := val.(map[string]any); ok {
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = scrubValue(strings.ToLower(strings.TrimSpace(k)), v, salt)
		}
		return out
	}
	return val
}

func pseudonym(val any, salt string) string {
	var raw string
	switch v := val.(type) {
	case nil:
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		raw = strings.TrimSpace(fmt.Sprint(v))
	}
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(salt + raw))
	return "hash:" + hex.EncodeToString(sum[:])[:12]
}
