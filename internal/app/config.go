package app

import (
	"strings"
	"time"

	"github.com/yungbote/membernode/internal/observability"
	"github.com/yungbote/membernode/internal/platform/envutil"
	"github.com/yungbote/membernode/internal/platform/logger"
	"github.com/yungbote/membernode/internal/platform/objstore"
	"github.com/yungbote/membernode/internal/realtime/bus"
)

type Config struct {
	DBDriver string
	NodeID   string

	ObjectStore objstore.Config

	RedisAddr    string
	RedisChannel string

	FormatCacheTTL  time.Duration
	FormatCacheSize int

	// TrustedSubjects may mutate objects. Empty allows every subject.
	TrustedSubjects []string

	LockPath    string
	MetricsAddr string
	Otel        observability.OtelConfig
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		DBDriver: envutil.String("DB_DRIVER", "postgres", log),
		NodeID:   envutil.String("NODE_IDENTIFIER", "urn:node:LOCAL", log),
		ObjectStore: objstore.Config{
			Mode:         objstore.Mode(strings.ToLower(envutil.String("OBJECT_STORE_MODE", string(objstore.ModeFS), log))),
			Root:         envutil.String("OBJECT_STORE_ROOT", "./objects", log),
			Bucket:       envutil.String("GCS_BUCKET_NAME", "", log),
			EmulatorHost: envutil.String("STORAGE_EMULATOR_HOST", "", log),
		},
		RedisAddr:       envutil.String("REDIS_ADDR", "", log),
		RedisChannel:    envutil.String("REDIS_CHANNEL", bus.DefaultChannel, log),
		FormatCacheTTL:  envutil.Duration("FORMAT_CACHE_TTL", 10*time.Minute, log),
		FormatCacheSize: envutil.Int("FORMAT_CACHE_SIZE", 1024, log),
		TrustedSubjects: splitList(envutil.String("GMN_TRUSTED_SUBJECTS", "", log)),
		LockPath:        envutil.String("GMN_LOCK_PATH", "gmnctl.lock", log),
		MetricsAddr:     envutil.String("METRICS_ADDR", "", log),
		Otel: observability.OtelConfig{
			ServiceName: envutil.String("OTEL_SERVICE_NAME", "gmn", log),
			Environment: envutil.String("OTEL_ENVIRONMENT", "development", log),
			Version:     envutil.String("OTEL_SERVICE_VERSION", "dev", log),
		},
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
