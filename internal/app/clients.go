package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/membernode/internal/platform/logger"
	"github.com/yungbote/membernode/internal/platform/objstore"
	"github.com/yungbote/membernode/internal/realtime/bus"
)

type Clients struct {
	Store objstore.Store
	Bus   bus.Bus
	// Redis is nil when chain events stay in process.
	Redis *goredis.Client
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	store, err := resolveObjectStore(ctx, log, cfg.ObjectStore)
	if err != nil {
		return Clients{}, err
	}

	if strings.TrimSpace(cfg.RedisAddr) == "" {
		log.Info("REDIS_ADDR not set; chain events are delivered in process")
		return Clients{Store: store, Bus: bus.NewMemoryBus()}, nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.RedisAddr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return Clients{}, fmt.Errorf("init redis chain bus: %w", err)
	}
	return Clients{
		Store: store,
		Bus:   bus.NewRedisBusFromClient(log, rdb, cfg.RedisChannel),
		Redis: rdb,
	}, nil
}

func (c Clients) Close() {
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
