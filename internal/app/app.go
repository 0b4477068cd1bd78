package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/membernode/internal/data/aggregates"
	"github.com/yungbote/membernode/internal/data/db"
	"github.com/yungbote/membernode/internal/data/repos"
	domainagg "github.com/yungbote/membernode/internal/domain/aggregates"
	"github.com/yungbote/membernode/internal/formats"
	"github.com/yungbote/membernode/internal/observability"
	"github.com/yungbote/membernode/internal/platform/dbctx"
	"github.com/yungbote/membernode/internal/platform/envutil"
	"github.com/yungbote/membernode/internal/platform/idgen"
	"github.com/yungbote/membernode/internal/platform/logger"
)

type App struct {
	Log     *logger.Logger
	DB      *gorm.DB
	Cfg     Config
	Repos   repos.Set
	Clients Clients
	Metrics *observability.Metrics

	Formats     *formats.Registry
	IDs         *idgen.Generator
	Objects     domainagg.ScienceObjectAggregate
	Maintenance domainagg.ChainMaintenance

	dbService    db.Service
	shutdownOtel func(context.Context) error
	cancel       context.CancelFunc
}

// New builds the node from the environment. The database is migrated before
// anything else is wired.
func New(ctx context.Context) (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development", nil))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	shutdownOtel := observability.InitOTel(ctx, log, cfg.Otel)
	metrics := observability.Init(log)

	dbService, err := db.Open(log, cfg.DBDriver)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, fmt.Errorf("database automigrate: %w", err)
	}
	theDB := dbService.DB()

	log.Info("Wiring repos...")
	reposet := repos.NewSet(theDB, log)

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}

	registry := formats.NewRegistry(log, reposet.Formats, formats.Config{
		TTL:  cfg.FormatCacheTTL,
		Size: cfg.FormatCacheSize,
	}, metrics)

	base := aggregates.BaseDeps{DB: theDB, Log: log, Hooks: aggregates.NewObservabilityHooks(metrics)}

	objects := aggregates.NewScienceObjectAggregate(aggregates.ScienceObjectAggregateDeps{
		Base:        base,
		Identifiers: reposet.Identifiers,
		Objects:     reposet.Objects,
		Chains:      reposet.Chains,
		Events:      reposet.Events,
		Store:       clients.Store,
		Formats:     registry,
		Authorizer:  newAuthorizer(cfg.TrustedSubjects),
		Bus:         clients.Bus,
		Metrics:     metrics,
		NodeID:      cfg.NodeID,
	})
	maintenance := aggregates.NewChainMaintenance(aggregates.ChainMaintenanceDeps{
		Base:        base,
		Identifiers: reposet.Identifiers,
		Objects:     reposet.Objects,
		Chains:      reposet.Chains,
		Events:      reposet.Events,
		Metrics:     metrics,
	})
	ids := idgen.New(idgen.UsedCheckerFunc(func(ctx context.Context, did string) (bool, error) {
		return reposet.Identifiers.IsUsed(dbctx.Background(ctx), did)
	}))

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clients,
		Metrics:      metrics,
		Formats:      registry,
		IDs:          ids,
		Objects:      objects,
		Maintenance:  maintenance,
		dbService:    dbService,
		shutdownOtel: shutdownOtel,
	}, nil
}

// Start runs the background collectors and the metrics endpoint.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
	a.Metrics.StartDBCollector(ctx, a.Log, a.DB)
	a.Metrics.StartRedisCollector(ctx, a.Log, a.Clients.Redis)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Clients.Close()
	if a.dbService != nil {
		if err := a.dbService.Close(); err != nil {
			a.Log.Warn("database close failed", "error", err)
		}
	}
	if a.shutdownOtel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.shutdownOtel(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
