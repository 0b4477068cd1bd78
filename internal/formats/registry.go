// Package formats caches the object formats this node accepts.
package formats

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/yungbote/membernode/internal/data/repos"
	types "github.com/yungbote/membernode/internal/domain"
	"github.com/yungbote/membernode/internal/observability"
	"github.com/yungbote/membernode/internal/platform/dbctx"
	"github.com/yungbote/membernode/internal/platform/logger"
)

type Config struct {
	TTL  time.Duration
	Size int
	// MinRefresh bounds how often an unknown formatId may trigger a reload.
	MinRefresh time.Duration
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = 10 * time.Minute
	}
	if c.Size <= 0 {
		c.Size = 1024
	}
	if c.MinRefresh <= 0 {
		c.MinRefresh = 30 * time.Second
	}
	return c
}

// Registry answers formatId lookups from an expiring cache filled from the
// object_format table. Concurrent misses share one reload.
type Registry struct {
	log     *logger.Logger
	repo    repos.ObjectFormatRepo
	metrics *observability.Metrics
	cfg     Config
	now     func() time.Time

	cache *expirable.LRU[string, *types.ObjectFormat]
	group singleflight.Group

	mu          sync.Mutex
	lastRefresh time.Time
}

func NewRegistry(log *logger.Logger, repo repos.ObjectFormatRepo, cfg Config, metrics *observability.Metrics) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	cfg = cfg.withDefaults()
	return &Registry{
		log:     log.With("service", "FormatRegistry"),
		repo:    repo,
		metrics: metrics,
		cfg:     cfg,
		now:     time.Now,
		cache:   expirable.NewLRU[string, *types.ObjectFormat](cfg.Size, nil, cfg.TTL),
	}
}

// Lookup returns the format registered under formatID.
func (r *Registry) Lookup(ctx context.Context, formatID string) (*types.ObjectFormat, bool, error) {
	formatID = strings.TrimSpace(formatID)
	if formatID == "" {
		return nil, false, nil
	}
	if f, ok := r.cache.Get(formatID); ok {
		return f, true, nil
	}
	if !r.refreshDue() {
		return nil, false, nil
	}
	if err := r.Refresh(ctx); err != nil {
		return nil, false, err
	}
	f, ok := r.cache.Get(formatID)
	return f, ok, nil
}

func (r *Registry) IsKnown(ctx context.Context, formatID string) (bool, error) {
	_, ok, err := r.Lookup(ctx, formatID)
	return ok, err
}

func (r *Registry) refreshDue() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRefresh.IsZero() || r.now().Sub(r.lastRefresh) >= r.cfg.MinRefresh
}

// Refresh reloads every format from the database.
func (r *Registry) Refresh(ctx context.Context) error {
	_, err, shared := r.group.Do("refresh", func() (interface{}, error) {
		rows, err := r.repo.ListAll(dbctx.Background(ctx))
		if err != nil {
			return nil, err
		}
		for _, f := range rows {
			r.cache.Add(f.FormatID, f)
		}
		r.mu.Lock()
		r.lastRefresh = r.now()
		r.mu.Unlock()
		r.log.Debug("Refreshed object formats", "count", len(rows))
		return nil, nil
	})
	status := "success"
	if err != nil {
		status = "error"
		r.log.Warn("Object format refresh failed", "error", err)
	}
	if !shared {
		r.metrics.IncFormatRefresh(status)
	}
	return err
}

// Invalidate drops every cached entry; the next lookup reloads.
func (r *Registry) Invalidate() {
	r.cache.Purge()
	r.mu.Lock()
	r.lastRefresh = time.Time{}
	r.mu.Unlock()
}
