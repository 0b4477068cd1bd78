package observability

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/membernode/internal/platform/envutil"
	"github.com/yungbote/membernode/internal/platform/logger"
)

type Metrics struct {
	registry *prometheus.Registry

	aggregateOps       *prometheus.CounterVec
	aggregateLatency   *prometheus.HistogramVec
	aggregateConflicts *prometheus.CounterVec
	aggregateRetries   *prometheus.CounterVec

	chainEvents     *prometheus.CounterVec
	repairChanges   *prometheus.CounterVec
	repairDuration  prometheus.Histogram
	verifyViolation prometheus.Gauge

	formatRefresh *prometheus.CounterVec
	dbStats       *prometheus.GaugeVec
	redisUp       prometheus.Gauge
	redisPing     prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false, nil)
}

func Current() *Metrics {
	return instance
}

// Init builds the process-wide metrics once. It returns nil when metrics are disabled.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return instance
}

// NewMetrics builds a Metrics on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		aggregateOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gmn_aggregate_operations_total",
			Help: "Aggregate write operations by operation and status.",
		}, []string{"op", "status"}),
		aggregateLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gmn_aggregate_operation_duration_seconds",
			Help:    "Aggregate write latency in seconds by operation and status.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"op", "status"}),
		aggregateConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gmn_aggregate_conflicts_total",
			Help: "Aggregate writes rejected by a concurrent writer.",
		}, []string{"op"}),
		aggregateRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gmn_aggregate_retryable_total",
			Help: "Aggregate writes that failed with a retryable error.",
		}, []string{"op"}),
		chainEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gmn_chain_events_total",
			Help: "Committed object mutations by event type.",
		}, []string{"event"}),
		repairChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gmn_chain_repair_changes_total",
			Help: "Changes made by chain repair runs by kind.",
		}, []string{"kind"}),
		repairDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gmn_chain_repair_duration_seconds",
			Help:    "Duration of chain repair runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
		verifyViolation: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gmn_chain_verify_violations",
			Help: "Integrity violations found by the last chain verification.",
		}),
		formatRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gmn_format_registry_refresh_total",
			Help: "Object format registry refreshes by status.",
		}, []string{"status"}),
		dbStats: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gmn_db_pool",
			Help: "Database connection pool statistics.",
		}, []string{"stat"}),
		redisUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gmn_redis_up",
			Help: "Whether the last Redis ping succeeded.",
		}),
		redisPing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gmn_redis_ping_seconds",
			Help: "Latency of the last Redis ping.",
		}),
	}
	reg.MustRegister(
		m.aggregateOps, m.aggregateLatency, m.aggregateConflicts, m.aggregateRetries,
		m.chainEvents, m.repairChanges, m.repairDuration, m.verifyViolation,
		m.formatRefresh, m.dbStats, m.redisUp, m.redisPing,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) ObserveAggregateOperation(op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.aggregateOps.WithLabelValues(op, status).Inc()
	m.aggregateLatency.WithLabelValues(op, status).Observe(dur.Seconds())
}

func (m *Metrics) IncAggregateConflict(op string) {
	if m == nil {
		return
	}
	m.aggregateConflicts.WithLabelValues(op).Inc()
}

func (m *Metrics) IncAggregateRetry(op string) {
	if m == nil {
		return
	}
	m.aggregateRetries.WithLabelValues(op).Inc()
}

func (m *Metrics) IncChainEvent(event string) {
	if m == nil {
		return
	}
	m.chainEvents.WithLabelValues(event).Inc()
}

// ObserveRepair records one finished repair run.
func (m *Metrics) ObserveRepair(links, chains, sids, removed int, dur time.Duration) {
	if m == nil {
		return
	}
	m.repairChanges.WithLabelValues("links").Add(float64(links))
	m.repairChanges.WithLabelValues("chains").Add(float64(chains))
	m.repairChanges.WithLabelValues("sids").Add(float64(sids))
	m.repairChanges.WithLabelValues("removed").Add(float64(removed))
	m.repairDuration.Observe(dur.Seconds())
}

func (m *Metrics) SetVerifyViolations(n int) {
	if m == nil {
		return
	}
	m.verifyViolation.Set(float64(n))
}

func (m *Metrics) IncFormatRefresh(status string) {
	if m == nil {
		return
	}
	m.formatRefresh.WithLabelValues(status).Inc()
}

func scrapeInterval() time.Duration {
	return envutil.Duration("METRICS_SCRAPE_INTERVAL", 10*time.Second, nil)
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: db stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.dbStats.WithLabelValues("open_connections").Set(float64(stats.OpenConnections))
				m.dbStats.WithLabelValues("in_use").Set(float64(stats.InUse))
				m.dbStats.WithLabelValues("idle").Set(float64(stats.Idle))
				m.dbStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
				m.dbStats.WithLabelValues("wait_duration_seconds").Set(stats.WaitDuration.Seconds())
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}
