package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"querygate/internal/database"
)

// MetricsCollector holds the gateway's Prometheus metrics.
type MetricsCollector struct {
	QueryTotal     *prometheus.CounterVec
	QueryDuration  *prometheus.HistogramVec
	QueryRows      *prometheus.CounterVec
	SecurityBlocks *prometheus.CounterVec

	PoolActive      *prometheus.GaugeVec
	PoolIdle        *prometheus.GaugeVec
	PoolUtilization *prometheus.GaugeVec
}

// NewMetricsCollector registers the gateway metrics on the default registry.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		QueryTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "querygate_queries_total",
				Help: "Total number of natural-language queries processed",
			},
			[]string{"tenant", "status"},
		),
		QueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "querygate_query_duration_seconds",
				Help:    "End-to-end query latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tenant"},
		),
		QueryRows: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "querygate_query_rows_total",
				Help: "Total rows returned to callers after sanitization",
			},
			[]string{"tenant"},
		),
		SecurityBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "querygate_security_blocks_total",
				Help: "Requests blocked by the security gate",
			},
			[]string{"tenant", "reason"},
		),
		PoolActive: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "querygate_pool_active_connections",
				Help: "Active connections per tenant pool",
			},
			[]string{"tenant"},
		),
		PoolIdle: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "querygate_pool_idle_connections",
				Help: "Idle connections per tenant pool",
			},
			[]string{"tenant"},
		),
		PoolUtilization: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "querygate_pool_utilization",
				Help: "Pool utilization ratio per tenant",
			},
			[]string{"tenant"},
		),
	}
}

// ObserveQuery records the outcome of one request.
func (m *MetricsCollector) ObserveQuery(tenantID, status string, duration time.Duration, rowCount int) {
	m.QueryTotal.WithLabelValues(tenantID, status).Inc()
	m.QueryDuration.WithLabelValues(tenantID).Observe(duration.Seconds())
	if rowCount > 0 {
		m.QueryRows.WithLabelValues(tenantID).Add(float64(rowCount))
	}
}

// ObserveBlock records a security-gate denial by reason code.
func (m *MetricsCollector) ObserveBlock(tenantID, reason string) {
	m.SecurityBlocks.WithLabelValues(tenantID, reason).Inc()
}

// StartPoolStatsLoop refreshes the pool gauges from live manager state
// until the context is cancelled.
func (m *MetricsCollector) StartPoolStatsLoop(ctx context.Context, manager *database.ConnectionManager, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for tenantID, stats := range manager.AllMetrics() {
					m.PoolActive.WithLabelValues(tenantID).Set(float64(stats.ActiveConnections))
					m.PoolIdle.WithLabelValues(tenantID).Set(float64(stats.IdleConnections))
					m.PoolUtilization.WithLabelValues(tenantID).Set(stats.PoolUtilization)
				}
			}
		}
	}()
}
