// Package metrics provides prometheus instruments for the web services.
package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus instruments and the registry they live in.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
}

// New creates all instruments and registers them with a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stopcast_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stopcast_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	dbConnectionsOpen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stopcast_db_connections_open",
		Help: "Number of open database connections",
	})

	dbConnectionsInUse := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stopcast_db_connections_in_use",
		Help: "Number of database connections currently in use",
	})

	registry.MustRegister(
		requestsTotal,
		requestDuration,
		dbConnectionsOpen,
		dbConnectionsInUse,
	)

	return &Metrics{
		Registry:           registry,
		RequestsTotal:      requestsTotal,
		RequestDuration:    requestDuration,
		DBConnectionsOpen:  dbConnectionsOpen,
		DBConnectionsInUse: dbConnectionsInUse,
	}
}

// StartDBStatsCollector periodically copies connection pool statistics into
// the gauges until shutdownSignal is closed. Call at most once.
func (m *Metrics) StartDBStatsCollector(db *sql.DB, interval time.Duration, shutdownSignal chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				stats := db.Stats()
				m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
				m.DBConnectionsInUse.Set(float64(stats.InUse))
			case <-shutdownSignal:
				return
			}
		}
	}()
}
