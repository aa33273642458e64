// Package metrics defines Prometheus metrics for the notes server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notas_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notas_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notas_errors_total",
			Help: "Total errors by type",
		},
		[]string{"type"},
	)

	MutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notas_entity_mutations_total",
			Help: "Entity operations by kind, operation and outcome category",
		},
		[]string{"kind", "op", "outcome"},
	)

	SnapshotsPushed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notas_live_snapshots_pushed_total",
			Help: "Merged snapshots pushed to live connections",
		},
		[]string{"kind"},
	)

	AuditQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notas_audit_queue_depth",
			Help: "Current audit queue depth",
		},
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notas_websocket_connections",
			Help: "Active WebSocket connections",
		},
	)
)

// RegisterPoolStats exposes database pool utilisation. stats is polled on
// every scrape. Calling it twice panics, as with any duplicate collector.
func RegisterPoolStats(stats func() (total, idle int32)) {
	prometheus.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "notas_db_pool_connections",
			Help: "Open database pool connections",
		}, func() float64 {
			total, _ := stats()
			return float64(total)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "notas_db_pool_idle_connections",
			Help: "Idle database pool connections",
		}, func() float64 {
			_, idle := stats()
			return float64(idle)
		}),
	)
}

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal, ErrorsTotal,
		MutationsTotal, SnapshotsPushed,
		AuditQueueDepth, WSConnections,
	)
}
