package metrics

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Database metrics
var (
	// DBQueryDuration records event store query latency
	DBQueryDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	// DBErrors counts database errors by operation and type
	DBErrors = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_errors_total",
			Help:      "Total number of database errors",
		},
		[]string{"operation", "error_type"},
	)
)

var (
	poolTotalDesc    = prometheus.NewDesc(namespace+"_db_connections_open", "Total number of open database connections", nil, nil)
	poolAcquiredDesc = prometheus.NewDesc(namespace+"_db_connections_in_use", "Number of database connections currently acquired", nil, nil)
	poolIdleDesc     = prometheus.NewDesc(namespace+"_db_connections_idle", "Number of idle database connections", nil, nil)
	poolMaxDesc      = prometheus.NewDesc(namespace+"_db_connections_max_open", "Maximum number of open database connections allowed", nil, nil)
)

// PoolStats reports pgx pool statistics at scrape time.
type PoolStats struct {
	pool *pgxpool.Pool
}

// NewPoolStats returns a collector for pool. Register it once per pool.
func NewPoolStats(pool *pgxpool.Pool) *PoolStats {
	return &PoolStats{pool: pool}
}

func (c *PoolStats) Describe(ch chan<- *prometheus.Desc) {
	ch <- poolTotalDesc
	ch <- poolAcquiredDesc
	ch <- poolIdleDesc
	ch <- poolMaxDesc
}

func (c *PoolStats) Collect(ch chan<- prometheus.Metric) {
	if c.pool == nil {
		return
	}
	stat := c.pool.Stat()
	ch <- prometheus.MustNewConstMetric(poolTotalDesc, prometheus.GaugeValue, float64(stat.TotalConns()))
	ch <- prometheus.MustNewConstMetric(poolAcquiredDesc, prometheus.GaugeValue, float64(stat.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(poolIdleDesc, prometheus.GaugeValue, float64(stat.IdleConns()))
	ch <- prometheus.MustNewConstMetric(poolMaxDesc, prometheus.GaugeValue, float64(stat.MaxConns()))
}

// RecordQuery records metrics for a database query. Call it with defer:
//
//	start := time.Now()
//	defer func() { metrics.RecordQuery("list_events", start, err) }()
func RecordQuery(operation string, start time.Time, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		errorType := ResultLabel(err)
		if errorType == "error" {
			errorType = "query_error"
		}
		DBErrors.WithLabelValues(operation, errorType).Inc()
	}
}
