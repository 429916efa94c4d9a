package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace for all hall metrics
const namespace = "hall"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo is a gauge that exposes application version information as labels
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// Event synchronizer metrics
var (
	// EventReloadsTotal counts full reloads of the event collection by result
	EventReloadsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_reloads_total",
			Help:      "Total number of full event collection reloads",
		},
		[]string{"result"},
	)

	// EventReloadDuration records how long a full reload takes
	EventReloadDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_reload_duration_seconds",
			Help:      "Duration of full event collection reloads in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// EventWritesTotal counts create/update/delete calls by operation and result
	EventWritesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_writes_total",
			Help:      "Total number of event writes sent to the store",
		},
		[]string{"operation", "result"},
	)

	// EventsCached is the size of the most recently fetched collection
	EventsCached = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "events_cached",
			Help:      "Number of events in the most recently fetched collection",
		},
	)
)

// Session metrics
var (
	// SignInsTotal counts sign-in attempts by result (success, invalid_credentials, error)
	SignInsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sign_ins_total",
			Help:      "Total number of admin sign-in attempts",
		},
		[]string{"result"},
	)

	// SessionInvalidationsTotal counts sessions ended by the identity service
	SessionInvalidationsTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_invalidations_total",
			Help:      "Total number of sessions invalidated by the identity service (expiry or revocation)",
		},
	)

	// ActiveSessions tracks browser sessions held by the server
	ActiveSessions = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of browser sessions currently tracked",
		},
	)
)

// Venue metrics
var (
	// VenueLookupsTotal counts venue location lookups by source (config, geocoder, fallback)
	VenueLookupsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "venue_lookups_total",
			Help:      "Total number of venue location loads by source",
		},
		[]string{"source"},
	)
)

// ResultLabel maps an operation error to a low-cardinality label value.
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

var initOnce sync.Once

// Init registers runtime collectors and sets version information. Only the
// first call has an effect.
func Init(version, commit, buildDate string) {
	initOnce.Do(func() {
		// Register default Go metrics (memory, goroutines, GC, etc.)
		Registry.MustRegister(collectors.NewGoCollector())

		// Register process metrics (CPU, memory, file descriptors)
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
	})
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
