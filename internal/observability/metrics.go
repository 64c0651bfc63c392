// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the dashboard engine.
type Metrics struct {
	// Connection metrics
	MessagesReceived prometheus.Counter
	StateEvents      *prometheus.CounterVec
	Reconnects       prometheus.Counter
	FullResyncs      prometheus.Counter
	RequestFailures  *prometheus.CounterVec

	// Cache metrics
	CacheEntities prometheus.Gauge
	CacheVersion  prometheus.Gauge

	// History metrics
	HistoryFetchDuration *prometheus.HistogramVec
	HistoryRecordsParsed prometheus.Counter
	HistoryRecordsBad    prometheus.Counter
	GraphsSuperseded     prometheus.Counter

	// Health metrics
	Connected        prometheus.Gauge
	LastStateChange  prometheus.Gauge
	DerivedBuilds    prometheus.Counter
	ScheduleRecalcs  *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "lammonsaato"
	}

	return &Metrics{
		MessagesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "messages_received_total",
			Help:      "Total number of websocket messages received",
		}),
		StateEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "state_events_total",
			Help:      "Total number of state_changed events by result",
		}, []string{"result"}),
		Reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "reconnects_total",
			Help:      "Total number of reconnection attempts",
		}),
		FullResyncs: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "full_resyncs_total",
			Help:      "Total number of wholesale cache replacements from get_states",
		}),
		RequestFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "request_failures_total",
			Help:      "Total number of failed outbound requests by command type",
		}, []string{"command"}),

		CacheEntities: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entities",
			Help:      "Current number of entities in the state cache",
		}),
		CacheVersion: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "version",
			Help:      "Monotonic cache version counter",
		}),

		HistoryFetchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of history and statistics fetches",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		HistoryRecordsParsed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "records_parsed_total",
			Help:      "Total number of historical records parsed",
		}),
		HistoryRecordsBad: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "records_skipped_total",
			Help:      "Total number of historical records skipped as unparseable",
		}),
		GraphsSuperseded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "graphs_superseded_total",
			Help:      "Total number of graph fetches discarded by a newer request",
		}),

		Connected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "connected",
			Help:      "1 while the websocket connection is synced, 0 otherwise",
		}),
		LastStateChange: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_state_change_timestamp_seconds",
			Help:      "Unix timestamp of the last applied state change",
		}),
		DerivedBuilds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "derived",
			Name:      "builds_total",
			Help:      "Total number of derived state builds",
		}),
		ScheduleRecalcs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "schedule",
			Name:      "recalculations_total",
			Help:      "Total number of schedule recalculations by outcome",
		}, []string{"outcome"}),
	}
}

// Handler returns an HTTP handler serving the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
