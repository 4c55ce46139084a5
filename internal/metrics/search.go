// Package metrics defines the Prometheus collectors exported by msdb.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msdb",
			Name:      "search_requests_total",
			Help:      "Total number of m/z search calls",
		},
		[]string{"mode", "status"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "msdb",
			Name:      "search_duration_seconds",
			Help:      "m/z search call duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"mode"},
	)

	SearchQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msdb",
			Name:      "search_queries_total",
			Help:      "Total number of peaks submitted to successful searches",
		},
		[]string{"mode"},
	)

	SearchMatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msdb",
			Name:      "search_matches_total",
			Help:      "Total number of match records produced",
		},
		[]string{"mode"},
	)

	SearchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msdb",
			Name:      "search_errors_total",
			Help:      "Total failed searches by error type",
		},
		[]string{"error_type"},
	)

	IndexEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "msdb",
			Name:      "index_entries",
			Help:      "Number of reference entries in the current index",
		},
	)

	IndexRebuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msdb",
			Name:      "index_rebuilds_total",
			Help:      "Total reference index rebuilds",
		},
		[]string{"status"},
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers Prometheus search metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchQueriesTotal)
	prometheus.MustRegister(SearchMatchesTotal)
	prometheus.MustRegister(SearchErrorsTotal)
	prometheus.MustRegister(IndexEntries)
	prometheus.MustRegister(IndexRebuildsTotal)
	searchMetricsRegistered = true
}
