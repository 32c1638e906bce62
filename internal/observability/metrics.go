package observability

import "github.com/prometheus/client_golang/prometheus"

// Routes are labelled by their mux pattern, never by the raw path, so that
// source and table identifiers do not turn into label values.
var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schemagate_http_requests_total",
			Help: "Total number of HTTP requests by route and status class.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "schemagate_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	httpRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "schemagate_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served.",
		},
	)

	sqlToolRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schemagate_sql_tool_requests_total",
			Help: "Total number of /v1/sql tool calls by tool and status class.",
		},
		[]string{"tool", "status"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDurationSeconds, httpRequestsInFlight, sqlToolRequestsTotal)
}
