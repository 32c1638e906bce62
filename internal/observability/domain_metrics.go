package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	extractRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schemagate_extract_runs_total",
			Help: "Total number of DDL extraction runs by outcome.",
		},
		[]string{"outcome"},
	)
	extractTablesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schemagate_extract_tables_total",
			Help: "Total number of table definitions extracted.",
		},
	)
	extractSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schemagate_extract_skipped_statements_total",
			Help: "Total number of CREATE TABLE statements skipped as malformed.",
		},
	)
	validateTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schemagate_validate_total",
			Help: "Total number of validated SQL statements by result.",
		},
		[]string{"result"},
	)
	validateLayerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schemagate_validate_layer_errors_total",
			Help: "Total number of validation errors by layer.",
		},
		[]string{"layer"},
	)
	indexerSourcesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schemagate_indexer_sources_total",
			Help: "Total number of sources processed by the indexer by final status.",
		},
		[]string{"status"},
	)
	authFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schemagate_auth_failures_total",
			Help: "Total number of rejected API requests by reason.",
		},
		[]string{"reason"},
	)
	indexerDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "schemagate_indexer_duration_seconds",
			Help:    "Time spent parsing and indexing one source.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
)

func init() {
	prometheus.MustRegister(
		extractRunsTotal,
		extractTablesTotal,
		extractSkippedTotal,
		validateTotal,
		validateLayerErrorsTotal,
		indexerSourcesTotal,
		indexerDurationSeconds,
		authFailuresTotal,
	)
}

// ObserveExtraction records one extractor run. outcome is "ok" or "no_tables".
func ObserveExtraction(outcome string, tables, skipped int) {
	extractRunsTotal.WithLabelValues(outcome).Inc()
	if tables > 0 {
		extractTablesTotal.Add(float64(tables))
	}
	if skipped > 0 {
		extractSkippedTotal.Add(float64(skipped))
	}
}

func ObserveValidation(valid bool, layerErrors map[string]int) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	validateTotal.WithLabelValues(result).Inc()
	for layer, count := range layerErrors {
		if count > 0 {
			validateLayerErrorsTotal.WithLabelValues(layer).Add(float64(count))
		}
	}
}

func ObserveIndexedSource(status string, elapsed time.Duration) {
	indexerSourcesTotal.WithLabelValues(status).Inc()
	indexerDurationSeconds.Observe(elapsed.Seconds())
}

// ObserveAuthFailure counts a rejected request. reason is "missing_key",
// "malformed_key" or "invalid_key".
func ObserveAuthFailure(reason string) {
	authFailuresTotal.WithLabelValues(reason).Inc()
}
