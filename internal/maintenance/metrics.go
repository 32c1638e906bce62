package maintenance

import "github.com/prometheus/client_golang/prometheus"

var (
	retentionRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schemagate_retention_runs_total",
			Help: "Total number of failed-source retention runs by status.",
		},
		[]string{"status"},
	)
	retentionSourcesDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schemagate_retention_sources_deleted_total",
			Help: "Total number of failed sources removed by retention runs.",
		},
	)
	integrityRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schemagate_integrity_runs_total",
			Help: "Total number of integrity check runs by status.",
		},
		[]string{"status"},
	)
	integritySourcesCheckedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schemagate_integrity_sources_checked_total",
			Help: "Total number of sources whose object was checked.",
		},
	)
	integrityMissingObjectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schemagate_integrity_missing_objects_total",
			Help: "Total number of source objects found missing from the object store.",
		},
	)
	integritySizeMismatchTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schemagate_integrity_size_mismatch_total",
			Help: "Total number of source objects whose size differs from the catalog.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		retentionRunsTotal,
		retentionSourcesDeletedTotal,
		integrityRunsTotal,
		integritySourcesCheckedTotal,
		integrityMissingObjectsTotal,
		integritySizeMismatchTotal,
	)
}
