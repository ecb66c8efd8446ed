package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics.
var (
	AlertsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sciencesync",
			Name:      "alerts_processed_total",
			Help:      "Alert bodies run through field extraction",
		},
		[]string{"format"},
	)

	EntriesExtractedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sciencesync",
			Name:      "entries_extracted_total",
			Help:      "Article entries extracted from alerts",
		},
	)

	EntriesSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sciencesync",
			Name:      "entries_skipped_total",
			Help:      "Entries dropped because no title could be extracted",
		},
	)

	UnparsableDatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sciencesync",
			Name:      "unparsable_dates_total",
			Help:      "Publication dates that could not be parsed",
		},
	)

	DuplicatesMergedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sciencesync",
			Name:      "duplicates_merged_total",
			Help:      "Records folded into an earlier record with the same identity",
		},
	)

	ClusteringDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sciencesync",
			Name:      "clustering_duration_seconds",
			Help:      "Time spent computing distances and clustering",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"algorithm", "metric"},
	)

	ClusteringNotConvergedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sciencesync",
			Name:      "clustering_not_converged_total",
			Help:      "Clustering runs that hit the iteration cap",
		},
		[]string{"algorithm"},
	)

	EnrichmentRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sciencesync",
			Name:      "enrichment_requests_total",
			Help:      "Enrichment lookups by source and result",
		},
		[]string{"source", "result"}, // result: "hit" / "cached" / "miss" / "error"
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers the pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(AlertsProcessedTotal)
	prometheus.MustRegister(EntriesExtractedTotal)
	prometheus.MustRegister(EntriesSkippedTotal)
	prometheus.MustRegister(UnparsableDatesTotal)
	prometheus.MustRegister(DuplicatesMergedTotal)
	prometheus.MustRegister(ClusteringDuration)
	prometheus.MustRegister(ClusteringNotConvergedTotal)
	prometheus.MustRegister(EnrichmentRequestsTotal)
	pipelineMetricsRegistered = true
}
