package enrich

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the pipeline.
type Metrics struct {
	CacheHits      prometheus.Counter
	ItemsResolved  prometheus.Counter
	ItemsFailed    prometheus.Counter
	BatchesTotal   prometheus.Counter
	BatchErrors    prometheus.Counter
	BatchSize      prometheus.Histogram
	RunDuration    prometheus.Histogram
}

// NewMetrics registers and returns the pipeline metrics. Call once per
// process.
func NewMetrics() *Metrics {
	return &Metrics{
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enricher_cache_hits_total",
			Help: "The total number of identifiers served from the enrichment cache",
		}),
		ItemsResolved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enricher_items_resolved_total",
			Help: "The total number of identifiers resolved via the metadata API",
		}),
		ItemsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enricher_items_failed_total",
			Help: "The total number of identifiers recorded as fetch failures",
		}),
		BatchesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enricher_batches_total",
			Help: "The total number of batch lookups issued",
		}),
		BatchErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enricher_batch_errors_total",
			Help: "The total number of batch lookups that failed",
		}),
		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "enricher_batch_size",
			Help:    "The number of identifiers per batch lookup",
			Buckets: []float64{1, 5, 10, 25, 50, 100},
		}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "enricher_run_duration_seconds",
			Help:    "The duration of full pipeline runs in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
