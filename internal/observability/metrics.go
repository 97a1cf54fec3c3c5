package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "geoproc"

// Metrics holds the Prometheus counters, histograms, and gauges for the geoprocessing worker.
type Metrics struct {
	MessagesConsumed prometheus.Counter
	ResultsProduced  prometheus.Counter
	TransformErrors  prometheus.Counter
	PipelineRunning  prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Conversion metrics.
	ProductsGenerated *prometheus.CounterVec // labels: plugin
	DispatchFailures  *prometheus.CounterVec // labels: plugin, kind={input-absent,malformed-input}

	// Publish metrics.
	Uploads        *prometheus.CounterVec // labels: outcome={success,error}
	Notifications  *prometheus.CounterVec // labels: outcome={success,error}
	NotifyDuration prometheus.Histogram
}

// NewMetrics creates and registers all worker metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total geoprocess messages read from the source topic.",
		}),
		ResultsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_produced_total",
			Help:      "Total result records written to the sink topic.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Total messages that could not be handled.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-process-load cycle.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		ProductsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "products_generated_total",
			Help:      "Products emitted by conversion routines, by plugin.",
		}, []string{"plugin"}),
		DispatchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_failures_total",
			Help:      "Conversions that produced no output, by plugin and error kind.",
		}, []string{"plugin", "kind"}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Product uploads to object storage by outcome.",
		}, []string{"outcome"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Catalog notify calls by outcome.",
		}, []string{"outcome"}),
		NotifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notify_duration_seconds",
			Help:      "Catalog notify request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}

	prometheus.MustRegister(
		m.MessagesConsumed,
		m.ResultsProduced,
		m.TransformErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.ProductsGenerated,
		m.DispatchFailures,
		m.Uploads,
		m.Notifications,
		m.NotifyDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		MessagesConsumed:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "messages_consumed_total"}),
		ResultsProduced:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "results_produced_total"}),
		TransformErrors:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "transform_errors_total"}),
		PipelineRunning:         prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "pipeline_running"}),
		BatchSize:               prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "batch_size"}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "batch_processing_duration_seconds"}),
		ProductsGenerated:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "products_generated_total"}, []string{"plugin"}),
		DispatchFailures:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "dispatch_failures_total"}, []string{"plugin", "kind"}),
		Uploads:                 prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "uploads_total"}, []string{"outcome"}),
		Notifications:           prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "notifications_total"}, []string{"outcome"}),
		NotifyDuration:          prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "notify_duration_seconds"}),
	}
}
