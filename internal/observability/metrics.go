package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fire_threat"

// Metrics holds the Prometheus counters, histograms, and gauges for the engine.
type Metrics struct {
	ReadingsConsumed prometheus.Counter
	ReadingsStored   prometheus.Counter
	DecodeErrors     prometheus.Counter
	PipelineRunning  prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Topology metrics.
	TopologyNodes         prometheus.Gauge
	TopologyRefreshErrors prometheus.Counter

	// Prediction metrics.
	PredictionRequests *prometheus.CounterVec // labels: outcome={success,error,superseded}
	PredictionCache    *prometheus.CounterVec // labels: result={hit,miss}
	PredictionDuration prometheus.Histogram
	PredictionStale    prometheus.Gauge

	// Threat metrics.
	ActiveFires          prometheus.Gauge
	ThreatenedNodes      prometheus.Gauge
	AssessmentsPublished prometheus.Counter
}

// NewMetrics creates and registers all engine metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.ReadingsConsumed,
		m.ReadingsStored,
		m.DecodeErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.TopologyNodes,
		m.TopologyRefreshErrors,
		m.PredictionRequests,
		m.PredictionCache,
		m.PredictionDuration,
		m.PredictionStale,
		m.ActiveFires,
		m.ThreatenedNodes,
		m.AssessmentsPublished,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ReadingsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_consumed_total",
			Help:      "Total messages read from the readings topic.",
		}),
		ReadingsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_stored_total",
			Help:      "Total readings decoded and added to the reading store.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Total reading messages that could not be decoded.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the ingestion pipeline is active, 0 when shut down.",
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
			Help:      "Duration of a complete batch extract-decode-store cycle.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		TopologyNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "topology_nodes",
			Help:      "Number of nodes in the last loaded topology.",
		}),
		TopologyRefreshErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topology_refresh_errors_total",
			Help:      "Total failed topology reloads.",
		}),
		PredictionRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_requests_total",
			Help:      "Propagation prediction refreshes by outcome.",
		}, []string{"outcome"}),
		PredictionCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_cache_total",
			Help:      "Prediction cache lookups by result.",
		}, []string{"result"}),
		PredictionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "Prediction provider call duration in seconds, retries included.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		PredictionStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "prediction_stale",
			Help:      "1 while the last refresh failed and stale predictions are served.",
		}),
		ActiveFires: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_fires",
			Help:      "Active fire nodes in the last published assessment.",
		}),
		ThreatenedNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threatened_nodes",
			Help:      "Threatened nodes in the last published assessment.",
		}),
		AssessmentsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessments_published_total",
			Help:      "Total threat assessments written to the threats topic.",
		}),
	}
}
