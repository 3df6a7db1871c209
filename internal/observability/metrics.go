package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for every
// pipeline component (spec.md's C1-C12), registered under the seismic_*
// namespace following the teacher's one-struct-per-process metrics pattern.
type Metrics struct {
	// Catalog and Waveform clients (C1/C2).
	ClientRequests   *prometheus.CounterVec   // labels: client={catalog,waveform}, outcome={success,error,rate_limited,breaker_open}
	ClientRetries    *prometheus.CounterVec   // labels: client
	ClientCache      *prometheus.CounterVec   // labels: client, result={hit,miss}
	ClientDuration   *prometheus.HistogramVec // labels: client
	BreakerState     *prometheus.GaugeVec     // labels: client; 0=closed 1=open 2=half_open

	// Validator (C3).
	ValidationOutcomes *prometheus.CounterVec // labels: outcome={accepted,rejected}, reason

	// Signal Processor (C4).
	ProcessingDuration prometheus.Histogram
	ProcessingErrors   prometheus.Counter

	// Feature Extractor (C5).
	FeatureExtractions *prometheus.CounterVec // labels: schema_id, outcome
	FeatureDuration    prometheus.Histogram

	// Detector (C6).
	TriggersRaised     prometheus.Counter
	TriggersConfirmed  prometheus.Counter
	TriggersRejected   *prometheus.CounterVec // labels: reason
	DetectorBacklog    prometheus.Gauge

	// Classifier (C7).
	ClassificationsTotal *prometheus.CounterVec // labels: label
	ClassificationConfidence prometheus.Histogram

	// Magnitude estimator (C8).
	MagnitudeEstimates prometheus.Histogram

	// Locator (C9).
	LocationsConverged  prometheus.Counter
	LocationsNonConverged prometheus.Counter
	LocationRMSResidual prometheus.Histogram

	// Pipeline orchestrator (C10).
	QueueDepth        prometheus.Gauge
	PipelineRunning   prometheus.Gauge
	StageDuration     *prometheus.HistogramVec // labels: stage
	QueueBlocked      prometheus.Counter

	// Event store (C11).
	StoreWrites        prometheus.Counter
	StoreWriteDuration prometheus.Histogram
	DeadLetterWrites   prometheus.Counter

	// Alert dispatcher (C12).
	AlertsDispatched *prometheus.CounterVec // labels: level
	AlertsDeduped    prometheus.Counter
	AlertsRateLimited prometheus.Counter
}

type registerer interface {
	MustRegister(...prometheus.Collector)
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer)
}

// NewMetricsForTesting creates Metrics against a private registry to avoid
// "already registered" panics when multiple tests construct a Metrics.
func NewMetricsForTesting() *Metrics {
	return newMetrics(prometheus.NewRegistry())
}

func newMetrics(reg registerer) *Metrics {
	const ns = "seismic"

	m := &Metrics{
		ClientRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "client_requests_total",
			Help: "Outbound requests by client and outcome.",
		}, []string{"client", "outcome"}),
		ClientRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "client_retries_total",
			Help: "Retry attempts issued by a resilient client.",
		}, []string{"client"}),
		ClientCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "client_cache_total",
			Help: "Client-side result cache lookups.",
		}, []string{"client", "result"}),
		ClientDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "client_request_duration_seconds",
			Help:    "Client request duration in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"client"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "client_breaker_state",
			Help: "Circuit breaker state per client: 0=closed 1=open 2=half_open.",
		}, []string{"client"}),

		ValidationOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "validation_outcomes_total",
			Help: "Validator decisions by outcome and rejection reason.",
		}, []string{"outcome", "reason"}),

		ProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "processing_duration_seconds",
			Help:    "Signal conditioning duration per segment.",
			Buckets: prometheus.DefBuckets,
		}),
		ProcessingErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "processing_errors_total",
			Help: "Signal conditioning failures.",
		}),

		FeatureExtractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "feature_extractions_total",
			Help: "Feature vector extractions by schema and outcome.",
		}, []string{"schema_id", "outcome"}),
		FeatureDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "feature_extraction_duration_seconds",
			Help:    "Feature extraction duration per segment.",
			Buckets: prometheus.DefBuckets,
		}),

		TriggersRaised: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "detector_triggers_raised_total",
			Help: "Provisional triggers raised by the STA/LTA detector.",
		}),
		TriggersConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "detector_triggers_confirmed_total",
			Help: "Triggers that reached CONFIRMED state.",
		}),
		TriggersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "detector_triggers_rejected_total",
			Help: "Triggers rejected, by reason.",
		}, []string{"reason"}),
		DetectorBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "detector_backlog_samples",
			Help: "Samples buffered awaiting post-roll completion.",
		}),

		ClassificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "classifications_total",
			Help: "Classifications emitted, by label.",
		}, []string{"label"}),
		ClassificationConfidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "classification_confidence",
			Help:    "Calibrated confidence of the winning label.",
			Buckets: []float64{0.1, 0.25, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 0.99, 1.0},
		}),

		MagnitudeEstimates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "magnitude_estimate",
			Help:    "Estimated event magnitude.",
			Buckets: []float64{-1, 0, 1, 2, 3, 4, 5, 6, 7, 8},
		}),

		LocationsConverged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "locations_converged_total",
			Help: "Hypocenter inversions that converged.",
		}),
		LocationsNonConverged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "locations_non_converged_total",
			Help: "Hypocenter inversions that failed to converge.",
		}),
		LocationRMSResidual: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "location_rms_residual_seconds",
			Help:    "RMS travel-time residual of converged locations.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),

		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "pipeline_queue_depth",
			Help: "Candidates queued for worker pickup.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "pipeline_running",
			Help: "1 when the pipeline orchestrator is active, 0 when shut down.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "pipeline_stage_duration_seconds",
			Help:    "Per-stage processing duration within the orchestrator.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		QueueBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "pipeline_queue_blocked_total",
			Help: "Times Submit blocked upstream because the bounded queue was full.",
		}),

		StoreWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "store_writes_total",
			Help: "Classified events appended to the store.",
		}),
		StoreWriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "store_write_duration_seconds",
			Help:    "Append latency including any fsync.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		DeadLetterWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "store_dead_letter_writes_total",
			Help: "Candidates that failed processing and were dead-lettered.",
		}),

		AlertsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "alerts_dispatched_total",
			Help: "Alerts dispatched, by level.",
		}, []string{"level"}),
		AlertsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "alerts_deduped_total",
			Help: "Alerts suppressed by the dedup window.",
		}),
		AlertsRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "alerts_rate_limited_total",
			Help: "Alerts suppressed by the per-subscriber rate limit.",
		}),
	}

	reg.MustRegister(
		m.ClientRequests, m.ClientRetries, m.ClientCache, m.ClientDuration, m.BreakerState,
		m.ValidationOutcomes,
		m.ProcessingDuration, m.ProcessingErrors,
		m.FeatureExtractions, m.FeatureDuration,
		m.TriggersRaised, m.TriggersConfirmed, m.TriggersRejected, m.DetectorBacklog,
		m.ClassificationsTotal, m.ClassificationConfidence,
		m.MagnitudeEstimates,
		m.LocationsConverged, m.LocationsNonConverged, m.LocationRMSResidual,
		m.QueueDepth, m.PipelineRunning, m.StageDuration, m.QueueBlocked,
		m.StoreWrites, m.StoreWriteDuration, m.DeadLetterWrites,
		m.AlertsDispatched, m.AlertsDeduped, m.AlertsRateLimited,
	)

	return m
}
