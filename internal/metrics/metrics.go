// Package metrics provides Prometheus metrics collection for the prediction engine.
// It defines the model, draw ingestion, API and live-feed metrics exposed via
// the Prometheus metrics endpoint for monitoring and alerting.
//
// Model metrics carry a "model" label holding the model tag.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the prediction engine.
type Metrics struct {
	// Model metrics
	Predictions         *prometheus.CounterVec   // Predictions produced per model
	Failures            *prometheus.CounterVec   // Model calls that failed or returned invalid output
	Timeouts            *prometheus.CounterVec   // Model calls that hit their timeout
	FallbackUse         *prometheus.CounterVec   // Times a frequency fallback answered instead of a model
	Trainings           *prometheus.CounterVec   // Training runs per model and outcome
	Latency             *prometheus.HistogramVec // Model prediction latency in seconds
	Confidence          *prometheus.HistogramVec // Distribution of prediction confidence
	Accuracy            *prometheus.GaugeVec     // Latest evaluated accuracy per model, in percent
	EnsembleWeight      *prometheus.GaugeVec     // Current hybrid weight per base model
	PersistenceFailures prometheus.Counter       // Weight persistence failures

	// Data metrics
	DrawsIngested    prometheus.Counter // Draws stored through the API or importers
	PredictionsSaved prometheus.Counter // Predictions recorded for later evaluation

	// Transport metrics
	HTTPRequests *prometheus.CounterVec // API requests per route and status
	WSClients    prometheus.Gauge       // Connected live-feed clients
	WSReconnects prometheus.Counter     // Live-feed client reconnections
	WSBroadcasts prometheus.Counter     // Predictions pushed to the live feed

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loto_predictions_total",
			Help: "Total number of predictions produced",
		}, []string{"model"}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loto_model_failures_total",
			Help: "Total number of failed or invalid model calls",
		}, []string{"model"}),
		Timeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loto_model_timeouts_total",
			Help: "Total number of model calls that timed out",
		}, []string{"model"}),
		FallbackUse: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loto_fallback_use_total",
			Help: "Total number of times the frequency fallback was used",
		}, []string{"model"}),
		Trainings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loto_trainings_total",
			Help: "Total number of training runs by outcome",
		}, []string{"model", "outcome"}),
		Latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loto_model_latency_seconds",
			Help:    "Model prediction latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"model"}),
		Confidence: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loto_prediction_confidence",
			Help:    "Distribution of prediction confidence scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"model"}),
		Accuracy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loto_model_accuracy_percent",
			Help: "Latest evaluated accuracy per model",
		}, []string{"model"}),
		EnsembleWeight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loto_ensemble_weight",
			Help: "Current hybrid weight per base model",
		}, []string{"model"}),
		PersistenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "loto_weight_persistence_failures_total",
			Help: "Total number of failed weight persistence attempts",
		}),
		DrawsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "loto_draws_ingested_total",
			Help: "Total number of draws stored",
		}),
		PredictionsSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "loto_predictions_saved_total",
			Help: "Total number of predictions recorded",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loto_http_requests_total",
			Help: "Total number of API requests",
		}, []string{"route", "status"}),
		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "loto_ws_clients",
			Help: "Number of connected live-feed clients",
		}),
		WSReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "loto_ws_reconnects_total",
			Help: "Total number of live-feed reconnections",
		}),
		WSBroadcasts: factory.NewCounter(prometheus.CounterOpts{
			Name: "loto_ws_broadcasts_total",
			Help: "Total number of predictions pushed to the live feed",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "loto_errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}

// UpdateAccuracy sets the accuracy gauge of each evaluated model.
func (m *Metrics) UpdateAccuracy(accuracy map[string]float64) {
	for model, acc := range accuracy {
		m.Accuracy.WithLabelValues(model).Set(acc)
	}
}
