package metrics

import (
	"testing"

	"loto-predictor/internal/ml"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// The wrapper is what the models receive.
var _ ml.MetricsInterface = (*MetricsWrapper)(nil)

func newTestWrapper(t *testing.T) (*Metrics, *MetricsWrapper) {
	t.Helper()
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)
	return m, NewWrapper(m)
}

func TestNewWrapper(t *testing.T) {
	metrics, wrapper := newTestWrapper(t)

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.m != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestMetricsWrapper_ModelCounters(t *testing.T) {
	metrics, wrapper := newTestWrapper(t)

	wrapper.PredictionInc("hybrid")
	wrapper.PredictionInc("hybrid")
	wrapper.PredictionInc("boost")

	if v := testutil.ToFloat64(metrics.Predictions.WithLabelValues("hybrid")); v != 2 {
		t.Errorf("Expected 2 hybrid predictions, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.Predictions.WithLabelValues("boost")); v != 1 {
		t.Errorf("Expected 1 boost prediction, got %f", v)
	}

	wrapper.FailureInc("forest")
	if v := testutil.ToFloat64(metrics.Failures.WithLabelValues("forest")); v != 1 {
		t.Errorf("Expected 1 forest failure, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.ErrorsTotal); v != 1 {
		t.Errorf("Expected failures to count as errors, got %f", v)
	}

	wrapper.TimeoutInc("sequence")
	if v := testutil.ToFloat64(metrics.Timeouts.WithLabelValues("sequence")); v != 1 {
		t.Errorf("Expected 1 sequence timeout, got %f", v)
	}

	wrapper.FallbackUseInc("hybrid")
	if v := testutil.ToFloat64(metrics.FallbackUse.WithLabelValues("hybrid")); v != 1 {
		t.Errorf("Expected 1 fallback use, got %f", v)
	}

	wrapper.TrainingInc("boost", ml.TrainOK)
	wrapper.TrainingInc("sequence", ml.TrainShort)
	if v := testutil.ToFloat64(metrics.Trainings.WithLabelValues("sequence", ml.TrainShort)); v != 1 {
		t.Errorf("Expected 1 short training, got %f", v)
	}

	wrapper.PersistenceFailureInc()
	if v := testutil.ToFloat64(metrics.PersistenceFailures); v != 1 {
		t.Errorf("Expected 1 persistence failure, got %f", v)
	}
}

func TestMetricsWrapper_WeightsAndAccuracy(t *testing.T) {
	metrics, wrapper := newTestWrapper(t)

	wrapper.WeightsSet(0.5, 0.3, 0.2)
	if v := testutil.ToFloat64(metrics.EnsembleWeight.WithLabelValues("forest")); v != 0.3 {
		t.Errorf("Expected forest weight 0.3, got %f", v)
	}

	wrapper.AccuracySet("boost", 42)
	metrics.UpdateAccuracy(map[string]float64{"forest": 12.5})
	if v := testutil.ToFloat64(metrics.Accuracy.WithLabelValues("boost")); v != 42 {
		t.Errorf("Expected boost accuracy 42, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.Accuracy.WithLabelValues("forest")); v != 12.5 {
		t.Errorf("Expected forest accuracy 12.5, got %f", v)
	}
}

func TestMetricsWrapper_HistogramOperations(t *testing.T) {
	metrics, wrapper := newTestWrapper(t)

	testValues := []float64{0.001, 0.005, 0.01, 0.05, 0.1}
	for _, value := range testValues {
		wrapper.LatencyObserve("boost", value)
	}
	wrapper.LatencyHistogram("forest").Observe(0.2)
	wrapper.ConfidenceObserve("hybrid", 0.7)

	if n := testutil.CollectAndCount(metrics.Latency); n != 2 {
		t.Errorf("Expected 2 latency series, got %d", n)
	}
	if n := testutil.CollectAndCount(metrics.Confidence); n != 1 {
		t.Errorf("Expected 1 confidence series, got %d", n)
	}
}

func TestMetricsWrapper_TransportMetrics(t *testing.T) {
	metrics, wrapper := newTestWrapper(t)

	wrapper.DrawsIngested().Inc()
	wrapper.PredictionsSaved().Inc()
	wrapper.WSReconnects().Inc()
	wrapper.WSBroadcasts().Inc()

	clients := wrapper.WSClients()
	clients.Add(2)
	clients.Add(-1)
	if v := testutil.ToFloat64(metrics.WSClients); v != 1 {
		t.Errorf("Expected 1 connected client, got %f", v)
	}
	clients.Set(5)
	if v := testutil.ToFloat64(metrics.WSClients); v != 5 {
		t.Errorf("Expected 5 connected clients, got %f", v)
	}

	if v := testutil.ToFloat64(metrics.DrawsIngested); v != 1 {
		t.Errorf("Expected 1 ingested draw, got %f", v)
	}

	wrapper.HTTPRequest("/predict", 200)
	wrapper.HTTPRequest("/predict", 422)
	wrapper.HTTPRequest("/predict", 503)
	if v := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/predict", "4xx")); v != 1 {
		t.Errorf("Expected 1 client error, got %f", v)
	}
}

func TestStatusClass(t *testing.T) {
	cases := map[int]string{200: "2xx", 204: "2xx", 301: "3xx", 404: "4xx", 500: "5xx"}
	for status, want := range cases {
		if got := statusClass(status); got != want {
			t.Errorf("statusClass(%d) = %s, want %s", status, got, want)
		}
	}
}

func TestCounterWrapper_DirectUsage(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "Test counter",
	})
	wrapper := &CounterWrapper{c: counter}

	wrapper.Inc()
	wrapper.Inc()
	if v := testutil.ToFloat64(counter); v != 2 {
		t.Errorf("Expected counter value 2, got %f", v)
	}
}
