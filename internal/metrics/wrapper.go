package metrics

import "github.com/prometheus/client_golang/prometheus"

// Interfaces for metrics to avoid circular imports
type MetricsCounter interface {
	Inc()
}

type MetricsGauge interface {
	Set(float64)
	Add(float64)
}

type MetricsHistogram interface {
	Observe(float64)
}

// MetricsWrapper adapts Metrics to the interfaces the models, engine and
// transports depend on
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) PredictionInc(model string) {
	w.m.Predictions.WithLabelValues(model).Inc()
}

func (w *MetricsWrapper) FailureInc(model string) {
	w.m.Failures.WithLabelValues(model).Inc()
	w.m.ErrorsTotal.Inc()
}

func (w *MetricsWrapper) FallbackUseInc(model string) {
	w.m.FallbackUse.WithLabelValues(model).Inc()
}

func (w *MetricsWrapper) TimeoutInc(model string) {
	w.m.Timeouts.WithLabelValues(model).Inc()
}

func (w *MetricsWrapper) LatencyObserve(model string, seconds float64) {
	w.m.Latency.WithLabelValues(model).Observe(seconds)
}

func (w *MetricsWrapper) ConfidenceObserve(model string, confidence float64) {
	w.m.Confidence.WithLabelValues(model).Observe(confidence)
}

func (w *MetricsWrapper) TrainingInc(model, outcome string) {
	w.m.Trainings.WithLabelValues(model, outcome).Inc()
}

func (w *MetricsWrapper) WeightsSet(boost, forest, sequence float64) {
	w.m.EnsembleWeight.WithLabelValues("boost").Set(boost)
	w.m.EnsembleWeight.WithLabelValues("forest").Set(forest)
	w.m.EnsembleWeight.WithLabelValues("sequence").Set(sequence)
}

func (w *MetricsWrapper) PersistenceFailureInc() {
	w.m.PersistenceFailures.Inc()
	w.m.ErrorsTotal.Inc()
}

func (w *MetricsWrapper) AccuracySet(model string, accuracy float64) {
	w.m.UpdateAccuracy(map[string]float64{model: accuracy})
}

func (w *MetricsWrapper) DrawsIngested() MetricsCounter {
	return &CounterWrapper{w.m.DrawsIngested}
}

func (w *MetricsWrapper) PredictionsSaved() MetricsCounter {
	return &CounterWrapper{w.m.PredictionsSaved}
}

func (w *MetricsWrapper) WSClients() MetricsGauge {
	return &GaugeWrapper{w.m.WSClients}
}

func (w *MetricsWrapper) WSReconnects() MetricsCounter {
	return &CounterWrapper{w.m.WSReconnects}
}

func (w *MetricsWrapper) WSBroadcasts() MetricsCounter {
	return &CounterWrapper{w.m.WSBroadcasts}
}

func (w *MetricsWrapper) HTTPRequest(route string, status int) {
	w.m.HTTPRequests.WithLabelValues(route, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

type CounterWrapper struct {
	c prometheus.Counter
}

func (cw *CounterWrapper) Inc() {
	cw.c.Inc()
}

type GaugeWrapper struct {
	g prometheus.Gauge
}

func (gw *GaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}

func (gw *GaugeWrapper) Add(v float64) {
	gw.g.Add(v)
}

type HistogramWrapper struct {
	h prometheus.Observer
}

func (hw *HistogramWrapper) Observe(v float64) {
	hw.h.Observe(v)
}

// LatencyHistogram exposes the latency histogram of one model.
func (w *MetricsWrapper) LatencyHistogram(model string) MetricsHistogram {
	return &HistogramWrapper{w.m.Latency.WithLabelValues(model)}
}
