// Package ml provides the prediction models of the engine: a frequency-boosted
// linear scorer, a tree ensemble, a sequence model and the hybrid aggregator
// that blends them with adaptive weights.
//
// Every model consumes a most-recent-first draw history and produces five
// distinct numbers in [1,90] with a confidence in [0,1]. Models never fail a
// prediction for lack of training: they fall back to frequency heuristics.
package ml

import (
	"context"

	"loto-predictor/internal/draws"
)

// Predictor is a trainable model producing a five-number prediction.
type Predictor interface {
	// Name returns the model tag stamped on the outputs.
	Name() ModelTag

	// Train fits the model on a most-recent-first history.
	Train(ctx context.Context, history []draws.Draw) error

	// Predict produces five numbers and a confidence for the next draw.
	Predict(ctx context.Context, history []draws.Draw, cfg Config) (Output, error)
}

// WeightStore persists the hybrid aggregator weights.
type WeightStore interface {
	// LoadWeights returns the stored weights and whether any were found.
	LoadWeights() (Weights, bool, error)
	PersistWeights(w Weights) error
}

// MetricsInterface defines metrics methods needed by the models
type MetricsInterface interface {
	PredictionInc(model string)
	FailureInc(model string)
	FallbackUseInc(model string)
	TimeoutInc(model string)
	LatencyObserve(model string, seconds float64)
	ConfidenceObserve(model string, confidence float64)
	TrainingInc(model, outcome string)
	WeightsSet(boost, forest, sequence float64)
	PersistenceFailureInc()
}

// Training outcomes reported to metrics.
const (
	TrainOK       = "ok"
	TrainShort    = "short"
	TrainFailed   = "failed"
	TrainTimedOut = "timeout"
)

type noopMetrics struct{}

func (noopMetrics) PredictionInc(string) {}
func (noopMetrics) FailureInc(string) {}
func (noopMetrics) FallbackUseInc(string) {}
func (noopMetrics) TimeoutInc(string) {}
func (noopMetrics) LatencyObserve(string, float64) {}
func (noopMetrics) ConfidenceObserve(string, float64) {}
func (noopMetrics) TrainingInc(string, string) {}
func (noopMetrics) WeightsSet(float64, float64, float64) {}
func (noopMetrics) PersistenceFailureInc() {}

func metricsOrNoop(m MetricsInterface) MetricsInterface {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
