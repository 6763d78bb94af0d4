// Package engine exposes the prediction operations of the service: generating
// a prediction for a draw category, training the models, evaluating past
// predictions, recommending a model and adapting the hybrid weights.
//
// The engine reads draws from a DrawSource, records predictions in a
// PredictionSink and delegates the modelling to an ml.Hybrid.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"loto-predictor/internal/common"
	"loto-predictor/internal/draws"
	"loto-predictor/internal/ml"

	"github.com/rs/zerolog/log"
)

// DrawSource provides the recorded draws of a category.
type DrawSource interface {
	GetDrawHistory(categoryID string) ([]draws.Draw, error)
}

// PredictionSink records generated predictions and returns them for evaluation.
type PredictionSink interface {
	RecordPrediction(out ml.Output, categoryID string, drawDate time.Time) (string, error)
	GetPastPredictions(categoryID string) ([]ml.PredictionRecord, error)
}

// OutcomeResolver is implemented by sinks able to match stored predictions
// with the draws recorded since.
type OutcomeResolver interface {
	ResolveOutcomes(categoryID string) (int, error)
}

// Notifier receives every generated prediction, e.g. a live feed.
type Notifier interface {
	Publish(p Prediction)
}

// Prediction is a generated and recorded prediction.
type Prediction struct {
	ID         string    `json:"id,omitempty"`
	CategoryID string    `json:"category_id"`
	DrawDate   time.Time `json:"draw_date"`
	ml.Output
}

// Options tune the engine thresholds.
type Options struct {
	MinPredictHistory int
	MinTrainHistory   int
	// TrainTimeout bounds a whole TrainAll call. Zero disables the bound.
	TrainTimeout time.Duration
}

// DefaultOptions returns the standard thresholds: 10 draws to predict and 50
// to train.
func DefaultOptions() Options {
	return Options{
		MinPredictHistory: common.DefaultMinPredictHistory,
		MinTrainHistory:   common.DefaultMinTrainHistory,
		TrainTimeout:      10 * time.Minute,
	}
}

// Engine coordinates the draw source, the models and the prediction sink.
type Engine struct {
	source   DrawSource
	sink     PredictionSink
	hybrid   *ml.Hybrid
	notifier Notifier
	metrics  ml.MetricsInterface
	opts     Options
	now      func() time.Time
}

// New creates an engine. metrics and sink may be nil.
func New(source DrawSource, sink PredictionSink, hybrid *ml.Hybrid, metrics ml.MetricsInterface, opts Options) *Engine {
	if opts.MinPredictHistory <= 0 {
		opts.MinPredictHistory = common.DefaultMinPredictHistory
	}
	if opts.MinTrainHistory <= 0 {
		opts.MinTrainHistory = common.DefaultMinTrainHistory
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Engine{
		source:  source,
		sink:    sink,
		hybrid:  hybrid,
		metrics: metrics,
		opts:    opts,
		now:     time.Now,
	}
}

// SetNotifier registers the receiver of generated predictions.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// Hybrid returns the aggregator used by the engine.
func (e *Engine) Hybrid() *ml.Hybrid {
	return e.hybrid
}

func (e *Engine) history(categoryID string) ([]draws.Draw, error) {
	history, err := e.source.GetDrawHistory(categoryID)
	if err != nil {
		return nil, fmt.Errorf("get draw history for %s: %w", categoryID, err)
	}
	return draws.RecentFirst(history), nil
}

// GeneratePrediction predicts the next draw of a category with the configured
// model and records it. It fails with ml.ErrInsufficientData below the
// prediction minimum and with ml.ErrUnknownModel for an unrecognised model.
// A failure to record is logged and does not fail the prediction.
func (e *Engine) GeneratePrediction(ctx context.Context, categoryID string, cfg ml.Config) (Prediction, error) {
	cfg = cfg.Normalize()
	if !cfg.Model.Valid() {
		return Prediction{}, fmt.Errorf("%w: %q", ml.ErrUnknownModel, cfg.Model)
	}

	history, err := e.history(categoryID)
	if err != nil {
		return Prediction{}, err
	}
	if len(history) < e.opts.MinPredictHistory {
		return Prediction{}, &ml.InsufficientDataError{Component: "prediction", Have: len(history), Need: e.opts.MinPredictHistory}
	}
	history = draws.Lookback(history, cfg.LookbackDays, e.opts.MinPredictHistory)

	var predictor ml.Predictor = e.hybrid
	if cfg.Model != ml.ModelHybrid {
		predictor = e.hybrid.Model(cfg.Model)
		if predictor == nil {
			return Prediction{}, fmt.Errorf("%w: %s", ml.ErrModelUnavailable, cfg.Model)
		}
	}

	start := time.Now()
	out, err := predictor.Predict(ctx, history, cfg)
	if err != nil {
		e.metrics.FailureInc(string(cfg.Model))
		return Prediction{}, fmt.Errorf("%s prediction: %w", cfg.Model, err)
	}
	e.metrics.PredictionInc(string(out.Model))
	e.metrics.ConfidenceObserve(string(out.Model), out.Confidence)
	if cfg.Model != ml.ModelHybrid {
		e.metrics.LatencyObserve(string(cfg.Model), time.Since(start).Seconds())
	}

	p := Prediction{
		CategoryID: categoryID,
		DrawDate:   draws.NextDrawDate(categoryID, e.now()),
		Output:     out,
	}
	if e.sink != nil {
		id, err := e.sink.RecordPrediction(out, categoryID, p.DrawDate)
		if err != nil {
			log.Error().Err(err).Str("category", categoryID).Msg("Failed to record prediction")
		} else {
			p.ID = id
		}
	}

	log.Info().
		Str("category", categoryID).
		Str("model", string(out.Model)).
		Ints("numbers", out.Numbers).
		Float64("confidence", out.Confidence).
		Int("draws", len(history)).
		Msg("Prediction generated")

	if e.notifier != nil {
		e.notifier.Publish(p)
	}
	return p, nil
}

// TrainReport is the outcome of a training request.
type TrainReport struct {
	CategoryID string `json:"category_id"`
	Draws      int    `json:"draws"`
	Trained    int    `json:"trained"`
	Total      int    `json:"total"`
}

// TrainAll trains the three base models on a category's history and reports
// how many succeeded. It fails below the training minimum and when no model
// trained.
func (e *Engine) TrainAll(ctx context.Context, categoryID string) (TrainReport, error) {
	report := TrainReport{CategoryID: categoryID, Total: len(ml.BaseModels)}

	history, err := e.history(categoryID)
	if err != nil {
		return report, err
	}
	report.Draws = len(history)
	if len(history) < e.opts.MinTrainHistory {
		return report, &ml.InsufficientDataError{Component: "training", Have: len(history), Need: e.opts.MinTrainHistory}
	}

	if e.opts.TrainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.TrainTimeout)
		defer cancel()
	}

	report.Trained = e.hybrid.TrainAll(ctx, history)
	log.Info().
		Str("category", categoryID).
		Int("draws", len(history)).
		Int("trained", report.Trained).
		Msg("Training finished")

	if report.Trained == 0 {
		return report, fmt.Errorf("%w: no model trained for %s", ml.ErrModelUnavailable, categoryID)
	}
	return report, nil
}

// Evaluate compares a category's past predictions with the realised draws.
// Open predictions are resolved first when the sink supports it.
func (e *Engine) Evaluate(categoryID string) ([]ml.Performance, error) {
	if e.sink == nil {
		return ml.Evaluate(nil), nil
	}
	if r, ok := e.sink.(OutcomeResolver); ok {
		if n, err := r.ResolveOutcomes(categoryID); err != nil {
			log.Warn().Err(err).Str("category", categoryID).Msg("Failed to resolve prediction outcomes")
		} else if n > 0 {
			log.Debug().Int("resolved", n).Str("category", categoryID).Msg("Resolved prediction outcomes")
		}
	}

	records, err := e.sink.GetPastPredictions(categoryID)
	if err != nil {
		return nil, fmt.Errorf("get past predictions for %s: %w", categoryID, err)
	}
	perfs := ml.Evaluate(records)
	if a, ok := e.metrics.(accuracySetter); ok {
		for _, p := range perfs {
			if p.Evaluated > 0 {
				a.AccuracySet(string(p.Model), p.Accuracy)
			}
		}
	}
	return perfs, nil
}

// RecommendModel returns the model with the highest evaluated accuracy, the
// hybrid when nothing has been evaluated.
func (e *Engine) RecommendModel(categoryID string) (ml.ModelTag, error) {
	perfs, err := e.Evaluate(categoryID)
	if err != nil {
		return ml.ModelHybrid, err
	}
	tag, _ := ml.Best(perfs)
	return tag, nil
}

// AdaptReport is the outcome of a weight adaptation.
type AdaptReport struct {
	Applied  bool        `json:"applied"`
	Model    ml.ModelTag `json:"model"`
	Accuracy float64     `json:"accuracy"`
	Weights  ml.Weights  `json:"weights"`
}

// AdaptWeights feeds the best evaluated model and its accuracy to the hybrid
// weight update. Without evaluated predictions the weights are left as they are.
func (e *Engine) AdaptWeights(categoryID string) (AdaptReport, error) {
	perfs, err := e.Evaluate(categoryID)
	if err != nil {
		return AdaptReport{Weights: e.hybrid.Weights()}, err
	}

	evaluated := false
	for _, p := range perfs {
		if p.Evaluated > 0 {
			evaluated = true
			break
		}
	}
	if !evaluated {
		return AdaptReport{Model: ml.ModelHybrid, Weights: e.hybrid.Weights()}, nil
	}

	tag, acc := ml.Best(perfs)
	if err := e.hybrid.UpdateWeights(tag, acc); err != nil {
		return AdaptReport{Model: tag, Accuracy: acc, Weights: e.hybrid.Weights()}, err
	}
	return AdaptReport{Applied: true, Model: tag, Accuracy: acc, Weights: e.hybrid.Weights()}, nil
}

// IsInsufficientData reports whether err is an insufficient history error.
func IsInsufficientData(err error) bool {
	return errors.Is(err, ml.ErrInsufficientData)
}

type accuracySetter interface {
	AccuracySet(model string, accuracy float64)
}

type nopMetrics struct{}

func (nopMetrics) PredictionInc(string) {}
func (nopMetrics) FailureInc(string) {}
func (nopMetrics) FallbackUseInc(string) {}
func (nopMetrics) TimeoutInc(string) {}
func (nopMetrics) LatencyObserve(string, float64) {}
func (nopMetrics) ConfidenceObserve(string, float64) {}
func (nopMetrics) TrainingInc(string, string) {}
func (nopMetrics) WeightsSet(float64, float64, float64) {}
func (nopMetrics) PersistenceFailureInc() {}
