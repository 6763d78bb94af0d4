// Package backtest replays a prediction model over recorded draws. Every draw
// of a category is predicted from the draws before it only, and the hits are
// scored with the same accuracy formula as the evaluation of stored
// predictions.
package backtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"loto-predictor/internal/common"
	"loto-predictor/internal/draws"
	"loto-predictor/internal/features"
	"loto-predictor/internal/ml"

	"github.com/rs/zerolog/log"
)

// Options controls a walk-forward replay.
type Options struct {
	// Warmup is the number of draws a category needs before its first prediction.
	Warmup int
	// RetrainEvery retrains the model after that many new draws; 0 trains once
	// per category.
	RetrainEvery int
	Config       ml.Config
}

// DefaultOptions returns the replay settings used by the backtest command.
func DefaultOptions() Options {
	return Options{
		Warmup:       common.DefaultMinPredictHistory,
		RetrainEvery: 10,
		Config:       ml.DefaultConfig(),
	}
}

// Engine represents the backtesting engine
type Engine struct {
	predictor ml.Predictor
	data      *DataLoader
	opts      Options
	results   *Results
	mu        sync.RWMutex

	// Chronological history per category
	history map[string][]draws.Draw

	lastTrainedCategory string
	lastTrainedSize     int
}

// Step is one replayed prediction.
type Step struct {
	CategoryID string    `json:"category_id"`
	Date       time.Time `json:"date"`
	Predicted  []int     `json:"predicted"`
	Actual     []int     `json:"actual"`
	Hits       int       `json:"hits"`
	Confidence float64   `json:"confidence"`
	History    int       `json:"history"`
}

// CategoryStats summarises the steps of one category.
type CategoryStats struct {
	Predictions int     `json:"predictions"`
	Hits        int     `json:"hits"`
	Accuracy    float64 `json:"accuracy"`
}

// Results holds backtesting results
type Results struct {
	Model             ml.ModelTag               `json:"model"`
	Steps             []Step                    `json:"steps"`
	TotalPredictions  int                       `json:"total_predictions"`
	Failures          int                       `json:"failures"`
	Trainings         int                       `json:"trainings"`
	TrainingFailures  int                       `json:"training_failures"`
	TotalHits         int                       `json:"total_hits"`
	Accuracy          float64                   `json:"accuracy"`
	RandomBaseline    float64                   `json:"random_baseline"`
	AverageConfidence float64                   `json:"average_confidence"`
	HitDistribution   []int                     `json:"hit_distribution"`
	ByCategory        map[string]*CategoryStats `json:"by_category"`
	StartTime         time.Time                 `json:"start_time"`
	EndTime           time.Time                 `json:"end_time"`
	mu                sync.RWMutex
}

// NewEngine creates a new backtesting engine
func NewEngine(predictor ml.Predictor, data *DataLoader, opts Options) *Engine {
	if opts.Warmup < 1 {
		opts.Warmup = common.DefaultMinPredictHistory
	}
	opts.Config = opts.Config.Normalize()

	return &Engine{
		predictor: predictor,
		data:      data,
		opts:      opts,
		history:   make(map[string][]draws.Draw),
		results: &Results{
			Model:           predictor.Name(),
			Steps:           make([]Step, 0),
			RandomBaseline:  float64(common.NumbersPerDraw) / common.NumberSpace * 100,
			HitDistribution: make([]int, common.NumbersPerDraw+1),
			ByCategory:      make(map[string]*CategoryStats),
		},
	}
}

// Run executes the backtest
func (e *Engine) Run(ctx context.Context) error {
	log.Info().
		Time("start", e.data.StartTime).
		Time("end", e.data.EndTime).
		Str("model", string(e.predictor.Name())).
		Int("draws", e.data.GetDataCount()).
		Msg("Starting backtest")

	e.data.Reset()
	for e.data.HasNext() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("backtest interrupted at %.1f%%: %w", e.data.GetProgress(), err)
		}

		d := e.data.Next()
		e.step(ctx, d)

		e.mu.Lock()
		e.history[d.CategoryID] = append(e.history[d.CategoryID], d)
		e.mu.Unlock()
	}

	e.calculateMetrics()
	return nil
}

// step predicts d from the draws of its category recorded before it.
func (e *Engine) step(ctx context.Context, d draws.Draw) {
	e.mu.RLock()
	past := e.history[d.CategoryID]
	e.mu.RUnlock()

	if len(past) < e.opts.Warmup {
		return
	}
	history := draws.RecentFirst(past)

	if e.needsTraining(d.CategoryID, len(past)) {
		e.train(ctx, d.CategoryID, history)
	}

	out, err := e.predictor.Predict(ctx, history, e.opts.Config)
	if err == nil {
		err = out.Validate()
	}
	if err != nil {
		e.results.mu.Lock()
		e.results.Failures++
		e.results.mu.Unlock()
		log.Warn().Err(err).Str("category", d.CategoryID).Time("date", d.Date).Msg("Prediction failed")
		return
	}

	step := Step{
		CategoryID: d.CategoryID,
		Date:       d.Date,
		Predicted:  out.Numbers,
		Actual:     d.Winning,
		Hits:       features.Shared(out.Numbers, d.Winning),
		Confidence: out.Confidence,
		History:    len(history),
	}

	e.results.mu.Lock()
	e.results.Steps = append(e.results.Steps, step)
	e.results.mu.Unlock()

	log.Debug().
		Str("category", d.CategoryID).
		Time("date", d.Date).
		Ints("predicted", out.Numbers).
		Ints("actual", d.Winning).
		Int("hits", step.Hits).
		Msg("Replayed draw")
}

// needsTraining reports whether the model must be fitted before predicting
// for category. The model holds one fitted state, so switching category
// always retrains.
func (e *Engine) needsTraining(category string, size int) bool {
	if e.lastTrainedCategory != category {
		return true
	}
	return e.opts.RetrainEvery > 0 && size-e.lastTrainedSize >= e.opts.RetrainEvery
}

func (e *Engine) train(ctx context.Context, category string, history []draws.Draw) {
	err := e.predictor.Train(ctx, history)

	e.results.mu.Lock()
	e.results.Trainings++
	if err != nil {
		e.results.TrainingFailures++
	}
	e.results.mu.Unlock()

	if err != nil {
		// An untrained model still predicts through its fallback
		log.Warn().Err(err).Str("category", category).Int("draws", len(history)).Msg("Training failed")
	}
	e.lastTrainedCategory = category
	e.lastTrainedSize = len(history)
}

// calculateMetrics calculates final performance metrics
func (e *Engine) calculateMetrics() {
	e.results.mu.Lock()
	defer e.results.mu.Unlock()

	r := e.results
	r.TotalPredictions = len(r.Steps)
	if r.TotalPredictions == 0 {
		return
	}

	records := make([]ml.PredictionRecord, 0, len(r.Steps))
	for _, s := range r.Steps {
		r.TotalHits += s.Hits
		r.HitDistribution[s.Hits]++

		stats, ok := r.ByCategory[s.CategoryID]
		if !ok {
			stats = &CategoryStats{}
			r.ByCategory[s.CategoryID] = stats
		}
		stats.Predictions++
		stats.Hits += s.Hits

		records = append(records, ml.PredictionRecord{
			CategoryID: s.CategoryID,
			DrawDate:   s.Date,
			Output:     ml.Output{Numbers: s.Predicted, Confidence: s.Confidence, Model: r.Model},
			Actual:     s.Actual,
		})
	}

	for _, p := range ml.Evaluate(records) {
		if p.Model == r.Model {
			r.Accuracy = p.Accuracy
			r.AverageConfidence = p.AverageConfidence
		}
	}
	for _, stats := range r.ByCategory {
		stats.Accuracy = accuracy(stats.Hits, stats.Predictions)
	}

	r.StartTime = r.Steps[0].Date
	r.EndTime = r.Steps[len(r.Steps)-1].Date
}

func accuracy(hits, predictions int) float64 {
	if predictions == 0 {
		return 0
	}
	return float64(hits) / float64(predictions*common.NumbersPerDraw) * 100
}

// GetResults returns the backtesting results
func (e *Engine) GetResults() *Results {
	return e.results
}
