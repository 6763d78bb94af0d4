package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"loto-predictor/internal/common"
	"loto-predictor/internal/draws"
	"loto-predictor/internal/features"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// HybridConfig configures the aggregator.
type HybridConfig struct {
	// Timeout bounds each sub-model call. Zero disables the bound.
	Timeout            time.Duration
	FallbackWindow     int
	FallbackConfidence float64
	DefaultWeights     Weights
}

// DefaultHybridConfig returns the standard aggregator settings.
func DefaultHybridConfig() HybridConfig {
	return HybridConfig{
		Timeout:            30 * time.Second,
		FallbackWindow:     common.DefaultFallbackWindow,
		FallbackConfidence: common.DefaultFallbackConfidence,
		DefaultWeights:     DefaultWeights(),
	}
}

// Hybrid runs the three base models concurrently and blends their outputs
// with adaptive weights.
type Hybrid struct {
	mu       sync.RWMutex
	weights  Weights
	models   []Predictor
	store    WeightStore
	fallback *FallbackPredictor
	config   HybridConfig
	metrics  MetricsInterface
}

// NewHybrid builds the aggregator over boost, forest and sequence predictors
// and loads the persisted weights. Missing, unreadable or invalid weights fall
// back to the defaults.
func NewHybrid(boost, forest, sequence Predictor, store WeightStore, config HybridConfig, metrics MetricsInterface) *Hybrid {
	if config.DefaultWeights.Validate() != nil {
		config.DefaultWeights = DefaultWeights()
	}
	if config.FallbackWindow <= 0 {
		config.FallbackWindow = common.DefaultFallbackWindow
	}
	h := &Hybrid{
		weights:  config.DefaultWeights,
		models:   []Predictor{boost, forest, sequence},
		store:    store,
		fallback: NewFallbackPredictor(config.FallbackWindow, config.FallbackConfidence, ModelHybrid),
		config:   config,
		metrics:  metricsOrNoop(metrics),
	}

	if store != nil {
		w, found, err := store.LoadWeights()
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("Failed to load hybrid weights, using defaults")
		case !found:
			log.Info().Msg("No stored hybrid weights, using defaults")
		case w.Validate() != nil:
			log.Warn().Interface("weights", w).Msg("Stored hybrid weights invalid, using defaults")
		default:
			h.weights = w
		}
	}
	h.metrics.WeightsSet(h.weights.Boost, h.weights.Forest, h.weights.Sequence)
	return h
}

// Name implements Predictor.
func (h *Hybrid) Name() ModelTag { return ModelHybrid }

// Model returns the base predictor for tag, or nil for the hybrid itself.
func (h *Hybrid) Model(tag ModelTag) Predictor {
	for i, t := range BaseModels {
		if t == tag {
			return h.models[i]
		}
	}
	return nil
}

// Weights returns a copy of the current weights.
func (h *Hybrid) Weights() Weights {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.weights
}

// Predict queries every base model concurrently, treats failures and invalid
// outputs as unavailable and blends the rest. With nothing available the
// frequency fallback over the recent draws is returned.
func (h *Hybrid) Predict(ctx context.Context, history []draws.Draw, cfg Config) (Output, error) {
	results := h.collect(ctx, history, cfg)
	adjusted, available := AdjustWeights(h.Weights(), results)

	if available == 0 || adjusted.Sum() == 0 {
		log.Warn().Int("draws", len(history)).Msg("No model available, using frequency fallback")
		h.metrics.FallbackUseInc(string(ModelHybrid))
		return h.fallback.Predict(history), nil
	}

	out := Aggregate(results, adjusted)
	out.Contributions = contributions(results, adjusted)
	return out, nil
}

// collect runs every base model and keeps the valid outputs, indexed like
// BaseModels. A failing model never cancels the others.
func (h *Hybrid) collect(ctx context.Context, history []draws.Draw, cfg Config) []*Output {
	results := make([]*Output, len(h.models))
	var g errgroup.Group
	for i, m := range h.models {
		if m == nil {
			continue
		}
		i, m := i, m
		g.Go(func() error {
			tag := BaseModels[i]
			start := time.Now()
			out, err := h.callModel(ctx, m, history, cfg)
			h.metrics.LatencyObserve(string(tag), time.Since(start).Seconds())
			if err == nil {
				err = out.Validate()
			}
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					h.metrics.TimeoutInc(string(tag))
				}
				h.metrics.FailureInc(string(tag))
				log.Warn().Err(err).Str("model", string(tag)).Msg("Model unavailable for hybrid prediction")
				return nil
			}
			results[i] = &out
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// callModel runs one prediction under the per-model timeout and converts a
// panic into an error.
func (h *Hybrid) callModel(ctx context.Context, m Predictor, history []draws.Draw, cfg Config) (Output, error) {
	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	type result struct {
		out Output
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%s panicked: %v", m.Name(), r)}
			}
		}()
		out, err := m.Predict(ctx, history, cfg)
		done <- result{out: out, err: err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		return Output{}, ctx.Err()
	}
}

// AdjustWeights scales each available model's base weight by its reported
// confidence, zeroes unavailable models and renormalises. It returns the
// adjusted weights and the number of available models. When nothing is
// available the result is {1, 0, 0}; when the available weight is exactly
// zero the weights stay all-zero.
func AdjustWeights(base Weights, results []*Output) (Weights, int) {
	var adjusted Weights
	available := 0
	for i, tag := range BaseModels {
		if i < len(results) && results[i] != nil {
			adjusted = adjusted.with(tag, base.Get(tag)*results[i].Confidence)
			available++
		}
	}
	if available == 0 {
		return Weights{Boost: 1}, 0
	}
	if normalized, err := adjusted.Normalized(); err == nil {
		adjusted = normalized
	}
	return adjusted, available
}

// Aggregate blends available outputs: each proposed number collects the weight
// of its proposer and the five heaviest win, ties to the lower number.
// Confidence is the weighted model confidence plus a consensus bonus, capped.
func Aggregate(results []*Output, weights Weights) Output {
	votes := make([]float64, common.NumberSpace)
	var confidence float64
	var proposals [][]int
	for i, tag := range BaseModels {
		if i >= len(results) || results[i] == nil {
			continue
		}
		out := results[i]
		proposals = append(proposals, out.Numbers)
		w := weights.Get(tag)
		if w <= 0 {
			continue
		}
		for _, n := range out.Numbers {
			votes[n-1] += w
		}
		confidence += w * out.Confidence
	}

	confidence += ConsensusBonus(proposals)
	return Output{
		Numbers:     topNumbers(votes, common.NumbersPerDraw),
		Confidence:  clamp(confidence, 0, common.MaxConfidence),
		Model:       ModelHybrid,
		GeneratedAt: time.Now().UTC(),
	}
}

// ConsensusBonus rewards agreement between proposals: the average pairwise
// overlap scaled to at most 0.2. Fewer than two proposals earn nothing.
func ConsensusBonus(proposals [][]int) float64 {
	var total float64
	pairs := 0
	for i := 0; i < len(proposals); i++ {
		for j := i + 1; j < len(proposals); j++ {
			total += float64(features.Shared(proposals[i], proposals[j]))
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	avg := total / float64(pairs)
	return math.Min(0.2, avg/common.NumbersPerDraw*0.2)
}

func contributions(results []*Output, weights Weights) []Contribution {
	out := make([]Contribution, 0, len(BaseModels))
	for i, tag := range BaseModels {
		c := Contribution{Model: tag, Weight: weights.Get(tag)}
		if i < len(results) && results[i] != nil {
			c.Available = true
			c.Numbers = results[i].Numbers
			c.Confidence = results[i].Confidence
		}
		out = append(out, c)
	}
	return out
}

// Train trains every base model and fails only when none succeeded.
func (h *Hybrid) Train(ctx context.Context, history []draws.Draw) error {
	if h.TrainAll(ctx, history) == 0 {
		return fmt.Errorf("%w: no model trained", ErrModelUnavailable)
	}
	return nil
}

// TrainAll trains the base models concurrently and returns how many finished
// cleanly. A model ending above its loss target counts as a failure but keeps
// its fitted state.
func (h *Hybrid) TrainAll(ctx context.Context, history []draws.Draw) int {
	var succeeded atomic.Int32
	var g errgroup.Group
	for i, m := range h.models {
		if m == nil {
			continue
		}
		i, m := i, m
		g.Go(func() error {
			tag := string(BaseModels[i])
			err := safeTrain(ctx, m, history)
			switch {
			case err == nil:
				succeeded.Add(1)
				h.metrics.TrainingInc(tag, TrainOK)
				log.Info().Str("model", tag).Int("draws", len(history)).Msg("Model trained")
			case errors.Is(err, ErrNotConverged):
				h.metrics.TrainingInc(tag, TrainShort)
				log.Warn().Err(err).Str("model", tag).Msg("Model training fell short of its loss target")
			case errors.Is(err, context.DeadlineExceeded):
				h.metrics.TrainingInc(tag, TrainTimedOut)
				log.Error().Err(err).Str("model", tag).Msg("Model training timed out")
			default:
				h.metrics.TrainingInc(tag, TrainFailed)
				log.Error().Err(err).Str("model", tag).Msg("Model training failed")
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(succeeded.Load())
}

func safeTrain(ctx context.Context, m Predictor, history []draws.Draw) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", m.Name(), r)
		}
	}()
	return m.Train(ctx, history)
}

// UpdateWeights raises the weight of tag by 0.1 x accuracy/100, renormalises
// and persists. Accuracy is clamped to [0,100]; the hybrid tag only
// renormalises. A failed update leaves the current weights untouched. A
// persistence failure is logged and the in-memory weights still change.
func (h *Hybrid) UpdateWeights(tag ModelTag, accuracy float64) error {
	if !tag.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownModel, tag)
	}
	if math.IsNaN(accuracy) {
		return fmt.Errorf("%w: accuracy is NaN", ErrInvalidWeights)
	}
	accuracy = clamp(accuracy, 0, 100)

	h.mu.Lock()
	defer h.mu.Unlock()

	next := h.weights
	if tag != ModelHybrid {
		next = next.with(tag, next.Get(tag)+0.1*accuracy/100)
	}
	next, err := next.Normalized()
	if err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}

	h.weights = next
	h.persistLocked()

	log.Info().
		Str("model", string(tag)).
		Float64("accuracy", accuracy).
		Float64("boost", next.Boost).
		Float64("forest", next.Forest).
		Float64("sequence", next.Sequence).
		Msg("Hybrid weights updated")
	return nil
}

// ResetWeights restores and persists the default weights.
func (h *Hybrid) ResetWeights() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.weights = h.config.DefaultWeights
	h.persistLocked()
}

func (h *Hybrid) persistLocked() {
	h.metrics.WeightsSet(h.weights.Boost, h.weights.Forest, h.weights.Sequence)
	if h.store == nil {
		return
	}
	if err := h.store.PersistWeights(h.weights); err != nil {
		h.metrics.PersistenceFailureInc()
		log.Error().Err(err).Msg("Failed to persist hybrid weights")
	}
}
