package ml

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"loto-predictor/internal/common"
	"loto-predictor/internal/draws"
	"loto-predictor/internal/features"

	"github.com/rs/zerolog/log"
)

// BoostParams tune the frequency-boosted model.
type BoostParams struct {
	LearningRate       float64
	Iterations         int
	LossTarget         float64
	RecencyDecay       float64
	CoOccurrenceWeight float64
	TrendWindow        int
	Seed               int64
}

// DefaultBoostParams returns the standard boost settings.
func DefaultBoostParams() BoostParams {
	return BoostParams{
		LearningRate:       common.DefaultBoostLearningRate,
		Iterations:         common.DefaultBoostIterations,
		LossTarget:         common.DefaultBoostLossTarget,
		RecencyDecay:       common.DefaultRecencyDecay,
		CoOccurrenceWeight: common.DefaultCoOccurrenceWeight,
		TrendWindow:        common.DefaultTrendWindow,
		Seed:               common.DefaultSeed,
	}
}

// BoostModel scores each number with a per-number linear model mapping its
// draw count to its normalised frequency, adjusted for recency and
// co-occurrence.
type BoostModel struct {
	mu      sync.RWMutex
	params  BoostParams
	weights []float64
	biases  []float64
	trained bool
	loss    float64
}

// NewBoostModel creates an untrained boost model.
func NewBoostModel(params BoostParams) *BoostModel {
	if params.Iterations <= 0 {
		params.Iterations = common.DefaultBoostIterations
	}
	if params.LearningRate <= 0 {
		params.LearningRate = common.DefaultBoostLearningRate
	}
	if params.RecencyDecay <= 0 {
		params.RecencyDecay = common.DefaultRecencyDecay
	}
	m := &BoostModel{params: params}
	m.weights, m.biases = m.initialState()
	return m
}

// Name implements Predictor.
func (m *BoostModel) Name() ModelTag { return ModelBoost }

// initialState draws weights in [0,1) and biases in [0,0.1) from the seed.
func (m *BoostModel) initialState() ([]float64, []float64) {
	rng := rand.New(rand.NewSource(m.params.Seed))
	w := make([]float64, common.NumberSpace)
	b := make([]float64, common.NumberSpace)
	for i := range w {
		w[i] = rng.Float64()
		b[i] = 0.1 * rng.Float64()
	}
	return w, b
}

// Train fits every per-number model so that weight*count+bias approaches the
// number's normalised frequency. Each iteration applies one update before the
// early-stop check on the mean squared loss. Training restarts from the seeded
// state so repeated calls are reproducible.
func (m *BoostModel) Train(ctx context.Context, history []draws.Draw) error {
	if len(history) < 1 {
		return &InsufficientDataError{Component: string(ModelBoost), Have: len(history), Need: 1}
	}

	vec := features.Extract(history, features.Options{TrendWindow: m.params.TrendWindow})
	counts, target := vec.Frequency, vec.NormalizedFrequency()
	w, b := m.initialState()

	var loss float64
	iterations := 0
	for iterations < m.params.Iterations {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i, x := range counts {
			grad := 2 * (w[i]*x + b[i] - target[i])
			lr := stepSize(m.params.LearningRate, x)
			w[i] -= lr * grad
			b[i] -= lr * grad * 0.1
		}
		iterations++
		loss = mse(w, b, counts, target)
		if loss < m.params.LossTarget {
			break
		}
	}

	m.mu.Lock()
	m.weights, m.biases = w, b
	m.trained = true
	m.loss = loss
	m.mu.Unlock()

	log.Debug().
		Int("draws", len(history)).
		Int("iterations", iterations).
		Float64("loss", loss).
		Msg("Boost model trained")
	return nil
}

// stepSize caps the learning rate of a number seen count times so that its
// update never overshoots the target.
func stepSize(lr, count float64) float64 {
	return math.Min(lr, 0.5/(count+0.1))
}

func mse(w, b, counts, target []float64) float64 {
	var sum float64
	for i, x := range counts {
		d := w[i]*x + b[i] - target[i]
		sum += d * d
	}
	return sum / float64(len(counts))
}

// Loss returns the mean squared loss reached by the last training.
func (m *BoostModel) Loss() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loss
}

// Trained reports whether Train has completed at least once.
func (m *BoostModel) Trained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trained
}

// Predict ranks numbers by their boosted score and returns the top five.
// An untrained model is trained on history first.
func (m *BoostModel) Predict(ctx context.Context, history []draws.Draw, cfg Config) (Output, error) {
	if !m.Trained() {
		if err := m.Train(ctx, history); err != nil {
			return Output{}, err
		}
	}

	vec := features.Extract(history, features.Options{
		TrendWindow:    m.params.TrendWindow,
		IncludeMachine: cfg.IncludeMachineNumbers,
	})
	scores := m.Scores(vec, cfg.WeightRecent)

	top := rankedScores(scores, common.NumbersPerDraw)
	return Output{
		Numbers:     topNumbers(scores, common.NumbersPerDraw),
		Confidence:  spreadConfidence(top),
		Model:       ModelBoost,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// Scores computes the per-number score of a feature vector, indexed by number-1.
func (m *BoostModel) Scores(vec *features.Vector, weightRecent bool) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	scores := make([]float64, common.NumberSpace)
	for i := range scores {
		s := m.weights[i]*vec.Frequency[i] + m.biases[i]
		if weightRecent {
			s *= math.Exp(-float64(vec.Gap[i]) / m.params.RecencyDecay)
		}
		s += m.params.CoOccurrenceWeight * vec.CoOccurrenceSum(i+1)
		if math.IsNaN(s) {
			s = math.Inf(-1)
		}
		scores[i] = s
	}
	return scores
}

// spreadConfidence is the relative gap between the best and fifth best score,
// clamped to [0.1, 0.95].
func spreadConfidence(top []float64) float64 {
	if len(top) == 0 {
		return 0.1
	}
	first, last := top[0], top[len(top)-1]
	if first <= 0 || math.IsNaN(first) || math.IsInf(first, 0) || math.IsInf(last, 0) {
		return 0.1
	}
	return clamp((first-last)/first, 0.1, common.MaxConfidence)
}
