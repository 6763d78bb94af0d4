package ml

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"loto-predictor/internal/common"
	"loto-predictor/internal/draws"
	"loto-predictor/internal/features"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
)

// SequenceParams tune the sequence model.
type SequenceParams struct {
	Window       int
	Epochs       int
	LearningRate float64
	LossTarget   float64
	// MinExtra is the number of training windows required beyond Window.
	MinExtra           int
	FallbackConfidence float64
	Seed               int64
}

// DefaultSequenceParams returns the standard sequence settings.
func DefaultSequenceParams() SequenceParams {
	return SequenceParams{
		Window:             common.DefaultSequenceWindow,
		Epochs:             common.DefaultSequenceEpochs,
		LearningRate:       common.DefaultSequenceRate,
		LossTarget:         common.DefaultSequenceLossTarget,
		MinExtra:           10,
		FallbackConfidence: common.DefaultSequenceConfidence,
		Seed:               common.DefaultSeed + 2,
	}
}

// SequenceModel maps the last Window draws to a probability per number. Each
// number has a logistic unit over two window signals: its decayed presence and
// its raw rate of appearance.
type SequenceModel struct {
	mu       sync.RWMutex
	params   SequenceParams
	presence []float64
	rate     []float64
	bias     []float64
	trained  bool
	loss     float64
	fallback *FallbackPredictor
}

// NewSequenceModel creates an untrained sequence model.
func NewSequenceModel(params SequenceParams) *SequenceModel {
	if params.Window <= 0 {
		params.Window = common.DefaultSequenceWindow
	}
	if params.Epochs <= 0 {
		params.Epochs = common.DefaultSequenceEpochs
	}
	if params.LearningRate <= 0 {
		params.LearningRate = common.DefaultSequenceRate
	}
	return &SequenceModel{
		params:   params,
		fallback: NewFallbackPredictor(0, params.FallbackConfidence, ModelSequence),
	}
}

// Name implements Predictor.
func (m *SequenceModel) Name() ModelTag { return ModelSequence }

// MinHistory is the shortest history Train accepts.
func (m *SequenceModel) MinHistory() int {
	return m.params.Window + m.params.MinExtra
}

type sequenceSample struct {
	presence []float64
	rate     []float64
	target   []float64
}

// windowSignals summarises a most-recent-first window of draws. Presence
// weights position t by (L-t)/L and is normalised to [0,1].
func windowSignals(window []draws.Draw) ([]float64, []float64) {
	presence := make([]float64, common.NumberSpace)
	rate := make([]float64, common.NumberSpace)
	l := float64(len(window))
	var norm float64
	for t, d := range window {
		w := (l - float64(t)) / l
		norm += w
		ind := features.Indicator(d.Winning)
		floats.AddScaled(presence, w, ind)
		floats.Add(rate, ind)
	}
	if norm > 0 {
		floats.Scale(1/norm, presence)
	}
	if l > 0 {
		floats.Scale(1/l, rate)
	}
	return presence, rate
}

// Train fits the logistic units with full-batch gradient descent on every
// (window, next draw) pair of history. When the final loss stays at or above
// the target the fitted state is kept and ErrNotConverged is returned.
func (m *SequenceModel) Train(ctx context.Context, history []draws.Draw) error {
	l := m.params.Window
	if len(history) < m.MinHistory() {
		return &InsufficientDataError{Component: string(ModelSequence), Have: len(history), Need: m.MinHistory()}
	}

	samples := make([]sequenceSample, 0, len(history)-l)
	for i := 0; i+l < len(history); i++ {
		p, r := windowSignals(history[i+1 : i+1+l])
		samples = append(samples, sequenceSample{presence: p, rate: r, target: features.Indicator(history[i].Winning)})
	}

	rng := rand.New(rand.NewSource(m.params.Seed))
	wp := make([]float64, common.NumberSpace)
	wr := make([]float64, common.NumberSpace)
	b := make([]float64, common.NumberSpace)
	for j := range wp {
		wp[j] = 0.1 * (2*rng.Float64() - 1)
		wr[j] = 0.1 * (2*rng.Float64() - 1)
	}

	gp := make([]float64, common.NumberSpace)
	gr := make([]float64, common.NumberSpace)
	gb := make([]float64, common.NumberSpace)
	n := float64(len(samples))
	loss := math.Inf(1)

	for epoch := 0; epoch < m.params.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for j := range gp {
			gp[j], gr[j], gb[j] = 0, 0, 0
		}
		var total float64
		for _, s := range samples {
			for j := 0; j < common.NumberSpace; j++ {
				p := sigmoid(wp[j]*s.presence[j] + wr[j]*s.rate[j] + b[j])
				total += crossEntropy(p, s.target[j])
				d := p - s.target[j]
				gp[j] += d * s.presence[j]
				gr[j] += d * s.rate[j]
				gb[j] += d
			}
		}
		loss = total / (n * common.NumberSpace)
		floats.AddScaled(wp, -m.params.LearningRate/n, gp)
		floats.AddScaled(wr, -m.params.LearningRate/n, gr)
		floats.AddScaled(b, -m.params.LearningRate/n, gb)
	}

	m.mu.Lock()
	m.presence, m.rate, m.bias = wp, wr, b
	m.trained = true
	m.loss = loss
	m.mu.Unlock()

	log.Debug().
		Int("windows", len(samples)).
		Float64("loss", loss).
		Msg("Sequence model trained")

	if loss >= m.params.LossTarget {
		return ErrNotConverged
	}
	return nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func crossEntropy(p, y float64) float64 {
	const eps = 1e-12
	p = clamp(p, eps, 1-eps)
	return -(y*math.Log(p) + (1-y)*math.Log(1-p))
}

// Trained reports whether the model holds fitted parameters.
func (m *SequenceModel) Trained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trained
}

// Loss returns the final training loss.
func (m *SequenceModel) Loss() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loss
}

// Probabilities returns the per-number probabilities for the window at the head
// of history, indexed by number-1.
func (m *SequenceModel) Probabilities(history []draws.Draw) ([]float64, error) {
	if len(history) < m.params.Window {
		return nil, &InsufficientDataError{Component: string(ModelSequence), Have: len(history), Need: m.params.Window}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.trained {
		return nil, ErrNotTrained
	}
	pres, rate := windowSignals(history[:m.params.Window])
	probs := make([]float64, common.NumberSpace)
	for j := range probs {
		probs[j] = sigmoid(m.presence[j]*pres[j] + m.rate[j]*rate[j] + m.bias[j])
	}
	return probs, nil
}

// Predict returns the five most probable numbers above the confidence threshold,
// or the five most probable overall when fewer clear it. Without a usable model
// it falls back to frequency over the history.
func (m *SequenceModel) Predict(ctx context.Context, history []draws.Draw, cfg Config) (Output, error) {
	if !m.Trained() && len(history) >= m.MinHistory() {
		if err := m.Train(ctx, history); err != nil && !errors.Is(err, ErrNotConverged) {
			log.Debug().Err(err).Msg("Sequence model training failed, using fallback")
		}
	}

	probs, err := m.Probabilities(history)
	if err != nil {
		return m.fallback.Predict(history), nil
	}

	filtered := make([]float64, len(probs))
	passing := 0
	for j, p := range probs {
		if p >= cfg.ConfidenceThreshold {
			filtered[j] = p
			passing++
		} else {
			filtered[j] = math.Inf(-1)
		}
	}
	ranking := probs
	if passing >= common.NumbersPerDraw {
		ranking = filtered
	}

	numbers := topNumbers(ranking, common.NumbersPerDraw)
	var mean float64
	for _, n := range numbers {
		mean += probs[n-1]
	}
	mean /= float64(len(numbers))

	return Output{
		Numbers:     numbers,
		Confidence:  math.Min(common.MaxConfidence, mean),
		Model:       ModelSequence,
		GeneratedAt: time.Now().UTC(),
	}, nil
}
