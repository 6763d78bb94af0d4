package ml

import (
	"context"
	"math"
	"sort"
	"testing"
	"time"

	"loto-predictor/internal/common"
	"loto-predictor/internal/draws"
	"loto-predictor/internal/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// anchoredHistory puts anchor in every draw next to four rotating numbers
// below it.
func anchoredHistory(n, anchor int) []draws.Draw {
	start := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	out := make([]draws.Draw, n)
	for i := range out {
		x := (i*4)%36 + 1
		out[i] = draws.Draw{
			ID:      "d",
			Date:    start.AddDate(0, 0, -7*i),
			Winning: []int{x, x + 1, x + 2, x + 3, anchor},
		}
	}
	return out
}

func assertValidOutput(t *testing.T, out Output) {
	t.Helper()
	require.NoError(t, draws.ValidateNumbers(out.Numbers))
	assert.True(t, sort.IntsAreSorted(out.Numbers), "numbers not sorted: %v", out.Numbers)
	assert.GreaterOrEqual(t, out.Confidence, 0.0)
	assert.LessOrEqual(t, out.Confidence, 1.0)
}

func TestBoostModel_TrainRequiresHistory(t *testing.T) {
	m := NewBoostModel(DefaultBoostParams())
	err := m.Train(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.False(t, m.Trained())
}

func TestBoostModel_PredictShape(t *testing.T) {
	m := NewBoostModel(DefaultBoostParams())
	out, err := m.Predict(context.Background(), syntheticHistory(40), DefaultConfig())
	require.NoError(t, err)

	assertValidOutput(t, out)
	assert.Equal(t, ModelBoost, out.Model)
	assert.GreaterOrEqual(t, out.Confidence, 0.1)
	assert.LessOrEqual(t, out.Confidence, common.MaxConfidence)
	assert.True(t, m.Trained(), "predict trains an untrained model")
}

func TestBoostModel_AlwaysPresentRanksFirst(t *testing.T) {
	history := anchoredHistory(30, 42)
	m := NewBoostModel(DefaultBoostParams())
	require.NoError(t, m.Train(context.Background(), history))

	for _, recent := range []bool{false, true} {
		vec := features.Extract(history, features.DefaultOptions())
		scores := m.Scores(vec, recent)

		best := 0
		for i, s := range scores {
			if s > scores[best] {
				best = i
			}
		}
		assert.Equal(t, 42, best+1, "weightRecent=%v", recent)

		out, err := m.Predict(context.Background(), history, Config{WeightRecent: recent})
		require.NoError(t, err)
		assert.Contains(t, out.Numbers, 42)
	}
}

func TestBoostModel_TrainFitsFrequencies(t *testing.T) {
	history := anchoredHistory(60, 42)
	m := NewBoostModel(DefaultBoostParams())

	vec := features.Extract(history, features.DefaultOptions())
	counts, target := vec.Frequency, vec.NormalizedFrequency()
	w0, b0 := m.initialState()
	startLoss := mse(w0, b0, counts, target)
	require.Greater(t, startLoss, DefaultBoostParams().LossTarget)

	require.NoError(t, m.Train(context.Background(), history))

	assert.Less(t, m.Loss(), startLoss)
	assert.Less(t, m.Loss(), DefaultBoostParams().LossTarget)
	assert.NotEqual(t, w0, m.weights)
	assert.NotEqual(t, b0, m.biases)

	// the anchor is in every draw, so its fitted value approaches 1
	fitted := m.weights[41]*counts[41] + m.biases[41]
	assert.InDelta(t, 1.0, fitted, 0.05)
}

func TestBoostModel_TrainStepsAtLeastOnce(t *testing.T) {
	params := DefaultBoostParams()
	params.LossTarget = math.Inf(1)
	m := NewBoostModel(params)
	w0, _ := m.initialState()

	require.NoError(t, m.Train(context.Background(), syntheticHistory(20)))
	assert.NotEqual(t, w0, m.weights)
}

func TestStepSize(t *testing.T) {
	assert.Equal(t, 0.01, stepSize(0.01, 0))
	assert.Equal(t, 0.01, stepSize(0.01, 40))
	assert.InDelta(t, 0.5/200.1, stepSize(0.01, 200), 1e-12)
}

// tiedHistory has 1..5 in the five most recent of ten-draw runs and 86..90 in
// the five oldest, so both groups share count and co-occurrence and differ only
// by gap.
func tiedHistory() []draws.Draw {
	const n = 40
	out := make([]draws.Draw, n)
	for i := range out {
		switch {
		case i < 10:
			out[i].Winning = []int{1, 2, 3, 4, 5}
		case i >= n-10:
			out[i].Winning = []int{86, 87, 88, 89, 90}
		default:
			x := ((i-10)*5)%60 + 10
			out[i].Winning = []int{x, x + 1, x + 2, x + 3, x + 4}
		}
	}
	return out
}

func TestBoostModel_RecencyBreaksFrequencyTies(t *testing.T) {
	history := tiedHistory()
	params := DefaultBoostParams()
	params.LossTarget = 0
	m := NewBoostModel(params)
	require.NoError(t, m.Train(context.Background(), history))

	vec := features.Extract(history, features.DefaultOptions())
	plain := m.Scores(vec, false)
	recent := m.Scores(vec, true)

	for i := 0; i < 5; i++ {
		fresh, stale := i, 85+i
		assert.InDelta(t, plain[fresh], plain[stale], 0.01, "number %d vs %d", fresh+1, stale+1)
		assert.Greater(t, recent[fresh]-recent[stale], 0.1, "number %d vs %d", fresh+1, stale+1)
	}

	out, err := m.Predict(context.Background(), history, Config{WeightRecent: true})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, out.Numbers)
}

func TestBoostModel_Idempotent(t *testing.T) {
	history := syntheticHistory(25)
	m := NewBoostModel(DefaultBoostParams())
	require.NoError(t, m.Train(context.Background(), history))

	first, err := m.Predict(context.Background(), history, DefaultConfig())
	require.NoError(t, err)
	second, err := m.Predict(context.Background(), history, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, first.Numbers, second.Numbers)
	assert.Equal(t, first.Confidence, second.Confidence)
}

func TestBoostModel_SeedReproducible(t *testing.T) {
	history := syntheticHistory(25)
	a := NewBoostModel(DefaultBoostParams())
	b := NewBoostModel(DefaultBoostParams())

	outA, err := a.Predict(context.Background(), history, DefaultConfig())
	require.NoError(t, err)
	outB, err := b.Predict(context.Background(), history, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, outA.Numbers, outB.Numbers)
	assert.Equal(t, outA.Confidence, outB.Confidence)
}

func TestBoostModel_TrainHonoursContext(t *testing.T) {
	params := DefaultBoostParams()
	params.LossTarget = 0
	m := NewBoostModel(params)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Train(ctx, syntheticHistory(20))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSpreadConfidence(t *testing.T) {
	assert.Equal(t, 0.1, spreadConfidence(nil))
	assert.Equal(t, 0.1, spreadConfidence([]float64{0, 0, 0, 0, 0}))
	assert.Equal(t, 0.1, spreadConfidence([]float64{5, 5, 5, 5, 5}))
	assert.InDelta(t, 0.5, spreadConfidence([]float64{10, 9, 8, 7, 5}), 1e-12)
	assert.Equal(t, common.MaxConfidence, spreadConfidence([]float64{10, 9, 8, 7, 0}))
}
