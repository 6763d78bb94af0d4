package ml

import (
	"context"
	"testing"

	"loto-predictor/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceModel_TrainNeedsWindowPlusTen(t *testing.T) {
	m := NewSequenceModel(DefaultSequenceParams())
	assert.Equal(t, 20, m.MinHistory())

	err := m.Train(context.Background(), syntheticHistory(19))
	var insufficient *InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 19, insufficient.Have)
	assert.Equal(t, 20, insufficient.Need)
	assert.False(t, m.Trained())
}

func TestSequenceModel_FallbackOnShortHistory(t *testing.T) {
	m := NewSequenceModel(DefaultSequenceParams())
	history := syntheticHistory(12, 3, 9, 27, 50, 81)

	out, err := m.Predict(context.Background(), history, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, ModelSequence, out.Model)
	assert.Equal(t, common.DefaultSequenceConfidence, out.Confidence)
	assert.Equal(t, []int{3, 9, 27, 50, 81}, out.Numbers)
}

func TestSequenceModel_LearnsConstantHistory(t *testing.T) {
	history := syntheticHistory(60, 7, 23, 45, 61, 88)
	m := NewSequenceModel(DefaultSequenceParams())
	require.NoError(t, m.Train(context.Background(), history))
	assert.Less(t, m.Loss(), common.DefaultSequenceLossTarget)

	out, err := m.Predict(context.Background(), history, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, []int{7, 23, 45, 61, 88}, out.Numbers)
	assert.Greater(t, out.Confidence, 0.9)
	assert.LessOrEqual(t, out.Confidence, common.MaxConfidence)

	// a threshold nobody clears falls back to the unfiltered ranking
	strict, err := m.Predict(context.Background(), history, Config{ConfidenceThreshold: 1})
	require.NoError(t, err)
	assert.Equal(t, out.Numbers, strict.Numbers)
}

func TestSequenceModel_NotConvergedKeepsState(t *testing.T) {
	params := DefaultSequenceParams()
	params.LossTarget = 1e-9
	params.Epochs = 2
	m := NewSequenceModel(params)

	err := m.Train(context.Background(), syntheticHistory(40))
	assert.ErrorIs(t, err, ErrNotConverged)
	assert.True(t, m.Trained())

	probs, err := m.Probabilities(syntheticHistory(40))
	require.NoError(t, err)
	assert.Len(t, probs, common.NumberSpace)
}

func TestSequenceModel_ProbabilitiesRequireTraining(t *testing.T) {
	m := NewSequenceModel(DefaultSequenceParams())
	_, err := m.Probabilities(syntheticHistory(30))
	assert.ErrorIs(t, err, ErrNotTrained)

	_, err = m.Probabilities(syntheticHistory(3))
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestWindowSignals(t *testing.T) {
	window := syntheticHistory(4, 1, 2, 3, 4, 5)
	window[3].Winning = []int{10, 11, 12, 13, 14}

	presence, rate := windowSignals(window)
	// weights 4/4, 3/4, 2/4, 1/4 normalised by 2.5
	assert.InDelta(t, 2.25/2.5, presence[0], 1e-12)
	assert.InDelta(t, 0.25/2.5, presence[9], 1e-12)
	assert.InDelta(t, 0.75, rate[0], 1e-12)
	assert.InDelta(t, 0.25, rate[9], 1e-12)
	assert.Zero(t, presence[89])
}
