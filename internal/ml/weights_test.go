package ml

import (
	"math"
	"testing"

	"loto-predictor/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeights_Normalized(t *testing.T) {
	w, err := Weights{Boost: 2, Forest: 1, Sequence: 1}.Normalized()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, w.Boost, 1e-12)
	assert.NoError(t, w.Validate())

	_, err = Weights{}.Normalized()
	assert.ErrorIs(t, err, ErrInvalidWeights)

	_, err = Weights{Boost: -1, Forest: 1, Sequence: 1}.Normalized()
	assert.ErrorIs(t, err, ErrInvalidWeights)

	_, err = Weights{Boost: math.Inf(1), Forest: 1}.Normalized()
	assert.ErrorIs(t, err, ErrInvalidWeights)
}

func TestWeights_Validate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())
	assert.InDelta(t, 1.0, DefaultWeights().Sum(), common.WeightTolerance)
	assert.Error(t, Weights{Boost: 0.5, Forest: 0.5, Sequence: 0.5}.Validate())
	assert.Error(t, Weights{Boost: math.NaN(), Forest: 1}.Validate())
}

func TestWeights_Get(t *testing.T) {
	w := DefaultWeights()
	assert.Equal(t, common.DefaultWeightForest, w.Get(ModelForest))
	assert.Zero(t, w.Get(ModelHybrid))
	assert.Equal(t, 0.9, w.with(ModelSequence, 0.9).Sequence)
}

func TestParseModelTag(t *testing.T) {
	tests := []struct {
		in   string
		want ModelTag
	}{
		{"", ModelHybrid},
		{"hybrid", ModelHybrid},
		{"XGBoost", ModelBoost},
		{"random_forest", ModelForest},
		{" lstm ", ModelSequence},
		{"sequence", ModelSequence},
	}
	for _, tt := range tests {
		got, err := ParseModelTag(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseModelTag("neural")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestConfig_Normalize(t *testing.T) {
	c := Config{ConfidenceThreshold: 1.7, LookbackDays: 2}.Normalize()
	assert.Equal(t, ModelHybrid, c.Model)
	assert.Equal(t, 1.0, c.ConfidenceThreshold)
	assert.Equal(t, common.MinLookbackDays, c.LookbackDays)

	c = Config{Model: ModelForest, ConfidenceThreshold: -0.2, LookbackDays: 90}.Normalize()
	assert.Equal(t, ModelForest, c.Model)
	assert.Zero(t, c.ConfidenceThreshold)
	assert.Equal(t, 90, c.LookbackDays)
}

func TestFallbackPredictor(t *testing.T) {
	fb := NewFallbackPredictor(2, 0.4, ModelHybrid)

	history := syntheticHistory(5, 1, 2, 3, 4, 5)
	history[0].Winning = []int{1, 2, 3, 80, 90}
	history[1].Winning = []int{1, 2, 60, 61, 80}
	out := fb.Predict(history)
	assert.Equal(t, []int{1, 2, 3, 60, 80}, out.Numbers)
	assert.Equal(t, 0.4, out.Confidence)
	assert.Equal(t, 2.0, fb.GetMetrics()[1])

	fb.Reset()
	assert.Empty(t, fb.GetMetrics())

	// an empty history pads with the lowest numbers
	assert.Equal(t, []int{1, 2, 3, 4, 5}, fb.Predict(nil).Numbers)
}
