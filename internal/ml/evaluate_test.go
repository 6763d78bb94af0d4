package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(tag ModelTag, confidence float64, numbers, actual []int) PredictionRecord {
	return PredictionRecord{
		Output: Output{Model: tag, Numbers: numbers, Confidence: confidence},
		Actual: actual,
	}
}

func TestEvaluate(t *testing.T) {
	records := []PredictionRecord{
		record(ModelBoost, 0.2, []int{1, 2, 3, 4, 5}, []int{1, 2, 3, 40, 50}),
		record(ModelBoost, 0.4, []int{1, 2, 3, 4, 5}, []int{60, 61, 62, 63, 64}),
		record(ModelBoost, 0.6, []int{1, 2, 3, 4, 5}, nil),
		record(ModelForest, 0.5, []int{10, 20, 30, 40, 50}, []int{10, 20, 30, 40, 50}),
		record(ModelTag("legacy"), 0.9, []int{1, 2, 3, 4, 5}, []int{1, 2, 3, 4, 5}),
	}

	perfs := Evaluate(records)
	require.Len(t, perfs, 4)

	boost := perfs[0]
	assert.Equal(t, ModelBoost, boost.Model)
	assert.Equal(t, 3, boost.TotalPredictions)
	assert.Equal(t, 2, boost.Evaluated)
	assert.Equal(t, 3, boost.CorrectNumbers)
	assert.InDelta(t, 30.0, boost.Accuracy, 1e-12)
	assert.InDelta(t, 0.4, boost.AverageConfidence, 1e-12)

	assert.InDelta(t, 100.0, perfs[1].Accuracy, 1e-12)

	seq := perfs[2]
	assert.Zero(t, seq.TotalPredictions)
	assert.Zero(t, seq.Accuracy)
	assert.Zero(t, seq.AverageConfidence)
}

func TestBest(t *testing.T) {
	tag, acc := Best(Evaluate(nil))
	assert.Equal(t, ModelHybrid, tag)
	assert.Zero(t, acc)

	perfs := Evaluate([]PredictionRecord{
		record(ModelSequence, 0.3, []int{1, 2, 3, 4, 5}, []int{1, 2, 30, 40, 50}),
		record(ModelForest, 0.3, []int{1, 2, 3, 4, 5}, []int{1, 2, 30, 40, 50}),
		record(ModelHybrid, 0.3, []int{1, 2, 3, 4, 5}, []int{1, 20, 30, 40, 50}),
	})
	tag, acc = Best(perfs)
	// equal accuracy keeps the earlier model
	assert.Equal(t, ModelForest, tag)
	assert.InDelta(t, 40.0, acc, 1e-12)
}
