package ml

import (
	"loto-predictor/internal/common"
	"loto-predictor/internal/features"
)

// Performance summarises the stored predictions of one model.
type Performance struct {
	Model             ModelTag `json:"model"`
	TotalPredictions  int      `json:"total_predictions"`
	Evaluated         int      `json:"evaluated_predictions"`
	CorrectNumbers    int      `json:"correct_numbers"`
	Accuracy          float64  `json:"accuracy"`
	AverageConfidence float64  `json:"average_confidence"`
}

// Evaluate scores past predictions per model tag, in AllModels order.
// Accuracy is the percentage of predicted numbers that were drawn, over the
// predictions whose outcome is known; it is 0 when none are.
func Evaluate(records []PredictionRecord) []Performance {
	perf := make(map[ModelTag]*Performance, len(AllModels))
	confSum := make(map[ModelTag]float64, len(AllModels))
	for _, tag := range AllModels {
		perf[tag] = &Performance{Model: tag}
	}

	for _, r := range records {
		p, ok := perf[r.Output.Model]
		if !ok {
			continue
		}
		p.TotalPredictions++
		confSum[r.Output.Model] += r.Output.Confidence
		if r.HasOutcome() {
			p.Evaluated++
			p.CorrectNumbers += features.Shared(r.Output.Numbers, r.Actual)
		}
	}

	out := make([]Performance, 0, len(AllModels))
	for _, tag := range AllModels {
		p := perf[tag]
		if p.Evaluated > 0 {
			p.Accuracy = float64(p.CorrectNumbers) / float64(p.Evaluated*common.NumbersPerDraw) * 100
		}
		if p.TotalPredictions > 0 {
			p.AverageConfidence = confSum[tag] / float64(p.TotalPredictions)
		}
		out = append(out, *p)
	}
	return out
}

// Best returns the model with the strictly highest accuracy among those with
// evaluated predictions, or the hybrid when none has any.
func Best(perfs []Performance) (ModelTag, float64) {
	best, bestAcc := ModelHybrid, 0.0
	found := false
	for _, p := range perfs {
		if p.Evaluated == 0 {
			continue
		}
		if !found || p.Accuracy > bestAcc {
			best, bestAcc, found = p.Model, p.Accuracy, true
		}
	}
	return best, bestAcc
}
