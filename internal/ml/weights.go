package ml

import (
	"fmt"
	"math"

	"loto-predictor/internal/common"
)

// Weights are the hybrid's per-model blending weights. A valid set is
// non-negative and sums to 1.
type Weights struct {
	Boost    float64 `json:"boost"`
	Forest   float64 `json:"forest"`
	Sequence float64 `json:"sequence"`
}

// DefaultWeights returns the initial 0.40/0.35/0.25 split.
func DefaultWeights() Weights {
	return Weights{
		Boost:    common.DefaultWeightBoost,
		Forest:   common.DefaultWeightForest,
		Sequence: common.DefaultWeightSequence,
	}
}

// Get returns the weight of a base model, 0 for any other tag.
func (w Weights) Get(tag ModelTag) float64 {
	switch tag {
	case ModelBoost:
		return w.Boost
	case ModelForest:
		return w.Forest
	case ModelSequence:
		return w.Sequence
	}
	return 0
}

func (w Weights) with(tag ModelTag, v float64) Weights {
	switch tag {
	case ModelBoost:
		w.Boost = v
	case ModelForest:
		w.Forest = v
	case ModelSequence:
		w.Sequence = v
	}
	return w
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Boost + w.Forest + w.Sequence
}

// Normalized rescales the weights to sum to 1. It fails on negative or
// non-finite entries and on an all-zero set.
func (w Weights) Normalized() (Weights, error) {
	for _, v := range []float64{w.Boost, w.Forest, w.Sequence} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return w, fmt.Errorf("%w: %+v", ErrInvalidWeights, w)
		}
	}
	total := w.Sum()
	if total <= 0 || math.IsInf(total, 0) {
		return w, fmt.Errorf("%w: total %v", ErrInvalidWeights, total)
	}
	return Weights{
		Boost:    w.Boost / total,
		Forest:   w.Forest / total,
		Sequence: w.Sequence / total,
	}, nil
}

// Validate checks the set is non-negative, finite and sums to 1.
func (w Weights) Validate() error {
	for _, v := range []float64{w.Boost, w.Forest, w.Sequence} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %+v", ErrInvalidWeights, w)
		}
	}
	if math.Abs(w.Sum()-1) > common.WeightTolerance {
		return fmt.Errorf("%w: sum %v", ErrInvalidWeights, w.Sum())
	}
	return nil
}
