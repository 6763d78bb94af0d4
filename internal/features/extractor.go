// Package features derives per-number statistics from a draw history: frequency,
// gap since last appearance, pairwise co-occurrence and a recency-decayed trend.
// It also builds the per-draw rows and indicator vectors consumed by the models.
//
// Every function here treats its input history as most-recent-first and is
// deterministic and side-effect free.
package features

import (
	"loto-predictor/internal/common"
	"loto-predictor/internal/draws"

	"gonum.org/v1/gonum/floats"
)

// Options tune the extraction.
type Options struct {
	// TrendWindow caps the number of recent draws contributing to the trend score.
	TrendWindow int
	// IncludeMachine counts machine numbers in frequency and co-occurrence.
	IncludeMachine bool
}

// DefaultOptions returns the standard extraction options.
func DefaultOptions() Options {
	return Options{TrendWindow: common.DefaultTrendWindow}
}

// Vector holds the per-number features of a history. Slices are indexed by
// number-1.
type Vector struct {
	Length       int
	Frequency    []float64
	Gap          []int
	CoOccurrence [][]float64
	Trend        []float64
}

// Extract computes the feature vector of a most-recent-first history. An empty
// history yields all-zero frequency, co-occurrence and trend with every gap set
// to the never-seen sentinel.
func Extract(history []draws.Draw, opts Options) *Vector {
	n := len(history)
	v := &Vector{
		Length:       n,
		Frequency:    make([]float64, common.NumberSpace),
		Gap:          make([]int, common.NumberSpace),
		CoOccurrence: make([][]float64, common.NumberSpace),
		Trend:        make([]float64, common.NumberSpace),
	}
	for i := range v.CoOccurrence {
		v.CoOccurrence[i] = make([]float64, common.NumberSpace)
	}

	never := NeverSeen(n)
	for i := range v.Gap {
		v.Gap[i] = never
	}

	for idx, d := range history {
		v.observe(d.Winning, idx)
		if opts.IncludeMachine && len(d.Machine) > 0 {
			v.observe(d.Machine, idx)
		}
	}

	window := opts.TrendWindow
	if window <= 0 {
		window = common.DefaultTrendWindow
	}
	if window > n {
		window = n
	}
	for i := 0; i < window; i++ {
		weight := float64(window-i) / float64(window)
		for _, num := range history[i].Winning {
			if valid(num) {
				v.Trend[num-1] += weight
			}
		}
	}

	return v
}

func (v *Vector) observe(nums []int, idx int) {
	for _, num := range nums {
		if !valid(num) {
			continue
		}
		v.Frequency[num-1]++
		if idx < v.Gap[num-1] {
			v.Gap[num-1] = idx
		}
		for _, other := range nums {
			if other != num && valid(other) {
				v.CoOccurrence[num-1][other-1]++
			}
		}
	}
}

// NeverSeen is the gap sentinel for a number absent from a history of length n.
func NeverSeen(n int) int {
	return n + 1
}

// NormalizedFrequency returns frequency divided by the history length (at least 1).
func (v *Vector) NormalizedFrequency() []float64 {
	out := make([]float64, len(v.Frequency))
	denom := float64(v.Length)
	if denom < 1 {
		denom = 1
	}
	floats.ScaleTo(out, 1/denom, v.Frequency)
	return out
}

// CoOccurrenceSum returns the row sum of the co-occurrence matrix for number num.
func (v *Vector) CoOccurrenceSum(num int) float64 {
	if !valid(num) {
		return 0
	}
	return floats.Sum(v.CoOccurrence[num-1])
}

func valid(num int) bool {
	return num >= common.MinNumber && num <= common.MaxNumber
}
