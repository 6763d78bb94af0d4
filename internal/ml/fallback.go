package ml

import (
	"sort"
	"sync"
	"time"

	"loto-predictor/internal/common"
	"loto-predictor/internal/draws"
)

// FallbackPredictor implements a simple frequency heuristic used when a model
// is unavailable or untrained
type FallbackPredictor struct {
	mu         sync.RWMutex
	lastScores map[int]float64
	windowSize int
	confidence float64
	tag        ModelTag
}

// NewFallbackPredictor creates a fallback over the most recent windowSize draws
// (0 means the whole history) that stamps its outputs with tag.
func NewFallbackPredictor(windowSize int, confidence float64, tag ModelTag) *FallbackPredictor {
	return &FallbackPredictor{
		lastScores: make(map[int]float64),
		windowSize: windowSize,
		confidence: confidence,
		tag:        tag,
	}
}

// Predict returns the five most frequent winning numbers of the window with a
// fixed confidence. Ties favour the lower number and a short history is padded
// with the lowest unseen numbers.
func (p *FallbackPredictor) Predict(history []draws.Draw) Output {
	window := history
	if p.windowSize > 0 && len(window) > p.windowSize {
		window = window[:p.windowSize]
	}

	scores := make([]float64, common.NumberSpace)
	for _, d := range window {
		for _, n := range d.Winning {
			if n >= common.MinNumber && n <= common.MaxNumber {
				scores[n-1]++
			}
		}
	}

	p.UpdateMetrics(scores)

	return Output{
		Numbers:     topNumbers(scores, common.NumbersPerDraw),
		Confidence:  p.confidence,
		Model:       p.tag,
		GeneratedAt: time.Now().UTC(),
	}
}

// UpdateMetrics keeps the non-zero scores of the last prediction
func (p *FallbackPredictor) UpdateMetrics(scores []float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastScores = make(map[int]float64)
	for i, s := range scores {
		if s > 0 {
			p.lastScores[i+1] = s
		}
	}
}

// GetMetrics returns the frequency counts behind the last prediction
func (p *FallbackPredictor) GetMetrics() map[int]float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	metrics := make(map[int]float64, len(p.lastScores))
	for k, v := range p.lastScores {
		metrics[k] = v
	}
	return metrics
}

// Reset clears the stored scores
func (p *FallbackPredictor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastScores = make(map[int]float64)
}

// topNumbers ranks numbers by descending score, ties to the lower number, and
// returns the best k sorted ascending. scores is indexed by number-1.
func topNumbers(scores []float64, k int) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		sa, sb := scores[idx[a]], scores[idx[b]]
		if sa != sb {
			return sa > sb
		}
		return idx[a] < idx[b]
	})
	if k > len(idx) {
		k = len(idx)
	}
	out := make([]int, k)
	for i := 0; i < k; i++ {
		out[i] = idx[i] + 1
	}
	sort.Ints(out)
	return out
}

// rankedScores returns the scores of the top k numbers in descending order.
func rankedScores(scores []float64, k int) []float64 {
	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	if k > len(sorted) {
		k = len(sorted)
	}
	return sorted[:k]
}
