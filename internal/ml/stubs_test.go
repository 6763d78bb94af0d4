package ml

import (
	"context"
	"errors"
	"math"
	"time"

	"loto-predictor/internal/draws"
)

// stubPredictor returns a fixed output or error.
type stubPredictor struct {
	tag      ModelTag
	out      Output
	err      error
	trainErr error
	panics   bool
	delay    time.Duration
}

func (s *stubPredictor) Name() ModelTag { return s.tag }

func (s *stubPredictor) Train(context.Context, []draws.Draw) error { return s.trainErr }

func (s *stubPredictor) Predict(ctx context.Context, _ []draws.Draw, _ Config) (Output, error) {
	if s.panics {
		panic("boom")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Output{}, ctx.Err()
		}
	}
	if s.err != nil {
		return Output{}, s.err
	}
	out := s.out
	out.Model = s.tag
	return out, nil
}

func failing(tag ModelTag) *stubPredictor {
	return &stubPredictor{tag: tag, err: errors.New("unavailable"), trainErr: errors.New("train failed")}
}

func fixed(tag ModelTag, confidence float64, numbers ...int) *stubPredictor {
	return &stubPredictor{tag: tag, out: Output{Numbers: numbers, Confidence: confidence}}
}

// syntheticHistory builds a most-recent-first history of n weekly draws. Each
// draw holds the given numbers when set, otherwise a deterministic rotation.
func syntheticHistory(n int, fixedNumbers ...int) []draws.Draw {
	start := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	out := make([]draws.Draw, n)
	for i := 0; i < n; i++ {
		nums := fixedNumbers
		if len(nums) == 0 {
			base := (i*7)%86 + 1
			nums = []int{base, base + 1, base + 2, base + 3, base + 4}
		}
		out[i] = draws.Draw{
			ID:      "d",
			Date:    start.AddDate(0, 0, -7*i),
			Winning: append([]int(nil), nums...),
		}
	}
	return out
}

func nan() float64 { return math.NaN() }
