package features

import (
	"loto-predictor/internal/common"
	"loto-predictor/internal/draws"
)

// RowWidth is the number of columns in a draw row: one indicator per number,
// the overlap with the next more recent draw and the weekday.
const RowWidth = common.NumberSpace + 2

// Indicator converts a set of numbers into a 90-length vector with 1 at each
// number's position.
func Indicator(nums []int) []float64 {
	vec := make([]float64, common.NumberSpace)
	for _, n := range nums {
		if valid(n) {
			vec[n-1] = 1
		}
	}
	return vec
}

// Rows builds one feature row per draw of a most-recent-first history. Columns
// 0..89 are the winning-number indicators, column 90 is the share of numbers
// shared with the next more recent draw (0 for the most recent one) and
// column 91 is weekday/7.
func Rows(history []draws.Draw) [][]float64 {
	rows := make([][]float64, len(history))
	for i, d := range history {
		row := make([]float64, RowWidth)
		copy(row, Indicator(d.Winning))
		if i > 0 {
			row[common.NumberSpace] = Overlap(d.Winning, history[i-1].Winning)
		}
		row[common.NumberSpace+1] = float64(d.Date.Weekday()) / 7
		rows[i] = row
	}
	return rows
}

// Overlap returns the fraction of a draw's numbers present in another draw.
func Overlap(a, b []int) float64 {
	return float64(Shared(a, b)) / common.NumbersPerDraw
}

// Shared counts the numbers present in both sets.
func Shared(a, b []int) int {
	set := make(map[int]struct{}, len(b))
	for _, n := range b {
		set[n] = struct{}{}
	}
	count := 0
	for _, n := range a {
		if _, ok := set[n]; ok {
			count++
		}
	}
	return count
}
