// Package draws holds the lottery draw data model: recorded draws, the weekly
// category schedule and helpers for ordering and windowing a draw history.
package draws

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"loto-predictor/internal/common"
)

// DateLayout is the calendar-day layout used for draw dates in keys and JSON payloads.
const DateLayout = "2006-01-02"

// Draw is one recorded lottery event for a category. Draws are immutable once stored.
type Draw struct {
	ID         string    `json:"id"`
	CategoryID string    `json:"category_id"`
	Date       time.Time `json:"date"`
	Winning    []int     `json:"winning"`
	Machine    []int     `json:"machine,omitempty"`
}

// Validate checks that the winning numbers (and machine numbers, when present)
// are five distinct integers inside the number space.
func (d Draw) Validate() error {
	if d.Date.IsZero() {
		return fmt.Errorf("draw %s: missing date", d.ID)
	}
	if err := ValidateNumbers(d.Winning); err != nil {
		return fmt.Errorf("draw %s: winning: %w", d.ID, err)
	}
	if len(d.Machine) > 0 {
		if err := ValidateNumbers(d.Machine); err != nil {
			return fmt.Errorf("draw %s: machine: %w", d.ID, err)
		}
	}
	return nil
}

// ValidateNumbers reports whether nums is a set of five distinct numbers in [1,90].
func ValidateNumbers(nums []int) error {
	if len(nums) != common.NumbersPerDraw {
		return fmt.Errorf("expected %d numbers, got %d", common.NumbersPerDraw, len(nums))
	}
	var seen [common.MaxNumber + 1]bool
	for _, n := range nums {
		if n < common.MinNumber || n > common.MaxNumber {
			return fmt.Errorf("number %d out of range [%d,%d]", n, common.MinNumber, common.MaxNumber)
		}
		if seen[n] {
			return fmt.Errorf("duplicate number %d", n)
		}
		seen[n] = true
	}
	return nil
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RecentFirst returns a copy of history ordered by date, most recent first.
// Draws sharing a date keep their relative order.
func RecentFirst(history []Draw) []Draw {
	out := make([]Draw, len(history))
	copy(out, history)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out
}

// OldestFirst returns a copy of history ordered by date, oldest first.
func OldestFirst(history []Draw) []Draw {
	out := make([]Draw, len(history))
	copy(out, history)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// Lookback keeps the draws of a most-recent-first history that fall within days
// of its most recent draw. When fewer than min draws survive the window, the
// most recent min draws are returned instead.
func Lookback(history []Draw, days, min int) []Draw {
	if len(history) == 0 || days <= 0 {
		return history
	}
	cutoff := Day(history[0].Date).AddDate(0, 0, -days)
	n := 0
	for n < len(history) && !Day(history[n].Date).Before(cutoff) {
		n++
	}
	if n < min {
		n = min
	}
	if n > len(history) {
		n = len(history)
	}
	return history[:n]
}

// Record is the external form of a draw, dated by a string, as read from
// import files and API payloads.
type Record struct {
	ID         string `json:"id,omitempty"`
	CategoryID string `json:"category_id"`
	Date       string `json:"date"`
	Winning    []int  `json:"winning"`
	Machine    []int  `json:"machine,omitempty"`
}

// Draw converts the record and validates it.
func (r Record) Draw() (Draw, error) {
	if r.CategoryID == "" {
		return Draw{}, fmt.Errorf("draw %s: missing category", r.ID)
	}
	date, err := ParseDate(r.Date)
	if err != nil {
		return Draw{}, fmt.Errorf("draw %s: %w", r.ID, err)
	}
	d := Draw{
		ID:         r.ID,
		CategoryID: r.CategoryID,
		Date:       date,
		Winning:    append([]int(nil), r.Winning...),
		Machine:    append([]int(nil), r.Machine...),
	}
	if len(d.Machine) == 0 {
		d.Machine = nil
	}
	if err := d.Validate(); err != nil {
		return Draw{}, err
	}
	return d, nil
}

// ParseDate reads a calendar day in DateLayout or RFC 3339 form.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return Day(t), nil
}
