package draws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(offset int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func TestValidateNumbers(t *testing.T) {
	tests := []struct {
		name    string
		nums    []int
		wantErr bool
	}{
		{"valid", []int{1, 2, 3, 4, 90}, false},
		{"too few", []int{1, 2, 3, 4}, true},
		{"too many", []int{1, 2, 3, 4, 5, 6}, true},
		{"duplicate", []int{1, 1, 3, 4, 5}, true},
		{"zero", []int{0, 2, 3, 4, 5}, true},
		{"above range", []int{1, 2, 3, 4, 91}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNumbers(tt.nums)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDraw_Validate(t *testing.T) {
	d := Draw{ID: "a", Date: day(0), Winning: []int{1, 2, 3, 4, 5}}
	assert.NoError(t, d.Validate())

	d.Machine = []int{6, 7, 8, 9, 9}
	assert.Error(t, d.Validate())

	assert.Error(t, Draw{ID: "b", Winning: []int{1, 2, 3, 4, 5}}.Validate())
}

func TestOrdering(t *testing.T) {
	history := []Draw{
		{ID: "mid", Date: day(1)},
		{ID: "old", Date: day(0)},
		{ID: "new", Date: day(2)},
	}

	recent := RecentFirst(history)
	require.Len(t, recent, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, ids(recent))

	oldest := OldestFirst(history)
	assert.Equal(t, []string{"old", "mid", "new"}, ids(oldest))

	// input untouched
	assert.Equal(t, "mid", history[0].ID)
}

func TestLookback(t *testing.T) {
	var history []Draw
	for i := 0; i < 30; i++ {
		history = append(history, Draw{ID: "d", Date: day(-7 * i)})
	}

	// 28 days keeps the latest draw plus four weekly draws
	assert.Len(t, Lookback(history, 28, 0), 5)

	// widened to the minimum when the window is too small
	assert.Len(t, Lookback(history, 7, 10), 10)

	// never longer than the history
	assert.Len(t, Lookback(history[:3], 7, 10), 3)

	assert.Len(t, Lookback(history, 0, 10), 30)
}

func TestCategories(t *testing.T) {
	cats := Categories()
	require.Len(t, cats, 28)
	assert.Equal(t, "lundi-10h-réveil", cats[0].ID)
	assert.Equal(t, "Lundi 10H - Réveil", cats[0].FullName)

	c, ok := CategoryByID("samedi-18h15-national")
	require.True(t, ok)
	assert.Equal(t, time.Saturday, c.Weekday)

	_, ok = CategoryByID("nope")
	assert.False(t, ok)
}

func TestNextDrawDate(t *testing.T) {
	// 2024-01-01 is a Monday
	monday := time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC)

	assert.Equal(t, day(5), NextDrawDate("samedi-18h15-national", monday))
	assert.Equal(t, day(7), NextDrawDate("lundi-10h-réveil", monday))
	assert.Equal(t, day(1), NextDrawDate("unknown", monday))
}

func ids(h []Draw) []string {
	out := make([]string, len(h))
	for i, d := range h {
		out[i] = d.ID
	}
	return out
}

func TestRecord_Draw(t *testing.T) {
	d, err := Record{CategoryID: "lundi-10h-réveil", Date: "2024-03-04", Winning: []int{5, 1, 90, 33, 12}}.Draw()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), d.Date)
	assert.Nil(t, d.Machine)

	d, err = Record{CategoryID: "lundi-10h-réveil", Date: "2024-03-04T18:15:00+02:00", Winning: []int{1, 2, 3, 4, 5}, Machine: []int{6, 7, 8, 9, 10}}.Draw()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), d.Date)
	assert.Len(t, d.Machine, 5)

	_, err = Record{Date: "2024-03-04", Winning: []int{1, 2, 3, 4, 5}}.Draw()
	assert.Error(t, err, "missing category")

	_, err = Record{CategoryID: "x", Date: "04/03/2024", Winning: []int{1, 2, 3, 4, 5}}.Draw()
	assert.Error(t, err, "unsupported date layout")

	_, err = Record{CategoryID: "x", Date: "2024-03-04", Winning: []int{1, 2, 3, 4, 4}}.Draw()
	assert.Error(t, err, "duplicate number")
}
