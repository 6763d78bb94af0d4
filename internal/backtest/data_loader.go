package backtest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"loto-predictor/internal/common"
	"loto-predictor/internal/draws"

	"github.com/rs/zerolog/log"
)

// HistorySource reads the stored draws of a category, most recent first.
type HistorySource interface {
	GetDrawHistory(categoryID string) ([]draws.Draw, error)
}

// DataLoader handles loading and serving historical draws in chronological order
type DataLoader struct {
	data      []draws.Draw
	index     int
	skipped   int
	StartTime time.Time
	EndTime   time.Time
}

// NewDataLoader creates a new data loader
func NewDataLoader() *DataLoader {
	return &DataLoader{
		data:  make([]draws.Draw, 0),
		index: 0,
	}
}

// LoadFromStore loads the draws of the given categories, or of every
// category when none is given.
func (dl *DataLoader) LoadFromStore(store HistorySource, categories []string) error {
	if len(categories) == 0 {
		for _, c := range draws.Categories() {
			categories = append(categories, c.ID)
		}
	}

	log.Info().
		Int("categories", len(categories)).
		Msg("Loading draws from BoltDB")

	for _, id := range categories {
		history, err := store.GetDrawHistory(id)
		if err != nil {
			return fmt.Errorf("failed to load draws for %s: %w", id, err)
		}
		dl.data = append(dl.data, history...)
	}

	dl.finish()

	log.Info().
		Int("total_draws", len(dl.data)).
		Time("data_start", dl.StartTime).
		Time("data_end", dl.EndTime).
		Msg("Data loaded successfully")

	return nil
}

// LoadFromCSV loads draws from a CSV file with a header row. The columns are
// category_id, date and either a single winning column ("1 2 3 4 5") or
// n1..n5; machine numbers are optional, as machine or m1..m5. Rows that do
// not form a valid draw are skipped.
func (dl *DataLoader) LoadFromCSV(filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	// Read header
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	// Map header indices
	indices := make(map[string]int)
	for i, col := range header {
		indices[strings.ToLower(strings.TrimSpace(col))] = i
	}
	if _, ok := indices["category_id"]; !ok {
		return errors.New("CSV header has no category_id column")
	}
	if _, ok := indices["date"]; !ok {
		return errors.New("CSV header has no date column")
	}

	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			dl.skip(filePath, line, err)
			continue
		}

		rec := draws.Record{
			CategoryID: field(row, indices, "category_id"),
			Date:       field(row, indices, "date"),
		}
		if idx, ok := indices["id"]; ok && idx < len(row) {
			rec.ID = row[idx]
		}
		if rec.Winning, err = numbers(row, indices, "winning", "n"); err != nil {
			dl.skip(filePath, line, err)
			continue
		}
		if rec.Machine, err = numbers(row, indices, "machine", "m"); err != nil {
			dl.skip(filePath, line, err)
			continue
		}

		d, err := rec.Draw()
		if err != nil {
			dl.skip(filePath, line, err)
			continue
		}
		dl.data = append(dl.data, d)
	}

	dl.finish()

	log.Info().
		Str("file", filePath).
		Int("total_draws", len(dl.data)).
		Int("skipped", dl.skipped).
		Msg("CSV data loaded successfully")

	return nil
}

func field(row []string, indices map[string]int, name string) string {
	idx, ok := indices[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// numbers reads a list column, or the numbered columns prefix1..prefix5.
// Absent columns yield nil.
func numbers(row []string, indices map[string]int, list, prefix string) ([]int, error) {
	if raw := field(row, indices, list); raw != "" {
		return parseNumbers(raw)
	}
	if _, ok := indices[prefix+"1"]; !ok {
		return nil, nil
	}
	var out []int
	for i := 1; i <= common.NumbersPerDraw; i++ {
		raw := field(row, indices, prefix+strconv.Itoa(i))
		if raw == "" {
			if i == 1 {
				return nil, nil
			}
			return nil, fmt.Errorf("missing column %s%d", prefix, i)
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", raw)
		}
		out = append(out, n)
	}
	return out, nil
}

// parseNumbers splits "1 2 3 4 5", "1-2-3-4-5" or "1;2;3;4;5".
func parseNumbers(raw string) ([]int, error) {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == '-' || r == ';' || r == '|'
	})
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}

// LoadFromJSON loads draws from a JSON array of records or from a stream of
// record objects.
func (dl *DataLoader) LoadFromJSON(filePath string) error {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to open JSON file: %w", err)
	}

	var records []draws.Record
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return fmt.Errorf("failed to decode JSON file: %w", err)
		}
	} else {
		decoder := json.NewDecoder(bytes.NewReader(trimmed))
		for decoder.More() {
			var rec draws.Record
			if err := decoder.Decode(&rec); err != nil {
				return fmt.Errorf("failed to decode JSON record %d: %w", len(records)+1, err)
			}
			records = append(records, rec)
		}
	}

	for i, rec := range records {
		d, err := rec.Draw()
		if err != nil {
			dl.skip(filePath, i+1, err)
			continue
		}
		dl.data = append(dl.data, d)
	}

	dl.finish()

	log.Info().
		Str("file", filePath).
		Int("total_draws", len(dl.data)).
		Int("skipped", dl.skipped).
		Msg("JSON data loaded successfully")

	return nil
}

func (dl *DataLoader) skip(file string, line int, err error) {
	dl.skipped++
	log.Warn().Err(err).Str("file", file).Int("line", line).Msg("Skipping invalid draw")
}

// finish sorts the draws oldest first and records the covered period.
func (dl *DataLoader) finish() {
	sort.SliceStable(dl.data, func(i, j int) bool {
		if dl.data[i].Date.Equal(dl.data[j].Date) {
			return dl.data[i].CategoryID < dl.data[j].CategoryID
		}
		return dl.data[i].Date.Before(dl.data[j].Date)
	})

	if len(dl.data) > 0 {
		dl.StartTime = dl.data[0].Date
		dl.EndTime = dl.data[len(dl.data)-1].Date
	}
}

// Draws returns the loaded draws, oldest first.
func (dl *DataLoader) Draws() []draws.Draw {
	return dl.data
}

// Filter keeps the draws of the given categories only.
func (dl *DataLoader) Filter(categories []string) {
	keep := make(map[string]bool, len(categories))
	for _, c := range categories {
		keep[c] = true
	}
	kept := dl.data[:0]
	for _, d := range dl.data {
		if keep[d.CategoryID] {
			kept = append(kept, d)
		}
	}
	dl.data = kept
	dl.index = 0
	dl.StartTime, dl.EndTime = time.Time{}, time.Time{}
	dl.finish()
}

// Records returns the loaded draws in their external form, ready to be
// uploaded through the API.
func (dl *DataLoader) Records() []draws.Record {
	out := make([]draws.Record, len(dl.data))
	for i, d := range dl.data {
		out[i] = draws.Record{
			ID:         d.ID,
			CategoryID: d.CategoryID,
			Date:       d.Date.Format(draws.DateLayout),
			Winning:    d.Winning,
			Machine:    d.Machine,
		}
	}
	return out
}

// Skipped returns how many input rows were rejected.
func (dl *DataLoader) Skipped() int {
	return dl.skipped
}

// Reset resets the data loader to the beginning
func (dl *DataLoader) Reset() {
	dl.index = 0
}

// HasNext returns true if there's more data to process
func (dl *DataLoader) HasNext() bool {
	return dl.index < len(dl.data)
}

// Next returns the next draw
func (dl *DataLoader) Next() draws.Draw {
	if dl.index >= len(dl.data) {
		return draws.Draw{}
	}

	d := dl.data[dl.index]
	dl.index++
	return d
}

// GetDataCount returns the total number of draws
func (dl *DataLoader) GetDataCount() int {
	return len(dl.data)
}

// GetProgress returns the current progress as a percentage
func (dl *DataLoader) GetProgress() float64 {
	if len(dl.data) == 0 {
		return 100.0
	}
	return float64(dl.index) / float64(len(dl.data)) * 100.0
}
