package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"loto-predictor/internal/common"
	"loto-predictor/internal/draws"
	"loto-predictor/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Generator produces synthetic draw histories. A few hot numbers per category
// are drawn more often than the rest so the models have a signal to find.
type Generator struct {
	Weeks   int
	Hot     int
	HotBias float64
	Machine bool
	rng     *rand.Rand
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		Weeks:   104,
		Hot:     10,
		HotBias: 3,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

func main() {
	var (
		dataPath   = flag.String("data", common.DefaultDataPath, "Data directory path")
		csvPath    = flag.String("csv", "", "Write a CSV file instead of the store")
		categories = flag.String("categories", "", "Comma-separated category ids (default: all)")
		weeks      = flag.Int("weeks", 104, "Weeks of history per category")
		seed       = flag.Int64("seed", time.Now().UnixNano(), "Random seed")
		hot        = flag.Int("hot", 10, "Numbers per category drawn more often")
		hotBias    = flag.Float64("hot-bias", 3, "Relative weight of the hot numbers")
		machine    = flag.Bool("machine", true, "Generate machine numbers")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ids := parseCategories(*categories)
	for _, id := range ids {
		if _, ok := draws.CategoryByID(id); !ok {
			log.Fatal().Str("category", id).Msg("Unknown category")
		}
	}
	if len(ids) == 0 {
		for _, c := range draws.Categories() {
			ids = append(ids, c.ID)
		}
	}

	fmt.Printf("Generating sample draws...\n")
	fmt.Printf("  Categories: %d\n", len(ids))
	fmt.Printf("  Weeks: %d\n", *weeks)
	fmt.Printf("  Seed: %d\n", *seed)

	g := NewGenerator(*seed)
	g.Weeks = *weeks
	g.Hot = *hot
	g.HotBias = *hotBias
	g.Machine = *machine

	var all []draws.Draw
	now := time.Now()
	for _, id := range ids {
		all = append(all, g.Generate(id, now)...)
	}

	if *csvPath != "" {
		if err := writeCSV(*csvPath, all); err != nil {
			log.Fatal().Err(err).Msg("Failed to write CSV")
		}
		fmt.Printf("✓ Wrote %d draws to %s\n", len(all), *csvPath)
		return
	}

	fmt.Printf("  Data Path: %s\n", *dataPath)
	store, err := storage.New(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage")
	}
	defer store.Close()

	if err := store.StoreDraws(all); err != nil {
		log.Fatal().Err(err).Msg("Failed to store draws")
	}
	fmt.Printf("✓ Generated %d sample draws\n", len(all))
}

// Generate returns Weeks draws for category, oldest first, ending on the most
// recent draw day not after now.
func (g *Generator) Generate(categoryID string, now time.Time) []draws.Draw {
	last := lastDrawDate(categoryID, now)
	weights := g.weights()

	out := make([]draws.Draw, 0, g.Weeks)
	for i := g.Weeks - 1; i >= 0; i-- {
		d := draws.Draw{
			CategoryID: categoryID,
			Date:       last.AddDate(0, 0, -7*i),
			Winning:    g.sample(weights),
		}
		if g.Machine {
			d.Machine = g.sample(nil)
		}
		out = append(out, d)
	}
	return out
}

// weights favours Hot random numbers by HotBias.
func (g *Generator) weights() []float64 {
	w := make([]float64, common.NumberSpace)
	for i := range w {
		w[i] = 1
	}
	for _, i := range g.rng.Perm(common.NumberSpace)[:min(g.Hot, common.NumberSpace)] {
		w[i] = g.HotBias
	}
	return w
}

// sample draws five distinct numbers, uniformly when weights is nil.
func (g *Generator) sample(weights []float64) []int {
	if weights == nil {
		perm := g.rng.Perm(common.NumberSpace)[:common.NumbersPerDraw]
		out := make([]int, len(perm))
		for i, p := range perm {
			out[i] = p + common.MinNumber
		}
		return out
	}

	w := append([]float64(nil), weights...)
	out := make([]int, 0, common.NumbersPerDraw)
	for len(out) < common.NumbersPerDraw {
		total := 0.0
		for _, v := range w {
			total += v
		}
		r := g.rng.Float64() * total
		idx := len(w) - 1
		for i, v := range w {
			if r < v {
				idx = i
				break
			}
			r -= v
		}
		// Skip numbers already taken, which carry zero weight
		if w[idx] == 0 {
			continue
		}
		out = append(out, idx+common.MinNumber)
		w[idx] = 0
	}
	return out
}

// lastDrawDate is the latest day not after now on the category's weekday.
func lastDrawDate(categoryID string, now time.Time) time.Time {
	next := draws.NextDrawDate(categoryID, now)
	if c, ok := draws.CategoryByID(categoryID); ok && draws.Day(now).Weekday() == c.Weekday {
		return draws.Day(now)
	}
	return next.AddDate(0, 0, -7)
}

func writeCSV(path string, list []draws.Draw) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"category_id", "date", "winning", "machine"}); err != nil {
		return err
	}
	for _, d := range list {
		if err := writer.Write([]string{
			d.CategoryID,
			d.Date.Format(draws.DateLayout),
			joinNumbers(d.Winning),
			joinNumbers(d.Machine),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func joinNumbers(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, " ")
}

func parseCategories(categories string) []string {
	var result []string
	for _, s := range strings.Split(categories, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}
