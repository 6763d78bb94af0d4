package backtest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"loto-predictor/internal/draws"

	"github.com/rs/zerolog/log"
)

// Reporter generates backtest reports
type Reporter struct {
	results    *Results
	outputPath string
}

// NewReporter creates a new reporter
func NewReporter(results *Results, outputPath string) *Reporter {
	return &Reporter{
		results:    results,
		outputPath: outputPath,
	}
}

// GenerateReport generates all report formats
func (r *Reporter) GenerateReport() error {
	// Create output directory
	if err := os.MkdirAll(r.outputPath, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.generateSummary(); err != nil {
		return err
	}

	if err := r.generateStepLog(); err != nil {
		return err
	}

	if err := r.generateJSONReport(); err != nil {
		return err
	}

	return r.generateAccuracyCurve()
}

// generateSummary generates a human-readable summary
func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, "backtest_summary.txt")
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	r.results.mu.RLock()
	defer r.results.mu.RUnlock()
	res := r.results

	fmt.Fprintf(file, "BACKTEST RESULTS SUMMARY\n")
	fmt.Fprintf(file, "========================\n\n")

	fmt.Fprintf(file, "Model: %s\n", res.Model)
	fmt.Fprintf(file, "Time Period: %s to %s\n\n",
		res.StartTime.Format(draws.DateLayout),
		res.EndTime.Format(draws.DateLayout))

	fmt.Fprintf(file, "PREDICTION STATISTICS\n")
	fmt.Fprintf(file, "---------------------\n")
	fmt.Fprintf(file, "Predictions: %d\n", res.TotalPredictions)
	fmt.Fprintf(file, "Failed Predictions: %d\n", res.Failures)
	fmt.Fprintf(file, "Trainings: %d (%d failed)\n", res.Trainings, res.TrainingFailures)
	fmt.Fprintf(file, "Numbers Hit: %d\n\n", res.TotalHits)

	fmt.Fprintf(file, "ACCURACY\n")
	fmt.Fprintf(file, "--------\n")
	fmt.Fprintf(file, "Accuracy: %.2f%%\n", res.Accuracy)
	fmt.Fprintf(file, "Random Baseline: %.2f%%\n", res.RandomBaseline)
	fmt.Fprintf(file, "Average Confidence: %.3f\n", res.AverageConfidence)

	fmt.Fprintf(file, "\nHIT DISTRIBUTION\n")
	fmt.Fprintf(file, "----------------\n")
	for hits, count := range res.HitDistribution {
		fmt.Fprintf(file, "%d hits: %d\n", hits, count)
	}

	if len(res.ByCategory) > 0 {
		fmt.Fprintf(file, "\nPERFORMANCE BY CATEGORY\n")
		fmt.Fprintf(file, "-----------------------\n")
		for _, id := range sortedCategories(res.ByCategory) {
			stats := res.ByCategory[id]
			fmt.Fprintf(file, "%s: %d predictions, %d hits, %.2f%% accuracy\n",
				id, stats.Predictions, stats.Hits, stats.Accuracy)
		}
	}

	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}

func sortedCategories(stats map[string]*CategoryStats) []string {
	ids := make([]string, 0, len(stats))
	for id := range stats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// generateStepLog generates a CSV log of every replayed draw
func (r *Reporter) generateStepLog() error {
	csvPath := filepath.Join(r.outputPath, "step_log.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create step log: %w", err)
	}
	defer file.Close()

	if err := r.writeStepLog(file); err != nil {
		return fmt.Errorf("failed to write step log: %w", err)
	}

	log.Info().Str("file", csvPath).Msg("Step log generated")
	return nil
}

func (r *Reporter) writeStepLog(w io.Writer) error {
	writer := csv.NewWriter(w)

	header := []string{"Category", "Date", "Predicted", "Actual", "Hits", "Confidence", "History"}
	if err := writer.Write(header); err != nil {
		return err
	}

	r.results.mu.RLock()
	defer r.results.mu.RUnlock()
	for _, s := range r.results.Steps {
		record := []string{
			s.CategoryID,
			s.Date.Format(draws.DateLayout),
			joinNumbers(s.Predicted),
			joinNumbers(s.Actual),
			strconv.Itoa(s.Hits),
			fmt.Sprintf("%.3f", s.Confidence),
			strconv.Itoa(s.History),
		}
		if err := writer.Write(record); err != nil {
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

// generateJSONReport generates a JSON report with all data
func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, "backtest_results.json")

	r.results.mu.RLock()
	report := map[string]interface{}{
		"results":      r.results,
		"curve":        r.calculateAccuracyCurve(),
		"generated_at": time.Now(),
	}
	data, err := json.MarshalIndent(report, "", "  ")
	r.results.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

// generateAccuracyCurve writes the cumulative accuracy per draw date
func (r *Reporter) generateAccuracyCurve() error {
	curvePath := filepath.Join(r.outputPath, "accuracy_curve.csv")
	file, err := os.Create(curvePath)
	if err != nil {
		return fmt.Errorf("failed to create accuracy curve: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	r.results.mu.RLock()
	curve := r.calculateAccuracyCurve()
	r.results.mu.RUnlock()

	header := []string{"Date", "Predictions", "Hits", "Cumulative Accuracy"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, p := range curve {
		record := []string{
			p.Date.Format(draws.DateLayout),
			strconv.Itoa(p.Predictions),
			strconv.Itoa(p.Hits),
			fmt.Sprintf("%.2f", p.Accuracy),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	log.Info().Str("file", curvePath).Msg("Accuracy curve generated")
	return nil
}

// CurvePoint is the cumulative score after the draws of one date.
type CurvePoint struct {
	Date        time.Time `json:"date"`
	Predictions int       `json:"predictions"`
	Hits        int       `json:"hits"`
	Accuracy    float64   `json:"accuracy"`
}

// calculateAccuracyCurve groups the steps by date. Callers hold the results lock.
func (r *Reporter) calculateAccuracyCurve() []CurvePoint {
	var curve []CurvePoint
	predictions, hits := 0, 0

	for _, s := range r.results.Steps {
		predictions++
		hits += s.Hits
		point := CurvePoint{
			Date:        s.Date,
			Predictions: predictions,
			Hits:        hits,
			Accuracy:    accuracy(hits, predictions),
		}
		// Steps are chronological, so a date's draws are adjacent
		if n := len(curve); n > 0 && curve[n-1].Date.Equal(s.Date) {
			curve[n-1] = point
			continue
		}
		curve = append(curve, point)
	}

	return curve
}

// PrintSummary prints a summary to console
func (r *Reporter) PrintSummary() {
	r.results.mu.RLock()
	defer r.results.mu.RUnlock()
	res := r.results

	fmt.Println("\n=== BACKTEST RESULTS ===")
	fmt.Printf("Model: %s\n", res.Model)
	fmt.Printf("Period: %s to %s\n",
		res.StartTime.Format(draws.DateLayout),
		res.EndTime.Format(draws.DateLayout))
	fmt.Printf("Predictions: %d (%d failed)\n", res.TotalPredictions, res.Failures)
	fmt.Printf("Numbers Hit: %d\n", res.TotalHits)
	fmt.Printf("Accuracy: %.2f%% (random baseline %.2f%%)\n", res.Accuracy, res.RandomBaseline)
	fmt.Printf("Average Confidence: %.3f\n", res.AverageConfidence)
	fmt.Println("=======================")
}
