package ml

import (
	"fmt"
	"math"
	"strings"
	"time"

	"loto-predictor/internal/common"
	"loto-predictor/internal/draws"
)

// ModelTag identifies which model produced an output.
type ModelTag string

const (
	ModelBoost    ModelTag = "boost"
	ModelForest   ModelTag = "forest"
	ModelSequence ModelTag = "sequence"
	ModelHybrid   ModelTag = "hybrid"
)

// BaseModels lists the sub-models of the hybrid in aggregation order.
var BaseModels = []ModelTag{ModelBoost, ModelForest, ModelSequence}

// AllModels lists every tag reported by evaluation.
var AllModels = []ModelTag{ModelBoost, ModelForest, ModelSequence, ModelHybrid}

var modelAliases = map[string]ModelTag{
	"boost":         ModelBoost,
	"xgboost":       ModelBoost,
	"forest":        ModelForest,
	"random_forest": ModelForest,
	"randomforest":  ModelForest,
	"rf":            ModelForest,
	"sequence":      ModelSequence,
	"lstm":          ModelSequence,
	"rnn":           ModelSequence,
	"hybrid":        ModelHybrid,
	"ensemble":      ModelHybrid,
}

// ParseModelTag resolves a model name or one of its aliases. An empty name
// selects the hybrid.
func ParseModelTag(name string) (ModelTag, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return ModelHybrid, nil
	}
	if tag, ok := modelAliases[key]; ok {
		return tag, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModel, name)
}

// Valid reports whether the tag is one of the known models.
func (t ModelTag) Valid() bool {
	for _, m := range AllModels {
		if m == t {
			return true
		}
	}
	return false
}

// Config carries the per-request prediction options.
type Config struct {
	Model                 ModelTag `json:"model" yaml:"model"`
	ConfidenceThreshold   float64  `json:"confidence_threshold" yaml:"confidence_threshold"`
	LookbackDays          int      `json:"lookback_days" yaml:"lookback_days"`
	IncludeMachineNumbers bool     `json:"include_machine_numbers" yaml:"include_machine_numbers"`
	WeightRecent          bool     `json:"weight_recent" yaml:"weight_recent"`
}

// DefaultConfig returns the prediction options used when a request leaves them out.
func DefaultConfig() Config {
	return Config{
		Model:               ModelHybrid,
		ConfidenceThreshold: common.DefaultThreshold,
		LookbackDays:        common.DefaultLookbackDays,
		WeightRecent:        true,
	}
}

// Normalize clamps the threshold into [0,1] and the lookback to at least a
// week. An empty model selects the hybrid.
func (c Config) Normalize() Config {
	if c.Model == "" {
		c.Model = ModelHybrid
	}
	if math.IsNaN(c.ConfidenceThreshold) || c.ConfidenceThreshold < 0 {
		c.ConfidenceThreshold = 0
	}
	if c.ConfidenceThreshold > 1 {
		c.ConfidenceThreshold = 1
	}
	if c.LookbackDays < common.MinLookbackDays {
		c.LookbackDays = common.MinLookbackDays
	}
	return c
}

// Contribution records what a sub-model proposed during a hybrid prediction.
type Contribution struct {
	Model      ModelTag `json:"model"`
	Numbers    []int    `json:"numbers,omitempty"`
	Confidence float64  `json:"confidence"`
	Weight     float64  `json:"weight"`
	Available  bool     `json:"available"`
}

// Output is a model prediction.
type Output struct {
	Numbers       []int          `json:"numbers"`
	Confidence    float64        `json:"confidence"`
	Model         ModelTag       `json:"model"`
	GeneratedAt   time.Time      `json:"generated_at"`
	Contributions []Contribution `json:"contributions,omitempty"`
}

// Validate checks the numbers form a valid draw and the confidence is a finite
// value in [0,1].
func (o Output) Validate() error {
	if err := draws.ValidateNumbers(o.Numbers); err != nil {
		return err
	}
	if math.IsNaN(o.Confidence) || o.Confidence < 0 || o.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", o.Confidence)
	}
	return nil
}

// PredictionRecord is a stored prediction and, once the draw happened, its
// actual winning numbers.
type PredictionRecord struct {
	ID         string    `json:"id"`
	CategoryID string    `json:"category_id"`
	DrawDate   time.Time `json:"draw_date"`
	RecordedAt time.Time `json:"recorded_at"`
	Output     Output    `json:"output"`
	Actual     []int     `json:"actual,omitempty"`
}

// HasOutcome reports whether the actual numbers are known.
func (r PredictionRecord) HasOutcome() bool {
	return len(r.Actual) > 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
