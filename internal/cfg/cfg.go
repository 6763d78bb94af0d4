package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"loto-predictor/internal/common"
	"loto-predictor/internal/draws"
	"loto-predictor/internal/ml"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	DataPath    string
	APIPort     int
	MetricsPort int
	LogLevel    string
	LogPretty   bool
	Seed        int64

	ModelTimeout   time.Duration
	TrainTimeout   time.Duration
	FallbackWindow int

	DefaultModel          string
	ConfidenceThreshold   float64
	LookbackDays          int
	WeightRecent          bool
	IncludeMachineNumbers bool

	TrendWindow        int
	RecencyDecay       float64
	CoOccurrenceWeight float64
	BoostLearningRate  float64
	BoostIterations    int

	ForestTrees    int
	ForestMaxDepth int
	ForestMinLeaf  int

	SequenceWindow int
	SequenceEpochs int
	SequenceRate   float64

	Weights         ml.Weights
	CategoryConfigs map[string]CategoryConfig

	APIURL      string
	WSURL       string
	RESTTimeout time.Duration
}

// CategoryConfig overrides the prediction defaults of one draw category.
type CategoryConfig struct {
	Model               string  `yaml:"model"`
	ConfidenceThreshold float64 `yaml:"confidenceThreshold"`
	LookbackDays        int     `yaml:"lookbackDays"`
}

type ConfigFile struct {
	Server struct {
		DataPath    string `yaml:"dataPath"`
		APIPort     int    `yaml:"apiPort"`
		MetricsPort int    `yaml:"metricsPort"`
		LogLevel    string `yaml:"logLevel"`
		LogPretty   bool   `yaml:"logPretty"`
	} `yaml:"server"`

	Prediction struct {
		Model                 string  `yaml:"model"`
		ConfidenceThreshold   float64 `yaml:"confidenceThreshold"`
		LookbackDays          int     `yaml:"lookbackDays"`
		WeightRecent          *bool   `yaml:"weightRecent"`
		IncludeMachineNumbers bool    `yaml:"includeMachineNumbers"`
		Seed                  int64   `yaml:"seed"`
		ModelTimeout          string  `yaml:"modelTimeout"`
		TrainTimeout          string  `yaml:"trainTimeout"`
		FallbackWindow        int     `yaml:"fallbackWindow"`
	} `yaml:"prediction"`

	Weights struct {
		Boost    float64 `yaml:"boost"`
		Forest   float64 `yaml:"forest"`
		Sequence float64 `yaml:"sequence"`
	} `yaml:"weights"`

	Boost struct {
		LearningRate       float64 `yaml:"learningRate"`
		Iterations         int     `yaml:"iterations"`
		TrendWindow        int     `yaml:"trendWindow"`
		RecencyDecay       float64 `yaml:"recencyDecay"`
		CoOccurrenceWeight float64 `yaml:"coOccurrenceWeight"`
	} `yaml:"boost"`

	Forest struct {
		Trees    int `yaml:"trees"`
		MaxDepth int `yaml:"maxDepth"`
		MinLeaf  int `yaml:"minLeaf"`
	} `yaml:"forest"`

	Sequence struct {
		Window       int     `yaml:"window"`
		Epochs       int     `yaml:"epochs"`
		LearningRate float64 `yaml:"learningRate"`
	} `yaml:"sequence"`

	CategoryConfig map[string]CategoryConfig `yaml:"categoryConfig"`

	Client struct {
		APIURL      string `yaml:"apiURL"`
		WSURL       string `yaml:"wsURL"`
		RESTTimeout string `yaml:"restTimeout"`
	} `yaml:"client"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Parse durations
	modelTimeout, err := time.ParseDuration(config.Prediction.ModelTimeout)
	if err != nil {
		modelTimeout = 30 * time.Second
	}

	trainTimeout, err := time.ParseDuration(config.Prediction.TrainTimeout)
	if err != nil {
		trainTimeout = 10 * time.Minute
	}

	restTimeout, err := time.ParseDuration(config.Client.RESTTimeout)
	if err != nil {
		restTimeout = 5 * time.Second
	}

	weightRecent := true
	if config.Prediction.WeightRecent != nil {
		weightRecent = *config.Prediction.WeightRecent
	}

	weights := ml.Weights{Boost: config.Weights.Boost, Forest: config.Weights.Forest, Sequence: config.Weights.Sequence}
	if weights.Sum() == 0 {
		weights = ml.DefaultWeights()
	}

	categories := config.CategoryConfig
	if categories == nil {
		categories = make(map[string]CategoryConfig)
	}

	// Override with environment variables if they exist
	settings := Settings{
		DataPath:    getEnvOrDefault(common.EnvDataPath, orString(config.Server.DataPath, common.DefaultDataPath)),
		APIPort:     getIntFromEnvOrConfig(common.EnvAPIPort, config.Server.APIPort, common.DefaultAPIPort),
		MetricsPort: getIntFromEnvOrConfig(common.EnvMetricsPort, config.Server.MetricsPort, common.DefaultMetricsPort),
		LogLevel:    getEnvOrDefault(common.EnvLogLevel, orString(config.Server.LogLevel, common.DefaultLogLevel)),
		LogPretty:   getBoolFromEnvOrConfig(common.EnvLogPretty, config.Server.LogPretty),
		Seed:        int64(getIntFromEnvOrConfig(common.EnvSeed, int(config.Prediction.Seed), common.DefaultSeed)),

		ModelTimeout:   getDurationOrDefault(common.EnvModelTimeout, modelTimeout),
		TrainTimeout:   getDurationOrDefault(common.EnvTrainTimeout, trainTimeout),
		FallbackWindow: getIntFromEnvOrConfig(common.EnvFallbackWindow, config.Prediction.FallbackWindow, common.DefaultFallbackWindow),

		DefaultModel:          getEnvOrDefault(common.EnvDefaultModel, orString(config.Prediction.Model, string(ml.ModelHybrid))),
		ConfidenceThreshold:   getFloatFromEnvOrConfig(common.EnvThreshold, config.Prediction.ConfidenceThreshold, common.DefaultThreshold),
		LookbackDays:          getIntFromEnvOrConfig(common.EnvLookbackDays, config.Prediction.LookbackDays, common.DefaultLookbackDays),
		WeightRecent:          getBoolFromEnvOrConfig(common.EnvWeightRecent, weightRecent),
		IncludeMachineNumbers: getBoolFromEnvOrConfig(common.EnvIncludeMachine, config.Prediction.IncludeMachineNumbers),

		TrendWindow:        getIntFromEnvOrConfig(common.EnvTrendWindow, config.Boost.TrendWindow, common.DefaultTrendWindow),
		RecencyDecay:       getFloatFromEnvOrConfig(common.EnvRecencyDecay, config.Boost.RecencyDecay, common.DefaultRecencyDecay),
		CoOccurrenceWeight: getFloatFromEnvOrConfig(common.EnvCoOccurrenceWeight, config.Boost.CoOccurrenceWeight, common.DefaultCoOccurrenceWeight),
		BoostLearningRate:  getFloatFromEnvOrConfig(common.EnvBoostLearningRate, config.Boost.LearningRate, common.DefaultBoostLearningRate),
		BoostIterations:    getIntFromEnvOrConfig(common.EnvBoostIterations, config.Boost.Iterations, common.DefaultBoostIterations),

		ForestTrees:    getIntFromEnvOrConfig(common.EnvForestTrees, config.Forest.Trees, common.DefaultForestTrees),
		ForestMaxDepth: getIntFromEnvOrConfig(common.EnvForestMaxDepth, config.Forest.MaxDepth, common.DefaultForestMaxDepth),
		ForestMinLeaf:  getIntFromEnvOrConfig(common.EnvForestMinLeaf, config.Forest.MinLeaf, common.DefaultForestMinLeaf),

		SequenceWindow: getIntFromEnvOrConfig(common.EnvSequenceWindow, config.Sequence.Window, common.DefaultSequenceWindow),
		SequenceEpochs: getIntFromEnvOrConfig(common.EnvSequenceEpochs, config.Sequence.Epochs, common.DefaultSequenceEpochs),
		SequenceRate:   getFloatFromEnvOrConfig(common.EnvSequenceRate, config.Sequence.LearningRate, common.DefaultSequenceRate),

		Weights:         weights,
		CategoryConfigs: categories,

		APIURL:      getEnvOrDefault(common.EnvAPIURL, orString(config.Client.APIURL, common.DefaultAPIURL)),
		WSURL:       getEnvOrDefault(common.EnvWSURL, orString(config.Client.WSURL, common.DefaultWSURL)),
		RESTTimeout: getDurationOrDefault(common.EnvRESTTimeout, restTimeout),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		DataPath:    getEnvOrDefault(common.EnvDataPath, common.DefaultDataPath),
		APIPort:     getIntOrDefault(common.EnvAPIPort, common.DefaultAPIPort),
		MetricsPort: getIntOrDefault(common.EnvMetricsPort, common.DefaultMetricsPort),
		LogLevel:    getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogPretty:   getBoolOrDefault(common.EnvLogPretty, false),
		Seed:        int64(getIntOrDefault(common.EnvSeed, common.DefaultSeed)),

		ModelTimeout:   getDurationOrDefault(common.EnvModelTimeout, 30*time.Second),
		TrainTimeout:   getDurationOrDefault(common.EnvTrainTimeout, 10*time.Minute),
		FallbackWindow: getIntOrDefault(common.EnvFallbackWindow, common.DefaultFallbackWindow),

		DefaultModel:          getEnvOrDefault(common.EnvDefaultModel, string(ml.ModelHybrid)),
		ConfidenceThreshold:   getFloatOrDefault(common.EnvThreshold, common.DefaultThreshold),
		LookbackDays:          getIntOrDefault(common.EnvLookbackDays, common.DefaultLookbackDays),
		WeightRecent:          getBoolOrDefault(common.EnvWeightRecent, true),
		IncludeMachineNumbers: getBoolOrDefault(common.EnvIncludeMachine, false),

		TrendWindow:        getIntOrDefault(common.EnvTrendWindow, common.DefaultTrendWindow),
		RecencyDecay:       getFloatOrDefault(common.EnvRecencyDecay, common.DefaultRecencyDecay),
		CoOccurrenceWeight: getFloatOrDefault(common.EnvCoOccurrenceWeight, common.DefaultCoOccurrenceWeight),
		BoostLearningRate:  getFloatOrDefault(common.EnvBoostLearningRate, common.DefaultBoostLearningRate),
		BoostIterations:    getIntOrDefault(common.EnvBoostIterations, common.DefaultBoostIterations),

		ForestTrees:    getIntOrDefault(common.EnvForestTrees, common.DefaultForestTrees),
		ForestMaxDepth: getIntOrDefault(common.EnvForestMaxDepth, common.DefaultForestMaxDepth),
		ForestMinLeaf:  getIntOrDefault(common.EnvForestMinLeaf, common.DefaultForestMinLeaf),

		SequenceWindow: getIntOrDefault(common.EnvSequenceWindow, common.DefaultSequenceWindow),
		SequenceEpochs: getIntOrDefault(common.EnvSequenceEpochs, common.DefaultSequenceEpochs),
		SequenceRate:   getFloatOrDefault(common.EnvSequenceRate, common.DefaultSequenceRate),

		Weights:         ml.DefaultWeights(),
		CategoryConfigs: make(map[string]CategoryConfig),

		APIURL:      getEnvOrDefault(common.EnvAPIURL, common.DefaultAPIURL),
		WSURL:       getEnvOrDefault(common.EnvWSURL, common.DefaultWSURL),
		RESTTimeout: getDurationOrDefault(common.EnvRESTTimeout, 5*time.Second),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// GetCategoryConfig returns the prediction overrides of a category, with
// fallback to the global defaults for unset fields.
func (s *Settings) GetCategoryConfig(categoryID string) CategoryConfig {
	def := CategoryConfig{
		Model:               s.DefaultModel,
		ConfidenceThreshold: s.ConfidenceThreshold,
		LookbackDays:        s.LookbackDays,
	}
	config, exists := s.CategoryConfigs[categoryID]
	if !exists {
		return def
	}
	if config.Model == "" {
		config.Model = def.Model
	}
	if config.ConfidenceThreshold == 0 {
		config.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if config.LookbackDays == 0 {
		config.LookbackDays = def.LookbackDays
	}
	return config
}

// PredictionConfig builds the default request configuration of a category.
func (s *Settings) PredictionConfig(categoryID string) ml.Config {
	cc := s.GetCategoryConfig(categoryID)
	tag, err := ml.ParseModelTag(cc.Model)
	if err != nil {
		tag = ml.ModelHybrid
	}
	return ml.Config{
		Model:                 tag,
		ConfidenceThreshold:   cc.ConfidenceThreshold,
		LookbackDays:          cc.LookbackDays,
		IncludeMachineNumbers: s.IncludeMachineNumbers,
		WeightRecent:          s.WeightRecent,
	}.Normalize()
}

func (s *Settings) BoostParams() ml.BoostParams {
	p := ml.DefaultBoostParams()
	p.LearningRate = s.BoostLearningRate
	p.Iterations = s.BoostIterations
	p.RecencyDecay = s.RecencyDecay
	p.CoOccurrenceWeight = s.CoOccurrenceWeight
	p.TrendWindow = s.TrendWindow
	p.Seed = s.Seed
	return p
}

func (s *Settings) ForestParams() ml.ForestParams {
	p := ml.DefaultForestParams()
	p.Trees = s.ForestTrees
	p.MaxDepth = s.ForestMaxDepth
	p.MinLeaf = s.ForestMinLeaf
	p.Seed = s.Seed + 1
	return p
}

func (s *Settings) SequenceParams() ml.SequenceParams {
	p := ml.DefaultSequenceParams()
	p.Window = s.SequenceWindow
	p.Epochs = s.SequenceEpochs
	p.LearningRate = s.SequenceRate
	p.Seed = s.Seed + 2
	return p
}

func (s *Settings) HybridConfig() ml.HybridConfig {
	c := ml.DefaultHybridConfig()
	c.Timeout = s.ModelTimeout
	c.FallbackWindow = s.FallbackWindow
	if w, err := s.Weights.Normalized(); err == nil {
		c.DefaultWeights = w
	}
	return c
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			return val
		}
	}
	return configValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	// Validate paths and URLs
	if settings.DataPath == "" {
		return fmt.Errorf("data path cannot be empty")
	}
	if settings.APIURL == "" {
		return fmt.Errorf("API URL cannot be empty")
	}
	if settings.WSURL == "" {
		return fmt.Errorf("WebSocket URL cannot be empty")
	}

	// Validate ports
	if settings.APIPort < common.MinMetricsPort || settings.APIPort > common.MaxMetricsPort {
		return fmt.Errorf("API port must be between 1024 and 65535, got %d", settings.APIPort)
	}
	if settings.MetricsPort < common.MinMetricsPort || settings.MetricsPort > common.MaxMetricsPort {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", settings.MetricsPort)
	}
	if settings.APIPort == settings.MetricsPort {
		return fmt.Errorf("API port and metrics port must differ, both are %d", settings.APIPort)
	}
	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", settings.LogLevel, err)
	}

	// Validate time durations
	if settings.ModelTimeout < 100*time.Millisecond || settings.ModelTimeout > 5*time.Minute {
		return fmt.Errorf("model timeout must be between 100ms and 5m, got %v", settings.ModelTimeout)
	}
	if settings.TrainTimeout < time.Second || settings.TrainTimeout > time.Hour {
		return fmt.Errorf("train timeout must be between 1s and 1h, got %v", settings.TrainTimeout)
	}
	if settings.RESTTimeout < time.Second || settings.RESTTimeout > time.Minute {
		return fmt.Errorf("REST timeout must be between 1s and 1m, got %v", settings.RESTTimeout)
	}

	// Validate prediction defaults
	if _, err := ml.ParseModelTag(settings.DefaultModel); err != nil {
		return fmt.Errorf("default model: %w", err)
	}
	if settings.ConfidenceThreshold < 0 || settings.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be between 0 and 1, got %f", settings.ConfidenceThreshold)
	}
	if settings.LookbackDays < common.MinLookbackDays {
		return fmt.Errorf("lookback days must be at least %d, got %d", common.MinLookbackDays, settings.LookbackDays)
	}
	if settings.FallbackWindow <= 0 || settings.FallbackWindow > 1000 {
		return fmt.Errorf("fallback window must be between 1 and 1000, got %d", settings.FallbackWindow)
	}

	// Validate model parameters
	if settings.TrendWindow <= 0 || settings.TrendWindow > 100 {
		return fmt.Errorf("trend window must be between 1 and 100, got %d", settings.TrendWindow)
	}
	if settings.RecencyDecay <= 0 {
		return fmt.Errorf("recency decay must be positive, got %f", settings.RecencyDecay)
	}
	if settings.CoOccurrenceWeight < 0 || settings.CoOccurrenceWeight > 1 {
		return fmt.Errorf("co-occurrence weight must be between 0 and 1, got %f", settings.CoOccurrenceWeight)
	}
	if settings.BoostLearningRate <= 0 || settings.BoostLearningRate > 1 {
		return fmt.Errorf("boost learning rate must be between 0 and 1, got %f", settings.BoostLearningRate)
	}
	if settings.BoostIterations <= 0 || settings.BoostIterations > 10000 {
		return fmt.Errorf("boost iterations must be between 1 and 10000, got %d", settings.BoostIterations)
	}
	if settings.ForestTrees <= 0 || settings.ForestTrees > common.MaxForestTrees {
		return fmt.Errorf("forest trees must be between 1 and %d, got %d", common.MaxForestTrees, settings.ForestTrees)
	}
	if settings.ForestMaxDepth <= 0 || settings.ForestMaxDepth > common.MaxForestDepth {
		return fmt.Errorf("forest max depth must be between 1 and %d, got %d", common.MaxForestDepth, settings.ForestMaxDepth)
	}
	if settings.ForestMinLeaf <= 0 {
		return fmt.Errorf("forest min leaf must be positive, got %d", settings.ForestMinLeaf)
	}
	if settings.SequenceWindow <= 0 || settings.SequenceWindow > common.MaxSequenceWidth {
		return fmt.Errorf("sequence window must be between 1 and %d, got %d", common.MaxSequenceWidth, settings.SequenceWindow)
	}
	if settings.SequenceEpochs <= 0 || settings.SequenceEpochs > 10000 {
		return fmt.Errorf("sequence epochs must be between 1 and 10000, got %d", settings.SequenceEpochs)
	}
	if settings.SequenceRate <= 0 || settings.SequenceRate > 10 {
		return fmt.Errorf("sequence learning rate must be between 0 and 10, got %f", settings.SequenceRate)
	}

	// Validate hybrid weights
	if _, err := settings.Weights.Normalized(); err != nil {
		return fmt.Errorf("hybrid weights: %w", err)
	}

	// Validate category-specific configs
	for categoryID, config := range settings.CategoryConfigs {
		if _, ok := draws.CategoryByID(categoryID); !ok {
			return fmt.Errorf("category %s: unknown draw category", categoryID)
		}
		if config.Model != "" {
			if _, err := ml.ParseModelTag(config.Model); err != nil {
				return fmt.Errorf("category %s: %w", categoryID, err)
			}
		}
		if config.ConfidenceThreshold < 0 || config.ConfidenceThreshold > 1 {
			return fmt.Errorf("category %s: confidence threshold must be between 0 and 1, got %f", categoryID, config.ConfidenceThreshold)
		}
		if config.LookbackDays != 0 && config.LookbackDays < common.MinLookbackDays {
			return fmt.Errorf("category %s: lookback days must be at least %d, got %d", categoryID, common.MinLookbackDays, config.LookbackDays)
		}
	}

	return nil
}
