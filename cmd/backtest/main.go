package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"loto-predictor/internal/backtest"
	"loto-predictor/internal/cfg"
	"loto-predictor/internal/ml"
	"loto-predictor/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Parse command line arguments
	var (
		dataPath     = flag.String("data", "", "Path to a BoltDB data directory or a CSV/JSON draw file (default: DATA_PATH)")
		outputPath   = flag.String("output", "backtest_results", "Output directory for results")
		logLevel     = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		categories   = flag.String("categories", "", "Comma-separated category ids to replay (default: all)")
		modelName    = flag.String("model", "hybrid", "Model to replay: hybrid, boost, forest, sequence or an alias")
		dataFormat   = flag.String("format", "auto", "Data format: auto, csv, json, boltdb")
		warmup       = flag.Int("warmup", 0, "Draws a category needs before its first prediction (default: 10)")
		retrainEvery = flag.Int("retrain-every", backtest.DefaultOptions().RetrainEvery, "Retrain after this many new draws, 0 trains once per category")
	)
	flag.Parse()

	// Setup logging
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *dataPath == "" {
		*dataPath = config.DataPath
	}

	tag, err := ml.ParseModelTag(*modelName)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid model")
	}

	// Print configuration
	fmt.Println("=== Backtest Configuration ===")
	fmt.Printf("Data Path: %s\n", *dataPath)
	fmt.Printf("Model: %s\n", tag)
	fmt.Printf("Output Directory: %s\n", *outputPath)
	fmt.Printf("Log Level: %s\n", *logLevel)
	fmt.Println("==============================")

	filter := parseCategories(*categories)

	// Create data loader
	loader := backtest.NewDataLoader()
	switch *dataFormat {
	case "csv":
		err = loader.LoadFromCSV(*dataPath)
	case "json":
		err = loader.LoadFromJSON(*dataPath)
	case "boltdb":
		err = loadFromStore(loader, *dataPath, filter)
	case "auto":
		err = autoLoadData(loader, *dataPath, filter)
	default:
		log.Fatal().Str("format", *dataFormat).Msg("Unknown data format")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load data")
	}
	if len(filter) > 0 && *dataFormat != "boltdb" {
		loader.Filter(filter)
	}

	// The replay never touches the stored weights
	hybrid := ml.NewHybrid(
		ml.NewBoostModel(config.BoostParams()),
		ml.NewForestModel(config.ForestParams()),
		ml.NewSequenceModel(config.SequenceParams()),
		nil,
		config.HybridConfig(),
		nil,
	)
	var predictor ml.Predictor = hybrid
	if tag != ml.ModelHybrid {
		predictor = hybrid.Model(tag)
	}

	opts := backtest.DefaultOptions()
	opts.Warmup = *warmup
	opts.RetrainEvery = *retrainEvery
	opts.Config = config.PredictionConfig("")
	opts.Config.Model = tag

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Create and run backtest engine
	engine := backtest.NewEngine(predictor, loader, opts)
	if err := engine.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Backtest failed")
	}

	results := engine.GetResults()

	// Generate reports
	reporter := backtest.NewReporter(results, *outputPath)
	if err := reporter.GenerateReport(); err != nil {
		log.Error().Err(err).Msg("Failed to generate reports")
	}

	// Print summary to console
	reporter.PrintSummary()

	log.Info().
		Str("output", *outputPath).
		Msg("Backtest completed successfully")
}

func loadFromStore(loader *backtest.DataLoader, path string, categories []string) error {
	store, err := storage.New(path)
	if err != nil {
		return fmt.Errorf("failed to open BoltDB: %w", err)
	}
	defer store.Close()
	return loader.LoadFromStore(store, categories)
}

// autoLoadData attempts to automatically detect and load data
func autoLoadData(loader *backtest.DataLoader, path string, categories []string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat path: %w", err)
	}

	if info.IsDir() {
		// Assume it's a BoltDB directory
		return loadFromStore(loader, path, categories)
	}

	// Check file extension
	switch {
	case strings.HasSuffix(path, ".csv"):
		return loader.LoadFromCSV(path)
	case strings.HasSuffix(path, ".json"):
		return loader.LoadFromJSON(path)
	default:
		return fmt.Errorf("cannot determine file format for: %s", path)
	}
}

// parseCategories parses comma-separated category ids
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
