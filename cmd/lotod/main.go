package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"loto-predictor/internal/api"
	"loto-predictor/internal/cfg"
	"loto-predictor/internal/engine"
	"loto-predictor/internal/metrics"
	"loto-predictor/internal/ml"
	"loto-predictor/internal/storage"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const evaluationInterval = time.Hour

func init() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env file not found, relying on actual environment variables")
	}
}

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize components
	m := metrics.New()
	mw := metrics.NewWrapper(m)

	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", c.DataPath).Msg("storage initialization failed")
	}
	defer store.Close()

	hybrid := initializeModels(c, store, mw)
	opts := engine.DefaultOptions()
	opts.TrainTimeout = c.TrainTimeout
	eng := engine.New(store, store, hybrid, mw, opts)

	// Start servers
	startMetricsServer(ctx, c, cancel)
	srv := startAPIServer(c, eng, store, mw, cancel)

	// Start background goroutines
	var wg sync.WaitGroup
	startEvaluationLoop(ctx, &wg, eng, store)

	log.Info().
		Int("api_port", c.APIPort).
		Int("metrics_port", c.MetricsPort).
		Str("data_path", c.DataPath).
		Interface("weights", hybrid.Weights()).
		Msg("loto predictor started")

	// Wait for shutdown signal
	waitForShutdown(ctx, cancel, &wg, srv)
}

func setupLogging(c cfg.Settings) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// initializeModels builds the three base models and the hybrid over them
func initializeModels(c cfg.Settings, store *storage.Store, mw *metrics.MetricsWrapper) *ml.Hybrid {
	return ml.NewHybrid(
		ml.NewBoostModel(c.BoostParams()),
		ml.NewForestModel(c.ForestParams()),
		ml.NewSequenceModel(c.SequenceParams()),
		store,
		c.HybridConfig(),
		mw,
	)
}

// startMetricsServer starts the Prometheus metrics HTTP server
func startMetricsServer(ctx context.Context, c cfg.Settings, cancel context.CancelFunc) {
	go func() {
		mux := http.NewServeMux()

		// Add health endpoint
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})

		// Add metrics endpoint
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", c.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := server.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown metrics server")
			}
		}()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
			cancel()
		}
	}()
}

// startAPIServer serves the engine operations and the prediction feed
func startAPIServer(c cfg.Settings, eng *engine.Engine, store *storage.Store, mw *metrics.MetricsWrapper, cancel context.CancelFunc) *api.Server {
	opts := api.DefaultOptions(c.APIPort)
	opts.Defaults = c.PredictionConfig
	opts.RequestTimeout = c.ModelTimeout + 30*time.Second

	srv := api.NewServer(eng, store, mw, opts)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("API server failed")
			cancel()
		}
	}()
	return srv
}

// startEvaluationLoop periodically resolves prediction outcomes and refreshes
// the accuracy gauges of every category holding draws
func startEvaluationLoop(ctx context.Context, wg *sync.WaitGroup, eng *engine.Engine, store *storage.Store) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(evaluationInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				evaluateAll(eng, store)
			}
		}
	}()
}

func evaluateAll(eng *engine.Engine, store *storage.Store) {
	counts, err := store.CountDraws()
	if err != nil {
		log.Error().Err(err).Msg("failed to count draws")
		return
	}

	categories := make([]string, 0, len(counts))
	for id := range counts {
		categories = append(categories, id)
	}
	sort.Strings(categories)

	for _, id := range categories {
		perfs, err := eng.Evaluate(id)
		if err != nil {
			log.Warn().Err(err).Str("category", id).Msg("evaluation failed")
			continue
		}
		best, acc := ml.Best(perfs)
		log.Debug().Str("category", id).Str("best", string(best)).Float64("accuracy", acc).Msg("category evaluated")
	}
}

// waitForShutdown waits for shutdown signals and handles graceful shutdown
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup, srv *api.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel() // Cancel context to stop all goroutines

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown API server")
	}

	// Wait for all goroutines to finish with timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all goroutines stopped")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}
