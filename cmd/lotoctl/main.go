package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"loto-predictor/internal/api"
	"loto-predictor/internal/backtest"
	"loto-predictor/internal/cfg"
	"loto-predictor/internal/client"
	"loto-predictor/internal/engine"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const usage = `usage: lotoctl [flags] <command> [args]

commands:
  health                      service status and current weights
  categories                  scheduled categories with their draw counts
  history <category>          stored draws, most recent first
  predict <category>          generate a prediction (-model, -threshold, -lookback, -machine, -recent)
  train <category>            train every model on the category history
  evaluate <category>         accuracy of the stored predictions per model
  recommend <category>        most accurate model
  adapt <category>            feed the best model accuracy into the hybrid weights
  import <file>               upload draws from a CSV or JSON file (-format)
  prune -days N               drop draws and predictions older than N days
  weights                     current hybrid weights
  reset                       restore the default hybrid weights
  watch                       follow the live prediction feed (-category)
`

func init() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env file not found, relying on actual environment variables")
	}
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	c, err := cfg.Load()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	fs := flag.NewFlagSet("lotoctl", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprint(out, usage)
		fs.PrintDefaults()
	}
	var (
		apiURL   = fs.String("api", c.APIURL, "API base URL")
		wsURL    = fs.String("ws", c.WSURL, "Prediction feed URL")
		timeout  = fs.Duration("timeout", c.RESTTimeout, "Request timeout")
		logLevel = fs.String("log-level", "warn", "Log level: debug, info, warn, error")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]

	rc := client.NewREST(*apiURL, *timeout)
	switch cmd {
	case "health":
		return printResult(out)(rc.Health())
	case "categories":
		return printResult(out)(rc.Categories())
	case "history":
		id, err := categoryArg(cmd, rest)
		if err != nil {
			return err
		}
		return printResult(out)(rc.History(id))
	case "predict":
		return predict(rc, rest, out)
	case "train":
		id, err := categoryArg(cmd, rest)
		if err != nil {
			return err
		}
		// Training runs far longer than a regular request
		rc.SetTimeout(c.TrainTimeout)
		return printResult(out)(rc.Train(id))
	case "evaluate":
		id, err := categoryArg(cmd, rest)
		if err != nil {
			return err
		}
		return printResult(out)(rc.Evaluate(id))
	case "recommend":
		id, err := categoryArg(cmd, rest)
		if err != nil {
			return err
		}
		tag, err := rc.Recommend(id)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, tag)
		return nil
	case "adapt":
		id, err := categoryArg(cmd, rest)
		if err != nil {
			return err
		}
		return printResult(out)(rc.Adapt(id))
	case "import":
		return importDraws(rc, rest, out)
	case "prune":
		return prune(rc, rest, out)
	case "weights":
		return printResult(out)(rc.Weights())
	case "reset":
		return printResult(out)(rc.ResetWeights())
	case "watch":
		return watch(ctx, *wsURL, rest, out)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func categoryArg(cmd string, args []string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("%s: expected exactly one category id", cmd)
	}
	return args[0], nil
}

// printResult returns a sink printing a client result as indented JSON.
func printResult(out io.Writer) func(any, error) error {
	return func(v any, err error) error {
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
}

func predict(rc *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	fs.SetOutput(out)
	var (
		model     = fs.String("model", "", "Model: hybrid, boost, forest, sequence or an alias")
		threshold = fs.Float64("threshold", -1, "Confidence threshold in [0,1]")
		lookback  = fs.Int("lookback", 0, "Lookback window in days")
		machine   = fs.Bool("machine", false, "Count machine numbers in frequencies")
		recent    = fs.Bool("recent", true, "Weight recent draws more")
	)
	id, err := parseWithCategory(fs, args)
	if err != nil {
		return err
	}

	// Only the flags actually given override the server defaults
	var req api.PredictRequest
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "model":
			req.Model = model
		case "threshold":
			req.ConfidenceThreshold = threshold
		case "lookback":
			req.LookbackDays = lookback
		case "machine":
			req.IncludeMachineNumbers = machine
		case "recent":
			req.WeightRecent = recent
		}
	})

	return printResult(out)(rc.Predict(id, req))
}

// parseWithCategory accepts the category before or after the flags.
func parseWithCategory(fs *flag.FlagSet, args []string) (string, error) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		if err := fs.Parse(args[1:]); err != nil {
			return "", err
		}
		if fs.NArg() > 0 {
			return "", fmt.Errorf("%s: unexpected arguments %v", fs.Name(), fs.Args())
		}
		return args[0], nil
	}
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	return categoryArg(fs.Name(), fs.Args())
}

func importDraws(rc *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(out)
	format := fs.String("format", "auto", "File format: auto, csv, json")
	batch := fs.Int("batch", 500, "Draws per upload request")
	path, err := parseWithCategory(fs, args)
	if err != nil {
		return err
	}

	loader := backtest.NewDataLoader()
	if err := loadFile(loader, path, *format); err != nil {
		return err
	}
	records := loader.Records()
	if len(records) == 0 {
		return fmt.Errorf("no valid draws in %s (%d skipped)", path, loader.Skipped())
	}

	size := *batch
	if size <= 0 {
		size = len(records)
	}
	stored := 0
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		n, err := rc.StoreDraws(records[start:end])
		if err != nil {
			return fmt.Errorf("upload after %d draws: %w", stored, err)
		}
		stored += n
	}

	fmt.Fprintf(out, "imported %d draws from %s (%d skipped)\n", stored, path, loader.Skipped())
	return nil
}

func loadFile(loader *backtest.DataLoader, path, format string) error {
	if format == "auto" {
		switch {
		case strings.HasSuffix(strings.ToLower(path), ".csv"):
			format = "csv"
		case strings.HasSuffix(strings.ToLower(path), ".json"):
			format = "json"
		default:
			return fmt.Errorf("cannot determine file format for: %s", path)
		}
	}

	switch format {
	case "csv":
		return loader.LoadFromCSV(path)
	case "json":
		return loader.LoadFromJSON(path)
	default:
		return fmt.Errorf("unknown data format %q", format)
	}
}

func prune(rc *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	fs.SetOutput(out)
	days := fs.Int("days", 0, "Drop records older than this many days")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *days <= 0 {
		return errors.New("prune: -days must be positive")
	}

	res, err := rc.Prune(*days)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "removed %d records dated before %s\n", res.Removed, res.Cutoff.Format("2006-01-02"))
	return nil
}

type reconnectCounter struct{ n atomic.Int64 }

func (c *reconnectCounter) Inc() { c.n.Add(1) }

func watch(ctx context.Context, url string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(out)
	category := fs.String("category", "", "Only show predictions of this category")
	if err := fs.Parse(args); err != nil {
		return err
	}

	reconnects := &reconnectCounter{}
	w := client.NewWatcher(url)
	w.SetReconnectCounter(reconnects)

	feed := make(chan engine.Prediction, 16)
	errc := make(chan error, 1)
	go func() { errc <- w.Watch(ctx, feed) }()

	for {
		select {
		case p := <-feed:
			if *category != "" && p.CategoryID != *category {
				continue
			}
			fmt.Fprintf(out, "%s %-28s %-8s %v confidence=%.3f draw=%s\n",
				p.GeneratedAt.Format(time.RFC3339), p.CategoryID, p.Model, p.Numbers,
				p.Confidence, p.DrawDate.Format("2006-01-02"))
		case err := <-errc:
			log.Info().Int64("reconnects", reconnects.n.Load()).Msg("prediction feed closed")
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}
