// Command snapfetch downloads one image per (identifier, suffix) pair and
// stores it under a stable name and a dated name.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/Sternrassler/snapfetch/internal/config"
	"github.com/Sternrassler/snapfetch/pkg/batch"
	"github.com/Sternrassler/snapfetch/pkg/client"
	"github.com/Sternrassler/snapfetch/pkg/datestamp"
	"github.com/Sternrassler/snapfetch/pkg/ledger"
	"github.com/Sternrassler/snapfetch/pkg/logging"
	"github.com/Sternrassler/snapfetch/pkg/metrics"
	"github.com/Sternrassler/snapfetch/pkg/sink"
)

// Exit codes
const (
	ExitSuccess        = 0
	ExitGeneralError   = 1
	ExitInvalidConfig  = 2
	ExitIdentifierFile = 3
	ExitNoSuccesses    = 4
)

// statusHistoryLength is the number of runs --status lists.
const statusHistoryLength = 10

// Output streams, replaced in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func main() {
	os.Exit(run(os.Args[1:]))
}

type flags struct {
	fs *pflag.FlagSet

	configFile  *string
	baseURL     *string
	suffixes    *[]string
	extension   *string
	idFile      *string
	ids         *[]string
	timeout     *string
	retries     *int
	date        *string
	timeZone    *string
	output      *string
	concurrency *int
	backoff     *time.Duration
	maxBackoff  *time.Duration
	userAgent   *string
	redisURL    *string
	metricsFile *string
	pushgateway *string
	logLevel    *string
	logPretty   *bool
	status      *bool
	help        *bool
}

func newFlags() *flags {
	fs := pflag.NewFlagSet("snapfetch", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	f := &flags{fs: fs}
	f.configFile = fs.StringP("config", "c", "", "YAML config file")
	f.baseURL = fs.StringP("base-url", "u", "", "request prefix; {base-url}/{id}_{date}_{suffix}.{ext} is fetched")
	f.suffixes = fs.StringSliceP("suffixes", "s", nil, "comma-separated suffixes (e.g. in,out)")
	f.extension = fs.StringP("extension", "e", "", "file extension (default jpg)")
	f.idFile = fs.StringP("id-file", "i", "", "identifier list, one per line (default ids.txt)")
	f.ids = fs.StringSlice("ids", nil, "comma-separated identifiers, replaces --id-file")
	f.timeout = fs.StringP("timeout", "t", "", "per-request timeout, seconds or duration (default 60)")
	f.retries = fs.IntP("retries", "r", 0, "additional attempts per task after the first failure (default 3)")
	f.date = fs.StringP("date", "d", "", "date stamp override, YYYY-MM-DD")
	f.timeZone = fs.String("time-zone", "", "time zone for the date stamp (default "+datestamp.DefaultZone+")")
	f.output = fs.StringP("output", "o", "", "output directory or bucket URL (default out)")
	f.concurrency = fs.IntP("concurrency", "j", 0, "tasks in flight (default 1, sequential)")
	f.backoff = fs.Duration("backoff", 0, "initial wait between attempts (0 retries immediately)")
	f.maxBackoff = fs.Duration("max-backoff", 0, "maximum wait between attempts (default 30s)")
	f.userAgent = fs.String("user-agent", "", "User-Agent header")
	f.redisURL = fs.String("redis-url", "", "record runs in Redis (redis://host:port/db or host:port)")
	f.metricsFile = fs.String("metrics-file", "", "write Prometheus metrics to this textfile after the run")
	f.pushgateway = fs.String("pushgateway", "", "push Prometheus metrics to this Pushgateway after the run")
	f.logLevel = fs.StringP("log-level", "L", "", "log level: debug, info, warn, error")
	f.logPretty = fs.Bool("log-pretty", false, "human-readable logs instead of JSON")
	f.status = fs.Bool("status", false, "print the last recorded run and exit (requires --redis-url)")
	f.help = fs.BoolP("help", "h", false, "show this help text")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: snapfetch [options]\n\nOptions:\n%s", fs.FlagUsages())
		fmt.Fprintf(stderr, "\nEvery option can also be set as %s<NAME> (e.g. %sBASE_URL).\n", config.EnvPrefix, config.EnvPrefix)
	}
	return f
}

// apply overlays the flags that were set on the command line.
func (f *flags) apply(cfg config.Config) (config.Config, error) {
	override := config.Config{
		BaseURL:     *f.baseURL,
		Suffixes:    *f.suffixes,
		Extension:   *f.extension,
		IDFile:      *f.idFile,
		Identifiers: *f.ids,
		Date:        *f.date,
		TimeZone:    *f.timeZone,
		Output:      *f.output,
		Concurrency: *f.concurrency,
		Backoff:     *f.backoff,
		MaxBackoff:  *f.maxBackoff,
		UserAgent:   *f.userAgent,
		RedisURL:    *f.redisURL,
		MetricsFile: *f.metricsFile,
		Pushgateway: *f.pushgateway,
		LogLevel:    *f.logLevel,
	}
	if *f.timeout != "" {
		d, err := config.ParseTimeout(*f.timeout)
		if err != nil {
			return cfg, fmt.Errorf("parse --timeout: %w", err)
		}
		override.Timeout = d
	}

	cfg = cfg.Merge(override)
	if f.fs.Changed("retries") {
		cfg.Retries = *f.retries
	}
	if f.fs.Changed("log-pretty") {
		cfg.LogPretty = *f.logPretty
	}
	return cfg, nil
}

func run(args []string) int {
	f := newFlags()
	if err := f.fs.Parse(args); err != nil {
		return ExitInvalidConfig
	}
	if *f.help {
		f.fs.Usage()
		return ExitSuccess
	}
	if f.fs.NArg() != 0 {
		fmt.Fprintf(stderr, "Error: unexpected arguments: %s\n", strings.Join(f.fs.Args(), " "))
		f.fs.Usage()
		return ExitInvalidConfig
	}

	cfg, err := loadConfig(f)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidConfig
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *f.status {
		return runStatus(ctx, cfg)
	}
	return runBatch(ctx, cfg, logger)
}

func loadConfig(f *flags) (config.Config, error) {
	cfg := config.Default()
	if *f.configFile != "" {
		loaded, err := config.LoadFromFile(*f.configFile)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return cfg, err
	}
	return f.apply(cfg)
}

func runBatch(ctx context.Context, cfg config.Config, logger zerolog.Logger) int {
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		return ExitInvalidConfig
	}

	ids, err := cfg.ResolveIdentifiers()
	if err != nil {
		logger.Error().Err(err).Str("id_file", cfg.IDFile).Msg("Cannot read identifiers")
		return ExitIdentifierFile
	}

	date, err := datestamp.Resolve(cfg.Date, cfg.TimeZone, time.Now())
	if err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		return ExitInvalidConfig
	}

	bc := cfg.Batch(ids, date)
	if err := bc.Validate(); err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		return ExitInvalidConfig
	}

	c, err := client.New(client.Config{UserAgent: cfg.UserAgent, Timeout: cfg.Timeout})
	if err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		return ExitInvalidConfig
	}

	out, err := sink.Open(ctx, cfg.Output)
	if err != nil {
		logger.Error().Err(err).Str("output", cfg.Output).Msg("Cannot open output")
		return ExitInvalidConfig
	}
	defer out.Close()

	fetcher := batch.NewFetcher(c, out, bc)
	fetcher.SetLogger(logger.With().Str("component", "batch").Logger())

	if cfg.RedisURL != "" {
		rdb, err := ledger.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("Ledger unavailable, continuing without it")
		} else {
			defer rdb.Close()
			fetcher.SetRecorder(ledger.New(rdb))
		}
	}

	summary, err := fetcher.FetchAll(ctx)

	exportMetrics(ctx, cfg, logger)

	switch {
	case err == nil:
	case errors.Is(err, batch.ErrNoSuccesses):
		logger.Error().Err(err).Msg("No image was saved")
		return ExitNoSuccesses
	case batch.IsConfigError(err):
		logger.Error().Err(err).Msg("Invalid configuration")
		return ExitInvalidConfig
	default:
		logger.Error().Err(err).Msg("Batch failed")
		return ExitGeneralError
	}

	if ctx.Err() != nil {
		logger.Warn().
			Int("successes", summary.Successes).
			Msg("Interrupted")
		return ExitGeneralError
	}
	return ExitSuccess
}

// exportMetrics hands the run's metrics to the configured collectors. Export
// failures are logged and do not change the exit status.
func exportMetrics(ctx context.Context, cfg config.Config, logger zerolog.Logger) {
	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn().Err(err).Msg("Metrics export failed")
		}
	}
	if cfg.Pushgateway != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := metrics.Push(pushCtx, cfg.Pushgateway, metrics.DefaultJob); err != nil {
			logger.Warn().Err(err).Msg("Metrics push failed")
		}
	}
}

func runStatus(ctx context.Context, cfg config.Config) int {
	if cfg.RedisURL == "" {
		fmt.Fprintln(stderr, "Error: --status requires --redis-url")
		return ExitInvalidConfig
	}

	rdb, err := ledger.Connect(ctx, cfg.RedisURL)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitGeneralError
	}
	defer rdb.Close()

	l := ledger.New(rdb)
	last, err := l.LastRun(ctx)
	if errors.Is(err, ledger.ErrNoRuns) {
		fmt.Fprintln(stdout, "No runs recorded.")
		return ExitSuccess
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitGeneralError
	}

	fmt.Fprintf(stdout, "Last run:  %s (%s)\n", last.Date, last.Status)
	fmt.Fprintf(stdout, "Finished:  %s (took %s)\n", last.FinishedAt.Format(time.RFC3339), last.Duration().Round(time.Millisecond))
	fmt.Fprintf(stdout, "Tasks:     %d attempted, %d saved, %d failed (%d requests)\n",
		last.Attempts, last.Successes, last.Failures, last.Requests)

	runs, err := l.Runs(ctx, statusHistoryLength)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitGeneralError
	}
	if len(runs) > 1 {
		fmt.Fprintln(stdout, "\nRecent runs:")
		for _, r := range runs {
			fmt.Fprintf(stdout, "  %s  %-12s  %d/%d\n", r.Date, r.Status, r.Successes, r.Attempts)
		}
	}
	return ExitSuccess
}
