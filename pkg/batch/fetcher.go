package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/snapfetch/pkg/client"
	"github.com/Sternrassler/snapfetch/pkg/logging"
	"github.com/Sternrassler/snapfetch/pkg/sink"
)

// Getter performs a single fetch attempt and returns the full body.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Recorder persists task and run outcomes. Recording failures are logged and
// never fail the batch.
type Recorder interface {
	RecordTask(ctx context.Context, outcome Outcome) error
	RecordRun(ctx context.Context, run Run) error
}

// Run describes a finished batch for recorders.
type Run struct {
	Date       string
	StartedAt  time.Time
	FinishedAt time.Time
	Summary    Summary
}

// Fetcher runs batches against a Getter and writes into a Sink.
type Fetcher struct {
	getter   Getter
	sink     sink.Sink
	config   Config
	recorder Recorder
	logger   zerolog.Logger
}

// NewFetcher creates a new batch fetcher.
func NewFetcher(getter Getter, out sink.Sink, config Config) *Fetcher {
	return &Fetcher{
		getter: getter,
		sink:   out,
		config: config.normalized(),
		logger: logging.NewLogger("batch"),
	}
}

// SetRecorder attaches a recorder for task and run outcomes.
func (f *Fetcher) SetRecorder(r Recorder) {
	f.recorder = r
}

// SetLogger replaces the fetcher's logger.
func (f *Fetcher) SetLogger(logger zerolog.Logger) {
	f.logger = logger
}

// FetchAll runs every task and returns the accumulated summary. It returns a
// *ConfigError before any request when the configuration is invalid, and an
// error wrapping ErrNoSuccesses when no task succeeded. Per-task failures are
// recorded in the summary, never returned.
func (f *Fetcher) FetchAll(ctx context.Context) (Summary, error) {
	if err := f.config.Validate(); err != nil {
		return Summary{}, err
	}
	if f.getter == nil {
		return Summary{}, &ConfigError{Field: "getter", Reason: "is required"}
	}
	if f.sink == nil {
		return Summary{}, &ConfigError{Field: "output", Reason: "is required"}
	}

	started := time.Now()
	tasks := Tasks(f.config.Identifiers, f.config.Suffixes, f.config.Date, f.config.Extension)

	f.logger.Info().
		Str("date", f.config.Date).
		Int("identifiers", len(f.config.Identifiers)).
		Int("suffixes", len(f.config.Suffixes)).
		Int("tasks", len(tasks)).
		Int("concurrency", f.config.Concurrency).
		Msg("Starting batch")

	// Outcomes are stored by index so the summary keeps task order whatever
	// the concurrency.
	outcomes := make([]Outcome, len(tasks))

	var g errgroup.Group
	g.SetLimit(f.config.Concurrency)
	for i, task := range tasks {
		g.Go(func() error {
			outcomes[i] = f.fetchOne(ctx, task)
			return nil
		})
	}
	_ = g.Wait()

	var summary Summary
	for _, o := range outcomes {
		summary.add(o)
	}

	finished := time.Now()
	f.recordRun(ctx, Run{
		Date:       f.config.Date,
		StartedAt:  started,
		FinishedAt: finished,
		Summary:    summary,
	})

	lastRunTimestamp.Set(float64(finished.Unix()))
	lastRunDuration.Set(finished.Sub(started).Seconds())
	lastRunTasks.WithLabelValues("attempts").Set(float64(summary.Attempts))
	lastRunTasks.WithLabelValues("successes").Set(float64(summary.Successes))
	lastRunTasks.WithLabelValues("failures").Set(float64(summary.Failures))

	f.logger.Info().
		Int("attempts", summary.Attempts).
		Int("successes", summary.Successes).
		Int("failures", summary.Failures).
		Int("requests", summary.Requests).
		Str("status", string(summary.Status())).
		Dur("duration", finished.Sub(started)).
		Msg("Batch complete")

	if summary.Successes == 0 {
		return summary, fmt.Errorf("%w: %d of %d tasks failed", ErrNoSuccesses, summary.Failures, summary.Attempts)
	}
	return summary, nil
}

// fetchOne downloads a single task with retry and writes both artifacts.
func (f *Fetcher) fetchOne(ctx context.Context, task Task) Outcome {
	stable, dated := task.StableName(), task.DatedName()
	outcome := Outcome{
		Task:   task,
		URL:    task.URL(f.config.BaseURL),
		Stable: f.sink.Location(stable),
		Dated:  f.sink.Location(dated),
	}

	logger := f.logger.With().Str("url", outcome.URL).Logger()
	logger.Info().
		Str("stable", outcome.Stable).
		Str("dated", outcome.Dated).
		Msg("Fetching")

	var body []byte
	requests, err := client.Retry(ctx, f.config.Retry, logger, func(ctx context.Context, attempt int) error {
		attemptCtx, cancel := context.WithTimeout(ctx, f.config.Timeout)
		defer cancel()

		data, err := f.getter.Get(attemptCtx, outcome.URL)
		if err != nil {
			return err
		}
		body = data
		return nil
	})
	outcome.Requests = requests

	if err != nil {
		outcome.Err = err
		tasksTotal.WithLabelValues("fetch_failed").Inc()
		logger.Error().
			Err(err).
			Int("requests", requests).
			Msg("Task failed")
		f.recordTask(ctx, outcome)
		return outcome
	}

	// The dated copy reuses the downloaded bytes; nothing is fetched or read twice.
	if err := f.sink.Write(ctx, stable, body); err != nil {
		outcome.Err = fmt.Errorf("write stable artifact: %w", err)
	} else if err := f.sink.Write(ctx, dated, body); err != nil {
		outcome.Err = fmt.Errorf("write dated artifact: %w", err)
	}

	if outcome.Err != nil {
		tasksTotal.WithLabelValues("write_failed").Inc()
		logger.Error().
			Err(outcome.Err).
			Msg("Task failed")
		f.recordTask(ctx, outcome)
		return outcome
	}

	outcome.Bytes = len(body)
	tasksTotal.WithLabelValues("success").Inc()
	logger.Info().
		Int("bytes", outcome.Bytes).
		Int("requests", requests).
		Msg("Saved")

	f.recordTask(ctx, outcome)
	return outcome
}

func (f *Fetcher) recordTask(ctx context.Context, o Outcome) {
	if f.recorder == nil {
		return
	}
	if err := f.recorder.RecordTask(ctx, o); err != nil {
		f.logger.Warn().Err(err).Str("url", o.URL).Msg("Failed to record task outcome")
	}
}

func (f *Fetcher) recordRun(ctx context.Context, run Run) {
	if f.recorder == nil {
		return
	}
	if err := f.recorder.RecordRun(ctx, run); err != nil {
		f.logger.Warn().Err(err).Msg("Failed to record run")
	}
}

// FetchAll runs a batch with the default HTTP client and a sink opened on
// output (a directory path or bucket URL).
func FetchAll(ctx context.Context, config Config, output string) (Summary, error) {
	if err := config.Validate(); err != nil {
		return Summary{}, err
	}

	clientCfg := client.DefaultConfig()
	clientCfg.Timeout = config.Timeout
	c, err := client.New(clientCfg)
	if err != nil {
		return Summary{}, &ConfigError{Field: "client", Reason: "invalid", Err: err}
	}

	out, err := sink.Open(ctx, output)
	if err != nil {
		return Summary{}, &ConfigError{Field: "output", Reason: "cannot be opened", Err: err}
	}
	defer out.Close()

	return NewFetcher(c, out, config).FetchAll(ctx)
}
