package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapfetch_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "snapfetch_retry_backoff_seconds",
		Help:    "Backoff duration before retries by error class",
		Buckets: []float64{0, 0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapfetch_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by last error class",
	}, []string{"error_class"})
)

// RetryPolicy bounds and paces re-attempts of a failed operation.
type RetryPolicy struct {
	// MaxRetries is the number of additional attempts after the first failure.
	MaxRetries int

	// InitialBackoff is the wait before the first retry. Zero retries immediately.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration

	// Multiplier grows the wait after each retry. Values <= 1 keep it constant.
	Multiplier float64

	// Jitter is the randomization factor applied to exponential waits (0.2 = ±20%).
	Jitter float64
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.2,
	}
}

// MaxAttempts returns the total attempt budget, including the first attempt.
func (p RetryPolicy) MaxAttempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// NewBackOff builds the wait schedule for the policy.
func (p RetryPolicy) NewBackOff() backoff.BackOff {
	if p.InitialBackoff <= 0 {
		return &backoff.ZeroBackOff{}
	}
	if p.Multiplier <= 1 {
		return backoff.NewConstantBackOff(p.InitialBackoff)
	}

	maxBackoff := p.MaxBackoff
	if maxBackoff < p.InitialBackoff {
		maxBackoff = p.InitialBackoff
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	b.MaxInterval = maxBackoff
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Operation is one attempt of a retried operation. attempt starts at 1.
type Operation func(ctx context.Context, attempt int) error

// Permanent marks err as not worth retrying; Retry returns it unwrapped.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Retry runs op until it succeeds, the policy's attempt budget is spent, or
// ctx is cancelled. It returns the number of attempts made. On exhaustion the
// error wraps both ErrRetryExhausted and the last attempt's error.
func Retry(ctx context.Context, policy RetryPolicy, logger zerolog.Logger, op Operation) (int, error) {
	maxAttempts := policy.MaxAttempts()
	schedule := policy.NewBackOff()

	var (
		lastErr  error
		attempts int
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}

		attempts = attempt
		err := op(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return attempt, nil
		}
		lastErr = err

		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return attempt, permanent.Err
		}

		if attempt >= maxAttempts {
			break
		}

		wait := schedule.NextBackOff()
		if wait == backoff.Stop {
			break
		}

		class := classLabel(err)
		retriesTotal.WithLabelValues(class).Inc()
		retryBackoffSeconds.WithLabelValues(class).Observe(wait.Seconds())

		logger.Warn().
			Err(err).
			Str("error_class", class).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Dur("backoff", wait).
			Msg("Retrying request")

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
			case <-timer.C:
			}
		}
	}

	retryExhaustedTotal.WithLabelValues(classLabel(lastErr)).Inc()
	logger.Debug().
		Int("attempts", attempts).
		Msg("Retry attempts exhausted")

	return attempts, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, lastErr)
}
