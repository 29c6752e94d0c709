// Package client provides the HTTP fetch client used by the batch fetcher:
// single-attempt GETs with error classification and metrics, plus a bounded
// retry helper.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for fetch operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapfetch_requests_total",
		Help: "Total HTTP fetch requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "snapfetch_request_duration_seconds",
		Help:    "HTTP fetch request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapfetch_errors_total",
		Help: "Total failed fetch attempts by class",
	}, []string{"class"})

	responseBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapfetch_response_bytes_total",
		Help: "Total bytes received in successful responses",
	})
)

// ErrorClass represents a classification of fetch failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassUnexpected represents any other non-2xx response.
	ErrorClassUnexpected ErrorClass = "unexpected"

	// ErrorClassNetwork represents connection and body read failures.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassTimeout represents requests that exceeded their time budget.
	ErrorClassTimeout ErrorClass = "timeout"
)

// Client fetches resources over HTTP.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// UserAgent is sent with every request.
	UserAgent string

	// Timeout bounds a single request, including reading the body.
	Timeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		UserAgent: "snapfetch/0.1.0",
		Timeout:   60 * time.Second,
	}
}

// New creates a new fetch client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %s)", cfg.Timeout)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: log.With().Str("component", "client").Logger(),
	}, nil
}

// Get performs a single GET and returns the full response body. Any non-2xx
// status, timeout, connection failure or body read failure is returned as a
// *FetchError.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "image/*,*/*;q=0.8")

	c.logger.Debug().Str("url", url).Msg("Executing request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		class := classifyTransport(err)
		errorsTotal.WithLabelValues(string(class)).Inc()
		requestsTotal.WithLabelValues(string(class)).Inc()
		return nil, &FetchError{URL: url, ErrorClass: class, Err: err}
	}
	defer resp.Body.Close()

	status := strconv.Itoa(resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		class := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()
		requestsTotal.WithLabelValues(status).Inc()

		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		return nil, &FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    resp.Status,
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		class := classifyTransport(err)
		errorsTotal.WithLabelValues(string(class)).Inc()
		requestsTotal.WithLabelValues(string(class)).Inc()
		return nil, &FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    "read body",
			Err:        err,
		}
	}

	requestsTotal.WithLabelValues(status).Inc()
	responseBytesTotal.Add(float64(len(data)))

	return data, nil
}

// classifyTransport categorizes an error returned by the transport.
func classifyTransport(err error) ErrorClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassTimeout
	}
	return ErrorClassNetwork
}

// classifyStatus categorizes a non-2xx status code.
func classifyStatus(code int) ErrorClass {
	switch {
	case code >= 400 && code < 500:
		return ErrorClassClient
	case code >= 500:
		return ErrorClassServer
	default:
		return ErrorClassUnexpected
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
