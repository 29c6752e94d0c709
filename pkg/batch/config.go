package batch

import (
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/snapfetch/pkg/client"
	"github.com/Sternrassler/snapfetch/pkg/datestamp"
)

// pathSeparators may not appear in identifiers or suffixes; artifact names
// are a single path element.
const pathSeparators = `/\`

// Config holds batch fetcher configuration.
type Config struct {
	// Identifiers are fetched in order; duplicates are kept.
	Identifiers []string

	// Suffixes are nested within each identifier.
	Suffixes []string

	// Date is the YYYY-MM-DD stamp embedded in URLs and dated names.
	Date string

	// BaseURL is the request prefix. Trailing slashes are ignored.
	BaseURL string

	// Extension is the file extension without a leading dot.
	Extension string

	// Timeout bounds every single request attempt.
	Timeout time.Duration

	// Retry is the per-task retry budget and backoff.
	Retry client.RetryPolicy

	// Concurrency is the number of tasks in flight (default: 1, sequential).
	Concurrency int
}

// DefaultConfig returns defaults for everything but the task inputs.
func DefaultConfig() Config {
	return Config{
		Timeout:     60 * time.Second,
		Retry:       client.DefaultRetryPolicy(),
		Concurrency: 1,
	}
}

// Validate checks the configuration before any request is made.
func (c Config) Validate() error {
	if len(c.Identifiers) == 0 {
		return &ConfigError{Field: "identifiers", Reason: "no identifiers to process"}
	}
	for i, id := range c.Identifiers {
		if strings.TrimSpace(id) == "" {
			return &ConfigError{Field: "identifiers", Reason: "identifier " + strconv.Itoa(i) + " is blank"}
		}
		if strings.ContainsAny(id, pathSeparators) {
			return &ConfigError{Field: "identifiers", Reason: "identifier " + strconv.Quote(id) + " contains a path separator"}
		}
	}
	if len(c.Suffixes) == 0 {
		return &ConfigError{Field: "suffixes", Reason: "no suffixes configured"}
	}
	for _, suffix := range c.Suffixes {
		if strings.ContainsAny(suffix, pathSeparators) {
			return &ConfigError{Field: "suffixes", Reason: "suffix " + strconv.Quote(suffix) + " contains a path separator"}
		}
	}
	if NormalizeBaseURL(c.BaseURL) == "" {
		return &ConfigError{Field: "base_url", Reason: "is required"}
	}
	if strings.TrimPrefix(c.Extension, ".") == "" {
		return &ConfigError{Field: "extension", Reason: "is required"}
	}
	if err := datestamp.Validate(c.Date); err != nil {
		return &ConfigError{Field: "date", Reason: "invalid", Err: err}
	}
	if c.Timeout <= 0 {
		return &ConfigError{Field: "timeout", Reason: "must be positive"}
	}
	if c.Retry.MaxRetries < 0 {
		return &ConfigError{Field: "retries", Reason: "must not be negative"}
	}
	return nil
}

// normalized fills defaults and strips a leading dot from the extension.
func (c Config) normalized() Config {
	c.Extension = strings.TrimPrefix(c.Extension, ".")
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	return c
}
