package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/snapfetch/pkg/batch"
	"github.com/Sternrassler/snapfetch/pkg/client"
	"github.com/Sternrassler/snapfetch/pkg/datestamp"
	"github.com/Sternrassler/snapfetch/pkg/logging"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "SNAPFETCH_"

// ErrIdentifierFile is returned when the identifier file is missing or
// unreadable.
var ErrIdentifierFile = errors.New("identifier file unavailable")

// Config defines configuration for the snapfetch CLI.
type Config struct {
	BaseURL     string        `yaml:"base_url"`
	Suffixes    []string      `yaml:"suffixes"`
	Extension   string        `yaml:"extension"`
	IDFile      string        `yaml:"id_file"`
	Identifiers []string      `yaml:"-"`
	Timeout     time.Duration `yaml:"timeout"`
	Retries     int           `yaml:"retries"`
	Date        string        `yaml:"date"`
	TimeZone    string        `yaml:"time_zone"`
	Output      string        `yaml:"output"`
	Concurrency int           `yaml:"concurrency"`
	Backoff     time.Duration `yaml:"backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
	UserAgent   string        `yaml:"user_agent"`
	RedisURL    string        `yaml:"redis_url"`
	MetricsFile string        `yaml:"metrics_file"`
	Pushgateway string        `yaml:"pushgateway"`
	LogLevel    string        `yaml:"log_level"`
	LogPretty   bool          `yaml:"log_pretty"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Extension:   "jpg",
		IDFile:      "ids.txt",
		Timeout:     60 * time.Second,
		Retries:     3,
		TimeZone:    datestamp.DefaultZone,
		Output:      "out",
		Concurrency: 1,
		MaxBackoff:  30 * time.Second,
		UserAgent:   client.DefaultConfig().UserAgent,
		LogLevel:    string(logging.LevelInfo),
	}
}

// yamlConfig is used for YAML unmarshaling with string durations, a suffix
// list that may be a comma-separated string, and an explicit retries zero.
type yamlConfig struct {
	BaseURL     string    `yaml:"base_url"`
	Suffixes    yaml.Node `yaml:"suffixes"`
	Extension   string    `yaml:"extension"`
	IDFile      string    `yaml:"id_file"`
	Timeout     string    `yaml:"timeout"`
	Retries     *int      `yaml:"retries"`
	Date        string    `yaml:"date"`
	TimeZone    string    `yaml:"time_zone"`
	Output      string    `yaml:"output"`
	Concurrency int       `yaml:"concurrency"`
	Backoff     string    `yaml:"backoff"`
	MaxBackoff  string    `yaml:"max_backoff"`
	UserAgent   string    `yaml:"user_agent"`
	RedisURL    string    `yaml:"redis_url"`
	MetricsFile string    `yaml:"metrics_file"`
	Pushgateway string    `yaml:"pushgateway"`
	LogLevel    string    `yaml:"log_level"`
	LogPretty   bool      `yaml:"log_pretty"`
}

// LoadFromFile loads configuration from a YAML file on top of Default.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.BaseURL != "" {
		cfg.BaseURL = yc.BaseURL
	}
	if !yc.Suffixes.IsZero() {
		suffixes, err := decodeList(&yc.Suffixes)
		if err != nil {
			return Config{}, fmt.Errorf("parse suffixes: %w", err)
		}
		cfg.Suffixes = suffixes
	}
	if yc.Extension != "" {
		cfg.Extension = yc.Extension
	}
	if yc.IDFile != "" {
		cfg.IDFile = yc.IDFile
	}
	if yc.Timeout != "" {
		d, err := ParseTimeout(yc.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if yc.Retries != nil {
		cfg.Retries = *yc.Retries
	}
	if yc.Date != "" {
		cfg.Date = yc.Date
	}
	if yc.TimeZone != "" {
		cfg.TimeZone = yc.TimeZone
	}
	if yc.Output != "" {
		cfg.Output = yc.Output
	}
	if yc.Concurrency != 0 {
		cfg.Concurrency = yc.Concurrency
	}
	if yc.Backoff != "" {
		d, err := time.ParseDuration(yc.Backoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse backoff: %w", err)
		}
		cfg.Backoff = d
	}
	if yc.MaxBackoff != "" {
		d, err := time.ParseDuration(yc.MaxBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse max_backoff: %w", err)
		}
		cfg.MaxBackoff = d
	}
	if yc.UserAgent != "" {
		cfg.UserAgent = yc.UserAgent
	}
	cfg.RedisURL = yc.RedisURL
	cfg.MetricsFile = yc.MetricsFile
	cfg.Pushgateway = yc.Pushgateway
	if yc.LogLevel != "" {
		cfg.LogLevel = yc.LogLevel
	}
	cfg.LogPretty = yc.LogPretty

	return cfg, nil
}

// decodeList accepts either a YAML sequence or a comma-separated string.
func decodeList(node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return nil, err
		}
		return trimList(list), nil
	case yaml.ScalarNode:
		return SplitList(node.Value), nil
	default:
		return nil, fmt.Errorf("expected list or comma-separated string")
	}
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the SNAPFETCH_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv(EnvPrefix + "BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvPrefix + "SUFFIXES"); v != "" {
		c.Suffixes = SplitList(v)
	}
	if v := os.Getenv(EnvPrefix + "EXTENSION"); v != "" {
		c.Extension = v
	}
	if v := os.Getenv(EnvPrefix + "ID_FILE"); v != "" {
		c.IDFile = v
	}
	if v := os.Getenv(EnvPrefix + "IDS"); v != "" {
		c.Identifiers = SplitList(v)
	}
	if v := os.Getenv(EnvPrefix + "TIMEOUT"); v != "" {
		d, err := ParseTimeout(v)
		if err != nil {
			return fmt.Errorf("parse %sTIMEOUT: %w", EnvPrefix, err)
		}
		c.Timeout = d
	}
	if v := os.Getenv(EnvPrefix + "RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sRETRIES: %w", EnvPrefix, err)
		}
		c.Retries = n
	}
	if v := os.Getenv(EnvPrefix + "DATE"); v != "" {
		c.Date = v
	}
	if v := os.Getenv(EnvPrefix + "TIME_ZONE"); v != "" {
		c.TimeZone = v
	}
	if v := os.Getenv(EnvPrefix + "OUTPUT"); v != "" {
		c.Output = v
	}
	if v := os.Getenv(EnvPrefix + "CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sCONCURRENCY: %w", EnvPrefix, err)
		}
		c.Concurrency = n
	}
	if v := os.Getenv(EnvPrefix + "BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %sBACKOFF: %w", EnvPrefix, err)
		}
		c.Backoff = d
	}
	if v := os.Getenv(EnvPrefix + "MAX_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %sMAX_BACKOFF: %w", EnvPrefix, err)
		}
		c.MaxBackoff = d
	}
	if v := os.Getenv(EnvPrefix + "USER_AGENT"); v != "" {
		c.UserAgent = v
	}
	if v := os.Getenv(EnvPrefix + "REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv(EnvPrefix + "METRICS_FILE"); v != "" {
		c.MetricsFile = v
	}
	if v := os.Getenv(EnvPrefix + "PUSHGATEWAY"); v != "" {
		c.Pushgateway = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_PRETTY"); v != "" {
		c.LogPretty = v == "true" || v == "1"
	}

	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored, so an explicit zero Retries must be
// assigned directly.
func (c Config) Merge(override Config) Config {
	if override.BaseURL != "" {
		c.BaseURL = override.BaseURL
	}
	if len(override.Suffixes) > 0 {
		c.Suffixes = override.Suffixes
	}
	if override.Extension != "" {
		c.Extension = override.Extension
	}
	if override.IDFile != "" {
		c.IDFile = override.IDFile
	}
	if len(override.Identifiers) > 0 {
		c.Identifiers = override.Identifiers
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.Retries != 0 {
		c.Retries = override.Retries
	}
	if override.Date != "" {
		c.Date = override.Date
	}
	if override.TimeZone != "" {
		c.TimeZone = override.TimeZone
	}
	if override.Output != "" {
		c.Output = override.Output
	}
	if override.Concurrency != 0 {
		c.Concurrency = override.Concurrency
	}
	if override.Backoff != 0 {
		c.Backoff = override.Backoff
	}
	if override.MaxBackoff != 0 {
		c.MaxBackoff = override.MaxBackoff
	}
	if override.UserAgent != "" {
		c.UserAgent = override.UserAgent
	}
	if override.RedisURL != "" {
		c.RedisURL = override.RedisURL
	}
	if override.MetricsFile != "" {
		c.MetricsFile = override.MetricsFile
	}
	if override.Pushgateway != "" {
		c.Pushgateway = override.Pushgateway
	}
	if override.LogLevel != "" {
		c.LogLevel = override.LogLevel
	}
	if override.LogPretty {
		c.LogPretty = override.LogPretty
	}
	return c
}

// Validate checks the settings that the batch itself does not own. Batch
// fields are checked by batch.Config.Validate.
func (c *Config) Validate() error {
	if c.Output == "" {
		return &batch.ConfigError{Field: "output", Reason: "is required"}
	}
	if c.Concurrency <= 0 {
		return &batch.ConfigError{Field: "concurrency", Reason: "must be positive"}
	}
	if c.Backoff < 0 || c.MaxBackoff < 0 {
		return &batch.ConfigError{Field: "backoff", Reason: "must not be negative"}
	}
	if c.UserAgent == "" {
		return &batch.ConfigError{Field: "user_agent", Reason: "is required"}
	}
	if c.Date == "" {
		if _, err := datestamp.Resolve("", c.TimeZone, time.Now()); err != nil {
			return &batch.ConfigError{Field: "time_zone", Reason: "is invalid", Err: err}
		}
	}
	if len(c.Identifiers) == 0 && c.IDFile == "" {
		return &batch.ConfigError{Field: "id_file", Reason: "is required when " + EnvPrefix + "IDS is unset"}
	}
	return nil
}

// RetryPolicy returns the retry policy described by the settings. A zero
// Backoff retries immediately.
func (c *Config) RetryPolicy() client.RetryPolicy {
	policy := client.DefaultRetryPolicy()
	policy.MaxRetries = c.Retries
	policy.InitialBackoff = c.Backoff
	policy.MaxBackoff = c.MaxBackoff
	return policy
}

// Batch builds the batch configuration for the given identifiers and date.
func (c *Config) Batch(identifiers []string, date string) batch.Config {
	return batch.Config{
		Identifiers: identifiers,
		Suffixes:    c.Suffixes,
		Date:        date,
		BaseURL:     c.BaseURL,
		Extension:   c.Extension,
		Timeout:     c.Timeout,
		Retry:       c.RetryPolicy(),
		Concurrency: c.Concurrency,
	}
}

// ParseTimeout accepts whole seconds ("60") or a Go duration ("1m30s").
func ParseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// SplitList splits a comma-separated list, trimming entries and dropping
// empty ones.
func SplitList(s string) []string {
	return trimList(strings.Split(s, ","))
}

func trimList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// LoadIdentifiers reads one identifier per line. Surrounding whitespace is
// trimmed and blank lines are skipped; order and duplicates are kept. A
// missing or unreadable file returns an error wrapping ErrIdentifierFile.
func LoadIdentifiers(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIdentifierFile, err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			ids = append(ids, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrIdentifierFile, path, err)
	}
	return ids, nil
}

// ResolveIdentifiers returns the identifiers from SNAPFETCH_IDS when set,
// otherwise from the identifier file.
func (c *Config) ResolveIdentifiers() ([]string, error) {
	if len(c.Identifiers) > 0 {
		return c.Identifiers, nil
	}
	return LoadIdentifiers(c.IDFile)
}
