// Package config loads snapfetch settings from defaults, a YAML file and
// SNAPFETCH_* environment variables, validates them, and reads the
// identifier list.
//
// Precedence, lowest first: Default, LoadFromFile, LoadFromEnv, then
// command-line overrides applied with Merge.
package config
