// Package config loads serieswatch settings.
//
// Settings are layered: built-in defaults, then a YAML or JSON file, then
// a .env file, then SERIESWATCH_* environment variables. The CLI applies
// its flags last and validates the result against an embedded CUE schema.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// EnvPrefix prefixes environment overrides, e.g. SERIESWATCH_MAX_WORKERS.
const EnvPrefix = "SERIESWATCH_"

// Config is the flat settings mapping. Durations are in seconds.
type Config struct {
	DBFile      string  `yaml:"db_file" json:"db_file"`
	MaxWorkers  int     `yaml:"max_workers" json:"max_workers"`
	Timeout     float64 `yaml:"timeout" json:"timeout"`
	LimitPerRun int     `yaml:"limit_per_run" json:"limit_per_run"`
	MinDelay    float64 `yaml:"min_delay" json:"min_delay"`
	MaxDelay    float64 `yaml:"max_delay" json:"max_delay"`

	RetryLimit     int     `yaml:"retry_limit" json:"retry_limit"`
	RetryDelay     float64 `yaml:"retry_delay" json:"retry_delay"`
	ErrorThreshold int     `yaml:"error_threshold" json:"error_threshold"`
	UseProxy       string  `yaml:"use_proxy" json:"use_proxy"`

	FetchStrategy     string  `yaml:"fetch_strategy" json:"fetch_strategy"`
	BaseURL           string  `yaml:"base_url" json:"base_url"`
	Headless          bool    `yaml:"headless" json:"headless"`
	PageTimeout       float64 `yaml:"page_timeout" json:"page_timeout"`
	RetryBackoff      float64 `yaml:"retry_backoff" json:"retry_backoff"`
	SessionResetAfter int     `yaml:"session_reset_after" json:"session_reset_after"`
	PeekLastUpdated   bool    `yaml:"peek_last_updated" json:"peek_last_updated"`

	RetryFailed     bool   `yaml:"retry_failed" json:"retry_failed"`
	RetryDays       int    `yaml:"retry_days" json:"retry_days"`
	ReportDir       string `yaml:"report_dir" json:"report_dir"`
	OutputDir       string `yaml:"output_dir" json:"output_dir"`
	CheckpointEvery int    `yaml:"checkpoint_every" json:"checkpoint_every"`
	MetricsFile     string `yaml:"metrics_file" json:"metrics_file"`
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		DBFile:            "fred_data.db",
		MaxWorkers:        5,
		Timeout:           3600,
		LimitPerRun:       0,
		MinDelay:          1,
		MaxDelay:          3,
		RetryLimit:        3,
		RetryDelay:        300,
		ErrorThreshold:    100,
		FetchStrategy:     "browser",
		BaseURL:           "https://fred.stlouisfed.org",
		Headless:          true,
		PageTimeout:       60,
		RetryBackoff:      5,
		SessionResetAfter: 3,
		PeekLastUpdated:   true,
		RetryFailed:       true,
		RetryDays:         1,
		ReportDir:         "reports",
		OutputDir:         ".",
		CheckpointEvery:   10,
	}
}

// LoadOptions controls Load.
type LoadOptions struct {
	// File is an optional YAML or JSON settings file. Missing is an error.
	File string

	// EnvFile is read when present. Defaults to ".env".
	EnvFile string

	// Environ supplies the process environment. Defaults to os.Environ.
	Environ func() []string
}

// Load layers defaults, the settings file, .env and the environment, then
// validates. Unknown keys are ignored everywhere.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", opts.File, err)
		}
	}

	env, err := environment(opts)
	if err != nil {
		return cfg, err
	}
	if err := cfg.applyEnv(env); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// environment merges the .env file under the process environment.
func environment(opts LoadOptions) (map[string]string, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	env, err := godotenv.Read(envFile)
	if errors.Is(err, fs.ErrNotExist) {
		env = map[string]string{}
	} else if err != nil {
		return nil, fmt.Errorf("read %s: %w", envFile, err)
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ
	}
	for _, kv := range environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			env[k] = v
		}
	}
	return env, nil
}

func (c *Config) applyEnv(env map[string]string) error {
	keys := make([]string, 0, len(env))
	for k := range env {
		if strings.HasPrefix(k, EnvPrefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		key := strings.ToLower(strings.TrimPrefix(k, EnvPrefix))
		if _, known := c.fields()[key]; !known {
			continue
		}
		if err := c.Set(key, env[k]); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
	}
	return nil
}

func (c *Config) fields() map[string]any {
	return map[string]any{
		"db_file":             &c.DBFile,
		"max_workers":         &c.MaxWorkers,
		"timeout":             &c.Timeout,
		"limit_per_run":       &c.LimitPerRun,
		"min_delay":           &c.MinDelay,
		"max_delay":           &c.MaxDelay,
		"retry_limit":         &c.RetryLimit,
		"retry_delay":         &c.RetryDelay,
		"error_threshold":     &c.ErrorThreshold,
		"use_proxy":           &c.UseProxy,
		"fetch_strategy":      &c.FetchStrategy,
		"base_url":            &c.BaseURL,
		"headless":            &c.Headless,
		"page_timeout":        &c.PageTimeout,
		"retry_backoff":       &c.RetryBackoff,
		"session_reset_after": &c.SessionResetAfter,
		"peek_last_updated":   &c.PeekLastUpdated,
		"retry_failed":        &c.RetryFailed,
		"retry_days":          &c.RetryDays,
		"report_dir":          &c.ReportDir,
		"output_dir":          &c.OutputDir,
		"checkpoint_every":    &c.CheckpointEvery,
		"metrics_file":        &c.MetricsFile,
	}
}

// Keys lists every recognized key in sorted order.
func Keys() []string {
	var c Config
	keys := make([]string, 0, len(c.fields()))
	for k := range c.fields() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set assigns one key from its string form. Numbers and booleans use YAML
// scalar syntax.
func (c *Config) Set(key, value string) error {
	ptr, ok := c.fields()[key]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	if s, ok := ptr.(*string); ok {
		*s = value
		return nil
	}
	if err := yaml.Unmarshal([]byte(value), ptr); err != nil {
		return fmt.Errorf("config key %s: %w", key, err)
	}
	return nil
}

// Validate checks the settings against the embedded CUE schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// TimeoutDuration is Timeout as a duration.
func (c Config) TimeoutDuration() time.Duration { return seconds(c.Timeout) }

// MinDelayDuration is MinDelay as a duration.
func (c Config) MinDelayDuration() time.Duration { return seconds(c.MinDelay) }

// MaxDelayDuration is MaxDelay as a duration.
func (c Config) MaxDelayDuration() time.Duration { return seconds(c.MaxDelay) }

// RetryDelayDuration is RetryDelay as a duration.
func (c Config) RetryDelayDuration() time.Duration { return seconds(c.RetryDelay) }

// PageTimeoutDuration is PageTimeout as a duration.
func (c Config) PageTimeoutDuration() time.Duration { return seconds(c.PageTimeout) }

// RetryBackoffDuration is RetryBackoff as a duration.
func (c Config) RetryBackoffDuration() time.Duration { return seconds(c.RetryBackoff) }
