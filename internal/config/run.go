package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// RunConfig controls one report run.
type RunConfig struct {
	BatchSize        int     `yaml:"batch_size"`
	BatchConcurrency int     `yaml:"batch_concurrency"`
	CallConcurrency  int     `yaml:"call_concurrency"`
	Model            string  `yaml:"model,omitempty"`
	Temperature      float64 `yaml:"temperature"`
	MaxOutputTokens  int     `yaml:"max_output_tokens"`
	ContextTopK      int     `yaml:"context_top_k"`
	SkipSummary      bool    `yaml:"skip_summary,omitempty"`

	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig is the per-call retry budget.
type RetryConfig struct {
	Total       time.Duration `yaml:"total"`
	Margin      time.Duration `yaml:"margin"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
	PerAttempt  time.Duration `yaml:"per_attempt"`
}

// Default returns the baseline run configuration.
func Default() RunConfig {
	return RunConfig{
		BatchSize:        5,
		BatchConcurrency: 3,
		CallConcurrency:  4,
		Temperature:      0.2,
		MaxOutputTokens:  2048,
		ContextTopK:      3,
		Retry: RetryConfig{
			Total:       120 * time.Second,
			Margin:      5 * time.Second,
			MaxAttempts: 4,
			BaseBackoff: 500 * time.Millisecond,
			PerAttempt:  60 * time.Second,
		},
	}
}

// Validate checks that the bounds are usable.
func (c RunConfig) Validate() error {
	var errs []error
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch_size must be >= 1, got %d", c.BatchSize))
	}
	if c.BatchConcurrency < 1 {
		errs = append(errs, fmt.Errorf("batch_concurrency must be >= 1, got %d", c.BatchConcurrency))
	}
	if c.CallConcurrency < 1 {
		errs = append(errs, fmt.Errorf("call_concurrency must be >= 1, got %d", c.CallConcurrency))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.Total > 0 && c.Retry.Margin >= c.Retry.Total {
		errs = append(errs, errors.New("retry.margin must be smaller than retry.total"))
	}
	return errors.Join(errs...)
}

// LoadFile reads a YAML run configuration on top of the defaults.
func LoadFile(path string) (RunConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from OBSREPORT_* variables.
func (c RunConfig) ApplyEnv() RunConfig {
	intVar := func(key string, dst *int) {
		if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
			*dst = v
		}
	}
	intVar("OBSREPORT_BATCH_SIZE", &c.BatchSize)
	intVar("OBSREPORT_BATCH_CONCURRENCY", &c.BatchConcurrency)
	intVar("OBSREPORT_CALL_CONCURRENCY", &c.CallConcurrency)
	if d, err := time.ParseDuration(os.Getenv("OBSREPORT_RETRY_TOTAL")); err == nil {
		c.Retry.Total = d
	}
	if m := Env().Model; m != "" && c.Model == "" {
		c.Model = m
	}
	return c
}
