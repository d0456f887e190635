// Package config holds runtime configuration for the compiler, loaded from
// environment variables with validation.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
)

// Config controls one compiler invocation.
type Config struct {
	// RulesPath overrides the constitution rule-set location.
	// Default: constitution.yml beside the project directories, falling
	// back to the builtin rule set.
	RulesPath string

	// Strict escalates warnings (including unresolved clarifications) to
	// errors for exit-code purposes.
	// Default: false
	Strict bool

	// Workers bounds parallelism, both across independent projects and
	// within compliance rule evaluation.
	// Default: number of CPUs, Range: 1-64
	Workers int

	// CachePath locates the optional result cache database. Empty
	// disables caching.
	// Default: empty
	CachePath string
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Workers: runtime.NumCPU(),
	}
}

// Validate checks if the configuration has valid values.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1 (got %d)", c.Workers)
	}
	if c.Workers > 64 {
		return fmt.Errorf("workers too large (got %d, max 64)", c.Workers)
	}
	return nil
}

// FromEnv creates a Config from environment variables, falling back to
// defaults.
//
// Environment variables:
//   - SPECC_RULES_PATH: Constitution rule-set path override
//   - SPECC_STRICT: Escalate warnings to errors (default: false)
//   - SPECC_WORKERS: Parallel worker limit (default: number of CPUs)
//   - SPECC_CACHE_PATH: Result cache database path (default: disabled)
//
// Returns an error if any environment variable has an invalid value.
func FromEnv() (Config, error) {
	cfg := Default()

	if err := parseEnvString("SPECC_RULES_PATH", &cfg.RulesPath); err != nil {
		return cfg, err
	}
	if err := parseEnvBool("SPECC_STRICT", &cfg.Strict); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("SPECC_WORKERS", &cfg.Workers); err != nil {
		return cfg, err
	}
	if err := parseEnvString("SPECC_CACHE_PATH", &cfg.CachePath); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return cfg, nil
}

// parseEnvInt parses an int from an environment variable.
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable.
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString parses a string from an environment variable.
func parseEnvString(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	*dest = value
	return nil
}
