// Package config loads pipeline configuration from environment variables
// (§6 "Environment/config"), following the same getenv-with-default +
// godotenv idiom cmd/tarsy/main.go and pkg/database.LoadConfigFromEnv use.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the fully resolved pipeline configuration.
type Config struct {
	APIKey string

	RequestsPerMinute int
	RequestsPerHour   int
	BurstSize         int

	MonthlyBudgetUSD float64 // 0 means unset
	DailyTokenQuota  int64   // 0 means unset

	MaxConcurrent      int
	BatchSize          int
	CheckpointInterval int

	CacheDir        string
	CacheTTLSeconds int
	CacheMaxEntries int

	CircuitFailureThreshold       int
	CircuitRecoveryTimeoutSeconds int

	RetryMaxAttempts         int
	RetryInitialDelaySeconds float64
	RetryMaxDelaySeconds     float64

	ModelStage1 string
	ModelStage2 string

	DatabaseURL string

	ConfigDir string
}

// Load reads a .env file from configDir (if present) and then resolves
// Config from the environment, applying every default named in §6 and
// returning a validation error that reports every problem found, not
// just the first.
func Load(configDir string) (Config, error) {
	if configDir == "" {
		configDir = "."
	}
	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		// Missing .env is not fatal: the process may rely on
		// variables set directly in its environment.
		_ = err
	}

	cfg := Config{
		APIKey: os.Getenv("API_KEY"),

		RequestsPerMinute: envInt("REQUESTS_PER_MINUTE", 600),
		RequestsPerHour:   envInt("REQUESTS_PER_HOUR", 36000),
		BurstSize:         envInt("BURST_SIZE", 20),

		MonthlyBudgetUSD: envFloat("MONTHLY_BUDGET_USD", 0),
		DailyTokenQuota:  envInt64("DAILY_TOKEN_QUOTA", 0),

		MaxConcurrent:      envInt("MAX_CONCURRENT", 50),
		BatchSize:          envInt("BATCH_SIZE", 10),
		CheckpointInterval: envInt("CHECKPOINT_INTERVAL", 100),

		CacheDir:        envString("CACHE_DIR", "./.cache"),
		CacheTTLSeconds: envInt("CACHE_TTL_SECONDS", 86400),
		CacheMaxEntries: envInt("CACHE_MAX_ENTRIES", 1000),

		CircuitFailureThreshold:       envInt("CIRCUIT_FAILURE_THRESHOLD", 5),
		CircuitRecoveryTimeoutSeconds: envInt("CIRCUIT_RECOVERY_TIMEOUT_SECONDS", 60),

		RetryMaxAttempts:         envInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialDelaySeconds: envFloat("RETRY_INITIAL_DELAY_SECONDS", 1),
		RetryMaxDelaySeconds:     envFloat("RETRY_MAX_DELAY_SECONDS", 60),

		ModelStage1: envString("MODEL_STAGE1", ""),
		ModelStage2: envString("MODEL_STAGE2", ""),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		ConfigDir: configDir,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate collects every configuration problem rather than stopping at
// the first, so a misconfigured deployment sees the whole list in one
// startup failure (§7 "Configuration" is a fatal-at-startup error kind).
func (c Config) Validate() error {
	var problems []string

	if c.APIKey == "" {
		problems = append(problems, "API_KEY is required")
	}
	if c.RequestsPerMinute < 0 {
		problems = append(problems, "REQUESTS_PER_MINUTE must be non-negative")
	}
	if c.RequestsPerHour < 0 {
		problems = append(problems, "REQUESTS_PER_HOUR must be non-negative")
	}
	if c.BurstSize < 0 {
		problems = append(problems, "BURST_SIZE must be non-negative")
	}
	if c.MaxConcurrent < 1 {
		problems = append(problems, "MAX_CONCURRENT must be at least 1")
	}
	if c.BatchSize < 1 {
		problems = append(problems, "BATCH_SIZE must be at least 1")
	}
	if c.CheckpointInterval < 1 {
		problems = append(problems, "CHECKPOINT_INTERVAL must be at least 1")
	}
	if c.CacheDir == "" {
		problems = append(problems, "CACHE_DIR must not be empty")
	}
	if c.CacheTTLSeconds < 0 {
		problems = append(problems, "CACHE_TTL_SECONDS must be non-negative")
	}
	if c.CacheMaxEntries < 0 {
		problems = append(problems, "CACHE_MAX_ENTRIES must be non-negative")
	}
	if c.CircuitFailureThreshold < 1 {
		problems = append(problems, "CIRCUIT_FAILURE_THRESHOLD must be at least 1")
	}
	if c.CircuitRecoveryTimeoutSeconds < 1 {
		problems = append(problems, "CIRCUIT_RECOVERY_TIMEOUT_SECONDS must be at least 1")
	}
	if c.RetryMaxAttempts < 1 {
		problems = append(problems, "RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.RetryInitialDelaySeconds <= 0 {
		problems = append(problems, "RETRY_INITIAL_DELAY_SECONDS must be positive")
	}
	if c.RetryMaxDelaySeconds < c.RetryInitialDelaySeconds {
		problems = append(problems, "RETRY_MAX_DELAY_SECONDS must be >= RETRY_INITIAL_DELAY_SECONDS")
	}
	if c.ModelStage1 == "" {
		problems = append(problems, "MODEL_STAGE1 is required")
	}
	if c.ModelStage2 == "" {
		problems = append(problems, "MODEL_STAGE2 is required")
	}

	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}

// ValidationError reports every configuration problem found, not just
// the first (the tarsy config validator is fail-fast; this pipeline
// deliberately is not, so a single fix-and-rerun cycle resolves every
// startup problem instead of one at a time).
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration:\n  - %s", strings.Join(e.Problems, "\n  - "))
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
