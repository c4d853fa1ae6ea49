// Package config handles pipeline configuration from environment variables
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/hed1ad/fraudguard/pkg/classifiers"
)

// Feature engines.
const (
	EngineMemory   = "memory"
	EnginePostgres = "postgres"
)

// Config holds all pipeline configuration. It is built once and passed to
// every stage.
type Config struct {
	// Logging
	LogLevel  string
	LogFormat string // "console" or "json"

	// Artifact paths
	BaseDir           string
	RawDataPath       string
	FeatureSpecPath   string
	ProcessedDataPath string
	ModelPath         string
	FeatureListPath   string
	PredictionsPath   string
	ReportPath        string
	ChartPath         string // empty disables the chart
	MetricsPath       string // empty disables the metrics file

	// Feature builder
	NumUsers      int
	FeatureEngine string
	DatabaseURL   string // used by the postgres engine only

	// Trainer
	Seed           int64
	TestSize       float64
	SMOTENeighbors int
	Forest         classifiers.Config

	// Report
	ChartTopN int
}

// Defaults
const (
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
	DefaultNumUsers       = 1000
	DefaultSeed           = 42
	DefaultTestSize       = 0.2
	DefaultSMOTENeighbors = 5
	DefaultChartTopN      = 10
)

// Default returns the configuration used when no environment overrides are
// present, rooted at baseDir.
func Default(baseDir string) *Config {
	forest := classifiers.DefaultConfig()
	forest.RandomSeed = DefaultSeed

	cfg := &Config{
		LogLevel:       DefaultLogLevel,
		LogFormat:      DefaultLogFormat,
		BaseDir:        baseDir,
		NumUsers:       DefaultNumUsers,
		FeatureEngine:  EngineMemory,
		Seed:           DefaultSeed,
		TestSize:       DefaultTestSize,
		SMOTENeighbors: DefaultSMOTENeighbors,
		Forest:         forest,
		ChartTopN:      DefaultChartTopN,
	}
	cfg.setPaths(nil)
	return cfg
}

func (c *Config) setPaths(getenv func(key, fallback string) string) {
	if getenv == nil {
		getenv = func(_, fallback string) string { return fallback }
	}
	path := func(key string, parts ...string) string {
		return getenv(key, filepath.Join(append([]string{c.BaseDir}, parts...)...))
	}

	c.RawDataPath = path("RAW_DATA_PATH", "data", "raw", "creditcard.csv")
	c.FeatureSpecPath = path("FEATURE_SPEC_PATH", "queries", "user_aggregates.yaml")
	c.ProcessedDataPath = path("PROCESSED_DATA_PATH", "data", "processed", "featured_transactions.csv")
	c.ModelPath = path("MODEL_PATH", "models", "fraud_detector.gob")
	c.FeatureListPath = path("FEATURE_LIST_PATH", "models", "feature_list.gob")
	c.PredictionsPath = path("PREDICTIONS_PATH", "results", "predictions", "predictions.csv")
	c.ReportPath = path("REPORT_PATH", "results", "reports", "risk_dashboard.csv")
	c.ChartPath = path("CHART_PATH", "results", "reports", "risk_dashboard.png")
	c.MetricsPath = path("METRICS_PATH", "results", "metrics", "pipeline.prom")
}

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := Default(getEnv("BASE_DIR", "."))
	cfg.setPaths(getEnv)

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.FeatureEngine = strings.ToLower(getEnv("FEATURE_ENGINE", cfg.FeatureEngine))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	var err error
	if cfg.NumUsers, err = getEnvInt("NUM_USERS", cfg.NumUsers); err != nil {
		return nil, err
	}
	if cfg.Seed, err = getEnvInt64("RANDOM_SEED", cfg.Seed); err != nil {
		return nil, err
	}
	if cfg.TestSize, err = getEnvFloat("TEST_SIZE", cfg.TestSize); err != nil {
		return nil, err
	}
	if cfg.SMOTENeighbors, err = getEnvInt("SMOTE_NEIGHBORS", cfg.SMOTENeighbors); err != nil {
		return nil, err
	}
	if cfg.Forest.Trees, err = getEnvInt("FOREST_TREES", cfg.Forest.Trees); err != nil {
		return nil, err
	}
	if cfg.Forest.MaxDepth, err = getEnvInt("FOREST_MAX_DEPTH", cfg.Forest.MaxDepth); err != nil {
		return nil, err
	}
	if cfg.Forest.Workers, err = getEnvInt("FOREST_WORKERS", cfg.Forest.Workers); err != nil {
		return nil, err
	}
	if cfg.ChartTopN, err = getEnvInt("CHART_TOP_N", cfg.ChartTopN); err != nil {
		return nil, err
	}
	cfg.Forest.RandomSeed = cfg.Seed

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.NumUsers < 1 {
		return fmt.Errorf("NUM_USERS must be positive, got %d", c.NumUsers)
	}
	if c.TestSize <= 0 || c.TestSize >= 1 {
		return fmt.Errorf("TEST_SIZE must be in (0, 1), got %v", c.TestSize)
	}
	if c.SMOTENeighbors < 1 {
		return fmt.Errorf("SMOTE_NEIGHBORS must be positive, got %d", c.SMOTENeighbors)
	}
	if c.Forest.Trees < 1 {
		return fmt.Errorf("FOREST_TREES must be positive, got %d", c.Forest.Trees)
	}
	if c.ChartTopN < 1 {
		return fmt.Errorf("CHART_TOP_N must be positive, got %d", c.ChartTopN)
	}

	switch c.FeatureEngine {
	case EngineMemory:
	case EnginePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when FEATURE_ENGINE=%s", EnginePostgres)
		}
	default:
		return fmt.Errorf("unknown FEATURE_ENGINE %q", c.FeatureEngine)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return i, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return i, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
