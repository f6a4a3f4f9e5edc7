package config

import (
	"math"
	"os"
	"strconv"
	"time"

	"gouncertain/domain/mask"
	"gouncertain/internal/errors"
	"gouncertain/internal/estimator"
)

// Config represents the complete application configuration
type Config struct {
	Estimation EstimationConfig
	Server     ServerConfig
	Benchmark  BenchmarkConfig
	Paths      PathConfig
}

// EstimationConfig holds the default knobs for an estimation run
type EstimationConfig struct {
	NNRuns      int
	DropoutRate float64
	DiagEps     float64
	Strategy    mask.Name
	Estimator   estimator.Kind
	Seed        uint64
	Diagnostics bool
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port            string
	GinMode         string
	ShutdownTimeout time.Duration
}

// BenchmarkConfig holds strategy comparison and run history settings
type BenchmarkConfig struct {
	MaxConcurrency int
	LedgerCapacity int
}

// PathConfig holds file system paths
type PathConfig struct {
	ReportDir string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	estimation, err := loadEstimationConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load estimation configuration")
	}

	config := &Config{
		Estimation: *estimation,
		Server:     *loadServerConfig(),
		Benchmark:  *loadBenchmarkConfig(),
		Paths:      *loadPathConfig(),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

// EstimatorConfig converts the defaults into an estimator factory config
func (c EstimationConfig) EstimatorConfig() estimator.Config {
	return estimator.Config{
		Kind:        c.Estimator,
		NNRuns:      c.NNRuns,
		DropoutRate: c.DropoutRate,
		DiagEps:     c.DiagEps,
		Diagnostics: c.Diagnostics,
	}
}

func loadEstimationConfig() (*EstimationConfig, error) {
	strategy, err := mask.ParseName(getEnvOrDefault("UE_MASK_STRATEGY", string(mask.Mirror)))
	if err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}
	kind, err := estimator.ParseKind(getEnvOrDefault("UE_ESTIMATOR", string(estimator.KindMCDUE)))
	if err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}

	return &EstimationConfig{
		NNRuns:      getEnvIntOrDefault("UE_NN_RUNS", 25),
		DropoutRate: getEnvFloatOrDefault("UE_DROPOUT_RATE", 0.5),
		DiagEps:     getEnvFloatOrDefault("UE_DIAG_EPS", estimator.DefaultDiagEps),
		Strategy:    strategy,
		Estimator:   kind,
		Seed:        getEnvUintOrDefault("UE_SEED", 42),
		Diagnostics: getEnvBoolOrDefault("UE_DIAGNOSTICS", false),
	}, nil
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            getEnvOrDefault("PORT", "8080"),
		GinMode:         getEnvOrDefault("GIN_MODE", "release"),
		ShutdownTimeout: getEnvDurationOrDefault("UE_SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func loadBenchmarkConfig() *BenchmarkConfig {
	return &BenchmarkConfig{
		MaxConcurrency: getEnvIntOrDefault("UE_MAX_CONCURRENCY", 4),
		LedgerCapacity: getEnvIntOrDefault("UE_LEDGER_CAPACITY", 100),
	}
}

func loadPathConfig() *PathConfig {
	return &PathConfig{
		ReportDir: getEnvOrDefault("UE_REPORT_DIR", "./reports"),
	}
}

func validateConfig(config *Config) error {
	e := config.Estimation
	if e.NNRuns <= 0 {
		return errors.ConfigInvalid("UE_NN_RUNS must be positive")
	}
	if err := mask.ValidateRate(e.DropoutRate); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, err)
	}
	if e.DiagEps < 0 || math.IsNaN(e.DiagEps) {
		return errors.ConfigInvalid("UE_DIAG_EPS must be non-negative")
	}
	if config.Benchmark.MaxConcurrency <= 0 {
		return errors.ConfigInvalid("UE_MAX_CONCURRENCY must be positive")
	}
	if config.Benchmark.LedgerCapacity <= 0 {
		return errors.ConfigInvalid("UE_LEDGER_CAPACITY must be positive")
	}
	if config.Server.Port == "" {
		return errors.ConfigInvalid("PORT is required")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUintOrDefault(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if uintValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return uintValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
