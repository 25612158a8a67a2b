/**
 * @description
 * Configuration loader for the ticker analysis backend.
 * Responsible for reading environment variables, setting defaults, and performing strict validation.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files
 * - standard "os": For reading env vars
 *
 * @notes
 * - Fails fast if critical variables (Database URL, analyzer target) are missing.
 * - Load() returns a fresh Config struct; callers pass it down explicitly.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	AnalyzerModeProcess = "process"
	AnalyzerModeHTTP    = "http"

	StorageDriverLocal = "local"
	StorageDriverGCS   = "gcs"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	DB       DBConfig
	Redis    RedisConfig
	Analyzer AnalyzerConfig
	Storage  StorageConfig
	Worker   WorkerConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port string
	Env  string // "development", "staging", "production" or "test"
}

// DBConfig holds PostgreSQL settings
type DBConfig struct {
	URL string
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	URL string
}

// AnalyzerConfig describes how the external analysis process is reached
type AnalyzerConfig struct {
	Mode         string   // "process" or "http"
	Command      []string // process mode: argv prefix, analysis flags are appended
	URL          string   // http mode: base URL of the analysis API
	SyncTimeout  time.Duration
	AsyncTimeout time.Duration
}

// StorageConfig holds blob storage settings for chart images
type StorageConfig struct {
	Driver    string // "local" or "gcs"
	Dir       string // local driver root
	PublicURL string // prefix used to build public image URLs
	GCSBucket string
}

// WorkerConfig holds analysis queue and worker settings
type WorkerConfig struct {
	QueueKey            string
	Concurrency         int
	RatePerMinute       int
	RefreshCron         string // empty disables scheduled refreshes
	RefreshLookbackDays int
}

// Load reads .env file and populates the Config struct
func Load() (*Config, error) {
	// Attempt to load .env, but don't crash if it fails (containers inject env vars directly)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("GO_ENV", "development"),
		},
		DB: DBConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Analyzer: AnalyzerConfig{
			Mode:         strings.ToLower(getEnv("ANALYZER_MODE", AnalyzerModeProcess)),
			Command:      strings.Fields(getEnv("ANALYZER_COMMAND", "docker exec stock-python python /app/stock_model.py")),
			URL:          strings.TrimRight(getEnv("ANALYZER_URL", "http://stock-python:8000"), "/"),
			SyncTimeout:  getEnvAsDuration("ANALYZER_SYNC_TIMEOUT", 300*time.Second),
			AsyncTimeout: getEnvAsDuration("ANALYZER_ASYNC_TIMEOUT", 600*time.Second),
		},
		Storage: StorageConfig{
			Driver:    strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverLocal)),
			Dir:       getEnv("STORAGE_DIR", "./storage/public"),
			PublicURL: strings.TrimRight(getEnv("STORAGE_PUBLIC_URL", "/storage"), "/"),
			GCSBucket: getEnv("GCS_BUCKET", ""),
		},
		Worker: WorkerConfig{
			QueueKey:            getEnv("ANALYSIS_QUEUE_KEY", "analysis:queue"),
			Concurrency:         getEnvAsInt("WORKER_CONCURRENCY", 2),
			RatePerMinute:       getEnvAsInt("WORKER_RATE_PER_MINUTE", 0),
			RefreshCron:         getEnv("ANALYSIS_REFRESH_CRON", ""),
			RefreshLookbackDays: getEnvAsInt("ANALYSIS_REFRESH_LOOKBACK_DAYS", 365),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks for required variables
func validate(cfg *Config) error {
	if cfg.DB.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	switch cfg.Analyzer.Mode {
	case AnalyzerModeProcess:
		if len(cfg.Analyzer.Command) == 0 {
			return fmt.Errorf("ANALYZER_COMMAND is required when ANALYZER_MODE=process")
		}
	case AnalyzerModeHTTP:
		if cfg.Analyzer.URL == "" {
			return fmt.Errorf("ANALYZER_URL is required when ANALYZER_MODE=http")
		}
	default:
		return fmt.Errorf("unsupported ANALYZER_MODE %q", cfg.Analyzer.Mode)
	}

	if cfg.Analyzer.SyncTimeout <= 0 || cfg.Analyzer.AsyncTimeout <= 0 {
		return fmt.Errorf("analyzer timeouts must be positive")
	}

	switch cfg.Storage.Driver {
	case StorageDriverLocal:
		if cfg.Storage.Dir == "" {
			return fmt.Errorf("STORAGE_DIR is required when STORAGE_DRIVER=local")
		}
	case StorageDriverGCS:
		if cfg.Storage.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required when STORAGE_DRIVER=gcs")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.Storage.Driver)
	}

	if cfg.Worker.Concurrency < 1 {
		cfg.Worker.Concurrency = 1
	}
	return nil
}

// Helper to get env var with default
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// Helper to get env var as int
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

// Helper to get env var as duration; bare integers are read as seconds
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	return fallback
}
