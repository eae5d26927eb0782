// Package config collects the harness's runtime configuration from the
// environment, with documented defaults for local development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/unamentis/latency-harness/internal/analyzer"
)

// Environment variables read by FromEnv.
const (
	EnvStorageBackend = "LATENCY_STORAGE_BACKEND"    // file | sqlite
	EnvStoragePath    = "LATENCY_STORAGE_PATH"       // data dir (file) or db file (sqlite)
	EnvListenAddr     = "LATENCY_LISTEN_ADDR"        // serve address
	EnvSuitesDir      = "LATENCY_SUITES_DIR"         // external suite YAML directory
	EnvConcurrency    = "LATENCY_DEFAULT_CONCURRENCY"
	EnvJobTimeout     = "LATENCY_DEFAULT_JOB_TIMEOUT" // Go duration, e.g. 30s
	EnvQueueCapacity  = "LATENCY_QUEUE_CAPACITY"
	EnvRelativePct    = "LATENCY_REGRESSION_RELATIVE_PCT"
	EnvAbsoluteCapMs  = "LATENCY_REGRESSION_ABSOLUTE_MS"
)

// Config is the resolved runtime configuration.
type Config struct {
	StorageBackend string
	StoragePath    string
	ListenAddr     string
	SuitesDir      string
	Concurrency    int
	JobTimeout     time.Duration
	QueueCapacity  int
	Thresholds     analyzer.Thresholds
}

// Default returns the documented local-development defaults: file storage
// under ./data, port 8085, concurrency 2, 30s job timeout.
func Default() Config {
	return Config{
		StorageBackend: "file",
		StoragePath:    "data",
		ListenAddr:     ":8085",
		Concurrency:    2,
		JobTimeout:     30 * time.Second,
		QueueCapacity:  1024,
		Thresholds:     analyzer.DefaultThresholds(),
	}
}

// FromEnv overlays environment variables on the defaults. Malformed values
// are ignored in favor of the default.
func FromEnv() Config {
	cfg := Default()
	if v := os.Getenv(EnvStorageBackend); v != "" {
		cfg.StorageBackend = v
	}
	if v := os.Getenv(EnvStoragePath); v != "" {
		cfg.StoragePath = v
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvSuitesDir); v != "" {
		cfg.SuitesDir = v
	}
	if v, err := strconv.Atoi(os.Getenv(EnvConcurrency)); err == nil && v > 0 {
		cfg.Concurrency = v
	}
	if v, err := time.ParseDuration(os.Getenv(EnvJobTimeout)); err == nil && v > 0 {
		cfg.JobTimeout = v
	}
	if v, err := strconv.Atoi(os.Getenv(EnvQueueCapacity)); err == nil && v > 0 {
		cfg.QueueCapacity = v
	}
	if v, err := strconv.ParseFloat(os.Getenv(EnvRelativePct), 64); err == nil && v > 0 {
		cfg.Thresholds.RelativePct = v
	}
	if v, err := strconv.ParseFloat(os.Getenv(EnvAbsoluteCapMs), 64); err == nil && v > 0 {
		cfg.Thresholds.AbsoluteCapMs = v
	}
	return cfg
}
