package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "file", cfg.StorageBackend)
	assert.Equal(t, ":8085", cfg.ListenAddr)
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.JobTimeout)
	assert.Equal(t, 1024, cfg.QueueCapacity)
	assert.Equal(t, 20.0, cfg.Thresholds.RelativePct)
	assert.Equal(t, 250.0, cfg.Thresholds.AbsoluteCapMs)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv(EnvStorageBackend, "sqlite")
	t.Setenv(EnvStoragePath, "/tmp/harness.db")
	t.Setenv(EnvConcurrency, "8")
	t.Setenv(EnvJobTimeout, "45s")
	t.Setenv(EnvRelativePct, "30")

	cfg := FromEnv()
	assert.Equal(t, "sqlite", cfg.StorageBackend)
	assert.Equal(t, "/tmp/harness.db", cfg.StoragePath)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 45*time.Second, cfg.JobTimeout)
	assert.Equal(t, 30.0, cfg.Thresholds.RelativePct)
	assert.Equal(t, 250.0, cfg.Thresholds.AbsoluteCapMs)
}

func TestFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv(EnvConcurrency, "not-a-number")
	t.Setenv(EnvJobTimeout, "-5s")
	t.Setenv(EnvQueueCapacity, "0")

	cfg := FromEnv()
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.JobTimeout)
	assert.Equal(t, 1024, cfg.QueueCapacity)
}
