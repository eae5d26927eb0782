package cmd

import (
	"fmt"
	"log/slog"

	"github.com/unamentis/latency-harness/internal/config"
	"github.com/unamentis/latency-harness/internal/orchestrator"
	"github.com/unamentis/latency-harness/internal/storage"
	"github.com/unamentis/latency-harness/internal/suite"
)

// setupHarness opens the configured store, creates the orchestrator and
// registers every available suite (built-in and external). The caller owns
// shutdown of both.
func setupHarness(cfg config.Config) (*orchestrator.Orchestrator, storage.Store, error) {
	store, err := storage.Open(cfg.StorageBackend, cfg.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s storage at %s: %w", cfg.StorageBackend, cfg.StoragePath, err)
	}

	orch := orchestrator.New(orchestrator.Options{
		Store:              store,
		QueueCapacity:      cfg.QueueCapacity,
		DefaultConcurrency: cfg.Concurrency,
		DefaultJobTimeout:  cfg.JobTimeout,
	})
	orch.Start()

	suites, failures := suite.LoadAll(cfg.SuitesDir)
	for id, err := range failures {
		slog.Warn("skipping unloadable suite", "suite_id", id, "error", err)
	}
	for _, def := range suites {
		if err := orch.RegisterSuite(def); err != nil {
			slog.Warn("skipping invalid suite", "suite_id", def.ID, "error", err)
		}
	}
	return orch, store, nil
}
