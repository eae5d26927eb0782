// Package storage provides durable persistence of runs, results and
// baselines behind a uniform contract with two interchangeable backends:
// a file-backed store for single-process local use and a SQLite store that
// is safe for concurrent multi-agent writers.
package storage

import (
	"fmt"

	"github.com/unamentis/latency-harness/internal/model"
)

// ResultFilter narrows a ListResults query. Zero-valued fields match
// everything.
type ResultFilter struct {
	ConfigID    string
	ScenarioID  string
	OnlySuccess bool
}

func (f ResultFilter) matches(r *model.TestResult) bool {
	if f.ConfigID != "" && r.ConfigID != f.ConfigID {
		return false
	}
	if f.ScenarioID != "" && r.ScenarioID != f.ScenarioID {
		return false
	}
	if f.OnlySuccess && !r.Success() {
		return false
	}
	return true
}

// Store is the persistence contract shared by both backends. All writes are
// idempotent keyed by natural IDs (run ID, job identity, baseline ID) so a
// retried write after a transient failure never duplicates data.
type Store interface {
	// SaveRun upserts a run record by run ID.
	SaveRun(run *model.TestRun) error
	// LoadRun returns the run record, or model.ErrUnknownRun.
	LoadRun(runID string) (*model.TestRun, error)
	// ListRuns returns run records, newest first. An empty status matches
	// all statuses; limit <= 0 means no limit.
	ListRuns(status model.RunStatus, limit int) ([]*model.TestRun, error)

	// SaveResult appends a result. Saving the same job identity for the same
	// run twice is a no-op.
	SaveResult(result *model.TestResult) error
	// ListResults returns a run's results filtered by f.
	ListResults(runID string, f ResultFilter) ([]model.TestResult, error)

	// SaveBaseline stores a frozen baseline snapshot.
	SaveBaseline(b *model.PerformanceBaseline) error
	// LoadBaseline resolves a baseline by ID or name, or
	// model.ErrBaselineNotFound.
	LoadBaseline(idOrName string) (*model.PerformanceBaseline, error)
	// ListBaselines returns all baselines, newest first.
	ListBaselines() ([]*model.PerformanceBaseline, error)

	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open creates a store for the given backend. The path is a data directory
// for the file backend and a database file for the SQLite backend.
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(path)
	case BackendSQLite:
		return OpenSQL(path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
