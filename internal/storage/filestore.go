package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/unamentis/latency-harness/internal/model"
)

// FileStore persists entities as JSON files under a data directory:
// one file per run, an append-only JSONL file per run for results, and one
// file per baseline. It assumes a single writing process; cross-process
// writer safety is the SQLite backend's job.
type FileStore struct {
	dir string

	mu   sync.Mutex
	seen map[string]map[string]bool // runID -> job key -> saved
}

// NewFileStore creates the data directory layout if needed.
func NewFileStore(dir string) (*FileStore, error) {
	for _, sub := range []string{"runs", "results", "baselines"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	return &FileStore{dir: dir, seen: make(map[string]map[string]bool)}, nil
}

func (s *FileStore) runPath(runID string) string {
	return filepath.Join(s.dir, "runs", sanitize(runID)+".json")
}

func (s *FileStore) resultsPath(runID string) string {
	return filepath.Join(s.dir, "results", sanitize(runID)+".jsonl")
}

func (s *FileStore) baselinePath(id string) string {
	return filepath.Join(s.dir, "baselines", sanitize(id)+".json")
}

func (s *FileStore) SaveRun(run *model.TestRun) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run %s: %w", run.ID, err)
	}
	// Write-then-rename keeps the run file whole if the process dies
	// mid-write.
	tmp := s.runPath(run.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run %s: %w", run.ID, err)
	}
	if err := os.Rename(tmp, s.runPath(run.ID)); err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

func (s *FileStore) LoadRun(runID string) (*model.TestRun, error) {
	data, err := os.ReadFile(s.runPath(runID))
	if os.IsNotExist(err) {
		return nil, model.ErrUnknownRun
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run %s: %w", runID, err)
	}
	var run model.TestRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", runID, err)
	}
	return &run, nil
}

func (s *FileStore) ListRuns(status model.RunStatus, limit int) ([]*model.TestRun, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, "runs"))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	var runs []*model.TestRun
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		run, err := s.LoadRun(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		if status != "" && run.Status != status {
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *FileStore) SaveResult(result *model.TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := result.JobKey()
	if s.seen[result.RunID] == nil {
		s.seen[result.RunID] = make(map[string]bool)
	}
	if s.seen[result.RunID][key] {
		return nil // duplicate save attempt
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result %s: %w", result.ID, err)
	}
	f, err := os.OpenFile(s.resultsPath(result.RunID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open results file for run %s: %w", result.RunID, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append result %s: %w", result.ID, err)
	}
	s.seen[result.RunID][key] = true
	return nil
}

func (s *FileStore) ListResults(runID string, filter ResultFilter) ([]model.TestResult, error) {
	f, err := os.Open(s.resultsPath(runID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open results for run %s: %w", runID, err)
	}
	defer f.Close()

	var results []model.TestResult
	dedup := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r model.TestResult
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("corrupt result line in run %s: %w", runID, err)
		}
		// First occurrence wins: results are immutable once created.
		if dedup[r.JobKey()] {
			continue
		}
		dedup[r.JobKey()] = true
		if filter.matches(&r) {
			results = append(results, r)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read results for run %s: %w", runID, err)
	}
	return results, nil
}

func (s *FileStore) SaveBaseline(b *model.PerformanceBaseline) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode baseline %s: %w", b.ID, err)
	}
	if err := os.WriteFile(s.baselinePath(b.ID), data, 0o644); err != nil {
		return fmt.Errorf("failed to save baseline %s: %w", b.ID, err)
	}
	return nil
}

func (s *FileStore) LoadBaseline(idOrName string) (*model.PerformanceBaseline, error) {
	// Direct ID hit first, then scan by name.
	data, err := os.ReadFile(s.baselinePath(idOrName))
	if err == nil {
		var b model.PerformanceBaseline
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("failed to decode baseline %s: %w", idOrName, err)
		}
		return &b, nil
	}
	baselines, err := s.ListBaselines()
	if err != nil {
		return nil, err
	}
	for _, b := range baselines {
		if b.Name == idOrName {
			return b, nil
		}
	}
	return nil, model.ErrBaselineNotFound
}

func (s *FileStore) ListBaselines() ([]*model.PerformanceBaseline, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, "baselines"))
	if err != nil {
		return nil, fmt.Errorf("failed to list baselines: %w", err)
	}
	var baselines []*model.PerformanceBaseline
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, "baselines", e.Name()))
		if err != nil {
			continue
		}
		var b model.PerformanceBaseline
		if err := json.Unmarshal(data, &b); err != nil {
			continue
		}
		baselines = append(baselines, &b)
	}
	sort.Slice(baselines, func(i, j int) bool { return baselines[i].CreatedAt.After(baselines[j].CreatedAt) })
	return baselines, nil
}

func (s *FileStore) Close() error { return nil }

// sanitize replaces characters unsafe for filenames with underscores.
func sanitize(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(name)
}
