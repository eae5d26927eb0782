package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/unamentis/latency-harness/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    suite_id TEXT NOT NULL,
    suite_name TEXT NOT NULL,
    status TEXT NOT NULL,
    targets TEXT NOT NULL,
    started_at TEXT NOT NULL,
    completed_at TEXT,
    total_jobs INTEGER NOT NULL,
    dispatched INTEGER NOT NULL,
    completed INTEGER NOT NULL,
    failed INTEGER NOT NULL,
    timed_out INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS results (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    config_id TEXT NOT NULL,
    scenario_id TEXT NOT NULL,
    scenario_name TEXT NOT NULL,
    repetition INTEGER NOT NULL,
    target TEXT,
    timestamp TEXT NOT NULL,
    outcome TEXT NOT NULL,
    errors TEXT,
    cost_usd REAL,
    stt_first_byte_ms REAL,
    stt_final_ms REAL,
    llm_ttfb_ms REAL,
    llm_completion_ms REAL,
    tts_ttfb_ms REAL,
    tts_completion_ms REAL,
    e2e_ms REAL NOT NULL,
    UNIQUE(run_id, target, config_id, scenario_id, repetition)
);

CREATE TABLE IF NOT EXISTS baselines (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    description TEXT,
    run_id TEXT NOT NULL,
    created_at TEXT NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 0,
    overall_json TEXT NOT NULL,
    config_metrics_json TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

// SQLStore is the relational backend. The UNIQUE(run_id, target, config_id,
// scenario_id, repetition) constraint makes concurrent multi-agent result
// writers safe: duplicate saves of the same job identity are ignored, while
// the same job executed against different targets stays distinct.
type SQLStore struct {
	conn *sql.DB
}

// OpenSQL opens or creates the SQLite database and initializes the schema.
func OpenSQL(path string) (*SQLStore, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL allows concurrent readers while one writer is active; the busy
	// timeout makes lock contention retry instead of failing immediately.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", p, err)
		}
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLStore{conn: conn}, nil
}

func (s *SQLStore) Close() error { return s.conn.Close() }

func (s *SQLStore) SaveRun(run *model.TestRun) error {
	var completedAt *string
	if run.CompletedAt != nil {
		t := run.CompletedAt.Format(time.RFC3339Nano)
		completedAt = &t
	}
	_, err := s.conn.Exec(`
		INSERT INTO runs (id, suite_id, suite_name, status, targets, started_at, completed_at,
			total_jobs, dispatched, completed, failed, timed_out)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			dispatched = excluded.dispatched,
			completed = excluded.completed,
			failed = excluded.failed,
			timed_out = excluded.timed_out`,
		run.ID, run.SuiteID, run.SuiteName, string(run.Status),
		strings.Join(run.Targets, ","), run.StartedAt.Format(time.RFC3339Nano), completedAt,
		run.TotalJobs, run.Dispatched, run.Completed, run.Failed, run.TimedOut,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQLStore) LoadRun(runID string) (*model.TestRun, error) {
	row := s.conn.QueryRow(`
		SELECT id, suite_id, suite_name, status, targets, started_at, completed_at,
			total_jobs, dispatched, completed, failed, timed_out
		FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrUnknownRun
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return run, nil
}

func (s *SQLStore) ListRuns(status model.RunStatus, limit int) ([]*model.TestRun, error) {
	query := `
		SELECT id, suite_id, suite_name, status, targets, started_at, completed_at,
			total_jobs, dispatched, completed, failed, timed_out
		FROM runs`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.TestRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.TestRun, error) {
	var run model.TestRun
	var status, targets, startedAt string
	var completedAt *string
	err := row.Scan(&run.ID, &run.SuiteID, &run.SuiteName, &status, &targets, &startedAt, &completedAt,
		&run.TotalJobs, &run.Dispatched, &run.Completed, &run.Failed, &run.TimedOut)
	if err != nil {
		return nil, err
	}
	run.Status = model.RunStatus(status)
	if targets != "" {
		run.Targets = strings.Split(targets, ",")
	}
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, err
	}
	if completedAt != nil {
		t, err := time.Parse(time.RFC3339Nano, *completedAt)
		if err != nil {
			return nil, err
		}
		run.CompletedAt = &t
	}
	return &run, nil
}

func (s *SQLStore) SaveResult(r *model.TestResult) error {
	// INSERT OR IGNORE makes retried and concurrent duplicate saves no-ops
	// via the (run_id, target, job identity) unique constraint.
	_, err := s.conn.Exec(`
		INSERT OR IGNORE INTO results (id, run_id, config_id, scenario_id, scenario_name,
			repetition, target, timestamp, outcome, errors, cost_usd,
			stt_first_byte_ms, stt_final_ms, llm_ttfb_ms, llm_completion_ms,
			tts_ttfb_ms, tts_completion_ms, e2e_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RunID, r.ConfigID, r.ScenarioID, r.ScenarioName,
		r.Repetition, r.Target, r.Timestamp.Format(time.RFC3339Nano), string(r.Outcome),
		strings.Join(r.Errors, ";"), r.CostUSD,
		r.Latencies.STTFirstByteMs, r.Latencies.STTFinalMs,
		r.Latencies.LLMTTFBMs, r.Latencies.LLMCompletionMs,
		r.Latencies.TTSTTFBMs, r.Latencies.TTSCompletionMs, r.Latencies.E2EMs,
	)
	if err != nil {
		return fmt.Errorf("failed to save result %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLStore) ListResults(runID string, filter ResultFilter) ([]model.TestResult, error) {
	query := `
		SELECT id, run_id, config_id, scenario_id, scenario_name, repetition, target,
			timestamp, outcome, errors, cost_usd,
			stt_first_byte_ms, stt_final_ms, llm_ttfb_ms, llm_completion_ms,
			tts_ttfb_ms, tts_completion_ms, e2e_ms
		FROM results WHERE run_id = ?`
	args := []any{runID}
	if filter.ConfigID != "" {
		query += " AND config_id = ?"
		args = append(args, filter.ConfigID)
	}
	if filter.ScenarioID != "" {
		query += " AND scenario_id = ?"
		args = append(args, filter.ScenarioID)
	}
	if filter.OnlySuccess {
		query += " AND outcome = ?"
		args = append(args, string(model.OutcomeSuccess))
	}
	query += " ORDER BY timestamp"

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list results for run %s: %w", runID, err)
	}
	defer rows.Close()

	var results []model.TestResult
	for rows.Next() {
		var r model.TestResult
		var ts, outcome, errs string
		err := rows.Scan(&r.ID, &r.RunID, &r.ConfigID, &r.ScenarioID, &r.ScenarioName,
			&r.Repetition, &r.Target, &ts, &outcome, &errs, &r.CostUSD,
			&r.Latencies.STTFirstByteMs, &r.Latencies.STTFinalMs,
			&r.Latencies.LLMTTFBMs, &r.Latencies.LLMCompletionMs,
			&r.Latencies.TTSTTFBMs, &r.Latencies.TTSCompletionMs, &r.Latencies.E2EMs)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Outcome = model.ResultOutcome(outcome)
		if errs != "" {
			r.Errors = strings.Split(errs, ";")
		}
		if r.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("failed to parse result timestamp: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *SQLStore) SaveBaseline(b *model.PerformanceBaseline) error {
	overall, err := json.Marshal(b.Overall)
	if err != nil {
		return fmt.Errorf("failed to encode baseline metrics: %w", err)
	}
	configs, err := json.Marshal(b.ConfigMetrics)
	if err != nil {
		return fmt.Errorf("failed to encode baseline config metrics: %w", err)
	}

	// Baseline creation is transactional: deactivating the previous active
	// baseline and writing the new snapshot happen atomically.
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin baseline transaction: %w", err)
	}
	defer tx.Rollback()

	if b.Active {
		if _, err := tx.Exec(`UPDATE baselines SET is_active = 0 WHERE is_active = 1`); err != nil {
			return fmt.Errorf("failed to deactivate previous baseline: %w", err)
		}
	}
	_, err = tx.Exec(`
		INSERT INTO baselines (id, name, description, run_id, created_at, is_active, overall_json, config_metrics_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			is_active = excluded.is_active`,
		b.ID, b.Name, b.Description, b.RunID, b.CreatedAt.Format(time.RFC3339Nano),
		boolToInt(b.Active), string(overall), string(configs),
	)
	if err != nil {
		return fmt.Errorf("failed to save baseline %s: %w", b.ID, err)
	}
	return tx.Commit()
}

func (s *SQLStore) LoadBaseline(idOrName string) (*model.PerformanceBaseline, error) {
	row := s.conn.QueryRow(`
		SELECT id, name, description, run_id, created_at, is_active, overall_json, config_metrics_json
		FROM baselines WHERE id = ? OR name = ?`, idOrName, idOrName)
	b, err := scanBaseline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrBaselineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline %s: %w", idOrName, err)
	}
	return b, nil
}

func (s *SQLStore) ListBaselines() ([]*model.PerformanceBaseline, error) {
	rows, err := s.conn.Query(`
		SELECT id, name, description, run_id, created_at, is_active, overall_json, config_metrics_json
		FROM baselines ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list baselines: %w", err)
	}
	defer rows.Close()

	var baselines []*model.PerformanceBaseline
	for rows.Next() {
		b, err := scanBaseline(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan baseline: %w", err)
		}
		baselines = append(baselines, b)
	}
	return baselines, rows.Err()
}

func scanBaseline(row rowScanner) (*model.PerformanceBaseline, error) {
	var b model.PerformanceBaseline
	var createdAt, overall, configs string
	var active int
	err := row.Scan(&b.ID, &b.Name, &b.Description, &b.RunID, &createdAt, &active, &overall, &configs)
	if err != nil {
		return nil, err
	}
	b.Active = active != 0
	if b.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(overall), &b.Overall); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(configs), &b.ConfigMetrics); err != nil {
		return nil, err
	}
	return &b, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
