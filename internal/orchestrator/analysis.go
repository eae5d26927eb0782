package orchestrator

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/unamentis/latency-harness/internal/analyzer"
	"github.com/unamentis/latency-harness/internal/model"
	"github.com/unamentis/latency-harness/internal/storage"
)

// ResultsForRun returns a run's results, preferring the in-memory buffer of
// a live run and falling back to storage for runs from earlier processes.
func (o *Orchestrator) ResultsForRun(runID string) ([]model.TestResult, error) {
	results, err := o.GetRunResults(runID)
	if err == nil {
		return results, nil
	}
	if o.opts.Store == nil {
		return nil, err
	}
	if _, err := o.opts.Store.LoadRun(runID); err != nil {
		return nil, err
	}
	return o.opts.Store.ListResults(runID, storage.ResultFilter{})
}

// LookupRun resolves a run snapshot from memory or storage.
func (o *Orchestrator) LookupRun(runID string) (model.TestRun, error) {
	run, err := o.GetRun(runID)
	if err == nil {
		return run, nil
	}
	if o.opts.Store == nil {
		return model.TestRun{}, err
	}
	stored, err := o.opts.Store.LoadRun(runID)
	if err != nil {
		return model.TestRun{}, err
	}
	return *stored, nil
}

// Report is a full analysis of one run.
type Report struct {
	RunID           string           `json:"runId"`
	GeneratedAt     time.Time        `json:"generatedAt"`
	Summary         analyzer.Summary `json:"summary"`
	Verdict         analyzer.Verdict `json:"verdict"`
	Recommendations []string         `json:"recommendations"`
	BaselineName    string           `json:"baselineName,omitempty"`
}

// AnalyzeRun summarizes a run and, when baselineName is non-empty, checks it
// for regressions against that baseline.
func (o *Orchestrator) AnalyzeRun(runID, baselineName string, thresholds analyzer.Thresholds) (*Report, error) {
	results, err := o.ResultsForRun(runID)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:       runID,
		GeneratedAt: time.Now(),
		Summary:     analyzer.Summarize(results),
	}

	if baselineName != "" {
		if o.opts.Store == nil {
			return nil, errors.New("baseline comparison requires a configured store")
		}
		baseline, err := o.opts.Store.LoadBaseline(baselineName)
		if err != nil {
			return nil, err
		}
		report.BaselineName = baseline.Name
		report.Verdict = analyzer.DetectRegression(report.Summary, baseline, thresholds)
	}

	report.Recommendations = analyzer.Recommend(report.Summary, report.Verdict)
	return report, nil
}

// CreateBaseline freezes a completed run's aggregates into a named baseline.
// Baselines are created only by this explicit operation.
func (o *Orchestrator) CreateBaseline(runID, name, description string, active bool) (*model.PerformanceBaseline, error) {
	if o.opts.Store == nil {
		return nil, errors.New("baseline creation requires a configured store")
	}

	run, err := o.LookupRun(runID)
	if err != nil {
		return nil, err
	}
	if run.Status != model.RunCompleted {
		return nil, fmt.Errorf("%w: run %s is %s", model.ErrRunNotCompleted, runID, run.Status)
	}

	results, err := o.ResultsForRun(runID)
	if err != nil {
		return nil, err
	}
	successful := 0
	for i := range results {
		if results[i].Success() {
			successful++
		}
	}
	if successful == 0 {
		return nil, fmt.Errorf("run %s has no successful results to baseline", runID)
	}

	overall, perConfig := analyzer.BuildBaseline(results)
	if name == "" {
		name = "baseline-" + runID[:8]
	}
	b := &model.PerformanceBaseline{
		ID:            uuid.NewString()[:8],
		Name:          name,
		Description:   description,
		RunID:         runID,
		CreatedAt:     time.Now(),
		Active:        active,
		ConfigMetrics: perConfig,
		Overall:       overall,
	}
	if err := o.opts.Store.SaveBaseline(b); err != nil {
		return nil, fmt.Errorf("failed to save baseline: %w", err)
	}
	slog.Info("baseline created", "baseline_id", b.ID, "name", b.Name, "run_id", runID, "samples", overall.SampleCount)
	return b, nil
}
