package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownSuite is returned when a run references an unregistered suite.
var ErrUnknownSuite = errors.New("unknown suite")

// ErrUnknownRun is returned when a run ID does not exist.
var ErrUnknownRun = errors.New("unknown run")

// TestJob is one (scenario, configuration, repetition) triple -- the atomic
// unit of scheduling. Jobs are created at suite expansion time and dispatched
// exactly once per run; there is no automatic retry.
type TestJob struct {
	ConfigID   string            `json:"configId"`
	Config     TestConfiguration `json:"config"`
	Scenario   TestScenario      `json:"scenario"`
	Repetition int               `json:"repetition"`
}

// Key returns the job identity within one target's dispatch sequence.
// Result-level identity additionally carries the target; see
// TestResult.JobKey.
func (j TestJob) Key() string {
	return fmt.Sprintf("%s/%s/%d", j.ConfigID, j.Scenario.ID, j.Repetition)
}

// ResultOutcome classifies how a job terminated.
type ResultOutcome string

const (
	OutcomeSuccess     ResultOutcome = "success"
	OutcomeClientError ResultOutcome = "client_error"
	OutcomeTimeout     ResultOutcome = "timeout"
)

// StageLatencies holds the per-stage measurements for one job, in
// milliseconds. Zero values mean the stage was not reached.
type StageLatencies struct {
	STTFirstByteMs  float64 `json:"sttFirstByteMs,omitempty"`
	STTFinalMs      float64 `json:"sttFinalMs,omitempty"`
	LLMTTFBMs       float64 `json:"llmTtfbMs,omitempty"`
	LLMCompletionMs float64 `json:"llmCompletionMs,omitempty"`
	TTSTTFBMs       float64 `json:"ttsTtfbMs,omitempty"`
	TTSCompletionMs float64 `json:"ttsCompletionMs,omitempty"`
	E2EMs           float64 `json:"e2eMs"`
}

// TestResult is the immutable outcome of one TestJob. Results are append-only
// and treated as an unordered multiset keyed by job identity.
type TestResult struct {
	ID           string         `json:"id"`
	RunID        string         `json:"runId"`
	ConfigID     string         `json:"configId"`
	ScenarioID   string         `json:"scenarioId"`
	ScenarioName string         `json:"scenarioName"`
	Repetition   int            `json:"repetition"`
	Target       string         `json:"target,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Latencies    StageLatencies `json:"latencies"`
	Outcome      ResultOutcome  `json:"outcome"`
	Errors       []string       `json:"errors,omitempty"`
	CostUSD      float64        `json:"costUsd,omitempty"`
}

// Success reports whether the job completed without error or timeout.
func (r *TestResult) Success() bool {
	return r.Outcome == OutcomeSuccess
}

// JobKey returns the result's identity within its run, used for idempotent
// persistence and duplicate suppression. The target is part of the identity:
// multi-target runs execute the same job once per target, and each execution
// is a distinct result.
func (r *TestResult) JobKey() string {
	return fmt.Sprintf("%s/%s/%s/%d", r.Target, r.ConfigID, r.ScenarioID, r.Repetition)
}

// RunStatus is the lifecycle state of a test run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunTimedOut  RunStatus = "timed_out"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunTimedOut, RunCancelled:
		return true
	}
	return false
}

// TestRun groups all results produced by one invocation of a suite. Run state
// is mutated only by the orchestrator; readers get copies.
type TestRun struct {
	ID          string     `json:"id"`
	SuiteID     string     `json:"suiteId"`
	SuiteName   string     `json:"suiteName"`
	Status      RunStatus  `json:"status"`
	Targets     []string   `json:"targets"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	TotalJobs   int        `json:"totalJobs"`
	Dispatched  int        `json:"dispatched"`
	Completed   int        `json:"completed"`
	Failed      int        `json:"failed"`
	TimedOut    int        `json:"timedOut"`
}

// Finished returns the number of jobs that reached a terminal outcome.
func (r *TestRun) Finished() int {
	return r.Completed + r.Failed + r.TimedOut
}

// SuccessRate returns the percentage of finished jobs that succeeded,
// or zero when nothing finished.
func (r *TestRun) SuccessRate() float64 {
	if r.Finished() == 0 {
		return 0
	}
	return float64(r.Completed) / float64(r.Finished()) * 100
}
