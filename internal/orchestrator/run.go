package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/unamentis/latency-harness/internal/client"
	"github.com/unamentis/latency-harness/internal/model"
)

// StartRequest describes one run invocation.
type StartRequest struct {
	SuiteID string
	// Targets to dispatch against. Defaults to a single deterministic mock.
	Targets []string
	// Concurrency bounds in-flight jobs across all targets. Zero uses the
	// orchestrator default.
	Concurrency int
	// JobTimeout bounds each client call. Zero uses the orchestrator default.
	JobTimeout time.Duration
	// RunTimeout stops dispatching new jobs once exceeded and marks the run
	// timed_out. Zero means no run-level deadline.
	RunTimeout time.Duration
}

// StartRun expands the suite, creates the run and begins asynchronous
// execution, returning the run ID immediately. Callers poll GetRun or
// subscribe for progress.
//
// Pre-flight failures (unknown suite, no resolvable target) are returned
// synchronously and no run record is created.
func (o *Orchestrator) StartRun(req StartRequest) (string, error) {
	def, err := o.GetSuite(req.SuiteID)
	if err != nil {
		return "", err
	}

	if len(req.Targets) == 0 {
		req.Targets = []string{"mock"}
	}
	clients := make([]client.TestClient, 0, len(req.Targets))
	var resolveErrs []error
	for _, target := range req.Targets {
		c, err := o.opts.ResolveClient(target)
		if err != nil {
			slog.Warn("target failed to resolve", "target", target, "error", err)
			resolveErrs = append(resolveErrs, err)
			continue
		}
		clients = append(clients, c)
	}
	if len(clients) == 0 {
		return "", fmt.Errorf("no eligible targets: %w", errors.Join(resolveErrs...))
	}

	if req.Concurrency <= 0 {
		req.Concurrency = o.opts.DefaultConcurrency
	}
	if req.JobTimeout <= 0 {
		req.JobTimeout = o.opts.DefaultJobTimeout
	}

	jobs := def.ExpandJobs()
	targets := make([]string, len(clients))
	for i, c := range clients {
		targets[i] = c.Name()
	}

	rs := &runState{
		run: model.TestRun{
			ID:        uuid.NewString(),
			SuiteID:   def.ID,
			SuiteName: def.Name,
			Status:    model.RunPending,
			Targets:   targets,
			StartedAt: time.Now(),
			TotalJobs: len(jobs) * len(clients),
		},
		seen: make(map[string]bool, len(jobs)*len(clients)),
		done: make(chan struct{}),
	}

	o.mu.Lock()
	o.runs[rs.run.ID] = rs
	o.mu.Unlock()

	o.saveRunSnapshot(rs.run)

	o.wg.Add(1)
	go o.execute(rs, req, jobs, clients)

	slog.Info("run started",
		"run_id", rs.run.ID,
		"suite_id", def.ID,
		"targets", len(clients),
		"total_jobs", rs.run.TotalJobs,
		"concurrency", req.Concurrency,
	)
	return rs.run.ID, nil
}

// execute fans jobs out across targets with a shared concurrency bound and
// waits for all results to drain before finalizing the run.
func (o *Orchestrator) execute(rs *runState, req StartRequest, jobs []model.TestJob, clients []client.TestClient) {
	defer o.wg.Done()

	runID := rs.run.ID
	o.setStatus(runID, model.RunRunning)

	var deadline time.Time
	if req.RunTimeout > 0 {
		deadline = time.Now().Add(req.RunTimeout)
	}

	sem := semaphore.NewWeighted(int64(req.Concurrency))
	var pending sync.WaitGroup
	var timedOut atomic.Bool

	// One dispatcher per target; all target starts are issued without
	// waiting for any single target's result. The shared semaphore keeps
	// total in-flight jobs within the concurrency limit.
	var dispatchers sync.WaitGroup
	for _, c := range clients {
		c := c
		dispatchers.Add(1)
		go func() {
			defer dispatchers.Done()
			for _, job := range jobs {
				if o.baseCtx.Err() != nil {
					return
				}
				if o.isCancelled(runID) {
					return
				}
				if !deadline.IsZero() && time.Now().After(deadline) {
					timedOut.Store(true)
					return
				}
				if err := sem.Acquire(o.baseCtx, 1); err != nil {
					return
				}
				o.markDispatched(runID)
				pending.Add(1)
				go func(job model.TestJob) {
					defer sem.Release(1)
					defer pending.Done()
					o.dispatch(runID, c, job, req.JobTimeout)
				}(job)
			}
		}()
	}
	dispatchers.Wait()

	// Let in-flight jobs reach a terminal state, then wait for the consumer
	// to drain their results.
	pending.Wait()
	o.drainRun(rs)

	// Cancellation wins over shutdown: a user-cancelled run that drains
	// during Stop must still report cancelled, not failed.
	status := model.RunCompleted
	switch {
	case o.isCancelled(runID):
		status = model.RunCancelled
	case timedOut.Load():
		status = model.RunTimedOut
	case o.baseCtx.Err() != nil:
		status = model.RunFailed
	}
	o.finalize(rs, status)
}

// dispatch is the per-job critical path: await the client response, stamp
// timestamps, classify, enqueue. Persistence, logging and broadcast all
// happen on the consumer side so instrumentation overhead cannot leak into
// the measurement.
func (o *Orchestrator) dispatch(runID string, c client.TestClient, job model.TestJob, timeout time.Duration) {
	jobsInFlight.Inc()
	defer jobsInFlight.Dec()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(o.baseCtx), timeout)
	defer cancel()

	measurement, err := c.Execute(ctx, job)

	result := model.TestResult{
		ID:           uuid.NewString(),
		RunID:        runID,
		ConfigID:     job.ConfigID,
		ScenarioID:   job.Scenario.ID,
		ScenarioName: job.Scenario.Name,
		Repetition:   job.Repetition,
		Target:       c.Name(),
		Timestamp:    time.Now(),
	}
	switch {
	case err == nil:
		result.Outcome = model.OutcomeSuccess
		result.Latencies = measurement.Latencies
		result.CostUSD = measurement.CostUSD
	case errors.Is(err, context.DeadlineExceeded):
		result.Outcome = model.OutcomeTimeout
		result.Errors = []string{fmt.Sprintf("job timed out after %s", timeout)}
	default:
		result.Outcome = model.OutcomeClientError
		result.Errors = []string{err.Error()}
	}

	o.enqueue(result)
}

// enqueue never blocks: when the queue is at capacity the newest result is
// dropped and counted. Losing a result is preferable to corrupting the
// latency of every result behind it.
func (o *Orchestrator) enqueue(result model.TestResult) {
	select {
	case o.queue <- result:
	default:
		resultsDropped.Inc()
		slog.Warn("result queue full, dropping newest result",
			"run_id", result.RunID,
			"job", result.JobKey(),
		)
		o.recordDropped(result)
	}
}

// recordDropped keeps run counters consistent for results that never reach
// the consumer.
func (o *Orchestrator) recordDropped(result model.TestResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rs, ok := o.runs[result.RunID]
	if !ok || rs.seen[result.JobKey()] {
		return
	}
	rs.seen[result.JobKey()] = true
	countOutcome(&rs.run, result.Outcome)
}

func (o *Orchestrator) isCancelled(runID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	rs, ok := o.runs[runID]
	return ok && rs.cancelled
}

func (o *Orchestrator) markDispatched(runID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if rs, ok := o.runs[runID]; ok {
		rs.run.Dispatched++
	}
	jobsDispatched.Inc()
}

func (o *Orchestrator) setStatus(runID string, status model.RunStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if rs, ok := o.runs[runID]; ok {
		rs.run.Status = status
	}
}

// drainRun blocks until the consumer has processed every queued result for
// the run.
func (o *Orchestrator) drainRun(rs *runState) {
	for {
		o.mu.RLock()
		done := rs.run.Finished() >= rs.run.Dispatched
		o.mu.RUnlock()
		if done || o.baseCtx.Err() != nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (o *Orchestrator) finalize(rs *runState, status model.RunStatus) {
	o.mu.Lock()
	rs.run.Status = status
	now := time.Now()
	rs.run.CompletedAt = &now
	run := rs.run
	o.mu.Unlock()

	o.saveRunSnapshot(run)
	close(rs.done)

	slog.Info("run finished",
		"run_id", run.ID,
		"status", string(run.Status),
		"dispatched", run.Dispatched,
		"completed", run.Completed,
		"failed", run.Failed,
		"timed_out", run.TimedOut,
		"success_rate", fmt.Sprintf("%.1f", run.SuccessRate()),
	)

	if o.OnRunComplete != nil {
		o.OnRunComplete(run)
	}
}
