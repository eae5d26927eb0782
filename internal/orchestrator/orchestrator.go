// Package orchestrator schedules test runs: it expands suite definitions
// into job lists, dispatches them against targets with bounded concurrency,
// and drains results through a non-blocking queue so that persistence and
// broadcast never execute on the measurement path.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/unamentis/latency-harness/internal/client"
	"github.com/unamentis/latency-harness/internal/model"
	"github.com/unamentis/latency-harness/internal/storage"
)

// Callbacks for live updates. They run on the serialized consumer side,
// never inside the per-job dispatch loop. Set them before Start.
type (
	ProgressFunc    func(runID string, finished, total int)
	ResultFunc      func(runID string, result model.TestResult)
	RunCompleteFunc func(run model.TestRun)
)

// Options configures an Orchestrator. Zero values fall back to the
// documented defaults.
type Options struct {
	// Store receives runs and results from the background writer. Nil
	// disables persistence.
	Store storage.Store
	// QueueCapacity bounds the result queue. When the queue is full the
	// newest result is dropped with a logged warning rather than blocking
	// the dispatch loop. Default 1024.
	QueueCapacity int
	// DefaultConcurrency bounds in-flight jobs per run when the start
	// request does not specify a limit. Kept small so resource contention
	// does not skew measured latencies. Default 2.
	DefaultConcurrency int
	// DefaultJobTimeout applies to jobs when the start request does not
	// specify one. Default 30s.
	DefaultJobTimeout time.Duration
	// ResolveClient maps target strings to clients. Default client.Resolve.
	ResolveClient func(target string) (client.TestClient, error)
}

func (o *Options) applyDefaults() {
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = 1024
	}
	if o.DefaultConcurrency <= 0 {
		o.DefaultConcurrency = 2
	}
	if o.DefaultJobTimeout <= 0 {
		o.DefaultJobTimeout = 30 * time.Second
	}
	if o.ResolveClient == nil {
		o.ResolveClient = client.Resolve
	}
}

// runState is the orchestrator-private state for one run. The orchestrator
// is the single owner of run mutations; readers always receive copies.
type runState struct {
	run       model.TestRun
	results   []model.TestResult
	seen      map[string]bool // job keys, for duplicate suppression
	cancelled bool
	done      chan struct{}
}

// Orchestrator owns the suite registry, the run registry and the result
// pipeline.
type Orchestrator struct {
	opts Options

	OnProgress    ProgressFunc
	OnResult      ResultFunc
	OnRunComplete RunCompleteFunc

	mu         sync.RWMutex
	suites     map[string]*model.TestSuiteDefinition
	suiteOrder []string
	runs       map[string]*runState

	queue   chan model.TestResult
	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an orchestrator. Call Start before starting runs and Stop on
// shutdown.
func New(opts Options) *Orchestrator {
	opts.applyDefaults()
	return &Orchestrator{
		opts:   opts,
		suites: make(map[string]*model.TestSuiteDefinition),
		runs:   make(map[string]*runState),
		queue:  make(chan model.TestResult, opts.QueueCapacity),
	}
}

// Start launches the background consumer that drains the result queue.
func (o *Orchestrator) Start() {
	o.baseCtx, o.stop = context.WithCancel(context.Background())
	o.wg.Add(1)
	go o.consume()
}

// Stop cancels in-progress dispatch and waits for the consumer to drain,
// up to the context deadline.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.stop()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("orchestrator shutdown incomplete: %w", ctx.Err())
	}
}

// RegisterSuite validates and stores a suite definition in the registry.
// Registering an existing ID replaces the previous definition (last write
// wins) without changing its position in the listing order.
func (o *Orchestrator) RegisterSuite(def *model.TestSuiteDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.suites[def.ID]; !exists {
		o.suiteOrder = append(o.suiteOrder, def.ID)
	}
	o.suites[def.ID] = def
	slog.Info("suite registered", "suite_id", def.ID, "scenarios", len(def.Scenarios), "total_tests", def.TotalTestCount())
	return nil
}

// UnregisterSuite removes a suite from the registry. Runs already started
// from the suite are unaffected.
func (o *Orchestrator) UnregisterSuite(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.suites[id]; !ok {
		return fmt.Errorf("%w: %s", model.ErrUnknownSuite, id)
	}
	delete(o.suites, id)
	for i, sid := range o.suiteOrder {
		if sid == id {
			o.suiteOrder = append(o.suiteOrder[:i], o.suiteOrder[i+1:]...)
			break
		}
	}
	slog.Info("suite unregistered", "suite_id", id)
	return nil
}

// GetSuite returns a registered suite definition.
func (o *Orchestrator) GetSuite(id string) (*model.TestSuiteDefinition, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	def, ok := o.suites[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownSuite, id)
	}
	return def, nil
}

// ListSuites returns registered suites in registration order.
func (o *Orchestrator) ListSuites() []*model.TestSuiteDefinition {
	o.mu.RLock()
	defer o.mu.RUnlock()
	suites := make([]*model.TestSuiteDefinition, 0, len(o.suiteOrder))
	for _, id := range o.suiteOrder {
		suites = append(suites, o.suites[id])
	}
	return suites
}

// GetRun returns a snapshot of a run's state.
func (o *Orchestrator) GetRun(runID string) (model.TestRun, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	rs, ok := o.runs[runID]
	if !ok {
		return model.TestRun{}, fmt.Errorf("%w: %s", model.ErrUnknownRun, runID)
	}
	return rs.run, nil
}

// GetRunResults returns a copy of the results accumulated so far.
func (o *Orchestrator) GetRunResults(runID string) ([]model.TestResult, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	rs, ok := o.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownRun, runID)
	}
	results := make([]model.TestResult, len(rs.results))
	copy(results, rs.results)
	return results, nil
}

// ListRuns returns run snapshots, newest first. An empty status matches all
// statuses; limit <= 0 means no limit.
func (o *Orchestrator) ListRuns(status model.RunStatus, limit int) []model.TestRun {
	o.mu.RLock()
	var runs []model.TestRun
	for _, rs := range o.runs {
		if status != "" && rs.run.Status != status {
			continue
		}
		runs = append(runs, rs.run)
	}
	o.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs
}

// CancelRun stops new dispatch for a run. In-flight jobs finish or time out
// naturally; the run transitions to cancelled once they drain.
func (o *Orchestrator) CancelRun(runID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	rs, ok := o.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrUnknownRun, runID)
	}
	if rs.run.Status.Terminal() {
		return nil
	}
	rs.cancelled = true
	slog.Info("run cancellation requested", "run_id", runID)
	return nil
}

// WaitForRun blocks until the run reaches a terminal state or the context
// expires, and returns the final snapshot.
func (o *Orchestrator) WaitForRun(ctx context.Context, runID string) (model.TestRun, error) {
	o.mu.RLock()
	rs, ok := o.runs[runID]
	o.mu.RUnlock()
	if !ok {
		return model.TestRun{}, fmt.Errorf("%w: %s", model.ErrUnknownRun, runID)
	}
	select {
	case <-rs.done:
		return o.GetRun(runID)
	case <-ctx.Done():
		return model.TestRun{}, ctx.Err()
	}
}
