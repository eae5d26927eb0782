package orchestrator

import (
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/unamentis/latency-harness/internal/model"
)

// storageMaxRetries bounds the background writer's retry attempts per item.
// After that the item is logged and dropped; results are never re-queued
// indefinitely against a persistently failing store.
const storageMaxRetries = 4

// consume is the serialized side of the result pipeline: it owns counter
// updates, persistence and broadcast for every result the dispatch side
// enqueues.
func (o *Orchestrator) consume() {
	defer o.wg.Done()
	for {
		select {
		case result := <-o.queue:
			o.processResult(result)
		case <-o.baseCtx.Done():
			// Drain whatever is already queued, then exit.
			for {
				select {
				case result := <-o.queue:
					o.processResult(result)
				default:
					return
				}
			}
		}
	}
}

func (o *Orchestrator) processResult(result model.TestResult) {
	o.mu.Lock()
	rs, ok := o.runs[result.RunID]
	if !ok {
		o.mu.Unlock()
		return
	}
	if rs.seen[result.JobKey()] {
		o.mu.Unlock()
		return
	}
	rs.seen[result.JobKey()] = true
	countOutcome(&rs.run, result.Outcome)
	rs.results = append(rs.results, result)
	finished, total := rs.run.Finished(), rs.run.TotalJobs
	o.mu.Unlock()

	if o.OnResult != nil {
		o.OnResult(result.RunID, result)
	}
	if o.OnProgress != nil {
		o.OnProgress(result.RunID, finished, total)
	}

	o.saveResult(result)
}

func countOutcome(run *model.TestRun, outcome model.ResultOutcome) {
	switch outcome {
	case model.OutcomeSuccess:
		run.Completed++
	case model.OutcomeTimeout:
		run.TimedOut++
	default:
		run.Failed++
	}
}

// saveResult persists one result with bounded exponential backoff.
func (o *Orchestrator) saveResult(result model.TestResult) {
	if o.opts.Store == nil {
		return
	}
	err := retryStorage(func() error { return o.opts.Store.SaveResult(&result) })
	if err != nil {
		storageDrops.Inc()
		slog.Warn("dropping result after repeated storage failures",
			"run_id", result.RunID,
			"job", result.JobKey(),
			"error", err,
		)
	}
}

// saveRunSnapshot upserts the run record with the same bounded retry policy.
func (o *Orchestrator) saveRunSnapshot(run model.TestRun) {
	if o.opts.Store == nil {
		return
	}
	err := retryStorage(func() error { return o.opts.Store.SaveRun(&run) })
	if err != nil {
		storageDrops.Inc()
		slog.Warn("failed to persist run record", "run_id", run.ID, "error", err)
	}
}

func retryStorage(op func() error) error {
	attempt := 0
	wrapped := func() error {
		err := op()
		if err != nil {
			attempt++
			storageRetries.Inc()
			slog.Debug("storage write failed, retrying", "attempt", attempt, "error", err)
		}
		return err
	}
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 100 * time.Millisecond
	expo.MaxInterval = 5 * time.Second
	return backoff.Retry(wrapped, backoff.WithMaxRetries(expo, storageMaxRetries))
}
