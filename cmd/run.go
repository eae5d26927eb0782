package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/unamentis/latency-harness/internal/config"
	"github.com/unamentis/latency-harness/internal/model"
	"github.com/unamentis/latency-harness/internal/orchestrator"
)

// Exit codes for CI-style invocations.
const (
	exitOK         = 0 // run completed, no regression
	exitFailure    = 1 // run failed or a regression was detected
	exitRunTimeout = 2 // timed out waiting for run completion
)

func newRunCmd() *cobra.Command {
	var (
		targets     []string
		concurrency int
		jobTimeout  time.Duration
		waitTimeout time.Duration
		mock        bool
		baseline    string
	)

	cmd := &cobra.Command{
		Use:   "run <suite-id>",
		Short: "Run a test suite and wait for the verdict",
		Long: `Execute a test suite against one or more targets, wait for completion,
print the analysis, and exit with a CI-friendly status code:

  0  run completed with all jobs successful and no regression
  1  run failed, had failing jobs, or regressed against the baseline
  2  timed out waiting for the run to complete`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			orch, store, err := setupHarness(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = orch.Stop(ctx)
			}()

			if mock || len(targets) == 0 {
				targets = []string{"mock"}
			}

			runID, err := orch.StartRun(orchestrator.StartRequest{
				SuiteID:     args[0],
				Targets:     targets,
				Concurrency: concurrency,
				JobTimeout:  jobTimeout,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Run started: %s\n", runID)

			waitCtx, cancel := context.WithTimeout(cmd.Context(), waitTimeout)
			defer cancel()
			run, err := orch.WaitForRun(waitCtx, runID)
			if errors.Is(err, context.DeadlineExceeded) {
				slog.Error("timed out waiting for run completion", "run_id", runID, "timeout", waitTimeout)
				_ = orch.CancelRun(runID)
				os.Exit(exitRunTimeout)
			}
			if err != nil {
				return err
			}

			report, err := orch.AnalyzeRun(runID, baseline, cfg.Thresholds)
			if err != nil {
				return err
			}
			printReport(run, report)

			if run.Status != model.RunCompleted || run.Failed > 0 || run.TimedOut > 0 || report.Verdict.HasRegressions {
				os.Exit(exitFailure)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&targets, "target", nil, "Target to test against (repeatable): mock, llm:<url>, or an agent URL")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Max concurrent jobs (default from LATENCY_DEFAULT_CONCURRENCY)")
	cmd.Flags().DurationVar(&jobTimeout, "job-timeout", 0, "Per-job timeout (default from LATENCY_DEFAULT_JOB_TIMEOUT)")
	cmd.Flags().DurationVar(&waitTimeout, "wait-timeout", 30*time.Minute, "How long to wait for run completion")
	cmd.Flags().BoolVar(&mock, "mock", false, "Use the deterministic mock client")
	cmd.Flags().StringVar(&baseline, "baseline", "", "Baseline name or ID to check for regressions")

	return cmd
}

func printReport(run model.TestRun, report *orchestrator.Report) {
	fmt.Printf("\nRun %s: %s\n", run.ID, run.Status)
	fmt.Printf("  jobs: %d dispatched, %d completed, %d failed, %d timed out (success rate %.1f%%)\n",
		run.Dispatched, run.Completed, run.Failed, run.TimedOut, run.SuccessRate())

	s := report.Summary
	fmt.Printf("  e2e latency: median %.0fms  p95 %.0fms  p99 %.0fms  (min %.0f / max %.0f)\n",
		s.E2E.MedianMs, s.E2E.P95Ms, s.E2E.P99Ms, s.E2E.MinMs, s.E2E.MaxMs)
	if s.STT.Count > 0 {
		fmt.Printf("  stages: stt %.0fms  llm-ttft %.0fms  tts-ttfb %.0fms (medians)\n",
			s.STT.MedianMs, s.LLMTTFB.MedianMs, s.TTSTTFB.MedianMs)
	}

	if report.BaselineName != "" {
		fmt.Printf("  baseline %q: regressions=%v\n", report.BaselineName, report.Verdict.HasRegressions)
		for _, d := range report.Verdict.Deltas {
			if !d.Regressed {
				continue
			}
			fmt.Printf("    REGRESSED %s: %.0fms -> %.0fms (%+.1f%%, %s)\n",
				d.Metric, d.BaselineMs, d.CurrentMs, d.ChangePct, d.Severity)
		}
	}

	fmt.Println("\nRecommendations:")
	for _, r := range report.Recommendations {
		fmt.Printf("  - %s\n", r)
	}
}
