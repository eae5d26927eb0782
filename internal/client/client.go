// Package client defines the interface between the orchestrator and the
// clients that execute test jobs, plus the built-in implementations: a
// deterministic mock, an HTTP client for remote device agents, and a probe
// that measures a live OpenAI-compatible LLM endpoint.
package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/unamentis/latency-harness/internal/model"
)

// Measurement is what a client reports back for one executed job. The
// orchestrator stamps timestamps and outcome classification; the client only
// measures.
type Measurement struct {
	Latencies model.StageLatencies `json:"latencies"`
	CostUSD   float64              `json:"costUsd,omitempty"`
}

// TestClient executes a single test job against a target. Implementations
// must honor context cancellation and deadlines; a deadline overrun is
// classified as a timeout by the caller.
type TestClient interface {
	// Name identifies the target for result attribution.
	Name() string
	// Execute runs one job and returns its measured latencies.
	Execute(ctx context.Context, job model.TestJob) (Measurement, error)
}

// Resolve maps a target string to a client:
//
//	"mock" or "mock:<seed>"  deterministic simulated client
//	"llm:<base-url>"         time-to-first-token probe for an
//	                         OpenAI-compatible endpoint
//	"http://..." (or https)  remote device agent speaking the job protocol
func Resolve(target string) (TestClient, error) {
	switch {
	case target == "mock":
		return NewMockClient(MockOptions{}), nil
	case strings.HasPrefix(target, "mock:"):
		var seed int64
		if _, err := fmt.Sscanf(target, "mock:%d", &seed); err != nil {
			return nil, fmt.Errorf("invalid mock target %q: %w", target, err)
		}
		return NewMockClient(MockOptions{Seed: seed}), nil
	case strings.HasPrefix(target, "llm:"):
		return NewLLMProbe(strings.TrimPrefix(target, "llm:"), ""), nil
	case strings.HasPrefix(target, "http://"), strings.HasPrefix(target, "https://"):
		return NewHTTPClient(target), nil
	default:
		return nil, fmt.Errorf("unknown target %q", target)
	}
}
