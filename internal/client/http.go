package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/unamentis/latency-harness/internal/model"
)

// HTTPClient dispatches jobs to a remote device agent (e.g. the mobile test
// client) over its job-execution endpoint. The agent performs the actual
// pipeline calls and reports measured latencies back.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient creates a client for the agent at baseURL. Per-job timeouts
// come from the caller's context, not a client-level timeout.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{baseURL: baseURL, http: &http.Client{}}
}

func (c *HTTPClient) Name() string { return c.baseURL }

func (c *HTTPClient) Execute(ctx context.Context, job model.TestJob) (Measurement, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return Measurement{}, fmt.Errorf("failed to encode job %s: %w", job.Key(), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return Measurement{}, fmt.Errorf("failed to build request for %s: %w", job.Key(), err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Measurement{}, fmt.Errorf("agent request failed for %s: %w", job.Key(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Measurement{}, fmt.Errorf("agent returned %d for %s: %s", resp.StatusCode, job.Key(), string(msg))
	}

	var m Measurement
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return Measurement{}, fmt.Errorf("failed to decode agent response for %s: %w", job.Key(), err)
	}
	return m, nil
}
