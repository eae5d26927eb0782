package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unamentis/latency-harness/internal/model"
)

func TestHTTPClientExecute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/execute", r.URL.Path)

		var job model.TestJob
		require.NoError(t, json.NewDecoder(r.Body).Decode(&job))
		assert.Equal(t, "greeting", job.Scenario.ID)

		json.NewEncoder(w).Encode(Measurement{
			Latencies: model.StageLatencies{LLMTTFBMs: 210, E2EMs: 870},
			CostUSD:   0.002,
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	m, err := c.Execute(context.Background(), mockJob(0))
	require.NoError(t, err)
	assert.Equal(t, 870.0, m.Latencies.E2EMs)
	assert.Equal(t, 0.002, m.CostUSD)
}

func TestHTTPClientAgentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "device busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL).Execute(context.Background(), mockJob(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "device busy")
}

func TestHTTPClientContextCancellation(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		close(blocked)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHTTPClient(srv.URL).Execute(ctx, mockJob(0))
	assert.Error(t, err)
}
