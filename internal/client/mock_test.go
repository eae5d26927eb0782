package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unamentis/latency-harness/internal/model"
)

func mockJob(rep int) model.TestJob {
	cfg := model.TestConfiguration{
		STT:     model.ProviderConfig{Provider: "deepgram", Model: "nova-3"},
		LLM:     model.ProviderConfig{Provider: "openai", Model: "gpt-4o-mini"},
		TTS:     model.ProviderConfig{Provider: "elevenlabs", Model: "eleven_turbo_v2_5"},
		Network: model.NetworkUnconstrained,
	}
	return model.TestJob{
		ConfigID:   cfg.ID(),
		Config:     cfg,
		Scenario:   model.TestScenario{ID: "greeting", InputType: model.InputText, InputText: "Hello", Repetitions: 3},
		Repetition: rep,
	}
}

func TestMockClientDeterministic(t *testing.T) {
	c := NewMockClient(MockOptions{Seed: 42})
	job := mockJob(0)

	first, err := c.Execute(context.Background(), job)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		m, err := c.Execute(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, first, m, "same job and seed must measure identically")
	}

	// A different client with the same seed agrees too.
	other, err := NewMockClient(MockOptions{Seed: 42}).Execute(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, first, other)
}

func TestMockClientVariesByJobAndSeed(t *testing.T) {
	c := NewMockClient(MockOptions{Seed: 1})

	a, err := c.Execute(context.Background(), mockJob(0))
	require.NoError(t, err)
	b, err := c.Execute(context.Background(), mockJob(1))
	require.NoError(t, err)
	assert.NotEqual(t, a.Latencies.E2EMs, b.Latencies.E2EMs)

	reseeded, err := NewMockClient(MockOptions{Seed: 2}).Execute(context.Background(), mockJob(0))
	require.NoError(t, err)
	assert.NotEqual(t, a.Latencies.E2EMs, reseeded.Latencies.E2EMs)
}

func TestMockClientLatencyShape(t *testing.T) {
	m, err := NewMockClient(MockOptions{}).Execute(context.Background(), mockJob(0))
	require.NoError(t, err)

	l := m.Latencies
	assert.Greater(t, l.STTFinalMs, 0.0)
	assert.Greater(t, l.LLMTTFBMs, 0.0)
	assert.Greater(t, l.LLMCompletionMs, l.LLMTTFBMs)
	assert.Greater(t, l.TTSCompletionMs, l.TTSTTFBMs)
	assert.InDelta(t, l.STTFinalMs+l.LLMTTFBMs+l.TTSTTFBMs, l.E2EMs, 0.001)
	assert.Greater(t, m.CostUSD, 0.0)
}

func TestMockClientNetworkProfileAddsLatency(t *testing.T) {
	unconstrained := mockJob(0)

	degraded := mockJob(0)
	degraded.Config.Network = model.Network3G
	degraded.ConfigID = degraded.Config.ID()

	a, err := NewMockClient(MockOptions{}).Execute(context.Background(), unconstrained)
	require.NoError(t, err)
	b, err := NewMockClient(MockOptions{}).Execute(context.Background(), degraded)
	require.NoError(t, err)

	// Three stages each gain the profile's added latency, modulo jitter.
	assert.Greater(t, b.Latencies.E2EMs, a.Latencies.E2EMs)
}

func TestMockClientErrorInjection(t *testing.T) {
	c := NewMockClient(MockOptions{ErrorEvery: 2})

	_, err := c.Execute(context.Background(), mockJob(0))
	assert.NoError(t, err)
	_, err = c.Execute(context.Background(), mockJob(1))
	assert.Error(t, err)
	_, err = c.Execute(context.Background(), mockJob(2))
	assert.NoError(t, err)
}

func TestMockClientHonorsContextWhenDelayed(t *testing.T) {
	c := NewMockClient(MockOptions{Delay: 1.0})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Execute(ctx, mockJob(0))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolve(t *testing.T) {
	tests := []struct {
		target   string
		wantName string
		wantErr  bool
	}{
		{target: "mock", wantName: "mock"},
		{target: "mock:7", wantName: "mock:7"},
		{target: "llm:http://localhost:8000/v1", wantName: "llm:http://localhost:8000/v1"},
		{target: "http://device-agent:9090", wantName: "http://device-agent:9090"},
		{target: "mock:notanumber", wantErr: true},
		{target: "gopher://nope", wantErr: true},
		{target: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			c, err := Resolve(tt.target)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, c.Name())
		})
	}
}
