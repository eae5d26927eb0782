package client

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/unamentis/latency-harness/internal/model"
)

// Stage base latencies in milliseconds for known providers. Unknown providers
// fall back to the "default" entry.
var mockBaseLatencies = map[string]float64{
	"deepgram":   180,
	"assemblyai": 220,
	"openai":     350,
	"anthropic":  400,
	"elevenlabs": 150,
	"cartesia":   120,
	"default":    250,
}

// MockOptions configures the deterministic mock client.
type MockOptions struct {
	// Seed perturbs the per-job jitter. The same seed and job always produce
	// the same measurement, independent of execution order.
	Seed int64
	// ErrorEvery injects a client error on every Nth repetition when > 0.
	ErrorEvery int
	// Delay, when set, makes Execute sleep for the simulated end-to-end
	// duration scaled by this factor (1.0 = real time). Zero returns
	// immediately, which keeps unit tests fast.
	Delay float64
}

// MockClient simulates pipeline execution with deterministic latencies.
// Jitter is derived from a hash of the job identity and the seed, so repeated
// runs of the same suite produce identical result sets.
type MockClient struct {
	opts MockOptions
}

// NewMockClient creates a deterministic simulated client.
func NewMockClient(opts MockOptions) *MockClient {
	return &MockClient{opts: opts}
}

func (c *MockClient) Name() string {
	if c.opts.Seed != 0 {
		return fmt.Sprintf("mock:%d", c.opts.Seed)
	}
	return "mock"
}

func (c *MockClient) Execute(ctx context.Context, job model.TestJob) (Measurement, error) {
	if c.opts.ErrorEvery > 0 && (job.Repetition+1)%c.opts.ErrorEvery == 0 {
		return Measurement{}, fmt.Errorf("injected provider error for %s", job.Key())
	}

	rng := rand.New(rand.NewSource(c.jobSeed(job)))

	jitter := func(base float64) float64 {
		// +/-15% deterministic jitter around the base.
		return base * (0.85 + rng.Float64()*0.30)
	}

	net := job.Config.Network.AddedLatencyMs
	stt := jitter(baseFor(job.Config.STT.Provider)) + net
	llmTTFB := jitter(baseFor(job.Config.LLM.Provider)) + net
	llmComp := llmTTFB + jitter(300)
	ttsTTFB := jitter(baseFor(job.Config.TTS.Provider)) + net
	ttsComp := ttsTTFB + jitter(200)
	e2e := stt + llmTTFB + ttsTTFB

	if c.opts.Delay > 0 {
		select {
		case <-time.After(time.Duration(e2e * c.opts.Delay * float64(time.Millisecond))):
		case <-ctx.Done():
			return Measurement{}, ctx.Err()
		}
	}

	return Measurement{
		Latencies: model.StageLatencies{
			STTFirstByteMs:  stt * 0.6,
			STTFinalMs:      stt,
			LLMTTFBMs:       llmTTFB,
			LLMCompletionMs: llmComp,
			TTSTTFBMs:       ttsTTFB,
			TTSCompletionMs: ttsComp,
			E2EMs:           e2e,
		},
		CostUSD: 0.0004 * float64(len(job.Scenario.InputText)),
	}, nil
}

func (c *MockClient) jobSeed(job model.TestJob) int64 {
	h := fnv.New64a()
	h.Write([]byte(job.Key()))
	return int64(h.Sum64()) ^ c.opts.Seed
}

func baseFor(provider string) float64 {
	if ms, ok := mockBaseLatencies[provider]; ok {
		return ms
	}
	return mockBaseLatencies["default"]
}
