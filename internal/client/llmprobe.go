package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/unamentis/latency-harness/internal/model"
)

// LLMProbe measures a live OpenAI-compatible endpoint directly, without a
// device agent in between. It drives only the LLM stage: time-to-first-token
// via a streaming completion, plus total completion time. STT and TTS
// latencies are left unset.
type LLMProbe struct {
	baseURL string
	client  *openai.Client
}

// NewLLMProbe creates a probe for the endpoint at baseURL. An empty apiKey
// works for local endpoints that do not check authentication.
func NewLLMProbe(baseURL, apiKey string) *LLMProbe {
	if apiKey == "" {
		apiKey = "not-needed"
	}
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	return &LLMProbe{baseURL: baseURL, client: openai.NewClientWithConfig(config)}
}

func (p *LLMProbe) Name() string { return "llm:" + p.baseURL }

func (p *LLMProbe) Execute(ctx context.Context, job model.TestJob) (Measurement, error) {
	if job.Scenario.InputType != model.InputText {
		return Measurement{}, fmt.Errorf("llm probe supports text scenarios only, got %q", job.Scenario.InputType)
	}

	start := time.Now()
	stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: job.Config.LLM.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: job.Scenario.InputText},
		},
	})
	if err != nil {
		return Measurement{}, fmt.Errorf("stream request failed: %w", err)
	}
	defer stream.Close()

	var ttfb time.Duration
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Measurement{}, fmt.Errorf("stream read failed: %w", err)
		}
		if ttfb == 0 && len(resp.Choices) > 0 && resp.Choices[0].Delta.Content != "" {
			ttfb = time.Since(start)
		}
	}
	total := time.Since(start)
	if ttfb == 0 {
		ttfb = total
	}

	return Measurement{
		Latencies: model.StageLatencies{
			LLMTTFBMs:       float64(ttfb.Microseconds()) / 1000,
			LLMCompletionMs: float64(total.Microseconds()) / 1000,
			E2EMs:           float64(total.Microseconds()) / 1000,
		},
	}, nil
}
