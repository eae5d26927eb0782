package analyzer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unamentis/latency-harness/internal/model"
)

func successResult(configID string, e2eMs float64) model.TestResult {
	return model.TestResult{
		ConfigID: configID,
		Outcome:  model.OutcomeSuccess,
		Latencies: model.StageLatencies{
			STTFinalMs: e2eMs * 0.3,
			LLMTTFBMs:  e2eMs * 0.4,
			TTSTTFBMs:  e2eMs * 0.2,
			E2EMs:      e2eMs,
		},
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.TotalResults)
	assert.Zero(t, s.SuccessRate)
	assert.Zero(t, s.E2E.Count)
	assert.Zero(t, s.E2E.MedianMs)
}

func TestSummarizeExcludesFailures(t *testing.T) {
	results := []model.TestResult{
		successResult("cfg-a", 100),
		successResult("cfg-a", 200),
		{ConfigID: "cfg-a", Outcome: model.OutcomeTimeout, Latencies: model.StageLatencies{E2EMs: 30000}},
		{ConfigID: "cfg-a", Outcome: model.OutcomeClientError},
	}

	s := Summarize(results)
	assert.Equal(t, 4, s.TotalResults)
	assert.Equal(t, 2, s.Successful)
	assert.Equal(t, 2, s.Failed)
	assert.InDelta(t, 50.0, s.SuccessRate, 0.001)

	// The timed-out 30s sample must not pollute the latency aggregates.
	assert.Equal(t, 2, s.E2E.Count)
	assert.Equal(t, 200.0, s.E2E.MaxMs)
}

func TestSummarizeByConfig(t *testing.T) {
	results := []model.TestResult{
		successResult("cfg-a", 100),
		successResult("cfg-a", 120),
		successResult("cfg-b", 500),
	}

	s := Summarize(results)
	require.Len(t, s.ByConfig, 2)
	assert.Equal(t, 2, s.ByConfig["cfg-a"].Count)
	assert.Equal(t, 500.0, s.ByConfig["cfg-b"].MedianMs)
}

func TestSummarizeDoesNotMutateInput(t *testing.T) {
	results := []model.TestResult{
		successResult("cfg-a", 300),
		successResult("cfg-a", 100),
		successResult("cfg-a", 200),
	}
	Summarize(results)
	assert.Equal(t, 300.0, results[0].Latencies.E2EMs)
	assert.Equal(t, 100.0, results[1].Latencies.E2EMs)
}

func TestPercentileNearestRank(t *testing.T) {
	sorted := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

	tests := []struct {
		p        float64
		expected float64
	}{
		{50, 50},   // ceil(0.5*10)=5 -> 5th value
		{95, 100},  // ceil(0.95*10)=10
		{99, 100},  // ceil(0.99*10)=10
		{100, 100}, // clamped to last
		{1, 10},    // ceil(0.01*10)=1
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("p%g", tt.p), func(t *testing.T) {
			assert.Equal(t, tt.expected, percentile(sorted, tt.p))
		})
	}

	// Single sample: every percentile is that sample.
	assert.Equal(t, 42.0, percentile([]float64{42}, 50))
	assert.Equal(t, 42.0, percentile([]float64{42}, 99))
	assert.Zero(t, percentile(nil, 50))
}

func TestComputeStatsDeterministic(t *testing.T) {
	samples := []float64{5, 1, 4, 2, 3}
	first := computeStats(samples)
	second := computeStats(samples)
	assert.Equal(t, first, second)
	assert.Equal(t, 1.0, first.MinMs)
	assert.Equal(t, 5.0, first.MaxMs)
	assert.Equal(t, 3.0, first.MedianMs)
}

func TestBuildBaseline(t *testing.T) {
	results := []model.TestResult{
		successResult("cfg-a", 100),
		successResult("cfg-a", 200),
		successResult("cfg-b", 400),
		{ConfigID: "cfg-b", Outcome: model.OutcomeClientError},
	}

	overall, perConfig := BuildBaseline(results)
	assert.Equal(t, 3, overall.SampleCount)
	require.Len(t, perConfig, 2)
	assert.Equal(t, 2, perConfig["cfg-a"].SampleCount)
	assert.Equal(t, 400.0, perConfig["cfg-b"].MedianE2EMs)
}

func TestRecommendNeverEmpty(t *testing.T) {
	assert.NotEmpty(t, Recommend(Summary{}, Verdict{}))

	clean := Summarize([]model.TestResult{successResult("cfg-a", 100)})
	recs := Recommend(clean, Verdict{})
	assert.NotEmpty(t, recs)
}

func TestRecommendFlagsFailures(t *testing.T) {
	s := Summarize([]model.TestResult{
		successResult("cfg-a", 100),
		{ConfigID: "cfg-a", Outcome: model.OutcomeClientError},
	})
	recs := Recommend(s, Verdict{})
	require.NotEmpty(t, recs)
	assert.Contains(t, recs[0], "success rate")
}
