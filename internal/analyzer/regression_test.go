package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unamentis/latency-harness/internal/model"
)

func baselineWithE2E(medianMs float64) *model.PerformanceBaseline {
	return &model.PerformanceBaseline{
		ID:   "bl-1",
		Name: "reference",
		Overall: model.BaselineMetrics{
			MedianE2EMs: medianMs,
			P99E2EMs:    medianMs * 1.5,
			SampleCount: 10,
		},
		ConfigMetrics: map[string]model.BaselineMetrics{},
	}
}

func summaryWithE2E(medianMs float64) Summary {
	var results []model.TestResult
	for i := 0; i < 5; i++ {
		results = append(results, model.TestResult{
			ConfigID:  "cfg-a",
			Outcome:   model.OutcomeSuccess,
			Latencies: model.StageLatencies{E2EMs: medianMs},
		})
	}
	return Summarize(results)
}

func TestDetectRegressionNilBaseline(t *testing.T) {
	v := DetectRegression(summaryWithE2E(500), nil, DefaultThresholds())
	assert.False(t, v.HasRegressions)
	assert.Empty(t, v.Deltas)
}

func TestDetectRegressionNoSuccessfulResults(t *testing.T) {
	v := DetectRegression(Summary{}, baselineWithE2E(500), DefaultThresholds())
	assert.False(t, v.HasRegressions)
	assert.Empty(t, v.Deltas)
}

func TestDetectRegressionThresholdIsStrict(t *testing.T) {
	tests := []struct {
		name      string
		baseline  float64
		current   float64
		regressed bool
	}{
		{"well below threshold", 1000, 1000, false},
		{"improvement", 1000, 800, false},
		{"exactly at +20%", 1000, 1200, false},
		{"just over +20%", 1000, 1201, true},
		{"exactly at absolute cap", 10000, 10250, false},
		{"just over absolute cap", 10000, 10251, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := DetectRegression(summaryWithE2E(tt.current), baselineWithE2E(tt.baseline), DefaultThresholds())
			var e2e *MetricDelta
			for i := range v.Deltas {
				if v.Deltas[i].Metric == MetricE2E {
					e2e = &v.Deltas[i]
				}
			}
			require.NotNil(t, e2e, "expected an e2e delta")
			assert.Equal(t, tt.regressed, e2e.Regressed)
			assert.Equal(t, tt.regressed, v.HasRegressions)
		})
	}
}

func TestDetectRegressionMonotonic(t *testing.T) {
	baseline := baselineWithE2E(1000)
	thresholds := DefaultThresholds()

	regressedAt := func(current float64) bool {
		return DetectRegression(summaryWithE2E(current), baseline, thresholds).HasRegressions
	}

	// Once a current value regresses, every larger value must too.
	prev := false
	for _, cur := range []float64{900, 1000, 1100, 1200, 1250, 1300, 2000, 5000} {
		got := regressedAt(cur)
		if prev {
			assert.True(t, got, "regression disappeared at %v", cur)
		}
		prev = got
	}
}

func TestDetectRegressionPerConfig(t *testing.T) {
	baseline := baselineWithE2E(1000)
	baseline.ConfigMetrics["cfg-a"] = model.BaselineMetrics{MedianE2EMs: 100, SampleCount: 5}

	// Overall unchanged, but cfg-a doubled.
	results := []model.TestResult{
		{ConfigID: "cfg-a", Outcome: model.OutcomeSuccess, Latencies: model.StageLatencies{E2EMs: 200}},
		{ConfigID: "cfg-b", Outcome: model.OutcomeSuccess, Latencies: model.StageLatencies{E2EMs: 1000}},
	}
	v := DetectRegression(Summarize(results), baseline, DefaultThresholds())
	assert.True(t, v.HasRegressions)

	var found bool
	for _, d := range v.Deltas {
		if d.ConfigID == "cfg-a" {
			found = true
			assert.True(t, d.Regressed)
			assert.Equal(t, SeveritySevere, d.Severity)
		}
	}
	assert.True(t, found, "expected a per-config delta for cfg-a")
}

func TestDetectRegressionSkipsUnknownConfigs(t *testing.T) {
	baseline := baselineWithE2E(1000)
	baseline.ConfigMetrics["cfg-gone"] = model.BaselineMetrics{MedianE2EMs: 100, SampleCount: 5}

	v := DetectRegression(summaryWithE2E(1000), baseline, DefaultThresholds())
	for _, d := range v.Deltas {
		assert.NotEqual(t, "cfg-gone", d.ConfigID)
	}
}

func TestSeverityLadder(t *testing.T) {
	tests := []struct {
		changePct float64
		expected  Severity
	}{
		{5, SeverityNone},
		{10, SeverityNone},
		{10.1, SeverityMinor},
		{20, SeverityMinor},
		{20.1, SeverityModerate},
		{50, SeverityModerate},
		{50.1, SeveritySevere},
		{300, SeveritySevere},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, severityFor(tt.changePct), "changePct=%v", tt.changePct)
	}
}

func TestCompareSummaries(t *testing.T) {
	before := summaryWithE2E(100)
	after := summaryWithE2E(150)

	deltas := CompareSummaries(before, after)
	require.NotEmpty(t, deltas)
	assert.Equal(t, MetricE2E, deltas[0].Metric)
	assert.InDelta(t, 50.0, deltas[0].ChangePct, 0.001)
	assert.Equal(t, SeverityModerate, deltas[0].Severity)
}
