// Package analyzer turns test results into aggregate statistics and
// regression verdicts. Every function is a pure computation over its inputs:
// no I/O, no hidden state, deterministic for the same result set.
package analyzer

import (
	"fmt"
	"math"
	"sort"

	"github.com/unamentis/latency-harness/internal/model"
)

// Stats holds aggregate statistics for one latency metric, in milliseconds.
// A zero Count means no samples were available and all values are zero.
type Stats struct {
	Count    int     `json:"count"`
	MedianMs float64 `json:"medianMs"`
	P95Ms    float64 `json:"p95Ms"`
	P99Ms    float64 `json:"p99Ms"`
	MinMs    float64 `json:"minMs"`
	MaxMs    float64 `json:"maxMs"`
}

// Summary is the aggregate view of a result set.
type Summary struct {
	TotalResults int     `json:"totalResults"`
	Successful   int     `json:"successfulTests"`
	Failed       int     `json:"failedTests"`
	SuccessRate  float64 `json:"successRate"`

	E2E           Stats `json:"e2e"`
	STT           Stats `json:"stt"`
	LLMTTFB       Stats `json:"llmTtfb"`
	LLMCompletion Stats `json:"llmCompletion"`
	TTSTTFB       Stats `json:"ttsTtfb"`
	TTSCompletion Stats `json:"ttsCompletion"`

	// ByConfig holds end-to-end stats per configuration hash.
	ByConfig map[string]Stats `json:"byConfig"`
}

// Summarize computes aggregate statistics over a result set. Latency metrics
// are computed from successful results only; failed results still count
// toward the success rate. An empty result set yields a zero-valued summary.
func Summarize(results []model.TestResult) Summary {
	s := Summary{ByConfig: make(map[string]Stats)}
	s.TotalResults = len(results)

	var e2e, stt, llmTTFB, llmComp, ttsTTFB, ttsComp []float64
	byConfig := make(map[string][]float64)

	for i := range results {
		r := &results[i]
		if !r.Success() {
			s.Failed++
			continue
		}
		s.Successful++
		l := r.Latencies
		e2e = append(e2e, l.E2EMs)
		byConfig[r.ConfigID] = append(byConfig[r.ConfigID], l.E2EMs)
		if l.STTFinalMs > 0 {
			stt = append(stt, l.STTFinalMs)
		}
		if l.LLMTTFBMs > 0 {
			llmTTFB = append(llmTTFB, l.LLMTTFBMs)
		}
		if l.LLMCompletionMs > 0 {
			llmComp = append(llmComp, l.LLMCompletionMs)
		}
		if l.TTSTTFBMs > 0 {
			ttsTTFB = append(ttsTTFB, l.TTSTTFBMs)
		}
		if l.TTSCompletionMs > 0 {
			ttsComp = append(ttsComp, l.TTSCompletionMs)
		}
	}

	if s.TotalResults > 0 {
		s.SuccessRate = float64(s.Successful) / float64(s.TotalResults) * 100
	}

	s.E2E = computeStats(e2e)
	s.STT = computeStats(stt)
	s.LLMTTFB = computeStats(llmTTFB)
	s.LLMCompletion = computeStats(llmComp)
	s.TTSTTFB = computeStats(ttsTTFB)
	s.TTSCompletion = computeStats(ttsComp)
	for cfg, samples := range byConfig {
		s.ByConfig[cfg] = computeStats(samples)
	}
	return s
}

// computeStats aggregates a sample slice. The input is copied before sorting
// so callers keep their ordering.
func computeStats(samples []float64) Stats {
	if len(samples) == 0 {
		return Stats{}
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	return Stats{
		Count:    len(sorted),
		MedianMs: percentile(sorted, 50),
		P95Ms:    percentile(sorted, 95),
		P99Ms:    percentile(sorted, 99),
		MinMs:    sorted[0],
		MaxMs:    sorted[len(sorted)-1],
	}
}

// percentile returns the nearest-rank percentile of a sorted sample:
// the value at rank ceil(p/100 * n). This is deterministic and never
// interpolates between samples.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// BaselineFromSummary freezes a summary into baseline metrics.
func BaselineFromSummary(s Summary) model.BaselineMetrics {
	return model.BaselineMetrics{
		MedianE2EMs:           s.E2E.MedianMs,
		P99E2EMs:              s.E2E.P99Ms,
		MinE2EMs:              s.E2E.MinMs,
		MaxE2EMs:              s.E2E.MaxMs,
		MedianSTTMs:           s.STT.MedianMs,
		MedianLLMTTFBMs:       s.LLMTTFB.MedianMs,
		MedianLLMCompletionMs: s.LLMCompletion.MedianMs,
		MedianTTSTTFBMs:       s.TTSTTFB.MedianMs,
		MedianTTSCompletionMs: s.TTSCompletion.MedianMs,
		SampleCount:           s.Successful,
	}
}

// BuildBaseline computes per-configuration and overall baseline metrics from
// a result set, for freezing into a PerformanceBaseline.
func BuildBaseline(results []model.TestResult) (overall model.BaselineMetrics, perConfig map[string]model.BaselineMetrics) {
	perConfig = make(map[string]model.BaselineMetrics)
	byConfig := make(map[string][]model.TestResult)
	var successful []model.TestResult
	for _, r := range results {
		if !r.Success() {
			continue
		}
		successful = append(successful, r)
		byConfig[r.ConfigID] = append(byConfig[r.ConfigID], r)
	}
	for cfg, rs := range byConfig {
		perConfig[cfg] = BaselineFromSummary(Summarize(rs))
	}
	overall = BaselineFromSummary(Summarize(successful))
	return overall, perConfig
}

// CompareSummaries reports the per-metric change between two summaries as
// percentage deltas on the medians. Metrics absent from either side are
// skipped.
func CompareSummaries(before, after Summary) []MetricDelta {
	var deltas []MetricDelta
	pairs := []struct {
		metric string
		b, a   Stats
	}{
		{MetricE2E, before.E2E, after.E2E},
		{MetricSTT, before.STT, after.STT},
		{MetricLLMTTFB, before.LLMTTFB, after.LLMTTFB},
		{MetricLLMCompletion, before.LLMCompletion, after.LLMCompletion},
		{MetricTTSTTFB, before.TTSTTFB, after.TTSTTFB},
		{MetricTTSCompletion, before.TTSCompletion, after.TTSCompletion},
	}
	for _, p := range pairs {
		if p.b.Count == 0 || p.a.Count == 0 {
			continue
		}
		d := MetricDelta{
			Metric:     p.metric,
			BaselineMs: p.b.MedianMs,
			CurrentMs:  p.a.MedianMs,
			DeltaMs:    p.a.MedianMs - p.b.MedianMs,
		}
		if p.b.MedianMs > 0 {
			d.ChangePct = (p.a.MedianMs - p.b.MedianMs) / p.b.MedianMs * 100
		}
		d.Severity = severityFor(d.ChangePct)
		deltas = append(deltas, d)
	}
	return deltas
}

// Recommend produces human-readable guidance from a summary and a regression
// verdict. It is advisory only and never fails.
func Recommend(s Summary, verdict Verdict) []string {
	var recs []string

	if s.TotalResults == 0 {
		return []string{"no results to analyze; run a test suite first"}
	}
	if s.SuccessRate < 100 {
		recs = append(recs, fmt.Sprintf("success rate is %.1f%% (%d of %d tests failed); inspect failed results before trusting latency aggregates",
			s.SuccessRate, s.Failed, s.TotalResults))
	}
	if stage, median := slowestStage(s); stage != "" {
		recs = append(recs, fmt.Sprintf("%s is the slowest pipeline stage (median %.0fms); it is the best optimization target", stage, median))
	}
	for _, d := range verdict.Deltas {
		if !d.Regressed {
			continue
		}
		scope := "overall"
		if d.ConfigID != "" {
			scope = "config " + d.ConfigID
		}
		recs = append(recs, fmt.Sprintf("%s %s regressed %.0f%% vs baseline (%.0fms -> %.0fms, %s); investigate recent provider or network changes",
			scope, d.Metric, d.ChangePct, d.BaselineMs, d.CurrentMs, d.Severity))
	}
	if len(recs) == 0 {
		recs = append(recs, "all tests passed with no regressions against the baseline")
	}
	return recs
}

func slowestStage(s Summary) (string, float64) {
	stages := []struct {
		name   string
		median float64
	}{
		{"STT", s.STT.MedianMs},
		{"LLM time-to-first-token", s.LLMTTFB.MedianMs},
		{"TTS time-to-first-byte", s.TTSTTFB.MedianMs},
	}
	var name string
	var worst float64
	for _, st := range stages {
		if st.median > worst {
			name, worst = st.name, st.median
		}
	}
	return name, worst
}
