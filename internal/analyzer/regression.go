package analyzer

import "github.com/unamentis/latency-harness/internal/model"

// Metric names used in regression verdicts and exports.
const (
	MetricE2E           = "e2e_median_ms"
	MetricE2EP99        = "e2e_p99_ms"
	MetricSTT           = "stt_median_ms"
	MetricLLMTTFB       = "llm_ttfb_median_ms"
	MetricLLMCompletion = "llm_completion_median_ms"
	MetricTTSTTFB       = "tts_ttfb_median_ms"
	MetricTTSCompletion = "tts_completion_median_ms"
)

// Severity classifies how bad a regression is, following the ladder used in
// operator reports: minor above 10%, moderate above 20%, severe above 50%.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

func severityFor(changePct float64) Severity {
	switch {
	case changePct > 50:
		return SeveritySevere
	case changePct > 20:
		return SeverityModerate
	case changePct > 10:
		return SeverityMinor
	default:
		return SeverityNone
	}
}

// Thresholds configures regression detection. A metric regresses when its
// relative increase strictly exceeds RelativePct, or when its absolute
// increase strictly exceeds AbsoluteCapMs. A value exactly at a threshold is
// not a regression.
type Thresholds struct {
	RelativePct   float64 `json:"relativePct"`
	AbsoluteCapMs float64 `json:"absoluteCapMs"`
}

// DefaultThresholds are the documented defaults: +20% relative on medians,
// 250ms absolute cap on the end-to-end median.
func DefaultThresholds() Thresholds {
	return Thresholds{RelativePct: 20, AbsoluteCapMs: 250}
}

// MetricDelta describes how one metric moved against the baseline.
// ConfigID is empty for run-wide metrics.
type MetricDelta struct {
	Metric     string   `json:"metric"`
	ConfigID   string   `json:"configId,omitempty"`
	BaselineMs float64  `json:"baselineValue"`
	CurrentMs  float64  `json:"currentValue"`
	DeltaMs    float64  `json:"deltaMs"`
	ChangePct  float64  `json:"changePercent"`
	Regressed  bool     `json:"regressed"`
	Severity   Severity `json:"severity"`
}

// Verdict is the structured outcome of regression detection.
type Verdict struct {
	HasRegressions bool          `json:"hasRegressions"`
	Deltas         []MetricDelta `json:"perMetricDelta"`
}

// DetectRegression compares a summary against a frozen baseline. It checks
// the run-wide medians for every pipeline stage plus P99 end-to-end, and the
// per-configuration end-to-end medians where the baseline has matching
// configurations. Increasing a current value while holding the baseline fixed
// can only add regressions, never remove them.
func DetectRegression(current Summary, baseline *model.PerformanceBaseline, thresholds Thresholds) Verdict {
	var v Verdict
	if baseline == nil || current.Successful == 0 {
		return v
	}

	overall := []struct {
		metric   string
		baseline float64
		current  float64
	}{
		{MetricE2E, baseline.Overall.MedianE2EMs, current.E2E.MedianMs},
		{MetricE2EP99, baseline.Overall.P99E2EMs, current.E2E.P99Ms},
		{MetricSTT, baseline.Overall.MedianSTTMs, current.STT.MedianMs},
		{MetricLLMTTFB, baseline.Overall.MedianLLMTTFBMs, current.LLMTTFB.MedianMs},
		{MetricLLMCompletion, baseline.Overall.MedianLLMCompletionMs, current.LLMCompletion.MedianMs},
		{MetricTTSTTFB, baseline.Overall.MedianTTSTTFBMs, current.TTSTTFB.MedianMs},
		{MetricTTSCompletion, baseline.Overall.MedianTTSCompletionMs, current.TTSCompletion.MedianMs},
	}
	for _, m := range overall {
		if m.baseline <= 0 || m.current <= 0 {
			continue
		}
		v.add(compareMetric(m.metric, "", m.baseline, m.current, thresholds))
	}

	for configID, bm := range baseline.ConfigMetrics {
		cs, ok := current.ByConfig[configID]
		if !ok || cs.Count == 0 || bm.MedianE2EMs <= 0 {
			continue
		}
		v.add(compareMetric(MetricE2E, configID, bm.MedianE2EMs, cs.MedianMs, thresholds))
	}
	return v
}

func (v *Verdict) add(d MetricDelta) {
	v.Deltas = append(v.Deltas, d)
	if d.Regressed {
		v.HasRegressions = true
	}
}

func compareMetric(metric, configID string, baselineMs, currentMs float64, t Thresholds) MetricDelta {
	d := MetricDelta{
		Metric:     metric,
		ConfigID:   configID,
		BaselineMs: baselineMs,
		CurrentMs:  currentMs,
		DeltaMs:    currentMs - baselineMs,
		ChangePct:  (currentMs - baselineMs) / baselineMs * 100,
	}
	// Strict greater-than on both bounds: a metric exactly at the threshold
	// is not a regression.
	if t.RelativePct > 0 && d.ChangePct > t.RelativePct {
		d.Regressed = true
	}
	if t.AbsoluteCapMs > 0 && d.DeltaMs > t.AbsoluteCapMs {
		d.Regressed = true
	}
	if d.Regressed {
		d.Severity = severityFor(d.ChangePct)
		if d.Severity == SeverityNone {
			d.Severity = SeverityMinor
		}
	} else {
		d.Severity = SeverityNone
	}
	return d
}
