package model

import (
	"errors"
	"time"
)

// ErrBaselineNotFound is returned when a named baseline does not exist.
var ErrBaselineNotFound = errors.New("baseline not found")

// ErrRunNotCompleted is returned when a baseline is requested from a run that
// has not reached the completed state.
var ErrRunNotCompleted = errors.New("run is not completed")

// BaselineMetrics is a frozen aggregate snapshot for one configuration
// (or for a whole run), in milliseconds.
type BaselineMetrics struct {
	MedianE2EMs           float64 `json:"medianE2eMs"`
	P99E2EMs              float64 `json:"p99E2eMs"`
	MinE2EMs              float64 `json:"minE2eMs"`
	MaxE2EMs              float64 `json:"maxE2eMs"`
	MedianSTTMs           float64 `json:"medianSttMs,omitempty"`
	MedianLLMTTFBMs       float64 `json:"medianLlmTtfbMs,omitempty"`
	MedianLLMCompletionMs float64 `json:"medianLlmCompletionMs,omitempty"`
	MedianTTSTTFBMs       float64 `json:"medianTtsTtfbMs,omitempty"`
	MedianTTSCompletionMs float64 `json:"medianTtsCompletionMs,omitempty"`
	SampleCount           int     `json:"sampleCount"`
}

// PerformanceBaseline is a named, frozen snapshot of a run's aggregate
// statistics, used as a regression reference. Baselines are created explicitly
// by an operator action, never implicitly.
type PerformanceBaseline struct {
	ID            string                     `json:"id"`
	Name          string                     `json:"name"`
	Description   string                     `json:"description,omitempty"`
	RunID         string                     `json:"runId"`
	CreatedAt     time.Time                  `json:"createdAt"`
	Active        bool                       `json:"isActive"`
	ConfigMetrics map[string]BaselineMetrics `json:"configMetrics"`
	Overall       BaselineMetrics            `json:"overallMetrics"`
}
