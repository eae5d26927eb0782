package server

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/unamentis/latency-harness/internal/model"
)

// exportResults serializes a run's result set as CSV or JSON.
func (s *Server) exportResults(c *gin.Context) {
	runID := c.Param("runId")
	run, err := s.orch.LookupRun(runID)
	if err != nil {
		apiError(c, err)
		return
	}
	results, err := s.orch.ResultsForRun(runID)
	if err != nil {
		apiError(c, err)
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "csv":
		data, err := ResultsCSV(results)
		if err != nil {
			apiError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=latency_results_%s.csv", runID))
		c.Data(http.StatusOK, "text/csv", data)
	case "json":
		c.JSON(http.StatusOK, gin.H{
			"runId":       runID,
			"suiteName":   run.SuiteName,
			"startedAt":   run.StartedAt,
			"completedAt": run.CompletedAt,
			"results":     results,
		})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be csv or json"})
	}
}

var csvHeader = []string{
	"config_id", "scenario_id", "scenario_name", "repetition", "target", "timestamp",
	"stt_first_byte_ms", "stt_final_ms", "llm_ttfb_ms", "llm_completion_ms",
	"tts_ttfb_ms", "tts_completion_ms", "e2e_ms",
	"outcome", "errors", "cost_usd",
}

// ResultsCSV renders a result set as a CSV document, one row per result.
func ResultsCSV(results []model.TestResult) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for i := range results {
		r := &results[i]
		l := r.Latencies
		row := []string{
			r.ConfigID, r.ScenarioID, r.ScenarioName,
			fmt.Sprintf("%d", r.Repetition), r.Target, r.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
			formatMs(l.STTFirstByteMs), formatMs(l.STTFinalMs),
			formatMs(l.LLMTTFBMs), formatMs(l.LLMCompletionMs),
			formatMs(l.TTSTTFBMs), formatMs(l.TTSCompletionMs), formatMs(l.E2EMs),
			string(r.Outcome), strings.Join(r.Errors, ";"), fmt.Sprintf("%.6f", r.CostUSD),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func formatMs(ms float64) string {
	return fmt.Sprintf("%.2f", ms)
}
