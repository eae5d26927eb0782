package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/unamentis/latency-harness/internal/analyzer"
	"github.com/unamentis/latency-harness/internal/model"
	"github.com/unamentis/latency-harness/internal/orchestrator"
	"github.com/unamentis/latency-harness/internal/suite"
)

func (s *Server) listSuites(c *gin.Context) {
	suites := s.orch.ListSuites()
	out := make([]gin.H, 0, len(suites))
	for _, def := range suites {
		out = append(out, gin.H{
			"id":             def.ID,
			"name":           def.Name,
			"description":    def.Description,
			"scenarioCount":  len(def.Scenarios),
			"totalTestCount": def.TotalTestCount(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"suites": out})
}

func (s *Server) getSuite(c *gin.Context) {
	def, err := s.orch.GetSuite(c.Param("suiteId"))
	if err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

func (s *Server) registerSuite(c *gin.Context) {
	var def model.TestSuiteDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})
		return
	}
	if err := s.orch.RegisterSuite(&def); err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": def.ID, "totalTestCount": def.TotalTestCount()})
}

func (s *Server) deleteSuite(c *gin.Context) {
	suiteID := c.Param("suiteId")
	if suite.IsBuiltin(suiteID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete built-in suite " + suiteID})
		return
	}
	if err := s.orch.UnregisterSuite(suiteID); err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "suite " + suiteID + " deleted"})
}

type startRunRequest struct {
	SuiteID      string   `json:"suiteId" binding:"required"`
	Targets      []string `json:"targets"`
	Concurrency  int      `json:"concurrency"`
	JobTimeoutMs int      `json:"jobTimeoutMs"`
	Mock         bool     `json:"mock"`
}

func (s *Server) startRun(c *gin.Context) {
	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})
		return
	}

	targets := req.Targets
	if req.Mock {
		targets = []string{"mock"}
	}
	runID, err := s.orch.StartRun(orchestrator.StartRequest{
		SuiteID:     req.SuiteID,
		Targets:     targets,
		Concurrency: req.Concurrency,
		JobTimeout:  time.Duration(req.JobTimeoutMs) * time.Millisecond,
	})
	if err != nil {
		apiError(c, err)
		return
	}

	run, _ := s.orch.GetRun(runID)
	c.JSON(http.StatusOK, gin.H{
		"runId":     runID,
		"status":    run.Status,
		"totalJobs": run.TotalJobs,
	})
}

func (s *Server) listRuns(c *gin.Context) {
	status := model.RunStatus(c.Query("status"))
	limit := 50
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	c.JSON(http.StatusOK, gin.H{"runs": s.orch.ListRuns(status, limit)})
}

func (s *Server) getRun(c *gin.Context) {
	run, err := s.orch.LookupRun(c.Param("runId"))
	if err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) getRunResults(c *gin.Context) {
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
	c.JSON(http.StatusOK, gin.H{
		"runId":      runID,
		"status":     run.Status,
		"dispatched": run.Dispatched,
		"totalJobs":  run.TotalJobs,
		"results":    results,
	})
}

func (s *Server) cancelRun(c *gin.Context) {
	runID := c.Param("runId")
	if err := s.orch.CancelRun(runID); err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "run " + runID + " cancelled"})
}

func (s *Server) getAnalysis(c *gin.Context) {
	report, err := s.orch.AnalyzeRun(c.Param("runId"), c.Query("baseline"), s.cfg.Thresholds)
	if err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type compareRequest struct {
	Run1ID string `json:"run1Id" binding:"required"`
	Run2ID string `json:"run2Id" binding:"required"`
}

func (s *Server) compareRuns(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})
		return
	}
	results1, err := s.orch.ResultsForRun(req.Run1ID)
	if err != nil {
		apiError(c, err)
		return
	}
	results2, err := s.orch.ResultsForRun(req.Run2ID)
	if err != nil {
		apiError(c, err)
		return
	}
	s1 := analyzer.Summarize(results1)
	s2 := analyzer.Summarize(results2)
	c.JSON(http.StatusOK, gin.H{
		"run1Id":   req.Run1ID,
		"run2Id":   req.Run2ID,
		"summary1": s1,
		"summary2": s2,
		"deltas":   analyzer.CompareSummaries(s1, s2),
	})
}

func (s *Server) listBaselines(c *gin.Context) {
	baselines, err := s.store.ListBaselines()
	if err != nil {
		apiError(c, err)
		return
	}
	out := make([]gin.H, 0, len(baselines))
	for _, b := range baselines {
		out = append(out, gin.H{
			"id":               b.ID,
			"name":             b.Name,
			"description":      b.Description,
			"runId":            b.RunID,
			"createdAt":        b.CreatedAt,
			"isActive":         b.Active,
			"configCount":      len(b.ConfigMetrics),
			"overallMedianE2e": b.Overall.MedianE2EMs,
		})
	}
	c.JSON(http.StatusOK, gin.H{"baselines": out})
}

type createBaselineRequest struct {
	RunID       string `json:"runId" binding:"required"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SetActive   bool   `json:"setActive"`
}

func (s *Server) createBaseline(c *gin.Context) {
	var req createBaselineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})
		return
	}
	b, err := s.orch.CreateBaseline(req.RunID, req.Name, req.Description, req.SetActive)
	if err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (s *Server) checkBaseline(c *gin.Context) {
	runID := c.Query("runId")
	if runID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "runId query parameter is required"})
		return
	}
	report, err := s.orch.AnalyzeRun(runID, c.Param("baselineId"), s.cfg.Thresholds)
	if err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"baselineName":   report.BaselineName,
		"runId":          runID,
		"checkedAt":      report.GeneratedAt,
		"hasRegressions": report.Verdict.HasRegressions,
		"regressions":    report.Verdict.Deltas,
		"summary":        report.Summary,
		"overall": gin.H{
			"currentMedianMs":  report.Summary.E2E.MedianMs,
			"meetsTarget500ms": report.Summary.E2E.MedianMs < 500,
			"meetsTarget1s":    report.Summary.E2E.MedianMs < 1000,
		},
		"recommendations": report.Recommendations,
	})
}
