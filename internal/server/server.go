// Package server exposes the harness control surface: REST endpoints for
// suites, runs, analysis and baselines, plus a WebSocket stream of live
// updates.
package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unamentis/latency-harness/internal/analyzer"
	"github.com/unamentis/latency-harness/internal/config"
	"github.com/unamentis/latency-harness/internal/model"
	"github.com/unamentis/latency-harness/internal/orchestrator"
	"github.com/unamentis/latency-harness/internal/storage"
)

// Server wires the orchestrator, storage and live-update hub behind HTTP.
type Server struct {
	orch    *orchestrator.Orchestrator
	store   storage.Store
	cfg     config.Config
	hub     *Hub
	clients *clientRegistry
}

// New creates a server and connects the orchestrator's callbacks to the
// WebSocket hub. The callbacks run on the orchestrator's consumer side, so
// broadcast work never touches the measurement path.
func New(orch *orchestrator.Orchestrator, store storage.Store, cfg config.Config) *Server {
	s := &Server{orch: orch, store: store, cfg: cfg, hub: NewHub(), clients: newClientRegistry()}

	orch.OnProgress = func(runID string, finished, total int) {
		pct := 0.0
		if total > 0 {
			pct = float64(finished) / float64(total) * 100
		}
		s.hub.Broadcast(EventTestProgress, gin.H{
			"runId":           runID,
			"finishedJobs":    finished,
			"totalJobs":       total,
			"progressPercent": pct,
		})
	}
	orch.OnResult = func(runID string, result model.TestResult) {
		s.hub.Broadcast(EventTestResult, gin.H{"runId": runID, "result": result})
	}
	orch.OnRunComplete = func(run model.TestRun) {
		s.hub.Broadcast(EventRunComplete, gin.H{
			"runId":       run.ID,
			"status":      run.Status,
			"dispatched":  run.Dispatched,
			"completed":   run.Completed,
			"failed":      run.Failed,
			"timedOut":    run.TimedOut,
			"successRate": run.SuccessRate(),
		})
	}
	return s
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/latency-tests")
	{
		api.GET("/suites", s.listSuites)
		api.GET("/suites/:suiteId", s.getSuite)
		api.POST("/suites", s.registerSuite)
		api.DELETE("/suites/:suiteId", s.deleteSuite)

		api.POST("/runs", s.startRun)
		api.GET("/runs", s.listRuns)
		api.GET("/runs/:runId", s.getRun)
		api.GET("/runs/:runId/results", s.getRunResults)
		api.DELETE("/runs/:runId", s.cancelRun)
		api.GET("/runs/:runId/analysis", s.getAnalysis)
		api.GET("/runs/:runId/export", s.exportResults)
		api.POST("/compare", s.compareRuns)

		api.GET("/clients", s.listClients)
		api.POST("/heartbeat", s.clientHeartbeat)
		api.POST("/results", s.submitResult)

		api.GET("/baselines", s.listBaselines)
		api.POST("/baselines", s.createBaseline)
		api.GET("/baselines/:baselineId/check", s.checkBaseline)

		api.GET("/ws", s.handleWebSocket)
	}
	return router
}

// ListenAndServe runs the HTTP server on the configured address.
func (s *Server) ListenAndServe() error {
	slog.Info("harness API listening", "addr", s.cfg.ListenAddr)
	return s.Router().Run(s.cfg.ListenAddr)
}

// Thresholds returns the configured regression thresholds.
func (s *Server) Thresholds() analyzer.Thresholds {
	return s.cfg.Thresholds
}

// apiError maps domain errors to HTTP status codes.
func apiError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrUnknownSuite),
		errors.Is(err, model.ErrUnknownRun),
		errors.Is(err, model.ErrBaselineNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInvalidSuiteDefinition),
		errors.Is(err, model.ErrRunNotCompleted):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
