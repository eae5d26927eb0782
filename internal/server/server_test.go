package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unamentis/latency-harness/internal/analyzer"
	"github.com/unamentis/latency-harness/internal/config"
	"github.com/unamentis/latency-harness/internal/model"
	"github.com/unamentis/latency-harness/internal/orchestrator"
	"github.com/unamentis/latency-harness/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	server *Server
	orch   *orchestrator.Orchestrator
	store  storage.Store
	router *gin.Engine
}

func newTestServer(t *testing.T) *harness {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	orch := orchestrator.New(orchestrator.Options{
		Store:             store,
		DefaultJobTimeout: 5 * time.Second,
	})
	orch.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		orch.Stop(ctx)
		store.Close()
	})

	cfg := config.Default()
	cfg.Thresholds = analyzer.DefaultThresholds()
	s := New(orch, store, cfg)
	return &harness{server: s, orch: orch, store: store, router: s.Router()}
}

func (h *harness) registerSuite(t *testing.T) {
	t.Helper()
	def := &model.TestSuiteDefinition{
		ID:   "api-test",
		Name: "API Test",
		Scenarios: []model.TestScenario{
			{ID: "greeting", Name: "Greeting", InputType: model.InputText, InputText: "Hello", Repetitions: 2},
		},
		Space: model.ParameterSpace{
			STTConfigs: []model.ProviderConfig{{Provider: "deepgram", Model: "nova-3"}},
			LLMConfigs: []model.ProviderConfig{{Provider: "openai", Model: "gpt-4o-mini"}},
			TTSConfigs: []model.ProviderConfig{{Provider: "elevenlabs", Model: "eleven_turbo_v2_5"}},
		},
	}
	require.NoError(t, h.orch.RegisterSuite(def))
}

// completedRun drives a mock run to completion and returns its ID.
func (h *harness) completedRun(t *testing.T) string {
	t.Helper()
	h.registerSuite(t)
	runID, err := h.orch.StartRun(orchestrator.StartRequest{SuiteID: "api-test", Targets: []string{"mock"}})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	run, err := h.orch.WaitForRun(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, model.RunCompleted, run.Status)
	return runID
}

func (h *harness) request(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t)
	w := h.request(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t)
	w := h.request(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestSuiteEndpoints(t *testing.T) {
	h := newTestServer(t)
	h.registerSuite(t)

	w := h.request(http.MethodGet, "/api/latency-tests/suites", nil)
	require.Equal(t, http.StatusOK, w.Code)
	suites := decodeBody(t, w)["suites"].([]any)
	require.Len(t, suites, 1)
	first := suites[0].(map[string]any)
	assert.Equal(t, "api-test", first["id"])
	assert.Equal(t, float64(2), first["totalTestCount"])

	w = h.request(http.MethodGet, "/api/latency-tests/suites/api-test", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.request(http.MethodGet, "/api/latency-tests/suites/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegisterSuiteEndpoint(t *testing.T) {
	h := newTestServer(t)

	def := gin.H{
		"id":   "posted",
		"name": "Posted Suite",
		"scenarios": []gin.H{
			{"id": "s1", "name": "S1", "inputType": "text", "inputText": "hi", "repetitions": 1},
		},
		"parameterSpace": gin.H{
			"sttConfigs": []gin.H{{"provider": "mock"}},
			"llmConfigs": []gin.H{{"provider": "mock"}},
			"ttsConfigs": []gin.H{{"provider": "mock"}},
		},
	}
	w := h.request(http.MethodPost, "/api/latency-tests/suites", def)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "posted", decodeBody(t, w)["id"])

	// Invalid definitions are rejected with 400.
	w = h.request(http.MethodPost, "/api/latency-tests/suites", gin.H{"id": "empty"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartRunEndpoint(t *testing.T) {
	h := newTestServer(t)
	h.registerSuite(t)

	w := h.request(http.MethodPost, "/api/latency-tests/runs", gin.H{"suiteId": "api-test", "mock": true})
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	runID := body["runId"].(string)
	assert.NotEmpty(t, runID)
	assert.Equal(t, float64(2), body["totalJobs"])

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := h.orch.WaitForRun(ctx, runID)
	require.NoError(t, err)

	w = h.request(http.MethodGet, "/api/latency-tests/runs/"+runID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", decodeBody(t, w)["status"])
}

func TestStartRunValidation(t *testing.T) {
	h := newTestServer(t)

	// Missing required suiteId.
	w := h.request(http.MethodPost, "/api/latency-tests/runs", gin.H{"mock": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown suite.
	w = h.request(http.MethodPost, "/api/latency-tests/runs", gin.H{"suiteId": "missing", "mock": true})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunResultsEndpoint(t *testing.T) {
	h := newTestServer(t)
	runID := h.completedRun(t)

	w := h.request(http.MethodGet, "/api/latency-tests/runs/"+runID+"/results", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, runID, body["runId"])
	assert.Len(t, body["results"].([]any), 2)

	w = h.request(http.MethodGet, "/api/latency-tests/runs/missing/results", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalysisEndpoint(t *testing.T) {
	h := newTestServer(t)
	runID := h.completedRun(t)

	w := h.request(http.MethodGet, "/api/latency-tests/runs/"+runID+"/analysis", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report orchestrator.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, runID, report.RunID)
	assert.Equal(t, 2, report.Summary.TotalResults)
	assert.NotEmpty(t, report.Recommendations)
	assert.Greater(t, report.Summary.E2E.MedianMs, 0.0)
}

func TestExportEndpointCSV(t *testing.T) {
	h := newTestServer(t)
	runID := h.completedRun(t)

	w := h.request(http.MethodGet, "/api/latency-tests/runs/"+runID+"/export?format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), runID)

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 3) // header plus one row per repetition
	assert.True(t, strings.HasPrefix(lines[0], "config_id,scenario_id"))
	assert.Contains(t, lines[1], "greeting")
}

func TestExportEndpointJSONAndBadFormat(t *testing.T) {
	h := newTestServer(t)
	runID := h.completedRun(t)

	w := h.request(http.MethodGet, "/api/latency-tests/runs/"+runID+"/export?format=json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["results"].([]any), 2)

	w = h.request(http.MethodGet, "/api/latency-tests/runs/"+runID+"/export?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBaselineEndpoints(t *testing.T) {
	h := newTestServer(t)
	runID := h.completedRun(t)

	w := h.request(http.MethodPost, "/api/latency-tests/baselines", gin.H{
		"runId":     runID,
		"name":      "golden",
		"setActive": true,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeBody(t, w)
	assert.Equal(t, "golden", created["name"])

	w = h.request(http.MethodGet, "/api/latency-tests/baselines", nil)
	require.Equal(t, http.StatusOK, w.Code)
	baselines := decodeBody(t, w)["baselines"].([]any)
	require.Len(t, baselines, 1)

	w = h.request(http.MethodGet, "/api/latency-tests/baselines/golden/check?runId="+runID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	check := decodeBody(t, w)
	assert.Equal(t, "golden", check["baselineName"])
	assert.Equal(t, false, check["hasRegressions"])

	// Check without a runId is rejected.
	w = h.request(http.MethodGet, "/api/latency-tests/baselines/golden/check", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown baseline maps to 404.
	w = h.request(http.MethodGet, "/api/latency-tests/baselines/missing/check?runId="+runID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCompareEndpoint(t *testing.T) {
	h := newTestServer(t)
	runID := h.completedRun(t)

	secondID, err := h.orch.StartRun(orchestrator.StartRequest{SuiteID: "api-test", Targets: []string{"mock"}})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = h.orch.WaitForRun(ctx, secondID)
	require.NoError(t, err)

	w := h.request(http.MethodPost, "/api/latency-tests/compare", gin.H{
		"run1Id": runID,
		"run2Id": secondID,
	})
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, runID, body["run1Id"])
	assert.NotNil(t, body["deltas"])
}

func TestCancelRunEndpoint(t *testing.T) {
	h := newTestServer(t)
	w := h.request(http.MethodDelete, "/api/latency-tests/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteSuiteEndpoint(t *testing.T) {
	h := newTestServer(t)
	h.registerSuite(t)

	// Built-in suites cannot be removed.
	w := h.request(http.MethodDelete, "/api/latency-tests/suites/quick_validation", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeBody(t, w)["error"], "built-in")

	w = h.request(http.MethodDelete, "/api/latency-tests/suites/api-test", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.request(http.MethodGet, "/api/latency-tests/suites/api-test", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.request(http.MethodDelete, "/api/latency-tests/suites/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClientHeartbeatAndListing(t *testing.T) {
	h := newTestServer(t)

	w := h.request(http.MethodGet, "/api/latency-tests/clients", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody(t, w)["clients"])

	// clientType is mandatory.
	w = h.request(http.MethodPost, "/api/latency-tests/heartbeat", gin.H{"clientId": "ios-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.request(http.MethodPost, "/api/latency-tests/heartbeat", gin.H{
		"clientId":   "ios-1",
		"clientType": "ios",
		"capabilities": gin.H{
			"supportedLLMProviders": []string{"openai"},
			"maxConcurrentTests":    2,
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])

	w = h.request(http.MethodPost, "/api/latency-tests/heartbeat", gin.H{
		"clientId":   "android-1",
		"clientType": "android",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = h.request(http.MethodGet, "/api/latency-tests/clients", nil)
	require.Equal(t, http.StatusOK, w.Code)
	clients := decodeBody(t, w)["clients"].([]any)
	require.Len(t, clients, 2)

	// Sorted by client ID, and a fresh heartbeat counts as connected.
	first := clients[0].(map[string]any)
	assert.Equal(t, "android-1", first["clientId"])
	assert.Equal(t, "android", first["clientType"])
	assert.Equal(t, true, first["isConnected"])

	second := clients[1].(map[string]any)
	assert.Equal(t, "ios-1", second["clientId"])
	caps := second["capabilities"].(map[string]any)
	assert.Equal(t, []any{"openai"}, caps["supportedLLMProviders"])
	assert.Equal(t, float64(2), caps["maxConcurrentTests"])
}

func TestSubmitResultEndpoint(t *testing.T) {
	h := newTestServer(t)
	runID := h.completedRun(t)

	submission := gin.H{
		"clientId": "ios-1",
		"result": gin.H{
			"id":         "remote-1",
			"runId":      runID,
			"configId":   "cfg-remote",
			"scenarioId": "greeting",
			"repetition": 0,
			"outcome":    "success",
			"latencies":  gin.H{"e2eMs": 900},
		},
	}
	w := h.request(http.MethodPost, "/api/latency-tests/results", submission)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "received", body["status"])
	// The submitting client becomes the target when the result names none.
	assert.Equal(t, "ios-1/cfg-remote/greeting/0", body["jobKey"])

	// The mock run's own results land via the background writer; wait for
	// all three to be visible.
	require.Eventually(t, func() bool {
		stored, err := h.store.ListResults(runID, storage.ResultFilter{})
		return err == nil && len(stored) == 3
	}, 5*time.Second, 10*time.Millisecond)

	// Retrying the same submission does not duplicate the result.
	w = h.request(http.MethodPost, "/api/latency-tests/results", submission)
	require.Equal(t, http.StatusOK, w.Code)
	stored, err := h.store.ListResults(runID, storage.ResultFilter{})
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestSubmitResultValidation(t *testing.T) {
	h := newTestServer(t)
	runID := h.completedRun(t)

	// Missing clientId.
	w := h.request(http.MethodPost, "/api/latency-tests/results", gin.H{
		"result": gin.H{"id": "r1", "runId": runID},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Missing run ID on the result.
	w = h.request(http.MethodPost, "/api/latency-tests/results", gin.H{
		"clientId": "ios-1",
		"result":   gin.H{"id": "r1"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown run.
	w = h.request(http.MethodPost, "/api/latency-tests/results", gin.H{
		"clientId": "ios-1",
		"result":   gin.H{"id": "r1", "runId": "missing"},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebSocketLifecycle(t *testing.T) {
	h := newTestServer(t)
	srv := httptest.NewServer(h.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/latency-tests/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	var hello Event
	require.NoError(t, ws.ReadJSON(&hello))
	assert.Equal(t, EventConnectionEstablished, hello.Type)

	require.NoError(t, ws.WriteJSON(gin.H{"type": "ping"}))
	var pong Event
	require.NoError(t, ws.ReadJSON(&pong))
	assert.Equal(t, EventPong, pong.Type)

	require.NoError(t, ws.WriteJSON(gin.H{"type": "subscribe_run", "runId": "run-1"}))
	var sub Event
	require.NoError(t, ws.ReadJSON(&sub))
	assert.Equal(t, EventSubscribed, sub.Type)

	require.NoError(t, ws.WriteJSON(gin.H{"type": "bogus"}))
	var errEvent Event
	require.NoError(t, ws.ReadJSON(&errEvent))
	assert.Equal(t, EventError, errEvent.Type)
}

func TestWebSocketReceivesRunEvents(t *testing.T) {
	h := newTestServer(t)
	srv := httptest.NewServer(h.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/latency-tests/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	var hello Event
	require.NoError(t, ws.ReadJSON(&hello))
	require.Equal(t, EventConnectionEstablished, hello.Type)

	h.registerSuite(t)
	_, err = h.orch.StartRun(orchestrator.StartRequest{SuiteID: "api-test", Targets: []string{"mock"}})
	require.NoError(t, err)

	// Progress, result and completion events all arrive on the stream.
	seen := map[string]bool{}
	ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	for !seen[EventRunComplete] {
		var ev Event
		require.NoError(t, ws.ReadJSON(&ev))
		seen[ev.Type] = true
	}
	assert.True(t, seen[EventTestProgress])
	assert.True(t, seen[EventTestResult])
}
