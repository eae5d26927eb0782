package server

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/unamentis/latency-harness/internal/model"
)

// heartbeatTTL is how long after its last heartbeat a remote test client is
// still reported as connected.
const heartbeatTTL = 60 * time.Second

// ClientCapabilities describes what a remote test client can execute.
type ClientCapabilities struct {
	SupportedSTTProviders []string `json:"supportedSTTProviders,omitempty"`
	SupportedLLMProviders []string `json:"supportedLLMProviders,omitempty"`
	SupportedTTSProviders []string `json:"supportedTTSProviders,omitempty"`
	MaxConcurrentTests    int      `json:"maxConcurrentTests,omitempty"`
}

// remoteClient is one registered test client (e.g. a device agent) that
// reports liveness via heartbeats and may push measured results.
type remoteClient struct {
	ID            string
	Type          string
	Capabilities  ClientCapabilities
	LastHeartbeat time.Time
}

// clientRegistry tracks remote test clients by heartbeat. Registration is
// implicit: the first heartbeat creates the entry.
type clientRegistry struct {
	mu      sync.Mutex
	clients map[string]*remoteClient
}

func newClientRegistry() *clientRegistry {
	return &clientRegistry{clients: make(map[string]*remoteClient)}
}

func (r *clientRegistry) heartbeat(id, clientType string, caps ClientCapabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		c = &remoteClient{ID: id}
		r.clients[id] = c
	}
	c.Type = clientType
	c.Capabilities = caps
	c.LastHeartbeat = time.Now()
}

func (r *clientRegistry) list() []remoteClient {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]remoteClient, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type heartbeatRequest struct {
	ClientID     string             `json:"clientId" binding:"required"`
	ClientType   string             `json:"clientType" binding:"required"`
	Capabilities ClientCapabilities `json:"capabilities"`
}

func (s *Server) clientHeartbeat(c *gin.Context) {
	var req heartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "clientId and clientType are required"})
		return
	}
	s.clients.heartbeat(req.ClientID, req.ClientType, req.Capabilities)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listClients(c *gin.Context) {
	clients := s.clients.list()
	out := make([]gin.H, 0, len(clients))
	for _, cl := range clients {
		out = append(out, gin.H{
			"clientId":      cl.ID,
			"clientType":    cl.Type,
			"isConnected":   time.Since(cl.LastHeartbeat) < heartbeatTTL,
			"lastHeartbeat": cl.LastHeartbeat,
			"capabilities":  cl.Capabilities,
		})
	}
	c.JSON(http.StatusOK, gin.H{"clients": out})
}

type submitResultRequest struct {
	ClientID string           `json:"clientId" binding:"required"`
	Result   model.TestResult `json:"result" binding:"required"`
}

// submitResult accepts a measured result pushed by a remote test client for
// a known run. Persistence is idempotent on the result's job identity, so a
// client retrying a submission never duplicates data.
func (s *Server) submitResult(c *gin.Context) {
	var req submitResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "clientId and result are required"})
		return
	}
	if req.Result.RunID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "result.runId is required"})
		return
	}
	if _, err := s.orch.LookupRun(req.Result.RunID); err != nil {
		apiError(c, err)
		return
	}

	if req.Result.Target == "" {
		req.Result.Target = req.ClientID
	}
	if req.Result.Timestamp.IsZero() {
		req.Result.Timestamp = time.Now()
	}
	if err := s.store.SaveResult(&req.Result); err != nil {
		apiError(c, err)
		return
	}
	s.hub.Broadcast(EventTestResult, gin.H{"runId": req.Result.RunID, "result": req.Result})
	c.JSON(http.StatusOK, gin.H{"status": "received", "jobKey": req.Result.JobKey()})
}
