package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Event is the envelope for every live-update message.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Live-update message types pushed to subscribers.
const (
	EventConnectionEstablished = "connection_established"
	EventTestProgress          = "test_progress"
	EventTestResult            = "test_result"
	EventRunComplete           = "run_complete"
	EventSubscribed            = "subscribed"
	EventPong                  = "pong"
	EventStatus                = "status"
	EventError                 = "error"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// wsConn is one subscriber. Outbound events flow through a buffered send
// channel; a slow consumer's events are dropped rather than blocking the
// broadcast path.
type wsConn struct {
	ws   *websocket.Conn
	send chan Event
}

// Hub fans live-update events out to connected WebSocket clients.
// Delivery is best-effort: overloaded connections lose events.
type Hub struct {
	mu    sync.Mutex
	conns map[*wsConn]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[*wsConn]bool)}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Broadcast sends an event to every subscriber without blocking.
func (h *Hub) Broadcast(eventType string, data any) {
	event := Event{Type: eventType, Data: data, Timestamp: time.Now()}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		select {
		case c.send <- event:
		default:
			slog.Warn("websocket subscriber too slow, dropping event", "type", eventType)
		}
	}
}

func (h *Hub) add(c *wsConn) {
	h.mu.Lock()
	h.conns[c] = true
	n := len(h.conns)
	h.mu.Unlock()
	slog.Info("websocket client connected", "total", n)
}

func (h *Hub) remove(c *wsConn) {
	h.mu.Lock()
	delete(h.conns, c)
	n := len(h.conns)
	h.mu.Unlock()
	close(c.send)
	slog.Info("websocket client disconnected", "remaining", n)
}

// handleWebSocket upgrades the request and services the subscriber until it
// disconnects.
func (s *Server) handleWebSocket(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	conn := &wsConn{ws: ws, send: make(chan Event, 64)}
	s.hub.add(conn)
	defer s.hub.remove(conn)

	// Writer: single goroutine owns all writes to this connection.
	go func() {
		for event := range conn.send {
			if err := ws.WriteJSON(event); err != nil {
				return
			}
		}
	}()

	conn.send <- Event{
		Type: EventConnectionEstablished,
		Data: gin.H{
			"activeRuns":       len(s.orch.ListRuns("", 0)),
			"connectedClients": s.hub.ClientCount(),
		},
		Timestamp: time.Now(),
	}

	for {
		var msg struct {
			Type  string `json:"type"`
			RunID string `json:"runId,omitempty"`
		}
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "subscribe_run":
			// All connections currently receive all updates; the ack lets
			// clients treat subscription as confirmed.
			conn.send <- Event{Type: EventSubscribed, Data: gin.H{"runId": msg.RunID}, Timestamp: time.Now()}
		case "ping":
			conn.send <- Event{Type: EventPong, Timestamp: time.Now()}
		case "get_status":
			conn.send <- Event{
				Type: EventStatus,
				Data: gin.H{
					"activeRuns":       len(s.orch.ListRuns("running", 0)),
					"connectedClients": s.hub.ClientCount(),
				},
				Timestamp: time.Now(),
			}
		default:
			conn.send <- Event{Type: EventError, Data: gin.H{"message": "unknown message type"}, Timestamp: time.Now()}
		}
	}
}
