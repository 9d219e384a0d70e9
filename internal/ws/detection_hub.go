package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vigil/internal/pipeline"
)

// DetectionHub fans detection events out to connected WebSocket
// clients. It subscribes to the session's event bus and pushes instead
// of making dashboards poll.
type DetectionHub struct {
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex
}

// NewDetectionHub creates a new detection hub.
func NewDetectionHub() *DetectionHub {
	return &DetectionHub{
		clients: make(map[*websocket.Conn]bool),
	}
}

// Register adds a connection.
func (h *DetectionHub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
	log.Printf("[WS] Client registered (total: %d)", len(h.clients))
}

// Unregister removes a connection.
func (h *DetectionHub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		log.Printf("[WS] Client unregistered (total: %d)", len(h.clients))
	}
}

// ClientCount returns the number of connected clients.
func (h *DetectionHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OnDetections implements pipeline.EventHandler: it serializes the
// event once and broadcasts it to every client.
func (h *DetectionHub) OnDetections(event *pipeline.DetectionEvent) {
	if h.ClientCount() == 0 {
		return
	}

	data, err := json.Marshal(NewDetectionMessage(event))
	if err != nil {
		log.Printf("[WS] Error marshaling detection message: %v", err)
		return
	}
	h.broadcast(data)
}

func (h *DetectionHub) broadcast(message []byte) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("[WS] Error sending to client: %v", err)
			h.Unregister(conn)
			conn.Close()
		}
	}
}

var _ pipeline.EventHandler = (*DetectionHub)(nil)
