package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scriptoria/weaver/internal/logging"
)

var (
	// GlobalHub is the shared WebSocket hub for broadcasting task progress.
	GlobalHub *Hub

	// GlobalWebSocketRateLimiter is the shared rate limiter for WebSocket messages.
	GlobalWebSocketRateLimiter *WebSocketRateLimiter
)

// ProgressMessage represents a progress update sent via WebSocket for one
// task, mirroring the phase names the orchestrator logs via
// logging.PipelinePhase.
type ProgressMessage struct {
	Type      string                 `json:"type"` // "progress", "complete", "error"
	TaskID    string                 `json:"task_id"`
	Stage     string                 `json:"stage"`
	Progress  int                    `json:"progress"` // 0-100
	Message   string                 `json:"message"`
	Timestamp string                 `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Client represents a WebSocket client connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains active WebSocket connections and broadcasts messages.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's main loop to handle client registration and broadcasting.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logging.WebSocketEvent("client_connected", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			logging.WebSocketEvent("client_disconnected", len(h.clients))

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends a progress message to all connected clients.
func (h *Hub) Broadcast(msg ProgressMessage) {
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error("failed to marshal progress message", "error", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		logging.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastProgress sends a progress update for taskID to all connected clients.
func BroadcastProgress(taskID, stage, message string, progress int) {
	if GlobalHub == nil {
		return
	}
	GlobalHub.Broadcast(ProgressMessage{
		Type:     "progress",
		TaskID:   taskID,
		Stage:    stage,
		Progress: progress,
		Message:  message,
	})
}

// BroadcastComplete sends a completion message for taskID to all connected clients.
func BroadcastComplete(taskID, message string, data map[string]interface{}) {
	if GlobalHub == nil {
		return
	}
	GlobalHub.Broadcast(ProgressMessage{
		Type:     "complete",
		TaskID:   taskID,
		Progress: 100,
		Message:  message,
		Data:     data,
	})
}

// BroadcastError sends an error message for taskID to all connected clients.
func BroadcastError(taskID, message string) {
	if GlobalHub == nil {
		return
	}
	GlobalHub.Broadcast(ProgressMessage{
		Type:    "error",
		TaskID:  taskID,
		Message: message,
	})
}
