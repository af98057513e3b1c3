package server

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ayusman/natyam/internal/pose"
	"github.com/ayusman/natyam/internal/scheduler"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// PoseSocketHandler pushes detection results and status changes to WebSocket
// clients as they happen. Each connection holds its own subscriptions on the
// scheduler's publishers, so a slow client never delays the pipeline or
// another client.
type PoseSocketHandler struct {
	scheduler *scheduler.Scheduler
}

// NewPoseSocketHandler creates a new PoseSocketHandler backed by the given
// scheduler.
func NewPoseSocketHandler(s *scheduler.Scheduler) *PoseSocketHandler {
	return &PoseSocketHandler{scheduler: s}
}

type socketMessage struct {
	Type   string            `json:"type"`
	Result *pose.Result      `json:"result,omitempty"`
	Status *scheduler.Status `json:"status,omitempty"`
}

// ServeHTTP handles WebSocket upgrade requests. The connection stays open
// until the client disconnects; each result and each status change is sent
// as a separate JSON message.
func (h *PoseSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	// Result and status deliveries arrive on separate goroutines; writes to
	// the connection must be serialized.
	var writeMu sync.Mutex
	send := func(msg socketMessage) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(msg); err != nil {
			conn.Close()
		}
	}

	cancelResults := h.scheduler.Results().Subscribe(func(result *pose.Result) {
		send(socketMessage{Type: "result", Result: result})
	})
	defer cancelResults()

	cancelStatus := h.scheduler.StatusUpdates().Subscribe(func(status scheduler.Status) {
		send(socketMessage{Type: "status", Status: &status})
	})
	defer cancelStatus()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
