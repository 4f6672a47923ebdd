package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/camden-git/framesys/metrics"
	"github.com/camden-git/framesys/models"
	"github.com/gorilla/websocket"
)

// Event types
const (
	EventPipelineStatus = "pipeline_status"
	EventFrameUpdated   = "frame_updated"
	EventFrameDeleted   = "frame_deleted"
	EventProjectUpdated = "project_updated"
	EventNotification   = "notification"
)

// Event represents a message sent to websocket clients
type Event struct {
	Type      string                 `json:"type"`
	Status    *models.PipelineStatus `json:"status,omitempty"`
	Frame     *models.FrameView      `json:"frame,omitempty"`
	FrameID   string                 `json:"frameId,omitempty"`
	Project   *models.Project        `json:"project,omitempty"`
	Level     string                 `json:"level,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

type Client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub is a simple global pubsub for websocket clients
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	stop       chan struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		stop:       make(chan struct{}),
		logger:     logger.With("component", "realtime"),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			metrics.RealtimeClients.Set(float64(len(h.clients)))
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.logger.Warn("dropping slow websocket client")
					h.remove(client)
				}
			}
			h.mu.Unlock()
		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				h.remove(client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// remove is called with h.mu held
func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		metrics.RealtimeClients.Set(float64(len(h.clients)))
	}
}

// Stop disconnects every client and ends Run
func (h *Hub) Stop() {
	close(h.stop)
}

// ClientCount reports the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Broadcast(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	encoded, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal event", "type", event.Type, "error", err)
		return
	}
	select {
	case h.broadcast <- encoded:
	default:
		h.logger.Warn("dropping event, broadcast channel full", "type", event.Type)
	}
}

// PipelineStatus is a pipeline observer
func (h *Hub) PipelineStatus(status models.PipelineStatus) {
	h.Broadcast(Event{Type: EventPipelineStatus, Status: &status})
}

// Notify is a pipeline and job notifier
func (h *Hub) Notify(level, message string) {
	h.Broadcast(Event{Type: EventNotification, Level: level, Message: message})
}

func (h *Hub) FrameChanged(frame *models.Frame) {
	view := models.NewFrameView(frame)
	h.Broadcast(Event{Type: EventFrameUpdated, Frame: &view})
}

func (h *Hub) FrameDeleted(frameID string) {
	h.Broadcast(Event{Type: EventFrameDeleted, FrameID: frameID})
}

func (h *Hub) ProjectChanged(project *models.Project) {
	h.Broadcast(Event{Type: EventProjectUpdated, Project: project})
}

// Upgrader returns the websocket upgrader for the given allowed origins. An
// empty list or "*" accepts any origin.
func Upgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(allowed) == 0 || allowed["*"] || origin == "" || allowed[origin]
		},
	}
}

// Handler upgrades the connection and registers a client
func (h *Hub) Handler(upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade error", "error", err)
			return
		}
		client := &Client{conn: conn, send: make(chan []byte, 256)}
		select {
		case h.register <- client:
		case <-h.stop:
			conn.Close()
			return
		}

		// writer
		go func() {
			for msg := range client.send {
				if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					break
				}
			}
			client.conn.Close()
		}()

		// reader (just consume pings/close)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		select {
		case h.unregister <- client:
		case <-h.stop:
		}
	}
}
