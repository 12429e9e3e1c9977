// -----------------------------------------------------------------------
// WebSocket Handler - status topic delivery to dashboard clients
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/penmanapp/penman/internal/status"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the wire envelope in both directions
type WSMessage struct {
	Type    string      `json:"type"`
	Topic   string      `json:"topic,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// WebSocketHandler bridges dashboard connections to the status distributor.
// Each topic has a single distributor subscription fanning out to every
// connection that asked for it. Writes to a connection are serialized by a
// per-connection mutex.
type WebSocketHandler struct {
	distributor *status.Distributor
	logger      arbor.ILogger

	mu          sync.RWMutex
	clients     map[*websocket.Conn]map[string]bool
	clientMutex map[*websocket.Conn]*sync.Mutex
	topicWired  map[string]bool

	// serverInstanceID changes on every startup; clients use it to detect a
	// restart and clear stale state.
	serverInstanceID string
}

// NewWebSocketHandler creates the websocket handler
func NewWebSocketHandler(distributor *status.Distributor, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		distributor:      distributor,
		logger:           logger,
		clients:          make(map[*websocket.Conn]map[string]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		topicWired:       make(map[string]bool),
		serverInstanceID: uuid.New().String(),
	}
	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized")
	return h
}

// HandleWebSocket handles GET /ws - upgrade and per-connection message loop
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = make(map[string]bool)
	h.clientMutex[conn] = &sync.Mutex{}
	h.mu.Unlock()

	h.logger.Debug().Str("remote", r.RemoteAddr).Msg("WebSocket client connected")

	h.writeTo(conn, WSMessage{
		Type:    "hello",
		Payload: map[string]string{"server_instance_id": h.serverInstanceID},
	})

	defer h.dropClient(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug().Err(err).Msg("Ignoring malformed WebSocket message")
			continue
		}
		h.handleMessage(conn, msg)
	}
}

func (h *WebSocketHandler) handleMessage(conn *websocket.Conn, msg WSMessage) {
	switch msg.Type {
	case "subscribe":
		h.subscribe(conn, msg.Topic)
	case "unsubscribe":
		h.unsubscribe(conn, msg.Topic)
	case "visible":
		h.distributor.SetVisible()
	case "hidden":
		h.distributor.SetHidden()
	default:
		h.logger.Debug().Str("type", msg.Type).Msg("Ignoring unknown WebSocket message type")
	}
}

// subscribe adds the connection to a topic, wiring the distributor
// subscription the first time any connection asks for that topic.
func (h *WebSocketHandler) subscribe(conn *websocket.Conn, topic string) {
	if topic == "" {
		return
	}

	h.mu.Lock()
	if topics, ok := h.clients[conn]; ok {
		topics[topic] = true
	}
	needsWiring := !h.topicWired[topic]
	h.topicWired[topic] = true
	h.mu.Unlock()

	if needsWiring {
		if err := h.distributor.Subscribe(topic, h.broadcast); err != nil {
			h.logger.Warn().Err(err).Str("topic", topic).Msg("Failed to subscribe to status topic")
		}
	}
}

func (h *WebSocketHandler) unsubscribe(conn *websocket.Conn, topic string) {
	h.mu.Lock()
	if topics, ok := h.clients[conn]; ok {
		delete(topics, topic)
	}
	h.mu.Unlock()
}

// broadcast fans a topic payload out to every subscribed connection
func (h *WebSocketHandler) broadcast(topic string, payload interface{}) {
	msg := WSMessage{Type: "status", Topic: topic, Payload: payload}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn, topics := range h.clients {
		if topics[topic] {
			conns = append(conns, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		h.writeTo(conn, msg)
	}
}

func (h *WebSocketHandler) writeTo(conn *websocket.Conn, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()
	if mutex == nil {
		return
	}

	mutex.Lock()
	writeErr := conn.WriteMessage(websocket.TextMessage, data)
	mutex.Unlock()

	if writeErr != nil {
		h.logger.Debug().Err(writeErr).Msg("Failed to write to WebSocket client")
	}
}

func (h *WebSocketHandler) dropClient(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	delete(h.clientMutex, conn)
	empty := len(h.clients) == 0
	h.mu.Unlock()

	conn.Close()
	h.logger.Debug().Msg("WebSocket client disconnected")

	if empty {
		h.distributor.UnsubscribeAll()
		h.mu.Lock()
		h.topicWired = make(map[string]bool)
		h.mu.Unlock()
	}
}
