package inspect

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// changeEvent is sent to stream clients for every accepted write.
type changeEvent struct {
	Key      string `json:"key"`
	Value    any    `json:"value"`
	OldValue any    `json:"oldValue"`
}

// sendBuffer is the per-client event buffer. Events beyond it are dropped
// rather than blocking the writer.
const sendBuffer = 64

// streamClient is one connected stream consumer. All writes to conn go
// through send, drained by a single writer goroutine, since the websocket
// connection permits only one concurrent writer.
type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

// writePump drains send onto the connection. It is the only goroutine
// that writes to conn.
func (c *streamClient) writePump() {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			break
		}
	}
	c.conn.Close()
}

// hub manages WebSocket connections for the change stream.
type hub struct {
	clients  map[*streamClient]bool
	mu       sync.RWMutex
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func newHub(log *slog.Logger) *hub {
	return &hub{
		clients: make(map[*streamClient]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // dev tooling, allow all origins
			},
		},
		log: log,
	}
}

// handleWebSocket upgrades the connection and keeps it registered until
// the client disconnects.
func (h *hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &streamClient{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	h.log.Info("stream client connected", "remote", conn.RemoteAddr())

	go client.writePump()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(client)
	h.log.Info("stream client disconnected", "remote", conn.RemoteAddr())
}

// broadcast queues an event for all connected clients. Clients whose
// buffers are full miss the event; the stream is best-effort.
func (h *hub) broadcast(event changeEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		// Non-serializable value; the stream is best-effort.
		h.log.Debug("stream event not serializable", "key", event.Key, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// remove deregisters a client and closes its send channel, ending its
// writer goroutine. Safe to call more than once per client.
func (h *hub) remove(client *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// clientCount returns the number of connected stream clients.
func (h *hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects every stream client.
func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
		client.conn.Close()
	}
}
