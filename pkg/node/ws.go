package node

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsEvent is the envelope broadcast to every connected UI client.
type wsEvent struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// wsHub fans queue lifecycle events out to every connected WebSocket client.
// It subscribes to queue.Manager as a plain function value (broadcast), so
// the queue package never imports net/http or gorilla/websocket itself.
type wsHub struct {
	upgrader    websocket.Upgrader
	mu          sync.RWMutex
	connections map[*websocket.Conn]struct{}
}

func newWSHub() *wsHub {
	return &wsHub{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[*websocket.Conn]struct{}),
	}
}

// Handler upgrades r into a read-only event stream: clients receive
// broadcasts but the hub never interprets anything they send.
func (h *wsHub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.add(conn)
		defer h.remove(conn)
		defer func() { _ = conn.Close() }()

		// Drain and discard anything the client sends, so the read loop
		// notices disconnects; the channel is otherwise one-directional.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
}

func (h *wsHub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[conn] = struct{}{}
}

func (h *wsHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, conn)
}

// broadcast matches queue.Subscriber's signature and sends eventType/data to
// every currently connected client, dropping connections that fail to
// accept the write.
func (h *wsHub) broadcast(eventType string, data map[string]interface{}) {
	event := wsEvent{Type: eventType, Data: data}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.connections))
	for c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(event); err != nil {
			h.remove(conn)
			_ = conn.Close()
		}
	}
}

// ConnectionCount reports how many clients are currently attached.
func (h *wsHub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}
