package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/archestra-ai/gateway/internal/gwlog"
)

var wsLog = gwlog.For("websocket")

// broadcastBufferSize bounds each client's outgoing send buffer per §4.10.
const broadcastBufferSize = 100

const (
	wsPingInterval = 30 * time.Second
	wsReadDeadline = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// BroadcastMessage is the canonical tagged union every WebSocket client
// receives: chat-title-updated and oauth-success/oauth-error all ride this
// one shape, discriminated by Type.
type BroadcastMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// WSHub fans a single stream of BroadcastMessage values out to every
// connected client, dropping clients whose send buffer is full rather than
// blocking the broadcaster on a slow reader.
type WSHub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewWSHub builds an empty hub.
func NewWSHub() *WSHub {
	return &WSHub{clients: make(map[*wsClient]struct{})}
}

// Broadcast implements domain.Broadcaster: it queues message on every
// client's send buffer (each client serializes it with its own WriteJSON),
// removing any sink whose send buffer is saturated.
func (h *WSHub) Broadcast(message any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- message:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *WSHub) add(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *WSHub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

type wsClient struct {
	conn *websocket.Conn
	send chan any
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		wsLog.Error("upgrade failed: %v", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan any, broadcastBufferSize)}
	s.hub.add(client)

	go client.writePump()
	go client.readPump(s.hub)
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only exists to detect client disconnects and keep the pong
// handler alive; the gateway never accepts client-sent WebSocket frames.
func (c *wsClient) readPump(hub *WSHub) {
	defer func() {
		hub.remove(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
