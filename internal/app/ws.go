package app

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 8
)

type streamMessage struct {
	Type   string    `json:"type"`
	Source string    `json:"source"`
	View   BriefView `json:"view"`
}

// Hub fans brief views out to websocket clients. Clients only listen;
// anything they send is discarded.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once

	// ready is false until the initial frame is queued. Broadcasts before
	// that keep only the latest payload in pending.
	ready   bool
	pending []byte
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*wsClient]struct{}),
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends payload to every client. A client whose buffer is full
// is dropped rather than stalling the others.
func (h *Hub) Broadcast(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("encode stream message", "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if !client.ready {
			client.pending = data
			continue
		}
		select {
		case client.send <- data:
		default:
			delete(h.clients, client)
			client.close()
		}
	}
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for client := range h.clients {
		delete(h.clients, client)
		client.close()
	}
}

// ServeWS upgrades the request and registers the client before initial
// is built, so a change landing in between is delivered after it.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, initial func() any) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}
	client := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	data, err := json.Marshal(initial())
	if err != nil {
		slog.Error("encode stream snapshot", "err", err)
		h.remove(client)
		conn.Close()
		return
	}

	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		conn.Close()
		return
	}
	client.send <- data
	if client.pending != nil {
		client.send <- client.pending
		client.pending = nil
	}
	client.ready = true
	h.mu.Unlock()

	go h.writePump(client)
	h.readPump(client)
}

func (h *Hub) remove(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.close()
	}
	h.mu.Unlock()
}

func (h *Hub) readPump(client *wsClient) {
	defer h.remove(client)
	client.conn.SetReadLimit(4096)
	_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read", "err", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(client *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()
	for {
		select {
		case data, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.remove(client)
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(client)
				return
			}
		}
	}
}
