package web

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lcalzada-xor/wsta/internal/core/domain"
)

const (
	writeWait      = 5 * time.Second
	clientBuffer   = 64
	defaultBacklog = 32
)

// WSMessage is the envelope of everything pushed to websocket clients.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// StatusFunc returns the payload of the periodic "status" message.
type StatusFunc func(ctx context.Context) (interface{}, error)

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// WSManager streams MLME events and periodic station status to websocket
// clients. New clients first receive the last Backlog events.
type WSManager struct {
	Status   StatusFunc
	Interval time.Duration
	Backlog  int
	// AllowedOrigins is checked when a browser sends an Origin header.
	AllowedOrigins []string

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	history [][]byte
	events  chan domain.Event
	dropped atomic.Uint64
}

// NewWSManager creates a manager. status may be nil to disable the
// periodic sweep.
func NewWSManager(status StatusFunc) *WSManager {
	return &WSManager{
		Status:   status,
		Interval: 2 * time.Second,
		Backlog:  defaultBacklog,
		AllowedOrigins: []string{
			"http://localhost:8080",
			"http://127.0.0.1:8080",
			"http://[::1]:8080",
		},
		clients: make(map[*wsClient]struct{}),
		events:  make(chan domain.Event, 128),
	}
}

// Start runs the broadcaster until ctx is done.
func (m *WSManager) Start(ctx context.Context) {
	go m.processAndBroadcast(ctx)
}

// Publish queues an event for broadcast without blocking.
func (m *WSManager) Publish(ev domain.Event) {
	select {
	case m.events <- ev:
	default:
		m.dropped.Add(1)
	}
}

// Dropped is the number of events lost to a full queue.
func (m *WSManager) Dropped() uint64 { return m.dropped.Load() }

// ClientCount returns the number of connected clients.
func (m *WSManager) ClientCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

func (m *WSManager) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range m.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	log.Printf("[WEB] Rejected websocket origin: %s", origin)
	return false
}

func (m *WSManager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     m.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("[WEB] Upgrade error:", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, clientBuffer+defaultBacklog)}
	m.mu.Lock()
	for _, data := range m.history {
		select {
		case c.send <- data:
		default:
		}
	}
	m.clients[c] = struct{}{}
	m.mu.Unlock()

	log.Printf("[WEB] WebSocket connected: %s", r.RemoteAddr)
	go m.writePump(c)
	go m.readPump(c, r.RemoteAddr)
}

// readPump discards client input and detects the disconnect.
func (m *WSManager) readPump(c *wsClient, remote string) {
	defer func() {
		m.remove(c)
		c.conn.Close()
		log.Printf("[WEB] WebSocket disconnected: %s", remote)
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (m *WSManager) writePump(c *wsClient) {
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.conn.Close()
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// remove unregisters c and ends its write pump. Safe to call twice.
func (m *WSManager) remove(c *wsClient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[c]; ok {
		delete(m.clients, c)
		close(c.send)
	}
}

func (m *WSManager) processAndBroadcast(ctx context.Context) {
	var tick <-chan time.Time
	if m.Status != nil && m.Interval > 0 {
		ticker := time.NewTicker(m.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.events:
			m.broadcast(WSMessage{Type: "mlme", Payload: ev}, true)
		case <-tick:
			status, err := m.Status(ctx)
			if err != nil {
				log.Println("[WEB] Error getting status:", err)
				continue
			}
			m.broadcast(WSMessage{Type: "status", Payload: status}, false)
		}
	}
}

// broadcast fans msg out. Clients that cannot keep up are disconnected.
func (m *WSManager) broadcast(msg WSMessage, keep bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Println("[WEB] JSON marshal error:", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if keep && m.Backlog > 0 {
		m.history = append(m.history, data)
		if len(m.history) > m.Backlog {
			m.history = m.history[len(m.history)-m.Backlog:]
		}
	}
	for c := range m.clients {
		select {
		case c.send <- data:
		default:
			log.Printf("[WEB] Dropping slow websocket client %s", c.conn.RemoteAddr())
			delete(m.clients, c)
			close(c.send)
		}
	}
}
