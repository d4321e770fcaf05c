package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/wonny/aegis/fusion/internal/contracts"
	"github.com/wonny/aegis/fusion/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 32
)

// Message is the envelope written to stream clients
type Message struct {
	Type     string              `json:"type"` // "decision"
	Decision *contracts.Decision `json:"decision"`
}

// Hub fans appended decisions out to websocket clients.
// Clients may subscribe to a subset of symbols with ?symbols=AAPL,MSFT.
// ⭐ SSOT: 결정 스트림 브로드캐스트는 여기서만
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}

	metrics *metrics.Recorder
	log     zerolog.Logger
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	symbols map[string]bool // empty = all
	once    sync.Once
}

// NewHub creates an empty hub; recorder may be nil
func NewHub(recorder *metrics.Recorder, log zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
		metrics: recorder,
		log:     log.With().Str("component", "stream.hub").Logger(),
	}
}

// Publish implements contracts.DecisionPublisher. Never blocks: a client
// whose buffer is full is dropped.
func (h *Hub) Publish(d *contracts.Decision) {
	if d == nil {
		return
	}
	payload, err := json.Marshal(Message{Type: "decision", Decision: d})
	if err != nil {
		h.log.Error().Err(err).Str("decision_id", d.DecisionID).Msg("failed to encode decision")
		return
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		if !c.wants(d.Symbol) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn().Msg("dropping slow stream client")
		h.remove(c)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and streams decisions until it closes
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		symbols: parseSymbols(r.URL.Query().Get("symbols")),
	}
	h.add(c)

	go h.writePump(c)
	h.readPump(c)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.remove(c)
	}
}

// Run closes all clients when ctx is done
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.Close()
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetStreamClients(n)
	h.log.Debug().Int("clients", n).Msg("stream client connected")
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	c.once.Do(func() {
		close(c.send)
	})
	h.metrics.SetStreamClients(n)
}

// readPump drains control frames; clients never send data
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) wants(symbol string) bool {
	return len(c.symbols) == 0 || c.symbols[symbol]
}

func parseSymbols(raw string) map[string]bool {
	out := make(map[string]bool)
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out[s] = true
		}
	}
	return out
}
