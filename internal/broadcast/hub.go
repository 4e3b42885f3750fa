// Package broadcast fans server events out to connected WebSocket clients.
package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/observability"
)

// Client message types.
const (
	TypeTxNotification = "SOLANA_TX_NOTIFICATION_FROM_HELIUS"
	TypeTxEvent        = "SOLANA_TX_EVENT"
	TypeBotStatus      = "BOT_STATUS_UPDATE"
	TypeBotLog         = "BOT_LOG_EVENT"
	TypeBotTrade       = "BOT_TRADE_NOTIFICATION"
	TypeServerLog      = "SERVER_LOG_EVENT"
)

const (
	defaultSendBuffer = 256
	writeWait         = 10 * time.Second
)

// Message is one client-bound message. An empty UserID addresses every client.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
	UserID  string `json:"-"`
}

// ReplaySource supplies the cached transactions sent to new clients.
type ReplaySource interface {
	RecentTransactions() []*domain.TxNotification
}

// Options configures a Hub.
type Options struct {
	Replay     ReplaySource
	SendBuffer int
	Logger     *zerolog.Logger
}

type client struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

// Hub tracks connected clients. Each client has a buffered writer; a client
// whose buffer is full is disconnected.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*client
	upgrader websocket.Upgrader
	replay   ReplaySource
	buffer   int
	logger   zerolog.Logger
}

// NewHub creates a hub.
func NewHub(opts Options) *Hub {
	logger := log.Logger.With().Str("component", "broadcast").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	buffer := opts.SendBuffer
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Hub{
		clients:  make(map[string]*client),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		replay:   opts.Replay,
		buffer:   buffer,
		logger:   logger,
	}
}

// Handler upgrades /ws?userId=... requests and replays the transaction cache.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		c := &client{
			id:     uuid.NewString(),
			userID: r.URL.Query().Get("userId"),
			conn:   conn,
			done:   make(chan struct{}),
		}
		replayed := h.register(c)
		h.logger.Info().Str("client_id", c.id).Str("user_id", c.userID).Int("replayed", replayed).Msg("client connected")

		go h.writeLoop(c)
		go h.readLoop(c)
	}
}

// register queues the cache backlog for c and adds it to the hub in one
// critical section. Send blocks on the same lock, so a transaction cached
// after the snapshot is delivered live and queued behind the backlog.
// A transaction cached just before the snapshot may arrive twice.
func (h *Hub) register(c *client) int {
	h.mu.Lock()
	var backlog []*domain.TxNotification
	if h.replay != nil {
		backlog = h.replay.RecentTransactions()
	}
	c.send = make(chan []byte, h.buffer+len(backlog))
	for _, tx := range backlog {
		if data, err := json.Marshal(Message{Type: TypeTxNotification, Payload: tx}); err == nil {
			c.send <- data
		}
	}
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()

	observability.SetClients(n)
	return len(backlog)
}

func (h *Hub) remove(c *client) {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
		h.mu.Lock()
		delete(h.clients, c.id)
		n := len(h.clients)
		h.mu.Unlock()
		observability.SetClients(n)
	})
}

func (h *Hub) writeLoop(c *client) {
	defer h.remove(c)
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug().Err(err).Str("client_id", c.id).Msg("write failed")
				return
			}
		}
	}
}

// readLoop drains client frames; clients only listen.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Send delivers msg to its addressee, or to every client.
func (h *Hub) Send(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("failed to marshal client message")
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		if msg.UserID == "" || c.userID == msg.UserID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			observability.RecordClientDrop()
			h.logger.Warn().Str("client_id", c.id).Msg("client too slow, disconnecting")
			h.remove(c)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.remove(c)
	}
}
