package solana

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSClientConfig configures upstream WebSocket connections.
type WSClientConfig struct {
	// HandshakeTimeout bounds the dial.
	HandshakeTimeout time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// RequestPrefix prefixes subscription request ids.
	RequestPrefix string
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		RequestPrefix:    "copybot",
	}
}

// WSDialer implements StreamDialer using gorilla/websocket.
type WSDialer struct {
	config WSClientConfig
}

// NewWSDialer creates a dialer. A nil config uses DefaultWSConfig.
func NewWSDialer(config *WSClientConfig) *WSDialer {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	return &WSDialer{config: cfg}
}

// Dial connects to endpoint.
func (d *WSDialer) Dial(ctx context.Context, endpoint string, onPong func(rtt time.Duration)) (StreamConn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.config.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c := &WSStream{conn: conn, config: d.config}
	conn.SetPongHandler(func(data string) error {
		if onPong == nil || len(data) != 8 {
			return nil
		}
		sent := int64(binary.BigEndian.Uint64([]byte(data)))
		onPong(time.Since(time.Unix(0, sent)))
		return nil
	})
	return c, nil
}

// WSStream is an open upstream connection.
type WSStream struct {
	conn      *websocket.Conn
	config    WSClientConfig
	writeMu   sync.Mutex
	requestID atomic.Uint64
	closed    atomic.Bool
}

// SubscribeTransactions sends transactionSubscribe.
func (c *WSStream) SubscribeTransactions(filter TransactionFilter) (string, error) {
	include := filter.AccountInclude
	if include == nil {
		include = []string{}
	}
	return c.send("tx", "transactionSubscribe", []interface{}{
		map[string]interface{}{
			"vote":           filter.Vote,
			"failed":         filter.Failed,
			"accountInclude": include,
		},
		map[string]interface{}{
			"commitment":                     "processed",
			"encoding":                       "jsonParsed",
			"transactionDetails":             "full",
			"showRewards":                    true,
			"maxSupportedTransactionVersion": 0,
		},
	})
}

// SubscribeHeartbeat sends accountSubscribe for the clock sysvar.
func (c *WSStream) SubscribeHeartbeat() (string, error) {
	return c.send("heartbeat", "accountSubscribe", []interface{}{
		ClockSysvar,
		map[string]string{
			"commitment": "processed",
			"encoding":   "jsonParsed",
		},
	})
}

func (c *WSStream) send(tag, method string, params []interface{}) (string, error) {
	if c.closed.Load() {
		return "", fmt.Errorf("connection closed")
	}

	id := c.config.RequestPrefix + "-" + tag + "-" + strconv.FormatUint(c.requestID.Add(1), 10)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.conn.WriteJSON(req); err != nil {
		return "", fmt.Errorf("write %s: %w", method, err)
	}
	return id, nil
}

// ReadMessage reads the next text message.
func (c *WSStream) ReadMessage() ([]byte, error) {
	if c.config.ReadTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Ping writes a ping frame carrying the send time.
func (c *WSStream) Ping() error {
	if c.closed.Load() {
		return fmt.Errorf("connection closed")
	}
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, uint64(time.Now().UnixNano()))

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, payload, time.Now().Add(c.config.WriteTimeout))
}

// Close sends a close frame and closes the socket.
func (c *WSStream) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()

	return c.conn.Close()
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}
