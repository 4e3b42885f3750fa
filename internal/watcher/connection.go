package watcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"solana-copy-bot/internal/observability"
	"solana-copy-bot/internal/solana"
)

// ErrMaxReconnects is returned when a connection exhausts its reconnect attempts.
var ErrMaxReconnects = errors.New("watcher: max reconnect attempts reached")

// State is the lifecycle state of a Connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateHealthy
	StateDegraded
	StateClosing
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateClosing:
		return "closing"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// txHandler receives every validated transaction notification read by a
// connection, duplicates included.
type txHandler func(ctx context.Context, source string, raw []byte, n *solana.Notification)

type connStats struct {
	lastConnectedAt      time.Time
	connectedAt          time.Time // zero while not open
	disconnections       int
	reconnectAttempts    int
	uptime               time.Duration
	lastDisconnectReason string

	// heartbeatSeen is set by the first heartbeat of the connection's
	// lifetime and never reset, so later sessions are checked from open.
	heartbeatSeen    bool
	lastHeartbeatAt  time.Time
	heartbeats       int64
	missedHeartbeats int64

	lastTxAt time.Time
	txTotal  int64

	latency        time.Duration
	latencySum     time.Duration
	latencySamples int
}

// Connection is one upstream stream with its own heartbeat monitor and
// reconnect state.
type Connection struct {
	name     string
	endpoint string
	cfg      Config
	filter   solana.TransactionFilter
	dialer   solana.StreamDialer
	onTx     txHandler
	onOpen   func(ctx context.Context)
	logger   zerolog.Logger

	// reconnecting is set from teardown until the next successful open.
	reconnecting atomic.Bool

	mu             sync.Mutex
	state          State
	conn           solana.StreamConn
	attempt        int
	teardownReason string
	st             connStats

	firstHeartbeat     chan struct{}
	firstHeartbeatOnce sync.Once
}

func newConnection(name, endpoint string, cfg Config, dialer solana.StreamDialer, onTx txHandler, onOpen func(context.Context), logger zerolog.Logger) *Connection {
	return &Connection{
		name:     name,
		endpoint: endpoint,
		cfg:      cfg,
		filter: solana.TransactionFilter{
			AccountInclude: cfg.WatchedAddresses,
		},
		dialer:         dialer,
		onTx:           onTx,
		onOpen:         onOpen,
		logger:         logger.With().Str("connection", name).Logger(),
		firstHeartbeat: make(chan struct{}),
	}
}

// Name returns the connection label ("primary" or "backup").
func (c *Connection) Name() string { return c.name }

// State returns the current state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// FirstHeartbeat is closed when the connection receives its first heartbeat.
func (c *Connection) FirstHeartbeat() <-chan struct{} { return c.firstHeartbeat }

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	observability.SetConnectionState(c.name, int(s))
}

// run connects and keeps reconnecting until ctx is done or the attempt
// ceiling is reached.
func (c *Connection) run(ctx context.Context) error {
	defer c.setState(StateStopped)

	for {
		c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}

		c.reconnecting.Store(true)

		c.mu.Lock()
		k := c.attempt
		c.attempt++
		c.mu.Unlock()

		if k >= c.cfg.MaxReconnects {
			c.logger.Error().Int("attempts", k).Msg("max reconnect attempts reached, giving up")
			return ErrMaxReconnects
		}

		delay := Backoff(k, c.cfg.BaseBackoff, c.cfg.MaxBackoff)
		c.setState(StateReconnecting)
		c.mu.Lock()
		c.st.reconnectAttempts++
		c.mu.Unlock()
		observability.RecordReconnect(c.name)
		c.logger.Info().Int("attempt", k+1).Dur("delay", delay).Msg("reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// session runs one dial-subscribe-read cycle.
func (c *Connection) session(ctx context.Context) {
	c.setState(StateConnecting)

	conn, err := c.dialer.Dial(ctx, c.endpoint, c.recordPong)
	if err != nil {
		c.mu.Lock()
		c.st.lastDisconnectReason = "dial: " + err.Error()
		c.mu.Unlock()
		c.logger.Warn().Err(err).Msg("dial failed")
		return
	}

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.opened(conn)
	c.logger.Info().Msg("connection open")

	if c.onOpen != nil {
		c.onOpen(sctx)
	}

	if err := c.subscribe(conn); err != nil {
		c.logger.Warn().Err(err).Msg("subscribe failed")
		conn.Close()
		c.closed("subscribe: " + err.Error())
		return
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		c.healthLoop(sctx)
	}()
	go func() {
		defer wg.Done()
		c.pingLoop(sctx, conn)
	}()
	go func() {
		defer wg.Done()
		<-sctx.Done()
		conn.Close()
	}()

	reason := c.readLoop(sctx, conn)
	cancel()
	wg.Wait()

	c.closed(reason)
}

func (c *Connection) opened(conn solana.StreamConn) {
	now := time.Now()

	c.mu.Lock()
	c.conn = conn
	c.attempt = 0
	c.teardownReason = ""
	c.st.lastConnectedAt = now
	c.st.connectedAt = now
	c.st.lastHeartbeatAt = now
	c.st.lastTxAt = now
	c.state = StateOpen
	c.mu.Unlock()

	c.reconnecting.Store(false)
	observability.SetConnectionState(c.name, int(StateOpen))
}

func (c *Connection) closed(reason string) {
	c.setState(StateClosing)

	c.mu.Lock()
	if !c.st.connectedAt.IsZero() {
		c.st.uptime += time.Since(c.st.connectedAt)
		c.st.connectedAt = time.Time{}
		c.st.disconnections++
	}
	c.st.lastDisconnectReason = reason
	c.conn = nil
	c.teardownReason = ""
	c.mu.Unlock()

	c.logger.Warn().Str("reason", reason).Msg("connection closed")
}

func (c *Connection) subscribe(conn solana.StreamConn) error {
	id, err := conn.SubscribeTransactions(c.filter)
	if err != nil {
		return err
	}
	c.logger.Info().Str("request_id", id).Int("addresses", len(c.filter.AccountInclude)).Msg("subscribed to transactions")

	id, err = conn.SubscribeHeartbeat()
	if err != nil {
		return err
	}
	c.logger.Info().Str("request_id", id).Msg("subscribed to heartbeat")
	return nil
}

func (c *Connection) readLoop(ctx context.Context, conn solana.StreamConn) string {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			reason := c.teardownReason
			c.mu.Unlock()
			switch {
			case reason != "":
				return reason
			case ctx.Err() != nil:
				return "shutdown"
			default:
				return "read: " + err.Error()
			}
		}
		c.handle(ctx, data)
	}
}

func (c *Connection) handle(ctx context.Context, data []byte) {
	msg, err := solana.ParseStreamMessage(data)
	if err != nil {
		field := "unknown"
		var de *solana.DecodeError
		if errors.As(err, &de) {
			field = de.Field
		}
		observability.RecordMalformed(field)
		c.logger.Warn().Err(err).Msg("dropping malformed message")
		return
	}

	observability.RecordStreamMessage(c.name, msg.Kind.String())

	switch msg.Kind {
	case solana.MessageHeartbeat:
		c.markHeartbeat()
	case solana.MessageTransaction:
		c.markTransaction()
		if c.onTx != nil {
			c.onTx(ctx, c.name, data, msg.Transaction)
		}
	case solana.MessageSubscribed:
		c.logger.Debug().Str("request_id", msg.RequestID).Int64("subscription", msg.SubscriptionID).Msg("subscription confirmed")
	case solana.MessageError:
		c.logger.Error().Str("request_id", msg.RequestID).Str("error", msg.ErrMessage).Msg("upstream error")
	case solana.MessageUnknown:
		c.logger.Debug().Msg("ignoring unknown message")
	}
}

func (c *Connection) markHeartbeat() {
	c.mu.Lock()
	c.st.lastHeartbeatAt = time.Now()
	c.st.heartbeats++
	first := !c.st.heartbeatSeen
	c.st.heartbeatSeen = true
	c.promoteLocked()
	c.mu.Unlock()

	if first {
		c.logger.Info().Msg("initial heartbeat received")
		c.firstHeartbeatOnce.Do(func() { close(c.firstHeartbeat) })
	}
}

func (c *Connection) markTransaction() {
	c.mu.Lock()
	c.st.lastTxAt = time.Now()
	c.st.txTotal++
	c.promoteLocked()
	c.mu.Unlock()
}

// promoteLocked moves an open or degraded connection to healthy.
func (c *Connection) promoteLocked() {
	if c.state == StateOpen || c.state == StateDegraded {
		c.state = StateHealthy
		observability.SetConnectionState(c.name, int(StateHealthy))
	}
}

func (c *Connection) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.checkHealth(now)
		}
	}
}

// checkHealth tears the connection down when neither a transaction nor a
// heartbeat arrived within the silence threshold. Until the first heartbeat
// ever seen on this connection the check is skipped.
func (c *Connection) checkHealth(now time.Time) {
	c.mu.Lock()
	waiting := !c.st.heartbeatSeen
	last := c.st.lastHeartbeatAt
	if c.st.lastTxAt.After(last) {
		last = c.st.lastTxAt
	}
	c.mu.Unlock()

	if waiting {
		c.logger.Debug().Msg("waiting for initial heartbeat")
		return
	}
	if c.reconnecting.Load() {
		c.logger.Debug().Msg("skipping health check, reconnect in progress")
		return
	}

	silence := now.Sub(last)
	if silence <= c.cfg.SilenceThreshold {
		return
	}

	c.mu.Lock()
	c.st.missedHeartbeats++
	c.mu.Unlock()
	observability.RecordHeartbeatMissed(c.name)
	c.setState(StateDegraded)

	c.logger.Warn().Dur("silence", silence).Msg("no heartbeat or transaction within threshold, restarting")
	c.teardown("silence " + silence.Round(time.Millisecond).String())
}

// teardown closes the live connection and marks a reconnect in flight.
// Only the first caller wins until the next open.
func (c *Connection) teardown(reason string) bool {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return false
	}

	c.mu.Lock()
	c.teardownReason = reason
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	return true
}

func (c *Connection) pingLoop(ctx context.Context, conn solana.StreamConn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				c.logger.Debug().Err(err).Msg("ping failed")
			}
		}
	}
}

func (c *Connection) recordPong(rtt time.Duration) {
	c.mu.Lock()
	c.st.latency = rtt
	c.st.latencySum += rtt
	c.st.latencySamples++
	c.mu.Unlock()
	observability.RecordPingLatency(c.name, rtt.Seconds())
}

// Metrics returns a snapshot of the connection counters.
func (c *Connection) Metrics() ConnectionMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.st
	uptime := st.uptime
	if !st.connectedAt.IsZero() {
		uptime += time.Since(st.connectedAt)
	}

	m := ConnectionMetrics{
		Name:                 c.name,
		State:                c.state.String(),
		LastConnectedAt:      unixMilli(st.lastConnectedAt),
		DisconnectionCount:   st.disconnections,
		ReconnectionAttempts: st.reconnectAttempts,
		TotalUptimeMs:        uptime.Milliseconds(),
		LastDisconnectReason: st.lastDisconnectReason,
		Heartbeat: HeartbeatMetrics{
			Total:  st.heartbeats,
			Missed: st.missedHeartbeats,
			LastAt: unixMilli(st.lastHeartbeatAt),
		},
		Transactions: TransactionMetrics{
			Total:          st.txTotal,
			LastReceivedAt: unixMilli(st.lastTxAt),
		},
		Latency: LatencyMetrics{
			CurrentMs: durationMs(st.latency),
			Samples:   st.latencySamples,
		},
	}
	if st.latencySamples > 0 {
		m.Latency.AverageMs = durationMs(st.latencySum) / float64(st.latencySamples)
	}
	return m
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
