// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Watcher metrics
	StreamMessages     *prometheus.CounterVec
	DuplicateTx        prometheus.Counter
	MalformedMessages  *prometheus.CounterVec
	HeartbeatsMissed   *prometheus.CounterVec
	Reconnects         *prometheus.CounterVec
	ConnectionState    *prometheus.GaugeVec
	PingLatency        *prometheus.HistogramVec
	CachedTransactions prometheus.Gauge

	// Decoder metrics
	ActionsDecoded *prometheus.CounterVec

	// Bus metrics
	EventsPublished *prometheus.CounterVec
	HandlerErrors   *prometheus.CounterVec

	// Supervisor metrics
	ActiveBots    prometheus.Gauge
	WorkerExits   *prometheus.CounterVec
	TradesRelayed *prometheus.CounterVec

	// Executor metrics
	ExecutorRequests *prometheus.CounterVec
	ExecutorLatency  *prometheus.HistogramVec

	// Solana RPC metrics
	RPCRequests *prometheus.CounterVec

	// Broadcast metrics
	ClientsConnected prometheus.Gauge
	ClientDrops      prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "copybot"
	}

	return &Metrics{
		// Watcher metrics
		StreamMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "messages_total",
			Help:      "Total number of upstream messages by connection and kind",
		}, []string{"connection", "kind"}),
		DuplicateTx: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "duplicate_transactions_total",
			Help:      "Total number of transactions rejected by the dedup window",
		}),
		MalformedMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "malformed_messages_total",
			Help:      "Total number of dropped undecodable messages by field",
		}, []string{"field"}),
		HeartbeatsMissed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "heartbeats_missed_total",
			Help:      "Total number of silence threshold breaches by connection",
		}, []string{"connection"}),
		Reconnects: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "reconnect_attempts_total",
			Help:      "Total number of reconnect attempts by connection",
		}, []string{"connection"}),
		ConnectionState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "connection_state",
			Help:      "Current connection state code by connection",
		}, []string{"connection"}),
		PingLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "ping_latency_seconds",
			Help:      "WebSocket ping round trip in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"connection"}),
		CachedTransactions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "cached_transactions",
			Help:      "Current number of cached transactions",
		}),

		// Decoder metrics
		ActionsDecoded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoder",
			Name:      "actions_total",
			Help:      "Total number of decoded actions by type",
		}, []string{"type"}),

		// Bus metrics
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "events_published_total",
			Help:      "Total number of published events by kind",
		}, []string{"kind"}),
		HandlerErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "handler_errors_total",
			Help:      "Total number of failed or panicking handlers by kind",
		}, []string{"kind"}),

		// Supervisor metrics
		ActiveBots: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "active_bots",
			Help:      "Current number of running bot workers",
		}),
		WorkerExits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "worker_exits_total",
			Help:      "Total number of worker exits by outcome",
		}, []string{"outcome"}),
		TradesRelayed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "trades_total",
			Help:      "Total number of worker trades by side and result",
		}, []string{"side", "result"}),

		// Executor metrics
		ExecutorRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "requests_total",
			Help:      "Total number of execution requests by endpoint and result",
		}, []string{"endpoint", "result"}),
		ExecutorLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "request_latency_seconds",
			Help:      "Execution request latency in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),

		RPCRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Total number of Solana RPC attempts by method and result",
		}, []string{"method", "result"}),

		// Broadcast metrics
		ClientsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "clients",
			Help:      "Current number of connected clients",
		}),
		ClientDrops: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "slow_client_drops_total",
			Help:      "Total number of clients dropped for falling behind",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordStreamMessage counts an upstream message.
func RecordStreamMessage(connection, kind string) {
	DefaultMetrics.StreamMessages.WithLabelValues(connection, kind).Inc()
}

// RecordDuplicateTx counts a transaction dropped by the dedup window.
func RecordDuplicateTx() {
	DefaultMetrics.DuplicateTx.Inc()
}

// RecordMalformed counts a dropped undecodable message.
func RecordMalformed(field string) {
	DefaultMetrics.MalformedMessages.WithLabelValues(field).Inc()
}

// RecordHeartbeatMissed counts a silence threshold breach.
func RecordHeartbeatMissed(connection string) {
	DefaultMetrics.HeartbeatsMissed.WithLabelValues(connection).Inc()
}

// RecordReconnect counts a reconnect attempt.
func RecordReconnect(connection string) {
	DefaultMetrics.Reconnects.WithLabelValues(connection).Inc()
}

// SetConnectionState sets the state gauge of a connection.
func SetConnectionState(connection string, state int) {
	DefaultMetrics.ConnectionState.WithLabelValues(connection).Set(float64(state))
}

// RecordPingLatency records a ping round trip.
func RecordPingLatency(connection string, seconds float64) {
	DefaultMetrics.PingLatency.WithLabelValues(connection).Observe(seconds)
}

// SetCachedTransactions sets the cache size gauge.
func SetCachedTransactions(n int) {
	DefaultMetrics.CachedTransactions.Set(float64(n))
}

// RecordActionDecoded counts a decoded action.
func RecordActionDecoded(actionType string) {
	DefaultMetrics.ActionsDecoded.WithLabelValues(actionType).Inc()
}

// RecordEventPublished counts a bus publication.
func RecordEventPublished(kind string) {
	DefaultMetrics.EventsPublished.WithLabelValues(kind).Inc()
}

// RecordHandlerError counts a failed bus handler.
func RecordHandlerError(kind string) {
	DefaultMetrics.HandlerErrors.WithLabelValues(kind).Inc()
}

// SetActiveBots sets the running worker gauge.
func SetActiveBots(n int) {
	DefaultMetrics.ActiveBots.Set(float64(n))
}

// RecordWorkerExit counts a worker exit ("clean" or "crashed").
func RecordWorkerExit(outcome string) {
	DefaultMetrics.WorkerExits.WithLabelValues(outcome).Inc()
}

// RecordTrade counts a trade reported by a worker.
func RecordTrade(side string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	DefaultMetrics.TradesRelayed.WithLabelValues(side, result).Inc()
}

// RecordExecutorRequest records an execution request.
func RecordExecutorRequest(endpoint, result string, seconds float64) {
	DefaultMetrics.ExecutorRequests.WithLabelValues(endpoint, result).Inc()
	DefaultMetrics.ExecutorLatency.WithLabelValues(endpoint).Observe(seconds)
}

// RecordRPCRequest counts one Solana RPC attempt.
func RecordRPCRequest(method, result string) {
	DefaultMetrics.RPCRequests.WithLabelValues(method, result).Inc()
}

// SetClients sets the connected client gauge.
func SetClients(n int) {
	DefaultMetrics.ClientsConnected.Set(float64(n))
}

// RecordClientDrop counts a slow client disconnect.
func RecordClientDrop() {
	DefaultMetrics.ClientDrops.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
