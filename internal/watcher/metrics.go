package watcher

// ConnectionMetrics is a point-in-time view of one upstream connection.
// Timestamps are unix milliseconds, zero when never observed.
type ConnectionMetrics struct {
	Name                 string             `json:"name"`
	State                string             `json:"state"`
	LastConnectedAt      int64              `json:"lastConnectedAt"`
	DisconnectionCount   int                `json:"disconnectionCount"`
	ReconnectionAttempts int                `json:"reconnectionAttempts"`
	TotalUptimeMs        int64              `json:"totalUptime"`
	LastDisconnectReason string             `json:"lastDisconnectReason,omitempty"`
	Heartbeat            HeartbeatMetrics   `json:"heartbeat"`
	Transactions         TransactionMetrics `json:"transactions"`
	Latency              LatencyMetrics     `json:"latency"`
}

// HeartbeatMetrics counts clock-account heartbeats.
type HeartbeatMetrics struct {
	Total  int64 `json:"total"`
	Missed int64 `json:"missed"`
	LastAt int64 `json:"lastAt"`
}

// TransactionMetrics counts transaction notifications read, duplicates included.
type TransactionMetrics struct {
	Total          int64 `json:"total"`
	LastReceivedAt int64 `json:"lastReceivedAt"`
}

// LatencyMetrics tracks ping round trips.
type LatencyMetrics struct {
	CurrentMs float64 `json:"current"`
	AverageMs float64 `json:"average"`
	Samples   int     `json:"samples"`
}

// Metrics is the watcher-wide snapshot.
type Metrics struct {
	Connections        []ConnectionMetrics `json:"connections"`
	CachedTransactions int                 `json:"cachedTransactions"`
	DedupEntries       int                 `json:"dedupEntries"`
	Published          int64               `json:"published"`
	Duplicates         int64               `json:"duplicates"`
}
