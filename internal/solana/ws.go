package solana

import (
	"context"
	"time"
)

// StreamConn is one open upstream streaming connection.
type StreamConn interface {
	// SubscribeTransactions requests transaction notifications for the filter.
	// Returns the request id echoed back in the subscription confirmation.
	SubscribeTransactions(filter TransactionFilter) (string, error)

	// SubscribeHeartbeat subscribes to the clock sysvar account.
	SubscribeHeartbeat() (string, error)

	// ReadMessage blocks until the next message arrives.
	ReadMessage() ([]byte, error)

	// Ping sends a ping frame; the round trip is reported to the pong callback.
	Ping() error

	// Close closes the connection.
	Close() error
}

// StreamDialer opens upstream connections.
type StreamDialer interface {
	Dial(ctx context.Context, endpoint string, onPong func(rtt time.Duration)) (StreamConn, error)
}

// TransactionFilter selects transactions for transactionSubscribe.
type TransactionFilter struct {
	// AccountInclude lists addresses at least one of which must be referenced.
	AccountInclude []string
	Vote           bool
	Failed         bool
}
