package storage

import (
	"context"

	"solana-copy-bot/internal/domain"
)

// Noop is a TxStore and LogStore that keeps nothing. It stands in for the
// durable store outside production.
type Noop struct{}

var (
	_ TxStore  = Noop{}
	_ LogStore = Noop{}
)

func (Noop) SaveTx(context.Context, *domain.TxNotification) error { return nil }

func (Noop) RecentTx(context.Context, int) ([]*domain.TxNotification, error) { return nil, nil }

func (Noop) AppendServerLog(context.Context, int64, string) error { return nil }

func (Noop) AppendBotLog(context.Context, *domain.LogEntry) error { return nil }

func (Noop) RecentLogs(context.Context, int) ([]LogLine, error) { return nil, nil }
