package storage

import (
	"context"

	"solana-copy-bot/internal/domain"
)

// TxStore mirrors cached transaction notifications for restart recovery.
// It is never the source of truth for live traffic.
type TxStore interface {
	// SaveTx stores tx under its signature. Saving the same signature twice overwrites.
	SaveTx(ctx context.Context, tx *domain.TxNotification) error

	// RecentTx returns up to limit stored notifications ordered by ReceivedAt ASC.
	RecentTx(ctx context.Context, limit int) ([]*domain.TxNotification, error)
}

// LogStore keeps the durable server and bot log.
type LogStore interface {
	// AppendServerLog stores a server log line at ts (ms).
	AppendServerLog(ctx context.Context, ts int64, msg string) error

	// AppendBotLog stores a bot log entry at entry.Timestamp.
	AppendBotLog(ctx context.Context, entry *domain.LogEntry) error

	// RecentLogs returns up to limit lines ordered by timestamp ASC.
	RecentLogs(ctx context.Context, limit int) ([]LogLine, error)
}

// LogLine is one durable log record.
type LogLine struct {
	Timestamp int64  `json:"timestamp"` // ms
	Kind      string `json:"kind"`      // LogKindServer or LogKindBot
	Text      string `json:"text"`      // message, or bot entry JSON
}

// Log line kinds.
const (
	LogKindServer = "server"
	LogKindBot    = "bot"
)

// BotStore is the configuration/identity store for bots, strategies,
// traders and wallets.
type BotStore interface {
	// CreateBot adds a bot. Returns ErrDuplicateKey if the id exists.
	CreateBot(ctx context.Context, b *domain.Bot) error

	// GetBot retrieves a bot with its active trader and strategy.
	// Returns ErrNotFound if not exists.
	GetBot(ctx context.Context, botID string) (*domain.Bot, error)

	// ListBots retrieves bots of a user, or all bots when userID is empty, ordered by created_at ASC.
	ListBots(ctx context.Context, userID string) ([]*domain.Bot, error)

	// UpdateBotSettings applies the non-nil settings and returns the updated bot.
	// Returns ErrNotFound if the bot does not exist.
	UpdateBotSettings(ctx context.Context, botID string, s domain.BotSettings) (*domain.Bot, error)

	// ResolveWallet returns the wallet record for address, creating it when missing.
	ResolveWallet(ctx context.Context, address string) (*domain.Wallet, error)
}

// KeyStore provides bot wallet key material.
type KeyStore interface {
	// SaveKeypair stores the keypair of a bot. Returns ErrDuplicateKey if one exists.
	SaveKeypair(ctx context.Context, botID string, kp *domain.Keypair) error

	// GetKeypair retrieves the keypair of a bot. Returns ErrNotFound if not exists.
	GetKeypair(ctx context.Context, botID string) (*domain.Keypair, error)
}

// TradeStore is the append-only sink of executed trades.
type TradeStore interface {
	// InsertTrade adds a trade. Returns ErrDuplicateKey if trade_id exists.
	InsertTrade(ctx context.Context, t *domain.TradeRecord) error

	// ListTrades returns up to limit most recent trades of a bot, newest first.
	ListTrades(ctx context.Context, botID string, limit int) ([]*domain.TradeRecord, error)
}

// BotLogSink receives bot log entries for analytics.
type BotLogSink interface {
	AppendBotLog(ctx context.Context, entry *domain.LogEntry) error
}

// BotLogReader reads the analytics copy of a bot's log.
type BotLogReader interface {
	// RecentBotLogs returns up to limit most recent entries of a bot ordered by timestamp ASC.
	RecentBotLogs(ctx context.Context, botID string, limit int) ([]*domain.LogEntry, error)
}
