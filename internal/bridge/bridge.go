// Package bridge connects the event bus to the client hub and the durable
// log: transaction notifications are decoded into tx events, and bot and
// server events are relayed to clients.
package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"solana-copy-bot/internal/broadcast"
	"solana-copy-bot/internal/decoder"
	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/eventbus"
	"solana-copy-bot/internal/observability"
	"solana-copy-bot/internal/solana"
	"solana-copy-bot/internal/storage"
)

const persistTimeout = 2 * time.Second

// Sender delivers client messages.
type Sender interface {
	Send(msg broadcast.Message)
}

// Options configures a Bridge.
type Options struct {
	Bus     *eventbus.Bus
	Clients Sender
	// Logs is the durable log. Nil disables persistence.
	Logs   storage.LogStore
	Logger *zerolog.Logger
}

// Bridge holds the bus subscriptions.
type Bridge struct {
	bus     *eventbus.Bus
	clients Sender
	logs    storage.LogStore
	logger  zerolog.Logger
	unsubs  []func()
}

// New creates a bridge. Start registers its listeners.
func New(opts Options) *Bridge {
	logger := log.Logger.With().Str("component", "bridge").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logs := opts.Logs
	if logs == nil {
		logs = storage.Noop{}
	}
	return &Bridge{
		bus:     opts.Bus,
		clients: opts.Clients,
		logs:    logs,
		logger:  logger,
	}
}

// Start subscribes the bridge listeners.
func (b *Bridge) Start() {
	b.unsubs = append(b.unsubs,
		b.bus.Subscribe(eventbus.KindTxNotification, b.onTxNotification),
		b.bus.Subscribe(eventbus.KindBotStatus, b.onBotStatus),
		b.bus.Subscribe(eventbus.KindBotLog, b.onBotLog),
		b.bus.Subscribe(eventbus.KindBotTrade, b.onBotTrade),
		b.bus.Subscribe(eventbus.KindServerLog, b.onServerLog),
	)
}

// Stop removes the listeners.
func (b *Bridge) Stop() {
	for _, unsub := range b.unsubs {
		unsub()
	}
	b.unsubs = nil
}

// LogServer emits a server log line.
func (b *Bridge) LogServer(msg string) {
	b.bus.Publish(eventbus.Event{Kind: eventbus.KindServerLog, Payload: msg})
}

// LogBot emits a bot log entry, stamping it when the timestamp is unset.
func (b *Bridge) LogBot(entry *domain.LogEntry) {
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().UnixMilli()
	}
	b.bus.Publish(eventbus.Event{Kind: eventbus.KindBotLog, Payload: entry})
}

func (b *Bridge) onTxNotification(ev eventbus.Event) error {
	tx, ok := ev.Payload.(*domain.TxNotification)
	if !ok {
		return fmt.Errorf("unexpected %s payload %T", ev.Kind, ev.Payload)
	}

	b.clients.Send(broadcast.Message{Type: broadcast.TypeTxNotification, Payload: tx})

	n, err := solana.ParseNotification(tx.Payload)
	if err != nil {
		return fmt.Errorf("decode %s: %w", tx.Signature, err)
	}

	actions := decoder.Decode(n)
	for _, a := range actions {
		observability.RecordActionDecoded(string(a.Type))
	}

	txEvent := &domain.TxEvent{Tx: *tx, Actions: actions}
	b.bus.Publish(eventbus.Event{Kind: eventbus.KindTxEvent, Payload: txEvent})
	b.clients.Send(broadcast.Message{Type: broadcast.TypeTxEvent, Payload: txEvent})
	return nil
}

func (b *Bridge) onBotStatus(ev eventbus.Event) error {
	st, ok := ev.Payload.(*domain.BotStatus)
	if !ok {
		return fmt.Errorf("unexpected %s payload %T", ev.Kind, ev.Payload)
	}
	b.clients.Send(broadcast.Message{Type: broadcast.TypeBotStatus, Payload: st, UserID: st.UserID})
	return nil
}

func (b *Bridge) onBotLog(ev eventbus.Event) error {
	entry, ok := ev.Payload.(*domain.LogEntry)
	if !ok {
		return fmt.Errorf("unexpected %s payload %T", ev.Kind, ev.Payload)
	}
	b.clients.Send(broadcast.Message{Type: broadcast.TypeBotLog, Payload: entry, UserID: entry.UserID})

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := b.logs.AppendBotLog(ctx, entry); err != nil {
		return fmt.Errorf("persist bot log: %w", err)
	}
	return nil
}

func (b *Bridge) onBotTrade(ev eventbus.Event) error {
	trade, ok := ev.Payload.(*domain.TradeRecord)
	if !ok {
		return fmt.Errorf("unexpected %s payload %T", ev.Kind, ev.Payload)
	}
	b.clients.Send(broadcast.Message{Type: broadcast.TypeBotTrade, Payload: trade, UserID: trade.UserID})
	return nil
}

func (b *Bridge) onServerLog(ev eventbus.Event) error {
	msg, ok := ev.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected %s payload %T", ev.Kind, ev.Payload)
	}
	b.clients.Send(broadcast.Message{Type: broadcast.TypeServerLog, Payload: msg})

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := b.logs.AppendServerLog(ctx, time.Now().UnixMilli(), msg); err != nil {
		return fmt.Errorf("persist server log: %w", err)
	}
	return nil
}
