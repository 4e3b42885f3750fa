// Package eventbus is a synchronous in-process publish/subscribe hub keyed
// by event kind.
package eventbus

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"solana-copy-bot/internal/observability"
)

// Kind identifies an event stream.
type Kind string

// Event kinds.
const (
	KindTxNotification Kind = "tx_notification" // *domain.TxNotification, freshly ingested
	KindTxEvent        Kind = "tx_event"        // *domain.TxEvent, decoded
	KindBotStatus      Kind = "bot_status"      // *domain.BotStatus
	KindBotLog         Kind = "bot_log"         // *domain.LogEntry
	KindBotTrade       Kind = "bot_trade"       // *domain.TradeRecord
	KindServerLog      Kind = "server_log"      // string
)

// Event is a published message. Payload type is fixed per Kind.
type Event struct {
	Kind    Kind
	Payload any
}

// Handler receives events. A returned error is logged and does not affect
// other subscribers.
type Handler func(Event) error

type subscription struct {
	id      uint64
	handler Handler
}

// Bus delivers each published event to the current subscribers of its
// kind, synchronously and in registration order.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Kind][]subscription
	nextID uint64
	logger zerolog.Logger
}

// Options configures a Bus.
type Options struct {
	Logger *zerolog.Logger
}

// New creates an empty bus.
func New(opts Options) *Bus {
	logger := log.Logger.With().Str("component", "eventbus").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Bus{
		subs:   make(map[Kind][]subscription),
		logger: logger,
	}
}

// Subscribe registers h for kind. The returned func removes it; calling it
// more than once is safe.
func (b *Bus) Subscribe(kind Kind, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[kind] = append(b.subs[kind], subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(kind, id) })
	}
}

func (b *Bus) remove(kind Kind, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[kind]
	for i, s := range subs {
		if s.id == id {
			// copy so in-flight Publish snapshots are not disturbed
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			b.subs[kind] = next
			return
		}
	}
}

// Publish delivers ev to every subscriber of ev.Kind. Subscribers added or
// removed during delivery take effect from the next Publish.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := b.subs[ev.Kind]
	b.mu.RUnlock()

	observability.RecordEventPublished(string(ev.Kind))

	for _, s := range subs {
		if err := b.deliver(s.handler, ev); err != nil {
			observability.RecordHandlerError(string(ev.Kind))
			b.logger.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("event handler failed")
		}
	}
}

func (b *Bus) deliver(h Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ev)
}

// Subscribers returns the number of subscribers of kind.
func (b *Bus) Subscribers(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}
