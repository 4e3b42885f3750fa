package export

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/eventbus"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeWriter) written() []kafka.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kafka.Message(nil), f.msgs...)
}

func newTestPublisher(t *testing.T, opts Options) (*Publisher, *eventbus.Bus, *fakeWriter) {
	t.Helper()
	bus := eventbus.New(eventbus.Options{})
	w := &fakeWriter{}
	opts.Bus = bus
	opts.Writer = w
	opts.TxTopic = "tx"
	opts.TradeTopic = "trades"
	p, err := NewPublisher(opts)
	require.NoError(t, err)
	return p, bus, w
}

func TestPublisher_WritesKeyedMessages(t *testing.T) {
	p, bus, w := newTestPublisher(t, Options{FlushInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	bus.Publish(eventbus.Event{Kind: eventbus.KindTxEvent, Payload: &domain.TxEvent{
		Tx: domain.TxNotification{Signature: "sig1", Slot: 10},
	}})
	bus.Publish(eventbus.Event{Kind: eventbus.KindBotTrade, Payload: &domain.TradeRecord{
		TradeID: "t1", BotID: "bot1", Mint: "Mint1",
	}})

	require.Eventually(t, func() bool { return len(w.written()) == 2 }, time.Second, 5*time.Millisecond)

	msgs := w.written()
	assert.Equal(t, "tx", msgs[0].Topic)
	assert.Equal(t, "sig1", string(msgs[0].Key))
	var ev domain.TxEvent
	require.NoError(t, json.Unmarshal(msgs[0].Value, &ev))
	assert.Equal(t, int64(10), ev.Tx.Slot)

	assert.Equal(t, "trades", msgs[1].Topic)
	assert.Equal(t, "bot1", string(msgs[1].Key))

	cancel()
	require.NoError(t, <-done)
	assert.True(t, w.closed)
}

func TestPublisher_FlushesOnShutdown(t *testing.T) {
	p, bus, w := newTestPublisher(t, Options{FlushInterval: time.Hour, BatchSize: 100})

	bus.Publish(eventbus.Event{Kind: eventbus.KindBotTrade, Payload: &domain.TradeRecord{TradeID: "t1", BotID: "bot1"}})
	bus.Publish(eventbus.Event{Kind: eventbus.KindBotTrade, Payload: &domain.TradeRecord{TradeID: "t2", BotID: "bot1"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))

	assert.Len(t, w.written(), 2)
	assert.Equal(t, 0, bus.Subscribers(eventbus.KindBotTrade))
}

func TestPublisher_DropsWhenFull(t *testing.T) {
	p, bus, w := newTestPublisher(t, Options{BufferSize: 1, FlushInterval: time.Hour})

	for i := 0; i < 5; i++ {
		bus.Publish(eventbus.Event{Kind: eventbus.KindBotTrade, Payload: &domain.TradeRecord{BotID: "bot1"}})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))
	assert.Len(t, w.written(), 1)
}

func TestNewPublisher_RequiresTopics(t *testing.T) {
	_, err := NewPublisher(Options{Bus: eventbus.New(eventbus.Options{}), Writer: &fakeWriter{}})
	assert.Error(t, err)
}
