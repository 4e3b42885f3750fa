package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copy-bot/internal/broadcast"
	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/eventbus"
	"solana-copy-bot/internal/storage"
)

type sentMessages struct {
	mu   sync.Mutex
	msgs []broadcast.Message
}

func (s *sentMessages) Send(msg broadcast.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *sentMessages) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.msgs))
	for i, m := range s.msgs {
		out[i] = m.Type
	}
	return out
}

type logStore struct {
	storage.Noop
	server []string
	bots   []*domain.LogEntry
	err    error
}

func (s *logStore) AppendServerLog(_ context.Context, _ int64, msg string) error {
	s.server = append(s.server, msg)
	return s.err
}

func (s *logStore) AppendBotLog(_ context.Context, e *domain.LogEntry) error {
	s.bots = append(s.bots, e)
	return s.err
}

func setup(t *testing.T) (*Bridge, *eventbus.Bus, *sentMessages, *logStore) {
	t.Helper()
	nop := zerolog.Nop()
	bus := eventbus.New(eventbus.Options{Logger: &nop})
	clients := &sentMessages{}
	logs := &logStore{}
	b := New(Options{Bus: bus, Clients: clients, Logs: logs, Logger: &nop})
	b.Start()
	t.Cleanup(b.Stop)
	return b, bus, clients, logs
}

func TestBridge_DecodesTxNotification(t *testing.T) {
	_, bus, clients, _ := setup(t)

	var events []*domain.TxEvent
	bus.Subscribe(eventbus.KindTxEvent, func(ev eventbus.Event) error {
		events = append(events, ev.Payload.(*domain.TxEvent))
		return nil
	})

	raw, err := os.ReadFile("testdata/pumpfun_buy.json")
	require.NoError(t, err)

	bus.Publish(eventbus.Event{Kind: eventbus.KindTxNotification, Payload: &domain.TxNotification{
		Signature:  "pumpBuyFixtureSig",
		ReceivedAt: 1700000000000,
		Payload:    json.RawMessage(raw),
	}})

	require.Len(t, events, 1)
	assert.Equal(t, "pumpBuyFixtureSig", events[0].Tx.Signature)

	var buy *domain.TxAction
	for i := range events[0].Actions {
		if events[0].Actions[i].Type == domain.ActionVenueBuy {
			buy = &events[0].Actions[i]
		}
	}
	require.NotNil(t, buy)
	assert.Equal(t, 35000.0, buy.TokenAmount)

	assert.Equal(t, []string{broadcast.TypeTxNotification, broadcast.TypeTxEvent}, clients.types())
}

func TestBridge_MalformedNotificationNotRepublished(t *testing.T) {
	_, bus, clients, _ := setup(t)

	published := 0
	bus.Subscribe(eventbus.KindTxEvent, func(eventbus.Event) error {
		published++
		return nil
	})

	bus.Publish(eventbus.Event{Kind: eventbus.KindTxNotification, Payload: &domain.TxNotification{
		Signature: "bad",
		Payload:   json.RawMessage(`{"params":{"result":{}}}`),
	}})

	assert.Equal(t, 0, published)
	assert.Equal(t, []string{broadcast.TypeTxNotification}, clients.types())
}

func TestBridge_RelaysBotEventsToOwner(t *testing.T) {
	_, bus, clients, _ := setup(t)

	bus.Publish(eventbus.Event{Kind: eventbus.KindBotStatus, Payload: &domain.BotStatus{BotID: "b1", UserID: "u1"}})
	bus.Publish(eventbus.Event{Kind: eventbus.KindBotTrade, Payload: &domain.TradeRecord{BotID: "b1", UserID: "u1"}})

	require.Len(t, clients.msgs, 2)
	assert.Equal(t, broadcast.TypeBotStatus, clients.msgs[0].Type)
	assert.Equal(t, "u1", clients.msgs[0].UserID)
	assert.Equal(t, broadcast.TypeBotTrade, clients.msgs[1].Type)
	assert.Equal(t, "u1", clients.msgs[1].UserID)
}

func TestBridge_LogsArePersisted(t *testing.T) {
	b, _, clients, logs := setup(t)

	b.LogServer("server started")
	entry := &domain.LogEntry{BotID: "b1", UserID: "u1", Info: "bought"}
	b.LogBot(entry)

	assert.Equal(t, []string{"server started"}, logs.server)
	require.Len(t, logs.bots, 1)
	assert.NotZero(t, logs.bots[0].Timestamp)

	assert.Equal(t, []string{broadcast.TypeServerLog, broadcast.TypeBotLog}, clients.types())
	assert.Equal(t, "", clients.msgs[0].UserID)
	assert.Equal(t, "u1", clients.msgs[1].UserID)
}

func TestBridge_PersistFailureStillBroadcasts(t *testing.T) {
	b, _, clients, logs := setup(t)
	logs.err = errors.New("redis down")

	b.LogServer("hello")
	assert.Equal(t, []string{broadcast.TypeServerLog}, clients.types())
}

func TestBridge_Stop(t *testing.T) {
	b, bus, clients, _ := setup(t)
	b.Stop()

	bus.Publish(eventbus.Event{Kind: eventbus.KindServerLog, Payload: "ignored"})
	assert.Empty(t, clients.types())
}
