// Package export streams decoded transactions and bot trades to Kafka for
// downstream analytics.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/eventbus"
)

// Defaults.
const (
	DefaultBufferSize    = 4096
	DefaultBatchSize     = 100
	DefaultFlushInterval = 200 * time.Millisecond
	writeTimeout         = 10 * time.Second
)

// Writer writes messages to Kafka. *kafka.Writer implements it.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds Kafka connection settings.
type Config struct {
	Brokers    []string
	TxTopic    string
	TradeTopic string
}

// NewWriter creates a writer that routes each message by its Topic field.
// Keys hash to partitions so events of one signature or bot stay ordered.
func NewWriter(cfg Config) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Options configures a Publisher.
type Options struct {
	Bus           *eventbus.Bus
	Writer        Writer
	TxTopic       string
	TradeTopic    string
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	Logger        *zerolog.Logger
}

// Publisher exports tx_event and bot_trade events. Bus handlers only enqueue;
// Run writes batches so a slow broker never stalls ingestion.
type Publisher struct {
	bus        *eventbus.Bus
	writer     Writer
	txTopic    string
	tradeTopic string
	batchSize  int
	interval   time.Duration
	logger     zerolog.Logger

	queue  chan kafka.Message
	unsubs []func()
}

// NewPublisher creates a publisher and subscribes it to the bus.
func NewPublisher(opts Options) (*Publisher, error) {
	if opts.Bus == nil || opts.Writer == nil {
		return nil, errors.New("export: bus and writer are required")
	}
	if opts.TxTopic == "" || opts.TradeTopic == "" {
		return nil, errors.New("export: topics are required")
	}

	logger := log.Logger.With().Str("component", "export").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	buffer := opts.BufferSize
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	interval := opts.FlushInterval
	if interval <= 0 {
		interval = DefaultFlushInterval
	}

	p := &Publisher{
		bus:        opts.Bus,
		writer:     opts.Writer,
		txTopic:    opts.TxTopic,
		tradeTopic: opts.TradeTopic,
		batchSize:  batch,
		interval:   interval,
		logger:     logger,
		queue:      make(chan kafka.Message, buffer),
	}
	p.unsubs = append(p.unsubs,
		opts.Bus.Subscribe(eventbus.KindTxEvent, p.onTxEvent),
		opts.Bus.Subscribe(eventbus.KindBotTrade, p.onTrade),
	)
	return p, nil
}

func (p *Publisher) onTxEvent(ev eventbus.Event) error {
	te, ok := ev.Payload.(*domain.TxEvent)
	if !ok {
		return fmt.Errorf("export: unexpected tx_event payload %T", ev.Payload)
	}
	return p.enqueue(p.txTopic, te.Tx.Signature, te)
}

func (p *Publisher) onTrade(ev eventbus.Event) error {
	tr, ok := ev.Payload.(*domain.TradeRecord)
	if !ok {
		return fmt.Errorf("export: unexpected bot_trade payload %T", ev.Payload)
	}
	return p.enqueue(p.tradeTopic, tr.BotID, tr)
}

func (p *Publisher) enqueue(topic, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("export: marshal %s: %w", topic, err)
	}
	msg := kafka.Message{Topic: topic, Key: []byte(key), Value: data, Time: time.Now()}
	select {
	case p.queue <- msg:
		return nil
	default:
		p.logger.Warn().Str("topic", topic).Str("key", key).Msg("export queue full, dropping message")
		return nil
	}
}

// Run writes queued messages until ctx is done, then flushes what is left,
// unsubscribes and closes the writer.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	batch := make([]kafka.Message, 0, p.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		if err := p.writer.WriteMessages(wctx, batch...); err != nil {
			p.logger.Error().Err(err).Int("messages", len(batch)).Msg("kafka write failed")
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			p.close()
		drain:
			for {
				select {
				case msg := <-p.queue:
					batch = append(batch, msg)
				default:
					break drain
				}
			}
			flush(context.Background())
			return p.writer.Close()

		case msg := <-p.queue:
			batch = append(batch, msg)
			if len(batch) >= p.batchSize {
				flush(ctx)
			}

		case <-ticker.C:
			flush(ctx)
		}
	}
}

func (p *Publisher) close() {
	for _, unsub := range p.unsubs {
		unsub()
	}
	p.unsubs = nil
}
