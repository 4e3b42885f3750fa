// Package supervisor owns the bot worker registry: it spawns one isolated
// worker per bot, routes decoded transactions to running workers, relays
// worker reports onto the event bus and observes worker exits.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/eventbus"
	"solana-copy-bot/internal/ipc"
	"solana-copy-bot/internal/observability"
	"solana-copy-bot/internal/storage"
)

// Supervisor errors.
var (
	ErrAlreadyRunning = errors.New("bot already running")
	ErrNotFound       = errors.New("bot not running")
)

const defaultQueueSize = 256

// Options configures a Supervisor.
type Options struct {
	Bus      *eventbus.Bus
	Bots     storage.BotStore
	Keys     storage.KeyStore
	Trades   storage.TradeStore // optional
	Launcher Launcher
	// QueueSize bounds the per-worker outbound queue.
	QueueSize int
	Logger    *zerolog.Logger
}

// Record describes a running worker.
type Record struct {
	BotID      string            `json:"botId"`
	UserID     string            `json:"userId"`
	Strategy   string            `json:"strategy"`
	PID        int               `json:"pid"`
	StartedAt  time.Time         `json:"startedAt"`
	LastStatus *domain.BotStatus `json:"lastStatus,omitempty"`
}

type worker struct {
	record Record
	proc   Process
	outbox chan ipc.Message
	unsub  func()
	done   chan struct{}
}

// Supervisor manages bot workers.
type Supervisor struct {
	bus      *eventbus.Bus
	bots     storage.BotStore
	keys     storage.KeyStore
	trades   storage.TradeStore
	launcher Launcher
	qsize    int
	logger   zerolog.Logger

	spawnMu sync.Mutex

	mu      sync.RWMutex
	workers map[string]*worker
}

// New creates a supervisor.
func New(opts Options) (*Supervisor, error) {
	if opts.Bus == nil || opts.Bots == nil || opts.Keys == nil || opts.Launcher == nil {
		return nil, errors.New("supervisor: bus, bots, keys and launcher are required")
	}

	logger := log.Logger.With().Str("component", "supervisor").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	qsize := opts.QueueSize
	if qsize <= 0 {
		qsize = defaultQueueSize
	}

	return &Supervisor{
		bus:      opts.Bus,
		bots:     opts.Bots,
		keys:     opts.Keys,
		trades:   opts.Trades,
		launcher: opts.Launcher,
		qsize:    qsize,
		logger:   logger,
		workers:  make(map[string]*worker),
	}, nil
}

// Spawn starts a worker for botID.
func (s *Supervisor) Spawn(ctx context.Context, botID string) (*Record, error) {
	s.spawnMu.Lock()
	defer s.spawnMu.Unlock()

	if _, ok := s.lookup(botID); ok {
		return nil, ErrAlreadyRunning
	}

	bot, err := s.bots.GetBot(ctx, botID)
	if err != nil {
		return nil, fmt.Errorf("load bot %s: %w", botID, err)
	}
	kp, err := s.keys.GetKeypair(ctx, botID)
	if err != nil {
		return nil, fmt.Errorf("load keypair %s: %w", botID, err)
	}

	proc, err := s.launcher.Launch(ctx, botID)
	if err != nil {
		return nil, fmt.Errorf("launch worker %s: %w", botID, err)
	}

	spawn, err := ipc.New(ipc.TypeSpawn, &ipc.SpawnPayload{
		BotID:        bot.ID,
		UserID:       bot.UserID,
		SecretKey:    kp.SecretKey,
		PublicKey:    kp.PublicKey,
		Bot:          bot,
		Strategy:     bot.Strategy,
		TargetTrader: bot.TargetAddress(),
	})
	if err == nil {
		err = proc.Send(spawn)
	}
	if err != nil {
		_ = proc.Kill()
		return nil, fmt.Errorf("send spawn %s: %w", botID, err)
	}

	w := &worker{
		record: Record{
			BotID:     bot.ID,
			UserID:    bot.UserID,
			Strategy:  bot.Strategy.Label(),
			PID:       proc.PID(),
			StartedAt: time.Now(),
		},
		proc:   proc,
		outbox: make(chan ipc.Message, s.qsize),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.workers[botID] = w
	active := len(s.workers)
	s.mu.Unlock()
	observability.SetActiveBots(active)

	w.unsub = s.bus.Subscribe(eventbus.KindTxEvent, func(ev eventbus.Event) error {
		return s.forward(w, ev)
	})

	go s.writeLoop(w)
	go s.monitor(w)

	s.logger.Info().
		Str("bot_id", botID).
		Str("user_id", bot.UserID).
		Int("pid", w.record.PID).
		Msg("worker spawned")

	rec := w.record
	return &rec, nil
}

// Stop asks a running worker to stop. It never kills the worker.
func (s *Supervisor) Stop(botID string) error {
	w, ok := s.lookup(botID)
	if !ok {
		s.logger.Warn().Str("bot_id", botID).Msg("stop requested for unknown bot")
		return ErrNotFound
	}
	if err := s.sendStop(w); err != nil {
		return fmt.Errorf("send stop %s: %w", botID, err)
	}
	s.logger.Info().Str("bot_id", botID).Msg("stop sent")
	return nil
}

// List returns running workers ordered by start time.
func (s *Supervisor) List() []Record {
	s.mu.RLock()
	out := make([]Record, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w.record)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].BotID < out[j].BotID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Status returns the record of a running worker.
func (s *Supervisor) Status(botID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[botID]
	if !ok {
		return Record{}, false
	}
	return w.record, true
}

// Shutdown stops every worker and waits for them to exit. Workers still
// running when ctx is done are killed.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	workers := make([]*worker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.RUnlock()

	for _, w := range workers {
		if err := s.sendStop(w); err != nil {
			s.logger.Warn().Err(err).Str("bot_id", w.record.BotID).Msg("failed to send stop")
		}
	}

	var killed int
	for _, w := range workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			if err := w.proc.Kill(); err != nil {
				s.logger.Warn().Err(err).Str("bot_id", w.record.BotID).Msg("failed to kill worker")
			}
			killed++
			<-w.done
		}
	}

	if killed > 0 {
		return fmt.Errorf("killed %d workers after shutdown deadline: %w", killed, ctx.Err())
	}
	return nil
}

func (s *Supervisor) lookup(botID string) (*worker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[botID]
	return w, ok
}

func (s *Supervisor) sendStop(w *worker) error {
	msg, _ := ipc.New(ipc.TypeStop, nil)
	return w.proc.Send(msg)
}

// forward queues a decoded transaction for one worker without blocking the bus.
func (s *Supervisor) forward(w *worker, ev eventbus.Event) error {
	txEvent, ok := ev.Payload.(*domain.TxEvent)
	if !ok {
		return fmt.Errorf("unexpected %s payload %T", ev.Kind, ev.Payload)
	}
	msg, err := ipc.New(ipc.TypeTxEvent, &ipc.TxEventPayload{
		BotID:    w.record.BotID,
		Strategy: w.record.Strategy,
		Event:    txEvent,
	})
	if err != nil {
		return err
	}

	select {
	case w.outbox <- msg:
	case <-w.done:
	default:
		s.logger.Warn().
			Str("bot_id", w.record.BotID).
			Str("signature", txEvent.Tx.Signature).
			Msg("worker queue full, dropping transaction")
	}
	return nil
}

func (s *Supervisor) writeLoop(w *worker) {
	for {
		select {
		case <-w.done:
			return
		case msg := <-w.outbox:
			if err := w.proc.Send(msg); err != nil {
				s.logger.Warn().Err(err).Str("bot_id", w.record.BotID).Msg("failed to forward to worker")
			}
		}
	}
}

// monitor relays worker output until it ends, then handles the exit.
func (s *Supervisor) monitor(w *worker) {
	for msg := range w.proc.Messages() {
		s.relay(w, msg)
	}

	code, err := w.proc.Wait()
	w.unsub()

	s.mu.Lock()
	if cur, ok := s.workers[w.record.BotID]; ok && cur == w {
		delete(s.workers, w.record.BotID)
	}
	active := len(s.workers)
	s.mu.Unlock()
	observability.SetActiveBots(active)

	crashed := err != nil || code != 0
	outcome := "clean"
	info := fmt.Sprintf("bot %s exited", w.record.BotID)
	if crashed {
		outcome = "crashed"
		info = fmt.Sprintf("bot %s crashed with exit code %d", w.record.BotID, code)
	}
	observability.RecordWorkerExit(outcome)

	ev := s.logger.Info()
	if crashed {
		ev = s.logger.Error().Err(err)
	}
	ev.Str("bot_id", w.record.BotID).Int("exit_code", code).Msg("worker exited")

	s.bus.Publish(eventbus.Event{Kind: eventbus.KindBotLog, Payload: &domain.LogEntry{
		BotID:     w.record.BotID,
		UserID:    w.record.UserID,
		Strategy:  w.record.Strategy,
		Info:      info,
		Meta:      map[string]any{"crashed": crashed, "exitCode": code},
		Timestamp: time.Now().UnixMilli(),
	}})

	close(w.done)
}

func (s *Supervisor) relay(w *worker, msg ipc.Message) {
	logger := s.logger.With().Str("bot_id", w.record.BotID).Str("type", string(msg.Type)).Logger()

	switch msg.Type {
	case ipc.TypeStatusUpdate:
		st, err := msg.Status()
		if err != nil {
			logger.Warn().Err(err).Msg("invalid worker message")
			return
		}
		st.BotID = w.record.BotID
		st.UserID = w.record.UserID
		if st.Strategy == "" {
			st.Strategy = w.record.Strategy
		}
		s.mu.Lock()
		w.record.LastStatus = st
		s.mu.Unlock()
		s.bus.Publish(eventbus.Event{Kind: eventbus.KindBotStatus, Payload: st})

	case ipc.TypeTradeNotification:
		tr, err := msg.Trade()
		if err != nil {
			logger.Warn().Err(err).Msg("invalid worker message")
			return
		}
		tr.BotID = w.record.BotID
		tr.UserID = w.record.UserID
		observability.RecordTrade(string(tr.Side), tr.Success)
		s.storeTrade(logger, tr)
		s.bus.Publish(eventbus.Event{Kind: eventbus.KindBotTrade, Payload: tr})

	case ipc.TypeLogEvent:
		l, err := msg.Log()
		if err != nil {
			logger.Warn().Err(err).Msg("invalid worker message")
			return
		}
		s.bus.Publish(eventbus.Event{Kind: eventbus.KindBotLog, Payload: &domain.LogEntry{
			BotID:     w.record.BotID,
			UserID:    w.record.UserID,
			Strategy:  w.record.Strategy,
			Info:      l.Info,
			Meta:      l.Meta,
			Timestamp: time.Now().UnixMilli(),
		}})

	case ipc.TypeSpawn, ipc.TypeStop, ipc.TypeTxEvent:
		logger.Warn().Msg("unexpected message from worker")

	default:
		logger.Warn().Msg("unknown message from worker")
	}
}

func (s *Supervisor) storeTrade(logger zerolog.Logger, tr *domain.TradeRecord) {
	if s.trades == nil || tr.TradeID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.trades.InsertTrade(ctx, tr); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		logger.Warn().Err(err).Str("trade_id", tr.TradeID).Msg("failed to store trade")
	}
}
