// Package worker runs one copy-trading bot in an isolated process. It reads
// supervisor messages from stdin, mirrors the target trader's venue trades
// through the execution service and reports status, trades and logs on
// stdout.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/executor"
	"solana-copy-bot/internal/ipc"
	"solana-copy-bot/internal/solana"
	"solana-copy-bot/internal/strategy"
)

// State is the worker lifecycle state.
type State string

// Worker states.
const (
	StateInitializing State = "INITIALIZING"
	StateRunning      State = "RUNNING"
	StateStopping     State = "STOPPING"
	StateTerminated   State = "TERMINATED"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitConfigError = 1
)

// Defaults.
const (
	DefaultStatusInterval = time.Second
	DefaultStopGrace      = 10 * time.Second
)

// ErrInsufficientBalance is returned by the balance guard before a buy.
var ErrInsufficientBalance = errors.New("insufficient SOL balance")

// Trader executes decisions. *executor.Client implements it.
type Trader interface {
	Buy(ctx context.Context, req executor.BuyRequest) (*executor.Result, error)
	Sell(ctx context.Context, req executor.SellRequest) (*executor.Result, error)
	Transfer(ctx context.Context, req executor.TransferRequest) (*executor.Result, error)
}

// Options configures a Worker.
type Options struct {
	In       io.Reader
	Out      io.Writer
	Executor Trader
	// RPC enables the balance check before buys. Optional.
	RPC solana.RPCClient
	// ReserveLamports stays untouched by buys when RPC is set.
	ReserveLamports uint64

	StatusInterval time.Duration
	StopGrace      time.Duration
	Logger         *zerolog.Logger
}

type tradeResult struct {
	decision strategy.Decision
	result   *executor.Result
	err      error
}

// Worker is the bot runtime. Every field below is owned by the Run goroutine.
type Worker struct {
	in       io.Reader
	enc      *ipc.Encoder
	exec     Trader
	rpc      solana.RPCClient
	reserve  uint64
	interval time.Duration
	grace    time.Duration
	logger   zerolog.Logger

	state     State
	session   *strategy.Session
	publicKey string

	events    []*domain.TxEvent
	decisions []strategy.Decision
	inFlight  bool
	results   chan tradeResult
}

// New creates a worker.
func New(opts Options) *Worker {
	logger := log.Logger.With().Str("component", "worker").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	interval := opts.StatusInterval
	if interval <= 0 {
		interval = DefaultStatusInterval
	}
	grace := opts.StopGrace
	if grace <= 0 {
		grace = DefaultStopGrace
	}

	return &Worker{
		in:       opts.In,
		enc:      ipc.NewEncoder(opts.Out),
		exec:     opts.Executor,
		rpc:      opts.RPC,
		reserve:  opts.ReserveLamports,
		interval: interval,
		grace:    grace,
		logger:   logger,
		state:    StateInitializing,
		results:  make(chan tradeResult, 1),
	}
}

// State returns the lifecycle state. Only meaningful after Run returned or
// from the Run goroutine.
func (w *Worker) State() State { return w.state }

// Run processes supervisor messages until STOP, end of input or ctx
// cancellation and returns the process exit code.
func (w *Worker) Run(ctx context.Context) int {
	msgs := w.readMessages()

	spawn, ok := w.awaitSpawn(ctx, msgs)
	if !ok {
		w.state = StateTerminated
		return ExitOK
	}

	if code, err := w.start(spawn); err != nil {
		w.logger.Error().Err(err).Msg("bot failed to start")
		w.sendLog(fmt.Sprintf("bot failed to start: %v", err), map[string]any{"error": err.Error()})
		w.state = StateTerminated
		w.sendFinalStatus()
		return code
	}

	return w.loop(ctx, msgs)
}

// readMessages decodes stdin on its own goroutine. The channel closes at
// end of input.
func (w *Worker) readMessages() <-chan ipc.Message {
	out := make(chan ipc.Message, 64)
	go func() {
		defer close(out)
		dec := ipc.NewDecoder(w.in)
		for {
			msg, err := dec.Decode()
			if errors.Is(err, ipc.ErrMalformedFrame) {
				w.logger.Warn().Err(err).Msg("dropping supervisor frame")
				continue
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					w.logger.Warn().Err(err).Msg("supervisor input failed")
				}
				return
			}
			out <- msg
		}
	}()
	return out
}

func (w *Worker) awaitSpawn(ctx context.Context, msgs <-chan ipc.Message) (*ipc.SpawnPayload, bool) {
	for {
		select {
		case <-ctx.Done():
			return nil, false
		case msg, ok := <-msgs:
			if !ok {
				return nil, false
			}
			switch msg.Type {
			case ipc.TypeSpawn:
				p, err := msg.Spawn()
				if err != nil {
					w.logger.Warn().Err(err).Msg("invalid spawn message")
					continue
				}
				return p, true
			case ipc.TypeStop:
				return nil, false
			default:
				w.logger.Debug().Str("type", string(msg.Type)).Msg("ignoring message before spawn")
			}
		}
	}
}

func (w *Worker) start(p *ipc.SpawnPayload) (int, error) {
	bot := p.Bot
	if bot == nil {
		bot = &domain.Bot{ID: p.BotID, UserID: p.UserID}
	}
	strat := p.Strategy
	if strat == nil {
		strat = bot.Strategy
	}

	session, err := strategy.NewSession(bot, strat, p.TargetTrader)
	if err != nil {
		return ExitConfigError, err
	}
	if session.BotID == "" {
		session.BotID = p.BotID
	}

	publicKey := p.PublicKey
	if p.SecretKey != "" {
		if err := solana.ValidateSecretKey(p.SecretKey, p.PublicKey); err != nil {
			return ExitConfigError, fmt.Errorf("bot keypair: %w", err)
		}
		if publicKey == "" {
			publicKey, _ = solana.PublicKeyFromSecret(p.SecretKey)
		}
	}

	w.session = session
	w.publicKey = publicKey
	w.state = StateRunning

	w.logger.Info().
		Str("target", p.TargetTrader).
		Str("strategy", strat.Label()).
		Msg("bot started")
	w.sendLog(fmt.Sprintf("Starting bot with strategy: %s", strat.Label()), map[string]any{
		"targetTrader": p.TargetTrader,
		"maxBuyAmount": strat.MaxBuyAmount,
	})
	w.sendStatus()
	return ExitOK, nil
}

func (w *Worker) loop(ctx context.Context, msgs <-chan ipc.Message) int {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for w.state == StateRunning {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("signal received, stopping")
			w.state = StateStopping

		case <-ticker.C:
			w.sendStatus()

		case res := <-w.results:
			w.finishTrade(res)
			w.pump(ctx)

		case msg, ok := <-msgs:
			if !ok {
				w.logger.Info().Msg("supervisor input closed, stopping")
				w.state = StateStopping
				continue
			}
			w.handle(ctx, msg)
		}
	}

	ticker.Stop()
	w.drain()
	w.state = StateTerminated
	w.sendFinalStatus()
	w.logger.Info().Msg("bot stopped")
	return ExitOK
}

func (w *Worker) handle(ctx context.Context, msg ipc.Message) {
	switch msg.Type {
	case ipc.TypeTxEvent:
		p, err := msg.TxEvent()
		if err != nil || p.Event == nil {
			w.logger.Warn().Err(err).Msg("invalid tx event")
			return
		}
		w.events = append(w.events, p.Event)
		w.pump(ctx)

	case ipc.TypeStop:
		w.logger.Info().Msg("stop requested")
		w.state = StateStopping

	case ipc.TypeSpawn:
		w.logger.Warn().Msg("already spawned, ignoring")

	case ipc.TypeStatusUpdate, ipc.TypeTradeNotification, ipc.TypeLogEvent:
		w.logger.Warn().Str("type", string(msg.Type)).Msg("unexpected message from supervisor")

	default:
		w.logger.Warn().Str("type", string(msg.Type)).Msg("unknown message")
	}
}

// drain waits for the in-flight trade so its outcome is reported.
func (w *Worker) drain() {
	if !w.inFlight {
		return
	}
	timer := time.NewTimer(w.grace)
	defer timer.Stop()
	select {
	case res := <-w.results:
		w.finishTrade(res)
	case <-timer.C:
		w.logger.Warn().Msg("in-flight trade did not finish before stop")
	}
}

func (w *Worker) sendStatus() {
	if w.session == nil {
		return
	}
	st := w.session.Status(string(w.state), w.state == StateRunning)
	w.send(ipc.TypeStatusUpdate, &st)
}

func (w *Worker) sendFinalStatus() {
	if w.session == nil {
		w.send(ipc.TypeStatusUpdate, &domain.BotStatus{
			State:        string(w.state),
			TradeHistory: []domain.TradeRecord{},
			ReportedAt:   time.Now().UnixMilli(),
		})
		return
	}
	st := w.session.Status(string(w.state), false)
	w.send(ipc.TypeStatusUpdate, &st)
}

func (w *Worker) sendLog(info string, meta map[string]any) {
	w.send(ipc.TypeLogEvent, &ipc.LogPayload{Info: info, Meta: meta})
}

func (w *Worker) send(t ipc.Type, payload any) {
	if err := w.enc.Send(t, payload); err != nil {
		w.logger.Warn().Err(err).Str("type", string(t)).Msg("failed to report to supervisor")
	}
}
