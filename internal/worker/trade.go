package worker

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/executor"
	"solana-copy-bot/internal/ipc"
	"solana-copy-bot/internal/strategy"
)

// pump starts the next trade when none is in flight. Queued follow-up
// decisions run before new events are evaluated, so every event sees the
// session as of the last finished trade.
func (w *Worker) pump(ctx context.Context) {
	for !w.inFlight && w.state == StateRunning {
		if len(w.decisions) > 0 {
			d := w.decisions[0]
			w.decisions = w.decisions[1:]
			w.launch(ctx, d)
			continue
		}
		if len(w.events) == 0 {
			return
		}
		ev := w.events[0]
		w.events = w.events[1:]
		w.evaluate(ev)
	}
}

func (w *Worker) evaluate(ev *domain.TxEvent) {
	action, ok := strategy.PrimaryVenueAction(ev.Actions)
	if !ok {
		return
	}
	sig := ev.Tx.Signature

	d := w.session.Evaluate(action, sig)
	if !d.Execute && d.Tracked {
		if exit := w.session.CheckExit(action.Mint, action.Price(), sig); exit.Execute {
			d = exit
		}
	}
	if d.Tracked && !d.Execute {
		w.logger.Debug().
			Str("signature", sig).
			Str("mint", action.Mint).
			Str("skip", d.Skip).
			Msg("trade skipped")
	}
	w.enqueue(d)
}

func (w *Worker) enqueue(d strategy.Decision) {
	if d.Execute {
		w.decisions = append(w.decisions, d)
	}
}

// launch runs one decision against the executor. Requests are built here,
// on the loop goroutine, so the trade goroutine never touches the session.
func (w *Worker) launch(ctx context.Context, d strategy.Decision) {
	call, err := w.request(d)
	if err != nil {
		w.finishTrade(tradeResult{decision: d, err: err})
		return
	}

	w.inFlight = true
	w.logger.Info().
		Str("action", string(d.Action)).
		Str("reason", d.Reason).
		Str("mint", d.Mint).
		Str("venue", d.Venue).
		Msg("executing trade")

	// a stop must not abandon a submitted trade
	tradeCtx := context.WithoutCancel(ctx)
	go func() {
		res, err := call(tradeCtx)
		w.results <- tradeResult{decision: d, result: res, err: err}
	}()
}

func (w *Worker) request(d strategy.Decision) (func(context.Context) (*executor.Result, error), error) {
	s := w.session
	fee := w.priorityFee()

	switch d.Action {
	case strategy.ActionBuy:
		req := executor.BuyRequest{
			BotID:               s.BotID,
			Mint:                d.Mint,
			Venue:               d.Venue,
			SolAmount:           d.SolAmount,
			PriorityFeeLamports: fee,
			Destination:         d.Destination,
		}
		return func(ctx context.Context) (*executor.Result, error) {
			if err := w.checkBalance(ctx, req.SolAmount, fee); err != nil {
				return nil, err
			}
			return w.exec.Buy(ctx, req)
		}, nil

	case strategy.ActionSell:
		req := executor.SellRequest{
			BotID:               s.BotID,
			Mint:                d.Mint,
			Venue:               d.Venue,
			TokenAmount:         d.TokenAmount,
			TokenDecimals:       w.mintDecimals(d.Mint),
			SellAll:             d.SellAll,
			PriorityFeeLamports: fee,
		}
		return func(ctx context.Context) (*executor.Result, error) {
			return w.exec.Sell(ctx, req)
		}, nil

	case strategy.ActionEject:
		req := executor.TransferRequest{
			BotID:         s.BotID,
			Mint:          d.Mint,
			ToAddress:     d.Destination,
			TokenAmount:   d.TokenAmount,
			TokenDecimals: w.mintDecimals(d.Mint),
		}
		return func(ctx context.Context) (*executor.Result, error) {
			return w.exec.Transfer(ctx, req)
		}, nil
	}
	return nil, fmt.Errorf("unknown action %q", d.Action)
}

// mintDecimals returns the decimals the session saw for mint, or nil so the
// executor applies its default.
func (w *Worker) mintDecimals(mint string) *int32 {
	if ts := w.session.Token(mint); ts != nil {
		return ts.Decimals
	}
	return nil
}

func (w *Worker) priorityFee() uint64 {
	if w.session.PriorityFeeLamports > 0 {
		return w.session.PriorityFeeLamports
	}
	return executor.Lamports(decimal.NewFromFloat(w.session.Strategy.PriorityFee))
}

// checkBalance refuses a buy the wallet cannot pay for. RPC failures do not
// block the trade; the execution service has the final say.
func (w *Worker) checkBalance(ctx context.Context, sol decimal.Decimal, fee uint64) error {
	if w.rpc == nil || w.publicKey == "" {
		return nil
	}
	balance, err := w.rpc.GetBalance(ctx, w.publicKey)
	if err != nil {
		w.logger.Warn().Err(err).Msg("balance check failed")
		return nil
	}
	need := executor.Lamports(sol) + fee + w.reserve
	if balance < need {
		return fmt.Errorf("%w: have %d lamports, need %d", ErrInsufficientBalance, balance, need)
	}
	return nil
}

// finishTrade books a trade outcome and queues its follow-ups.
func (w *Worker) finishTrade(res tradeResult) {
	w.inFlight = false
	d := res.decision

	if res.err != nil {
		rec := w.session.RecordFailure(d, res.err)
		w.logger.Error().Err(res.err).
			Str("reason", d.Reason).
			Str("mint", d.Mint).
			Msg("trade failed")
		w.send(ipc.TypeTradeNotification, rec)
		w.sendLog(fmt.Sprintf("%s %s failed: %v", d.Reason, d.Mint, res.err), map[string]any{
			"mint":   d.Mint,
			"reason": d.Reason,
			"error":  res.err.Error(),
		})
		return
	}

	if res.result.Venue != "" {
		d.Venue = res.result.Venue
	}
	rec := w.session.ApplyFill(d, strategy.Fill{Signature: res.result.Signature})
	w.logger.Info().
		Str("reason", d.Reason).
		Str("mint", d.Mint).
		Str("signature", rec.Signature).
		Float64("sol", rec.SolAmount).
		Float64("tokens", rec.TokenAmount).
		Msg("trade executed")
	w.send(ipc.TypeTradeNotification, rec)
	w.sendLog(fmt.Sprintf("%s %s: %s", d.Reason, d.Mint, rec.Signature), map[string]any{
		"mint":                    d.Mint,
		"signature":               rec.Signature,
		"solAmount":               rec.SolAmount,
		"tokenAmount":             rec.TokenAmount,
		"profitPercent":           rec.ProfitPct,
		"cumulativeProfitPercent": w.session.CumulativeProfitPct(),
	})

	if res.result.CurveCompleted {
		w.enqueue(w.session.MarkCurveComplete(d.Mint, d.SourceSignature))
	}
	if d.Reason == domain.ReasonMirrorBuy || d.Reason == domain.ReasonMirrorSell {
		w.enqueue(w.session.Reconcile(d.Mint, d.Price.InexactFloat64(), d.SourceSignature))
	}
}
