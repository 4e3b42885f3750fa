package strategy

import (
	"github.com/shopspring/decimal"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/idhash"
)

// Fill is the executor's result for a decision. Zero amounts are estimated
// from the decision and the observed price.
type Fill struct {
	Signature   string
	SolAmount   float64
	TokenAmount float64
}

// ApplyFill books an executed decision into the session and returns the
// resulting trade record.
func (s *Session) ApplyFill(d Decision, f Fill) *domain.TradeRecord {
	ts := s.token(d.Mint)
	rec := s.newRecord(d)
	rec.Success = true
	rec.Signature = f.Signature

	switch d.Action {
	case ActionBuy:
		sol := d.SolAmount
		if f.SolAmount > 0 {
			sol = dec(f.SolAmount)
		}
		tokens := dec(f.TokenAmount)
		if tokens.IsZero() && d.Price.IsPositive() {
			tokens = sol.Div(d.Price)
		}

		ts.TotalBought = ts.TotalBought.Add(tokens)
		ts.SolSpent = ts.SolSpent.Add(sol)
		if tokens.IsPositive() {
			ts.LastBuyPrice = sol.Div(tokens)
		} else if d.Price.IsPositive() {
			ts.LastBuyPrice = d.Price
		}
		// bought straight into the eject wallet
		if d.Destination != "" {
			ts.TotalEjected = ts.TotalEjected.Add(tokens)
		}

		rec.SolAmount = sol.InexactFloat64()
		rec.TokenAmount = tokens.InexactFloat64()

	case ActionSell:
		tokens := d.TokenAmount
		if f.TokenAmount > 0 {
			tokens = dec(f.TokenAmount)
		}
		tokens = decimal.Min(tokens, ts.Held())
		sol := dec(f.SolAmount)
		if sol.IsZero() {
			sol = tokens.Mul(d.Price)
		}

		ts.TotalSold = ts.TotalSold.Add(tokens)
		ts.SolReceived = ts.SolReceived.Add(sol)

		if ts.LastBuyPrice.IsPositive() && d.Price.IsPositive() {
			pct := d.Price.Sub(ts.LastBuyPrice).Div(ts.LastBuyPrice).Mul(hundred)
			ts.ProfitPct = ts.ProfitPct.Add(pct)
			s.profitPct = s.profitPct.Add(pct)
			rec.ProfitPct = pct.InexactFloat64()
		}

		rec.SolAmount = sol.InexactFloat64()
		rec.TokenAmount = tokens.InexactFloat64()

	case ActionEject:
		tokens := decimal.Min(d.TokenAmount, ts.Held())
		ts.TotalEjected = ts.TotalEjected.Add(tokens)
		rec.TokenAmount = tokens.InexactFloat64()
	}

	s.tradesExecuted++
	ts.Trades = append(ts.Trades, rec.TradeID)
	at := rec.Timestamp
	s.lastTradeTime = &at
	s.appendHistory(*rec)
	return rec
}

// RecordFailure counts a failed execution and returns its trade record.
func (s *Session) RecordFailure(d Decision, err error) *domain.TradeRecord {
	s.errors++
	rec := s.newRecord(d)
	rec.Success = false
	if err != nil {
		rec.Error = err.Error()
	}
	switch d.Action {
	case ActionBuy:
		rec.SolAmount = d.SolAmount.InexactFloat64()
	default:
		rec.TokenAmount = d.TokenAmount.InexactFloat64()
	}
	s.appendHistory(*rec)
	return rec
}

func (s *Session) newRecord(d Decision) *domain.TradeRecord {
	side := d.Side()
	return &domain.TradeRecord{
		TradeID:         idhash.ComputeTradeID(s.BotID, d.SourceSignature, d.Mint, string(side), d.Reason),
		BotID:           s.BotID,
		UserID:          s.UserID,
		Mint:            d.Mint,
		Side:            side,
		Venue:           d.Venue,
		Reason:          d.Reason,
		Price:           d.Price.InexactFloat64(),
		SourceSignature: d.SourceSignature,
		Timestamp:       s.now().UnixMilli(),
	}
}

func (s *Session) appendHistory(rec domain.TradeRecord) {
	s.history = append(s.history, rec)
	if len(s.history) > MaxTradeHistory {
		s.history = s.history[len(s.history)-MaxTradeHistory:]
	}
}
