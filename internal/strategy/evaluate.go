package strategy

import (
	"github.com/shopspring/decimal"

	"solana-copy-bot/internal/domain"
)

// Action is what a decision asks the executor to do.
type Action string

// Decision actions.
const (
	ActionBuy   Action = "BUY"
	ActionSell  Action = "SELL"
	ActionEject Action = "EJECT"
)

// Skip reasons.
const (
	SkipNoVenueAction = "no venue action"
	SkipUntracked     = "untracked trader"
	SkipBuysDisabled  = "copy buys disabled"
	SkipSellsDisabled = "copy sells disabled"
	SkipNoPosition    = "no open position"
	SkipZeroSize      = "zero trade size"
	SkipInLine        = "position in line with trader"
	SkipNoExit        = "no exit threshold crossed"
	SkipCurveHandled  = "curve already complete"
)

var hundred = decimal.NewFromInt(100)

// Decision is the outcome of evaluating one event against the session.
type Decision struct {
	Execute bool
	// Tracked reports whether the event came from the mirrored trader.
	Tracked bool
	Skip    string

	Action Action
	Mint   string
	Venue  string
	Reason string

	// SolAmount is the SOL to spend on a buy.
	SolAmount decimal.Decimal
	// TokenAmount is the token amount to sell or eject.
	TokenAmount decimal.Decimal
	SellAll     bool

	// Price is the trader's observed price, SOL per token.
	Price          decimal.Decimal
	EffectiveRatio decimal.Decimal
	Destination    string

	SourceSignature string
}

// Side maps the decision action onto a trade side.
func (d Decision) Side() domain.TradeSide {
	if d.Action == ActionBuy {
		return domain.SideBuy
	}
	return domain.SideSell
}

func skip(d Decision, reason string) Decision {
	d.Execute = false
	d.Skip = reason
	return d
}

// PrimaryVenueAction returns the first venue buy or sell of actions.
func PrimaryVenueAction(actions []domain.TxAction) (domain.TxAction, bool) {
	for _, a := range actions {
		if a.IsVenueTrade() {
			return a, true
		}
	}
	return domain.TxAction{}, false
}

// Evaluate sizes and gates a venue trade observed on chain. Actions from
// any wallet other than the target are ignored without touching the session.
func (s *Session) Evaluate(action domain.TxAction, sourceSignature string) Decision {
	d := Decision{Mint: action.Mint, SourceSignature: sourceSignature}
	if !action.IsVenueTrade() {
		return skip(d, SkipNoVenueAction)
	}
	if action.Source != s.Target {
		return skip(d, SkipUntracked)
	}

	ts := s.token(action.Mint)
	if action.Decimals != nil {
		ts.Decimals = action.Decimals
	}
	d.Tracked = true
	d.Venue = routeVenue(ts, action.Venue)
	d.Price = dec(action.Price())

	if action.Type == domain.ActionVenueBuy {
		return s.evaluateBuy(ts, action, d)
	}
	return s.evaluateSell(ts, action, d)
}

func (s *Session) evaluateBuy(ts *TokenSession, action domain.TxAction, d Decision) Decision {
	traderSol := dec(action.SolChange).Abs()
	ts.TraderBought = ts.TraderBought.Add(dec(action.TokenAmount))

	if !s.Strategy.ShouldCopyBuys {
		return skip(d, SkipBuysDisabled)
	}
	if !traderSol.IsPositive() {
		return skip(d, SkipZeroSize)
	}

	amount := decimal.Min(traderSol.Mul(s.ratio), s.maxBuy)
	if !amount.IsPositive() {
		return skip(d, SkipZeroSize)
	}
	ts.EffectiveRatio = amount.Div(traderSol)

	d.Execute = true
	d.Action = ActionBuy
	d.Reason = domain.ReasonMirrorBuy
	d.SolAmount = amount
	d.EffectiveRatio = ts.EffectiveRatio
	if s.Strategy.ShouldEjectOnBuy {
		d.Destination = s.EjectAddress
	}
	return d
}

func (s *Session) evaluateSell(ts *TokenSession, action domain.TxAction, d Decision) Decision {
	traderTokens := dec(action.TokenAmount)
	ts.TraderSold = ts.TraderSold.Add(traderTokens)

	if !s.Strategy.ShouldCopySells {
		return skip(d, SkipSellsDisabled)
	}
	// never sell a position this bot did not open
	if !ts.TotalBought.IsPositive() {
		return skip(d, SkipNoPosition)
	}
	held := ts.Held()
	if !held.IsPositive() {
		return skip(d, SkipNoPosition)
	}

	size := traderTokens.Mul(ts.EffectiveRatio)
	if size.GreaterThanOrEqual(held) {
		size = held
		d.SellAll = true
	}
	if !size.IsPositive() {
		return skip(d, SkipZeroSize)
	}

	d.Execute = true
	d.Action = ActionSell
	d.Reason = domain.ReasonMirrorSell
	d.TokenAmount = size
	d.EffectiveRatio = ts.EffectiveRatio
	return d
}

// CheckExit sells the whole position of mint when price crosses the
// take-profit or stop-loss threshold relative to the last buy price.
func (s *Session) CheckExit(mint string, price float64, sourceSignature string) Decision {
	d := Decision{Mint: mint, Tracked: true, SourceSignature: sourceSignature, Price: dec(price)}
	ts := s.tokens[mint]
	if ts == nil || !ts.Held().IsPositive() {
		return skip(d, SkipNoPosition)
	}
	if !ts.LastBuyPrice.IsPositive() || !d.Price.IsPositive() {
		return skip(d, SkipNoExit)
	}

	change := d.Price.Sub(ts.LastBuyPrice).Div(ts.LastBuyPrice).Mul(hundred)
	tp := dec(s.Strategy.TakeProfitPercentage)
	sl := dec(s.Strategy.StopLossPercentage)

	switch {
	case tp.IsPositive() && change.GreaterThanOrEqual(tp):
		d.Reason = domain.ReasonTakeProfit
	case sl.IsPositive() && change.LessThanOrEqual(sl.Neg()):
		d.Reason = domain.ReasonStopLoss
	default:
		return skip(d, SkipNoExit)
	}

	d.Execute = true
	d.Action = ActionSell
	d.Venue = routeVenue(ts, domain.VenuePumpFun)
	d.TokenAmount = ts.Held()
	d.SellAll = true
	return d
}

// Reconcile sells mint down to the fraction the mirrored wallet still holds.
// It never buys up.
func (s *Session) Reconcile(mint string, price float64, sourceSignature string) Decision {
	d := Decision{Mint: mint, Tracked: true, SourceSignature: sourceSignature, Price: dec(price)}
	if !s.Strategy.ShouldCopySells {
		return skip(d, SkipSellsDisabled)
	}
	ts := s.tokens[mint]
	if ts == nil || !ts.TraderBought.IsPositive() || !ts.TotalBought.IsPositive() {
		return skip(d, SkipNoPosition)
	}
	held := ts.Held()
	if !held.IsPositive() {
		return skip(d, SkipNoPosition)
	}

	traderFrac := ts.TraderBought.Sub(ts.TraderSold).Div(ts.TraderBought)
	if traderFrac.IsNegative() {
		traderFrac = decimal.Zero
	}
	if traderFrac.GreaterThan(decimal.NewFromInt(1)) {
		traderFrac = decimal.NewFromInt(1)
	}
	ourFrac := held.Div(ts.TotalBought)
	if ourFrac.LessThanOrEqual(traderFrac) {
		return skip(d, SkipInLine)
	}

	target := ts.TotalBought.Mul(traderFrac)
	size := held.Sub(target)
	if !size.IsPositive() {
		return skip(d, SkipInLine)
	}

	d.Execute = true
	d.Action = ActionSell
	d.Reason = domain.ReasonReconcile
	d.Venue = routeVenue(ts, domain.VenuePumpFun)
	d.TokenAmount = size
	d.SellAll = target.IsZero()
	return d
}

// MarkCurveComplete flags the bonding curve of mint as complete. Later
// trades on the mint route to the AMM. Depending on the strategy the held
// position is sold or ejected.
func (s *Session) MarkCurveComplete(mint, sourceSignature string) Decision {
	d := Decision{Mint: mint, Tracked: true, SourceSignature: sourceSignature}
	ts := s.token(mint)
	if ts.PostCurve {
		return skip(d, SkipCurveHandled)
	}
	ts.PostCurve = true

	held := ts.Held()
	if !held.IsPositive() {
		return skip(d, SkipNoPosition)
	}

	switch {
	case s.Strategy.ShouldSellOnCurve:
		d.Action = ActionSell
		d.Reason = domain.ReasonCurveSell
		d.Venue = domain.VenueRaydium
	case s.Strategy.ShouldEjectOnCurve && s.EjectAddress != "":
		d.Action = ActionEject
		d.Reason = domain.ReasonCurveEject
		d.Destination = s.EjectAddress
	default:
		return skip(d, SkipNoExit)
	}

	d.Execute = true
	d.TokenAmount = held
	d.SellAll = true
	return d
}

// routeVenue picks the venue a trade is executed on. Router programs trade
// against the bonding curve until it completes.
func routeVenue(ts *TokenSession, venue string) string {
	if venue == domain.VenueRaydium || ts.PostCurve {
		return domain.VenueRaydium
	}
	return domain.VenuePumpFun
}
