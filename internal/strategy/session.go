// Package strategy holds the copy-trading decision engine of one bot: the
// per-mint positions it opened, trade sizing against the mirrored trader and
// the bookkeeping applied after each fill.
//
// A Session is owned by a single goroutine and is not safe for concurrent use.
package strategy

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"solana-copy-bot/internal/domain"
)

// Session errors
var (
	ErrMissingBot      = errors.New("session requires a bot")
	ErrMissingStrategy = errors.New("bot has no active strategy")
	ErrMissingTarget   = errors.New("bot has no target trader")
)

// MaxTradeHistory bounds the trade history kept for status reports.
const MaxTradeHistory = 1000

// TokenSession is the bot's position in one mint. Token amounts are in UI
// units, SOL amounts in SOL.
type TokenSession struct {
	Mint string

	// EffectiveRatio is the realized scaling of the last mirrored buy.
	EffectiveRatio decimal.Decimal
	LastBuyPrice   decimal.Decimal

	TotalBought  decimal.Decimal
	TotalSold    decimal.Decimal
	TotalEjected decimal.Decimal
	SolSpent     decimal.Decimal
	SolReceived  decimal.Decimal
	ProfitPct    decimal.Decimal

	// Cumulative amounts traded by the mirrored wallet.
	TraderBought decimal.Decimal
	TraderSold   decimal.Decimal

	// PostCurve is set once the bonding curve of the mint completed.
	PostCurve bool

	// Decimals of the mint as last seen on chain, nil until known.
	Decimals *int32

	Trades []string // trade ids
}

// Held returns the tokens the bot still holds for the mint.
func (t *TokenSession) Held() decimal.Decimal {
	held := t.TotalBought.Sub(t.TotalSold).Sub(t.TotalEjected)
	if held.IsNegative() {
		return decimal.Zero
	}
	return held
}

// Session is the trading state of one running bot.
type Session struct {
	BotID    string
	UserID   string
	Target   string
	Strategy domain.Strategy

	EjectAddress        string
	PriorityFeeLamports uint64

	ratio  decimal.Decimal
	maxBuy decimal.Decimal

	tokens map[string]*TokenSession
	mints  []string

	tradesExecuted int
	errors         int
	lastTradeTime  *int64
	history        []domain.TradeRecord
	profitPct      decimal.Decimal

	now func() time.Time
}

// NewSession builds a session for bot mirroring target. The intended trade
// ratio comes from the strategy and falls back to the bot's buy ratio.
func NewSession(bot *domain.Bot, strategy *domain.Strategy, target string) (*Session, error) {
	if bot == nil {
		return nil, ErrMissingBot
	}
	if strategy == nil {
		return nil, ErrMissingStrategy
	}
	if target == "" {
		return nil, ErrMissingTarget
	}

	ratio := strategy.IntendedTradeRatio
	if ratio <= 0 {
		ratio = bot.BuyRatio
	}

	return &Session{
		BotID:               bot.ID,
		UserID:              bot.UserID,
		Target:              target,
		Strategy:            *strategy,
		EjectAddress:        bot.EjectAddress(),
		PriorityFeeLamports: bot.PriorityFeeLamports,
		ratio:               dec(ratio),
		maxBuy:              dec(strategy.MaxBuyAmount),
		tokens:              make(map[string]*TokenSession),
		now:                 time.Now,
	}, nil
}

// Token returns the position of mint, or nil when the bot never saw it.
func (s *Session) Token(mint string) *TokenSession {
	return s.tokens[mint]
}

func (s *Session) token(mint string) *TokenSession {
	ts, ok := s.tokens[mint]
	if !ok {
		ts = &TokenSession{Mint: mint}
		s.tokens[mint] = ts
		s.mints = append(s.mints, mint)
	}
	return ts
}

// NoteError counts a failure outside a trade, such as a failed balance check.
func (s *Session) NoteError() {
	s.errors++
}

// Status returns a status snapshot.
func (s *Session) Status(state string, active bool) domain.BotStatus {
	st := domain.BotStatus{
		BotID:               s.BotID,
		UserID:              s.UserID,
		Strategy:            s.Strategy.Label(),
		State:               state,
		IsActive:            active,
		TradesExecuted:      s.tradesExecuted,
		Errors:              s.errors,
		TradeHistory:        append([]domain.TradeRecord(nil), s.history...),
		CumulativeProfitPct: s.profitPct.InexactFloat64(),
		ReportedAt:          s.now().UnixMilli(),
	}
	if s.lastTradeTime != nil {
		t := *s.lastTradeTime
		st.LastTradeTime = &t
	}
	if st.TradeHistory == nil {
		st.TradeHistory = []domain.TradeRecord{}
	}

	for _, mint := range s.mints {
		ts := s.tokens[mint]
		st.Tokens = append(st.Tokens, domain.TokenSnapshot{
			Mint:           mint,
			EffectiveRatio: ts.EffectiveRatio.InexactFloat64(),
			LastBuyPrice:   ts.LastBuyPrice.InexactFloat64(),
			TotalBought:    ts.TotalBought.InexactFloat64(),
			TotalSold:      ts.TotalSold.InexactFloat64(),
			ProfitPct:      ts.ProfitPct.InexactFloat64(),
			PostCurve:      ts.PostCurve,
		})
	}
	return st
}

// CumulativeProfitPct returns the summed incremental profit of all sells.
func (s *Session) CumulativeProfitPct() float64 {
	return s.profitPct.InexactFloat64()
}

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
