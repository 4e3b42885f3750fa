package domain

// TradeSide is the direction of a mirrored trade.
type TradeSide string

// Trade sides.
const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// TradeRecord is one executed (or failed) mirrored trade.
// Corresponds to the bot_trades table in ClickHouse.
type TradeRecord struct {
	TradeID         string    `json:"tradeId"` // deterministic hash
	BotID           string    `json:"botId"`
	UserID          string    `json:"userId,omitempty"`
	Mint            string    `json:"mint"`
	Side            TradeSide `json:"side"`
	Venue           string    `json:"venue"`
	Reason          string    `json:"reason"`    // reason code
	SolAmount       float64   `json:"solAmount"` // SOL spent (buy) or estimated received (sell)
	TokenAmount     float64   `json:"tokenAmount"`
	Price           float64   `json:"price"` // SOL per token observed on the mirrored trade
	ProfitPct       float64   `json:"profitPercent,omitempty"`
	Signature       string    `json:"signature,omitempty"`
	SourceSignature string    `json:"sourceSignature"` // mirrored trader transaction
	Success         bool      `json:"success"`
	Error           string    `json:"error,omitempty"`
	Timestamp       int64     `json:"timestamp"` // ms
}

// Trade reason codes
const (
	ReasonMirrorBuy  = "MIRROR_BUY"
	ReasonMirrorSell = "MIRROR_SELL"
	ReasonReconcile  = "RECONCILE"
	ReasonTakeProfit = "TAKE_PROFIT"
	ReasonStopLoss   = "STOP_LOSS"
	ReasonCurveSell  = "CURVE_SELL"
	ReasonCurveEject = "CURVE_EJECT"
)
