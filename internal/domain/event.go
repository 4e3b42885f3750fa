package domain

import "encoding/json"

// TxNotification is an upstream transaction notification as cached and
// relayed to clients. Payload holds the raw upstream message.
type TxNotification struct {
	Signature  string          `json:"signature"`
	Slot       int64           `json:"slot"`
	ReceivedAt int64           `json:"timestamp"` // ms
	Payload    json.RawMessage `json:"payload"`
}

// TxEvent is a transaction notification together with its decoded actions.
type TxEvent struct {
	Tx      TxNotification `json:"tx"`
	Actions []TxAction     `json:"actions"`
}

// TokenSnapshot is the per-mint part of a bot status report.
type TokenSnapshot struct {
	Mint           string  `json:"mint"`
	EffectiveRatio float64 `json:"effectiveRatio"`
	LastBuyPrice   float64 `json:"lastBuyPrice"`
	TotalBought    float64 `json:"totalBought"`
	TotalSold      float64 `json:"totalSold"`
	ProfitPct      float64 `json:"profitPercent"`
	PostCurve      bool    `json:"postCurve,omitempty"`
}

// BotStatus is the periodic status snapshot a worker reports.
type BotStatus struct {
	BotID               string          `json:"botId"`
	UserID              string          `json:"userId,omitempty"`
	Strategy            string          `json:"strategy,omitempty"`
	State               string          `json:"state"`
	IsActive            bool            `json:"isActive"`
	TradesExecuted      int             `json:"tradesExecuted"`
	Errors              int             `json:"errors"`
	LastTradeTime       *int64          `json:"lastTradeTime"` // ms, nil before the first trade
	TradeHistory        []TradeRecord   `json:"tradeHistory"`
	CumulativeProfitPct float64         `json:"cumulativeProfitPercent"`
	Tokens              []TokenSnapshot `json:"tokens,omitempty"`
	ReportedAt          int64           `json:"reportedAt"` // ms
}

// LogEntry is a bot log line relayed to clients and the durable log.
type LogEntry struct {
	BotID     string         `json:"botId"`
	UserID    string         `json:"userId,omitempty"`
	Strategy  string         `json:"strategy,omitempty"`
	Info      string         `json:"info"`
	Meta      map[string]any `json:"data,omitempty"`
	Timestamp int64          `json:"timestamp"` // ms
}
