package domain

// Strategy is the copy-trading configuration attached to a bot through its
// active trader/strategy union.
type Strategy struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	MaxBuyAmount         float64 `json:"maxBuyAmount"`         // SOL
	IntendedTradeRatio   float64 `json:"intendedTradeRatio"`   // bot buy ratio, 0 < r
	StopLossPercentage   float64 `json:"stopLossPercentage"`   // 0 disables
	TakeProfitPercentage float64 `json:"takeProfitPercentage"` // 0 disables
	ShouldCopyBuys       bool    `json:"shouldCopyBuys"`
	ShouldCopySells      bool    `json:"shouldCopySells"`
	ShouldEjectOnBuy     bool    `json:"shouldEjectOnBuy"`
	ShouldEjectOnCurve   bool    `json:"shouldEjectOnCurve"`
	ShouldSellOnCurve    bool    `json:"shouldSellOnCurve"`
	PriorityFee          float64 `json:"priorityFee"`        // SOL
	SlippagePercentage   float64 `json:"slippagePercentage"` // informational, forwarded to the executor
}

// Label returns a short strategy label used to tag events.
func (s *Strategy) Label() string {
	if s == nil {
		return ""
	}
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}
