package domain

import (
	"math"
	"strconv"
)

// ActionType tags a decoded TxAction.
type ActionType string

// Action types produced by the decoder.
const (
	ActionNativeTransfer ActionType = "NATIVE_TRANSFER"
	ActionTokenTransfer  ActionType = "TOKEN_TRANSFER"
	ActionVenueBuy       ActionType = "VENUE_BUY"
	ActionVenueSell      ActionType = "VENUE_SELL"
	ActionLiquiditySwap  ActionType = "LIQUIDITY_SWAP"
	ActionFeeCollection  ActionType = "FEE_COLLECTION"
	ActionUnknown        ActionType = "UNKNOWN"
)

// Venue identifiers.
const (
	VenuePumpFun = "pumpfun"
	VenueRaydium = "raydium"
	VenuePhoton  = "photon"
)

// TxAction is a semantic event decoded from a chain transaction notification.
type TxAction struct {
	Type         ActionType     `json:"type"`
	Venue        string         `json:"venue,omitempty"`
	Source       string         `json:"source,omitempty"`
	Destination  string         `json:"destination,omitempty"`
	Destinations []string       `json:"destinations,omitempty"` // FEE_COLLECTION bursts
	SolChange    float64        `json:"solChange"`              // signed, from Source's perspective
	TokenAmount  float64        `json:"tokenAmount,omitempty"`  // UI units
	Mint         string         `json:"mint,omitempty"`
	Decimals     *int32         `json:"decimals,omitempty"` // mint decimals, nil when unknown
	Description  string         `json:"description"`
	Inner        bool           `json:"isInnerInstruction,omitempty"`
	Evidence     map[string]any `json:"rawInfo,omitempty"`
}

// IsVenueTrade reports whether the action is a venue buy or sell.
func (a TxAction) IsVenueTrade() bool {
	return a.Type == ActionVenueBuy || a.Type == ActionVenueSell
}

// Amount returns the magnitude used for equality between actions.
// Token-denominated actions compare token amounts; native ones compare SOL.
func (a TxAction) Amount() float64 {
	if a.TokenAmount != 0 {
		return a.TokenAmount
	}
	return math.Abs(a.SolChange)
}

// Key identifies an action by (type, source, destination, amount).
func (a TxAction) Key() string {
	return string(a.Type) + "|" + a.Source + "|" + a.Destination + "|" +
		strconv.FormatFloat(a.Amount(), 'g', -1, 64)
}

// Price returns SOL per token for venue trades, or 0 when undefined.
func (a TxAction) Price() float64 {
	if a.TokenAmount == 0 {
		return 0
	}
	return math.Abs(a.SolChange) / a.TokenAmount
}
