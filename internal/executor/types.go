package executor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Endpoints of the execution service.
const (
	EndpointBuyPumpFun  = "buy-on-pumpfun"
	EndpointSellPumpFun = "sell-on-pumpfun"
	EndpointBuyRaydium  = "buy-on-raydium"
	EndpointSellRaydium = "sell-on-raydium"
	EndpointTransfer    = "transfer-spl-tokens"
)

// Executor errors.
var (
	// ErrCurveComplete is returned by bonding-curve endpoints once the mint
	// migrated to the AMM.
	ErrCurveComplete = errors.New("curve is complete")

	// ErrNotYetAvailable marks a transient failure where an on-chain account
	// is not visible to the service yet.
	ErrNotYetAvailable = errors.New("resource not yet available")

	// ErrUnsupportedVenue is returned for venues without an endpoint.
	ErrUnsupportedVenue = errors.New("unsupported venue")
)

// curveCompleteMarker is the error text the service returns after migration.
const curveCompleteMarker = "Curve is complete"

var notYetAvailableMarkers = []string{
	"not yet available",
	"could not find account",
	"account not found",
	"accountnotfound",
	"bonding curve account not found",
}

// TradeError is a failure reported by the execution service.
type TradeError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *TradeError) Error() string {
	return fmt.Sprintf("%s failed (status %d): %s", e.Endpoint, e.Status, e.Message)
}

// Unwrap maps known service messages onto sentinel errors.
func (e *TradeError) Unwrap() error {
	if strings.Contains(e.Message, curveCompleteMarker) {
		return ErrCurveComplete
	}
	msg := strings.ToLower(e.Message)
	for _, m := range notYetAvailableMarkers {
		if strings.Contains(msg, m) {
			return ErrNotYetAvailable
		}
	}
	return nil
}

// BuyRequest spends SOL on a mint.
type BuyRequest struct {
	BotID               string
	Mint                string
	Venue               string
	SolAmount           decimal.Decimal
	PriorityFeeLamports uint64
	// Destination receives the bought tokens instead of the bot wallet.
	Destination string
}

// SellRequest sells tokens of a mint. TokenAmount is in UI units and is
// sent in base units of TokenDecimals, DefaultTokenDecimals when nil.
type SellRequest struct {
	BotID               string
	Mint                string
	Venue               string
	TokenAmount         decimal.Decimal
	TokenDecimals       *int32
	SellAll             bool
	PriorityFeeLamports uint64
}

// TransferRequest moves tokens of a mint to another wallet.
type TransferRequest struct {
	BotID         string
	Mint          string
	ToAddress     string
	TokenAmount   decimal.Decimal
	TokenDecimals *int32
}

// Result is a successful execution.
type Result struct {
	Signature string
	Venue     string
	Endpoint  string
	// CurveCompleted reports that a bonding-curve call was rejected and the
	// trade went to the AMM instead.
	CurveCompleted bool
}

type buyBody struct {
	BotID               string `json:"botId"`
	MintAddress         string `json:"mintAddress"`
	AmountInLamports    uint64 `json:"amountInLamports"`
	PriorityFeeLamports uint64 `json:"priorityFeeInLamports"`
	DestinationAddress  string `json:"destinationAddress,omitempty"`
	APIKey              string `json:"apiKey"`
}

type sellBody struct {
	BotID               string `json:"botId"`
	MintAddress         string `json:"mintAddress"`
	TokenAmount         string `json:"tokenAmount"` // base units
	SellAll             bool   `json:"sellAll,omitempty"`
	PriorityFeeLamports uint64 `json:"priorityFeeInLamports"`
	APIKey              string `json:"apiKey"`
}

type transferBody struct {
	BotID       string `json:"botId"`
	MintAddress string `json:"mintAddress"`
	ToAddress   string `json:"toAddress"`
	Amount      string `json:"amount"` // base units
	APIKey      string `json:"apiKey"`
}

type response struct {
	Success       bool   `json:"success"`
	Signature     string `json:"signature"`
	BuySignature  string `json:"buySignature"`
	SellSignature string `json:"sellSignature"`
	SendSignature string `json:"sendSignature"`
	Error         any    `json:"error"`
}

func (r *response) signature() string {
	for _, s := range []string{r.Signature, r.BuySignature, r.SellSignature, r.SendSignature} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (r *response) message() string {
	switch v := r.Error.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

var lamportsPerSol = decimal.NewFromInt(1_000_000_000)

// Lamports converts a SOL amount to lamports, rounding down.
func Lamports(sol decimal.Decimal) uint64 {
	if !sol.IsPositive() {
		return 0
	}
	return uint64(sol.Mul(lamportsPerSol).Floor().IntPart())
}

// BaseUnits converts a UI token amount to base units, rounding down.
func BaseUnits(amount decimal.Decimal, decimals int32) string {
	if !amount.IsPositive() {
		return "0"
	}
	return amount.Shift(decimals).Floor().String()
}
