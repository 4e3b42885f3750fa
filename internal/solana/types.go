package solana

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Well-known program and account addresses.
const (
	SystemProgramID = "11111111111111111111111111111111"
	TokenProgramID  = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	ClockSysvar     = "SysvarC1ock11111111111111111111111111111111"
	WrappedSOLMint  = "So11111111111111111111111111111111111111112"

	LamportsPerSOL = 1_000_000_000
)

// DecodeError reports a malformed upstream notification.
type DecodeError struct {
	Field  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode notification: %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode notification: %s: %s", e.Field, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// AccountKey is one entry of a jsonParsed message account list.
type AccountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

// Instruction is a top-level or inner instruction in jsonParsed encoding.
// Parsed is nil for instructions the node could not parse.
type Instruction struct {
	Program     string             `json:"program,omitempty"`
	ProgramID   string             `json:"programId"`
	Accounts    []string           `json:"accounts,omitempty"`
	Data        string             `json:"data,omitempty"`
	Parsed      *ParsedInstruction `json:"-"`
	StackHeight *int               `json:"stackHeight,omitempty"`
}

// ParsedInstruction is the {type, info} object of a parsed instruction.
type ParsedInstruction struct {
	Type string         `json:"type"`
	Info map[string]any `json:"info"`
}

// IsType reports whether the instruction was parsed with the given type.
func (ix *Instruction) IsType(t string) bool {
	return ix.Parsed != nil && ix.Parsed.Type == t
}

// InfoString returns a string field of the parsed info, or "".
func (ix *Instruction) InfoString(key string) string {
	if ix.Parsed == nil {
		return ""
	}
	s, _ := ix.Parsed.Info[key].(string)
	return s
}

// InfoUint returns an integer field of the parsed info. The node encodes
// lamports as JSON numbers and token amounts as strings; both are accepted.
func (ix *Instruction) InfoUint(key string) uint64 {
	if ix.Parsed == nil {
		return 0
	}
	return toUint(ix.Parsed.Info[key])
}

// TokenAmountInfo returns raw amount and decimals for transfer and
// transferChecked instructions. Decimals is -1 when unknown.
func (ix *Instruction) TokenAmountInfo() (uint64, int) {
	if ix.Parsed == nil {
		return 0, -1
	}
	if ta, ok := ix.Parsed.Info["tokenAmount"].(map[string]any); ok {
		dec := -1
		if d, ok := ta["decimals"].(float64); ok {
			dec = int(d)
		}
		return toUint(ta["amount"]), dec
	}
	return toUint(ix.Parsed.Info["amount"]), -1
}

func toUint(v any) uint64 {
	switch x := v.(type) {
	case float64:
		if x < 0 {
			return 0
		}
		return uint64(x)
	case string:
		n, err := strconv.ParseUint(x, 10, 64)
		if err != nil {
			return 0
		}
		return n
	case json.Number:
		n, err := strconv.ParseUint(x.String(), 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// UnmarshalJSON accepts both object and string "parsed" payloads.
func (ix *Instruction) UnmarshalJSON(data []byte) error {
	type plain Instruction
	var raw struct {
		plain
		Parsed json.RawMessage `json:"parsed"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*ix = Instruction(raw.plain)
	if len(raw.Parsed) > 0 && raw.Parsed[0] == '{' {
		var p ParsedInstruction
		if err := json.Unmarshal(raw.Parsed, &p); err != nil {
			return err
		}
		ix.Parsed = &p
	}
	return nil
}

// InnerGroup holds the inner instructions triggered by top-level instruction Index.
type InnerGroup struct {
	Index        int           `json:"index"`
	Instructions []Instruction `json:"instructions"`
}

// UITokenAmount is the token amount block of a token balance row.
type UITokenAmount struct {
	Amount         string   `json:"amount"`
	Decimals       int      `json:"decimals"`
	UIAmount       *float64 `json:"uiAmount"`
	UIAmountString string   `json:"uiAmountString"`
}

// Value returns the UI amount, falling back to the string form.
func (u UITokenAmount) Value() float64 {
	if u.UIAmount != nil {
		return *u.UIAmount
	}
	f, _ := strconv.ParseFloat(u.UIAmountString, 64)
	return f
}

// TokenBalance is one pre/post token balance row.
type TokenBalance struct {
	AccountIndex  int           `json:"accountIndex"`
	Mint          string        `json:"mint"`
	Owner         string        `json:"owner"`
	ProgramID     string        `json:"programId"`
	UITokenAmount UITokenAmount `json:"uiTokenAmount"`
}

// Notification is a validated transaction notification.
type Notification struct {
	Signature         string
	Slot              int64
	AccountKeys       []AccountKey
	Instructions      []Instruction
	InnerInstructions []InnerGroup
	PreBalances       []uint64
	PostBalances      []uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	LogMessages       []string
	Fee               uint64
	Err               json.RawMessage
}

// FeePayer returns the first account key, the transaction owner.
func (n *Notification) FeePayer() string {
	if len(n.AccountKeys) == 0 {
		return ""
	}
	return n.AccountKeys[0].Pubkey
}

// FeePayerSOLChange returns post minus pre native balance of the fee payer in SOL.
func (n *Notification) FeePayerSOLChange() float64 {
	if len(n.PreBalances) == 0 || len(n.PostBalances) == 0 {
		return 0
	}
	return (float64(n.PostBalances[0]) - float64(n.PreBalances[0])) / LamportsPerSOL
}

// AccountAt returns the pubkey at index i, or "".
func (n *Notification) AccountAt(i int) string {
	if i < 0 || i >= len(n.AccountKeys) {
		return ""
	}
	return n.AccountKeys[i].Pubkey
}

// TokenAccount resolves a token account address to its balance row, looking
// at post balances first.
func (n *Notification) TokenAccount(address string) (TokenBalance, bool) {
	for _, rows := range [][]TokenBalance{n.PostTokenBalances, n.PreTokenBalances} {
		for _, b := range rows {
			if n.AccountAt(b.AccountIndex) == address {
				return b, true
			}
		}
	}
	return TokenBalance{}, false
}

// MintDecimals returns decimals for mint from the balance tables, or -1.
func (n *Notification) MintDecimals(mint string) int {
	for _, rows := range [][]TokenBalance{n.PostTokenBalances, n.PreTokenBalances} {
		for _, b := range rows {
			if b.Mint == mint {
				return b.UITokenAmount.Decimals
			}
		}
	}
	return -1
}

// wire shapes of the upstream notification envelope

type wireEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *wireError      `json:"error,omitempty"`
	Params  *wireParams     `json:"params,omitempty"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type wireParams struct {
	Subscription int64           `json:"subscription"`
	Result       json.RawMessage `json:"result"`
	Error        json.RawMessage `json:"error,omitempty"`
}

type wireTxResult struct {
	Signature   string `json:"signature"`
	Slot        int64  `json:"slot"`
	Transaction *struct {
		Transaction *struct {
			Signatures []string `json:"signatures"`
			Message    *struct {
				AccountKeys  []AccountKey  `json:"accountKeys"`
				Instructions []Instruction `json:"instructions"`
			} `json:"message"`
		} `json:"transaction"`
		Meta *struct {
			Err               json.RawMessage `json:"err"`
			Fee               uint64          `json:"fee"`
			PreBalances       []uint64        `json:"preBalances"`
			PostBalances      []uint64        `json:"postBalances"`
			InnerInstructions []InnerGroup    `json:"innerInstructions"`
			LogMessages       []string        `json:"logMessages"`
			PreTokenBalances  []TokenBalance  `json:"preTokenBalances"`
			PostTokenBalances []TokenBalance  `json:"postTokenBalances"`
		} `json:"meta"`
	} `json:"transaction"`
}

type wireAccountResult struct {
	Context struct {
		Slot int64 `json:"slot"`
	} `json:"context"`
	Value *struct {
		Data struct {
			Program string `json:"program"`
			Parsed  struct {
				Type string `json:"type"`
			} `json:"parsed"`
		} `json:"data"`
	} `json:"value"`
}
