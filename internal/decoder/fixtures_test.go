package decoder

import (
	"solana-copy-bot/internal/solana"
)

const (
	trader     = "7YttLkHDoNj9wyDur5pM1ejNaAvT9X4eqaYcHQqtj2G5"
	traderATA  = "9FmcCGJ8bsGWKJWqJrKTGNdBzDHKJcXaZxWp9tRLQnEE"
	other      = "3kHxgZV6ZQsaLyMtZz8TTFBgcHe3jVvsD5L6tH1bJNSx"
	otherATA   = "E4PZb5TLw7ikz8wJ4LR5sY6ahtHcLJn5A3e7XV4kBnDk"
	tokenMint  = "CzLSujWBLFsSjncfkh59rUFqvafWcY5tzedWJSuypump"
	curve      = "4rFPfC4D8ZKKMvsvTuqMZeQWFuVh5VsR9zV8YDvwZhVv"
	curveATA   = "HbF3b2ZHBdXmUg3s7Lz5mPqM8fW7G7ZZuUWxW6x4y2Rk"
	pumpGlobal = "4wTV1YmiEkRvAtNtsSGPtUrqRYQMe5SKy2uB4Jjaxnjf"
	pool       = "58oQChx4yWmvKdwLLZzBi4ChoCc2fqCUWBkwMihLYQo2"
)

func parsed(program, programID, typ string, info map[string]any) solana.Instruction {
	return solana.Instruction{
		Program:   program,
		ProgramID: programID,
		Parsed:    &solana.ParsedInstruction{Type: typ, Info: info},
	}
}

func systemTransfer(src, dst string, lamports uint64) solana.Instruction {
	return parsed("system", solana.SystemProgramID, "transfer", map[string]any{
		"source":      src,
		"destination": dst,
		"lamports":    float64(lamports),
	})
}

func tokenTransfer(srcAccount, dstAccount, authority, amount string) solana.Instruction {
	return parsed("spl-token", solana.TokenProgramID, "transfer", map[string]any{
		"source":      srcAccount,
		"destination": dstAccount,
		"authority":   authority,
		"amount":      amount,
	})
}

func program(programID string, accounts ...string) solana.Instruction {
	return solana.Instruction{
		ProgramID: programID,
		Accounts:  accounts,
		Data:      "3Bxs4h24hBtQy9rw",
	}
}

func balance(index int, mint, owner string, ui float64, decimals int) solana.TokenBalance {
	v := ui
	return solana.TokenBalance{
		AccountIndex:  index,
		Mint:          mint,
		Owner:         owner,
		ProgramID:     solana.TokenProgramID,
		UITokenAmount: solana.UITokenAmount{Decimals: decimals, UIAmount: &v},
	}
}

func keys(addresses ...string) []solana.AccountKey {
	out := make([]solana.AccountKey, len(addresses))
	for i, a := range addresses {
		out[i] = solana.AccountKey{Pubkey: a, Signer: i == 0, Writable: true}
	}
	return out
}

// pumpBuy is a trader buying 35000 tokens for 1 SOL plus a 0.01 SOL fee.
func pumpBuy() *solana.Notification {
	return &solana.Notification{
		Signature:   "pumpBuySig",
		Slot:        300,
		AccountKeys: keys(trader, traderATA, curve, curveATA, tokenMint, PumpFunFeeAccount),
		Instructions: []solana.Instruction{
			program("ComputeBudget111111111111111111111111111111"),
			program(PumpFun, pumpGlobal, PumpFunFeeAccount, tokenMint, curve, curveATA, traderATA, trader),
		},
		InnerInstructions: []solana.InnerGroup{{
			Index: 1,
			Instructions: []solana.Instruction{
				tokenTransfer(curveATA, traderATA, curve, "35000000000"),
				systemTransfer(trader, curve, 1_000_000_000),
				systemTransfer(trader, PumpFunFeeAccount, 10_000_000),
			},
		}},
		PreBalances:  []uint64{5_000_000_000, 0, 0, 0, 0, 0},
		PostBalances: []uint64{3_987_955_000, 2_039_280, 1_000_000_000, 0, 0, 10_000_000},
		PreTokenBalances: []solana.TokenBalance{
			balance(3, tokenMint, curve, 800000, 6),
		},
		PostTokenBalances: []solana.TokenBalance{
			balance(1, tokenMint, trader, 35000, 6),
			balance(3, tokenMint, curve, 765000, 6),
		},
		LogMessages: []string{
			"Program ComputeBudget111111111111111111111111111111 invoke [1]",
			"Program log: CreateIdempotent",
			"Program 6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P invoke [1]",
			"Program log: Instruction: Buy",
			"Program 6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P success",
		},
	}
}

// pumpSell is a trader selling 20000 tokens; proceeds arrive without a
// system transfer.
func pumpSell() *solana.Notification {
	return &solana.Notification{
		Signature:   "pumpSellSig",
		Slot:        301,
		AccountKeys: keys(trader, traderATA, curve, curveATA, tokenMint, PumpFunFeeAccount),
		Instructions: []solana.Instruction{
			program(PumpFun, pumpGlobal, PumpFunFeeAccount, tokenMint, curve, curveATA, traderATA, trader),
		},
		InnerInstructions: []solana.InnerGroup{{
			Index: 0,
			Instructions: []solana.Instruction{
				tokenTransfer(traderATA, curveATA, trader, "20000000000"),
			},
		}},
		PreBalances:  []uint64{3_000_000_000, 2_039_280, 1_000_000_000, 0, 0, 0},
		PostBalances: []uint64{3_600_000_000, 2_039_280, 400_000_000, 0, 0, 0},
		PreTokenBalances: []solana.TokenBalance{
			balance(1, tokenMint, trader, 35000, 6),
		},
		PostTokenBalances: []solana.TokenBalance{
			balance(1, tokenMint, trader, 15000, 6),
		},
		LogMessages: []string{
			"Program 6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P invoke [1]",
			"Program log: Instruction: Sell",
			"Program 6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P success",
		},
	}
}

// raydiumFixture moves the trader's token balance by tokenDelta and native
// balance by solDelta (lamports). The AMM is invoked both top-level and
// through a router's inner group.
func raydiumFixture(tokenDelta float64, solDelta int64) *solana.Notification {
	pre, post := 1000.0, 1000.0+tokenDelta
	preWSOL, postWSOL := 100000.0, 100000.0-tokenDelta*10
	return &solana.Notification{
		Signature:   "raydiumSig",
		Slot:        400,
		AccountKeys: keys(trader, traderATA, "wsolATA", pool),
		Instructions: []solana.Instruction{
			program(RaydiumAMMV4, solana.TokenProgramID, pool, "authority"),
			program("JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4", pool),
		},
		InnerInstructions: []solana.InnerGroup{{
			Index: 1,
			Instructions: []solana.Instruction{
				program(RaydiumAMMV4, solana.TokenProgramID, pool, "authority"),
			},
		}},
		PreBalances:  []uint64{5_000_000_000, 0, 0, 0},
		PostBalances: []uint64{uint64(5_000_000_000 + solDelta), 0, 0, 0},
		PreTokenBalances: []solana.TokenBalance{
			balance(1, tokenMint, trader, pre, 6),
			balance(2, solana.WrappedSOLMint, trader, preWSOL, 9),
		},
		PostTokenBalances: []solana.TokenBalance{
			balance(1, tokenMint, trader, post, 6),
			balance(2, solana.WrappedSOLMint, trader, postWSOL, 9),
		},
	}
}
