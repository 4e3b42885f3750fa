package decoder

import (
	"fmt"
	"math"
	"strconv"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/solana"
)

func decodeSystem(tx *txContext, ix *solana.Instruction, pos position) []domain.TxAction {
	if !ix.IsType("transfer") {
		return nil
	}

	src := ix.InfoString("source")
	dst := ix.InfoString("destination")
	sol := lamportsToSOL(ix.InfoUint("lamports"))

	a := domain.TxAction{
		Type:        domain.ActionNativeTransfer,
		Source:      src,
		Destination: dst,
		SolChange:   -sol,
		Inner:       pos.inner,
		Description: fmt.Sprintf("%s sent %s SOL to %s", short(src), formatAmount(sol), short(dst)),
		Evidence:    pos.evidence(ix.ProgramID),
	}

	if venue, ok := feeVenue(dst); ok && pos.inner {
		a.Type = domain.ActionFeeCollection
		a.Venue = venue
		a.Description = fmt.Sprintf("%s paid %s SOL %s fee", short(src), formatAmount(sol), venue)
	}

	return []domain.TxAction{a}
}

func decodeToken(tx *txContext, ix *solana.Instruction, pos position) []domain.TxAction {
	if !ix.IsType("transfer") && !ix.IsType("transferChecked") {
		return nil
	}

	srcAccount := ix.InfoString("source")
	dstAccount := ix.InfoString("destination")
	raw, decimals := ix.TokenAmountInfo()
	mint := ix.InfoString("mint")

	source := srcAccount
	if b, ok := tx.n.TokenAccount(srcAccount); ok {
		if b.Owner != "" {
			source = b.Owner
		}
		if mint == "" {
			mint = b.Mint
		}
		if decimals < 0 {
			decimals = b.UITokenAmount.Decimals
		}
	} else if auth := ix.InfoString("authority"); auth != "" {
		source = auth
	}

	dest := dstAccount
	if b, ok := tx.n.TokenAccount(dstAccount); ok {
		if b.Owner != "" {
			dest = b.Owner
		}
		if mint == "" {
			mint = b.Mint
		}
		if decimals < 0 {
			decimals = b.UITokenAmount.Decimals
		}
	}

	amount := scaleToken(raw, decimals)
	ev := pos.evidence(ix.ProgramID)
	ev["sourceAccount"] = srcAccount
	ev["destinationAccount"] = dstAccount
	ev["rawAmount"] = strconv.FormatUint(raw, 10)

	return []domain.TxAction{{
		Type:        domain.ActionTokenTransfer,
		Source:      source,
		Destination: dest,
		TokenAmount: amount,
		Mint:        mint,
		Decimals:    knownDecimals(decimals),
		Inner:       pos.inner,
		Description: fmt.Sprintf("%s sent %s %s to %s", short(source), formatAmount(amount), short(mint), short(dest)),
		Evidence:    ev,
	}}
}

// detectFeeBurst reports more than burstThreshold top-level 1-lamport native
// transfers from a single source as one fee collection. It returns the
// consumed instruction indices.
func detectFeeBurst(n *solana.Notification) (domain.TxAction, map[int]struct{}, bool) {
	var source string
	var destinations []string
	indices := make(map[int]struct{})

	for i := range n.Instructions {
		ix := &n.Instructions[i]
		if ix.ProgramID != solana.SystemProgramID || !ix.IsType("transfer") || ix.InfoUint("lamports") != 1 {
			continue
		}
		src := ix.InfoString("source")
		if source == "" {
			source = src
		} else if src != source {
			return domain.TxAction{}, nil, false
		}
		indices[i] = struct{}{}
		destinations = append(destinations, ix.InfoString("destination"))
	}

	if len(indices) <= burstThreshold {
		return domain.TxAction{}, nil, false
	}

	return domain.TxAction{
		Type:         domain.ActionFeeCollection,
		Source:       source,
		Destinations: destinations,
		SolChange:    -lamportsToSOL(uint64(len(destinations))),
		Description:  fmt.Sprintf("%s sent 1 lamport to %d addresses", short(source), len(destinations)),
		Evidence:     map[string]any{"transfers": len(destinations)},
	}, indices, true
}

func lamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / solana.LamportsPerSOL
}

// scaleToken converts a raw token amount to UI units. Unknown decimals
// leave the raw amount.
func scaleToken(raw uint64, decimals int) float64 {
	if decimals <= 0 {
		return float64(raw)
	}
	return float64(raw) / math.Pow10(decimals)
}

// knownDecimals returns nil for the -1 "unknown" marker.
func knownDecimals(d int) *int32 {
	if d < 0 {
		return nil
	}
	v := int32(d)
	return &v
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// short abbreviates an address for descriptions.
func short(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:4] + ".." + address[len(address)-4:]
}
