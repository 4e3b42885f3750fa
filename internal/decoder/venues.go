package decoder

import (
	"fmt"
	"math"
	"strings"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/solana"
)

// decodeRaydium classifies a Raydium swap from the fee payer's token balance
// deltas. The swap is computed once per transaction so top-level and inner
// detections produce the same action.
func decodeRaydium(tx *txContext, ix *solana.Instruction, pos position) []domain.TxAction {
	if tx.swap == nil {
		a := raydiumSwap(tx.n, ix, pos)
		tx.swap = &a
	}
	return []domain.TxAction{*tx.swap}
}

func raydiumSwap(n *solana.Notification, ix *solana.Instruction, pos position) domain.TxAction {
	owner := n.FeePayer()
	sol := n.FeePayerSOLChange()

	pool := ""
	if len(ix.Accounts) > raydiumPoolIndex {
		pool = ix.Accounts[raydiumPoolIndex]
	}

	ev := pos.evidence(ix.ProgramID)
	ev["owner"] = owner
	ev["pool"] = pool

	mints, deltas := ownerTokenDeltas(n, owner)
	ev["deltas"] = deltas

	var mint string
	var delta float64
	for _, m := range mints {
		if m == solana.WrappedSOLMint {
			continue
		}
		if d := deltas[m]; math.Abs(d) > math.Abs(delta) {
			mint, delta = m, d
		}
	}

	if mint == "" || delta == 0 {
		return domain.TxAction{
			Type:        domain.ActionLiquiditySwap,
			Venue:       domain.VenueRaydium,
			Source:      owner,
			Destination: pool,
			SolChange:   sol,
			Inner:       pos.inner,
			Description: fmt.Sprintf("%s interacted with raydium pool %s", short(owner), short(pool)),
			Evidence:    ev,
		}
	}

	a := domain.TxAction{
		Venue:       domain.VenueRaydium,
		Source:      owner,
		Destination: pool,
		SolChange:   sol,
		TokenAmount: math.Abs(delta),
		Mint:        mint,
		Decimals:    knownDecimals(n.MintDecimals(mint)),
		Inner:       pos.inner,
		Evidence:    ev,
	}
	if delta > 0 {
		a.Type = domain.ActionVenueBuy
		a.Description = fmt.Sprintf("%s bought %s %s for %s SOL on raydium",
			short(owner), formatAmount(a.TokenAmount), short(mint), formatAmount(math.Abs(sol)))
	} else {
		a.Type = domain.ActionVenueSell
		a.Description = fmt.Sprintf("%s sold %s %s for %s SOL on raydium",
			short(owner), formatAmount(a.TokenAmount), short(mint), formatAmount(math.Abs(sol)))
	}
	return a
}

// ownerTokenDeltas returns post minus pre UI balance per mint for accounts
// owned by owner. Mints are listed in first-seen order, post rows first.
func ownerTokenDeltas(n *solana.Notification, owner string) ([]string, map[string]float64) {
	var mints []string
	deltas := make(map[string]float64)

	add := func(b solana.TokenBalance, sign float64) {
		if b.Owner != owner {
			return
		}
		if _, ok := deltas[b.Mint]; !ok {
			mints = append(mints, b.Mint)
		}
		deltas[b.Mint] += sign * b.UITokenAmount.Value()
	}

	for _, b := range n.PostTokenBalances {
		add(b, 1)
	}
	for _, b := range n.PreTokenBalances {
		add(b, -1)
	}
	return mints, deltas
}

// decodePumpFun pairs the inner native and token transfers of a pump.fun
// call. Direction comes from the program log markers.
func decodePumpFun(tx *txContext, ix *solana.Instruction, pos position) []domain.TxAction {
	n := tx.n
	owner := n.FeePayer()

	var mint, curve string
	if len(ix.Accounts) > pumpMintIndex {
		mint = ix.Accounts[pumpMintIndex]
	}
	if len(ix.Accounts) > pumpCurveIndex {
		curve = ix.Accounts[pumpCurveIndex]
	}

	var native, token *solana.Instruction
	group := tx.group(pos)
	for k := range group {
		g := &group[k]
		switch g.ProgramID {
		case solana.SystemProgramID:
			if !g.IsType("transfer") || g.InfoString("destination") == PumpFunFeeAccount {
				continue
			}
			// a transfer into the bonding curve beats router side payments
			if native == nil || (g.InfoString("destination") == curve && native.InfoString("destination") != curve) {
				native = g
			}
		case solana.TokenProgramID:
			if token == nil && (g.IsType("transfer") || g.IsType("transferChecked")) {
				token = g
			}
		}
	}

	marker := pumpMarker(n.LogMessages)

	ev := pos.evidence(ix.ProgramID)
	ev["marker"] = marker
	ev["bondingCurve"] = curve

	a := domain.TxAction{
		Type:        domain.ActionUnknown,
		Venue:       domain.VenuePumpFun,
		Source:      owner,
		Destination: curve,
		Mint:        mint,
		Inner:       pos.inner,
		Evidence:    ev,
	}

	if native != nil {
		a.SolChange = -lamportsToSOL(native.InfoUint("lamports"))
		ev["nativeTransfer"] = native.InfoUint("lamports")
	} else {
		a.SolChange = n.FeePayerSOLChange()
	}

	if token != nil {
		raw, decimals := token.TokenAmountInfo()
		if decimals < 0 {
			decimals = n.MintDecimals(mint)
		}
		a.TokenAmount = scaleToken(raw, decimals)
		a.Decimals = knownDecimals(decimals)
	}

	switch {
	case token == nil:
		a.Description = fmt.Sprintf("%s called pump.fun (%s) on %s", short(owner), markerOrNone(marker), short(mint))
	case marker == markerBuy:
		a.Type = domain.ActionVenueBuy
		a.Description = fmt.Sprintf("%s bought %s %s for %s SOL on pump.fun",
			short(owner), formatAmount(a.TokenAmount), short(mint), formatAmount(math.Abs(a.SolChange)))
	case marker == markerSell:
		a.Type = domain.ActionVenueSell
		a.Description = fmt.Sprintf("%s sold %s %s for %s SOL on pump.fun",
			short(owner), formatAmount(a.TokenAmount), short(mint), formatAmount(math.Abs(a.SolChange)))
	default:
		a.Description = fmt.Sprintf("%s pump.fun %s %s", short(owner), markerOrNone(marker), short(mint))
	}

	return []domain.TxAction{a}
}

// pumpMarker scans the logs in order; later matches override earlier ones.
func pumpMarker(logs []string) string {
	var marker string
	for _, line := range logs {
		if strings.Contains(line, markerSell) {
			marker = markerSell
		}
		if strings.Contains(line, markerBuy) {
			marker = markerBuy
		}
		if strings.Contains(line, markerCreate) {
			marker = markerCreate
		}
	}
	return marker
}

func markerOrNone(marker string) string {
	if marker == "" {
		return "no marker"
	}
	return strings.ToLower(marker)
}

// decodePhoton marks a Photon router call. The routed venue is decoded from
// the router's inner instructions.
func decodePhoton(tx *txContext, ix *solana.Instruction, pos position) []domain.TxAction {
	owner := tx.n.FeePayer()
	return []domain.TxAction{{
		Type:        domain.ActionUnknown,
		Venue:       domain.VenuePhoton,
		Source:      owner,
		Inner:       pos.inner,
		Description: fmt.Sprintf("%s routed through photon", short(owner)),
		Evidence:    pos.evidence(ix.ProgramID),
	}}
}
