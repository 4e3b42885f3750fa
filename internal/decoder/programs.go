package decoder

import "solana-copy-bot/internal/domain"

// Venue program IDs and fee accounts recognised by the decoder.
const (
	// RaydiumAMMV4 is the Raydium AMM v4 program ID.
	RaydiumAMMV4 = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	// PumpFun is the pump.fun bonding curve program ID.
	PumpFun = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	// PhotonRouter is the Photon trading router program ID.
	PhotonRouter = "BSfD6SHZigAfDWSjzD5Q41jw8LmKwtmjskPH9XW1mrRW"

	// RaydiumFeeAccount receives Raydium pool creation and swap fees.
	RaydiumFeeAccount = "AVUCZyuT35YSuj4RH7fwiyPu82Djn2Hfg7y2ND2XcnZH"
	// PumpFunFeeAccount receives pump.fun trading fees.
	PumpFunFeeAccount = "CebN5WGQ4jvEPvsVU4EoHEpgzq1VV7AbicfhtW4xC9iM"
)

// burstThreshold is the number of 1-lamport transfers above which they are
// reported as a single fee collection.
const burstThreshold = 10

// pump.fun log markers. When several appear, the last matching line wins.
const (
	markerSell   = "Sell"
	markerBuy    = "Buy"
	markerCreate = "CreateIdempotent"
)

// pump.fun instruction account layout (buy and sell).
const (
	pumpMintIndex  = 2
	pumpCurveIndex = 3
)

// raydiumPoolIndex is the AMM id position in swap instruction accounts.
const raydiumPoolIndex = 1

func feeVenue(address string) (string, bool) {
	switch address {
	case RaydiumFeeAccount:
		return domain.VenueRaydium, true
	case PumpFunFeeAccount:
		return domain.VenuePumpFun, true
	}
	return "", false
}
