// Package idhash derives stable identifiers for persisted records.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ComputeTradeID returns hex(SHA256(bot_id|source_signature|mint|side|reason)).
//
// A mirrored transaction yields at most one trade per bot, mint, side and
// reason, so a redelivered source transaction maps to the same id and the
// trade store rejects it as a duplicate.
func ComputeTradeID(botID, sourceSignature, mint, side, reason string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{botID, sourceSignature, mint, side, reason}, "|")))
	return hex.EncodeToString(sum[:])
}
