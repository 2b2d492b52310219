package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"solana-trade-agent/internal/domain"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(token_id|mode|side|ordinal|timestamp_ms|tx_ref)
// ordinal is the number of trades already recorded for (token_id, mode), which keeps
// two otherwise identical simulated fills in the same millisecond distinct.
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(f *domain.Fill, ordinal int) string {
	txRef := ""
	if f.TxRef != nil {
		txRef = *f.TxRef
	}

	data := fmt.Sprintf("%s|%s|%s|%d|%d|%s",
		f.TokenID,
		string(f.Mode),
		string(f.Side),
		ordinal,
		f.Timestamp,
		txRef,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
