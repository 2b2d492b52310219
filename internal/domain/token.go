package domain

import "math"

// TokenRecord is an immutable snapshot of a discovered token's market attributes.
// Numeric attributes are nullable: nil means the feed did not report the field.
type TokenRecord struct {
	TokenID        string   // unique on-chain id (mint address)
	Symbol         string   // display symbol, informational only
	PriceUSD       *float64 // spot price in capital units
	Volume24h      *float64 // 24h traded volume (USD)
	LiquidityUSD   *float64 // pool liquidity (USD)
	MarketCap      *float64 // market capitalization (USD)
	HolderCount    *int64   // number of holders
	PriceChange1h  *float64 // percentage, e.g. 12.5 = +12.5%
	PriceChange6h  *float64 // percentage
	PriceChange24h *float64 // percentage
	SafetyScore    *float64 // [0,10], higher is safer
	FetchedAt      int64    // Unix timestamp in milliseconds
}

// Value returns the dereferenced value of a nullable metric and whether it is usable.
// Nil, NaN and infinite values are all reported as unusable.
func Value(v *float64) (float64, bool) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0, false
	}
	return *v, true
}

// Holders returns the holder count as float64 and whether it was reported.
func (t *TokenRecord) Holders() (float64, bool) {
	if t.HolderCount == nil || *t.HolderCount < 0 {
		return 0, false
	}
	return float64(*t.HolderCount), true
}

// Price returns the record price and whether it is a usable positive value.
func (t *TokenRecord) Price() (float64, bool) {
	p, ok := Value(t.PriceUSD)
	if !ok || p <= 0 {
		return 0, false
	}
	return p, true
}
