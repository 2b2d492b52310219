// Package verification replays the trade log and checks it against what the
// ledger stored: trade ids, notionals, realized P&L and the simulated balance.
package verification

import (
	"context"
	"math"

	"solana-trade-agent/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // replayed value
	Actual   interface{} // stored value
}

// VerificationResult contains the result of verifying a single trade.
type VerificationResult struct {
	TradeID     string
	Seq         int64
	TokenID     string
	Match       bool
	Divergences []FieldDivergence
}

// BalanceCheck compares the stored available capital with the trade log replay.
type BalanceCheck struct {
	Expected float64 // starting capital + Σ balance deltas
	Stored   float64
	Match    bool
}

// VerificationReport contains the results for one mode.
type VerificationReport struct {
	Mode            domain.Mode
	TotalTrades     int
	MatchedTrades   int
	DivergentTrades int
	Results         []VerificationResult // divergent trades only
	Balance         *BalanceCheck        // nil when the mode is mirrored from an external source
}

// OK reports whether every check passed.
func (r *VerificationReport) OK() bool {
	return r.DivergentTrades == 0 && (r.Balance == nil || r.Balance.Match)
}

// Verifier verifies the ledger of one mode.
type Verifier interface {
	Verify(ctx context.Context, mode domain.Mode) (*VerificationReport, error)
}

// CompareTrades compares a stored trade with the trade rebuilt by replay.
func CompareTrades(stored, replayed *domain.Trade) []FieldDivergence {
	var divergences []FieldDivergence
	add := func(field string, expected, actual interface{}) {
		divergences = append(divergences, FieldDivergence{Field: field, Expected: expected, Actual: actual})
	}

	if stored.TradeID != replayed.TradeID {
		add("TradeID", replayed.TradeID, stored.TradeID)
	}
	if !floatEquals(stored.Notional, replayed.Notional) {
		add("Notional", replayed.Notional, stored.Notional)
	}
	if !floatPtrEquals(stored.CostBasis, replayed.CostBasis) {
		add("CostBasis", deref(replayed.CostBasis), deref(stored.CostBasis))
	}
	if !floatPtrEquals(stored.RealizedPnL, replayed.RealizedPnL) {
		add("RealizedPnL", deref(replayed.RealizedPnL), deref(stored.RealizedPnL))
	}
	if !floatPtrEquals(stored.ProfitRatio, replayed.ProfitRatio) {
		add("ProfitRatio", deref(replayed.ProfitRatio), deref(stored.ProfitRatio))
	}
	if !floatPtrEquals(stored.PercentageChange, replayed.PercentageChange) {
		add("PercentageChange", deref(replayed.PercentageChange), deref(stored.PercentageChange))
	}
	return divergences
}

// floatEquals compares two float64 values within FloatTolerance.
// NaN values are considered equal to each other.
func floatEquals(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return math.Abs(a-b) <= FloatTolerance
}

func floatPtrEquals(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return floatEquals(*a, *b)
}

func deref(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
