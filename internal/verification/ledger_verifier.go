package verification

import (
	"context"
	"fmt"

	"solana-trade-agent/internal/domain"
	"solana-trade-agent/internal/idhash"
	"solana-trade-agent/internal/ledger"
)

// SnapshotSource reads the trades and balance of a mode at one point.
// *ledger.Ledger satisfies it.
type SnapshotSource interface {
	Snapshot(ctx context.Context, mode domain.Mode) (*ledger.Snapshot, error)
}

// LedgerVerifier replays the stored trade log of a mode.
type LedgerVerifier struct {
	source SnapshotSource
}

// NewLedgerVerifier creates a new LedgerVerifier.
func NewLedgerVerifier(source SnapshotSource) *LedgerVerifier {
	return &LedgerVerifier{source: source}
}

// Verify rebuilds every trade of mode from its predecessors and compares it with
// the stored row. SELLs beyond the held amount are reported as divergences.
// The balance is checked for SIMULATED only; REAL is mirrored from the wallet.
func (v *LedgerVerifier) Verify(ctx context.Context, mode domain.Mode) (*VerificationReport, error) {
	snap, err := v.source.Snapshot(ctx, mode)
	if err != nil {
		return nil, fmt.Errorf("read ledger snapshot: %w", err)
	}
	return VerifySnapshot(snap), nil
}

// VerifySnapshot verifies an already read snapshot.
func VerifySnapshot(snap *ledger.Snapshot) *VerificationReport {
	report := &VerificationReport{Mode: snap.Mode, TotalTrades: len(snap.Trades)}
	history := make(map[string][]*domain.Trade)

	for _, stored := range snap.Trades {
		prior := history[stored.TokenID]
		replayed, divs := replay(stored, prior)
		divs = append(divs, CompareTrades(stored, replayed)...)
		history[stored.TokenID] = append(prior, stored)

		if len(divs) == 0 {
			report.MatchedTrades++
			continue
		}
		report.DivergentTrades++
		report.Results = append(report.Results, VerificationResult{
			TradeID:     stored.TradeID,
			Seq:         stored.Seq,
			TokenID:     stored.TokenID,
			Divergences: divs,
		})
	}

	if snap.Mode == domain.ModeSimulated && snap.Balance != nil {
		expected := snap.ExpectedAvailable()
		report.Balance = &BalanceCheck{
			Expected: expected,
			Stored:   snap.Balance.Available,
			Match:    floatEquals(expected, snap.Balance.Available),
		}
	}
	return report
}

// replay rebuilds stored from the trades recorded before it for the same token.
func replay(stored *domain.Trade, prior []*domain.Trade) (*domain.Trade, []FieldDivergence) {
	fill := &domain.Fill{
		TokenID:   stored.TokenID,
		Side:      stored.Side,
		Mode:      stored.Mode,
		TxRef:     stored.TxRef,
		Timestamp: stored.Timestamp,
	}
	replayed := &domain.Trade{
		TradeID:  idhash.ComputeTradeID(fill, len(prior)),
		Notional: ledger.Notional(stored.FilledAmount, stored.FillPrice),
	}
	if stored.Side != domain.SideSell {
		return replayed, nil
	}

	var divs []FieldDivergence
	pos := ledger.Derive(prior)[domain.PositionKey{TokenID: stored.TokenID, Mode: stored.Mode}]
	if pos == nil || !pos.IsOpen() {
		return replayed, append(divs, FieldDivergence{Field: "Held", Expected: 0.0, Actual: stored.FilledAmount})
	}
	if stored.FilledAmount > pos.Held+domain.Epsilon {
		divs = append(divs, FieldDivergence{Field: "Held", Expected: pos.Held, Actual: stored.FilledAmount})
	}
	if r, ok := ledger.ComputeRealized(pos.AvgCost, stored.FillPrice, stored.FilledAmount); ok {
		replayed.CostBasis = &r.CostBasis
		replayed.RealizedPnL = &r.PnL
		replayed.ProfitRatio = &r.ProfitRatio
		replayed.PercentageChange = &r.PercentageChange
	}
	return replayed, divs
}

var _ Verifier = (*LedgerVerifier)(nil)
