package ledger

import (
	"testing"

	"solana-trade-agent/internal/domain"
)

func trade(token string, mode domain.Mode, side domain.Side, qty, price float64, ts int64) *domain.Trade {
	return &domain.Trade{
		TokenID: token, Mode: mode, Side: side,
		FilledAmount: qty, FillPrice: price, Notional: qty * price, Timestamp: ts,
	}
}

func TestDerive_VolumeWeightedCost(t *testing.T) {
	trades := []*domain.Trade{
		trade("X", domain.ModeSimulated, domain.SideBuy, 1, 2, 1),
		trade("X", domain.ModeSimulated, domain.SideBuy, 3, 4, 2),
	}

	p := Derive(trades)[domain.PositionKey{TokenID: "X", Mode: domain.ModeSimulated}]
	if p == nil {
		t.Fatal("position not derived")
	}
	if p.Held != 4 {
		t.Errorf("Held: got %f, want 4", p.Held)
	}
	if p.AvgCost != 3.5 {
		t.Errorf("AvgCost: got %f, want 3.5", p.AvgCost)
	}
	if p.CostBasis != 14 {
		t.Errorf("CostBasis: got %f, want 14", p.CostBasis)
	}
}

func TestDerive_NewLotAfterClose(t *testing.T) {
	trades := []*domain.Trade{
		trade("X", domain.ModeSimulated, domain.SideBuy, 1, 2, 1),
		trade("X", domain.ModeSimulated, domain.SideSell, 1, 3, 2),
		trade("X", domain.ModeSimulated, domain.SideBuy, 1, 5, 3),
	}

	p := Derive(trades)[domain.PositionKey{TokenID: "X", Mode: domain.ModeSimulated}]
	if p.AvgCost != 5 {
		t.Errorf("AvgCost: got %f, want 5 (fresh lot)", p.AvgCost)
	}
	if p.OpenedAt != 3 {
		t.Errorf("OpenedAt: got %d, want 3", p.OpenedAt)
	}
	if p.Buys != 1 || p.Sells != 0 {
		t.Errorf("lot counters: buys=%d sells=%d", p.Buys, p.Sells)
	}
}

func TestOpenPositions_SeparatesModes(t *testing.T) {
	trades := []*domain.Trade{
		trade("X", domain.ModeSimulated, domain.SideBuy, 1, 2, 2),
		trade("X", domain.ModeReal, domain.SideBuy, 1, 2, 1),
		trade("Y", domain.ModeSimulated, domain.SideBuy, 1, 2, 3),
		trade("Y", domain.ModeSimulated, domain.SideSell, 1, 2, 4),
	}

	sim := OpenPositions(trades, domain.ModeSimulated)
	if len(sim) != 1 || sim[0].TokenID != "X" {
		t.Errorf("unexpected simulated positions: %+v", sim)
	}

	all := OpenPositions(trades, "")
	if len(all) != 2 {
		t.Fatalf("expected 2 open positions, got %d", len(all))
	}
	if all[0].Mode != domain.ModeReal {
		t.Errorf("expected oldest (REAL) first, got %s", all[0].Mode)
	}
}

func TestExpectedAvailable(t *testing.T) {
	trades := []*domain.Trade{
		trade("X", domain.ModeSimulated, domain.SideBuy, 1, 2, 1),
		trade("X", domain.ModeSimulated, domain.SideSell, 1, 3, 2),
		trade("Z", domain.ModeReal, domain.SideBuy, 1, 100, 3),
	}

	for i, tr := range trades {
		tr.Seq = int64(i + 1)
	}

	bal := &domain.BalanceState{Mode: domain.ModeSimulated, StartingCapital: 10}
	if got := ExpectedAvailable(trades, bal); got != 11 {
		t.Errorf("ExpectedAvailable: got %f, want 11", got)
	}

	// trades up to BaseSeq are already part of the starting capital
	bal.BaseSeq = 1
	if got := ExpectedAvailable(trades, bal); got != 13 {
		t.Errorf("ExpectedAvailable after base: got %f, want 13", got)
	}
}

func TestComputeRealized(t *testing.T) {
	r, ok := ComputeRealized(2, 1.4, 1)
	if !ok {
		t.Fatal("expected ok")
	}
	if r.ProfitRatio != 0.7 {
		t.Errorf("ProfitRatio: got %f, want 0.7", r.ProfitRatio)
	}
	if r.PercentageChange != -30 {
		t.Errorf("PercentageChange: got %f, want -30", r.PercentageChange)
	}

	if _, ok := ComputeRealized(0, 1, 1); ok {
		t.Error("expected !ok for zero cost basis")
	}
}
