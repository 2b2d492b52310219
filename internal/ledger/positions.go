package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"solana-trade-agent/internal/domain"
)

// Derive replays trades (ordered by seq) into positions, one per (token, mode).
// Closed positions are included with Held == 0; callers filter with IsOpen.
// A BUY on a closed position starts a new lot with a fresh cost basis.
func Derive(trades []*domain.Trade) map[domain.PositionKey]*domain.Position {
	positions := make(map[domain.PositionKey]*domain.Position)

	for _, t := range trades {
		key := domain.PositionKey{TokenID: t.TokenID, Mode: t.Mode}
		p, ok := positions[key]
		if !ok {
			p = &domain.Position{TokenID: t.TokenID, Mode: t.Mode}
			positions[key] = p
		}
		apply(p, t)
	}

	return positions
}

// OpenPositions returns the open positions of mode derived from trades,
// ordered by OpenedAt then token id. An empty mode returns every mode.
func OpenPositions(trades []*domain.Trade, mode domain.Mode) []*domain.Position {
	var open []*domain.Position
	for _, p := range Derive(trades) {
		if !p.IsOpen() {
			continue
		}
		if mode != "" && p.Mode != mode {
			continue
		}
		open = append(open, p)
	}

	sort.Slice(open, func(i, j int) bool {
		if open[i].OpenedAt != open[j].OpenedAt {
			return open[i].OpenedAt < open[j].OpenedAt
		}
		if open[i].TokenID != open[j].TokenID {
			return open[i].TokenID < open[j].TokenID
		}
		return open[i].Mode < open[j].Mode
	})
	return open
}

func apply(p *domain.Position, t *domain.Trade) {
	held := decimal.NewFromFloat(p.Held)
	qty := decimal.NewFromFloat(t.FilledAmount)

	switch t.Side {
	case domain.SideBuy:
		if !p.IsOpen() {
			*p = domain.Position{TokenID: p.TokenID, Mode: p.Mode, OpenedAt: t.Timestamp}
			held = decimal.Zero
		}
		cost := held.Mul(decimal.NewFromFloat(p.AvgCost)).Add(qty.Mul(decimal.NewFromFloat(t.FillPrice)))
		held = held.Add(qty)
		if held.IsPositive() {
			p.AvgCost = cost.Div(held).InexactFloat64()
		}
		p.Buys++
	case domain.SideSell:
		held = held.Sub(qty)
		p.Sells++
	}

	p.Held = held.InexactFloat64()
	if p.Held <= domain.Epsilon {
		p.Held = 0
	}
	p.CostBasis = decimal.NewFromFloat(p.Held).Mul(decimal.NewFromFloat(p.AvgCost)).InexactFloat64()
	p.LastTradeAt = t.Timestamp
}

// ExpectedAvailable replays the trades of bal.Mode recorded after bal.BaseSeq
// against bal.StartingCapital: starting − Σ BUY notional + Σ SELL proceeds.
func ExpectedAvailable(trades []*domain.Trade, bal *domain.BalanceState) float64 {
	total := decimal.NewFromFloat(bal.StartingCapital)
	for _, t := range trades {
		if t.Mode != bal.Mode || t.Seq <= bal.BaseSeq {
			continue
		}
		total = total.Add(decimal.NewFromFloat(t.BalanceDelta()))
	}
	return total.InexactFloat64()
}

// lastSeq returns the largest seq in trades, or 0 for an empty log.
func lastSeq(trades []*domain.Trade) int64 {
	var seq int64
	for _, t := range trades {
		if t.Seq > seq {
			seq = t.Seq
		}
	}
	return seq
}
