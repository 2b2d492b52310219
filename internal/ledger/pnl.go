package ledger

import "github.com/shopspring/decimal"

// Realized holds the P&L of one SELL against the position's average cost basis.
type Realized struct {
	CostBasis        float64
	PnL              float64 // (sell_price - cost_basis) * qty
	ProfitRatio      float64 // sell_price / cost_basis
	PercentageChange float64 // (profit_ratio - 1) * 100
}

// ComputeRealized returns the realized P&L of selling qty at sellPrice.
// ok is false when the cost basis is not positive and no ratio can be formed.
func ComputeRealized(avgCost, sellPrice, qty float64) (Realized, bool) {
	if avgCost <= 0 {
		return Realized{}, false
	}

	cost := decimal.NewFromFloat(avgCost)
	price := decimal.NewFromFloat(sellPrice)

	ratio := price.Div(cost)
	return Realized{
		CostBasis:        avgCost,
		PnL:              price.Sub(cost).Mul(decimal.NewFromFloat(qty)).InexactFloat64(),
		ProfitRatio:      ratio.InexactFloat64(),
		PercentageChange: ratio.Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100)).InexactFloat64(),
	}, true
}

// Notional returns qty * price with decimal arithmetic.
func Notional(qty, price float64) float64 {
	return decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(price)).InexactFloat64()
}
