package supervisor

import "solana-trade-agent/internal/domain"

// ExitParams are the operator's exit thresholds. A non-positive value disables its rule.
type ExitParams struct {
	TakeProfitMultiple float64 // e.g. 1.2 exits at +20% over average cost
	StopLossPct        float64 // fraction, e.g. 0.25 exits at -25%
	TrailingPct        float64 // fraction below the high-water mark
	TrailingEnabled    bool
}

// CheckExit returns the exit reason that fires at price, or "" if none does.
//
// Rules are checked in a fixed order and the first match wins:
//   - stop-loss:     price <= avgCost * (1 - StopLossPct)
//   - take-profit:   price >= avgCost * TakeProfitMultiple
//   - trailing stop: price <= hwm * (1 - TrailingPct), only with a recorded hwm
func CheckExit(p ExitParams, avgCost, price float64, hwm float64, hasHWM bool) string {
	if p.StopLossPct > 0 && price <= avgCost*(1-p.StopLossPct) {
		return domain.ExitReasonStopLoss
	}
	if p.TakeProfitMultiple > 0 && price >= avgCost*p.TakeProfitMultiple {
		return domain.ExitReasonTakeProfit
	}
	if p.TrailingEnabled && p.TrailingPct > 0 && hasHWM && price <= hwm*(1-p.TrailingPct) {
		return domain.ExitReasonTrailingStop
	}
	return ""
}
