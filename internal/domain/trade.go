package domain

// Trade is one persisted ledger row per Fill.
// Corresponds to trades table in PostgreSQL / SQLite.
type Trade struct {
	TradeID         string  // deterministic hash
	Seq             int64   // ledger-assigned append order (1-based)
	TokenID         string  // token id
	Side            Side    // BUY | SELL
	Mode            Mode    // SIMULATED | REAL
	RequestedAmount float64 // token quantity requested
	FilledAmount    float64 // token quantity filled
	FillPrice       float64 // capital units per token
	Notional        float64 // filled_amount * fill_price
	TxRef           *string // nullable for simulation
	Timestamp       int64   // Unix timestamp in milliseconds
	ExitReason      string  // set on supervisor-initiated sells

	// Realized P&L, populated for SELL trades only.
	CostBasis        *float64 // average cost basis of the position at sell time
	RealizedPnL      *float64 // (fill_price - cost_basis) * filled_amount
	PercentageChange *float64 // (profit_ratio - 1) * 100
	ProfitRatio      *float64 // fill_price / cost_basis
}

// BalanceDelta returns the signed effect of this trade on available capital.
func (t *Trade) BalanceDelta() float64 {
	if t.Side == SideBuy {
		return -t.Notional
	}
	return t.Notional
}

// IsWin reports whether a SELL trade realized a positive P&L.
func (t *Trade) IsWin() bool {
	return t.Side == SideSell && t.RealizedPnL != nil && *t.RealizedPnL > 0
}

// Exit reason codes.
const (
	ExitReasonStopLoss     = "STOP_LOSS"
	ExitReasonTakeProfit   = "TAKE_PROFIT"
	ExitReasonTrailingStop = "TRAILING_STOP"
	ExitReasonManual       = "MANUAL"
)
