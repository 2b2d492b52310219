package reporting

import (
	"time"

	"solana-trade-agent/internal/domain"
)

// Report is the operator view of the ledger.
type Report struct {
	GeneratedAt time.Time

	// Summaries has one row per mode with trades, sorted by mode.
	Summaries []ModeSummary

	// Balances of every initialized mode.
	Balances []*domain.BalanceState

	// OpenPositions sorted by mode, token.
	OpenPositions []*domain.Position

	// IntegrityErrors lists ledger verification failures, empty when clean.
	IntegrityErrors []string
}

// ModeSummary aggregates the trade log of one execution mode.
type ModeSummary struct {
	Mode           domain.Mode
	Trades         int
	Buys           int
	Sells          int
	ClosedSells    int // SELLs with a realized P&L
	Wins           int
	Losses         int
	WinRate        float64 // wins / closed sells, 0 without closed sells
	CapitalSpent   float64 // Σ BUY notional
	CapitalBack    float64 // Σ SELL proceeds
	RealizedPnL    float64
	BestPctChange  *float64
	WorstPctChange *float64
	ExitReasons    map[string]int
	FirstTradeMs   int64
	LastTradeMs    int64
}
