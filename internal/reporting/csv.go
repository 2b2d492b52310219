package reporting

import (
	"encoding/csv"
	"strconv"
	"strings"

	"solana-trade-agent/internal/domain"
)

var csvHeader = []string{
	"seq", "trade_id", "timestamp_ms", "mode", "token_id", "side",
	"requested_amount", "filled_amount", "fill_price", "notional",
	"tx_ref", "exit_reason", "cost_basis", "realized_pnl", "profit_ratio", "percentage_change",
}

// RenderCSV renders the trade log as CSV, one row per trade in the given order.
func RenderCSV(trades []*domain.Trade) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	_ = w.Write(csvHeader)
	for _, t := range trades {
		txRef := ""
		if t.TxRef != nil {
			txRef = *t.TxRef
		}
		_ = w.Write([]string{
			strconv.FormatInt(t.Seq, 10),
			t.TradeID,
			strconv.FormatInt(t.Timestamp, 10),
			t.Mode.String(),
			t.TokenID,
			t.Side.String(),
			formatFloat(t.RequestedAmount),
			formatFloat(t.FilledAmount),
			formatFloat(t.FillPrice),
			formatFloat(t.Notional),
			txRef,
			t.ExitReason,
			formatOptional(t.CostBasis),
			formatOptional(t.RealizedPnL),
			formatOptional(t.ProfitRatio),
			formatOptional(t.PercentageChange),
		})
	}
	w.Flush()
	return sb.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 9, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
