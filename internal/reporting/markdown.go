package reporting

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Trading Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Balances
	sb.WriteString("## Balances\n\n")
	if len(r.Balances) > 0 {
		sb.WriteString("| Mode | Available | Starting Capital | Updated (ms) |\n")
		sb.WriteString("|------|-----------|------------------|--------------|\n")
		for _, b := range r.Balances {
			sb.WriteString(fmt.Sprintf("| %s | %.6f | %.6f | %d |\n",
				b.Mode, b.Available, b.StartingCapital, b.UpdatedAt))
		}
	} else {
		sb.WriteString("No balances initialized.\n")
	}
	sb.WriteString("\n")

	// Performance
	sb.WriteString("## Performance\n\n")
	if len(r.Summaries) > 0 {
		sb.WriteString("| Mode | Trades | Buys | Sells | Closed | Wins | Losses | WinRate | Spent | Returned | Realized P&L | Best % | Worst % |\n")
		sb.WriteString("|------|--------|------|-------|--------|------|--------|---------|-------|----------|--------------|--------|---------|\n")
		for _, s := range r.Summaries {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %d | %d | %d | %.4f | %.6f | %.6f | %.6f | %s | %s |\n",
				s.Mode, s.Trades, s.Buys, s.Sells, s.ClosedSells, s.Wins, s.Losses, s.WinRate,
				s.CapitalSpent, s.CapitalBack, s.RealizedPnL,
				pct(s.BestPctChange), pct(s.WorstPctChange)))
		}
		sb.WriteString("\n")

		for _, s := range r.Summaries {
			if len(s.ExitReasons) == 0 {
				continue
			}
			reasons := make([]string, 0, len(s.ExitReasons))
			for reason := range s.ExitReasons {
				reasons = append(reasons, reason)
			}
			sort.Strings(reasons)
			sb.WriteString(fmt.Sprintf("### Exits (%s)\n\n", s.Mode))
			sb.WriteString("| Reason | Count |\n")
			sb.WriteString("|--------|-------|\n")
			for _, reason := range reasons {
				sb.WriteString(fmt.Sprintf("| %s | %d |\n", reason, s.ExitReasons[reason]))
			}
			sb.WriteString("\n")
		}
	} else {
		sb.WriteString("No trades recorded.\n\n")
	}

	// Open Positions
	sb.WriteString("## Open Positions\n\n")
	if len(r.OpenPositions) > 0 {
		sb.WriteString("| Mode | Token | Held | Avg Cost | Cost Basis | Opened (ms) |\n")
		sb.WriteString("|------|-------|------|----------|------------|-------------|\n")
		for _, p := range r.OpenPositions {
			sb.WriteString(fmt.Sprintf("| %s | %s | %.9f | %.9f | %.6f | %d |\n",
				p.Mode, p.TokenID, p.Held, p.AvgCost, p.CostBasis, p.OpenedAt))
		}
	} else {
		sb.WriteString("No open positions.\n")
	}
	sb.WriteString("\n")

	// Integrity
	sb.WriteString("## Ledger Integrity\n\n")
	if len(r.IntegrityErrors) > 0 {
		for _, e := range r.IntegrityErrors {
			sb.WriteString(fmt.Sprintf("- %s\n", e))
		}
	} else {
		sb.WriteString("Trade log replay matches stored values.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

func pct(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
