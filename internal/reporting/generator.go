package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"solana-trade-agent/internal/domain"
	"solana-trade-agent/internal/ledger"
	"solana-trade-agent/internal/verification"
)

// LedgerReader is the read side of the ledger a report needs.
type LedgerReader interface {
	Snapshot(ctx context.Context, mode domain.Mode) (*ledger.Snapshot, error)
}

// Generator produces reports from the ledger.
type Generator struct {
	ledger   LedgerReader
	verifier verification.Verifier
	now      func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. verifier may be nil.
func NewGenerator(reader LedgerReader, verifier verification.Verifier) *Generator {
	return &Generator{
		ledger:   reader,
		verifier: verifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a complete report across both modes.
// Each mode is read as one snapshot, so its balance matches its trades.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	var trades []*domain.Trade
	report := &Report{GeneratedAt: g.now()}

	for _, mode := range []domain.Mode{domain.ModeSimulated, domain.ModeReal} {
		snap, err := g.ledger.Snapshot(ctx, mode)
		if err != nil {
			return nil, err
		}
		trades = append(trades, snap.Trades...)
		if snap.Balance != nil {
			report.Balances = append(report.Balances, snap.Balance)
		}

		if g.verifier == nil {
			continue
		}
		vr, err := g.verifier.Verify(ctx, mode)
		if err != nil {
			return nil, fmt.Errorf("verify %s: %w", mode, err)
		}
		report.IntegrityErrors = append(report.IntegrityErrors, integrityErrors(vr)...)
	}

	sort.SliceStable(trades, func(i, j int) bool { return trades[i].Seq < trades[j].Seq })
	report.Summaries = Summarize(trades)
	report.OpenPositions = ledger.OpenPositions(trades, "")
	return report, nil
}

// Summarize aggregates trades per mode. Modes without trades are omitted.
func Summarize(trades []*domain.Trade) []ModeSummary {
	type acc struct {
		s           ModeSummary
		spent, back decimal.Decimal
		realized    decimal.Decimal
	}
	byMode := make(map[domain.Mode]*acc)

	for _, t := range trades {
		a, ok := byMode[t.Mode]
		if !ok {
			a = &acc{s: ModeSummary{Mode: t.Mode, ExitReasons: map[string]int{}, FirstTradeMs: t.Timestamp}}
			byMode[t.Mode] = a
		}
		s := &a.s
		s.Trades++
		if t.Timestamp < s.FirstTradeMs {
			s.FirstTradeMs = t.Timestamp
		}
		if t.Timestamp > s.LastTradeMs {
			s.LastTradeMs = t.Timestamp
		}

		notional := decimal.NewFromFloat(t.Notional)
		if t.Side == domain.SideBuy {
			s.Buys++
			a.spent = a.spent.Add(notional)
			continue
		}

		s.Sells++
		a.back = a.back.Add(notional)
		if t.ExitReason != "" {
			s.ExitReasons[t.ExitReason]++
		}
		if t.RealizedPnL == nil {
			continue
		}
		s.ClosedSells++
		a.realized = a.realized.Add(decimal.NewFromFloat(*t.RealizedPnL))
		switch {
		case *t.RealizedPnL > 0:
			s.Wins++
		case *t.RealizedPnL < 0:
			s.Losses++
		}
		if pc := t.PercentageChange; pc != nil {
			if s.BestPctChange == nil || *pc > *s.BestPctChange {
				v := *pc
				s.BestPctChange = &v
			}
			if s.WorstPctChange == nil || *pc < *s.WorstPctChange {
				v := *pc
				s.WorstPctChange = &v
			}
		}
	}

	out := make([]ModeSummary, 0, len(byMode))
	for _, a := range byMode {
		s := a.s
		s.CapitalSpent = a.spent.InexactFloat64()
		s.CapitalBack = a.back.InexactFloat64()
		s.RealizedPnL = a.realized.InexactFloat64()
		if s.ClosedSells > 0 {
			s.WinRate = float64(s.Wins) / float64(s.ClosedSells)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mode < out[j].Mode })
	return out
}

func integrityErrors(vr *verification.VerificationReport) []string {
	var errs []string
	for _, r := range vr.Results {
		for _, d := range r.Divergences {
			errs = append(errs, fmt.Sprintf("%s seq %d (%s): %s expected %v, stored %v",
				vr.Mode, r.Seq, r.TokenID, d.Field, d.Expected, d.Actual))
		}
	}
	if b := vr.Balance; b != nil && !b.Match {
		errs = append(errs, fmt.Sprintf("%s balance: expected %.9f from trade log, stored %.9f",
			vr.Mode, b.Expected, b.Stored))
	}
	return errs
}
