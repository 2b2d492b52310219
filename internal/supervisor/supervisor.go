// Package supervisor watches open positions and sells them when an exit fires.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"solana-trade-agent/internal/domain"
	"solana-trade-agent/internal/executor"
	"solana-trade-agent/internal/market"
	"solana-trade-agent/internal/observability"
)

// Positions lists the open positions of a mode.
type Positions interface {
	OpenPositions(ctx context.Context, mode domain.Mode) ([]*domain.Position, error)
}

// Options configures a Supervisor.
type Options struct {
	Positions Positions
	Prices    market.Quoter
	// QuoteConcurrency bounds parallel price fetches. Default 8.
	QuoteConcurrency int
	Logger           *slog.Logger
}

// tracked is the per-position state kept across cycles.
type tracked struct {
	state    domain.PositionState
	hwm      float64
	hasHWM   bool
	openedAt int64 // identifies the lot; a reopened position starts fresh
}

// Outcome describes what happened to one position in one pass.
type Outcome struct {
	Position  *domain.Position
	Price     float64
	Fresh     bool // false when the position was carried forward without a price
	HighWater float64
	Reason    string // fired exit reason, empty if none
	State     domain.PositionState
	Execution *executor.Execution
	Err       error
}

// Supervisor runs the exit state machine for every open position.
// Supervise must not be called concurrently.
type Supervisor struct {
	positions   Positions
	prices      market.Quoter
	concurrency int
	logger      *slog.Logger

	states map[domain.PositionKey]*tracked
}

// New creates a Supervisor.
func New(opts Options) *Supervisor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	n := opts.QuoteConcurrency
	if n <= 0 {
		n = 8
	}
	return &Supervisor{
		positions:   opts.Positions,
		prices:      opts.Prices,
		concurrency: n,
		logger:      logger.With("component", "supervisor"),
		states:      make(map[domain.PositionKey]*tracked),
	}
}

// Supervise evaluates every open position of each mode that has an executor.
//
// Prices are fetched in parallel before any sell. A position without a fresh
// price is carried forward untouched. A failed sell leaves the position OPEN
// for the next pass. A ledger failure stops the pass and is returned.
func (s *Supervisor) Supervise(ctx context.Context, params ExitParams, executors map[domain.Mode]executor.Executor) ([]Outcome, error) {
	var positions []*domain.Position
	for _, mode := range []domain.Mode{domain.ModeSimulated, domain.ModeReal} {
		if executors[mode] == nil {
			continue
		}
		open, err := s.positions.OpenPositions(ctx, mode)
		if err != nil {
			return nil, err
		}
		observability.UpdateOpenPositions(mode.String(), len(open))
		positions = append(positions, open...)
	}
	s.prune(positions)

	quotes := s.fetchQuotes(ctx, positions)

	outcomes := make([]Outcome, 0, len(positions))
	for _, pos := range positions {
		if ctx.Err() != nil {
			break
		}
		out := s.step(ctx, pos, quotes[pos.TokenID], params, executors[pos.Mode])
		outcomes = append(outcomes, out)
		if errors.Is(out.Err, domain.ErrLedger) {
			return outcomes, out.Err
		}
	}
	return outcomes, nil
}

type quote struct {
	price float64
	ok    bool
}

// fetchQuotes gets one price per token. Failures become missing quotes.
func (s *Supervisor) fetchQuotes(ctx context.Context, positions []*domain.Position) map[string]quote {
	var (
		mu     sync.Mutex
		quotes = make(map[string]quote, len(positions))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	seen := make(map[string]bool, len(positions))
	for _, pos := range positions {
		id := pos.TokenID
		if seen[id] {
			continue
		}
		seen[id] = true
		g.Go(func() error {
			price, ok, err := s.prices.GetCurrentPrice(gctx, id)
			if err != nil {
				s.logger.Warn("price fetch failed", "token_id", id, "error", err)
				ok = false
			}
			if ok {
				if _, finite := domain.Value(&price); !finite || price <= 0 {
					ok = false
				}
			}
			mu.Lock()
			quotes[id] = quote{price: price, ok: ok}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return quotes
}

func (s *Supervisor) step(ctx context.Context, pos *domain.Position, q quote, params ExitParams, ex executor.Executor) Outcome {
	st := s.track(pos)
	out := Outcome{Position: pos, State: domain.PositionOpen}

	if !q.ok {
		observability.RecordStalePrice()
		s.logger.Debug("no fresh price, carrying position forward",
			"token_id", pos.TokenID, "mode", pos.Mode)
		out.HighWater = st.hwm
		return out
	}
	out.Price, out.Fresh = q.price, true

	if !st.hasHWM || q.price > st.hwm {
		st.hwm = q.price
		st.hasHWM = true
	}
	out.HighWater = st.hwm

	reason := CheckExit(params, pos.AvgCost, q.price, st.hwm, st.hasHWM)
	if reason == "" {
		return out
	}
	out.Reason = reason

	st.state = domain.PositionExiting
	s.logger.Info("exit fired",
		"token_id", pos.TokenID, "mode", pos.Mode, "reason", reason,
		"price", q.price, "avg_cost", pos.AvgCost, "high_water", st.hwm, "held", pos.Held)

	res, err := ex.Sell(ctx, pos.TokenID, nil, reason)
	if err != nil {
		st.state = domain.PositionOpen
		out.Err = err
		observability.RecordExit(reason, false)
		s.logger.Warn("exit sell failed, position stays open",
			"token_id", pos.TokenID, "mode", pos.Mode, "reason", reason, "error", err)
		return out
	}
	observability.RecordExit(reason, true)
	out.Execution = res

	if pos.Held-res.Fill.FilledAmount > domain.Epsilon {
		st.state = domain.PositionOpen
	} else {
		st.state = domain.PositionClosed
		delete(s.states, pos.Key())
	}
	out.State = st.state
	return out
}

func (s *Supervisor) track(pos *domain.Position) *tracked {
	st, ok := s.states[pos.Key()]
	if !ok || st.openedAt != pos.OpenedAt {
		st = &tracked{state: domain.PositionOpen, openedAt: pos.OpenedAt}
		s.states[pos.Key()] = st
	}
	return st
}

// prune drops state for positions that are no longer open.
func (s *Supervisor) prune(open []*domain.Position) {
	keep := make(map[domain.PositionKey]bool, len(open))
	for _, p := range open {
		keep[p.Key()] = true
	}
	for k := range s.states {
		if !keep[k] {
			delete(s.states, k)
		}
	}
}

// HighWater returns the recorded high-water mark of a position.
func (s *Supervisor) HighWater(key domain.PositionKey) (float64, bool) {
	st, ok := s.states[key]
	if !ok || !st.hasHWM {
		return 0, false
	}
	return st.hwm, true
}

// State returns the supervision state of a position. Untracked positions are CLOSED.
func (s *Supervisor) State(key domain.PositionKey) domain.PositionState {
	st, ok := s.states[key]
	if !ok {
		return domain.PositionClosed
	}
	return st.state
}
