// Package engine drives the trading cycle.
// Each cycle runs: discover → evaluate → buy → supervise → record.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	cacheredis "solana-trade-agent/internal/cache/redis"
	"solana-trade-agent/internal/config"
	"solana-trade-agent/internal/domain"
	"solana-trade-agent/internal/evaluator"
	"solana-trade-agent/internal/executor"
	"solana-trade-agent/internal/observability"
	"solana-trade-agent/internal/risk"
	"solana-trade-agent/internal/storage"
	"solana-trade-agent/internal/supervisor"
)

// LeaseKey is the lease taken around every cycle when a Lease is configured.
const LeaseKey = "cycle"

// Cycle statuses reported in CycleReport and metrics.
const (
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
	StatusSkipped   = "skipped"
)

// Candidates discovers token records.
type Candidates interface {
	ListCandidates(ctx context.Context) ([]*domain.TokenRecord, error)
}

// PriceObserver records prices carried on discovered records.
type PriceObserver interface {
	ObserveRecords(ctx context.Context, recs []*domain.TokenRecord)
}

// Ledger is the read side of the ledger the loop needs for sizing.
type Ledger interface {
	Balance(ctx context.Context, mode domain.Mode) (*domain.BalanceState, error)
	OpenPositions(ctx context.Context, mode domain.Mode) ([]*domain.Position, error)
}

// Supervisor runs exits over open positions.
type Supervisor interface {
	Supervise(ctx context.Context, params supervisor.ExitParams, executors map[domain.Mode]executor.Executor) ([]supervisor.Outcome, error)
}

// ConfigSource returns the configuration snapshot for the next cycle.
type ConfigSource interface {
	Current() config.Config
}

// Lease serializes cycles across processes.
type Lease interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// SlippageSetter receives the configured simulated slippage before each cycle.
type SlippageSetter interface {
	SetSlippagePct(pct float64)
}

// Options for creating Engine.
type Options struct {
	// Required
	Config     ConfigSource
	Candidates Candidates
	Ledger     Ledger
	Supervisor Supervisor
	// Executors maps each mode to its executor. The configured mode buys;
	// every mode present is supervised.
	Executors map[domain.Mode]executor.Executor

	// Optional
	Prices   PriceObserver
	Scorer   risk.Scorer
	Events   storage.EventStore
	Lease    Lease
	Slippage SlippageSetter
	// OnCycle receives every report produced by Run.
	OnCycle func(*CycleReport)
	Logger  *slog.Logger
	Now     func() time.Time
}

// Engine is the single logical owner of the cycle cadence.
// RunCycle must not be called concurrently.
type Engine struct {
	cfg        ConfigSource
	candidates Candidates
	ledger     Ledger
	supervisor Supervisor
	executors  map[domain.Mode]executor.Executor

	prices   PriceObserver
	scorer   risk.Scorer
	events   storage.EventStore
	lease    Lease
	slippage SlippageSetter
	onCycle  func(*CycleReport)
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a new Engine.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:        opts.Config,
		candidates: opts.Candidates,
		ledger:     opts.Ledger,
		supervisor: opts.Supervisor,
		executors:  opts.Executors,
		prices:     opts.Prices,
		scorer:     opts.Scorer,
		events:     opts.Events,
		lease:      opts.Lease,
		slippage:   opts.Slippage,
		onCycle:    opts.OnCycle,
		logger:     logger.With("component", "engine"),
		now:        now,
	}
}

// CycleReport summarizes one cycle.
type CycleReport struct {
	CycleID    string
	Mode       domain.Mode
	Status     string
	StartedAt  time.Time
	Duration   time.Duration
	Candidates int // unique tokens after dedupe
	Accepted   int
	Buys       []*executor.Execution
	Exits      []supervisor.Outcome
	Errors     []string // per-token failures that did not abort the cycle
	Err        error    // abort cause
}

// Run executes cycles until ctx is cancelled. The in-flight cycle always
// finishes its ledger writes before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	for {
		start := e.now()
		rep, err := e.RunCycle(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error("cycle failed", "error", err)
		}
		if e.onCycle != nil && rep != nil {
			e.onCycle(rep)
		}

		wait := e.cfg.Current().CycleInterval - e.now().Sub(start)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.logger.Info("trading loop stopped")
			return nil
		case <-timer.C:
		}
	}
}

// RunCycle executes one cycle. A ledger failure aborts the cycle and is
// returned; per-token failures are recorded and the cycle continues.
func (e *Engine) RunCycle(ctx context.Context) (*CycleReport, error) {
	cfg := e.cfg.Current()
	start := e.now()
	rep := &CycleReport{
		CycleID:   uuid.NewString(),
		Mode:      cfg.Mode,
		StartedAt: start,
	}
	log := e.logger.With("cycle_id", rep.CycleID, "mode", cfg.Mode)

	if e.lease != nil {
		release, err := e.lease.Acquire(ctx, LeaseKey, cfg.Redis.LeaseTTL)
		if err != nil {
			rep.Status = StatusSkipped
			reason := "lease_error"
			if errors.Is(err, cacheredis.ErrLockHeld) {
				reason = "lease_held"
			}
			observability.RecordCycleSkipped(reason)
			log.Info("cycle skipped", "reason", reason, "error", err)
			if reason == "lease_held" {
				return rep, nil
			}
			return rep, fmt.Errorf("acquire cycle lease: %w", err)
		}
		defer release()
	}

	if e.slippage != nil {
		e.slippage.SetSlippagePct(cfg.Simulation.SlippagePct)
	}

	rec := &recorder{cycleID: rep.CycleID, mode: cfg.Mode, now: e.now}
	err := e.cycle(ctx, cfg, rep, rec, log)

	rep.Duration = e.now().Sub(start)
	rep.Status = StatusCompleted
	if err != nil {
		rep.Status = StatusAborted
		rep.Err = err
		rec.add(&domain.Event{Kind: domain.EventCycleAborted, Reason: err.Error()})
		log.Error("cycle aborted", "error", err)
	} else {
		rec.add(&domain.Event{Kind: domain.EventCycleCompleted,
			Reason: fmt.Sprintf("candidates=%d accepted=%d buys=%d exits=%d failures=%d",
				rep.Candidates, rep.Accepted, len(rep.Buys), countExits(rep.Exits), len(rep.Errors))})
		log.Info("cycle completed",
			"candidates", rep.Candidates,
			"accepted", rep.Accepted,
			"buys", len(rep.Buys),
			"exits", countExits(rep.Exits),
			"failures", len(rep.Errors),
			"duration", rep.Duration)
	}
	e.flush(ctx, rec, log)
	e.updateGauges(ctx)
	observability.RecordCycle(rep.Status, rep.Duration.Seconds(), e.now().Unix())
	return rep, err
}

func (e *Engine) cycle(ctx context.Context, cfg config.Config, rep *CycleReport, rec *recorder, log *slog.Logger) error {
	// Phase 1: discover
	tokens, err := e.discover(ctx)
	if err != nil {
		// Discovery failure skips buying; open positions are still supervised.
		rep.Errors = append(rep.Errors, fmt.Sprintf("list candidates: %v", err))
		log.Warn("candidate discovery failed", "error", err)
	}
	rep.Candidates = len(tokens)

	// Phase 2: evaluate
	accepted := e.evaluate(cfg, tokens, rec)
	rep.Accepted = len(accepted)

	// Phase 3: buy
	if err := e.buy(ctx, cfg, accepted, rep, rec, log); err != nil {
		return err
	}

	// Phase 4: supervise
	outcomes, err := e.supervisor.Supervise(ctx, cfg.Exit.Params(), e.executors)
	rep.Exits = outcomes
	for _, out := range outcomes {
		e.recordExit(out, rep, rec, log)
	}
	if err != nil {
		return fmt.Errorf("supervise: %w", asLedgerError("supervise", err))
	}
	return nil
}

// discover lists candidates, records their prices and dedupes by token id.
// The last record seen for a token wins; first-seen order is kept.
func (e *Engine) discover(ctx context.Context) ([]*domain.TokenRecord, error) {
	if e.candidates == nil {
		return nil, nil
	}
	recs, err := e.candidates.ListCandidates(ctx)
	if err != nil {
		return nil, err
	}
	if e.prices != nil {
		e.prices.ObserveRecords(ctx, recs)
	}
	return Dedupe(recs), nil
}

// Dedupe keeps the last record per token id in first-seen order.
func Dedupe(recs []*domain.TokenRecord) []*domain.TokenRecord {
	index := make(map[string]int, len(recs))
	out := make([]*domain.TokenRecord, 0, len(recs))
	for _, r := range recs {
		if r == nil || r.TokenID == "" {
			continue
		}
		if i, ok := index[r.TokenID]; ok {
			out[i] = r
			continue
		}
		index[r.TokenID] = len(out)
		out = append(out, r)
	}
	return out
}

func (e *Engine) evaluate(cfg config.Config, tokens []*domain.TokenRecord, rec *recorder) []*domain.TokenRecord {
	var accepted []*domain.TokenRecord
	for _, tok := range tokens {
		var riskScore *float64
		if cfg.Risk.Enabled && e.scorer != nil {
			if s, ok := e.scorer.Score(tok); ok {
				riskScore = &s
			}
		}
		res := evaluator.Evaluate(tok, cfg.Thresholds, riskScore)
		observability.RecordEvaluation(res.Accepted, res.Failing)

		ev := &domain.Event{TokenID: tok.TokenID, Score: res.Score}
		if res.Accepted {
			ev.Kind = domain.EventEvaluationAccepted
			accepted = append(accepted, tok)
		} else {
			ev.Kind = domain.EventEvaluationRejected
			ev.Reason = strings.Join(res.Failing, ",")
		}
		rec.add(ev)
	}
	return accepted
}

func (e *Engine) buy(ctx context.Context, cfg config.Config, accepted []*domain.TokenRecord, rep *CycleReport, rec *recorder, log *slog.Logger) error {
	if len(accepted) == 0 {
		return nil
	}
	ex := e.executors[cfg.Mode]
	if ex == nil {
		rep.Errors = append(rep.Errors, fmt.Sprintf("no executor for mode %s", cfg.Mode))
		log.Error("no executor configured for mode; buys skipped")
		return nil
	}

	open, err := e.ledger.OpenPositions(ctx, cfg.Mode)
	if err != nil {
		return asLedgerError("open positions", err)
	}
	held := make(map[string]bool, len(open))
	for _, p := range open {
		held[p.TokenID] = true
	}
	count := len(open)

	for _, tok := range accepted {
		if ctx.Err() != nil {
			log.Info("shutdown requested; remaining buys skipped")
			return nil
		}
		if held[tok.TokenID] {
			log.Debug("already holding token", "token_id", tok.TokenID)
			continue
		}
		if count >= cfg.Sizing.MaxConcurrentPositions {
			log.Info("max concurrent positions reached", "open", count, "limit", cfg.Sizing.MaxConcurrentPositions)
			return nil
		}

		bal, err := e.ledger.Balance(ctx, cfg.Mode)
		if err != nil {
			return asLedgerError("balance", err)
		}
		capital, ok := SizeCapital(cfg, bal.Available)
		if !ok {
			log.Info("available capital below minimum trade size",
				"available", bal.Available, "min", cfg.Sizing.MinCapitalPerTrade)
			return nil
		}
		price, ok := tok.Price()
		if !ok {
			e.buyFailed(rep, rec, log, tok.TokenID, 0, domain.ErrPriceUnavailable)
			continue
		}
		qty := capital / price

		exec, err := e.buyWithRetry(ctx, cfg.Execution, ex, tok.TokenID, qty, log)
		switch {
		case err == nil:
			count++
			held[tok.TokenID] = true
			rep.Buys = append(rep.Buys, exec)
			rec.add(fillEvent(exec, domain.EventFillRecorded))
			log.Info("bought token",
				"token_id", tok.TokenID,
				"amount", exec.Fill.FilledAmount,
				"price", exec.Fill.FillPrice,
				"notional", exec.Trade.Notional)
		case errors.Is(err, domain.ErrLedger):
			rec.add(&domain.Event{Kind: domain.EventFillFailed, TokenID: tok.TokenID,
				Side: domain.SideBuy, Amount: qty, Reason: err.Error()})
			return err
		default:
			e.buyFailed(rep, rec, log, tok.TokenID, qty, err)
		}
	}
	return nil
}

func (e *Engine) buyFailed(rep *CycleReport, rec *recorder, log *slog.Logger, tokenID string, qty float64, err error) {
	rep.Errors = append(rep.Errors, fmt.Sprintf("buy %s: %v", tokenID, err))
	rec.add(&domain.Event{Kind: domain.EventFillFailed, TokenID: tokenID,
		Side: domain.SideBuy, Amount: qty, Reason: err.Error()})
	if errors.Is(err, domain.ErrInsufficientBalance) {
		log.Info("buy skipped", "token_id", tokenID, "error", err)
		return
	}
	log.Warn("buy failed", "token_id", tokenID, "error", err)
}

// buyWithRetry retries temporary execution errors with exponential backoff.
// Everything else, including insufficient balance, ends the attempt.
func (e *Engine) buyWithRetry(ctx context.Context, cfg config.Execution, ex executor.Executor, tokenID string, qty float64, log *slog.Logger) (*executor.Execution, error) {
	b := backoff.NewExponentialBackOff()
	if cfg.RetryInitial > 0 {
		b.InitialInterval = cfg.RetryInitial
	}
	if cfg.RetryMax > 0 {
		b.MaxInterval = cfg.RetryMax
	}
	b.MaxElapsedTime = 0

	var exec *executor.Execution
	op := func() error {
		var err error
		exec, err = ex.Buy(ctx, tokenID, qty)
		if err == nil {
			return nil
		}
		var execErr *domain.ExecutionError
		if errors.As(err, &execErr) && execErr.Temporary() {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, next time.Duration) {
		log.Warn("buy attempt failed, retrying", "token_id", tokenID, "error", err, "retry_in", next)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, cfg.BuyRetries), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return exec, nil
}

func (e *Engine) recordExit(out supervisor.Outcome, rep *CycleReport, rec *recorder, log *slog.Logger) {
	if out.Reason == "" {
		return
	}
	pos := out.Position
	if out.Err != nil {
		rep.Errors = append(rep.Errors, fmt.Sprintf("exit %s: %v", pos.TokenID, out.Err))
		rec.add(&domain.Event{Kind: domain.EventExitFailed, TokenID: pos.TokenID, Mode: pos.Mode,
			Side: domain.SideSell, Amount: pos.Held, Price: out.Price,
			Reason: out.Reason + ": " + out.Err.Error()})
		return
	}
	ev := fillEvent(out.Execution, domain.EventExitFired)
	ev.Reason = out.Reason
	rec.add(ev)
	log.Info("position exited",
		"token_id", pos.TokenID,
		"position_mode", pos.Mode,
		"reason", out.Reason,
		"price", out.Execution.Fill.FillPrice,
		"state", out.State)
}

// SizeCapital returns the capital to commit to one buy: the configured maximum
// capped by what is available. ok is false when that falls below the minimum.
func SizeCapital(cfg config.Config, available float64) (float64, bool) {
	budget := available
	if cfg.Mode == domain.ModeSimulated && cfg.Simulation.SlippagePct > 0 {
		// Leave room for the adverse slippage the simulated filler applies.
		budget /= 1 + cfg.Simulation.SlippagePct/200
	}
	capital := cfg.Sizing.MaxCapitalPerTrade
	if budget < capital {
		capital = budget
	}
	if capital <= 0 || capital < cfg.Sizing.MinCapitalPerTrade {
		return 0, false
	}
	return capital, true
}

func (e *Engine) updateGauges(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for mode := range e.executors {
		bal, err := e.ledger.Balance(ctx, mode)
		if err != nil {
			continue
		}
		observability.UpdateBalance(mode.String(), bal.Available)
	}
}

func (e *Engine) flush(ctx context.Context, rec *recorder, log *slog.Logger) {
	if e.events == nil || len(rec.events) == 0 {
		return
	}
	// Events describe writes that already happened; record them even on shutdown.
	if err := e.events.InsertBulk(context.WithoutCancel(ctx), rec.events); err != nil {
		log.Error("failed to record cycle events", "count", len(rec.events), "error", err)
	}
}

// asLedgerError keeps ledger errors as they are and wraps bare store errors.
func asLedgerError(op string, err error) error {
	if errors.Is(err, domain.ErrLedger) || errors.Is(err, context.Canceled) {
		return err
	}
	return &domain.LedgerError{Op: op, Err: err}
}

func countExits(outs []supervisor.Outcome) int {
	n := 0
	for _, o := range outs {
		if o.Reason != "" && o.Err == nil {
			n++
		}
	}
	return n
}
