// Package ledger owns the trade log and per-mode balances.
// Every fill is committed as one trade plus its balance effect in a single
// store transaction, serialized by the ledger's mutex.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"solana-trade-agent/internal/domain"
	"solana-trade-agent/internal/idhash"
	"solana-trade-agent/internal/storage"
)

var (
	// ErrOpenPositions is returned by ResetSimulation while simulated positions are open.
	ErrOpenPositions = errors.New("simulated positions still open")

	// ErrOversell is returned when a SELL fill exceeds the held amount.
	ErrOversell = errors.New("sell exceeds held amount")

	// ErrInvalidFill is returned for fills with no quantity, no price or an unknown side/mode.
	ErrInvalidFill = errors.New("invalid fill")
)

// BalanceSource reports the real capital available to the agent (e.g. a wallet balance).
type BalanceSource interface {
	Balance(ctx context.Context) (float64, error)
}

// Options configures a Ledger.
type Options struct {
	Store  storage.LedgerStore
	Logger *slog.Logger
	Now    func() time.Time
}

// Ledger is the single writer of the trade log and balances.
type Ledger struct {
	mu     sync.Mutex
	store  storage.LedgerStore
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Ledger.
func New(opts Options) *Ledger {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		store:  opts.Store,
		logger: logger.With("component", "ledger"),
		now:    now,
	}
}

// Init creates the balance of mode with startingCapital if it does not exist yet.
// An existing balance is left untouched.
func (l *Ledger) Init(ctx context.Context, mode domain.Mode, startingCapital float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	err := l.store.WithTx(ctx, func(tx storage.LedgerTx) error {
		_, err := tx.GetBalance(ctx, mode)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		// trades logged before the balance existed are not replayed against it
		trades, err := tx.ListTrades(ctx, storage.TradeFilter{Mode: mode})
		if err != nil {
			return err
		}
		return tx.SetBalance(ctx, &domain.BalanceState{
			Mode:            mode,
			Available:       startingCapital,
			StartingCapital: startingCapital,
			BaseSeq:         lastSeq(trades),
			UpdatedAt:       l.now().UnixMilli(),
		})
	})
	if err != nil {
		return &domain.LedgerError{Op: "init balance", Err: err}
	}
	return nil
}

// Balance returns the current balance of mode.
func (l *Ledger) Balance(ctx context.Context, mode domain.Mode) (*domain.BalanceState, error) {
	b, err := l.store.GetBalance(ctx, mode)
	if err != nil {
		return nil, &domain.LedgerError{Op: "get balance", Err: err}
	}
	return b, nil
}

// Snapshot is the trade log and balance of one mode read at the same point.
type Snapshot struct {
	Mode    domain.Mode
	Balance *domain.BalanceState // nil if the mode was never initialized
	Trades  []*domain.Trade      // ordered by seq
}

// ExpectedAvailable replays the snapshot's trades against its balance.
// Returns 0 when the mode has no balance.
func (s *Snapshot) ExpectedAvailable() float64 {
	if s.Balance == nil {
		return 0
	}
	return ExpectedAvailable(s.Trades, s.Balance)
}

// Snapshot reads the trades and balance of mode in one store read, so the
// balance always reflects exactly the returned trades.
func (l *Ledger) Snapshot(ctx context.Context, mode domain.Mode) (*Snapshot, error) {
	snap := &Snapshot{Mode: mode}
	err := l.store.View(ctx, func(v storage.LedgerView) error {
		trades, err := v.ListTrades(ctx, storage.TradeFilter{Mode: mode})
		if err != nil {
			return err
		}
		b, err := v.GetBalance(ctx, mode)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		snap.Trades = trades
		snap.Balance = b
		return nil
	})
	if err != nil {
		return nil, &domain.LedgerError{Op: "snapshot", Err: err}
	}
	return snap, nil
}

// Trades returns the trade log filtered by filter, ordered by seq.
func (l *Ledger) Trades(ctx context.Context, filter storage.TradeFilter) ([]*domain.Trade, error) {
	trades, err := l.store.ListTrades(ctx, filter)
	if err != nil {
		return nil, &domain.LedgerError{Op: "list trades", Err: err}
	}
	return trades, nil
}

// OpenPositions derives the open positions of mode from the trade log.
// An empty mode returns open positions of every mode.
func (l *Ledger) OpenPositions(ctx context.Context, mode domain.Mode) ([]*domain.Position, error) {
	trades, err := l.Trades(ctx, storage.TradeFilter{Mode: mode})
	if err != nil {
		return nil, err
	}
	return OpenPositions(trades, mode), nil
}

// Position returns the open position for (tokenID, mode).
// Returns domain.ErrNoOpenPosition when nothing is held.
func (l *Ledger) Position(ctx context.Context, tokenID string, mode domain.Mode) (*domain.Position, error) {
	trades, err := l.Trades(ctx, storage.TradeFilter{Mode: mode, TokenID: tokenID})
	if err != nil {
		return nil, err
	}
	p, ok := Derive(trades)[domain.PositionKey{TokenID: tokenID, Mode: mode}]
	if !ok || !p.IsOpen() {
		return nil, domain.ErrNoOpenPosition
	}
	return p, nil
}

// CheckAvailable returns an InsufficientBalanceError when notional exceeds the
// available capital of mode. Nothing is written.
func (l *Ledger) CheckAvailable(ctx context.Context, mode domain.Mode, notional float64) error {
	b, err := l.Balance(ctx, mode)
	if err != nil {
		return err
	}
	if notional > b.Available+domain.Epsilon {
		return &domain.InsufficientBalanceError{Mode: mode, Required: notional, Available: b.Available}
	}
	return nil
}

// Commit records fill as one trade together with its balance effect.
// The fill must be fully formed; no external call happens while the ledger is locked.
// Cancellation of ctx does not interrupt a commit once it has started.
//
// BUY fills exceeding available capital return an InsufficientBalanceError.
// SELL fills without an open position return domain.ErrNoOpenPosition.
// Store failures are returned as *domain.LedgerError; in every error case nothing is written.
func (l *Ledger) Commit(ctx context.Context, fill *domain.Fill, exitReason string) (*domain.Trade, error) {
	if err := validateFill(fill); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ctx = context.WithoutCancel(ctx)

	var trade *domain.Trade
	err := l.store.WithTx(ctx, func(tx storage.LedgerTx) error {
		history, err := tx.ListTrades(ctx, storage.TradeFilter{Mode: fill.Mode, TokenID: fill.TokenID})
		if err != nil {
			return err
		}
		position := Derive(history)[domain.PositionKey{TokenID: fill.TokenID, Mode: fill.Mode}]

		t := &domain.Trade{
			TradeID:         idhash.ComputeTradeID(fill, len(history)),
			TokenID:         fill.TokenID,
			Side:            fill.Side,
			Mode:            fill.Mode,
			RequestedAmount: fill.RequestedAmount,
			FilledAmount:    fill.FilledAmount,
			FillPrice:       fill.FillPrice,
			Notional:        Notional(fill.FilledAmount, fill.FillPrice),
			TxRef:           fill.TxRef,
			Timestamp:       fill.Timestamp,
			ExitReason:      exitReason,
		}

		switch fill.Side {
		case domain.SideBuy:
			b, err := tx.GetBalance(ctx, fill.Mode)
			if err != nil {
				return err
			}
			if t.Notional > b.Available+domain.Epsilon {
				return &domain.InsufficientBalanceError{Mode: fill.Mode, Required: t.Notional, Available: b.Available}
			}
		case domain.SideSell:
			if position == nil || !position.IsOpen() {
				return domain.ErrNoOpenPosition
			}
			if fill.FilledAmount > position.Held+domain.Epsilon {
				return fmt.Errorf("%w: sell %.9f, held %.9f", ErrOversell, fill.FilledAmount, position.Held)
			}
			if r, ok := ComputeRealized(position.AvgCost, fill.FillPrice, fill.FilledAmount); ok {
				t.CostBasis = &r.CostBasis
				t.RealizedPnL = &r.PnL
				t.ProfitRatio = &r.ProfitRatio
				t.PercentageChange = &r.PercentageChange
			}
		}

		if err := tx.AppendTrade(ctx, t); err != nil {
			return err
		}
		if _, err := tx.AdjustBalance(ctx, fill.Mode, t.BalanceDelta(), l.now().UnixMilli()); err != nil {
			return err
		}
		trade = t
		return nil
	})
	if err != nil {
		if isDomainRejection(err) {
			return nil, err
		}
		l.logger.Error("ledger commit failed",
			"token", fill.TokenID, "side", fill.Side, "mode", fill.Mode, "error", err)
		return nil, &domain.LedgerError{Op: "commit fill", Err: err}
	}

	l.logger.Debug("fill committed",
		"trade_id", trade.TradeID, "seq", trade.Seq, "token", trade.TokenID,
		"side", trade.Side, "mode", trade.Mode, "notional", trade.Notional)
	return trade, nil
}

// SyncBalance mirrors the available capital of mode from src.
// The source is queried before the ledger is locked.
func (l *Ledger) SyncBalance(ctx context.Context, mode domain.Mode, src BalanceSource) (*domain.BalanceState, error) {
	amount, err := src.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("query balance source: %w", err)
	}
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, fmt.Errorf("query balance source: invalid amount %v", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	state := &domain.BalanceState{Mode: mode, Available: amount, UpdatedAt: l.now().UnixMilli()}
	err = l.store.WithTx(ctx, func(tx storage.LedgerTx) error {
		prev, err := tx.GetBalance(ctx, mode)
		switch {
		case err == nil:
			state.StartingCapital = prev.StartingCapital
			state.BaseSeq = prev.BaseSeq
		case errors.Is(err, storage.ErrNotFound):
			trades, err := tx.ListTrades(ctx, storage.TradeFilter{Mode: mode})
			if err != nil {
				return err
			}
			state.StartingCapital = amount
			state.BaseSeq = lastSeq(trades)
		default:
			return err
		}
		return tx.SetBalance(ctx, state)
	})
	if err != nil {
		return nil, &domain.LedgerError{Op: "sync balance", Err: err}
	}

	l.logger.Info("balance synced", "mode", mode, "available", amount)
	return state, nil
}

// ResetSimulation restores the simulated balance to startingCapital.
// Returns ErrOpenPositions while any simulated position is open.
func (l *Ledger) ResetSimulation(ctx context.Context, startingCapital float64) error {
	if startingCapital < 0 {
		return fmt.Errorf("%w: negative starting capital", storage.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	err := l.store.WithTx(ctx, func(tx storage.LedgerTx) error {
		trades, err := tx.ListTrades(ctx, storage.TradeFilter{Mode: domain.ModeSimulated})
		if err != nil {
			return err
		}
		if open := OpenPositions(trades, domain.ModeSimulated); len(open) > 0 {
			return fmt.Errorf("%w: %d", ErrOpenPositions, len(open))
		}
		return tx.SetBalance(ctx, &domain.BalanceState{
			Mode:            domain.ModeSimulated,
			Available:       startingCapital,
			StartingCapital: startingCapital,
			BaseSeq:         lastSeq(trades),
			UpdatedAt:       l.now().UnixMilli(),
		})
	})
	if err != nil {
		if errors.Is(err, ErrOpenPositions) {
			return err
		}
		return &domain.LedgerError{Op: "reset simulation", Err: err}
	}

	l.logger.Info("simulation reset", "starting_capital", startingCapital)
	return nil
}

func validateFill(f *domain.Fill) error {
	switch {
	case f == nil:
		return fmt.Errorf("%w: nil", ErrInvalidFill)
	case f.TokenID == "":
		return fmt.Errorf("%w: empty token id", ErrInvalidFill)
	case !f.Side.IsValid() || !f.Mode.IsValid():
		return fmt.Errorf("%w: side %q mode %q", ErrInvalidFill, f.Side, f.Mode)
	case !(f.FilledAmount > 0) || math.IsInf(f.FilledAmount, 0):
		return fmt.Errorf("%w: filled amount %v", ErrInvalidFill, f.FilledAmount)
	case !(f.FillPrice > 0) || math.IsInf(f.FillPrice, 0):
		return fmt.Errorf("%w: fill price %v", ErrInvalidFill, f.FillPrice)
	}
	return nil
}

// isDomainRejection reports errors that reject a fill on business rules rather than
// on a storage failure.
func isDomainRejection(err error) bool {
	return errors.Is(err, domain.ErrInsufficientBalance) ||
		errors.Is(err, domain.ErrNoOpenPosition) ||
		errors.Is(err, ErrOversell)
}
