// Package executor turns buy and sell requests into committed ledger trades.
//
// A Filler produces the fill (synthesized or from a venue) before the ledger
// is touched; the ledger then records the trade and its balance effect in one
// commit. No lock is held across the fill.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"solana-trade-agent/internal/domain"
	"solana-trade-agent/internal/ledger"
	"solana-trade-agent/internal/market"
	"solana-trade-agent/internal/observability"
)

// ErrInvalidAmount is returned for non-positive or non-finite amounts.
var ErrInvalidAmount = errors.New("invalid amount")

// Executor is the order contract shared by both execution modes.
type Executor interface {
	Mode() domain.Mode
	// Buy acquires amount tokens.
	Buy(ctx context.Context, tokenID string, amount float64) (*Execution, error)
	// Sell disposes of amount tokens; nil closes the entire held amount.
	Sell(ctx context.Context, tokenID string, amount *float64, reason string) (*Execution, error)
}

// Filler produces a fill for one side of one token.
type Filler interface {
	Mode() domain.Mode
	Fill(ctx context.Context, side domain.Side, tokenID string, amount float64) (*domain.Fill, error)
}

// Ledger is the subset of the ledger the executor writes through.
type Ledger interface {
	CheckAvailable(ctx context.Context, mode domain.Mode, notional float64) error
	Position(ctx context.Context, tokenID string, mode domain.Mode) (*domain.Position, error)
	Commit(ctx context.Context, fill *domain.Fill, exitReason string) (*domain.Trade, error)
}

// PriceSource serves the latest in-process quote without network I/O.
type PriceSource interface {
	Latest(tokenID string) (market.Quote, bool)
}

// Execution is a committed fill.
type Execution struct {
	Fill  *domain.Fill
	Trade *domain.Trade
}

// Options configures an OrderExecutor.
type Options struct {
	Filler Filler
	Ledger Ledger
	Prices PriceSource
	// BuyBuffer inflates the pre-flight notional to cover adverse fills (e.g. slippage).
	BuyBuffer func() float64
	Logger    *slog.Logger
}

// OrderExecutor runs the pre-flight check, obtains a fill and commits it.
type OrderExecutor struct {
	filler    Filler
	ledger    Ledger
	prices    PriceSource
	buyBuffer func() float64
	logger    *slog.Logger
}

// New creates an OrderExecutor.
func New(opts Options) *OrderExecutor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	buf := opts.BuyBuffer
	if buf == nil {
		buf = func() float64 { return 0 }
	}
	return &OrderExecutor{
		filler:    opts.Filler,
		ledger:    opts.Ledger,
		prices:    opts.Prices,
		buyBuffer: buf,
		logger:    logger.With("component", "executor", "mode", opts.Filler.Mode()),
	}
}

// Mode returns the execution mode of the underlying filler.
func (e *OrderExecutor) Mode() domain.Mode {
	return e.filler.Mode()
}

// Buy checks capital at the latest price, fills and commits.
// An InsufficientBalanceError is returned before the filler is contacted.
func (e *OrderExecutor) Buy(ctx context.Context, tokenID string, amount float64) (*Execution, error) {
	if !validAmount(amount) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}

	q, ok := e.prices.Latest(tokenID)
	if !ok {
		return nil, fmt.Errorf("buy %s: %w", tokenID, domain.ErrPriceUnavailable)
	}
	notional := ledger.Notional(amount, q.Price) * (1 + e.buyBuffer())
	if err := e.ledger.CheckAvailable(ctx, e.Mode(), notional); err != nil {
		return nil, err
	}

	return e.execute(ctx, domain.SideBuy, tokenID, amount, "")
}

// Sell fills and commits a sell against the open position of this mode.
func (e *OrderExecutor) Sell(ctx context.Context, tokenID string, amount *float64, reason string) (*Execution, error) {
	pos, err := e.ledger.Position(ctx, tokenID, e.Mode())
	if err != nil {
		return nil, err
	}

	qty := pos.Held
	if amount != nil {
		if !validAmount(*amount) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, *amount)
		}
		if *amount > pos.Held+domain.Epsilon {
			return nil, fmt.Errorf("%w: sell %.9f, held %.9f", ledger.ErrOversell, *amount, pos.Held)
		}
		qty = math.Min(*amount, pos.Held)
	}

	return e.execute(ctx, domain.SideSell, tokenID, qty, reason)
}

func (e *OrderExecutor) execute(ctx context.Context, side domain.Side, tokenID string, qty float64, reason string) (*Execution, error) {
	mode := e.Mode()
	start := time.Now()

	fill, err := e.filler.Fill(ctx, side, tokenID, qty)
	if err != nil {
		execErr := asExecutionError(tokenID, side, err)
		observability.RecordExecutionFailure(side.String(), failureKind(execErr))
		e.logger.Warn("fill failed",
			"token_id", tokenID, "side", side, "amount", qty,
			"retryable", execErr.Temporary(), "error", execErr.Err)
		return nil, execErr
	}
	if fill.Mode != mode {
		return nil, fmt.Errorf("%w: filler returned %s for %s executor", domain.ErrModeMismatch, fill.Mode, mode)
	}
	latency := time.Since(start).Seconds()

	trade, err := e.ledger.Commit(ctx, fill, reason)
	if err != nil {
		if mode == domain.ModeReal {
			// The venue has already executed; the operator must reconcile.
			e.logger.Error("real fill not recorded",
				"token_id", tokenID, "side", side, "filled", fill.FilledAmount,
				"price", fill.FillPrice, "tx_ref", deref(fill.TxRef), "error", err)
		}
		if errors.Is(err, domain.ErrLedger) {
			observability.RecordLedgerError("commit")
		}
		return nil, err
	}

	observability.RecordFill(side.String(), mode.String(), latency)
	if trade.RealizedPnL != nil {
		observability.RecordRealizedPnL(mode.String(), *trade.RealizedPnL)
	}
	return &Execution{Fill: fill, Trade: trade}, nil
}

func validAmount(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// asExecutionError wraps a filler failure. Rejections, malformed responses and
// unconfirmed transactions are not retryable; transport failures are.
func asExecutionError(tokenID string, side domain.Side, err error) *domain.ExecutionError {
	var execErr *domain.ExecutionError
	if errors.As(err, &execErr) {
		return execErr
	}
	retryable := !errors.Is(err, domain.ErrVenueRejected) &&
		!errors.Is(err, domain.ErrMalformedVenueResponse) &&
		!errors.Is(err, domain.ErrUnconfirmed) &&
		!errors.Is(err, domain.ErrPriceUnavailable) &&
		!errors.Is(err, context.Canceled)
	return &domain.ExecutionError{TokenID: tokenID, Side: side, Retryable: retryable, Err: err}
}

func failureKind(e *domain.ExecutionError) string {
	switch {
	case errors.Is(e.Err, domain.ErrVenueRejected):
		return "rejected"
	case errors.Is(e.Err, domain.ErrMalformedVenueResponse):
		return "malformed"
	case errors.Is(e.Err, domain.ErrUnconfirmed):
		return "unconfirmed"
	case errors.Is(e.Err, domain.ErrPriceUnavailable):
		return "no_price"
	case errors.Is(e.Err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "transport"
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ Executor = (*OrderExecutor)(nil)
