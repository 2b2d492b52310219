package storage

import (
	"context"

	"solana-trade-agent/internal/domain"
)

// TradeFilter selects trades from the ledger. Zero values match everything.
type TradeFilter struct {
	Mode    domain.Mode
	TokenID string
}

// Matches reports whether t satisfies the filter.
func (f TradeFilter) Matches(t *domain.Trade) bool {
	if f.Mode != "" && t.Mode != f.Mode {
		return false
	}
	if f.TokenID != "" && t.TokenID != f.TokenID {
		return false
	}
	return true
}

// LedgerStore provides access to the trade log and per-mode balances.
// Trades are append-only; balances are only changed through AdjustBalance/SetBalance.
type LedgerStore interface {
	// WithTx runs fn in a single transaction. Either every write made through tx is
	// committed or none is. Returning an error from fn rolls the transaction back.
	WithTx(ctx context.Context, fn func(tx LedgerTx) error) error

	// ListTrades retrieves trades matching filter, ordered by seq ASC.
	ListTrades(ctx context.Context, filter TradeFilter) ([]*domain.Trade, error)

	// GetBalance retrieves the balance of a mode. Returns ErrNotFound if never initialized.
	GetBalance(ctx context.Context, mode domain.Mode) (*domain.BalanceState, error)

	// View runs fn against one consistent read snapshot: no commit lands between
	// the reads fn makes.
	View(ctx context.Context, fn func(v LedgerView) error) error
}

// LedgerView is the read side shared by snapshots and transactions.
type LedgerView interface {
	// GetBalance retrieves the balance of a mode. Returns ErrNotFound if never initialized.
	GetBalance(ctx context.Context, mode domain.Mode) (*domain.BalanceState, error)

	// ListTrades retrieves trades matching filter, ordered by seq ASC.
	ListTrades(ctx context.Context, filter TradeFilter) ([]*domain.Trade, error)
}

// LedgerTx is the transactional view handed to LedgerStore.WithTx callbacks.
type LedgerTx interface {
	LedgerView

	// AppendTrade adds a trade and assigns its Seq. Returns ErrDuplicateKey if trade_id exists.
	AppendTrade(ctx context.Context, t *domain.Trade) error

	// AdjustBalance adds delta to the available capital of mode.
	// Returns ErrNotFound if the balance was never initialized and
	// ErrNegativeBalance if the result would drop below zero.
	AdjustBalance(ctx context.Context, mode domain.Mode, delta float64, atMs int64) (*domain.BalanceState, error)

	// SetBalance creates or replaces the balance row of state.Mode.
	SetBalance(ctx context.Context, state *domain.BalanceState) error
}

// EventFilter selects events. Zero values match everything.
type EventFilter struct {
	CycleID string
	TokenID string
	Kind    string
	Limit   int // 0 means no limit
}

// EventStore provides access to the structured trade_events log.
type EventStore interface {
	// InsertBulk appends events. Events are append-only; event_id duplicates are rejected.
	InsertBulk(ctx context.Context, events []*domain.Event) error

	// List retrieves events matching filter, ordered by timestamp_ms ASC, event_id ASC.
	List(ctx context.Context, filter EventFilter) ([]*domain.Event, error)
}
