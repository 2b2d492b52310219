package memory

import (
	"context"
	"sync"

	"solana-trade-agent/internal/domain"
	"solana-trade-agent/internal/storage"
)

// LedgerStore is an in-memory implementation of storage.LedgerStore.
// Writes made inside WithTx are staged and applied together when fn returns nil.
type LedgerStore struct {
	mu       sync.RWMutex
	trades   []*domain.Trade                      // ordered by seq
	ids      map[string]struct{}                  // trade_id index
	balances map[domain.Mode]*domain.BalanceState // keyed by mode
	hook     func() error                         // called before staged writes are applied
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		ids:      make(map[string]struct{}),
		balances: make(map[domain.Mode]*domain.BalanceState),
	}
}

// SetCommitHook installs fn to run after a transaction callback succeeds and before
// its writes are applied. A non-nil error from fn discards the staged writes,
// which lets tests interrupt a commit at its last possible point.
func (s *LedgerStore) SetCommitHook(fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = fn
}

// WithTx runs fn against a staged view of the store and applies its writes atomically.
func (s *LedgerStore) WithTx(ctx context.Context, fn func(tx storage.LedgerTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &ledgerTx{
		store:    s,
		balances: make(map[domain.Mode]*domain.BalanceState),
		ids:      make(map[string]struct{}),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.hook != nil {
		if err := s.hook(); err != nil {
			return err
		}
	}

	for _, t := range tx.trades {
		s.trades = append(s.trades, t)
		s.ids[t.TradeID] = struct{}{}
	}
	for mode, b := range tx.balances {
		s.balances[mode] = b
	}
	return nil
}

// View runs fn under the read lock, so no transaction applies while fn reads.
func (s *LedgerStore) View(_ context.Context, fn func(v storage.LedgerView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// an empty ledgerTx reads straight through to the store without locking again
	return fn(&ledgerTx{store: s})
}

// ListTrades retrieves trades matching filter, ordered by seq ASC.
func (s *LedgerStore) ListTrades(_ context.Context, filter storage.TradeFilter) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listTrades(filter, nil), nil
}

// GetBalance retrieves the balance of a mode. Returns ErrNotFound if never initialized.
func (s *LedgerStore) GetBalance(_ context.Context, mode domain.Mode) (*domain.BalanceState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.balances[mode]
	if !ok {
		return nil, storage.ErrNotFound
	}
	row := *b
	return &row, nil
}

func (s *LedgerStore) listTrades(filter storage.TradeFilter, staged []*domain.Trade) []*domain.Trade {
	var result []*domain.Trade
	for _, list := range [][]*domain.Trade{s.trades, staged} {
		for _, t := range list {
			if filter.Matches(t) {
				copy := *t
				result = append(result, &copy)
			}
		}
	}
	return result
}

// ledgerTx stages writes until the owning WithTx call applies them.
// It is only used while the store's write lock is held.
type ledgerTx struct {
	store    *LedgerStore
	trades   []*domain.Trade
	ids      map[string]struct{}
	balances map[domain.Mode]*domain.BalanceState
}

func (tx *ledgerTx) AppendTrade(_ context.Context, t *domain.Trade) error {
	if err := storage.ValidateTrade(t); err != nil {
		return err
	}
	if _, exists := tx.store.ids[t.TradeID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := tx.ids[t.TradeID]; exists {
		return storage.ErrDuplicateKey
	}

	row := *t
	row.Seq = int64(len(tx.store.trades) + len(tx.trades) + 1)
	tx.trades = append(tx.trades, &row)
	tx.ids[t.TradeID] = struct{}{}
	t.Seq = row.Seq
	return nil
}

func (tx *ledgerTx) AdjustBalance(ctx context.Context, mode domain.Mode, delta float64, atMs int64) (*domain.BalanceState, error) {
	b, err := tx.GetBalance(ctx, mode)
	if err != nil {
		return nil, err
	}
	next := b.Available + delta
	if next < 0 {
		// absorb rounding noise on full-balance buys
		if next < -domain.Epsilon {
			return nil, storage.ErrNegativeBalance
		}
		next = 0
	}
	b.Available = next
	b.UpdatedAt = atMs
	tx.balances[mode] = b

	copy := *b
	return &copy, nil
}

func (tx *ledgerTx) SetBalance(_ context.Context, state *domain.BalanceState) error {
	if state == nil || !state.Mode.IsValid() || state.Available < 0 {
		return storage.ErrInvalidInput
	}
	copy := *state
	tx.balances[state.Mode] = &copy
	return nil
}

func (tx *ledgerTx) GetBalance(_ context.Context, mode domain.Mode) (*domain.BalanceState, error) {
	if b, ok := tx.balances[mode]; ok {
		copy := *b
		return &copy, nil
	}
	b, ok := tx.store.balances[mode]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *b
	return &copy, nil
}

func (tx *ledgerTx) ListTrades(_ context.Context, filter storage.TradeFilter) ([]*domain.Trade, error) {
	return tx.store.listTrades(filter, tx.trades), nil
}

var _ storage.LedgerStore = (*LedgerStore)(nil)
var _ storage.LedgerTx = (*ledgerTx)(nil)
