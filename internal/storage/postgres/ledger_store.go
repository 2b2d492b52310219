package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"solana-trade-agent/internal/domain"
	"solana-trade-agent/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Compile-time interface checks.
var (
	_ storage.LedgerStore = (*LedgerStore)(nil)
	_ storage.LedgerTx    = (*ledgerTx)(nil)
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WithTx runs fn inside a database transaction.
func (s *LedgerStore) WithTx(ctx context.Context, fn func(tx storage.LedgerTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&ledgerTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// View runs fn inside a read-only REPEATABLE READ transaction, so every query fn
// makes sees the same committed state.
func (s *LedgerStore) View(ctx context.Context, fn func(v storage.LedgerView) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&ledgerTx{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListTrades retrieves trades matching filter, ordered by seq ASC.
func (s *LedgerStore) ListTrades(ctx context.Context, filter storage.TradeFilter) ([]*domain.Trade, error) {
	return listTrades(ctx, s.pool, filter)
}

// GetBalance retrieves the balance of a mode. Returns ErrNotFound if never initialized.
func (s *LedgerStore) GetBalance(ctx context.Context, mode domain.Mode) (*domain.BalanceState, error) {
	return getBalance(ctx, s.pool, mode, false)
}

type ledgerTx struct {
	q querier
}

func (tx *ledgerTx) AppendTrade(ctx context.Context, t *domain.Trade) error {
	if err := storage.ValidateTrade(t); err != nil {
		return err
	}

	query := `
		INSERT INTO trades (
			trade_id, token_id, side, mode,
			requested_amount, filled_amount, fill_price, notional,
			tx_ref, timestamp_ms, exit_reason,
			cost_basis, realized_pnl, percentage_change, profit_ratio
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11,
			$12, $13, $14, $15
		)
		RETURNING seq
	`

	err := tx.q.QueryRow(ctx, query,
		t.TradeID, t.TokenID, string(t.Side), string(t.Mode),
		t.RequestedAmount, t.FilledAmount, t.FillPrice, t.Notional,
		t.TxRef, t.Timestamp, t.ExitReason,
		t.CostBasis, t.RealizedPnL, t.PercentageChange, t.ProfitRatio,
	).Scan(&t.Seq)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

func (tx *ledgerTx) AdjustBalance(ctx context.Context, mode domain.Mode, delta float64, atMs int64) (*domain.BalanceState, error) {
	// Lock the row so the check and the update see the same value.
	b, err := getBalance(ctx, tx.q, mode, true)
	if err != nil {
		return nil, err
	}

	next := b.Available + delta
	if next < 0 {
		if next < -domain.Epsilon {
			return nil, storage.ErrNegativeBalance
		}
		next = 0
	}

	query := `
		UPDATE balances SET available = $2, updated_at_ms = $3
		WHERE mode = $1
	`
	if _, err := tx.q.Exec(ctx, query, string(mode), next, atMs); err != nil {
		if isCheckViolationError(err) {
			return nil, storage.ErrNegativeBalance
		}
		return nil, fmt.Errorf("adjust balance: %w", err)
	}

	b.Available = next
	b.UpdatedAt = atMs
	return b, nil
}

func (tx *ledgerTx) SetBalance(ctx context.Context, state *domain.BalanceState) error {
	if state == nil || !state.Mode.IsValid() || state.Available < 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO balances (mode, available, starting_capital, base_seq, updated_at_ms)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (mode) DO UPDATE SET
			available = EXCLUDED.available,
			starting_capital = EXCLUDED.starting_capital,
			base_seq = EXCLUDED.base_seq,
			updated_at_ms = EXCLUDED.updated_at_ms
	`
	_, err := tx.q.Exec(ctx, query,
		string(state.Mode), state.Available, state.StartingCapital, state.BaseSeq, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	return nil
}

func (tx *ledgerTx) GetBalance(ctx context.Context, mode domain.Mode) (*domain.BalanceState, error) {
	return getBalance(ctx, tx.q, mode, false)
}

func (tx *ledgerTx) ListTrades(ctx context.Context, filter storage.TradeFilter) ([]*domain.Trade, error) {
	return listTrades(ctx, tx.q, filter)
}

func getBalance(ctx context.Context, q querier, mode domain.Mode, forUpdate bool) (*domain.BalanceState, error) {
	query := `
		SELECT mode, available, starting_capital, base_seq, updated_at_ms
		FROM balances
		WHERE mode = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var b domain.BalanceState
	var m string
	err := q.QueryRow(ctx, query, string(mode)).Scan(&m, &b.Available, &b.StartingCapital, &b.BaseSeq, &b.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}
	b.Mode = domain.Mode(m)
	return &b, nil
}

func listTrades(ctx context.Context, q querier, filter storage.TradeFilter) ([]*domain.Trade, error) {
	query := `
		SELECT
			seq, trade_id, token_id, side, mode,
			requested_amount, filled_amount, fill_price, notional,
			tx_ref, timestamp_ms, exit_reason,
			cost_basis, realized_pnl, percentage_change, profit_ratio
		FROM trades
		WHERE ($1 = '' OR mode = $1) AND ($2 = '' OR token_id = $2)
		ORDER BY seq ASC
	`

	rows, err := q.Query(ctx, query, string(filter.Mode), filter.TokenID)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// scanTrades scans multiple rows into a slice of Trade.
func scanTrades(rows pgx.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade

	for rows.Next() {
		var t domain.Trade
		var side, mode string

		err := rows.Scan(
			&t.Seq, &t.TradeID, &t.TokenID, &side, &mode,
			&t.RequestedAmount, &t.FilledAmount, &t.FillPrice, &t.Notional,
			&t.TxRef, &t.Timestamp, &t.ExitReason,
			&t.CostBasis, &t.RealizedPnL, &t.PercentageChange, &t.ProfitRatio,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		t.Side = domain.Side(side)
		t.Mode = domain.Mode(mode)

		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}

// isCheckViolationError checks if error is a CHECK constraint violation.
func isCheckViolationError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrCheckViolation
	}
	return false
}
