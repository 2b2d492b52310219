package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"solana-trade-agent/internal/domain"
	"solana-trade-agent/internal/storage"
)

// LedgerStore implements storage.LedgerStore on a single SQLite file through gorm.
type LedgerStore struct {
	db *gorm.DB
}

// Compile-time interface checks.
var (
	_ storage.LedgerStore = (*LedgerStore)(nil)
	_ storage.LedgerTx    = (*ledgerTx)(nil)
)

// Open opens (or creates) the SQLite ledger at path and migrates its schema.
// ":memory:" opens a private in-memory database.
func Open(path string) (*LedgerStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	dsn := "file::memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite ledger: %w", err)
	}
	return NewLedgerStore(db)
}

// NewLedgerStore wraps an existing gorm handle and migrates the ledger tables.
func NewLedgerStore(db *gorm.DB) (*LedgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db cannot be nil")
	}
	if err := db.AutoMigrate(&tradeModel{}, &balanceModel{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite ledger: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		// one writer; sqlite serializes writes anyway
		sqlDB.SetMaxOpenConns(1)
	}
	return &LedgerStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *LedgerStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn inside a gorm transaction.
func (s *LedgerStore) WithTx(ctx context.Context, fn func(tx storage.LedgerTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ledgerTx{db: tx})
	})
}

// View runs fn inside a gorm transaction. With a single connection no commit
// can interleave with the reads fn makes.
func (s *LedgerStore) View(ctx context.Context, fn func(v storage.LedgerView) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ledgerTx{db: tx})
	})
}

// ListTrades retrieves trades matching filter, ordered by seq ASC.
func (s *LedgerStore) ListTrades(ctx context.Context, filter storage.TradeFilter) ([]*domain.Trade, error) {
	return listTrades(s.db.WithContext(ctx), filter)
}

// GetBalance retrieves the balance of a mode. Returns ErrNotFound if never initialized.
func (s *LedgerStore) GetBalance(ctx context.Context, mode domain.Mode) (*domain.BalanceState, error) {
	return getBalance(s.db.WithContext(ctx), mode)
}

type ledgerTx struct {
	db *gorm.DB
}

func (tx *ledgerTx) AppendTrade(ctx context.Context, t *domain.Trade) error {
	if err := storage.ValidateTrade(t); err != nil {
		return err
	}

	var count int64
	if err := tx.db.WithContext(ctx).Model(&tradeModel{}).Where("trade_id = ?", t.TradeID).Count(&count).Error; err != nil {
		return fmt.Errorf("check trade exists: %w", err)
	}
	if count > 0 {
		return storage.ErrDuplicateKey
	}

	row := toTradeModel(t)
	if err := tx.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	t.Seq = row.Seq
	return nil
}

func (tx *ledgerTx) AdjustBalance(ctx context.Context, mode domain.Mode, delta float64, atMs int64) (*domain.BalanceState, error) {
	b, err := getBalance(tx.db.WithContext(ctx), mode)
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

	err = tx.db.WithContext(ctx).Model(&balanceModel{}).
		Where("mode = ?", string(mode)).
		Updates(map[string]any{"available": next, "updated_at_ms": atMs}).Error
	if err != nil {
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
	row := &balanceModel{
		Mode:            string(state.Mode),
		Available:       state.Available,
		StartingCapital: state.StartingCapital,
		BaseSeq:         state.BaseSeq,
		UpdatedAtMs:     state.UpdatedAt,
	}
	err := tx.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mode"}},
		UpdateAll: true,
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	return nil
}

func (tx *ledgerTx) GetBalance(ctx context.Context, mode domain.Mode) (*domain.BalanceState, error) {
	return getBalance(tx.db.WithContext(ctx), mode)
}

func (tx *ledgerTx) ListTrades(ctx context.Context, filter storage.TradeFilter) ([]*domain.Trade, error) {
	return listTrades(tx.db.WithContext(ctx), filter)
}

func getBalance(db *gorm.DB, mode domain.Mode) (*domain.BalanceState, error) {
	var row balanceModel
	err := db.Where("mode = ?", string(mode)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return row.toDomain(), nil
}

func listTrades(db *gorm.DB, filter storage.TradeFilter) ([]*domain.Trade, error) {
	q := db.Model(&tradeModel{})
	if filter.Mode != "" {
		q = q.Where("mode = ?", string(filter.Mode))
	}
	if filter.TokenID != "" {
		q = q.Where("token_id = ?", filter.TokenID)
	}

	var rows []tradeModel
	if err := q.Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}

	trades := make([]*domain.Trade, 0, len(rows))
	for i := range rows {
		trades = append(trades, rows[i].toDomain())
	}
	return trades, nil
}
