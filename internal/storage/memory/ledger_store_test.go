package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"solana-trade-agent/internal/domain"
	"solana-trade-agent/internal/storage"
)

func seedBalance(t *testing.T, s *LedgerStore, mode domain.Mode, available float64) {
	t.Helper()
	err := s.WithTx(context.Background(), func(tx storage.LedgerTx) error {
		return tx.SetBalance(context.Background(), &domain.BalanceState{
			Mode: mode, Available: available, StartingCapital: available,
		})
	})
	if err != nil {
		t.Fatalf("seed balance: %v", err)
	}
}

func buyTrade(id string) *domain.Trade {
	return &domain.Trade{
		TradeID: id, TokenID: "X", Side: domain.SideBuy, Mode: domain.ModeSimulated,
		RequestedAmount: 1, FilledAmount: 1, FillPrice: 2, Notional: 2, Timestamp: 1000,
	}
}

func TestLedgerStore_CommitAppliesTradeAndBalance(t *testing.T) {
	s := NewLedgerStore()
	ctx := context.Background()
	seedBalance(t, s, domain.ModeSimulated, 10)

	trade := buyTrade("t1")
	err := s.WithTx(ctx, func(tx storage.LedgerTx) error {
		if err := tx.AppendTrade(ctx, trade); err != nil {
			return err
		}
		_, err := tx.AdjustBalance(ctx, domain.ModeSimulated, -2, 1000)
		return err
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}
	if trade.Seq != 1 {
		t.Errorf("Seq: got %d, want 1", trade.Seq)
	}

	trades, _ := s.ListTrades(ctx, storage.TradeFilter{})
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	b, err := s.GetBalance(ctx, domain.ModeSimulated)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if b.Available != 8 {
		t.Errorf("Available: got %f, want 8", b.Available)
	}
}

func TestLedgerStore_CallbackErrorDiscardsWrites(t *testing.T) {
	s := NewLedgerStore()
	ctx := context.Background()
	seedBalance(t, s, domain.ModeSimulated, 10)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx storage.LedgerTx) error {
		if err := tx.AppendTrade(ctx, buyTrade("t1")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	trades, _ := s.ListTrades(ctx, storage.TradeFilter{})
	if len(trades) != 0 {
		t.Errorf("expected no trades, got %d", len(trades))
	}
}

func TestLedgerStore_CommitHookInterruptsBothWrites(t *testing.T) {
	s := NewLedgerStore()
	ctx := context.Background()
	seedBalance(t, s, domain.ModeSimulated, 10)

	crash := errors.New("crash")
	s.SetCommitHook(func() error { return crash })

	err := s.WithTx(ctx, func(tx storage.LedgerTx) error {
		if err := tx.AppendTrade(ctx, buyTrade("t1")); err != nil {
			return err
		}
		_, err := tx.AdjustBalance(ctx, domain.ModeSimulated, -2, 1000)
		return err
	})
	if !errors.Is(err, crash) {
		t.Fatalf("expected crash, got %v", err)
	}

	trades, _ := s.ListTrades(ctx, storage.TradeFilter{})
	b, _ := s.GetBalance(ctx, domain.ModeSimulated)
	if len(trades) != 0 || b.Available != 10 {
		t.Errorf("partial commit: trades=%d available=%f", len(trades), b.Available)
	}
}

func TestLedgerStore_NegativeBalance(t *testing.T) {
	s := NewLedgerStore()
	ctx := context.Background()
	seedBalance(t, s, domain.ModeSimulated, 1)

	err := s.WithTx(ctx, func(tx storage.LedgerTx) error {
		_, err := tx.AdjustBalance(ctx, domain.ModeSimulated, -2, 1000)
		return err
	})
	if !errors.Is(err, storage.ErrNegativeBalance) {
		t.Errorf("expected ErrNegativeBalance, got %v", err)
	}
}

func TestLedgerStore_BalanceNotFound(t *testing.T) {
	s := NewLedgerStore()

	_, err := s.GetBalance(context.Background(), domain.ModeReal)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLedgerStore_DuplicateTradeID(t *testing.T) {
	s := NewLedgerStore()
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx storage.LedgerTx) error {
		return tx.AppendTrade(ctx, buyTrade("t1"))
	})
	if err != nil {
		t.Fatalf("first append failed: %v", err)
	}

	err = s.WithTx(ctx, func(tx storage.LedgerTx) error {
		return tx.AppendTrade(ctx, buyTrade("t1"))
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestLedgerStore_TxSeesStagedTrades(t *testing.T) {
	s := NewLedgerStore()
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx storage.LedgerTx) error {
		if err := tx.AppendTrade(ctx, buyTrade("t1")); err != nil {
			return err
		}
		trades, err := tx.ListTrades(ctx, storage.TradeFilter{TokenID: "X"})
		if err != nil {
			return err
		}
		if len(trades) != 1 {
			t.Errorf("expected staged trade to be visible, got %d", len(trades))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}
}

func TestLedgerStore_FilterByMode(t *testing.T) {
	s := NewLedgerStore()
	ctx := context.Background()

	realTrade := buyTrade("t2")
	realTrade.Mode = domain.ModeReal
	err := s.WithTx(ctx, func(tx storage.LedgerTx) error {
		if err := tx.AppendTrade(ctx, buyTrade("t1")); err != nil {
			return err
		}
		return tx.AppendTrade(ctx, realTrade)
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}

	trades, _ := s.ListTrades(ctx, storage.TradeFilter{Mode: domain.ModeReal})
	if len(trades) != 1 || trades[0].TradeID != "t2" {
		t.Errorf("unexpected REAL trades: %+v", trades)
	}
}

func TestLedgerStore_InvalidTrade(t *testing.T) {
	s := NewLedgerStore()
	ctx := context.Background()

	bad := buyTrade("t1")
	bad.Side = "HOLD"
	err := s.WithTx(ctx, func(tx storage.LedgerTx) error {
		return tx.AppendTrade(ctx, bad)
	})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLedgerStore_ViewHoldsOffCommits(t *testing.T) {
	s := NewLedgerStore()
	ctx := context.Background()
	seedBalance(t, s, domain.ModeSimulated, 10)

	committed := make(chan error, 1)
	err := s.View(ctx, func(v storage.LedgerView) error {
		go func() {
			committed <- s.WithTx(ctx, func(tx storage.LedgerTx) error {
				if err := tx.AppendTrade(ctx, buyTrade("t1")); err != nil {
					return err
				}
				_, err := tx.AdjustBalance(ctx, domain.ModeSimulated, -2, 1000)
				return err
			})
		}()
		time.Sleep(20 * time.Millisecond)

		trades, _ := v.ListTrades(ctx, storage.TradeFilter{})
		b, err := v.GetBalance(ctx, domain.ModeSimulated)
		if err != nil {
			return err
		}
		if len(trades) != 0 || b.Available != 10 {
			t.Errorf("view saw a commit: %d trades, available %f", len(trades), b.Available)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if err := <-committed; err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}

	b, _ := s.GetBalance(ctx, domain.ModeSimulated)
	if b.Available != 8 {
		t.Errorf("Available after view: got %f, want 8", b.Available)
	}
}

func TestLedgerStore_BalanceKeepsBaseSeq(t *testing.T) {
	s := NewLedgerStore()
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx storage.LedgerTx) error {
		return tx.SetBalance(ctx, &domain.BalanceState{
			Mode: domain.ModeSimulated, Available: 10, StartingCapital: 10, BaseSeq: 4,
		})
	})
	if err != nil {
		t.Fatalf("SetBalance failed: %v", err)
	}
	err = s.WithTx(ctx, func(tx storage.LedgerTx) error {
		_, err := tx.AdjustBalance(ctx, domain.ModeSimulated, -1, 1000)
		return err
	})
	if err != nil {
		t.Fatalf("AdjustBalance failed: %v", err)
	}

	b, _ := s.GetBalance(ctx, domain.ModeSimulated)
	if b.BaseSeq != 4 {
		t.Errorf("BaseSeq: got %d, want 4", b.BaseSeq)
	}
}
