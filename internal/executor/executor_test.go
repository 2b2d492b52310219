package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-agent/internal/domain"
	"solana-trade-agent/internal/ledger"
	"solana-trade-agent/internal/market"
	"solana-trade-agent/internal/storage"
	"solana-trade-agent/internal/storage/memory"
)

type harness struct {
	ledger *ledger.Ledger
	store  *memory.LedgerStore
	prices *market.PriceBook
	now    time.Time
}

func newHarness(t *testing.T, mode domain.Mode, starting float64) *harness {
	t.Helper()
	h := &harness{store: memory.NewLedgerStore(), now: time.UnixMilli(1_000)}
	h.ledger = ledger.New(ledger.Options{Store: h.store, Now: h.clock})
	h.prices = market.NewPriceBook(market.PriceBookOptions{MaxAge: time.Hour, Now: h.clock})
	require.NoError(t, h.ledger.Init(context.Background(), mode, starting))
	return h
}

func (h *harness) clock() time.Time {
	h.now = h.now.Add(time.Millisecond)
	return h.now
}

func (h *harness) quote(token string, price float64) {
	h.prices.Observe(context.Background(), token, price, h.clock())
}

func (h *harness) available(t *testing.T, mode domain.Mode) float64 {
	t.Helper()
	b, err := h.ledger.Balance(context.Background(), mode)
	require.NoError(t, err)
	return b.Available
}

func (h *harness) simulated(slippage float64) *OrderExecutor {
	filler := NewSimulatedFiller(h.prices, slippage, h.clock)
	return New(Options{Filler: filler, Ledger: h.ledger, Prices: h.prices, BuyBuffer: filler.BuyBuffer})
}

func TestSimulated_RoundTrip(t *testing.T) {
	h := newHarness(t, domain.ModeSimulated, 10)
	ex := h.simulated(0)
	ctx := context.Background()

	h.quote("X", 2)
	buy, err := ex.Buy(ctx, "X", 1)
	require.NoError(t, err)
	assert.Nil(t, buy.Fill.TxRef)
	assert.Equal(t, domain.ModeSimulated, buy.Trade.Mode)
	assert.InDelta(t, 8.0, h.available(t, domain.ModeSimulated), 1e-12)

	h.quote("X", 3)
	sell, err := ex.Sell(ctx, "X", nil, domain.ExitReasonTakeProfit)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sell.Fill.FilledAmount, 1e-12)
	require.NotNil(t, sell.Trade.ProfitRatio)
	assert.InDelta(t, 1.5, *sell.Trade.ProfitRatio, 1e-12)
	assert.InDelta(t, 50.0, *sell.Trade.PercentageChange, 1e-9)
	assert.InDelta(t, 11.0, h.available(t, domain.ModeSimulated), 1e-12)

	_, err = h.ledger.Position(ctx, "X", domain.ModeSimulated)
	assert.ErrorIs(t, err, domain.ErrNoOpenPosition)
}

func TestSimulated_InsufficientBalance(t *testing.T) {
	h := newHarness(t, domain.ModeSimulated, 0.05)
	ex := h.simulated(0)
	h.quote("X", 1)

	_, err := ex.Buy(context.Background(), "X", 0.1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	var ibe *domain.InsufficientBalanceError
	require.True(t, errors.As(err, &ibe))
	assert.InDelta(t, 0.1, ibe.Required, 1e-12)
	assert.InDelta(t, 0.05, ibe.Available, 1e-12)

	trades, err := h.ledger.Trades(context.Background(), storage.TradeFilter{})
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.InDelta(t, 0.05, h.available(t, domain.ModeSimulated), 1e-12)
}

func TestSimulated_Slippage(t *testing.T) {
	h := newHarness(t, domain.ModeSimulated, 100)
	ex := h.simulated(2) // 1% each way
	ctx := context.Background()
	h.quote("X", 10)

	buy, err := ex.Buy(ctx, "X", 1)
	require.NoError(t, err)
	assert.InDelta(t, 10.1, buy.Fill.FillPrice, 1e-9)

	sell, err := ex.Sell(ctx, "X", nil, domain.ExitReasonManual)
	require.NoError(t, err)
	assert.InDelta(t, 9.9, sell.Fill.FillPrice, 1e-9)
	assert.InDelta(t, 100-0.2, h.available(t, domain.ModeSimulated), 1e-9)
}

func TestSimulated_SlippageBufferInPreflight(t *testing.T) {
	h := newHarness(t, domain.ModeSimulated, 10)
	ex := h.simulated(10) // buy fills 5% above quote
	h.quote("X", 10)

	_, err := ex.Buy(context.Background(), "X", 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance, "10.5 notional exceeds 10 available")
}

func TestSimulated_PriceUnavailable(t *testing.T) {
	h := newHarness(t, domain.ModeSimulated, 10)
	ex := h.simulated(0)

	_, err := ex.Buy(context.Background(), "UNKNOWN", 1)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestSell_PartialAndOversell(t *testing.T) {
	h := newHarness(t, domain.ModeSimulated, 10)
	ex := h.simulated(0)
	ctx := context.Background()
	h.quote("X", 1)

	_, err := ex.Buy(ctx, "X", 4)
	require.NoError(t, err)

	over := 5.0
	_, err = ex.Sell(ctx, "X", &over, domain.ExitReasonManual)
	assert.ErrorIs(t, err, ledger.ErrOversell)

	part := 1.5
	res, err := ex.Sell(ctx, "X", &part, domain.ExitReasonManual)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, res.Fill.FilledAmount, 1e-12)

	pos, err := h.ledger.Position(ctx, "X", domain.ModeSimulated)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, pos.Held, 1e-12)
	assert.InDelta(t, 1.0, pos.AvgCost, 1e-12)

	res, err = ex.Sell(ctx, "X", nil, domain.ExitReasonManual)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, res.Fill.FilledAmount, 1e-12)
}

func TestSell_NoPosition(t *testing.T) {
	h := newHarness(t, domain.ModeSimulated, 10)
	ex := h.simulated(0)
	h.quote("X", 1)

	_, err := ex.Sell(context.Background(), "X", nil, domain.ExitReasonManual)
	assert.ErrorIs(t, err, domain.ErrNoOpenPosition)
}

func TestBuy_InvalidAmount(t *testing.T) {
	h := newHarness(t, domain.ModeSimulated, 10)
	ex := h.simulated(0)
	for _, amt := range []float64{0, -1} {
		_, err := ex.Buy(context.Background(), "X", amt)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}
}
