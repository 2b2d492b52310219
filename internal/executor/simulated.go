package executor

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"solana-trade-agent/internal/domain"
)

// SimulatedFiller synthesizes fills at the latest known price. It never calls
// out; the only failure is a missing quote.
type SimulatedFiller struct {
	prices   PriceSource
	now      func() time.Time
	slippage atomic.Uint64 // math.Float64bits of the slippage percentage
}

// NewSimulatedFiller creates a filler applying slippagePct adversely.
func NewSimulatedFiller(prices PriceSource, slippagePct float64, now func() time.Time) *SimulatedFiller {
	if now == nil {
		now = time.Now
	}
	f := &SimulatedFiller{prices: prices, now: now}
	f.SetSlippagePct(slippagePct)
	return f
}

// SetSlippagePct updates the slippage applied to later fills.
func (f *SimulatedFiller) SetSlippagePct(pct float64) {
	if pct < 0 || math.IsNaN(pct) || math.IsInf(pct, 0) {
		pct = 0
	}
	f.slippage.Store(math.Float64bits(pct))
}

// SlippagePct returns the current slippage percentage.
func (f *SimulatedFiller) SlippagePct() float64 {
	return math.Float64frombits(f.slippage.Load())
}

// BuyBuffer is the fraction by which a buy fill may exceed the quote.
func (f *SimulatedFiller) BuyBuffer() float64 {
	return f.SlippagePct() / 200
}

// Mode returns SIMULATED.
func (f *SimulatedFiller) Mode() domain.Mode {
	return domain.ModeSimulated
}

// Fill fills the whole amount at the quote moved by half the slippage against the trader.
func (f *SimulatedFiller) Fill(_ context.Context, side domain.Side, tokenID string, amount float64) (*domain.Fill, error) {
	q, ok := f.prices.Latest(tokenID)
	if !ok {
		return nil, fmt.Errorf("simulated %s %s: %w", side, tokenID, domain.ErrPriceUnavailable)
	}

	adj := f.SlippagePct() / 200
	price := q.Price
	if side == domain.SideBuy {
		price *= 1 + adj
	} else {
		price *= 1 - adj
	}

	return &domain.Fill{
		TokenID:         tokenID,
		Side:            side,
		RequestedAmount: amount,
		FilledAmount:    amount,
		FillPrice:       price,
		Timestamp:       f.now().UnixMilli(),
		Mode:            domain.ModeSimulated,
	}, nil
}

var _ Filler = (*SimulatedFiller)(nil)
