package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-agent/internal/domain"
	"solana-trade-agent/internal/storage"
)

type fakeVenue struct {
	result *domain.VenueResult
	err    error
	delay  time.Duration
	calls  int
}

func (v *fakeVenue) submit(ctx context.Context) (*domain.VenueResult, error) {
	v.calls++
	if v.delay > 0 {
		select {
		case <-time.After(v.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return v.result, v.err
}

func (v *fakeVenue) SubmitBuy(ctx context.Context, _ string, _ float64) (*domain.VenueResult, error) {
	return v.submit(ctx)
}

func (v *fakeVenue) SubmitSell(ctx context.Context, _ string, _ float64) (*domain.VenueResult, error) {
	return v.submit(ctx)
}

func fp(v float64) *float64 { return &v }
func sp(v string) *string   { return &v }

func (h *harness) real(v Venue, timeout time.Duration) *OrderExecutor {
	return New(Options{Filler: NewRealFiller(v, h.prices, timeout, h.clock), Ledger: h.ledger, Prices: h.prices})
}

func TestReal_BuyRecordsVenueFill(t *testing.T) {
	h := newHarness(t, domain.ModeReal, 10)
	h.quote("X", 2)
	v := &fakeVenue{result: &domain.VenueResult{FilledAmount: fp(1), Price: fp(2.1), TxRef: sp("sig1"), Status: "filled"}}

	res, err := h.real(v, 0).Buy(context.Background(), "X", 1)
	require.NoError(t, err)
	assert.Equal(t, "sig1", *res.Trade.TxRef)
	assert.Equal(t, domain.ModeReal, res.Trade.Mode)
	assert.InDelta(t, 2.1, res.Trade.FillPrice, 1e-12)
	assert.InDelta(t, 7.9, h.available(t, domain.ModeReal), 1e-12)
}

func TestReal_PreflightNeverContactsVenue(t *testing.T) {
	h := newHarness(t, domain.ModeReal, 0.05)
	h.quote("X", 1)
	v := &fakeVenue{result: &domain.VenueResult{FilledAmount: fp(0.1), Price: fp(1)}}

	_, err := h.real(v, 0).Buy(context.Background(), "X", 0.1)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, 0, v.calls)
}

func TestReal_TimeoutIsExecutionError(t *testing.T) {
	h := newHarness(t, domain.ModeReal, 10)
	h.quote("X", 1)
	v := &fakeVenue{delay: time.Second, result: &domain.VenueResult{FilledAmount: fp(1)}}

	_, err := h.real(v, 10*time.Millisecond).Buy(context.Background(), "X", 1)
	var execErr *domain.ExecutionError
	require.True(t, errors.As(err, &execErr), "got %v", err)
	assert.True(t, execErr.Temporary())
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	trades, err := h.ledger.Trades(context.Background(), storage.TradeFilter{})
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestReal_RejectionIsNotRetryable(t *testing.T) {
	h := newHarness(t, domain.ModeReal, 10)
	h.quote("X", 1)
	v := &fakeVenue{result: &domain.VenueResult{Status: "rejected", Message: "slippage"}}

	_, err := h.real(v, 0).Buy(context.Background(), "X", 1)
	var execErr *domain.ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.False(t, execErr.Temporary())
	assert.ErrorIs(t, err, domain.ErrVenueRejected)
	assert.InDelta(t, 10.0, h.available(t, domain.ModeReal), 1e-12)
}

func TestReal_ZeroFillIsError(t *testing.T) {
	h := newHarness(t, domain.ModeReal, 10)
	h.quote("X", 1)
	v := &fakeVenue{result: &domain.VenueResult{FilledAmount: fp(0), Price: fp(1), Status: "filled"}}

	_, err := h.real(v, 0).Buy(context.Background(), "X", 1)
	assert.ErrorIs(t, err, domain.ErrExecution)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name      string
		res       domain.VenueResult
		side      domain.Side
		requested float64
		fallback  *float64
		qty       float64
		price     float64
		wantErr   error
	}{
		{name: "filled and price", res: domain.VenueResult{FilledAmount: fp(1), Price: fp(2)},
			side: domain.SideBuy, requested: 1, qty: 1, price: 2},
		{name: "buy from swap legs", res: domain.VenueResult{InAmount: fp(3), OutAmount: fp(1.5)},
			side: domain.SideBuy, requested: 2, qty: 1.5, price: 2},
		{name: "sell from swap legs", res: domain.VenueResult{InAmount: fp(2), OutAmount: fp(5)},
			side: domain.SideSell, requested: 2, qty: 2, price: 2.5},
		{name: "bare quantity uses fallback", res: domain.VenueResult{FilledAmount: fp(1)},
			side: domain.SideBuy, requested: 1, fallback: fp(4), qty: 1, price: 4},
		{name: "bare quantity without fallback", res: domain.VenueResult{FilledAmount: fp(1)},
			side: domain.SideBuy, requested: 1, wantErr: domain.ErrMalformedVenueResponse},
		{name: "no quantity", res: domain.VenueResult{Price: fp(1)},
			side: domain.SideSell, requested: 1, wantErr: domain.ErrMalformedVenueResponse},
		{name: "error message without status", res: domain.VenueResult{Message: "insufficient SOL"},
			side: domain.SideBuy, requested: 1, wantErr: domain.ErrVenueRejected},
		{name: "unknown status", res: domain.VenueResult{FilledAmount: fp(1), Price: fp(1), Status: "pending"},
			side: domain.SideBuy, requested: 1, wantErr: domain.ErrMalformedVenueResponse},
		{name: "overfill", res: domain.VenueResult{FilledAmount: fp(2), Price: fp(1)},
			side: domain.SideBuy, requested: 1, wantErr: domain.ErrMalformedVenueResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.res
			qty, price, err := Normalize(&res, tt.side, tt.requested, tt.fallback)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.qty, qty, 1e-12)
			assert.InDelta(t, tt.price, price, 1e-12)
		})
	}
}
