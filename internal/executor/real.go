package executor

import (
	"context"
	"fmt"
	"math"
	"time"

	"solana-trade-agent/internal/domain"
)

// Venue is the live execution collaborator.
type Venue interface {
	SubmitBuy(ctx context.Context, tokenID string, amount float64) (*domain.VenueResult, error)
	SubmitSell(ctx context.Context, tokenID string, amount float64) (*domain.VenueResult, error)
}

// overfillTolerance bounds how far a venue may exceed the requested quantity.
const overfillTolerance = 1e-6

// RealFiller submits orders to a venue and normalizes its result.
type RealFiller struct {
	venue   Venue
	prices  PriceSource
	timeout time.Duration
	now     func() time.Time
}

// NewRealFiller creates a filler. timeout bounds each venue call; zero leaves
// it to the venue client.
func NewRealFiller(venue Venue, prices PriceSource, timeout time.Duration, now func() time.Time) *RealFiller {
	if now == nil {
		now = time.Now
	}
	return &RealFiller{venue: venue, prices: prices, timeout: timeout, now: now}
}

// Mode returns REAL.
func (f *RealFiller) Mode() domain.Mode {
	return domain.ModeReal
}

// Fill submits the order. Timeouts surface as errors like any venue failure.
func (f *RealFiller) Fill(ctx context.Context, side domain.Side, tokenID string, amount float64) (*domain.Fill, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	var (
		res *domain.VenueResult
		err error
	)
	if side == domain.SideBuy {
		res, err = f.venue.SubmitBuy(ctx, tokenID, amount)
	} else {
		res, err = f.venue.SubmitSell(ctx, tokenID, amount)
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("%w: empty result", domain.ErrMalformedVenueResponse)
	}

	var fallback *float64
	if f.prices != nil {
		if q, ok := f.prices.Latest(tokenID); ok {
			fallback = &q.Price
		}
	}

	qty, price, err := Normalize(res, side, amount, fallback)
	if err != nil {
		return nil, err
	}

	return &domain.Fill{
		TokenID:         tokenID,
		Side:            side,
		RequestedAmount: amount,
		FilledAmount:    qty,
		FillPrice:       price,
		TxRef:           res.TxRef,
		Timestamp:       f.now().UnixMilli(),
		Mode:            domain.ModeReal,
	}, nil
}

// Normalize extracts filled quantity and price from a venue result.
//
// Quantity is the reported filled amount, else the token leg of the swap
// (out for buys, in for sells). Price is the reported price, else the capital
// leg divided by quantity, else fallbackPrice. A result without a usable
// quantity or price is malformed; a zero fill is never accepted.
func Normalize(res *domain.VenueResult, side domain.Side, requested float64, fallbackPrice *float64) (float64, float64, error) {
	switch res.Status {
	case "rejected", "failed", "error", "cancelled", "canceled", "expired":
		return 0, 0, fmt.Errorf("%w: status %s: %s", domain.ErrVenueRejected, res.Status, res.Message)
	case "", "filled", "partial", "partially_filled", "success", "ok", "confirmed":
	default:
		return 0, 0, fmt.Errorf("%w: unknown status %q", domain.ErrMalformedVenueResponse, res.Status)
	}
	if res.Status == "" && res.Message != "" {
		return 0, 0, fmt.Errorf("%w: %s", domain.ErrVenueRejected, res.Message)
	}

	tokenLeg, capitalLeg := res.OutAmount, res.InAmount
	if side == domain.SideSell {
		tokenLeg, capitalLeg = res.InAmount, res.OutAmount
	}

	qtyPtr := res.FilledAmount
	if qtyPtr == nil {
		qtyPtr = tokenLeg
	}
	qty, ok := domain.Value(qtyPtr)
	if !ok {
		return 0, 0, fmt.Errorf("%w: no filled quantity", domain.ErrMalformedVenueResponse)
	}
	if qty <= 0 {
		return 0, 0, fmt.Errorf("%w: zero fill", domain.ErrVenueRejected)
	}
	if qty > requested*(1+overfillTolerance) {
		return 0, 0, fmt.Errorf("%w: filled %.9f exceeds requested %.9f",
			domain.ErrMalformedVenueResponse, qty, requested)
	}
	reported := qty
	qty = math.Min(qty, requested)

	if p, ok := domain.Value(res.Price); ok && p > 0 {
		return qty, p, nil
	}
	if c, ok := domain.Value(capitalLeg); ok && c > 0 {
		return qty, c / reported, nil
	}
	if p, ok := domain.Value(fallbackPrice); ok && p > 0 {
		return qty, p, nil
	}
	return 0, 0, fmt.Errorf("%w: no fill price", domain.ErrMalformedVenueResponse)
}

var _ Filler = (*RealFiller)(nil)
