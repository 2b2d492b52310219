package market

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"solana-trade-agent/internal/domain"
)

// PriceWriter receives every observed price. Implemented by the Redis price cache.
type PriceWriter interface {
	SetPrice(ctx context.Context, tokenID string, price float64, ts time.Time) error
}

// Quote is a price with its observation time.
type Quote struct {
	Price      float64
	ObservedAt time.Time
}

// PriceBookOptions configures PriceBook.
type PriceBookOptions struct {
	// Upstream supplies fresh quotes. Optional: without it the book only
	// serves what was observed from candidate records.
	Upstream Quoter
	// MaxAge is the staleness window. Quotes older than this are not served.
	MaxAge time.Duration
	// Cache receives a write-through copy of every observation. Optional.
	Cache  PriceWriter
	Logger *slog.Logger
	Now    func() time.Time
}

// PriceBook holds the latest known price per token.
// GetCurrentPrice asks the upstream first and falls back to a quote younger
// than MaxAge; anything older is reported unavailable.
type PriceBook struct {
	opts   PriceBookOptions
	logger *slog.Logger

	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewPriceBook creates a PriceBook.
func NewPriceBook(opts PriceBookOptions) *PriceBook {
	if opts.MaxAge <= 0 {
		opts.MaxAge = 2 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PriceBook{
		opts:   opts,
		logger: logger.With("component", "price_book"),
		quotes: make(map[string]Quote),
	}
}

// Observe records a price. Non-positive or non-finite prices are ignored.
func (b *PriceBook) Observe(ctx context.Context, tokenID string, price float64, at time.Time) {
	if _, ok := domain.Value(&price); !ok || price <= 0 {
		return
	}

	b.mu.Lock()
	if cur, ok := b.quotes[tokenID]; ok && cur.ObservedAt.After(at) {
		b.mu.Unlock()
		return
	}
	b.quotes[tokenID] = Quote{Price: price, ObservedAt: at}
	b.mu.Unlock()

	if b.opts.Cache != nil {
		if err := b.opts.Cache.SetPrice(ctx, tokenID, price, at); err != nil {
			b.logger.Warn("price cache write failed", "token_id", tokenID, "error", err)
		}
	}
}

// ObserveRecords records the price of every candidate that carries one.
func (b *PriceBook) ObserveRecords(ctx context.Context, recs []*domain.TokenRecord) {
	for _, r := range recs {
		if p, ok := r.Price(); ok {
			at := b.opts.Now()
			if r.FetchedAt > 0 {
				at = time.UnixMilli(r.FetchedAt)
			}
			b.Observe(ctx, r.TokenID, p, at)
		}
	}
}

// Latest returns the newest quote if it is within the staleness window.
func (b *PriceBook) Latest(tokenID string) (Quote, bool) {
	b.mu.RLock()
	q, ok := b.quotes[tokenID]
	b.mu.RUnlock()
	if !ok {
		return Quote{}, false
	}
	if b.opts.Now().Sub(q.ObservedAt) > b.opts.MaxAge {
		return Quote{}, false
	}
	return q, true
}

// GetCurrentPrice returns a fresh price. Upstream errors are logged and
// degrade to the cached quote; they are only returned when no fresh quote exists.
func (b *PriceBook) GetCurrentPrice(ctx context.Context, tokenID string) (float64, bool, error) {
	var upstreamErr error
	if b.opts.Upstream != nil {
		price, ok, err := b.opts.Upstream.GetCurrentPrice(ctx, tokenID)
		switch {
		case err != nil:
			upstreamErr = err
			b.logger.Debug("upstream quote failed", "token_id", tokenID, "error", err)
		case ok:
			b.Observe(ctx, tokenID, price, b.opts.Now())
			return price, true, nil
		}
	}

	if q, ok := b.Latest(tokenID); ok {
		return q.Price, true, nil
	}
	return 0, false, upstreamErr
}

var _ Quoter = (*PriceBook)(nil)
