// Package market supplies candidate token records and spot prices.
package market

import (
	"context"

	"solana-trade-agent/internal/domain"
)

// Provider is the market data collaborator.
type Provider interface {
	// ListCandidates returns the token records discovered this cycle.
	ListCandidates(ctx context.Context) ([]*domain.TokenRecord, error)

	// GetCurrentPrice returns the spot price of a token.
	// ok is false when the feed has no quote; that is not an error.
	GetCurrentPrice(ctx context.Context, tokenID string) (price float64, ok bool, err error)
}

// Quoter is the price half of Provider.
type Quoter interface {
	GetCurrentPrice(ctx context.Context, tokenID string) (price float64, ok bool, err error)
}
