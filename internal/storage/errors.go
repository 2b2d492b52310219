package storage

import (
	"errors"

	"solana-trade-agent/internal/domain"
)

// Storage errors for ledger and event stores.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists. Append-only stores do not allow updates.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNegativeBalance is returned when a balance adjustment would drop available capital below zero.
	ErrNegativeBalance = errors.New("balance would become negative")
)

// ValidateTrade checks the fields every backend requires before insert.
func ValidateTrade(t *domain.Trade) error {
	if t == nil || t.TradeID == "" || t.TokenID == "" {
		return ErrInvalidInput
	}
	if !t.Side.IsValid() || !t.Mode.IsValid() {
		return ErrInvalidInput
	}
	if t.FilledAmount < 0 || t.FillPrice < 0 {
		return ErrInvalidInput
	}
	return nil
}
