package domain

import (
	"errors"
	"fmt"
)

// Engine error taxonomy.
var (
	// ErrInsufficientBalance is returned pre-flight when a BUY exceeds available capital.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNoOpenPosition is returned when a SELL has no matching open position.
	ErrNoOpenPosition = errors.New("no open position")

	// ErrPriceUnavailable is returned when no fresh price exists for a token.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrModeMismatch is returned when a fill's mode differs from the executor's mode.
	ErrModeMismatch = errors.New("execution mode mismatch")

	// ErrVenueRejected is returned when the venue explicitly refuses an order.
	ErrVenueRejected = errors.New("venue rejected order")

	// ErrMalformedVenueResponse is returned when a venue result cannot be normalized.
	ErrMalformedVenueResponse = errors.New("malformed venue response")

	// ErrUnconfirmed is returned when a submitted transaction was not confirmed in time.
	// Its outcome is unknown, so it is never retried automatically.
	ErrUnconfirmed = errors.New("transaction not confirmed")

	// ErrExecution is the sentinel matched by every ExecutionError.
	ErrExecution = errors.New("execution failed")

	// ErrLedger is the sentinel matched by every LedgerError.
	ErrLedger = errors.New("ledger unavailable")
)

// InsufficientBalanceError carries the amounts behind an ErrInsufficientBalance.
type InsufficientBalanceError struct {
	Mode      Mode
	Required  float64
	Available float64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance (%s): required %.9f, available %.9f",
		e.Mode, e.Required, e.Available)
}

// Is matches ErrInsufficientBalance.
func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// ExecutionError wraps a venue failure: timeout, rejection or malformed response.
type ExecutionError struct {
	TokenID   string
	Side      Side
	Retryable bool // false for explicit venue rejections and malformed responses
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s %s: %v", e.Side, e.TokenID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the same request may succeed.
func (e *ExecutionError) Temporary() bool {
	return e.Retryable
}

// Is matches ErrExecution.
func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecution
}

// LedgerError wraps a persistence failure. Fatal for the current cycle only.
type LedgerError struct {
	Op  string
	Err error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// Is matches ErrLedger.
func (e *LedgerError) Is(target error) bool {
	return target == ErrLedger
}
