package service

import (
	"errors"
	"fmt"
)

// Sentinel errors. Handlers map these to machine-readable codes; nothing in
// this package returns a bare 500-class failure for an expected condition.
var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrContestNotFound     = errors.New("contest not found")
	ErrContestFull         = errors.New("contest is full")
	ErrContestClosed       = errors.New("contest is no longer accepting entries")
	ErrNotCancellable      = errors.New("contest can no longer be cancelled")
	ErrIdempotencyConflict = errors.New("idempotency key reused with a different payload")
	ErrRequestInFlight     = errors.New("a request with this idempotency key is already in flight")
	ErrBadSignature        = errors.New("invalid webhook signature")
	ErrUnknownIntent       = errors.New("unknown payment intent")
	ErrAmountMismatch      = errors.New("event amount does not match intent")
	ErrLedgerCorruption    = errors.New("ledger corruption detected")
)

// InsufficientBalanceError is permanent from the caller's perspective until
// funds are added; it carries the numbers the client needs to render.
type InsufficientBalanceError struct {
	RequiredCents  int64
	AvailableCents int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %d, available %d", e.RequiredCents, e.AvailableCents)
}
