package types

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable machine-readable classification of an engine
// failure. Kinds are wire-stable: the presentation layer keys off them.
type ErrorKind string

// Validation failures: the guard rejected the operation before any Ledger
// call was made. Fully recoverable by correcting input.
const (
	ErrInsufficientCollateral ErrorKind = "INSUFFICIENT_COLLATERAL"
	ErrInsufficientPayment    ErrorKind = "INSUFFICIENT_PAYMENT"
	ErrAlreadyMatched         ErrorKind = "ALREADY_MATCHED"
	ErrNotOwner               ErrorKind = "NOT_OWNER"
	ErrNotExpired             ErrorKind = "NOT_EXPIRED"
	ErrIllegalTransition      ErrorKind = "ILLEGAL_TRANSITION"
	ErrInvalidTerms           ErrorKind = "INVALID_TERMS"
)

// Store failures.
const (
	ErrNotFound    ErrorKind = "NOT_FOUND"
	ErrDuplicateID ErrorKind = "DUPLICATE_ID"
	ErrNotLocked   ErrorKind = "NOT_LOCKED"
)

// Concurrency: another mutation is in flight for the entity. Retryable
// after backoff.
const (
	ErrEntityBusy ErrorKind = "ENTITY_BUSY"
)

// Oracle failures. Retryable after a feed refresh.
const (
	ErrStaleOracleData   ErrorKind = "STALE_ORACLE_DATA"
	ErrOracleUnavailable ErrorKind = "ORACLE_UNAVAILABLE"
)

// Ledger failures: optimistic state has been rolled back. Timeout
// additionally requires a reconciliation read before the entity is settled.
const (
	ErrLedgerRejected ErrorKind = "LEDGER_REJECTED"
	ErrTimeout        ErrorKind = "TIMEOUT"
	ErrNetworkError   ErrorKind = "NETWORK_ERROR"
)

// Calculation guard.
const (
	ErrDivisionByZero ErrorKind = "DIVISION_BY_ZERO"
)

// Error is the typed failure value surfaced by every engine operation:
// a stable kind plus a human-readable reason.
type Error struct {
	Kind   ErrorKind `json:"kind"`
	Reason string    `json:"reason"`
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Reason
}

// E builds a typed engine error.
func E(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// KindOf extracts the engine error kind, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the caller may simply retry the operation
// without changing its input.
func Retryable(err error) bool {
	switch KindOf(err) {
	case ErrEntityBusy, ErrStaleOracleData, ErrOracleUnavailable, ErrNetworkError:
		return true
	}
	return false
}
