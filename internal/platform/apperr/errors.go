// Package apperr defines the transport-independent error taxonomy shared by
// the ledger engine and the transfer coordinator.
package apperr

import "errors"

// Kind discriminates the error taxonomy of the platform. Deterministic
// kinds are never retried by callers; Transient is retried internally by
// the component that emits it.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidRequest
	KindAccountNotFound
	KindInsufficientFunds
	KindIdempotencyConflict
	KindTransient
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "InvalidRequest"
	case KindAccountNotFound:
		return "AccountNotFound"
	case KindInsufficientFunds:
		return "InsufficientFunds"
	case KindIdempotencyConflict:
		return "IdempotencyConflict"
	case KindTransient:
		return "Transient"
	case KindUnavailable:
		return "Unavailable"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with a Kind so callers across process
// boundaries (HTTP facades, the resilient client) can categorize it without
// string matching.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, KindUnknown if err isn't an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

var (
	ErrInvalidRequest      = New(KindInvalidRequest, "invalid request")
	ErrAccountNotFound     = New(KindAccountNotFound, "account not found")
	ErrInsufficientFunds   = New(KindInsufficientFunds, "insufficient funds")
	ErrIdempotencyConflict = New(KindIdempotencyConflict, "idempotency key reused with a different payload")
	ErrUnavailable         = New(KindUnavailable, "ledger unavailable")
)
