// Package apperr defines the error kinds surfaced by the quote pipeline.
package apperr

import (
	"errors"
)

// Kind classifies a failure for callers and for the external error payload.
type Kind string

const (
	KindRemoteBlocked     Kind = "remote_blocked"
	KindNoEligibleProduct Kind = "no_eligible_product"
	KindNoQuoteReturned   Kind = "no_quote_returned"
	KindInvalidQuote      Kind = "invalid_quote"
	KindDecode            Kind = "decode_error"
	KindTimeout           Kind = "timeout"
	KindNetwork           Kind = "network_error"
	KindInvalidParameter  Kind = "invalid_parameter"
	KindNotReconciled     Kind = "not_reconciled"
	KindNotFound          Kind = "not_found"
	KindCanceled          Kind = "canceled"
	KindInternal          Kind = "internal"
)

// Error is a classified error. Msg is safe to show to API callers; Err keeps
// the underlying cause for logs.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Msg + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error without a cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap creates a classified error around cause.
func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal
// for unclassified errors. A nil error has an empty kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the caller-safe message of err. Unclassified errors get a
// generic message so raw upstream content never leaks.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal error"
}

// Retryable reports whether a caller may retry the whole session from
// scratch.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindNetwork, KindRemoteBlocked:
		return true
	default:
		return false
	}
}

// UserFallback reports whether the remote answered but had no usable data,
// in which case the caller should offer manual entry.
func UserFallback(err error) bool {
	switch KindOf(err) {
	case KindNoEligibleProduct, KindNoQuoteReturned, KindInvalidQuote:
		return true
	default:
		return false
	}
}
