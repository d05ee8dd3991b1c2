// Package errs defines the business error kinds shared by all
// fulfillment services. Handlers encode the kind into the response body
// so it survives the HTTP boundary; clients rebuild the same typed
// error on the other side.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies a business failure independent of transport.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindNotAvailable    Kind = "not_available"
	KindNotEnoughAmount Kind = "not_enough_amount"
	KindBadAccount      Kind = "bad_account"
	KindBadOrder        Kind = "bad_order"
	KindRemoteCall      Kind = "remote_call"
	KindOrderFailed     Kind = "order_failed"
)

// Error is a business error with a wire-stable kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound reports a missing entity.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// NotAvailable reports insufficient stock.
func NotAvailable(format string, args ...any) error {
	return &Error{Kind: KindNotAvailable, Msg: fmt.Sprintf(format, args...)}
}

// NotEnoughAmount reports insufficient funds.
func NotEnoughAmount(format string, args ...any) error {
	return &Error{Kind: KindNotEnoughAmount, Msg: fmt.Sprintf(format, args...)}
}

// BadAccount reports a user with no usable payment account.
func BadAccount(format string, args ...any) error {
	return &Error{Kind: KindBadAccount, Msg: fmt.Sprintf(format, args...)}
}

// BadOrder reports that order persistence failed to allocate an id.
func BadOrder(format string, args ...any) error {
	return &Error{Kind: KindBadOrder, Msg: fmt.Sprintf(format, args...)}
}

// RemoteCall wraps a transport-level failure from a collaborator.
func RemoteCall(err error, format string, args ...any) error {
	return &Error{Kind: KindRemoteCall, Msg: fmt.Sprintf(format, args...), Err: err}
}

// FromKind rebuilds a typed error from a wire kind and message. Unknown
// kinds come back as remote-call errors so callers never mistake a
// garbled response for a clean business failure.
func FromKind(kind Kind, msg string) error {
	switch kind {
	case KindNotFound, KindNotAvailable, KindNotEnoughAmount, KindBadAccount, KindBadOrder, KindOrderFailed:
		return &Error{Kind: kind, Msg: msg}
	default:
		return &Error{Kind: KindRemoteCall, Msg: msg}
	}
}

// KindOf extracts the kind from err, or "" if err carries none. The
// saga wrapper is checked first: an OrderFailed always reports
// order_failed, not the kind of the cause it wraps.
func KindOf(err error) Kind {
	var of *OrderFailed
	if errors.As(err, &of) {
		return KindOrderFailed
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Saga stages reported inside OrderFailed.
const (
	StageReservation = "reservation"
	StagePayment     = "payment"
	StageApproval    = "approval"
)

// OrderFailed is the saga-level wrapper surfaced to the orchestrator's
// caller. Stage names the step that failed, Cause is the underlying
// failure (possibly joined with a compensation failure).
type OrderFailed struct {
	Stage string
	Cause error
}

func (e *OrderFailed) Error() string {
	return fmt.Sprintf("order failed at %s stage: %v", e.Stage, e.Cause)
}

func (e *OrderFailed) Unwrap() error { return e.Cause }
