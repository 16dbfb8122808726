// Package fault holds the error taxonomy shared by the transport, the store
// and the action coordinator. Callers match kinds with errors.Is.
package fault

import (
	"errors"
	"fmt"
)

var (
	ErrNetwork          = errors.New("network error")
	ErrTimeout          = errors.New("timeout")
	ErrRejected         = errors.New("rejected")
	ErrStaleWrite       = errors.New("stale write")
	ErrAlreadyInFlight  = errors.New("already in flight")
	ErrAmbiguousOutcome = errors.New("ambiguous outcome")
)

// Error carries a failure kind plus the operation and backend detail.
// Delivered is set once the request was fully written to the backend, so
// a later failure cannot tell whether the backend acted on it.
type Error struct {
	Kind      error
	Op        string
	Reason    string
	Status    int
	Delivered bool
	Err       error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

func Network(op string, err error) *Error {
	return &Error{Kind: ErrNetwork, Op: op, Err: err}
}

func Timeout(op string, err error) *Error {
	return &Error{Kind: ErrTimeout, Op: op, Err: err}
}

// Sent records whether the request was written out before e happened.
func (e *Error) Sent(delivered bool) *Error {
	e.Delivered = delivered
	return e
}

func Rejected(op string, status int, reason string) error {
	return &Error{Kind: ErrRejected, Op: op, Status: status, Reason: reason}
}

// AlreadyInFlight reports a duplicate submission for kind and symbol.
func AlreadyInFlight(kind, symbol string) error {
	return &Error{Kind: ErrAlreadyInFlight, Op: kind, Reason: fmt.Sprintf("pending action for %q", symbol)}
}

// Ambiguous wraps a failure after which the backend may or may not have
// applied the request.
func Ambiguous(op string, err error) error {
	return &Error{Kind: ErrAmbiguousOutcome, Op: op, Reason: "outcome unknown, reconcile before resubmitting", Err: err}
}

// Delivered reports whether the request behind err reached the backend.
// A status answer always did.
func Delivered(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Delivered || fe.Status != 0
	}
	return false
}

// Retryable reports whether err is a transport failure an idempotent
// request may be reissued after.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout)
}

// Reason returns the backend detail of err, if any.
func Reason(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ""
}

// Status returns the HTTP status the backend answered with, zero when err
// carries none.
func Status(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Status
	}
	return 0
}
