// Typed errors for adapter operations. Every error crossing the adapter
// boundary carries a machine-parseable kind and a human-readable message;
// raw provider errors stay wrapped underneath.
package adapter

import (
	"errors"
	"fmt"
)

// Kind classifies an adapter error.
type Kind string

const (
	// KindNotFound: no adapter, wallet, or asset for the given key.
	KindNotFound Kind = "not_found"
	// KindRetryable: transient provider failure (timeout, rate limit).
	// Callers may retry with backoff.
	KindRetryable Kind = "retryable"
	// KindTerminal: the operation can never succeed as submitted
	// (insufficient funds, invalid address, reverted execution).
	KindTerminal Kind = "terminal"
	// KindConflict: duplicate unique key. Resolved by idempotent upsert,
	// never surfaced as a user error.
	KindConflict Kind = "conflict"
)

// Error is a classified adapter error.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "evm.GetBalance"
	Message string // human-readable reason
	Err     error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFoundf builds a KindNotFound error.
func NotFoundf(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Retryablef builds a KindRetryable error wrapping cause.
func Retryablef(op string, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindRetryable, Op: op, Message: fmt.Sprintf(format, args...), Err: cause}
}

// Terminalf builds a KindTerminal error wrapping cause.
func Terminalf(op string, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindTerminal, Op: op, Message: fmt.Sprintf(format, args...), Err: cause}
}

// Conflictf builds a KindConflict error.
func Conflictf(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Op: op, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or KindTerminal for unclassified errors.
// Unknown failures must not be retried blindly.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTerminal
}

// IsRetryable reports whether err may succeed on retry.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindRetryable
}

// IsTerminal reports whether err is a permanent failure.
func IsTerminal(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return err != nil
	}
	return e.Kind == KindTerminal
}

// IsNotFound reports whether err is a missing-key failure.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindNotFound
}

// IsConflict reports whether err is a duplicate-key failure.
func IsConflict(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindConflict
}
