// Package chaterr defines the error vocabulary shared by the store, the
// mutation broker, and both transport adapters. Callers branch on the Kind,
// never on the message text.
package chaterr

import "errors"

// Kind classifies an error for reply shaping and propagation policy.
type Kind int

const (
	// Validation covers malformed input detected before any mutation:
	// bad envelope JSON, empty nickname, oversized message.
	Validation Kind = iota
	// Auth covers capability failures: unknown id, key mismatch,
	// secret mismatch.
	Auth
	// Storage covers failures of the underlying store. The public reply
	// carries a generic message; the diagnostic goes to the log only.
	Storage
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Auth:
		return "auth"
	case Storage:
		return "storage"
	}
	return "unknown"
}

// Error is the outcome type for all chat operations that can fail on
// behalf of the caller rather than the process.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string { return e.Message }

// Unwrap exposes the underlying cause, if any (storage errors keep theirs
// for logging; it is never sent to clients).
func (e *Error) Unwrap() error { return e.cause }

// New returns an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns a Storage error hiding cause behind a generic message.
func Wrap(cause error) *Error {
	return &Error{Kind: Storage, Message: "storage failure.", cause: cause}
}

// KindOf reports the kind of err, or Storage if err is not an *Error.
// Unclassified errors are by definition infrastructure failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Storage
}

// Public returns the message safe to send to clients.
func Public(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "storage failure."
}
