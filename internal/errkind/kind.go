// Package errkind classifies I/O failures into the closed set of kinds the
// reconciler branches on (spec §7). I/O components translate native errors
// into a Kind at their boundary; nothing upstream inspects wire-level
// exceptions.
package errkind

import "fmt"

// Kind is one of the error classifications the reconciler distinguishes by
// kind, never by message text.
type Kind string

const (
	// RateLimited means the remote peer reported a quota-exceeded
	// response; the caller should silently back off.
	RateLimited Kind = "rate-limited"
	// OfflineRemote means the remote sheet API is unreachable.
	OfflineRemote Kind = "offline-remote"
	// OfflineStore means the relational store is unreachable.
	OfflineStore Kind = "offline-store"
	// Contention means a lease was denied after exhausting retries.
	Contention Kind = "contention"
	// Validation means malformed ingress input; it never reaches the
	// core.
	Validation Kind = "validation"
	// Data means a constraint violation or integrity error from the
	// store; retrying cannot succeed.
	Data Kind = "data"
	// Fatal means an unrecoverable bootstrap failure.
	Fatal Kind = "fatal"
)

// Error wraps a classified cause with its Kind. Callers compare Kind, never
// the wrapped error's type or message.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New wraps cause with kind. A nil cause is preserved as a sentinel with no
// underlying error.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// Of reports the Kind of err if it (or something it wraps) is an *Error, and
// whether one was found.
func Of(err error) (Kind, bool) {
	var e *Error
	for err != nil {
		if ke, ok := err.(*Error); ok {
			e = ke
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return "", false
	}
	return e.Kind, true
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}
