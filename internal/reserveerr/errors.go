// Package reserveerr defines the typed error kinds that every command and
// core package in this module surfaces to the caller. Kinds are sentinel
// errors so callers can classify a failure with errors.Is without parsing
// message text.
package reserveerr

import "fmt"

// Kind classifies a failure into one of the categories the dispatcher and
// tests distinguish on.
type Kind string

const (
	KindIO                Kind = "io_error"
	KindDecode            Kind = "decode_error"
	KindVersion           Kind = "version_error"
	KindState             Kind = "state_error"
	KindDuplicate         Kind = "duplicate_error"
	KindBackend           Kind = "backend_error"
	KindConsensus         Kind = "consensus_error"
	KindAmount            Kind = "amount_error"
	KindChallengeMismatch Kind = "challenge_mismatch"
	KindPrevoutNotFound   Kind = "prevout_not_found"
)

// Error wraps an underlying cause with a Kind so callers can branch on
// failure category while still getting a %w-compatible chain.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, reserveerr.KindConsensus) work directly against a
// bare Kind value as well as against another *Error of the same Kind.
func (e *Error) Is(target error) bool {
	if k, ok := target.(Kind); ok {
		return e.Kind == k
	}
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// Error lets a bare Kind satisfy the error interface, which is what makes
// errors.Is(err, reserveerr.KindX) read naturally at call sites.
func (k Kind) Error() string { return string(k) }

// New builds an *Error of the given kind wrapping cause (which may be nil).
func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Wrapf is a convenience for New with a formatted message.
func Wrapf(kind Kind, cause error, format string, args ...interface{}) *Error {
	return New(kind, fmt.Sprintf(format, args...), cause)
}
