package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide how to degrade.
type Kind int

const (
	// KindUnknown is the zero value for errors that carry no kind.
	KindUnknown Kind = iota
	// KindNetwork is a transport-level failure (dial, timeout, broken body).
	KindNetwork
	// KindUpstream is a non-2xx or malformed response from a provider API.
	KindUpstream
	// KindValidation is a missing or malformed required request field.
	KindValidation
	// KindAuth is a secret or token mismatch.
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindUpstream:
		return "upstream"
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Error is a classified error. It wraps the underlying cause so errors.Is
// and errors.As keep working through the chain.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a kind and the operation that failed.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf wraps a formatted message with a kind.
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first classified error in the chain,
// or KindUnknown when none is found.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
