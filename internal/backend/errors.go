package backend

import (
	"errors"
)

// Kind classifies failures normalized at the HTTP-client boundary.
// Handlers branch on kinds; they never inspect raw transport errors.
type Kind int

const (
	// KindTransport is a network-level failure before any backend
	// response was read.
	KindTransport Kind = iota + 1

	// KindExchange is a failed code-for-token exchange. The code is
	// single-use, so the only recovery is restarting the flow.
	KindExchange

	// KindProfile is a failed profile fetch with a still-valid session.
	KindProfile

	// KindUnauthorized is a 401-equivalent that survived the refresh
	// attempt. The session has already been cleared when this surfaces.
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindExchange:
		return "exchange"
	case KindProfile:
		return "profile"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Error is a normalized backend failure: a kind for branching and the
// best human-readable message that could be extracted from the response.
type Error struct {
	Kind    Kind
	Message string

	err error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.err != nil {
		return e.err.Error()
	}

	return e.Kind.String() + " error"
}

func (e *Error) Unwrap() error {
	return e.err
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, err: err}
}

// KindOf returns the kind of a normalized error, or 0 for foreign errors.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}

	return 0
}
