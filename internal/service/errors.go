package service

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated is wrapped by errors raised before any network call
// because no token is held.
var ErrNotAuthenticated = errors.New("not authenticated")

// Kind classifies a service failure.
type Kind int

const (
	// KindAPI is any non-2xx response not covered by a narrower kind.
	KindAPI Kind = iota

	// KindTransport is a network failure or timeout; no response was read.
	KindTransport

	// KindUnauthorized is a 401 response. The token has been cleared.
	KindUnauthorized

	// KindValidation is a 400/422 response or a structured field error list.
	KindValidation

	// KindNotAuthenticated means no token was held locally.
	KindNotAuthenticated
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindNotAuthenticated:
		return "not_authenticated"
	default:
		return "api"
	}
}

// Error is the normalized failure returned by every service method.
// Message is always human-readable and safe to show to a user.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotAuthenticated returns the error used when no token is held.
func NotAuthenticated() *Error {
	return &Error{
		Kind:    KindNotAuthenticated,
		Message: ErrNotAuthenticated.Error(),
		Err:     ErrNotAuthenticated,
	}
}

// Errorf builds an Error of the given kind.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of err, or KindAPI when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindAPI
}

// Message returns the normalized message of err, or fallback when err
// carries no message.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if fallback != "" {
		return fallback
	}
	return err.Error()
}
