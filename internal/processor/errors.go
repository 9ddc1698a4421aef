package processor

import (
	"errors"
	"fmt"
)

var (
	ErrCardDeclined     = errors.New("card declined")
	ErrRejected         = errors.New("processor rejected request")
	ErrUnavailable      = errors.New("processor unavailable")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook event")
	ErrNotConfigured    = errors.New("processor not configured")
)

// Error wraps a processor failure with one of the sentinel kinds above so
// callers can match with errors.Is while keeping the processor's message.
type Error struct {
	Kind    error
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Code != "":
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Code)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	default:
		return e.Kind.Error()
	}
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}
