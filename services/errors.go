package services

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the services wraps one of these, except
// context errors and unexpected I/O failures.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrTransform    = errors.New("transform failed")
)

// Error is a failure with a message meant for the client.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func invalidf(format string, args ...any) error {
	return &Error{Kind: ErrInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

// transformErr keeps the underlying message, which is what clients see.
func transformErr(err error) error {
	return &Error{Kind: ErrTransform, Message: err.Error()}
}
