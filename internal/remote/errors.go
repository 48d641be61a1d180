package remote

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes remote failures.
type ErrorCode string

const (
	// ErrCodeTransport covers network errors, timeouts and server faults.
	ErrCodeTransport ErrorCode = "TRANSPORT"

	// ErrCodeAuth indicates a missing or rejected session token.
	ErrCodeAuth ErrorCode = "AUTH"

	// ErrCodeConflict indicates the backend rejected a mutation.
	ErrCodeConflict ErrorCode = "CONFLICT"
)

// Error is the single error type returned by Client implementations.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op is the endpoint name, e.g. "acceptFriendRequest".
	Op string

	// Status is the HTTP status code, or 0 when no response was received.
	Status int

	// Message is the backend's message or a local description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s: %s (status=%d)", e.Code, e.Op, msg, e.Status)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewTransportError wraps a transport failure.
func NewTransportError(op string, status int, err error) *Error {
	return &Error{Code: ErrCodeTransport, Op: op, Status: status, Err: err}
}

// NewAuthError reports a missing or rejected token.
func NewAuthError(op string, status int, message string) *Error {
	return &Error{Code: ErrCodeAuth, Op: op, Status: status, Message: message}
}

// NewConflictError reports a rejected mutation.
func NewConflictError(op string, status int, message string) *Error {
	return &Error{Code: ErrCodeConflict, Op: op, Status: status, Message: message}
}

// CodeOf returns the code of a wrapped *Error, or "" if err is not one.
func CodeOf(err error) ErrorCode {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool { return CodeOf(err) == ErrCodeTransport }

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool { return CodeOf(err) == ErrCodeAuth }

// IsConflict reports whether err is a backend rejection of a mutation.
func IsConflict(err error) bool { return CodeOf(err) == ErrCodeConflict }
