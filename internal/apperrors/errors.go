// Package apperrors defines the error taxonomy every component returns,
// and that the router turns into wire-protocol error frames.
package apperrors

import (
	"errors"
	"fmt"
)

// Code is one of the wire-protocol error codes from the envelope spec.
type Code string

const (
	CodeInvalidMessage Code = "INVALID_MESSAGE"
	CodeUnauthorized   Code = "UNAUTHORIZED"
	CodeRoomNotFound   Code = "ROOM_NOT_FOUND"
	CodeRoomExists     Code = "ROOM_EXISTS"
	CodeUserExists     Code = "USER_EXISTS"
	CodeRateLimit      Code = "RATE_LIMIT"
	CodeDatabaseError  Code = "DATABASE_ERROR"
	CodeInternal       Code = "INTERNAL_ERROR"
)

// ChatError is the error type every component returns; the router maps
// it directly onto an `error` frame without re-classifying the failure.
type ChatError struct {
	Code       Code
	Message    string
	RetryAfter int // seconds; only meaningful for CodeRateLimit
	Err        error
}

func (e *ChatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ChatError) Unwrap() error {
	return e.Err
}

// New creates a ChatError with no wrapped cause.
func New(code Code, message string) *ChatError {
	return &ChatError{Code: code, Message: message}
}

// Wrap attaches a wire code and message to an underlying error.
func Wrap(err error, code Code, message string) *ChatError {
	return &ChatError{Code: code, Message: message, Err: err}
}

// WithRetryAfter sets retryAfterSeconds on a rate-limit error.
func (e *ChatError) WithRetryAfter(seconds int) *ChatError {
	e.RetryAfter = seconds
	return e
}

var (
	ErrInvalidMessage = New(CodeInvalidMessage, "malformed or unrecognized frame")
	ErrUnauthorized   = New(CodeUnauthorized, "authenticate before sending this frame")
	ErrRoomNotFound   = New(CodeRoomNotFound, "room does not exist or is not active")
	ErrRoomExists     = New(CodeRoomExists, "a room with that name already exists")
	ErrUserExists     = New(CodeUserExists, "username is already taken by another online user")
	ErrRateLimit      = New(CodeRateLimit, "rate limit exceeded")
	ErrDatabaseError  = New(CodeDatabaseError, "durable store is unavailable")
	ErrInternal       = New(CodeInternal, "internal error")
)

// As reports whether err's chain contains a *ChatError and, if so, copies
// it into target.
func As(err error, target **ChatError) bool {
	return errors.As(err, target)
}

// CodeOf extracts the wire code from err, defaulting to INTERNAL_ERROR for
// errors the store/bus layers didn't classify.
func CodeOf(err error) Code {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeInternal
}

// MessageOf extracts the client-facing message from err.
func MessageOf(err error) string {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Message
	}
	return "internal error"
}
