package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies an error for every transport: chat replies, REST
// statuses and logs.
type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeInvalid      ErrorCode = "INVALID"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeUnavailable  ErrorCode = "UNAVAILABLE"
	ErrCodeInternal     ErrorCode = "INTERNAL"
)

// Error is a classified error. Two errors with the same code and message
// match under errors.Is, whatever cause they wrap.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Err: cause}
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// CodeOf returns the code of the first classified error in err's chain, or
// ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code
	}
	return ErrCodeInternal
}

// Bad user input. Chat flows re-prompt without changing state.
var (
	ErrInvalidDate    = NewError(ErrCodeInvalid, "invalid date")
	ErrInvalidTime    = NewError(ErrCodeInvalid, "invalid time")
	ErrInvalidHours   = NewError(ErrCodeInvalid, "invalid hours")
	ErrInvalidPayload = NewError(ErrCodeInvalid, "invalid payload")
)

// Missing state. Chat flows answer with a "nothing in progress" reply.
var (
	ErrDraftNotFound   = NewError(ErrCodeNotFound, "draft not found")
	ErrTaskNotFound    = NewError(ErrCodeNotFound, "task not found")
	ErrSessionNotFound = NewError(ErrCodeNotFound, "action session not found")
)

// Actions that do not fit the current step or status.
var (
	ErrNotConfirmable  = NewError(ErrCodeConflict, "draft is not ready for confirmation")
	ErrTaskAlreadyDone = NewError(ErrCodeConflict, "task already completed")
	ErrUnexpectedInput = NewError(ErrCodeConflict, "step does not accept text input")
)

// Collaborators. A missing external record is benign.
var (
	ErrExternalNotFound     = NewError(ErrCodeNotFound, "external record not found")
	ErrCollaboratorDisabled = NewError(ErrCodeUnavailable, "collaborator disabled")
)

var (
	ErrForbidden    = NewError(ErrCodeForbidden, "forbidden")
	ErrUnauthorized = NewError(ErrCodeUnauthorized, "unauthorized")
)
