package services

import (
	"errors"
	"fmt"
	"time"
)

// Code is a machine-readable economy error code.
type Code string

const (
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeCooldownActive      Code = "COOLDOWN_ACTIVE"
	CodeAlreadyConsumed     Code = "ALREADY_CONSUMED"
	CodeAlreadyTargeted     Code = "ALREADY_TARGETED"
	CodeTargetUnavailable   Code = "TARGET_UNAVAILABLE"
	CodeNoActiveSession     Code = "NO_ACTIVE_SESSION"
	CodeDuplicateSubmission Code = "DUPLICATE_SUBMISSION"
	CodeTransientFailure    Code = "TRANSIENT_FAILURE"
	CodeNotFound            Code = "NOT_FOUND"
	CodeInvalidArgument     Code = "INVALID_ARGUMENT"
)

// Error carries a Code through wrapping. Two Errors match under errors.Is
// when their codes are equal, so callers compare against the Err* values.
type Error struct {
	Code       Code
	Message    string
	RetryAfter time.Duration // CooldownActive only
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInsufficientBalance = &Error{Code: CodeInsufficientBalance, Message: "insufficient balance"}
	ErrCooldownActive      = &Error{Code: CodeCooldownActive, Message: "power-up purchased too recently"}
	ErrAlreadyConsumed     = &Error{Code: CodeAlreadyConsumed, Message: "power-up already consumed"}
	ErrAlreadyTargeted     = &Error{Code: CodeAlreadyTargeted, Message: "target already has a pending sabotage"}
	ErrTargetUnavailable   = &Error{Code: CodeTargetUnavailable, Message: "target unavailable"}
	ErrNoActiveSession     = &Error{Code: CodeNoActiveSession, Message: "no active power-up session"}
	ErrDuplicateSubmission = &Error{Code: CodeDuplicateSubmission, Message: "attempt already submitted"}
	ErrTransientFailure    = &Error{Code: CodeTransientFailure, Message: "temporary storage failure"}
	ErrNotFound            = &Error{Code: CodeNotFound, Message: "not found"}
	ErrInvalidArgument     = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
)

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the economy code carried by err, or "" for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsTransient reports whether retrying the same call may succeed.
func IsTransient(err error) bool {
	return CodeOf(err) == CodeTransientFailure
}
