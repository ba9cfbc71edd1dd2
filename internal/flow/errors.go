package flow

import (
	"errors"
	"fmt"
)

// Code classifies flow errors.
type Code string

const (
	// CodeStale means the event belongs to a flow or step that is no
	// longer current. The session is left untouched.
	CodeStale Code = "stale"
	// CodeInvalidAction means the action is not accepted in the current
	// state. The session is left untouched.
	CodeInvalidAction Code = "invalid_action"
	// CodeTimeout means the step's deadline passed; the flow was aborted.
	CodeTimeout Code = "timeout"
	// CodeNoSession means the user has no flow in progress.
	CodeNoSession Code = "no_session"
)

// Error is returned for flow-level rejections.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("flow %s: %s", e.Code, e.Message)
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of a flow error, or "" for other errors.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// IsStale reports whether err rejects an out-of-date event.
func IsStale(err error) bool {
	return CodeOf(err) == CodeStale
}
