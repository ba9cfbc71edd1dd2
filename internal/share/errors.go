package share

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no share matches an id or token.
var ErrNotFound = errors.New("share not found")

// ErrorKind categorizes failures surfaced by the core.
type ErrorKind string

const (
	// KindValidation covers bad or oversized content, invalid recipients
	// and options the sender's tier does not allow.
	KindValidation ErrorKind = "validation"

	// KindNotPermitted covers actors touching shares that are not theirs.
	KindNotPermitted ErrorKind = "not_permitted"

	// KindPersistence covers store failures.
	KindPersistence ErrorKind = "persistence"

	// KindTransport covers delivery and control message failures.
	KindTransport ErrorKind = "transport"
)

// Error is the structured error type of the core.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation creates a validation error with a formatted, user-facing message.
func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NotPermitted creates a not-permitted error.
func NotPermitted(op, message string) *Error {
	return &Error{Kind: KindNotPermitted, Op: op, Message: message}
}

// Persistence wraps a store failure.
func Persistence(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Op: op, Err: err}
}

// Transport wraps a transport failure.
func Transport(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

func kindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsValidation returns true if err is a validation error.
// Uses errors.As to handle wrapped errors.
func IsValidation(err error) bool { return kindOf(err) == KindValidation }

// IsNotPermitted returns true if err is a not-permitted error.
func IsNotPermitted(err error) bool { return kindOf(err) == KindNotPermitted }

// IsPersistence returns true if err is a persistence error.
func IsPersistence(err error) bool { return kindOf(err) == KindPersistence }

// IsTransport returns true if err is a transport error.
func IsTransport(err error) bool { return kindOf(err) == KindTransport }

// UserMessage returns a short reason suitable for showing to an end user.
func UserMessage(err error) string {
	var se *Error
	if errors.As(err, &se) {
		switch se.Kind {
		case KindValidation:
			return se.Message
		case KindNotPermitted:
			return ReasonNotPermitted
		}
	}
	if errors.Is(err, ErrNotFound) {
		return ReasonGone
	}
	return ReasonTransient
}

// Reasons shown to users for negative outcomes.
const (
	ReasonGone         = "This secret has already been viewed or has expired."
	ReasonNotPermitted = "This secret is not meant for you."
	ReasonTransient    = "Something went wrong on our side. Please try again later."
	ReasonUndelivered  = "The secret was unlocked but could not be delivered. Please try again later."
)

// Reason returns the user-facing message for a view outcome.
func Reason(o ViewOutcome) string {
	switch o.Result {
	case ViewConflict:
		return ReasonGone
	case ViewNotPermitted:
		return ReasonNotPermitted
	}
	if !o.Delivered {
		return ReasonUndelivered
	}
	return ""
}
