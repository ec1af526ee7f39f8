package workflow

import (
	"errors"
	"fmt"
)

// Kind classifies a workflow failure so callers can explain which guard failed.
type Kind string

const (
	KindUnauthorized          Kind = "Unauthorized"
	KindInvalidTransition     Kind = "InvalidTransition"
	KindAlreadyAssigned       Kind = "AlreadyAssigned"
	KindAlreadyCompleted      Kind = "AlreadyCompleted"
	KindAlreadyTerminal       Kind = "AlreadyTerminal"
	KindDuplicateLegalNotice  Kind = "DuplicateLegalNotice"
	KindDependencyUnavailable Kind = "DependencyUnavailable"
	KindConfiguration         Kind = "ConfigurationError"
	KindNotFound              Kind = "NotFound"
	KindInvalidArgument       Kind = "InvalidArgument"
)

// Error is the typed failure returned by every workflow operation.
// Guard failures are never retried; only KindDependencyUnavailable is.
type Error struct {
	Kind   Kind
	Action Action
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Action != "" {
		msg = string(e.Action) + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("workflow: %s: %v", msg, e.Err)
	}
	return "workflow: " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so that errors.Is(err, ErrAlreadyAssigned) works for any
// AlreadyAssigned failure regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrUnauthorized          = &Error{Kind: KindUnauthorized}
	ErrInvalidTransition     = &Error{Kind: KindInvalidTransition}
	ErrAlreadyAssigned       = &Error{Kind: KindAlreadyAssigned}
	ErrAlreadyCompleted      = &Error{Kind: KindAlreadyCompleted}
	ErrAlreadyTerminal       = &Error{Kind: KindAlreadyTerminal}
	ErrDuplicateLegalNotice  = &Error{Kind: KindDuplicateLegalNotice}
	ErrDependencyUnavailable = &Error{Kind: KindDependencyUnavailable}
	ErrConfiguration         = &Error{Kind: KindConfiguration}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrInvalidArgument       = &Error{Kind: KindInvalidArgument}
)

func newError(kind Kind, action Action, format string, args ...any) *Error {
	return &Error{Kind: kind, Action: action, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind to a lower-level error, e.g. a store failure.
func Wrap(kind Kind, action Action, err error) *Error {
	return &Error{Kind: kind, Action: action, Err: err}
}

// KindOf returns the Kind of err, or "" when err is not a workflow error.
func KindOf(err error) Kind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return ""
}

// IsRetryable reports whether retrying the same request may succeed.
func IsRetryable(err error) bool {
	return KindOf(err) == KindDependencyUnavailable
}
