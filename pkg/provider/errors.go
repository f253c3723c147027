package provider

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies why a provider call failed.
type Kind string

const (
	// KindTimeout means the provider's deadline elapsed before the backend
	// answered. The transport was cancelled or the process killed.
	KindTimeout Kind = "timeout"

	// KindUnavailable means the backend could not be reached or spawned.
	KindUnavailable Kind = "backend_unavailable"

	// KindBackend means the backend ran but reported failure.
	KindBackend Kind = "backend_error"

	// KindEmpty means the backend answered with only whitespace.
	KindEmpty Kind = "empty_response"

	// KindCanceled means the caller gave up before the provider's deadline.
	KindCanceled Kind = "canceled"
)

// Error is returned by Invoke for every failed call. Message starts with the
// provider's display name and a stable phrase identifying the failure kind.
type Error struct {
	Provider string
	Kind     Kind
	// Code is the HTTP status or process exit code, 0 when not applicable.
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err, or "" if err is not a *Error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func timeoutError(display string, limit time.Duration, err error) *Error {
	return &Error{
		Provider: display,
		Kind:     KindTimeout,
		Message:  fmt.Sprintf("%s timeout - request took too long (limit %s)", display, limit),
		Err:      err,
	}
}

func callerTimeoutError(display string, err error) *Error {
	return &Error{
		Provider: display,
		Kind:     KindTimeout,
		Message:  fmt.Sprintf("%s timeout - request took too long (caller deadline)", display),
		Err:      err,
	}
}

func canceledError(display string, err error) *Error {
	return &Error{
		Provider: display,
		Kind:     KindCanceled,
		Message:  fmt.Sprintf("%s request canceled: %v", display, err),
		Err:      err,
	}
}

func notFoundError(display, command string, err error) *Error {
	return &Error{
		Provider: display,
		Kind:     KindUnavailable,
		Message:  fmt.Sprintf("%s not found - please install it first (%s)", display, command),
		Err:      err,
	}
}

func unavailableError(display string, err error) *Error {
	return &Error{
		Provider: display,
		Kind:     KindUnavailable,
		Message:  fmt.Sprintf("%s unavailable: %v", display, err),
		Err:      err,
	}
}

func exitError(display string, code int, stderr string, err error) *Error {
	msg := fmt.Sprintf("%s exited with code %d", display, code)
	if stderr != "" {
		msg += ": " + stderr
	}
	return &Error{
		Provider: display,
		Kind:     KindBackend,
		Code:     code,
		Message:  msg,
		Err:      err,
	}
}

func statusError(display string, status int, detail string) *Error {
	return &Error{
		Provider: display,
		Kind:     KindBackend,
		Code:     status,
		Message:  fmt.Sprintf("%s error: HTTP %d: %s", display, status, detail),
	}
}

func backendError(display string, err error) *Error {
	return &Error{
		Provider: display,
		Kind:     KindBackend,
		Message:  fmt.Sprintf("%s error: %v", display, err),
		Err:      err,
	}
}

func emptyError(display string) *Error {
	return &Error{
		Provider: display,
		Kind:     KindEmpty,
		Message:  fmt.Sprintf("%s returned empty response", display),
	}
}
