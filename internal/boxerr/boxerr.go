// Package boxerr defines the semantic error-kind taxonomy used across
// BoxLite so callers can branch on the category of a failure without
// string matching.
package boxerr

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind int

const (
	// Internal covers poisoned locks, lost channels, and JSON parse
	// failures of trusted producers.
	Internal Kind = iota
	// Unsupported means the host cannot run the hypervisor.
	Unsupported
	// Config means an invalid user option was supplied.
	Config
	// Storage covers filesystem/image/disk errors, including digest
	// mismatches.
	Storage
	// Engine covers VMM initialization, readiness timeout, or a
	// premature shim exit.
	Engine
	// Network covers backend creation or socket connect failures.
	Network
	// InvalidState means a state-machine transition was refused.
	InvalidState
	// NotFound means an unknown box, image, or execution id.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Unsupported:
		return "unsupported"
	case Config:
		return "config"
	case Storage:
		return "storage"
	case Engine:
		return "engine"
	case Network:
		return "network"
	case InvalidState:
		return "invalid_state"
	case NotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error wraps a cause with a semantic Kind.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Kind returns the semantic category of the error.
func (e *Error) Kind() Kind { return e.kind }

// New creates a Kind-tagged error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Newf creates a Kind-tagged error from a format string.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an existing error, preserving it as the cause so
// errors.Is/errors.As still see through to it.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{kind: kind, msg: msg, err: cause}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), err: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.kind == kind
	}
	return false
}

// KindOf returns the Kind carried by err, or Internal if err does not wrap
// a *Error.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.kind
	}
	return Internal
}
