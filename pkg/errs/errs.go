// Package errs classifies failures at the coordinator and pipeline
// boundaries so callers can branch on cause instead of matching strings.
package errs

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Unknown Kind = iota
	Validation
	Network
	NotFound
	Unauthorized
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Network:
		return "network"
	case NotFound:
		return "not_found"
	case Unauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

var (
	ErrEmptyMessage    = New(Validation, "message text is empty")
	ErrFileMissing     = New(Validation, "file does not exist")
	ErrFileTooLarge    = New(Validation, "file exceeds the size ceiling")
	ErrUnsupportedType = New(Validation, "unsupported media content type")
	ErrNotSignedIn     = New(Unauthorized, "no active session")
	ErrTokenExpired    = New(Unauthorized, "access token has expired")
)

type Error struct {
	kind Kind
	msg  string
	err  error
}

func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Wrap annotates err with a kind and message. A nil err returns nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Kind() Kind { return e.kind }

// KindOf extracts the kind from an error chain, Unknown when none is present.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return Unknown
}

func IsValidation(err error) bool { return KindOf(err) == Validation }
