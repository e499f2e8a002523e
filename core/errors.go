package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// ErrorKind is the stable, machine-readable classification of a domain rule violation.
type ErrorKind string

const (
	KindInvalidFile            ErrorKind = "invalid_file"
	KindQuotaExceeded          ErrorKind = "quota_exceeded"
	KindNotFound               ErrorKind = "not_found"
	KindForbidden              ErrorKind = "forbidden"
	KindInvalidStateTransition ErrorKind = "invalid_state_transition"
)

// Error is a domain rule violation. Msg is meant to be displayed as is.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (err *Error) Error() string {
	return err.Msg
}

func NewError(kind ErrorKind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func InvalidFile(msg string) error            { return NewError(KindInvalidFile, msg) }
func QuotaExceeded(msg string) error          { return NewError(KindQuotaExceeded, msg) }
func NotFound(msg string) error               { return NewError(KindNotFound, msg) }
func Forbidden(msg string) error              { return NewError(KindForbidden, msg) }
func InvalidStateTransition(msg string) error { return NewError(KindInvalidStateTransition, msg) }

// KindOf returns the ErrorKind of the first *Error found in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind reports whether err's chain contains an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// ErrStorageNotConfigured is returned by every storage operation when no credentials were provided.
var ErrStorageNotConfigured = InvalidFile("Storage not configured")

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
