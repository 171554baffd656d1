package core

import "github.com/pkg/errors"

// Error kinds. Domain errors wrap one of these so callers can branch with errors.Is.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("permission denied")
	ErrConflict  = errors.New("already exists")
	ErrTransient = errors.New("temporarily unavailable")
	ErrInvalid   = errors.New("invalid input")
)

type kindError struct {
	kind error
	msg  string
}

// NewError returns an error with message msg that matches kind under errors.Is.
func NewError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// Transient marks err as a temporary store/network failure.
func Transient(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &transientError{cause: errors.Wrap(err, msg)}
}

type transientError struct {
	cause error
}

func (e *transientError) Error() string        { return e.cause.Error() }
func (e *transientError) Cause() error         { return e.cause }
func (e *transientError) Unwrap() error        { return e.cause }
func (e *transientError) Is(target error) bool { return target == ErrTransient }

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
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ErrInvalid.Error()
	}
	return err.Err.Error()
}

func (err ValidationError) Is(target error) bool { return target == ErrInvalid }

func (err ValidationError) Unwrap() error { return err.Err }

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
	var s *shutdown
	return errors.As(err, &s)
}
