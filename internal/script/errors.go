package script

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced to the editor.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation_error"
	KindFetch           ErrorKind = "fetch_error"
	KindVersionConflict ErrorKind = "version_conflict"
	KindQuotaExceeded   ErrorKind = "quota_exceeded"
	KindTransient       ErrorKind = "transient_error"
	KindBusy            ErrorKind = "busy"
)

// Error is the single error shape exposed by the editing core. Message is
// meant for humans; Err keeps the underlying cause for logs.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func NewValidationError(message string) *Error {
	return NewError(KindValidation, message, nil)
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MessageOf returns the human-readable message of err.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }

func IsFetch(err error) bool { return KindOf(err) == KindFetch }

func IsConflict(err error) bool { return KindOf(err) == KindVersionConflict }

func IsQuotaExceeded(err error) bool { return KindOf(err) == KindQuotaExceeded }

func IsTransient(err error) bool { return KindOf(err) == KindTransient }
