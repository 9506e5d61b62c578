// internal/app/system/apperr/apperr.go
//
// Package apperr defines the error kinds returned by the study-group
// services. Callers classify failures with errors.Is against the Err* kinds
// and map them to their own surface (HTTP status, CLI exit code, etc.).
package apperr

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

// Error kinds.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("not authorized")
	ErrPartialWrite = errors.New("partial write")
)

// Error is a classified failure with a user-facing message.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

// Is matches the error's kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

// Validation returns an ErrValidation error.
func Validation(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

// NotFound returns an ErrNotFound error.
func NotFound(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Conflict returns an ErrConflict error.
func Conflict(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Msg: fmt.Sprintf(format, args...)}
}

// Forbidden returns an ErrForbidden error.
func Forbidden(format string, args ...any) error {
	return &Error{Kind: ErrForbidden, Msg: fmt.Sprintf(format, args...)}
}

// Messages collects several validation messages into one ErrValidation error.
// It returns nil when msgs is empty.
func Messages(msgs []string) error {
	if len(msgs) == 0 {
		return nil
	}
	return &Error{Kind: ErrValidation, Msg: strings.Join(msgs, "; ")}
}

// FromStore maps mongo.ErrNoDocuments to an ErrNotFound error naming what,
// and wraps anything else with op context.
func FromStore(err error, op, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &Error{Kind: ErrNotFound, Msg: what + " not found"}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Message returns the user-facing message of err, or err.Error() when err
// is not an *Error.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// PartialWriteError reports a multi-step write that failed after some steps
// committed without a transaction. The listed steps must be repaired.
type PartialWriteError struct {
	Op    string
	OpID  string
	Steps []string
	Err   error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%s (op %s) failed after %s: %v", e.Op, e.OpID, strings.Join(e.Steps, ", "), e.Err)
}

func (e *PartialWriteError) Is(target error) bool { return target == ErrPartialWrite }

func (e *PartialWriteError) Unwrap() error { return e.Err }
