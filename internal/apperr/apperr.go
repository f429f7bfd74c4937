// Package apperr defines the error kinds shared by ingestion and query paths.
//
// Kinds are sentinel errors; wrap them with E so callers can match with errors.Is
// while keeping the failing operation in the message.
package apperr

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	ErrConnection       = errors.New("connection error")
	ErrParse            = errors.New("parse error")
	ErrValidation       = errors.New("validation error")
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// Error is an error of a given kind raised by an operation.
type Error struct {
	Kind error  // One of the Err* sentinels
	Op   string // Operation that failed, e.g. "normalize timestamp"
	Err  error  // Underlying cause (may be nil)
}

// E builds an *Error. err may be nil when the kind says everything.
func E(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an *Error with a formatted cause.
func Errorf(kind error, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the sentinel kind carried by err, or nil.
func KindOf(err error) error {
	for _, k := range []error{ErrConnection, ErrParse, ErrValidation, ErrNotFound, ErrStoreUnavailable, ErrInvalidArgument} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
