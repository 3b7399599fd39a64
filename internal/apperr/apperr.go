// Package apperr defines the error taxonomy shared by every service in the
// application. Callers are expected to surface Kind to the user and keep
// Detail for operators; no pre-rendered prose lives here.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidArgument    Kind = "invalid-argument"
	KindNotFound           Kind = "not-found"
	KindFailedPrecondition Kind = "failed-precondition"
	KindPermissionDenied   Kind = "permission-denied"
	KindUnauthenticated    Kind = "unauthenticated"
	KindInternal           Kind = "internal"
)

type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches a taxonomy kind to an underlying cause. The cause stays
// reachable through errors.Is/errors.As.
func Wrap(kind Kind, err error, detail string) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// KindOf extracts the taxonomy kind from err. Errors that never got a kind
// assigned count as internal failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
