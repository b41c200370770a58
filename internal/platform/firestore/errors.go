package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type errorKind int

const (
	kindUnknown errorKind = iota
	kindNotFound
	kindConflict
	kindUnavailable
)

// Error classifies a Firestore failure so services can tell missing records, contention and
// outages apart. It satisfies repositories.RepositoryError.
type Error struct {
	op   string
	kind errorKind
	err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

func (e *Error) IsNotFound() bool    { return e != nil && e.kind == kindNotFound }
func (e *Error) IsConflict() bool    { return e != nil && e.kind == kindConflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.kind == kindUnavailable }

func kindOf(code codes.Code) errorKind {
	switch code {
	case codes.NotFound:
		return kindNotFound
	case codes.AlreadyExists, codes.Aborted, codes.FailedPrecondition:
		return kindConflict
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Internal:
		return kindUnavailable
	default:
		return kindUnknown
	}
}

// WrapError annotates err with op and a classification derived from its gRPC status. Context
// cancellation passes through untouched and already classified errors are returned as is.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || status.Code(err) == codes.Canceled {
		return context.Canceled
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return &Error{op: op, kind: kindOf(status.Code(err)), err: err}
}

// NotFoundError builds a not-found classification for records the repository found missing.
func NotFoundError(op, message string) error {
	return &Error{op: op, kind: kindNotFound, err: errors.New(message)}
}

// ConflictError builds a conflict classification.
func ConflictError(op, message string) error {
	return &Error{op: op, kind: kindConflict, err: errors.New(message)}
}

// IsNotFound reports whether err is a Firestore not-found failure, classified or raw.
func IsNotFound(err error) bool {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.IsNotFound()
	}
	return status.Code(err) == codes.NotFound
}
