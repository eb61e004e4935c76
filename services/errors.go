package services

import (
	"errors"
	"fmt"

	"prago-api/store"
)

type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindNotFound
	KindConflict
	KindUnauthorized
	KindForbidden
	KindRateLimited
	KindUpstream
)

// Error is a failure the client can act on. Anything else is internal.
type Error struct {
	Kind    ErrorKind
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func validationError(msg string) *Error { return &Error{Kind: KindValidation, Message: msg} }

func notFoundError(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }

func conflictError(msg string) *Error { return &Error{Kind: KindConflict, Message: msg} }

func unauthorizedError(msg string) *Error { return &Error{Kind: KindUnauthorized, Message: msg} }

func forbiddenError(msg string) *Error { return &Error{Kind: KindForbidden, Message: msg} }

func rateLimitedError(msg string) *Error { return &Error{Kind: KindRateLimited, Message: msg} }

func upstreamError(msg string, details any, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Details: details, Err: err}
}

// notFound turns store.ErrNotFound into a client facing error and passes
// everything else through.
func notFound(err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFoundError(msg)
	}
	return err
}

func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
