// Package apperr defines the error taxonomy shared by the catalog services and
// the HTTP layer.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	Unknown Kind = iota
	InvalidArgument
	Validation
	NotFound
	Forbidden
	PayloadTooLarge
	Storage
)

// GenericMessage is what clients see for Storage and Unknown failures.
const GenericMessage = "An internal error occurred"

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	case PayloadTooLarge:
		return "payload_too_large"
	case Storage:
		return "storage"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return e.Message + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Invalid(msg string) *Error { return New(InvalidArgument, msg) }
func Rejected(msg string) *Error { return New(Validation, msg) }
func Missing(msg string) *Error { return New(NotFound, msg) }
func Denied(msg string) *Error { return New(Forbidden, msg) }

// StorageErr wraps a database or filesystem failure.
func StorageErr(msg string, err error) *Error {
	return Wrap(Storage, msg, err)
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage is the text safe to return to a client.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return GenericMessage
	}
	switch e.Kind {
	case Storage, Unknown:
		return GenericMessage
	}
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Message
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidArgument, Validation:
		return http.StatusOK
	case NotFound:
		return http.StatusNotFound
	case Forbidden:
		return http.StatusForbidden
	case PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
