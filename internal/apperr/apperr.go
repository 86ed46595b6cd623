// Package apperr defines typed application errors. Services return them and the HTTP
// layer maps the Kind to a status code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindBadRequest
	KindUnauthorized
	KindTooLarge
	KindUnavailable
	KindInternal
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Op      string
	Err     error
	Details interface{}
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func NotFound(message string) *Error {
	return New(KindNotFound, "not_found", message)
}

func Validation(message string) *Error {
	return New(KindValidation, "validation_failed", message)
}

func BadRequest(message string) *Error {
	return New(KindBadRequest, "bad_request", message)
}

func Unauthorized(message string) *Error {
	return New(KindUnauthorized, "unauthorized", message)
}

func TooLarge(message string) *Error {
	return New(KindTooLarge, "payload_too_large", message)
}

// Unavailable marks an upstream collaborator (row store, AI API) that could not serve
// the request.
func Unavailable(message string, err error) *Error {
	return Wrap(KindUnavailable, "upstream_unavailable", message, err)
}

func Internal(message string, err error) *Error {
	return Wrap(KindInternal, "internal", message, err)
}

// As extracts an *Error from err. Untyped errors become internal errors.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("internal server error", err)
}
